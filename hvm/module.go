package hvm

import (
	"github.com/reusee/dscope"
	"github.com/reusee/heapvm/logs"
	"github.com/reusee/heapvm/modes"
)

type Module struct {
	dscope.Module
	Logs logs.Module
}

type MakeVM func(main *Function) *VM

func (Module) MakeVM(
	logger logs.Logger,
	config Config,
	mode modes.Mode,
) MakeVM {
	if mode == modes.ModeDevelopment {
		config.Verify = true
	}
	return func(main *Function) *VM {
		vm := NewVM(main, config)
		vm.Logger = logger.With("vm", main.Name)
		return vm
	}
}
