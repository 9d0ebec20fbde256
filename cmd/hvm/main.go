package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/reusee/dscope"
	"github.com/reusee/heapvm/cmds"
	"github.com/reusee/heapvm/debugs"
	"github.com/reusee/heapvm/hvm"
	"github.com/reusee/heapvm/hvmcodec"
	"github.com/reusee/heapvm/hvmlib"
	"github.com/reusee/heapvm/logs"
	"github.com/reusee/heapvm/modes"
	"golang.org/x/term"
)

var (
	fileFlag     = cmds.Var[string]("-file")
	heapDumpFlag = cmds.Var[string]("-heap-dump")
	debugFlag    = cmds.Switch("-debug")
	devFlag      = cmds.Switch("-dev")
)

func main() {
	if err := cmds.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, cmds.ErrUnknownCommand) {
			cmds.GlobalExecutor.PrintUsage()
		}
		exit(err)
	}
	ctx := context.Background()

	var mode any = modes.ForProduction()
	if *devFlag {
		mode = modes.ForDevelopment()
	}

	dscope.New(
		new(Module),
		mode,
	).Call(func(
		logger logs.Logger,
		newSpan logs.NewSpan,
		makeVM hvm.MakeVM,
		natives hvmlib.Natives,
		tap debugs.Tap,
	) {
		ctx, _ = newSpan(ctx, "")

		fn, err := loadProgram()
		if err != nil {
			exit(err)
		}
		logger.InfoContext(ctx, "program",
			"name", fn.Name,
			"instructions", len(fn.Code),
		)

		vm := makeVM(fn)
		if err := natives.Preload(vm.Store); err != nil {
			exit(err)
		}

		runErr := vm.Exec(ctx)

		if path := *heapDumpFlag; path != "" {
			if err := dumpHeap(path, vm); err != nil {
				logger.ErrorContext(ctx, "heap dump", "error", err)
			}
		}

		if runErr != nil {
			if *debugFlag {
				globals := debugs.Inspect(vm)
				globals["error"] = runErr.Error()
				tap(ctx, "run failed", globals)
			}
			exit(logs.WrapSpan(ctx, runErr))
		}
	})
}

func loadProgram() (*hvm.Function, error) {
	if path := *fileFlag; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return hvmcodec.DecodeReader(f)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("no program: use -file or pipe one to stdin")
	}
	return hvmcodec.DecodeReader(os.Stdin)
}

func dumpHeap(path string, vm *hvm.VM) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return debugs.DumpHeap(f, vm)
}

func exit(err error) {
	io.WriteString(os.Stderr, err.Error()+"\n")
	os.Exit(-1)
}
