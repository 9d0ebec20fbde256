package modes

import (
	"testing"

	"github.com/reusee/dscope"
)

// ModuleForDevelopment runs a binary with development checks enabled.
type ModuleForDevelopment struct {
	dscope.Module
}

func ForDevelopment() ModuleForDevelopment {
	return ModuleForDevelopment{}
}

func (ModuleForDevelopment) T() *testing.T {
	return nil
}

func (ModuleForDevelopment) Mode() Mode {
	return ModeDevelopment
}
