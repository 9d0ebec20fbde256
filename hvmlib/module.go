package hvmlib

import (
	"io"
	"os"

	"github.com/reusee/dscope"
)

type Module struct {
	dscope.Module
}

// Output is where print writes.
type Output io.Writer

func (Module) Output() Output {
	return os.Stdout
}

func (Module) Natives(
	out Output,
) Natives {
	return New(out)
}
