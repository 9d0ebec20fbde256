// Package hvmlib provides the native capabilities a program finds in its first store slots.
package hvmlib

import (
	"errors"
	"fmt"
	"io"

	"github.com/reusee/heapvm/hvm"
)

var ErrAssertion = errors.New("assertion failed")

// Names lists the natives in slot order.
var Names = []string{
	"print",
	"to_string",
	"concat",
	"assert",
	"len",
}

type Natives map[string]*hvm.NativeFunc

func New(out io.Writer) Natives {
	return Natives{

		"print": {
			Name: "print",
			Argc: 1,
			Func: func(vm *hvm.VM) error {
				v, err := vm.Stack.Pop()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, vm.Format(v))
				return err
			},
		},

		"to_string": {
			Name:    "to_string",
			Argc:    1,
			Results: 1,
			Func: func(vm *hvm.VM) error {
				v, err := vm.Stack.Pop()
				if err != nil {
					return err
				}
				vm.Stack.Push(vm.Heap.Alloc(hvm.String(vm.Format(v))))
				return nil
			},
		},

		"concat": {
			Name:    "concat",
			Argc:    2,
			Results: 1,
			Func: func(vm *hvm.VM) error {
				rhs, err := hvm.PopString(vm)
				if err != nil {
					return err
				}
				lhs, err := hvm.PopString(vm)
				if err != nil {
					return err
				}
				vm.Stack.Push(vm.Heap.Alloc(hvm.String(lhs + rhs)))
				return nil
			},
		},

		"assert": {
			Name: "assert",
			Argc: 1,
			Func: func(vm *hvm.VM) error {
				v, err := vm.Stack.Pop()
				if err != nil {
					return err
				}
				b, ok := v.(hvm.Bool)
				if !ok {
					return fmt.Errorf("%w: assert on %s", hvm.ErrTypeMismatch, hvm.KindOf(v))
				}
				if !b {
					return ErrAssertion
				}
				return nil
			},
		},

		"len": {
			Name:    "len",
			Argc:    1,
			Results: 1,
			Func:    length,
		},
	}
}

func length(vm *hvm.VM) error {
	v, err := vm.Stack.Pop()
	if err != nil {
		return err
	}
	addr, ok := v.(hvm.Address)
	if !ok {
		return fmt.Errorf("%w: len of %s", hvm.ErrTypeMismatch, hvm.KindOf(v))
	}
	payload, err := vm.Heap.Deref(addr)
	if err != nil {
		return err
	}
	var n int
	switch payload := payload.(type) {
	case hvm.String:
		n = len(payload)
	case *hvm.List:
		err = vm.Heap.Mutate(addr, func(hvm.Unsized) error {
			n = len(payload.Elements)
			return nil
		})
	case *hvm.Object:
		err = vm.Heap.Mutate(addr, func(hvm.Unsized) error {
			n = len(payload.Fields)
			return nil
		})
	default:
		return fmt.Errorf("%w: len of %s", hvm.ErrTypeMismatch, hvm.KindOf(payload))
	}
	if err != nil {
		return err
	}
	vm.Stack.Push(hvm.Int64(n))
	return nil
}

// Declare reserves the native slots in b, so they precede the program's variables.
func Declare(b *hvm.Builder) {
	for _, name := range Names {
		b.Slots().Resolve(name)
	}
}

// Preload writes the natives into slots 0 to len(Names)-1.
func (n Natives) Preload(store *hvm.Store) error {
	for i, name := range Names {
		if err := store.Set(i, n[name]); err != nil {
			return fmt.Errorf("preload %s: %w", name, err)
		}
	}
	return nil
}
