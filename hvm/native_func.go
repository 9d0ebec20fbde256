package hvm

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// NativeFunc is an invocable capability. Func pops exactly Argc values from
// the shared stack and pushes exactly Results values; it may allocate.
// A bound method carries its receiver, which keeps the receiver alive.
type NativeFunc struct {
	Name     string
	Argc     int
	Results  int
	Func     func(vm *VM) error
	Bound    bool
	Receiver Address
}

var _ gob.GobEncoder = NativeFunc{}

var _ gob.GobDecoder = new(NativeFunc)

type nativeFuncData struct {
	Name     string
	Argc     int
	Results  int
	Bound    bool
	Receiver Address
}

func (n NativeFunc) GobEncode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(nativeFuncData{
		Name:     n.Name,
		Argc:     n.Argc,
		Results:  n.Results,
		Bound:    n.Bound,
		Receiver: n.Receiver,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *NativeFunc) GobDecode(data []byte) error {
	var d nativeFuncData
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&d); err != nil {
		return err
	}
	n.Name = d.Name
	n.Argc = d.Argc
	n.Results = d.Results
	n.Bound = d.Bound
	n.Receiver = d.Receiver
	n.Func = nil // rebound by VM.Rebind
	return nil
}

func (n *NativeFunc) IsMissing() bool {
	return n.Func == nil
}

// Call invokes the capability and checks its stack contract.
func (n *NativeFunc) Call(vm *VM) error {
	if n.Func == nil {
		return withKind(n, fmt.Errorf("%w: %s", ErrMissingNative, n.Name))
	}
	before := vm.Stack.Len()
	if before < n.Argc {
		return withKind(n, fmt.Errorf("%w: %s wants %d arguments, stack has %d", ErrStackUnderflow, n.Name, n.Argc, before))
	}
	if err := n.Func(vm); err != nil {
		return withKind(n, fmt.Errorf("%s: %w", n.Name, err))
	}
	if after, want := vm.Stack.Len(), before-n.Argc+n.Results; after != want {
		return withKind(n, fmt.Errorf("%w: %s left stack depth %d, want %d", ErrNativeContract, n.Name, after, want))
	}
	return nil
}
