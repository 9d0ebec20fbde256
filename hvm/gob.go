package hvm

import (
	"encoding/gob"
	"io"
)

func init() {
	gob.Register(Int64(0))
	gob.Register(Float64(0))
	gob.Register(Bool(false))
	gob.Register(Address(0))
	gob.Register(Null{})
	gob.Register(&NativeFunc{})
	gob.Register(String(""))
	gob.Register(&List{})
	gob.Register(&Object{})
	gob.Register(&Function{})
	gob.Register(Empty{})
	gob.Register(OpCode(0))
}

type snapshot struct {
	Main  *Function
	Heap  []Unsized
	Stack []Sized
	Store []Sized
	Steps uint64
}

// Snapshot writes the program and the heap, stack and store between two instructions.
func (v *VM) Snapshot(w io.Writer) error {
	v.world.Lock()
	defer v.world.Unlock()
	return gob.NewEncoder(w).Encode(snapshot{
		Main:  v.Main,
		Heap:  v.Heap.Values(),
		Stack: v.Stack.Values(),
		Store: v.Store.Values(),
		Steps: v.Steps(),
	})
}

// Restore replaces the state of v with a snapshot. Natives come back
// without bodies; call Rebind before running.
func (v *VM) Restore(r io.Reader) error {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return err
	}

	v.world.Lock()
	defer v.world.Unlock()
	v.Main = s.Main
	v.Heap = &Heap{
		values: s.Heap,
	}
	v.Stack = &Stack{
		values: s.Stack,
	}
	v.Store = &Store{
		slots: s.Store,
	}
	v.CallStack = nil
	v.steps.Store(s.Steps)
	return nil
}
