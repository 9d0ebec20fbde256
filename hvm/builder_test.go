package hvm

import (
	"errors"
	"math"
	"testing"
)

func TestBuilderConstants(t *testing.T) {
	b := NewBuilder("main")
	b.PushInt(1).PushInt(1).PushString("a").PushString("a").PushFloat(math.NaN()).PushFloat(math.NaN())
	fn := b.MustBuild()
	if len(fn.Constants) != 3 {
		t.Fatalf("got %v", fn.Constants)
	}
	if fn.Code[0] != fn.Code[1] {
		t.Fatal()
	}
	if fn.Code[4] != fn.Code[5] {
		t.Fatal()
	}
}

func TestBuilderSignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	b := NewBuilder("main")
	b.PushFloat(0).PushFloat(negZero).PushFloat(negZero)
	fn := b.MustBuild()
	if len(fn.Constants) != 2 {
		t.Fatalf("got %v", fn.Constants)
	}
	if fn.Code[0] == fn.Code[1] || fn.Code[1] != fn.Code[2] {
		t.Fatalf("got %v", fn.Code)
	}

	vm := NewVM(fn, DefaultConfig())
	run(t, vm)
	values := vm.Stack.Values()
	if f := float64(values[0].(Float64)); math.Signbit(f) {
		t.Fatalf("got %v", f)
	}
	if f := float64(values[1].(Float64)); !math.Signbit(f) {
		t.Fatalf("got %v", f)
	}
}

func TestBuilderSlots(t *testing.T) {
	b := NewBuilder("main")
	b.Store("a").Load("b").Load("a")
	sub := b.Sub("f")
	sub.Load("b").Store("c")
	if n := b.Slots().Len(); n != 3 {
		t.Fatalf("got %d", n)
	}
	if names := b.Slots().Names(); names[0] != "a" || names[2] != "c" {
		t.Fatalf("got %v", names)
	}
	fn := b.MustBuild()
	if fn.Code[2] != OpLoad.With(0) {
		t.Fatalf("got %v", fn.Code[2])
	}
}

func TestBuilderJumps(t *testing.T) {
	b := NewBuilder("main")
	b.PushBool(false)
	ip := b.Forward(OpJumpIfFalse)
	b.PushInt(1)
	b.Patch(ip, b.IP())
	b.PushInt(2)
	b.JumpTo(0)
	fn := b.MustBuild()
	if fn.Code[1] != OpJumpIfFalse.With(2) {
		t.Fatalf("got %v", fn.Code[1])
	}
	if fn.Code[4] != OpJump.With(-4) {
		t.Fatalf("got %v", fn.Code[4])
	}
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder("main")
	b.Op(OpLoad)
	if _, err := b.Build(); !errors.Is(err, ErrBadOperand) {
		t.Fatalf("got %v", err)
	}

	b = NewBuilder("main")
	b.LoadSlot(MaxOperand + 1)
	if _, err := b.Build(); !errors.Is(err, ErrBadOperand) {
		t.Fatalf("got %v", err)
	}

	b = NewBuilder("main")
	b.Forward(OpAdd)
	if _, err := b.Build(); !errors.Is(err, ErrBadOperand) {
		t.Fatalf("got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("should panic")
		}
	}()
	b.MustBuild()
}
