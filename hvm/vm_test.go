package hvm

import (
	"context"
	"errors"
	"testing"
)

func run(t *testing.T, vm *VM) {
	t.Helper()
	for _, err := range vm.Run {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func runErr(vm *VM) error {
	for _, err := range vm.Run {
		if err != nil {
			return err
		}
	}
	return nil
}

func top(t *testing.T, vm *VM) Sized {
	t.Helper()
	v, err := vm.Stack.Peek()
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func slot(t *testing.T, vm *VM, b *Builder, name string) Sized {
	t.Helper()
	i, ok := b.Slots().Lookup(name)
	if !ok {
		t.Fatalf("no slot %s", name)
	}
	v, err := vm.Store.Get(i)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// countLoop emits: for counter = 0; counter < n; counter++ { body }
func countLoop(b *Builder, counter string, n int64, body func(b *Builder)) {
	b.PushInt(0).Store(counter)
	start := b.IP()
	b.Load(counter).PushInt(n).Op(OpLt)
	exit := b.Forward(OpJumpIfFalse)
	body(b)
	b.Load(counter).PushInt(1).Op(OpAdd).Store(counter)
	b.JumpTo(start)
	b.Patch(exit, b.IP())
}

func TestVM_Arith(t *testing.T) {
	cases := []struct {
		a, b Sized
		op   OpCode
		want Sized
	}{
		{Int64(2), Int64(3), OpAdd, Int64(5)},
		{Int64(5), Int64(2), OpSub, Int64(3)},
		{Int64(2), Int64(5), OpSub, Int64(-3)},
		{Int64(4), Int64(3), OpMul, Int64(12)},
		{Int64(7), Int64(2), OpDiv, Int64(3)},
		{Int64(7), Int64(2), OpMod, Int64(1)},
		{Float64(1.5), Float64(2), OpAdd, Float64(3.5)},
		{Float64(1), Float64(4), OpDiv, Float64(0.25)},
		{Int64(1), Int64(2), OpLt, Bool(true)},
		{Int64(2), Int64(1), OpLt, Bool(false)},
		{Int64(2), Int64(2), OpLte, Bool(true)},
		{Int64(3), Int64(2), OpGt, Bool(true)},
		{Int64(2), Int64(3), OpGte, Bool(false)},
		{Int64(2), Int64(2), OpEq, Bool(true)},
		{Int64(2), Int64(2), OpNeq, Bool(false)},
		{Bool(true), Bool(false), OpAnd, Bool(false)},
		{Bool(true), Bool(false), OpOr, Bool(true)},
	}
	for _, c := range cases {
		vm := NewVM(&Function{
			Name: "main",
			Code: []OpCode{c.op},
		}, DefaultConfig())
		vm.Stack.Push(c.a)
		vm.Stack.Push(c.b)
		run(t, vm)
		if got := top(t, vm); got != c.want {
			t.Fatalf("%v %s %v: got %v", c.a, c.op, c.b, got)
		}
		if vm.Stack.Len() != 1 {
			t.Fatal()
		}
	}
}

func TestVM_OperandOrder(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushInt(3).PushInt(5).Op(OpLt).
		PushInt(3).PushInt(5).Op(OpSub).
		PushInt(3).PushInt(5).Op(OpAdd).
		MustBuild(), DefaultConfig())
	run(t, vm)
	values := vm.Stack.Values()
	if values[0] != Bool(true) || values[1] != Int64(-2) || values[2] != Int64(8) {
		t.Fatalf("got %v", values)
	}
}

func TestVM_Unary(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushInt(3).Op(OpNeg).
		PushFloat(1.5).Op(OpNeg).
		PushBool(true).Op(OpNot).
		MustBuild(), DefaultConfig())
	run(t, vm)
	values := vm.Stack.Values()
	if values[0] != Int64(-3) || values[1] != Float64(-1.5) || values[2] != Bool(false) {
		t.Fatalf("got %v", values)
	}
}

func TestVM_TypeMismatch(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushInt(1).PushBool(true).Op(OpAdd).
		MustBuild(), DefaultConfig())
	err := runErr(vm)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal()
	}
	if e.Func != "main" || e.PC != 2 || e.Op != OpAdd || e.Kind != KindBool {
		t.Fatalf("got %+v", e)
	}

	// Int64 and Float64 do not mix
	vm = NewVM(NewBuilder("main").
		PushInt(1).PushFloat(1).Op(OpAdd).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}

	vm = NewVM(NewBuilder("main").
		PushInt(1).PushFloat(1).Op(OpEq).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_DivisionByZero(t *testing.T) {
	for _, op := range []OpCode{OpDiv, OpMod} {
		vm := NewVM(NewBuilder("main").
			PushInt(1).PushInt(0).Op(op).
			MustBuild(), DefaultConfig())
		if err := runErr(vm); !errors.Is(err, ErrDivisionByZero) {
			t.Fatalf("got %v", err)
		}
	}
}

func TestVM_StackUnderflow(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushInt(1).Op(OpAdd).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_Loop(t *testing.T) {
	const n = 1000
	// i = 0; while i < n { i = i + 1 }
	main := &Function{
		Name:      "main",
		Constants: []any{int64(0), int64(n), int64(1)},
		Code: []OpCode{
			OpPushInt.With(0),
			OpStore.With(0),
			OpLoad.With(0),
			OpPushInt.With(1),
			OpLt,
			OpJumpIfFalse.With(6),
			OpLoad.With(0),
			OpPushInt.With(2),
			OpAdd,
			OpStore.With(0),
			OpJump.With(-8),
		},
	}
	vm := NewVM(main, DefaultConfig())
	run(t, vm)
	v, err := vm.Store.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if v != Int64(n) {
		t.Fatalf("got %v", v)
	}
	if vm.Stack.Len() != 0 {
		t.Fatal()
	}
	// 2 + n*9 + 4
	if steps := vm.Steps(); steps != 2+n*9+4 {
		t.Fatalf("got %d", steps)
	}
}

func TestVM_BuilderLoop(t *testing.T) {
	b := NewBuilder("main")
	b.PushInt(0).Store("sum")
	countLoop(b, "i", 10, func(b *Builder) {
		b.Load("sum").Load("i").Op(OpAdd).Store("sum")
	})
	vm := NewVM(b.MustBuild(), DefaultConfig())
	run(t, vm)
	if v := slot(t, vm, b, "sum"); v != Int64(45) {
		t.Fatalf("got %v", v)
	}
}

func TestVM_Jump(t *testing.T) {
	// jumping past the end ends the function
	vm := NewVM(NewBuilder("main").
		Jump(100).
		PushInt(1).
		MustBuild(), DefaultConfig())
	run(t, vm)
	if vm.Stack.Len() != 0 {
		t.Fatal()
	}

	vm = NewVM(NewBuilder("main").
		PushInt(1).
		Jump(-5).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("got %v", err)
	}

	vm = NewVM(NewBuilder("main").
		PushInt(1).
		JumpIfFalse(2).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_StoreLoad(t *testing.T) {
	native := &NativeFunc{Name: "f", Func: func(*VM) error { return nil }}
	values := []Sized{
		Int64(42),
		Float64(0.5),
		Bool(true),
		Null{},
		Address(0),
		native,
	}
	for _, value := range values {
		vm := NewVM(NewBuilder("main").
			StoreSlot(3).
			LoadSlot(3).
			LoadSlot(3).
			MustBuild(), DefaultConfig())
		vm.Heap.Alloc(String("x"))
		vm.Stack.Push(value)
		run(t, vm)
		got := vm.Stack.Values()
		if len(got) != 2 || got[0] != value || got[1] != value {
			t.Fatalf("got %v", got)
		}
	}

	vm := NewVM(NewBuilder("main").
		LoadSlot(DefaultStoreSlots).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_Push(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushString("foo").
		PushObject().
		PushList().
		Op(OpPushNull).
		MustBuild(), DefaultConfig())
	run(t, vm)
	values := vm.Stack.Values()
	if values[0] != Address(0) || values[1] != Address(1) || values[2] != Address(2) {
		t.Fatalf("got %v", values)
	}
	if _, ok := values[3].(Null); !ok {
		t.Fatalf("got %v", values[3])
	}
	payloads := vm.Heap.Values()
	if payloads[0] != String("foo") || KindOf(payloads[1]) != KindObject || KindOf(payloads[2]) != KindList {
		t.Fatalf("got %v", payloads)
	}
}

func TestVM_Dup(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushInt(7).Op(OpDup, OpMul).
		MustBuild(), DefaultConfig())
	run(t, vm)
	if v := top(t, vm); v != Int64(49) {
		t.Fatalf("got %v", v)
	}

	vm = NewVM(NewBuilder("main").Op(OpDup).MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_ListMethods(t *testing.T) {
	b := NewBuilder("main")
	b.PushList().Store("l")
	for _, n := range []int64{10, 20, 30} {
		b.PushInt(n).Load("l").PushString("push").Op(OpPropertyLoad, OpCall)
	}
	b.Load("l").PushInt(1).Op(OpListAccess).Store("second")
	b.Load("l").PushString("len").Op(OpPropertyLoad, OpCall).Store("len")
	b.Load("l").PushString("pop").Op(OpPropertyLoad, OpCall).Store("popped")
	b.PushInt(0).PushInt(99).Load("l").PushString("set").Op(OpPropertyLoad, OpCall)
	b.PushInt(0).Load("l").PushString("get").Op(OpPropertyLoad, OpCall).Store("first")

	vm := NewVM(b.MustBuild(), DefaultConfig())
	run(t, vm)
	if v := slot(t, vm, b, "second"); v != Int64(20) {
		t.Fatalf("got %v", v)
	}
	if v := slot(t, vm, b, "len"); v != Int64(3) {
		t.Fatalf("got %v", v)
	}
	if v := slot(t, vm, b, "popped"); v != Int64(30) {
		t.Fatalf("got %v", v)
	}
	if v := slot(t, vm, b, "first"); v != Int64(99) {
		t.Fatalf("got %v", v)
	}
	if vm.Stack.Len() != 0 {
		t.Fatalf("got %v", vm.Stack.Values())
	}
	if s := vm.Format(slot(t, vm, b, "l")); s != "[99, 20]" {
		t.Fatalf("got %s", s)
	}
}

func TestVM_ListAccessErrors(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushList().PushInt(0).Op(OpListAccess).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("got %v", err)
	}

	vm = NewVM(NewBuilder("main").
		PushObject().PushInt(0).Op(OpListAccess).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}

	vm = NewVM(NewBuilder("main").
		PushList().PushBool(true).Op(OpListAccess).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_ObjectMethods(t *testing.T) {
	b := NewBuilder("main")
	b.PushObject().Store("o")
	b.PushString("x").PushInt(1).Load("o").PushString("set").Op(OpPropertyLoad, OpCall)
	b.PushString("x").Load("o").PushString("get").Op(OpPropertyLoad, OpCall).Store("x")
	b.PushString("y").Load("o").PushString("get").Op(OpPropertyLoad, OpCall).Store("y")
	b.PushString("x").Load("o").PushString("has").Op(OpPropertyLoad, OpCall).Store("has")
	b.Load("o").PushString("copy").Op(OpPropertyLoad, OpCall).Store("c")
	b.PushString("x").Load("o").PushString("delete").Op(OpPropertyLoad, OpCall)
	b.Load("o").PushString("len").Op(OpPropertyLoad, OpCall).Store("len")
	b.Load("c").PushString("len").Op(OpPropertyLoad, OpCall).Store("clen")

	vm := NewVM(b.MustBuild(), DefaultConfig())
	run(t, vm)
	if v := slot(t, vm, b, "x"); v != Int64(1) {
		t.Fatalf("got %v", v)
	}
	if _, ok := slot(t, vm, b, "y").(Null); !ok {
		t.Fatal()
	}
	if v := slot(t, vm, b, "has"); v != Bool(true) {
		t.Fatalf("got %v", v)
	}
	if v := slot(t, vm, b, "len"); v != Int64(0) {
		t.Fatalf("got %v", v)
	}
	if v := slot(t, vm, b, "clen"); v != Int64(1) {
		t.Fatalf("got %v", v)
	}
}

func TestVM_StringMethods(t *testing.T) {
	b := NewBuilder("main")
	b.PushString("bar").PushString("foo").PushString("concat").Op(OpPropertyLoad, OpCall).Store("s")
	b.Load("s").PushString("len").Op(OpPropertyLoad, OpCall).Store("len")
	vm := NewVM(b.MustBuild(), DefaultConfig())
	run(t, vm)
	if s := vm.Format(slot(t, vm, b, "s")); s != "foobar" {
		t.Fatalf("got %s", s)
	}
	if v := slot(t, vm, b, "len"); v != Int64(6) {
		t.Fatalf("got %v", v)
	}
}

func TestVM_UnknownProperty(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushList().PushString("nope").Op(OpPropertyLoad).
		MustBuild(), DefaultConfig())
	err := runErr(vm)
	if !errors.Is(err, ErrUnknownProperty) {
		t.Fatalf("got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindList {
		t.Fatalf("got %v", err)
	}

	vm = NewVM(NewBuilder("main").
		PushInt(1).PushString("len").Op(OpPropertyLoad).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrUnknownProperty) {
		t.Fatalf("got %v", err)
	}

	// the name must be a String
	vm = NewVM(NewBuilder("main").
		PushList().PushInt(1).Op(OpPropertyLoad).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_CallFunction(t *testing.T) {
	b := NewBuilder("main")
	fn := b.Sub("set").
		PushInt(42).Store("r").
		PushInt(1).
		Op(OpReturn).
		PushInt(2).
		MustBuild()
	b.Function(fn).Op(OpCall)
	vm := NewVM(b.MustBuild(), DefaultConfig())
	run(t, vm)
	if v := slot(t, vm, b, "r"); v != Int64(42) {
		t.Fatalf("got %v", v)
	}
	values := vm.Stack.Values()
	if len(values) != 1 || values[0] != Int64(1) {
		t.Fatalf("got %v", values)
	}
}

func TestVM_CallErrors(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		PushString("x").Op(OpCall).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}

	vm = NewVM(NewBuilder("main").
		PushInt(1).Op(OpCall).
		MustBuild(), DefaultConfig())
	if err := runErr(vm); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}

	// errors inside a callee are attributed to the callee
	b := NewBuilder("main")
	fn := b.Sub("bad").Op(OpAdd).MustBuild()
	b.Function(fn).Op(OpCall)
	vm = NewVM(b.MustBuild(), DefaultConfig())
	err := runErr(vm)
	var e *Error
	if !errors.As(err, &e) || e.Func != "bad" || e.PC != 0 {
		t.Fatalf("got %v", err)
	}
}

func TestVM_CallDepth(t *testing.T) {
	b := NewBuilder("main")
	fn := b.Sub("rec").Load("f").Op(OpCall).MustBuild()
	b.Function(fn).Store("f").Load("f").Op(OpCall)
	config := DefaultConfig()
	config.MaxCallDepth = 16
	vm := NewVM(b.MustBuild(), config)
	if err := runErr(vm); !errors.Is(err, ErrCallDepthExceeded) {
		t.Fatalf("got %v", err)
	}
	if len(vm.CallStack) != 0 {
		t.Fatal()
	}
}

func TestVM_NativeFunc(t *testing.T) {
	b := NewBuilder("main")
	b.PushInt(1).PushInt(2).Load("add").Op(OpCall).Store("res")
	vm := NewVM(b.MustBuild(), DefaultConfig())
	add := &NativeFunc{
		Name:    "add",
		Argc:    2,
		Results: 1,
		Func: func(vm *VM) error {
			lhs, rhs, err := vm.Stack.Pop2()
			if err != nil {
				return err
			}
			vm.Stack.Push(lhs.(Int64) + rhs.(Int64))
			return nil
		},
	}
	i, _ := b.Slots().Lookup("add")
	if err := vm.Store.Set(i, add); err != nil {
		t.Fatal(err)
	}
	run(t, vm)
	if v := slot(t, vm, b, "res"); v != Int64(3) {
		t.Fatalf("got %v", v)
	}
}

func TestVM_NativeContract(t *testing.T) {
	bad := &NativeFunc{
		Name:    "bad",
		Argc:    1,
		Results: 1,
		Func: func(vm *VM) error {
			vm.Stack.Push(Int64(1))
			return nil
		},
	}
	vm := NewVM(NewBuilder("main").
		PushInt(1).LoadSlot(0).Op(OpCall).
		MustBuild(), DefaultConfig())
	if err := vm.Store.Set(0, bad); err != nil {
		t.Fatal(err)
	}
	err := runErr(vm)
	if !errors.Is(err, ErrNativeContract) {
		t.Fatalf("got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Op != OpCall || e.Kind != KindNative {
		t.Fatalf("got %v", err)
	}

	// too few arguments
	vm = NewVM(NewBuilder("main").
		LoadSlot(0).Op(OpCall).
		MustBuild(), DefaultConfig())
	if err := vm.Store.Set(0, bad); err != nil {
		t.Fatal(err)
	}
	if err := runErr(vm); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("got %v", err)
	}

	// missing body
	vm = NewVM(NewBuilder("main").
		LoadSlot(0).Op(OpCall).
		MustBuild(), DefaultConfig())
	if err := vm.Store.Set(0, &NativeFunc{Name: "gone"}); err != nil {
		t.Fatal(err)
	}
	if err := runErr(vm); !errors.Is(err, ErrMissingNative) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_SafePoints(t *testing.T) {
	b := NewBuilder("main")
	countLoop(b, "i", 100, func(*Builder) {})
	config := DefaultConfig()
	config.SafePointInterval = 10
	vm := NewVM(b.MustBuild(), config)
	n := 0
	for intr, err := range vm.Run {
		if err != nil {
			t.Fatal(err)
		}
		if intr == nil || !intr.SafePoint {
			t.Fatal()
		}
		n++
	}
	if want := int(vm.Steps() / 10); n != want {
		t.Fatalf("got %d, want %d", n, want)
	}
}

func TestVM_ExecCollects(t *testing.T) {
	b := NewBuilder("main")
	b.PushList().Store("kept")
	countLoop(b, "i", 2000, func(b *Builder) {
		// garbage
		b.PushString("tmp").Op(OpPop)
		b.PushObject().Op(OpPop)
		// live
		b.Load("i").Load("kept").PushString("push").Op(OpPropertyLoad, OpCall)
	})

	config := DefaultConfig()
	config.SafePointInterval = 64
	config.GCEvery = 256
	config.Verify = true
	vm := NewVM(b.MustBuild(), config)
	if err := vm.Exec(context.Background()); err != nil {
		t.Fatal(err)
	}
	// about 6000 allocations, most of them swept
	if n := vm.Heap.Len(); n >= 6000 {
		t.Fatalf("got %d", n)
	}
	if _, err := vm.Collect(); err != nil {
		t.Fatal(err)
	}
	// the list is the only survivor
	live := 0
	for _, value := range vm.Heap.All() {
		if KindOf(value) != KindEmpty {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("got %d", live)
	}
	var l *List
	if err := withList(vm, slot(t, vm, b, "kept").(Address), func(list *List) error {
		l = list
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(l.Elements) != 2000 || l.Elements[1999] != Int64(1999) {
		t.Fatalf("got %d", len(l.Elements))
	}
}

func TestVM_ExecCanceled(t *testing.T) {
	vm := NewVM(NewBuilder("main").
		Jump(0).
		MustBuild(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := vm.Exec(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestVM_ExecGCOff(t *testing.T) {
	b := NewBuilder("main")
	countLoop(b, "i", 100, func(b *Builder) {
		b.PushString("tmp").Op(OpPop)
	})
	config := DefaultConfig()
	config.GC = GCOff
	config.GCEvery = 1
	config.SafePointInterval = 1
	vm := NewVM(b.MustBuild(), config)
	if err := vm.Exec(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := vm.Heap.Len(); n != 100 {
		t.Fatalf("got %d", n)
	}
}
