package hvm

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Run executes Main. Every error is fatal: it is yielded once and the run ends.
func (v *VM) Run(yield func(*Interrupt, error) bool) {
	v.invoke(v.Main, nil, -1, 0, yield)
}

// Exec runs Main to completion, collecting according to Config.GC.
func (v *VM) Exec(ctx context.Context) (err error) {
	v.Logger.DebugContext(ctx, "exec",
		"func", v.Main.Name,
		"gc", v.Config.GC,
		"mark", v.Config.Mark,
	)
	defer func() {
		if err != nil {
			v.Logger.ErrorContext(ctx, "exec failed",
				"error", err,
				"steps", v.Steps(),
			)
		} else {
			v.Logger.DebugContext(ctx, "exec done",
				"steps", v.Steps(),
				"heap", v.Heap.Len(),
			)
		}
	}()

	var collector *Collector
	if v.Config.GC == GCConcurrent {
		collector = NewCollector(v, v.Config.GCInterval)
		v.collector = collector
		collector.Start()
		defer func() {
			collector.Stop()
			v.collector = nil
			if cerr := collector.Err(); cerr != nil && !errors.Is(err, cerr) {
				err = errors.Join(err, cerr)
			}
		}()
	}

	var lastCollect uint64
	for intr, e := range v.Run {
		if e != nil {
			return e
		}
		if intr == nil || !intr.SafePoint {
			continue
		}
		if e := ctx.Err(); e != nil {
			return e
		}
		switch v.Config.GC {

		case GCSafePoint:
			steps := v.Steps()
			if every := uint64(v.Config.GCEvery); every > 0 && steps-lastCollect < every {
				continue
			}
			lastCollect = steps
			if _, e := v.Collect(); e != nil {
				return e
			}

		case GCConcurrent:
			if e := collector.Err(); e != nil {
				return e
			}

		}
	}

	return nil
}

// invoke runs fn as a call from caller at callerPC, sharing all state.
func (v *VM) invoke(fn, caller *Function, callerPC int, depth int, yield func(*Interrupt, error) bool) bool {
	fail := func(err error) bool {
		if caller != nil {
			err = wrapError(caller, callerPC, OpCall, err)
		}
		yield(nil, err)
		return false
	}

	if limit := v.Config.MaxCallDepth; limit > 0 && depth > limit {
		return fail(withKind(fn, fmt.Errorf("%w: %d", ErrCallDepthExceeded, limit)))
	}

	frame := Frame{
		Fun:       fn,
		CallerPC:  callerPC,
		Depth:     depth,
		StackBase: v.Stack.Len(),
	}
	if err := v.Frames.Enter(v, frame); err != nil {
		return fail(err)
	}
	v.CallStack = append(v.CallStack, frame)
	ok := v.exec(fn, depth, yield)
	v.CallStack = v.CallStack[:len(v.CallStack)-1]
	if !ok {
		return false
	}
	if err := v.Frames.Leave(v, frame); err != nil {
		return fail(err)
	}
	return true
}

// exec runs the code of fn. It returns false when the run must stop.
func (v *VM) exec(fn *Function, depth int, yield func(*Interrupt, error) bool) bool {
	pc := 0
	for pc < len(fn.Code) {
		inst := fn.Code[pc]
		res, err := v.step(fn, pc, inst)
		if err != nil {
			yield(nil, wrapError(fn, pc, inst, err))
			return false
		}
		if !v.tick(yield) {
			return false
		}
		if res.callee != nil {
			if !v.invoke(res.callee, fn, pc, depth+1, yield) {
				return false
			}
		}
		if res.ret {
			return true
		}
		pc = res.next
	}
	return true
}

func (v *VM) tick(yield func(*Interrupt, error) bool) bool {
	n := v.steps.Add(1)
	if every := uint64(v.Config.GCEvery); v.collector != nil && every > 0 && n%every == 0 {
		v.collector.Trigger()
	}
	if interval := uint64(v.Config.SafePointInterval); interval > 0 && n%interval == 0 {
		if !yield(InterruptSafePoint, nil) {
			return false
		}
	}
	return true
}

type stepResult struct {
	next   int
	callee *Function
	ret    bool
}

// step executes one instruction atomically with respect to the collector.
// A call to a heap function is returned in callee and run by the caller
// after the lock is released.
func (v *VM) step(fn *Function, pc int, inst OpCode) (res stepResult, err error) {
	v.world.RLock()
	defer v.world.RUnlock()

	res.next = pc + 1

	switch op := inst.Op(); op {

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		lhs, rhs, err := v.Stack.Pop2()
		if err != nil {
			return res, err
		}
		value, err := arith(op, lhs, rhs)
		if err != nil {
			return res, err
		}
		v.Stack.Push(value)

	case OpNeg:
		operand, err := v.Stack.Pop()
		if err != nil {
			return res, err
		}
		switch x := operand.(type) {
		case Int64:
			v.Stack.Push(-x)
		case Float64:
			v.Stack.Push(-x)
		default:
			return res, mismatch(operand)
		}

	case OpNot:
		operand, err := v.Stack.Pop()
		if err != nil {
			return res, err
		}
		b, ok := operand.(Bool)
		if !ok {
			return res, mismatch(operand)
		}
		v.Stack.Push(!b)

	case OpAnd, OpOr:
		lhs, rhs, err := v.Stack.Pop2()
		if err != nil {
			return res, err
		}
		l, lok := lhs.(Bool)
		r, rok := rhs.(Bool)
		if !lok || !rok {
			return res, mismatch(lhs, rhs)
		}
		if op == OpAnd {
			v.Stack.Push(l && r)
		} else {
			v.Stack.Push(l || r)
		}

	case OpEq, OpNeq:
		lhs, rhs, err := v.Stack.Pop2()
		if err != nil {
			return res, err
		}
		eq, err := Equal(lhs, rhs)
		if err != nil {
			return res, err
		}
		v.Stack.Push(Bool(eq == (op == OpEq)))

	case OpLt, OpGt, OpLte, OpGte:
		lhs, rhs, err := v.Stack.Pop2()
		if err != nil {
			return res, err
		}
		c, err := Compare(lhs, rhs)
		if err != nil {
			return res, err
		}
		var b bool
		switch op {
		case OpLt:
			b = c < 0
		case OpGt:
			b = c > 0
		case OpLte:
			b = c <= 0
		case OpGte:
			b = c >= 0
		}
		v.Stack.Push(Bool(b))

	case OpPushInt:
		c, err := fn.constant(inst.Arg())
		if err != nil {
			return res, err
		}
		i, ok := c.(int64)
		if !ok {
			return res, fmt.Errorf("%w: constant %d is %T, want int64", ErrBadOperand, inst.Arg(), c)
		}
		v.Stack.Push(Int64(i))

	case OpPushFloat:
		c, err := fn.constant(inst.Arg())
		if err != nil {
			return res, err
		}
		f, ok := c.(float64)
		if !ok {
			return res, fmt.Errorf("%w: constant %d is %T, want float64", ErrBadOperand, inst.Arg(), c)
		}
		v.Stack.Push(Float64(f))

	case OpPushString:
		c, err := fn.constant(inst.Arg())
		if err != nil {
			return res, err
		}
		s, ok := c.(string)
		if !ok {
			return res, fmt.Errorf("%w: constant %d is %T, want string", ErrBadOperand, inst.Arg(), c)
		}
		v.Stack.Push(v.Heap.Alloc(String(s)))

	case OpPushBool:
		v.Stack.Push(Bool(inst.Arg() != 0))

	case OpPushNull:
		v.Stack.Push(Null{})

	case OpPushObject:
		v.Stack.Push(v.Heap.Alloc(NewObject()))

	case OpPushList:
		v.Stack.Push(v.Heap.Alloc(&List{}))

	case OpFunction:
		c, err := fn.constant(inst.Arg())
		if err != nil {
			return res, err
		}
		body, ok := c.(*Function)
		if !ok {
			return res, fmt.Errorf("%w: constant %d is %T, want *Function", ErrBadOperand, inst.Arg(), c)
		}
		v.Stack.Push(v.Heap.Alloc(body))

	case OpStore:
		value, err := v.Stack.Pop()
		if err != nil {
			return res, err
		}
		if err := v.Store.Set(inst.Arg(), value); err != nil {
			return res, err
		}

	case OpLoad:
		value, err := v.Store.Get(inst.Arg())
		if err != nil {
			return res, err
		}
		v.Stack.Push(value)

	case OpJump:
		target, err := jumpTarget(pc, inst.Arg())
		if err != nil {
			return res, err
		}
		res.next = target

	case OpJumpIfFalse:
		cond, err := v.Stack.Pop()
		if err != nil {
			return res, err
		}
		b, ok := cond.(Bool)
		if !ok {
			return res, mismatch(cond)
		}
		if !b {
			target, err := jumpTarget(pc, inst.Arg())
			if err != nil {
				return res, err
			}
			res.next = target
		}

	case OpCall:
		callee, err := v.Stack.Pop()
		if err != nil {
			return res, err
		}
		switch c := callee.(type) {
		case Address:
			payload, err := v.Heap.Deref(c)
			if err != nil {
				return res, err
			}
			body, ok := payload.(*Function)
			if !ok {
				return res, withKind(payload, fmt.Errorf("%w: calling %s", ErrTypeMismatch, KindOf(payload)))
			}
			res.callee = body
		case *NativeFunc:
			if err := c.Call(v); err != nil {
				return res, err
			}
		default:
			return res, mismatch(callee)
		}

	case OpReturn:
		res.ret = true

	case OpListAccess:
		list, index, err := v.Stack.Pop2()
		if err != nil {
			return res, err
		}
		i, ok := index.(Int64)
		if !ok {
			return res, mismatch(list, index)
		}
		addr, ok := list.(Address)
		if !ok {
			return res, mismatch(list, index)
		}
		var elem Sized
		if err := withList(v, addr, func(l *List) error {
			if err := checkIndex(i, len(l.Elements)); err != nil {
				return err
			}
			elem = l.Elements[i]
			return nil
		}); err != nil {
			return res, err
		}
		v.Stack.Push(elem)

	case OpPropertyLoad:
		receiver, nameAddr, err := v.Stack.Pop2()
		if err != nil {
			return res, err
		}
		name, err := v.StringAt(nameAddr)
		if err != nil {
			return res, err
		}
		recv, ok := receiver.(Address)
		if !ok {
			return res, withKind(receiver, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, name, KindOf(receiver)))
		}
		payload, err := v.Heap.Deref(recv)
		if err != nil {
			return res, err
		}
		table, ok := methodsOf(payload)
		if !ok {
			return res, withKind(payload, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, name, KindOf(payload)))
		}
		method, ok := table.Bind(name, recv)
		if !ok {
			return res, withKind(payload, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, name, KindOf(payload)))
		}
		v.Stack.Push(method)

	case OpDup:
		value, err := v.Stack.Pop()
		if err != nil {
			return res, err
		}
		v.Stack.Push(value)
		v.Stack.Push(value)

	case OpPop:
		if _, err := v.Stack.Pop(); err != nil {
			return res, err
		}

	default:
		return res, fmt.Errorf("%w: unknown opcode %d", ErrBadOperand, uint32(op))

	}

	return res, nil
}

func jumpTarget(pc, offset int) (int, error) {
	target := pc + offset
	if target < 0 {
		return 0, fmt.Errorf("%w: jump target %d", ErrIndexOutOfRange, target)
	}
	return target, nil
}

func arith(op OpCode, lhs, rhs Sized) (Sized, error) {
	switch l := lhs.(type) {

	case Int64:
		r, ok := rhs.(Int64)
		if !ok {
			break
		}
		switch op {
		case OpAdd:
			return l + r, nil
		case OpSub:
			return l - r, nil
		case OpMul:
			return l * r, nil
		case OpDiv:
			if r == 0 {
				return nil, withKind(r, ErrDivisionByZero)
			}
			return l / r, nil
		case OpMod:
			if r == 0 {
				return nil, withKind(r, ErrDivisionByZero)
			}
			return l % r, nil
		}

	case Float64:
		r, ok := rhs.(Float64)
		if !ok {
			break
		}
		switch op {
		case OpAdd:
			return l + r, nil
		case OpSub:
			return l - r, nil
		case OpMul:
			return l * r, nil
		case OpDiv:
			return l / r, nil
		case OpMod:
			return Float64(math.Mod(float64(l), float64(r))), nil
		}

	}
	return nil, mismatch(lhs, rhs)
}
