package hvm

import (
	"fmt"
	"math"
)

// Slots resolves variable names to store slots ahead of execution.
// Nested function builders share one Slots: the store is flat.
type Slots struct {
	index map[string]int
	names []string
}

func NewSlots() *Slots {
	return &Slots{
		index: make(map[string]int),
	}
}

// Resolve returns the slot of name, assigning the next free one on first use.
func (s *Slots) Resolve(name string) int {
	if slot, ok := s.index[name]; ok {
		return slot
	}
	slot := len(s.names)
	s.index[name] = slot
	s.names = append(s.names, name)
	return slot
}

func (s *Slots) Lookup(name string) (int, bool) {
	slot, ok := s.index[name]
	return slot, ok
}

func (s *Slots) Len() int {
	return len(s.names)
}

func (s *Slots) Names() []string {
	return append([]string(nil), s.names...)
}

// Builder assembles a Function.
type Builder struct {
	name      string
	code      []OpCode
	constants []any
	constMap  map[any]int
	slots     *Slots
	err       error
}

func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		constMap: make(map[any]int),
		slots:    NewSlots(),
	}
}

// Sub returns a builder for a nested function sharing the slots of b.
func (b *Builder) Sub(name string) *Builder {
	return &Builder{
		name:     name,
		constMap: make(map[any]int),
		slots:    b.slots,
	}
}

func (b *Builder) Slots() *Slots {
	return b.slots
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// floatKey identifies a float constant by its bits, keeping -0 and +0 apart.
type floatKey uint64

func (b *Builder) addConst(val any) int {
	key := val
	dedupe := true
	switch v := val.(type) {
	case float64:
		key = floatKey(math.Float64bits(v))
	case *Function:
		dedupe = false
	}
	if dedupe {
		if idx, ok := b.constMap[key]; ok {
			return idx
		}
	}
	idx := len(b.constants)
	b.constants = append(b.constants, val)
	if dedupe {
		b.constMap[key] = idx
	}
	return idx
}

// IP returns the index the next instruction will get.
func (b *Builder) IP() int {
	return len(b.code)
}

// Emit appends op and returns its index.
func (b *Builder) Emit(op OpCode) int {
	b.code = append(b.code, op)
	return len(b.code) - 1
}

func (b *Builder) emitArg(op OpCode, arg int) int {
	if arg < MinOperand || arg > MaxOperand {
		b.fail(fmt.Errorf("%w: %s operand %d out of range", ErrBadOperand, op, arg))
	}
	return b.Emit(op.With(arg))
}

func (b *Builder) PushInt(n int64) *Builder {
	b.emitArg(OpPushInt, b.addConst(n))
	return b
}

func (b *Builder) PushFloat(f float64) *Builder {
	b.emitArg(OpPushFloat, b.addConst(f))
	return b
}

func (b *Builder) PushString(s string) *Builder {
	b.emitArg(OpPushString, b.addConst(s))
	return b
}

func (b *Builder) PushBool(v bool) *Builder {
	arg := 0
	if v {
		arg = 1
	}
	b.emitArg(OpPushBool, arg)
	return b
}

func (b *Builder) PushObject() *Builder {
	b.Emit(OpPushObject)
	return b
}

func (b *Builder) PushList() *Builder {
	b.Emit(OpPushList)
	return b
}

func (b *Builder) Function(fn *Function) *Builder {
	b.emitArg(OpFunction, b.addConst(fn))
	return b
}

// Op appends operand-less opcodes.
func (b *Builder) Op(ops ...OpCode) *Builder {
	for _, op := range ops {
		if HasOperand(op) {
			b.fail(fmt.Errorf("%w: %s needs an operand", ErrBadOperand, op))
		}
		b.Emit(op)
	}
	return b
}

func (b *Builder) Store(name string) *Builder {
	return b.StoreSlot(b.slots.Resolve(name))
}

func (b *Builder) Load(name string) *Builder {
	return b.LoadSlot(b.slots.Resolve(name))
}

func (b *Builder) StoreSlot(slot int) *Builder {
	b.emitArg(OpStore, slot)
	return b
}

func (b *Builder) LoadSlot(slot int) *Builder {
	b.emitArg(OpLoad, slot)
	return b
}

// Jump emits a jump with a relative offset.
func (b *Builder) Jump(offset int) *Builder {
	b.emitArg(OpJump, offset)
	return b
}

func (b *Builder) JumpIfFalse(offset int) *Builder {
	b.emitArg(OpJumpIfFalse, offset)
	return b
}

// JumpTo emits a jump to an already known instruction index.
func (b *Builder) JumpTo(target int) *Builder {
	return b.Jump(target - b.IP())
}

// Forward emits a jump to be resolved later with Patch and returns its index.
func (b *Builder) Forward(op OpCode) int {
	if op != OpJump && op != OpJumpIfFalse {
		b.fail(fmt.Errorf("%w: %s is not a jump", ErrBadOperand, op))
	}
	return b.Emit(op)
}

// Patch points the jump at ip to target.
func (b *Builder) Patch(ip int, target int) {
	offset := target - ip
	if offset < MinOperand || offset > MaxOperand {
		b.fail(fmt.Errorf("%w: jump offset %d out of range", ErrBadOperand, offset))
	}
	op := b.code[ip].Op()
	b.code[ip] = op.With(offset)
}

// Build returns the assembled function, or the first error met while assembling.
func (b *Builder) Build() (*Function, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.constants) > MaxOperand+1 {
		return nil, fmt.Errorf("%w: %d constants", ErrBadOperand, len(b.constants))
	}
	return &Function{
		Name:      b.name,
		Code:      b.code,
		Constants: b.constants,
	}, nil
}

// MustBuild is Build for statically known programs.
func (b *Builder) MustBuild() *Function {
	fn, err := b.Build()
	if err != nil {
		panic(err)
	}
	return fn
}
