package hvm

import "fmt"

// OpCode is an instruction: the opcode in the low byte, a signed 24-bit operand above it.
type OpCode uint32

const (
	OpAdd OpCode = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpAnd
	OpOr
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLte
	OpGte

	OpPushInt    // operand: constant index of an int64
	OpPushFloat  // operand: constant index of a float64
	OpPushString // operand: constant index of a string
	OpPushBool   // operand: 0 or 1
	OpPushNull
	OpPushObject
	OpPushList

	OpFunction // operand: constant index of a *Function

	OpStore // operand: slot
	OpLoad  // operand: slot

	OpJump        // operand: offset from the jump itself
	OpJumpIfFalse // operand: offset from the jump itself

	OpCall
	OpReturn

	OpListAccess
	OpPropertyLoad
	OpDup
	OpPop

	numOps
)

const (
	MaxOperand = 1<<23 - 1
	MinOperand = -1 << 23
)

func (o OpCode) With(arg int) OpCode {
	return o | (OpCode(arg) << 8)
}

func (o OpCode) Op() OpCode {
	return o & 0xff
}

func (o OpCode) Arg() int {
	return int(int32(o) >> 8)
}

// Valid reports whether the low byte names a known opcode.
func (o OpCode) Valid() bool {
	op := o.Op()
	return op > 0 && op < numOps
}

var opNames = [...]string{
	OpAdd:          "Add",
	OpSub:          "Sub",
	OpMul:          "Mul",
	OpDiv:          "Div",
	OpMod:          "Mod",
	OpNeg:          "Neg",
	OpNot:          "Not",
	OpAnd:          "And",
	OpOr:           "Or",
	OpEq:           "Eq",
	OpNeq:          "Neq",
	OpLt:           "Lt",
	OpGt:           "Gt",
	OpLte:          "Lte",
	OpGte:          "Gte",
	OpPushInt:      "PushInt",
	OpPushFloat:    "PushFloat",
	OpPushString:   "PushString",
	OpPushBool:     "PushBool",
	OpPushNull:     "PushNull",
	OpPushObject:   "PushObject",
	OpPushList:     "PushList",
	OpFunction:     "Function",
	OpStore:        "Store",
	OpLoad:         "Load",
	OpJump:         "Jump",
	OpJumpIfFalse:  "JumpIfFalse",
	OpCall:         "Call",
	OpReturn:       "Return",
	OpListAccess:   "ListAccess",
	OpPropertyLoad: "PropertyLoad",
	OpDup:          "Dup",
	OpPop:          "Pop",
}

func (o OpCode) String() string {
	op := o.Op()
	if !o.Valid() {
		return fmt.Sprintf("OpCode(%d)", uint32(op))
	}
	if HasOperand(op) {
		return fmt.Sprintf("%s %d", opNames[op], o.Arg())
	}
	return opNames[op]
}

// HasOperand reports whether op reads its upper 24 bits.
func HasOperand(op OpCode) bool {
	switch op.Op() {
	case OpPushInt, OpPushFloat, OpPushString, OpPushBool,
		OpFunction, OpStore, OpLoad, OpJump, OpJumpIfFalse:
		return true
	}
	return false
}
