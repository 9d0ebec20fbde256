package hvm

// Function is an ordered opcode sequence with its constant pool.
// Constants hold int64, float64, string and *Function values.
type Function struct {
	Name      string
	Code      []OpCode
	Constants []any
}

func (f *Function) constant(idx int) (any, error) {
	if idx < 0 || idx >= len(f.Constants) {
		return nil, ErrBadOperand
	}
	return f.Constants[idx], nil
}
