// Package hvmcodec reads and writes programs as streams of 64-bit big-endian words.
package hvmcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/reusee/heapvm/hvm"
)

const wordSize = 8

var Magic = [wordSize]byte{'H', 'V', 'M', 0, 0, 0, 0, 1}

var (
	ErrBadMagic   = errors.New("bad magic")
	ErrUnknownTag = errors.New("unknown tag")
	ErrTruncated  = errors.New("truncated input")
)

// maxDepth bounds Function nesting in decoded input.
const maxDepth = 256

type decoder struct {
	data []byte
	pos  int
}

func Decode(data []byte) (*hvm.Function, error) {
	d := &decoder{
		data: data,
	}
	if len(data) < wordSize {
		return nil, ErrTruncated
	}
	if [wordSize]byte(data[:wordSize]) != Magic {
		return nil, ErrBadMagic
	}
	d.pos = wordSize
	fn, err := d.readFunction(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("%d trailing bytes", len(d.data)-d.pos)
	}
	return fn, nil
}

func DecodeReader(r io.Reader) (*hvm.Function, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (d *decoder) readWord() (uint64, error) {
	if len(d.data)-d.pos < wordSize {
		return 0, fmt.Errorf("%w: at byte %d", ErrTruncated, d.pos)
	}
	w := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += wordSize
	return w, nil
}

func (d *decoder) readInt() (int, error) {
	w, err := d.readWord()
	if err != nil {
		return 0, err
	}
	return int(int64(w)), nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readWord()
	if err != nil {
		return "", err
	}
	padded := (n + wordSize - 1) / wordSize * wordSize
	if n > uint64(len(d.data)-d.pos) || padded > uint64(len(d.data)-d.pos) {
		return "", fmt.Errorf("%w: string of %d bytes at byte %d", ErrTruncated, n, d.pos)
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(padded)
	return s, nil
}

func (d *decoder) readFunction(depth int) (*hvm.Function, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("functions nested deeper than %d", maxDepth)
	}
	name, err := d.readString()
	if err != nil {
		return nil, err
	}
	count, err := d.readWord()
	if err != nil {
		return nil, err
	}
	// every instruction takes at least one word
	if count > uint64(len(d.data)-d.pos)/wordSize {
		return nil, fmt.Errorf("%w: %d instructions at byte %d", ErrTruncated, count, d.pos)
	}

	b := hvm.NewBuilder(name)
	for range count {
		if err := d.readInstruction(b, depth); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return b.Build()
}

func (d *decoder) readInstruction(b *hvm.Builder, depth int) error {
	pos := d.pos
	tag, err := d.readWord()
	if err != nil {
		return err
	}
	op := hvm.OpCode(tag)
	if tag > math.MaxUint8 || !op.Valid() {
		return fmt.Errorf("%w: %d at byte %d", ErrUnknownTag, tag, pos)
	}

	switch op {

	case hvm.OpPushInt:
		w, err := d.readWord()
		if err != nil {
			return err
		}
		b.PushInt(int64(w))

	case hvm.OpPushFloat:
		w, err := d.readWord()
		if err != nil {
			return err
		}
		b.PushFloat(math.Float64frombits(w))

	case hvm.OpPushBool:
		w, err := d.readWord()
		if err != nil {
			return err
		}
		b.PushBool(w != 0)

	case hvm.OpPushString:
		s, err := d.readString()
		if err != nil {
			return err
		}
		b.PushString(s)

	case hvm.OpStore, hvm.OpLoad, hvm.OpJump, hvm.OpJumpIfFalse:
		arg, err := d.readInt()
		if err != nil {
			return err
		}
		switch op {
		case hvm.OpStore:
			b.StoreSlot(arg)
		case hvm.OpLoad:
			b.LoadSlot(arg)
		case hvm.OpJump:
			b.Jump(arg)
		case hvm.OpJumpIfFalse:
			b.JumpIfFalse(arg)
		}

	case hvm.OpFunction:
		fn, err := d.readFunction(depth + 1)
		if err != nil {
			return err
		}
		b.Function(fn)

	default:
		b.Op(op)

	}
	return nil
}

type encoder struct {
	w   io.Writer
	buf [wordSize]byte
}

func Encode(w io.Writer, fn *hvm.Function) error {
	e := &encoder{
		w: w,
	}
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	return e.writeFunction(fn)
}

func (e *encoder) writeWord(w uint64) error {
	binary.BigEndian.PutUint64(e.buf[:], w)
	_, err := e.w.Write(e.buf[:])
	return err
}

func (e *encoder) writeString(s string) error {
	if err := e.writeWord(uint64(len(s))); err != nil {
		return err
	}
	if _, err := io.WriteString(e.w, s); err != nil {
		return err
	}
	if pad := (wordSize - len(s)%wordSize) % wordSize; pad > 0 {
		var zeros [wordSize]byte
		if _, err := e.w.Write(zeros[:pad]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) writeFunction(fn *hvm.Function) error {
	if err := e.writeString(fn.Name); err != nil {
		return err
	}
	if err := e.writeWord(uint64(len(fn.Code))); err != nil {
		return err
	}
	for pc, inst := range fn.Code {
		if err := e.writeInstruction(fn, inst); err != nil {
			return fmt.Errorf("%s:%d: %w", fn.Name, pc, err)
		}
	}
	return nil
}

func constant[T any](fn *hvm.Function, idx int) (T, error) {
	var zero T
	if idx < 0 || idx >= len(fn.Constants) {
		return zero, fmt.Errorf("%w: constant %d", hvm.ErrBadOperand, idx)
	}
	v, ok := fn.Constants[idx].(T)
	if !ok {
		return zero, fmt.Errorf("%w: constant %d is %T", hvm.ErrBadOperand, idx, fn.Constants[idx])
	}
	return v, nil
}

func (e *encoder) writeInstruction(fn *hvm.Function, inst hvm.OpCode) error {
	op := inst.Op()
	if !op.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTag, uint32(op))
	}
	if err := e.writeWord(uint64(op)); err != nil {
		return err
	}

	switch op {

	case hvm.OpPushInt:
		n, err := constant[int64](fn, inst.Arg())
		if err != nil {
			return err
		}
		return e.writeWord(uint64(n))

	case hvm.OpPushFloat:
		f, err := constant[float64](fn, inst.Arg())
		if err != nil {
			return err
		}
		return e.writeWord(math.Float64bits(f))

	case hvm.OpPushBool:
		var w uint64
		if inst.Arg() != 0 {
			w = 1
		}
		return e.writeWord(w)

	case hvm.OpPushString:
		s, err := constant[string](fn, inst.Arg())
		if err != nil {
			return err
		}
		return e.writeString(s)

	case hvm.OpStore, hvm.OpLoad, hvm.OpJump, hvm.OpJumpIfFalse:
		return e.writeWord(uint64(int64(inst.Arg())))

	case hvm.OpFunction:
		body, err := constant[*hvm.Function](fn, inst.Arg())
		if err != nil {
			return err
		}
		return e.writeFunction(body)

	}
	return nil
}
