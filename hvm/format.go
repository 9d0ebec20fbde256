package hvm

import (
	"slices"
	"strconv"
	"strings"
)

const maxFormatDepth = 8

// Format renders a value for display, following addresses into the heap.
func (v *VM) Format(value Sized) string {
	var b strings.Builder
	v.format(&b, value, 0)
	return b.String()
}

func (v *VM) format(b *strings.Builder, value Sized, depth int) {
	switch x := value.(type) {
	case Int64:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case Float64:
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(x)))
	case Null:
		b.WriteString("null")
	case *NativeFunc:
		b.WriteString("<native " + x.Name + ">")
	case Address:
		if depth >= maxFormatDepth {
			b.WriteString("...")
			return
		}
		payload, err := v.Heap.Get(x)
		if err != nil {
			b.WriteString("<bad address " + strconv.Itoa(int(x)) + ">")
			return
		}
		v.formatPayload(b, payload, depth+1)
	default:
		b.WriteString("<invalid>")
	}
}

func (v *VM) formatPayload(b *strings.Builder, payload Unsized, depth int) {
	switch x := payload.(type) {
	case String:
		b.WriteString(string(x))
	case *List:
		b.WriteByte('[')
		for i, elem := range slices.Clone(x.Elements) {
			if i > 0 {
				b.WriteString(", ")
			}
			v.format(b, elem, depth)
		}
		b.WriteByte(']')
	case *Object:
		keys := make([]string, 0, len(x.Fields))
		for k := range x.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			v.format(b, x.Fields[k], depth)
		}
		b.WriteByte('}')
	case *Function:
		b.WriteString("<function " + x.Name + ">")
	case Empty:
		b.WriteString("<empty>")
	}
}
