package debugs

import (
	"github.com/reusee/heapvm/hvm"
)

// Plain converts a stack or store value to a plain Go value.
// Addresses and natives become single-key maps so they stay distinguishable.
func Plain(v hvm.Sized) any {
	switch v := v.(type) {
	case hvm.Int64:
		return int64(v)
	case hvm.Float64:
		return float64(v)
	case hvm.Bool:
		return bool(v)
	case hvm.Address:
		return map[string]any{
			"addr": int(v),
		}
	case *hvm.NativeFunc:
		return map[string]any{
			"native": v.Name,
		}
	}
	return nil
}

// PlainPayload converts a heap payload to a plain Go value.
func PlainPayload(v hvm.Unsized) any {
	switch v := v.(type) {
	case hvm.String:
		return string(v)
	case *hvm.List:
		elems := make([]any, 0, len(v.Elements))
		for _, elem := range v.Elements {
			elems = append(elems, Plain(elem))
		}
		return elems
	case *hvm.Object:
		fields := make(map[string]any, len(v.Fields))
		for name, value := range v.Fields {
			fields[name] = Plain(value)
		}
		return fields
	case *hvm.Function:
		code := make([]string, 0, len(v.Code))
		for _, inst := range v.Code {
			code = append(code, inst.String())
		}
		return map[string]any{
			"function": v.Name,
			"code":     code,
		}
	}
	return nil
}
