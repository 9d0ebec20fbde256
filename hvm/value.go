package hvm

import (
	"fmt"
)

// Sized is a value that lives on the operand stack or in a store slot.
// The set of implementations is closed: Int64, Float64, Bool, Address,
// *NativeFunc and Null.
type Sized interface {
	isSized()
}

// Unsized is a value that lives in a heap slot.
// The set of implementations is closed: String, *List, *Object, *Function and Empty.
type Unsized interface {
	isUnsized()
}

type Int64 int64

type Float64 float64

type Bool bool

// Address is the index of a heap slot.
type Address int

type Null struct{}

func (Int64) isSized() {}
func (Float64) isSized() {}
func (Bool) isSized() {}
func (Address) isSized() {}
func (Null) isSized() {}
func (*NativeFunc) isSized() {}

type String string

// Empty is the tombstone written into swept heap slots.
type Empty struct{}

func (String) isUnsized() {}
func (*List) isUnsized() {}
func (*Object) isUnsized() {}
func (*Function) isUnsized() {}
func (Empty) isUnsized() {}

// gob refuses types without exported fields, so the empty structs encode themselves.

func (Null) GobEncode() ([]byte, error) {
	return nil, nil
}

func (*Null) GobDecode([]byte) error {
	return nil
}

func (Empty) GobEncode() ([]byte, error) {
	return nil, nil
}

func (*Empty) GobDecode([]byte) error {
	return nil
}

type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindAddress
	KindNative
	KindNull
	KindString
	KindList
	KindObject
	KindFunction
	KindEmpty
)

var kindNames = [...]string{
	KindInvalid:  "Invalid",
	KindInt64:    "Int64",
	KindFloat64:  "Float64",
	KindBool:     "Bool",
	KindAddress:  "Address",
	KindNative:   "Native",
	KindNull:     "Null",
	KindString:   "String",
	KindList:     "List",
	KindObject:   "Object",
	KindFunction: "Function",
	KindEmpty:    "Empty",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// KindOf reports the kind of a Sized or Unsized value.
func KindOf(v any) Kind {
	switch v.(type) {
	case Int64:
		return KindInt64
	case Float64:
		return KindFloat64
	case Bool:
		return KindBool
	case Address:
		return KindAddress
	case *NativeFunc:
		return KindNative
	case Null:
		return KindNull
	case String:
		return KindString
	case *List:
		return KindList
	case *Object:
		return KindObject
	case *Function:
		return KindFunction
	case Empty:
		return KindEmpty
	}
	return KindInvalid
}

// Equal compares two values of the same variant.
func Equal(a, b Sized) (bool, error) {
	switch a := a.(type) {
	case Int64:
		if b, ok := b.(Int64); ok {
			return a == b, nil
		}
	case Float64:
		if b, ok := b.(Float64); ok {
			return a == b, nil
		}
	case Bool:
		if b, ok := b.(Bool); ok {
			return a == b, nil
		}
	case Address:
		if b, ok := b.(Address); ok {
			return a == b, nil
		}
	case *NativeFunc:
		if b, ok := b.(*NativeFunc); ok {
			return a == b, nil
		}
	case Null:
		if _, ok := b.(Null); ok {
			return true, nil
		}
	}
	return false, mismatch(a, b)
}

// Compare orders two values of the same variant, returning -1, 0 or 1.
// Natives have no order.
func Compare(a, b Sized) (int, error) {
	switch a := a.(type) {
	case Int64:
		if b, ok := b.(Int64); ok {
			return cmpOrdered(a, b), nil
		}
	case Float64:
		if b, ok := b.(Float64); ok {
			return cmpOrdered(a, b), nil
		}
	case Bool:
		if b, ok := b.(Bool); ok {
			switch {
			case a == b:
				return 0, nil
			case !bool(a):
				return -1, nil
			default:
				return 1, nil
			}
		}
	case Address:
		if b, ok := b.(Address); ok {
			return cmpOrdered(a, b), nil
		}
	case Null:
		if _, ok := b.(Null); ok {
			return 0, nil
		}
	}
	return 0, mismatch(a, b)
}

func cmpOrdered[T Int64 | Float64 | Address](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// refs calls fn for every heap address a value holds directly.
func refs(v Sized, fn func(Address)) {
	switch v := v.(type) {
	case Address:
		fn(v)
	case *NativeFunc:
		if v.Bound {
			fn(v.Receiver)
		}
	}
}

// children calls fn for every heap address held by a container payload.
func children(v Unsized, fn func(Address)) {
	switch v := v.(type) {
	case *List:
		for _, elem := range v.Elements {
			refs(elem, fn)
		}
	case *Object:
		for _, value := range v.Fields {
			refs(value, fn)
		}
	}
}
