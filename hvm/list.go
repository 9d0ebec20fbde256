package hvm

// List is an ordered sequence of Sized values.
// A nil Methods means the builtin list methods.
type List struct {
	Elements []Sized
	Methods  *MethodTable
}

func (l *List) methods() *MethodTable {
	if l.Methods != nil {
		return l.Methods
	}
	return ListMethods
}
