package hvm

// Object maps names to Sized values. Unset fields are simply absent.
type Object struct {
	Fields map[string]Sized
}

func NewObject() *Object {
	return &Object{
		Fields: make(map[string]Sized),
	}
}

func (o *Object) Copy() *Object {
	fields := make(map[string]Sized, len(o.Fields))
	for k, v := range o.Fields {
		fields[k] = v
	}
	return &Object{
		Fields: fields,
	}
}
