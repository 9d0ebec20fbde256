package hvm

import (
	"encoding/gob"
	"fmt"
	"sync"
)

// Method is a builtin method body. It works like a NativeFunc with the receiver passed in.
type Method struct {
	Argc    int
	Results int
	Func    func(vm *VM, recv Address) error
}

// MethodTable is a named set of methods. Tables encode by name and are
// resolved against the registry when decoded.
type MethodTable struct {
	Name    string
	Methods map[string]Method
}

var _ gob.GobEncoder = MethodTable{}

var _ gob.GobDecoder = new(MethodTable)

var (
	methodTablesLock sync.RWMutex
	methodTables     = make(map[string]*MethodTable)
)

func RegisterMethodTable(table *MethodTable) {
	methodTablesLock.Lock()
	defer methodTablesLock.Unlock()
	if _, ok := methodTables[table.Name]; ok {
		panic(fmt.Errorf("duplicated method table: %s", table.Name))
	}
	methodTables[table.Name] = table
}

func LookupMethodTable(name string) (*MethodTable, bool) {
	methodTablesLock.RLock()
	defer methodTablesLock.RUnlock()
	table, ok := methodTables[name]
	return table, ok
}

func (t MethodTable) GobEncode() ([]byte, error) {
	return []byte(t.Name), nil
}

func (t *MethodTable) GobDecode(data []byte) error {
	registered, ok := LookupMethodTable(string(data))
	if !ok {
		return fmt.Errorf("method table %s not registered", data)
	}
	*t = *registered
	return nil
}

// Bind returns the method bound to recv as a capability.
func (t *MethodTable) Bind(name string, recv Address) (*NativeFunc, bool) {
	method, ok := t.Methods[name]
	if !ok {
		return nil, false
	}
	return &NativeFunc{
		Name:    t.Name + "." + name,
		Argc:    method.Argc,
		Results: method.Results,
		Func: func(vm *VM) error {
			return method.Func(vm, recv)
		},
		Bound:    true,
		Receiver: recv,
	}, true
}

var (
	ListMethods = &MethodTable{
		Name: "list",
		Methods: map[string]Method{
			"len":  {Argc: 0, Results: 1, Func: listLen},
			"push": {Argc: 1, Results: 0, Func: listPush},
			"pop":  {Argc: 0, Results: 1, Func: listPop},
			"get":  {Argc: 1, Results: 1, Func: listGet},
			"set":  {Argc: 2, Results: 0, Func: listSet},
		},
	}

	StringMethods = &MethodTable{
		Name: "string",
		Methods: map[string]Method{
			"len":    {Argc: 0, Results: 1, Func: stringLen},
			"concat": {Argc: 1, Results: 1, Func: stringConcat},
		},
	}

	ObjectMethods = &MethodTable{
		Name: "object",
		Methods: map[string]Method{
			"get":    {Argc: 1, Results: 1, Func: objectGet},
			"set":    {Argc: 2, Results: 0, Func: objectSet},
			"has":    {Argc: 1, Results: 1, Func: objectHas},
			"delete": {Argc: 1, Results: 0, Func: objectDelete},
			"len":    {Argc: 0, Results: 1, Func: objectLen},
			"copy":   {Argc: 0, Results: 1, Func: objectCopy},
		},
	}
)

func init() {
	RegisterMethodTable(ListMethods)
	RegisterMethodTable(StringMethods)
	RegisterMethodTable(ObjectMethods)
}

// methodsOf returns the table for a receiver payload.
func methodsOf(value Unsized) (*MethodTable, bool) {
	switch value := value.(type) {
	case *List:
		return value.methods(), true
	case String:
		return StringMethods, true
	case *Object:
		return ObjectMethods, true
	}
	return nil, false
}

func popInt(vm *VM) (Int64, error) {
	v, err := vm.Stack.Pop()
	if err != nil {
		return 0, err
	}
	i, ok := v.(Int64)
	if !ok {
		return 0, mismatch(v)
	}
	return i, nil
}

// PopString pops an Address and returns the String it refers to.
func PopString(vm *VM) (string, error) {
	v, err := vm.Stack.Pop()
	if err != nil {
		return "", err
	}
	return vm.StringAt(v)
}

func withList(vm *VM, recv Address, fn func(*List) error) error {
	return vm.Heap.Mutate(recv, func(value Unsized) error {
		l, ok := value.(*List)
		if !ok {
			return withKind(value, fmt.Errorf("%w: receiver is %s", ErrTypeMismatch, KindOf(value)))
		}
		return fn(l)
	})
}

func withObject(vm *VM, recv Address, fn func(*Object) error) error {
	return vm.Heap.Mutate(recv, func(value Unsized) error {
		o, ok := value.(*Object)
		if !ok {
			return withKind(value, fmt.Errorf("%w: receiver is %s", ErrTypeMismatch, KindOf(value)))
		}
		return fn(o)
	})
}

func checkIndex(i Int64, n int) error {
	if i < 0 || int64(i) >= int64(n) {
		return withKind(i, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, n))
	}
	return nil
}

func listLen(vm *VM, recv Address) error {
	var n int
	if err := withList(vm, recv, func(l *List) error {
		n = len(l.Elements)
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(Int64(n))
	return nil
}

func listPush(vm *VM, recv Address) error {
	v, err := vm.Stack.Pop()
	if err != nil {
		return err
	}
	return withList(vm, recv, func(l *List) error {
		l.Elements = append(l.Elements, v)
		return nil
	})
}

func listPop(vm *VM, recv Address) error {
	var v Sized
	if err := withList(vm, recv, func(l *List) error {
		n := len(l.Elements)
		if n == 0 {
			return fmt.Errorf("%w: pop from empty list", ErrIndexOutOfRange)
		}
		v = l.Elements[n-1]
		l.Elements[n-1] = nil
		l.Elements = l.Elements[:n-1]
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(v)
	return nil
}

func listGet(vm *VM, recv Address) error {
	i, err := popInt(vm)
	if err != nil {
		return err
	}
	var v Sized
	if err := withList(vm, recv, func(l *List) error {
		if err := checkIndex(i, len(l.Elements)); err != nil {
			return err
		}
		v = l.Elements[i]
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(v)
	return nil
}

func listSet(vm *VM, recv Address) error {
	idx, v, err := vm.Stack.Pop2()
	if err != nil {
		return err
	}
	i, ok := idx.(Int64)
	if !ok {
		return mismatch(idx)
	}
	return withList(vm, recv, func(l *List) error {
		if err := checkIndex(i, len(l.Elements)); err != nil {
			return err
		}
		l.Elements[i] = v
		return nil
	})
}

func stringLen(vm *VM, recv Address) error {
	s, err := vm.StringAt(recv)
	if err != nil {
		return err
	}
	vm.Stack.Push(Int64(len(s)))
	return nil
}

func stringConcat(vm *VM, recv Address) error {
	other, err := PopString(vm)
	if err != nil {
		return err
	}
	s, err := vm.StringAt(recv)
	if err != nil {
		return err
	}
	vm.Stack.Push(vm.Heap.Alloc(String(s + other)))
	return nil
}

func objectGet(vm *VM, recv Address) error {
	name, err := PopString(vm)
	if err != nil {
		return err
	}
	var v Sized = Null{}
	if err := withObject(vm, recv, func(o *Object) error {
		if field, ok := o.Fields[name]; ok {
			v = field
		}
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(v)
	return nil
}

func objectSet(vm *VM, recv Address) error {
	nameAddr, v, err := vm.Stack.Pop2()
	if err != nil {
		return err
	}
	name, err := vm.StringAt(nameAddr)
	if err != nil {
		return err
	}
	return withObject(vm, recv, func(o *Object) error {
		if o.Fields == nil {
			o.Fields = make(map[string]Sized)
		}
		o.Fields[name] = v
		return nil
	})
}

func objectHas(vm *VM, recv Address) error {
	name, err := PopString(vm)
	if err != nil {
		return err
	}
	var has bool
	if err := withObject(vm, recv, func(o *Object) error {
		_, has = o.Fields[name]
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(Bool(has))
	return nil
}

func objectDelete(vm *VM, recv Address) error {
	name, err := PopString(vm)
	if err != nil {
		return err
	}
	return withObject(vm, recv, func(o *Object) error {
		delete(o.Fields, name)
		return nil
	})
}

func objectLen(vm *VM, recv Address) error {
	var n int
	if err := withObject(vm, recv, func(o *Object) error {
		n = len(o.Fields)
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(Int64(n))
	return nil
}

func objectCopy(vm *VM, recv Address) error {
	var copied *Object
	if err := withObject(vm, recv, func(o *Object) error {
		copied = o.Copy()
		return nil
	}); err != nil {
		return err
	}
	vm.Stack.Push(vm.Heap.Alloc(copied))
	return nil
}
