package debugs

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/reusee/heapvm/hvm"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("cbor enc mode: %w", err))
	}
	cborEncMode = em
}

type HeapDump struct {
	Steps uint64      `cbor:"1,keyasint"`
	Stack []any       `cbor:"2,keyasint"`
	Store map[int]any `cbor:"3,keyasint"`
	Heap  []HeapSlot  `cbor:"4,keyasint"`
}

type HeapSlot struct {
	Kind  string `cbor:"1,keyasint"`
	Value any    `cbor:"2,keyasint,omitempty"`
}

func NewHeapDump(vm *hvm.VM) *HeapDump {
	dump := &HeapDump{
		Steps: vm.Steps(),
		Stack: make([]any, 0),
		Store: make(map[int]any),
	}
	for _, v := range vm.Stack.Values() {
		dump.Stack = append(dump.Stack, Plain(v))
	}
	for i, v := range vm.Store.Values() {
		if _, ok := v.(hvm.Null); ok {
			continue
		}
		dump.Store[i] = Plain(v)
	}
	for _, payload := range vm.Heap.Values() {
		dump.Heap = append(dump.Heap, HeapSlot{
			Kind:  hvm.KindOf(payload).String(),
			Value: PlainPayload(payload),
		})
	}
	return dump
}

// DumpHeap writes the heap, stack and store of vm as CBOR.
func DumpHeap(w io.Writer, vm *hvm.VM) error {
	return cborEncMode.NewEncoder(w).Encode(NewHeapDump(vm))
}

func ReadHeapDump(r io.Reader) (*HeapDump, error) {
	var dump HeapDump
	if err := cbor.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("read heap dump: %w", err)
	}
	return &dump, nil
}
