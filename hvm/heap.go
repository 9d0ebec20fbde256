package hvm

import (
	"fmt"
	"iter"
	"sync"
)

// Heap is an append-only array of Unsized values.
// Interior slots are never reused; only a trailing run of Empty slots is removed.
type Heap struct {
	mu     sync.Mutex
	values []Unsized
}

func NewHeap() *Heap {
	return &Heap{}
}

func (h *Heap) Alloc(value Unsized) Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, value)
	return Address(len(h.values) - 1)
}

// Get returns the value at addr, Empty included.
func (h *Heap) Get(addr Address) (Unsized, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.get(addr)
}

func (h *Heap) get(addr Address) (Unsized, error) {
	if addr < 0 || int(addr) >= len(h.values) {
		return nil, withKind(addr, fmt.Errorf("%w: address %d, heap length %d", ErrIndexOutOfRange, addr, len(h.values)))
	}
	return h.values[addr], nil
}

// Deref returns the live value at addr. Empty slots fail with ErrUnresolvedAddress.
func (h *Heap) Deref(addr Address) (Unsized, error) {
	value, err := h.Get(addr)
	if err != nil {
		return nil, err
	}
	if _, ok := value.(Empty); ok {
		return nil, withKind(value, fmt.Errorf("%w: address %d is empty", ErrUnresolvedAddress, addr))
	}
	return value, nil
}

// Mutate calls fn with the live value at addr while holding the heap lock.
// fn must not call other Heap methods.
func (h *Heap) Mutate(addr Address, fn func(Unsized) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	value, err := h.get(addr)
	if err != nil {
		return err
	}
	if _, ok := value.(Empty); ok {
		return withKind(value, fmt.Errorf("%w: address %d is empty", ErrUnresolvedAddress, addr))
	}
	return fn(value)
}

func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

// All iterates over a copy of the slots taken when iteration starts.
func (h *Heap) All() iter.Seq2[Address, Unsized] {
	return func(yield func(Address, Unsized) bool) {
		for i, value := range h.Values() {
			if !yield(Address(i), value) {
				return
			}
		}
	}
}

func (h *Heap) Values() []Unsized {
	h.mu.Lock()
	defer h.mu.Unlock()
	ret := make([]Unsized, len(h.values))
	copy(ret, h.values)
	return ret
}

// TrimTail truncates the trailing run of Empty slots and returns how many were removed.
func (h *Heap) TrimTail() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trimTail()
}

func (h *Heap) trimTail() int {
	n := len(h.values)
	for n > 0 {
		if _, ok := h.values[n-1].(Empty); !ok {
			break
		}
		n--
	}
	trimmed := len(h.values) - n
	clear(h.values[n:])
	h.values = h.values[:n]
	return trimmed
}
