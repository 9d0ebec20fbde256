package hvm

import (
	"fmt"
	"time"
)

type MarkMode uint8

const (
	// MarkFull traces the transitive closure of the roots through container contents.
	MarkFull MarkMode = iota
	// MarkShallow marks the roots and the addresses held directly by root
	// containers, without tracing further. Values reachable only through a
	// nested container are swept.
	MarkShallow
)

func (m MarkMode) String() string {
	switch m {
	case MarkFull:
		return "full"
	case MarkShallow:
		return "shallow"
	}
	return fmt.Sprintf("MarkMode(%d)", m)
}

func ParseMarkMode(s string) (MarkMode, error) {
	switch s {
	case "", "full":
		return MarkFull, nil
	case "shallow":
		return MarkShallow, nil
	}
	return 0, fmt.Errorf("unknown mark mode: %s", s)
}

type CollectStats struct {
	Roots    int
	Marked   int
	Swept    int
	Trimmed  int
	HeapLen  int
	Duration time.Duration
}

// Collect runs one mark, sweep and trim pass over the given state.
// Locks are taken heap first, then stack, then store, and held for the whole pass.
// Callers must make sure the mutator is between instructions; VM.Collect does that.
func Collect(heap *Heap, stack *Stack, store *Store, mode MarkMode) (stats CollectStats, err error) {
	start := time.Now()
	heap.mu.Lock()
	defer heap.mu.Unlock()
	stack.mu.Lock()
	defer stack.mu.Unlock()
	store.mu.Lock()
	defer store.mu.Unlock()

	marked, stats, err := mark(heap.values, [][]Sized{stack.values, store.slots}, mode)
	if err != nil {
		return stats, err
	}

	for i, value := range heap.values {
		if marked[i] {
			continue
		}
		if _, ok := value.(Empty); ok {
			continue
		}
		heap.values[i] = Empty{}
		stats.Swept++
	}

	stats.Trimmed = heap.trimTail()
	stats.HeapLen = len(heap.values)
	stats.Duration = time.Since(start)
	return stats, nil
}

func mark(values []Unsized, rootSets [][]Sized, mode MarkMode) (marked []bool, stats CollectStats, err error) {
	marked = make([]bool, len(values))
	var queue []Address

	visit := func(addr Address) {
		if err != nil {
			return
		}
		if addr < 0 || int(addr) >= len(values) {
			err = withKind(addr, fmt.Errorf("%w: address %d, heap length %d", ErrUnresolvedAddress, addr, len(values)))
			return
		}
		if marked[addr] {
			return
		}
		marked[addr] = true
		stats.Marked++
		queue = append(queue, addr)
	}

	for _, roots := range rootSets {
		for _, root := range roots {
			refs(root, func(addr Address) {
				stats.Roots++
				visit(addr)
			})
		}
	}
	if err != nil {
		return nil, stats, err
	}

	switch mode {

	case MarkShallow:
		// one level into the root containers only
		rootAddrs := queue
		queue = nil
		for _, addr := range rootAddrs {
			children(values[addr], visit)
		}

	default:
		for len(queue) > 0 {
			addr := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			children(values[addr], visit)
		}

	}
	if err != nil {
		return nil, stats, err
	}

	return marked, stats, nil
}

// Verify checks that every root refers to a live heap slot, and, with
// MarkFull, that every address reachable from the roots does too.
func Verify(heap *Heap, stack *Stack, store *Store, mode MarkMode) error {
	heap.mu.Lock()
	defer heap.mu.Unlock()
	stack.mu.Lock()
	defer stack.mu.Unlock()
	store.mu.Lock()
	defer store.mu.Unlock()

	marked, _, err := mark(heap.values, [][]Sized{stack.values, store.slots}, mode)
	if err != nil {
		return err
	}
	if mode == MarkShallow {
		return nil
	}
	for i, ok := range marked {
		if !ok {
			continue
		}
		if _, empty := heap.values[i].(Empty); empty {
			return withKind(Empty{}, fmt.Errorf("%w: reachable address %d is empty", ErrUnresolvedAddress, i))
		}
	}
	return nil
}
