package hvm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/reusee/heapvm/logs"
)

type VM struct {
	Main      *Function
	Heap      *Heap
	Stack     *Stack
	Store     *Store
	CallStack []Frame
	Frames    FramePolicy
	Logger    logs.Logger
	Config    Config

	// world is read-held by the mutator for each instruction and
	// write-held by the collector for each pass
	world     sync.RWMutex
	steps     atomic.Uint64
	collector *Collector
}

func NewVM(main *Function, config Config) *VM {
	if config.StoreSlots <= 0 {
		config.StoreSlots = DefaultStoreSlots
	}
	return &VM{
		Main:   main,
		Heap:   NewHeap(),
		Stack:  NewStack(),
		Store:  NewStore(config.StoreSlots),
		Frames: SharedFrames{},
		Logger: slog.New(slog.DiscardHandler),
		Config: config,
	}
}

// Steps returns the number of instructions executed so far.
func (v *VM) Steps() uint64 {
	return v.steps.Load()
}

// Collect runs one collection pass between two instructions.
// It must not be called from a native function.
func (v *VM) Collect() (CollectStats, error) {
	v.world.Lock()
	defer v.world.Unlock()

	stats, err := Collect(v.Heap, v.Stack, v.Store, v.Config.Mark)
	if err != nil {
		v.Logger.Error("collect", "error", err)
		return stats, err
	}
	v.Logger.Debug("collect",
		"roots", stats.Roots,
		"marked", stats.Marked,
		"swept", stats.Swept,
		"trimmed", stats.Trimmed,
		"heap", stats.HeapLen,
		"duration", stats.Duration,
	)

	if v.Config.Verify {
		if err := Verify(v.Heap, v.Stack, v.Store, v.Config.Mark); err != nil {
			v.Logger.Error("verify", "error", err)
			return stats, err
		}
	}

	return stats, nil
}

// StringAt returns the String referred to by an Address value.
func (v *VM) StringAt(value Sized) (string, error) {
	addr, ok := value.(Address)
	if !ok {
		return "", mismatch(value)
	}
	payload, err := v.Heap.Deref(addr)
	if err != nil {
		return "", err
	}
	s, ok := payload.(String)
	if !ok {
		return "", withKind(payload, fmt.Errorf("%w: want String, got %s", ErrTypeMismatch, KindOf(payload)))
	}
	return string(s), nil
}

// Rebind restores the bodies of natives decoded from a snapshot.
// Bound methods are resolved through the method table registry, other natives through natives.
func (v *VM) Rebind(natives map[string]*NativeFunc) error {
	v.world.Lock()
	defer v.world.Unlock()

	var errs []error
	rebind := func(value Sized) {
		n, ok := value.(*NativeFunc)
		if !ok || !n.IsMissing() {
			return
		}
		if n.Bound {
			i := strings.LastIndex(n.Name, ".")
			if i > 0 {
				if table, ok := LookupMethodTable(n.Name[:i]); ok {
					if bound, ok := table.Bind(n.Name[i+1:], n.Receiver); ok {
						n.Func = bound.Func
						return
					}
				}
			}
		} else if impl, ok := natives[n.Name]; ok && impl.Func != nil {
			n.Func = impl.Func
			return
		}
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingNative, n.Name))
	}

	for _, value := range v.Stack.Values() {
		rebind(value)
	}
	for _, value := range v.Store.Values() {
		rebind(value)
	}
	for _, value := range v.Heap.Values() {
		switch value := value.(type) {
		case *List:
			for _, elem := range value.Elements {
				rebind(elem)
			}
		case *Object:
			for _, field := range value.Fields {
				rebind(field)
			}
		}
	}

	return errors.Join(errs...)
}
