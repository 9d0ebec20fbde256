package debugs

import (
	"fmt"

	"github.com/reusee/heapvm/hvm"
)

// Inspect exposes the state of vm as tap globals.
// collect() runs a collection pass and returns its stats.
func Inspect(vm *hvm.VM) map[string]any {
	store := make(map[int]hvm.Sized)
	for i, v := range vm.Store.Values() {
		if _, ok := v.(hvm.Null); ok {
			continue
		}
		store[i] = v
	}

	heap := make([]any, 0)
	for addr, payload := range vm.Heap.All() {
		heap = append(heap, map[string]any{
			"addr":  int(addr),
			"kind":  hvm.KindOf(payload).String(),
			"value": payload,
		})
	}

	return map[string]any{
		"stack": vm.Stack.Values(),
		"store": store,
		"heap":  heap,
		"steps": vm.Steps(),
		"collect": func() string {
			stats, err := vm.Collect()
			if err != nil {
				return err.Error()
			}
			return fmt.Sprintf("%+v", stats)
		},
		"format": func(addr int) string {
			return vm.Format(hvm.Address(addr))
		},
	}
}
