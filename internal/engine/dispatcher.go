package engine

import (
	"fmt"
	"sort"
)

// Dispatcher maps engine kinds to adapters. Several kinds may share one adapter.
// It is read-only after construction.
type Dispatcher struct {
	adapters map[Kind]Adapter
}

func NewDispatcher(adapters ...Adapter) (*Dispatcher, error) {
	d := &Dispatcher{adapters: map[Kind]Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, fmt.Errorf("adapter is required")
		}
		kinds := adapter.Kinds()
		if len(kinds) == 0 {
			return nil, fmt.Errorf("adapter %q serves no engine kinds", adapter.Family())
		}
		for _, kind := range kinds {
			if existing, ok := d.adapters[kind]; ok {
				return nil, fmt.Errorf("engine kind %q registered by both %q and %q", kind, existing.Family(), adapter.Family())
			}
			d.adapters[kind] = adapter
		}
	}
	return d, nil
}

func (d *Dispatcher) Resolve(kind Kind) (Adapter, error) {
	adapter, ok := d.adapters[kind]
	if !ok {
		return nil, &UnsupportedEngineError{Kind: kind}
	}
	return adapter, nil
}

// Kinds lists the recognized engine kinds in sorted order.
func (d *Dispatcher) Kinds() []Kind {
	kinds := make([]Kind, 0, len(d.adapters))
	for kind := range d.adapters {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
