package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo keeps records as property maps in memory. It applies the same
// codec and list semantics as Neo4jRepo and backs tests and the no-database
// dev mode.
type MemoryRepo[T any, ID comparable] struct {
	mu    sync.RWMutex
	idKey string
	codec Codec[T]
	rows  map[ID]map[string]any
	order []ID
}

// NewMemoryRepo creates an empty in-memory repository keyed by "id".
func NewMemoryRepo[T any, ID comparable](codec Codec[T]) *MemoryRepo[T, ID] {
	return &MemoryRepo[T, ID]{
		idKey: "id",
		codec: codec,
		rows:  map[ID]map[string]any{},
	}
}

var _ Repository[any, string] = (*MemoryRepo[any, string])(nil)

func (m *MemoryRepo[T, ID]) idOf(props map[string]any) (ID, error) {
	id, ok := props[m.idKey].(ID)
	if !ok {
		var zero ID
		return zero, fmt.Errorf("repo: property %q is %T, not an id", m.idKey, props[m.idKey])
	}
	return id, nil
}

func (m *MemoryRepo[T, ID]) Get(_ context.Context, id ID) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%v: %w", id, ErrNotFound)
	}
	return m.codec.FromProps(copyProps(row))
}

func (m *MemoryRepo[T, ID]) List(_ context.Context, opts ListOpts) ([]T, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var rows []map[string]any
	for _, id := range m.order {
		row := m.rows[id]
		if matches(row, opts) {
			rows = append(rows, copyProps(row))
		}
	}
	m.mu.RUnlock()

	if opts.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			c := compare(rows[i][opts.OrderBy], rows[j][opts.OrderBy])
			if opts.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	items := []T{}
	for i := opts.Offset; i < len(rows) && len(items) < opts.limit(); i++ {
		item, err := m.codec.FromProps(rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (m *MemoryRepo[T, ID]) Create(_ context.Context, entity T) (T, error) {
	var zero T
	props := dropNils(m.codec.ToProps(entity))
	id, err := m.idOf(props)
	if err != nil {
		return zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[id]; exists {
		return zero, fmt.Errorf("%v: %w", id, ErrConflict)
	}
	m.rows[id] = props
	m.order = append(m.order, id)
	return m.codec.FromProps(copyProps(props))
}

// Update merges properties like Neo4j's SET n += $props: nil values remove
// the property.
func (m *MemoryRepo[T, ID]) Update(_ context.Context, entity T) (T, error) {
	var zero T
	props := m.codec.ToProps(entity)
	id, err := m.idOf(props)
	if err != nil {
		return zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return zero, fmt.Errorf("%v: %w", id, ErrNotFound)
	}
	for k, v := range props {
		if v == nil {
			delete(row, k)
			continue
		}
		row[k] = v
	}
	return m.codec.FromProps(copyProps(row))
}

func (m *MemoryRepo[T, ID]) Delete(_ context.Context, id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return nil
	}
	delete(m.rows, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryRepo[T, ID]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func matches(row map[string]any, opts ListOpts) bool {
	for k, want := range opts.Filter {
		if compare(row[k], want) != 0 || row[k] == nil {
			return false
		}
	}
	for _, k := range opts.IsNull {
		if row[k] != nil {
			return false
		}
	}
	return true
}

// compare orders nil first, then numbers, strings and booleans by value.
// Values of unrelated kinds compare by their formatted text.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func dropNils(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
