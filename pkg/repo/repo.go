// Package repo defines the generic Repository interface, list options, and
// the flat property codec shared by the Neo4j and in-memory backends.
package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned when no record matches an id.
	ErrNotFound = errors.New("repo: not found")
	// ErrConflict is returned when creating a record whose id already exists.
	ErrConflict = errors.New("repo: already exists")
	// ErrInvalidField is returned for filter or order keys that are not plain
	// property names.
	ErrInvalidField = errors.New("repo: invalid field name")
)

// Repository is a generic CRUD interface.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls filtering, ordering and pagination for List.
type ListOpts struct {
	// Filter holds equality conditions, ANDed together.
	Filter map[string]any
	// IsNull lists properties that must be absent or null.
	IsNull  []string
	OrderBy string
	Desc    bool
	Offset  int
	Limit   int
}

// DefaultLimit applies when ListOpts.Limit is zero.
const DefaultLimit = 100

// Codec maps a record to and from a flat property map. Values must be
// strings, numbers, booleans or nil; nested data is encoded by the caller.
type Codec[T any] struct {
	ToProps   func(T) map[string]any
	FromProps func(map[string]any) (T, error)
}

var fieldRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkField(name string) error {
	if !fieldRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}

func (o ListOpts) validate() error {
	for k := range o.Filter {
		if err := checkField(k); err != nil {
			return err
		}
	}
	for _, k := range o.IsNull {
		if err := checkField(k); err != nil {
			return err
		}
	}
	if o.OrderBy != "" {
		return checkField(o.OrderBy)
	}
	return nil
}

func (o ListOpts) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}
