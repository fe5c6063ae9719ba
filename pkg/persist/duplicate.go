package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/object"
)

// Duplicate copies the schema and every stored object of this kernel into
// target. Pins are carried over; ids and instances are not, although
// objects shared within the source stay shared within the copy. Arrays
// are copied through the objects holding them. It returns the number of
// top-level objects copied.
func (k *Kernel) Duplicate(ctx context.Context, ex adapter.Executor, target *Kernel, targetEx adapter.Executor) (int, error) {
	if err := k.begin(); err != nil {
		return 0, err
	}
	if target == nil || target == k {
		return 0, errors.New("duplicate needs a distinct target kernel")
	}

	types, err := k.Types(ctx, ex)
	if err != nil {
		return 0, err
	}
	if err := target.EnsureSchema(ctx, targetEx, types...); err != nil {
		return 0, fmt.Errorf("failed to prepare target schema: %w", err)
	}

	copied := make(map[*object.Object]bool)
	for _, name := range types {
		s, err := k.registry.Lookup(name)
		if err != nil {
			return 0, err
		}
		if s.Interface {
			continue
		}

		for o, err := range k.Find(ctx, ex, name) {
			if err != nil {
				return 0, err
			}
			if o.Type() != name || copied[o] {
				continue
			}
			pinned, err := k.IsProtected(ctx, ex, o)
			if err != nil {
				return 0, err
			}
			if pinned {
				_, err = target.Save(ctx, targetEx, o)
			} else {
				_, err = target.SaveUnprotected(ctx, targetEx, o)
			}
			if err != nil {
				return 0, fmt.Errorf("failed to copy %s: %w", name, err)
			}
			copied[o] = true
		}
	}

	k.log.With("kernel", k.id.String()).Info("Duplicated %d objects into kernel %s", len(copied), target.id)
	return len(copied), nil
}
