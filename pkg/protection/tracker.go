// Package protection tracks which rows are owned, either pinned by the
// caller (external) or referenced by another stored row (internal), so
// that deletion only removes rows nothing owns any more.
package protection

import (
	"context"
	"errors"
	"sync"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/logger"
)

// ErrInconsistent is returned when the edge catalog contradicts the
// operation asked of it.
var ErrInconsistent = errors.New("ownership catalog is inconsistent")

// Row addresses one row of a level table.
type Row = catalog.Row

// Tracker reads and writes ownership edges. Mutations are serialized; reads
// may run concurrently with each other.
type Tracker struct {
	catalog *catalog.Catalog
	log     *logger.Logger
	mu      sync.RWMutex
}

// NewTracker creates a tracker over the catalog's edge table.
func NewTracker(c *catalog.Catalog, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Discard()
	}
	return &Tracker{catalog: c, log: log}
}

// ProtectExternal pins a row. Pinning an already pinned row is a no-op.
func (t *Tracker) ProtectExternal(ctx context.Context, ex adapter.Executor, r Row, class string) error {
	return t.protect(ctx, ex, Row{}, r, class)
}

// UnprotectExternal removes the pin of a row and reports whether it had one.
func (t *Tracker) UnprotectExternal(ctx context.Context, ex adapter.Executor, r Row) (bool, error) {
	return t.unprotect(ctx, ex, Row{}, r)
}

// IsProtectedExternal reports whether a row is pinned.
func (t *Tracker) IsProtectedExternal(ctx context.Context, ex adapter.Executor, r Row) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.catalog.HasEdge(ctx, ex, Row{}, r)
}

// Protect records that owner references property. Recording an existing
// edge again is a no-op.
func (t *Tracker) Protect(ctx context.Context, ex adapter.Executor, owner, property Row, class string) error {
	if owner.Table == "" {
		return errors.New("internal edge requires an owner")
	}
	return t.protect(ctx, ex, owner, property, class)
}

// Unprotect removes the edge from owner to property and reports whether
// there was one.
func (t *Tracker) Unprotect(ctx context.Context, ex adapter.Executor, owner, property Row) (bool, error) {
	if owner.Table == "" {
		return false, errors.New("internal edge requires an owner")
	}
	return t.unprotect(ctx, ex, owner, property)
}

func (t *Tracker) protect(ctx context.Context, ex adapter.Executor, owner, property Row, class string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ok, err := t.catalog.HasEdge(ctx, ex, owner, property)
	if err != nil || ok {
		return err
	}
	return t.catalog.InsertEdge(ctx, ex, catalog.Edge{Owner: owner, Property: property, Class: class})
}

func (t *Tracker) unprotect(ctx context.Context, ex adapter.Executor, owner, property Row) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.catalog.DeleteEdge(ctx, ex, owner, property)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Owned lists the internal edges leaving a row.
func (t *Tracker) Owned(ctx context.Context, ex adapter.Executor, owner Row) ([]catalog.Edge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.catalog.Owned(ctx, ex, owner)
}

// Owners lists the edges of either kind targeting a row.
func (t *Tracker) Owners(ctx context.Context, ex adapter.Executor, property Row) ([]catalog.Edge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.catalog.Owners(ctx, ex, property)
}

// IsProtected reports whether any edge targets a row.
func (t *Tracker) IsProtected(ctx context.Context, ex adapter.Executor, r Row) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.catalog.CountOwners(ctx, ex, r)
	return n > 0, err
}

// Reachable reports whether a row is held by something outside the rows in
// skip: an external pin, or a top-level row that nothing owns, reached by
// following ownership edges backwards. Rows kept alive only by a cycle of
// internal edges are not reachable. Rows in skip are treated as already
// deleted.
func (t *Tracker) Reachable(ctx context.Context, ex adapter.Executor, r Row, skip map[Row]bool) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	visited := map[Row]bool{r: true}
	queue := []Row{r}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		edges, err := t.catalog.Owners(ctx, ex, cur)
		if err != nil {
			return false, err
		}
		if len(edges) == 0 && cur != r {
			return true, nil
		}
		for _, e := range edges {
			if e.External() {
				return true, nil
			}
			if visited[e.Owner] || skip[e.Owner] {
				continue
			}
			visited[e.Owner] = true
			queue = append(queue, e.Owner)
		}
	}
	return false, nil
}

// Forget drops every edge leaving or targeting a deleted row.
func (t *Tracker) Forget(ctx context.Context, ex adapter.Executor, r Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.catalog.DeleteEdgesOf(ctx, ex, r); err != nil {
		return err
	}
	t.log.Debugf("Forgot ownership edges of %s:%d", r.Table, r.ID)
	return nil
}
