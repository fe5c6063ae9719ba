package persist

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/clause"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// deletion is the state of one delete pass. visited stops the recursion
// re-entering a row; deleted holds the rows removed so far, which no
// longer count as owners. kept holds rows visited but still held, which
// a later deletion in the same pass may release.
type deletion struct {
	visited map[catalog.Row]bool
	deleted map[catalog.Row]bool
	kept    map[catalog.Row]navigate.Row
}

func newDeletion() *deletion {
	return &deletion{
		visited: make(map[catalog.Row]bool),
		deleted: make(map[catalog.Row]bool),
		kept:    make(map[catalog.Row]navigate.Row),
	}
}

// Delete unpins the object stored in the row id of a type's table and
// removes it, along with every sub-object nothing else holds. It reports
// whether the object was removed; an object still referenced by a live
// owner stays stored.
func (k *Kernel) Delete(ctx context.Context, ex adapter.Executor, typeName string, id int64) (bool, error) {
	if err := k.begin(); err != nil {
		return false, err
	}
	ok, err := k.ready(ctx, ex, typeName, nil)
	if err != nil || !ok {
		return false, err
	}

	var removed bool
	err = k.atomic(ctx, ex, func(tx adapter.Executor) error {
		r, ok, err := k.nav.Concrete(ctx, tx, typeName, id)
		if err != nil || !ok {
			return err
		}
		removed, err = k.remove(ctx, tx, r, true, newDeletion())
		return err
	})
	return removed, err
}

// DeleteObject deletes a saved or loaded object.
func (k *Kernel) DeleteObject(ctx context.Context, ex adapter.Executor, o *object.Object) (bool, error) {
	if err := k.begin(); err != nil {
		return false, err
	}
	r, ok := k.stored(o)
	if !ok {
		return false, ErrNotStored
	}

	var removed bool
	err := k.atomic(ctx, ex, func(tx adapter.Executor) error {
		var err error
		removed, err = k.remove(ctx, tx, r, true, newDeletion())
		return err
	})
	return removed, err
}

// DeleteWhere deletes every object of a type matching clauses and returns
// how many were removed.
func (k *Kernel) DeleteWhere(ctx context.Context, ex adapter.Executor, typeName string, clauses ...clause.Clause) (int, error) {
	if err := k.begin(); err != nil {
		return 0, err
	}
	ok, err := k.ready(ctx, ex, typeName, clauses)
	if err != nil || !ok {
		return 0, err
	}

	var n int
	err = k.atomic(ctx, ex, func(tx adapter.Executor) error {
		ids, err := k.findIDs(ctx, tx, typeName, clauses)
		if err != nil {
			return err
		}
		rows, err := k.resolve(ctx, tx, typeName, ids)
		if err != nil {
			return err
		}

		st := newDeletion()
		var targets []catalog.Row
		for _, id := range ids {
			r, ok := rows[id]
			if !ok || r.Type == object.ArrayType {
				continue
			}
			cr, err := k.row(r)
			if err != nil {
				return err
			}
			targets = append(targets, cr)
			if st.deleted[cr] {
				continue
			}
			// A row reached earlier in this pass but kept may be
			// deletable now that it is the target itself.
			delete(st.visited, cr)
			delete(st.kept, cr)
			if _, err := k.remove(ctx, tx, r, true, st); err != nil {
				return err
			}
		}
		if err := k.settle(ctx, tx, st); err != nil {
			return err
		}
		for _, cr := range targets {
			if st.deleted[cr] {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	k.log.With("kernel", k.id.String()).With("type", typeName).Info("Deleted %d %s objects", n, typeName)
	return n, nil
}

// collect removes released rows that nothing holds any more.
func (k *Kernel) collect(ctx context.Context, ex adapter.Executor, rows []navigate.Row, st *deletion) error {
	for _, r := range rows {
		if _, err := k.remove(ctx, ex, r, false, st); err != nil {
			return err
		}
	}
	return k.settle(ctx, ex, st)
}

// settle re-examines the rows a pass kept until no further row is
// removed. A row kept while one of its owners was still alive becomes
// removable once every owner is deleted later in the pass.
func (k *Kernel) settle(ctx context.Context, ex adapter.Executor, st *deletion) error {
	for len(st.kept) > 0 {
		kept := st.kept
		st.kept = make(map[catalog.Row]navigate.Row)
		progress := false
		for _, cr := range slices.SortedFunc(maps.Keys(kept), compareRows) {
			if st.deleted[cr] {
				continue
			}
			delete(st.visited, cr)
			removed, err := k.remove(ctx, ex, kept[cr], false, st)
			if err != nil {
				return err
			}
			progress = progress || removed
		}
		if !progress {
			return nil
		}
	}
	return nil
}

// remove deletes a concrete row unless something outside the current pass
// still holds it, then follows its internal edges. top marks the row the
// caller asked to delete, whose pin is dropped first.
func (k *Kernel) remove(ctx context.Context, ex adapter.Executor, r navigate.Row, top bool, st *deletion) (bool, error) {
	cr, err := k.row(r)
	if err != nil {
		return false, err
	}
	if st.visited[cr] {
		return st.deleted[cr], nil
	}
	st.visited[cr] = true

	if top {
		if _, err := k.tracker.UnprotectExternal(ctx, ex, cr); err != nil {
			return false, err
		}
	}

	owners, err := k.tracker.Owners(ctx, ex, cr)
	if err != nil {
		return false, err
	}
	held := false
	for _, e := range owners {
		if e.External() || !st.deleted[e.Owner] {
			held = true
			break
		}
	}
	if held {
		reachable, err := k.tracker.Reachable(ctx, ex, cr, st.deleted)
		if err != nil {
			return false, err
		}
		if reachable {
			st.kept[cr] = r
			return false, nil
		}
	}

	owned, err := k.tracker.Owned(ctx, ex, cr)
	if err != nil {
		return false, err
	}
	if err := k.deleteRows(ctx, ex, r); err != nil {
		return false, err
	}
	if err := k.tracker.Forget(ctx, ex, cr); err != nil {
		return false, err
	}
	k.cache.Purge(cr.Table, cr.ID)
	st.deleted[cr] = true
	k.log.With("table", cr.Table).With("id", fmt.Sprint(cr.ID)).Debug("Deleted %s:%d", r.Type, r.ID)

	for _, e := range owned {
		if _, err := k.remove(ctx, ex, navigate.Row{Type: e.Class, ID: e.Property.ID}, false, st); err != nil {
			return false, err
		}
	}
	return true, nil
}

// deleteRows deletes every level row of a concrete row, and the members
// of an array.
func (k *Kernel) deleteRows(ctx context.Context, ex adapter.Executor, r navigate.Row) error {
	if r.Type == object.ArrayType {
		var comp string
		err := ex.QueryRowContext(ctx, adapter.Rebind(k.dialect, "SELECT "+descriptor.ColumnComponentType+
			" FROM "+descriptor.ArrayTable+" WHERE "+descriptor.ColumnID+" = ?"), r.ID).Scan(&comp)
		if err != nil {
			return adapter.WrapError(k.dialect.ID(), "read array", err)
		}
		elem, err := shape.ParseTypeRef(comp)
		if err != nil {
			return fmt.Errorf("%w: array %d has component type %q", ErrInconsistent, r.ID, comp)
		}
		if _, err := ex.ExecContext(ctx, k.gen.DeleteMembers(descriptor.MemberTable(elem)), r.ID); err != nil {
			return adapter.WrapError(k.dialect.ID(), "delete members", err)
		}
	}

	levels, err := k.nav.Levels(ctx, ex, r)
	if err != nil {
		return err
	}
	stack, err := k.stacks.Stack(r.Type)
	if err != nil {
		return err
	}
	for _, node := range stack.Nodes() {
		if _, err := ex.ExecContext(ctx, k.gen.Delete(node.Table), levels[node.Name]); err != nil {
			return adapter.WrapError(k.dialect.ID(), "delete from "+node.Table, err)
		}
	}
	return nil
}
