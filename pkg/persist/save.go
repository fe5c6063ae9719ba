package persist

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/identity"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// saved is an object written in the current session with the ids of its
// level rows.
type saved struct {
	row    navigate.Row
	levels map[string]int64
}

// session carries the state of one save across the object graph.
type session struct {
	ex       adapter.Executor
	saved    map[*object.Object]*saved
	inserted []identity.Key
	dropped  []navigate.Row
}

// Save stores an object graph and pins the object so that it is only
// removed by an explicit delete. It returns the id of the object's
// concrete row.
func (k *Kernel) Save(ctx context.Context, ex adapter.Executor, o *object.Object) (int64, error) {
	return k.saveGraph(ctx, ex, o, true)
}

// SaveUnprotected stores an object graph without pinning the object. The
// object lives as long as a stored owner references it, or until deleted.
func (k *Kernel) SaveUnprotected(ctx context.Context, ex adapter.Executor, o *object.Object) (int64, error) {
	return k.saveGraph(ctx, ex, o, false)
}

func (k *Kernel) saveGraph(ctx context.Context, ex adapter.Executor, o *object.Object, pin bool) (int64, error) {
	if err := k.begin(); err != nil {
		return 0, err
	}
	if o == nil {
		return 0, errors.New("cannot save a nil object")
	}
	if err := k.ensureGraph(ctx, ex, o, make(map[*object.Object]bool)); err != nil {
		return 0, err
	}

	s := &session{saved: make(map[*object.Object]*saved)}
	var id int64
	err := k.atomic(ctx, ex, func(tx adapter.Executor) error {
		s.ex = tx
		top, err := k.save(ctx, s, o)
		if err != nil {
			return err
		}
		id = top.row.ID

		var stale []navigate.Row
		for _, r := range s.dropped {
			if !s.holds(r) {
				stale = append(stale, r)
			}
		}
		if err := k.collect(ctx, tx, stale, newDeletion()); err != nil {
			return err
		}

		if pin {
			cr, err := k.row(top.row)
			if err != nil {
				return err
			}
			return k.tracker.ProtectExternal(ctx, tx, cr, top.row.Type)
		}
		return nil
	})
	if err != nil {
		for _, key := range s.inserted {
			k.cache.Purge(key.Table, key.ID)
		}
		return 0, err
	}

	k.log.Debugf("Saved %s:%d (%d objects)", o.Type(), id, len(s.saved))
	return id, nil
}

// holds reports whether a row was written in this session.
func (s *session) holds(r navigate.Row) bool {
	for _, sv := range s.saved {
		if sv.row == r {
			return true
		}
	}
	return false
}

// save writes one object and, recursively, everything it references. An
// object is registered in the session before its references are followed
// so that cycles terminate.
func (k *Kernel) save(ctx context.Context, s *session, o *object.Object) (*saved, error) {
	if sv, ok := s.saved[o]; ok {
		return sv, nil
	}
	if o.IsArray() {
		return k.saveArray(ctx, s, o)
	}

	stack, err := k.stacks.Stack(o.Type())
	if err != nil {
		return nil, err
	}
	sv, err := k.place(ctx, s, o, stack, nil, nil)
	if err != nil {
		return nil, err
	}

	wanted := make(map[catalog.Row]string)
	for _, node := range stack.Nodes() {
		if len(node.Properties) == 0 {
			continue
		}
		cols := make([]string, 0, len(node.Properties))
		args := make([]any, 0, len(node.Properties)+1)
		for _, prop := range node.Properties {
			v, err := k.column(ctx, s, o, prop, wanted)
			if err != nil {
				return nil, err
			}
			cols = append(cols, prop.Column)
			args = append(args, v)
		}
		args = append(args, sv.levels[node.Name])
		if _, err := s.ex.ExecContext(ctx, k.gen.Update(node.Table, cols), args...); err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "update "+node.Table, err)
		}
	}

	if err := k.syncEdges(ctx, s, sv.row, wanted); err != nil {
		return nil, err
	}
	return sv, nil
}

// place finds the level rows of a stored object, or inserts them for a
// new one, and registers the object in the session and the cache.
func (k *Kernel) place(ctx context.Context, s *session, o *object.Object, stack *inheritance.Stack, extraCols []string, extraArgs []any) (*saved, error) {
	concrete := stack.Concrete()
	sv := &saved{}

	if key, ok := k.cache.Key(o); ok && key.Table == concrete.Table {
		sv.row = navigate.Row{Type: o.Type(), ID: key.ID}
		levels, err := k.nav.Levels(ctx, s.ex, sv.row)
		if err != nil {
			return nil, err
		}
		sv.levels = levels
	} else {
		levels, err := k.insertLevels(ctx, s.ex, stack, extraCols, extraArgs)
		if err != nil {
			return nil, err
		}
		sv.row = navigate.Row{Type: o.Type(), ID: levels[concrete.Name]}
		sv.levels = levels
		k.cache.Store(concrete.Table, o, sv.row.ID)
		s.inserted = append(s.inserted, identity.Key{Table: concrete.Table, ID: sv.row.ID})
	}

	s.saved[o] = sv
	return sv, nil
}

// insertLevels inserts the skeleton rows of a new object, concrete level
// first, each parent row pointing at its child's row.
func (k *Kernel) insertLevels(ctx context.Context, ex adapter.Executor, stack *inheritance.Stack, extraCols []string, extraArgs []any) (map[string]int64, error) {
	levels := make(map[string]int64)
	for _, node := range stack.Nodes() {
		cols := []string{descriptor.ColumnRealClass, descriptor.ColumnRealID}
		args := []any{nil, nil}
		if node.Child != nil {
			args = []any{node.Child.Name, levels[node.Child.Name]}
		}
		if node.Name == object.ArrayType {
			cols = append(cols, extraCols...)
			args = append(args, extraArgs...)
		}
		id, err := k.insert(ctx, ex, node.Table, cols, args)
		if err != nil {
			return nil, err
		}
		levels[node.Name] = id
	}
	return levels, nil
}

// insert writes one row and returns its C__ID, allocated up front when an
// allocator is configured and read back from the engine otherwise.
func (k *Kernel) insert(ctx context.Context, ex adapter.Executor, table string, cols []string, args []any) (int64, error) {
	if k.ids != nil {
		id, err := k.ids.Allocate(ctx, ex, table, 1)
		if err != nil {
			return 0, fmt.Errorf("failed to allocate id for %s: %w", table, err)
		}
		cols = append([]string{descriptor.ColumnID}, cols...)
		args = append([]any{id}, args...)
		if _, err := ex.ExecContext(ctx, k.gen.Insert(table, cols, false), args...); err != nil {
			return 0, adapter.WrapError(k.dialect.ID(), "insert "+table, err)
		}
		return id, nil
	}

	var id int64
	switch k.dialect.Features().IDMode {
	case adapter.IDReturning, adapter.IDOutput:
		if err := ex.QueryRowContext(ctx, k.gen.Insert(table, cols, true), args...).Scan(&id); err != nil {
			return 0, adapter.WrapError(k.dialect.ID(), "insert "+table, err)
		}
	default:
		res, err := ex.ExecContext(ctx, k.gen.Insert(table, cols, true), args...)
		if err != nil {
			return 0, adapter.WrapError(k.dialect.ID(), "insert "+table, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, adapter.WrapError(k.dialect.ID(), "read inserted id of "+table, err)
		}
	}
	return id, nil
}

// column converts one property value into its column argument. Reference
// and array values are saved first and recorded in wanted as owned rows.
func (k *Kernel) column(ctx context.Context, s *session, o *object.Object, prop descriptor.Property, wanted map[catalog.Row]string) (any, error) {
	v, ok := o.Get(prop.Name)
	if !ok {
		return nil, nil
	}
	if !prop.IsObject() {
		arg, err := k.dialect.Encode(prop.Kind(), v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrTypeMismatch, o.Type(), prop.Name, err)
		}
		return arg, nil
	}

	target, ok := v.(*object.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s holds %T", ErrTypeMismatch, o.Type(), prop.Name, v)
	}
	if err := k.accepts(prop.Type, target); err != nil {
		return nil, fmt.Errorf("%w: %s.%s", err, o.Type(), prop.Name)
	}

	sub, err := k.save(ctx, s, target)
	if err != nil {
		return nil, err
	}
	if err := k.own(sub.row, wanted); err != nil {
		return nil, err
	}
	if prop.Kind() == shape.Array {
		return sub.row.ID, nil
	}
	id, ok := sub.levels[prop.Type.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s level", ErrTypeMismatch, target.Type(), prop.Type.Name)
	}
	return id, nil
}

// accepts checks that an object may be stored where t is declared.
func (k *Kernel) accepts(t shape.TypeRef, o *object.Object) error {
	switch t.Kind {
	case shape.Array:
		if !o.IsArray() || t.Elem == nil || !o.Elem().Equal(*t.Elem) {
			return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, t, describe(o))
		}
	case shape.Reference:
		if o.IsArray() || !k.registry.IsAssignable(o.Type(), t.Name) {
			return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, t, describe(o))
		}
	default:
		return fmt.Errorf("%w: %s does not hold objects", ErrTypeMismatch, t)
	}
	return nil
}

func describe(o *object.Object) string {
	if o.IsArray() {
		return shape.ArrayOf(o.Elem()).String()
	}
	return o.Type()
}

func (k *Kernel) own(target navigate.Row, wanted map[catalog.Row]string) error {
	cr, err := k.row(target)
	if err != nil {
		return err
	}
	wanted[cr] = target.Type
	return nil
}

// syncEdges replaces the internal edges leaving owner with wanted. Rows
// that lose their edge are remembered as candidates for collection.
func (k *Kernel) syncEdges(ctx context.Context, s *session, owner navigate.Row, wanted map[catalog.Row]string) error {
	ownerRow, err := k.row(owner)
	if err != nil {
		return err
	}
	existing, err := k.tracker.Owned(ctx, s.ex, ownerRow)
	if err != nil {
		return err
	}

	have := make(map[catalog.Row]bool, len(existing))
	for _, e := range existing {
		if _, ok := wanted[e.Property]; ok {
			have[e.Property] = true
			continue
		}
		if _, err := k.tracker.Unprotect(ctx, s.ex, ownerRow, e.Property); err != nil {
			return err
		}
		s.dropped = append(s.dropped, navigate.Row{Type: e.Class, ID: e.Property.ID})
	}

	for _, target := range slices.SortedFunc(maps.Keys(wanted), compareRows) {
		if have[target] {
			continue
		}
		if err := k.tracker.Protect(ctx, s.ex, ownerRow, target, wanted[target]); err != nil {
			return err
		}
	}
	return nil
}

func compareRows(a, b catalog.Row) int {
	return cmp.Or(strings.Compare(a.Table, b.Table), cmp.Compare(a.ID, b.ID))
}

// saveArray writes an array row and replaces its members.
func (k *Kernel) saveArray(ctx context.Context, s *session, a *object.Object) (*saved, error) {
	elem := a.Elem()
	table := descriptor.MemberTable(elem)
	kind := descriptor.MemberKind(elem)
	items := a.Items()

	stack, err := k.stacks.Stack(object.ArrayType)
	if err != nil {
		return nil, err
	}

	meta := []string{descriptor.ColumnComponentType, descriptor.ColumnLength}
	metaArgs := []any{elem.String(), int64(len(items))}

	_, stored := k.cache.Key(a)
	sv, err := k.place(ctx, s, a, stack, meta, metaArgs)
	if err != nil {
		return nil, err
	}
	if stored {
		if _, err := s.ex.ExecContext(ctx, k.gen.DeleteMembers(table), sv.row.ID); err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "delete members of "+table, err)
		}
		if _, err := s.ex.ExecContext(ctx, k.gen.Update(descriptor.ArrayTable, meta), append(metaArgs, sv.row.ID)...); err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "update array", err)
		}
	}

	wanted := make(map[catalog.Row]string)
	cols := []string{descriptor.ColumnArrayID, descriptor.ColumnPosition, descriptor.ColumnValue, descriptor.ColumnClass}
	for i, item := range items {
		var value, class any
		if kind == shape.Reference {
			if target, ok := item.(*object.Object); ok && target != nil {
				if err := k.accepts(elem, target); err != nil {
					return nil, fmt.Errorf("%w: array item %d", err, i)
				}
				sub, err := k.save(ctx, s, target)
				if err != nil {
					return nil, err
				}
				if err := k.own(sub.row, wanted); err != nil {
					return nil, err
				}
				value, class = sub.row.ID, sub.row.Type
			} else if item != nil {
				return nil, fmt.Errorf("%w: array item %d holds %T", ErrTypeMismatch, i, item)
			}
		} else if value, err = k.dialect.Encode(kind, item); err != nil {
			return nil, fmt.Errorf("%w: array item %d: %v", ErrTypeMismatch, i, err)
		}

		if _, err := k.insert(ctx, s.ex, table, cols, []any{sv.row.ID, int64(i), value, class}); err != nil {
			return nil, err
		}
	}

	if err := k.syncEdges(ctx, s, sv.row, wanted); err != nil {
		return nil, err
	}
	return sv, nil
}
