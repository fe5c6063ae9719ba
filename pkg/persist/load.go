package persist

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/identity"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
	"github.com/redbco/redb-persist/pkg/statement"
)

// maxDepth bounds the back-reference chain followed when resolving rows.
const maxDepth = 256

// loader carries the state of one load across the object graph. Objects
// materialized in this pass are reused, which also stops cycles. Instances
// created by the pass reach the identity cache only once the whole graph
// has loaded.
type loader struct {
	ex      adapter.Executor
	refresh bool
	seen    map[identity.Key]*object.Object
	created []identity.Key
}

func (k *Kernel) newLoader(ex adapter.Executor, refresh bool) *loader {
	return &loader{ex: ex, refresh: refresh, seen: make(map[identity.Key]*object.Object)}
}

// publish stores the instances created by a completed pass in the cache.
func (k *Kernel) publish(l *loader) {
	for _, key := range l.created {
		k.cache.Store(key.Table, l.seen[key], key.ID)
	}
	l.created = nil
}

// Load returns the object stored in the row id of a type's table. The
// object is of the row's concrete type, which may be a subtype. A cached
// instance is returned as is.
func (k *Kernel) Load(ctx context.Context, ex adapter.Executor, typeName string, id int64) (*object.Object, error) {
	if err := k.begin(); err != nil {
		return nil, err
	}
	ok, err := k.ready(ctx, ex, typeName, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	l := k.newLoader(ex, false)
	objs, err := k.loadIDs(ctx, l, typeName, []int64{id})
	if err != nil {
		return nil, err
	}
	k.publish(l)
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: %s:%d", ErrNotFound, typeName, id)
	}
	return objs[0], nil
}

// Exists reports whether a row of a type's table exists.
func (k *Kernel) Exists(ctx context.Context, ex adapter.Executor, typeName string, id int64) (bool, error) {
	if err := k.begin(); err != nil {
		return false, err
	}
	ok, err := k.ready(ctx, ex, typeName, nil)
	if err != nil || !ok {
		return false, err
	}
	rows, err := k.resolve(ctx, ex, typeName, []int64{id})
	if err != nil {
		return false, err
	}
	_, ok = rows[id]
	return ok, nil
}

// Refresh reloads a stored object and everything it references from the
// database, updating the cached instances in place. An object whose row
// is gone is dropped from the cache and ErrNotFound is returned.
func (k *Kernel) Refresh(ctx context.Context, ex adapter.Executor, o *object.Object) (*object.Object, error) {
	if err := k.begin(); err != nil {
		return nil, err
	}
	key, ok := k.cache.Key(o)
	if !ok {
		return nil, ErrNotStored
	}

	l := k.newLoader(ex, true)
	objs, err := k.load(ctx, l, o.Type(), []int64{key.ID})
	if err != nil {
		return nil, err
	}
	k.publish(l)
	fresh, ok := objs[key.ID]
	if !ok {
		k.cache.Purge(key.Table, key.ID)
		return nil, fmt.Errorf("%w: %s:%d", ErrNotFound, o.Type(), key.ID)
	}
	return fresh, nil
}

// loadIDs loads the objects behind rows of a type's table, in the order
// of ids. Ids without a row and array rows are skipped.
func (k *Kernel) loadIDs(ctx context.Context, l *loader, typeName string, ids []int64) ([]*object.Object, error) {
	rows, err := k.resolve(ctx, l.ex, typeName, ids)
	if err != nil {
		return nil, err
	}

	byType := make(map[string][]int64)
	for _, id := range ids {
		if r, ok := rows[id]; ok && r.Type != object.ArrayType {
			byType[r.Type] = append(byType[r.Type], r.ID)
		}
	}
	loaded := make(map[navigate.Row]*object.Object)
	for _, typ := range slices.Sorted(maps.Keys(byType)) {
		objs, err := k.load(ctx, l, typ, byType[typ])
		if err != nil {
			return nil, err
		}
		for id, o := range objs {
			loaded[navigate.Row{Type: typ, ID: id}] = o
		}
	}

	out := make([]*object.Object, 0, len(ids))
	for _, id := range ids {
		if o, ok := loaded[rows[id]]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// levelRow is one scanned level row: the system columns followed by the
// requested property columns.
type levelRow struct {
	id        int64
	realClass sql.NullString
	realID    sql.NullInt64
	values    []any
}

// scan runs statements and collects their rows before returning, so the
// executor is free for the next statement.
func (k *Kernel) scan(ctx context.Context, ex adapter.Executor, stmts []statement.Statement, ncols int) ([]levelRow, error) {
	var out []levelRow
	for _, st := range stmts {
		rows, err := ex.QueryContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "select rows", err)
		}
		for rows.Next() {
			r := levelRow{values: make([]any, ncols)}
			dest := []any{&r.id, &r.realClass, &r.realID}
			for i := range r.values {
				dest = append(dest, &r.values[i])
			}
			if err := rows.Scan(dest...); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan level row: %w", err)
			}
			for i, v := range r.values {
				if b, ok := v.([]byte); ok {
					r.values[i] = append([]byte(nil), b...)
				}
			}
			out = append(out, r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "select rows", err)
		}
	}
	return out, nil
}

// resolve follows the back-references of rows of a type's table down to
// their concrete rows, one statement per level and type. Ids without a
// row are absent from the result.
func (k *Kernel) resolve(ctx context.Context, ex adapter.Executor, typeName string, ids []int64) (map[int64]navigate.Row, error) {
	out := make(map[int64]navigate.Row, len(ids))
	pending := map[string]map[int64]int64{typeName: {}}
	for _, id := range ids {
		pending[typeName][id] = id
	}

	for depth := 0; len(pending) > 0; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("%w: back-references of %s do not terminate", ErrInconsistent, typeName)
		}
		next := make(map[string]map[int64]int64)
		for _, typ := range slices.Sorted(maps.Keys(pending)) {
			origins := pending[typ]
			t, err := k.types.Type(typ)
			if err != nil {
				return nil, err
			}
			levelIDs := slices.Sorted(maps.Keys(origins))
			rows, err := k.scan(ctx, ex, k.gen.Rows(t.Table, nil, descriptor.ColumnID, "", levelIDs), 0)
			if err != nil {
				return nil, err
			}
			if depth > 0 && len(rows) != len(levelIDs) {
				return nil, fmt.Errorf("%w: %d of %d %s rows are missing", ErrInconsistent,
					len(levelIDs)-len(rows), len(levelIDs), t.Table)
			}
			for _, r := range rows {
				origin := origins[r.id]
				if !r.realClass.Valid || r.realClass.String == "" {
					out[origin] = navigate.Row{Type: typ, ID: r.id}
					continue
				}
				if next[r.realClass.String] == nil {
					next[r.realClass.String] = make(map[int64]int64)
				}
				next[r.realClass.String][r.realID.Int64] = origin
			}
		}
		pending = next
	}
	return out, nil
}

// ref is a reference or array value waiting to be loaded.
type ref struct {
	obj   *object.Object
	name  string
	index int
	typ   string
	id    int64
}

// load materializes objects of one concrete type by concrete id. Cached
// instances are reused unless refreshing, in which case they are updated
// in place. Missing ids are absent from the result.
func (k *Kernel) load(ctx context.Context, l *loader, typeName string, ids []int64) (map[int64]*object.Object, error) {
	t, err := k.types.Type(typeName)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]*object.Object, len(ids))
	var missing []int64
	for _, id := range ids {
		key := identity.Key{Table: t.Table, ID: id}
		if o, ok := l.seen[key]; ok {
			out[id] = o
			continue
		}
		if !l.refresh {
			if o, ok := k.cache.Lookup(t.Table, id); ok {
				out[id] = o
				continue
			}
		}
		if !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	if typeName == object.ArrayType {
		return out, k.loadArrays(ctx, l, missing, out)
	}

	stack, err := k.stacks.Stack(typeName)
	if err != nil {
		return nil, err
	}

	// values[concrete id][property] holds the raw column values.
	values := make(map[int64]map[string]any, len(missing))
	index := make(map[string]map[int64]int64) // level -> level id -> concrete id
	for _, node := range stack.Nodes() {
		cols := node.Columns()
		var stmts []statement.Statement
		var want int
		if node.Child == nil {
			stmts = k.gen.Rows(node.Table, cols, descriptor.ColumnID, "", missing)
		} else {
			childIDs := slices.Sorted(maps.Keys(index[node.Child.Name]))
			want = len(childIDs)
			stmts = k.gen.Rows(node.Table, cols, descriptor.ColumnRealID, node.Child.Name, childIDs)
		}
		rows, err := k.scan(ctx, l.ex, stmts, len(cols))
		if err != nil {
			return nil, err
		}
		if node.Child != nil && len(rows) != want {
			return nil, fmt.Errorf("%w: %d %s rows missing below %s", ErrInconsistent, want-len(rows), node.Table, typeName)
		}

		index[node.Name] = make(map[int64]int64, len(rows))
		for _, r := range rows {
			concrete := r.id
			if node.Child != nil {
				concrete = index[node.Child.Name][r.realID.Int64]
			}
			index[node.Name][r.id] = concrete
			if values[concrete] == nil {
				values[concrete] = make(map[string]any)
			}
			for i, prop := range node.Properties {
				values[concrete][prop.Name] = r.values[i]
			}
		}
	}

	var refs []ref
	filled := make(map[int64]*object.Object, len(values))
	for _, id := range missing {
		raw, ok := values[id]
		if !ok {
			continue
		}
		target := k.instance(l, t.Table, id, func() *object.Object { return object.New(typeName) })
		fresh := object.New(typeName)

		for _, node := range stack.Nodes() {
			for _, prop := range node.Properties {
				v := raw[prop.Name]
				if v == nil {
					continue
				}
				decoded, err := k.dialect.Decode(prop.Kind(), v)
				if err != nil {
					return nil, fmt.Errorf("failed to decode %s.%s: %w", typeName, prop.Name, err)
				}
				if !prop.IsObject() {
					fresh.Set(prop.Name, decoded)
					continue
				}
				typ := object.ArrayType
				if prop.Kind() == shape.Reference {
					typ = prop.Type.Name
				}
				refs = append(refs, ref{obj: fresh, name: prop.Name, typ: typ, id: decoded.(int64)})
			}
		}
		out[id] = target
		filled[id] = fresh
	}

	if err := k.resolveRefs(ctx, l, refs, true); err != nil {
		return nil, err
	}
	for id, fresh := range filled {
		out[id].Replace(fresh)
	}
	return out, nil
}

// instance returns the object a row materializes into, registering it in
// the pass before its references are followed. A cached instance is
// reused; a new one is published when the pass completes.
func (k *Kernel) instance(l *loader, table string, id int64, create func() *object.Object) *object.Object {
	key := identity.Key{Table: table, ID: id}
	o, ok := k.cache.Lookup(table, id)
	if !ok {
		o = create()
		l.created = append(l.created, key)
	}
	l.seen[key] = o
	return o
}

// resolveRefs loads the targets of pending references in bulk and assigns
// them. declared selects whether ids are rows of the declared type's
// table, resolved to concrete rows first, or already concrete rows.
func (k *Kernel) resolveRefs(ctx context.Context, l *loader, refs []ref, declared bool) error {
	byType := make(map[string][]int64)
	for _, r := range refs {
		byType[r.typ] = append(byType[r.typ], r.id)
	}

	targets := make(map[navigate.Row]*object.Object)
	for _, typ := range slices.Sorted(maps.Keys(byType)) {
		ids := byType[typ]
		concrete := make(map[int64]navigate.Row, len(ids))
		if declared && typ != object.ArrayType {
			rows, err := k.resolve(ctx, l.ex, typ, ids)
			if err != nil {
				return err
			}
			concrete = rows
		} else {
			for _, id := range ids {
				concrete[id] = navigate.Row{Type: typ, ID: id}
			}
		}

		byConcrete := make(map[string][]int64)
		for _, id := range ids {
			r, ok := concrete[id]
			if !ok {
				return fmt.Errorf("%w: referenced %s row %d is missing", ErrInconsistent, typ, id)
			}
			byConcrete[r.Type] = append(byConcrete[r.Type], r.ID)
		}
		loaded := make(map[navigate.Row]*object.Object, len(ids))
		for _, ct := range slices.Sorted(maps.Keys(byConcrete)) {
			objs, err := k.load(ctx, l, ct, byConcrete[ct])
			if err != nil {
				return err
			}
			for _, id := range byConcrete[ct] {
				o, ok := objs[id]
				if !ok {
					return fmt.Errorf("%w: referenced %s row %d is missing", ErrInconsistent, ct, id)
				}
				loaded[navigate.Row{Type: ct, ID: id}] = o
			}
		}
		for _, id := range ids {
			targets[navigate.Row{Type: typ, ID: id}] = loaded[concrete[id]]
		}
	}

	for _, r := range refs {
		o := targets[navigate.Row{Type: r.typ, ID: r.id}]
		if r.name != "" {
			r.obj.Set(r.name, o)
		} else {
			r.obj.SetAt(r.index, o)
		}
	}
	return nil
}

// array is one scanned array row.
type array struct {
	elem   shape.TypeRef
	length int64
}

// loadArrays materializes arrays by id with their members.
func (k *Kernel) loadArrays(ctx context.Context, l *loader, ids []int64, out map[int64]*object.Object) error {
	meta := []string{descriptor.ColumnComponentType, descriptor.ColumnLength}
	rows, err := k.scan(ctx, l.ex, k.gen.Rows(descriptor.ArrayTable, meta, descriptor.ColumnID, "", ids), len(meta))
	if err != nil {
		return err
	}

	arrays := make(map[int64]array, len(rows))
	byTable := make(map[string][]int64)
	for _, r := range rows {
		comp, err := k.dialect.Decode(shape.String, r.values[0])
		if err != nil {
			return err
		}
		name, _ := comp.(string)
		elem, err := shape.ParseTypeRef(name)
		if err != nil {
			return fmt.Errorf("%w: array %d has component type %q", ErrInconsistent, r.id, name)
		}
		length, err := k.dialect.Decode(shape.Int64, r.values[1])
		if err != nil {
			return err
		}
		n, _ := length.(int64)
		arrays[r.id] = array{elem: elem, length: n}
		table := descriptor.MemberTable(elem)
		byTable[table] = append(byTable[table], r.id)
	}

	fresh := make(map[int64]*object.Object, len(arrays))
	for id, a := range arrays {
		out[id] = k.instance(l, descriptor.ArrayTable, id, func() *object.Object { return object.NewArray(a.elem) })
		fresh[id] = object.NewArray(a.elem, make([]any, a.length)...)
	}

	var refs []ref
	for _, table := range slices.Sorted(maps.Keys(byTable)) {
		members, err := k.members(ctx, l.ex, table, byTable[table])
		if err != nil {
			return err
		}
		for _, m := range members {
			a := arrays[m.arrayID]
			if m.position < 0 || m.position >= a.length {
				return fmt.Errorf("%w: array %d has member at position %d of %d", ErrInconsistent, m.arrayID, m.position, a.length)
			}
			if m.value == nil {
				continue
			}
			kind := descriptor.MemberKind(a.elem)
			v, err := k.dialect.Decode(kind, m.value)
			if err != nil {
				return fmt.Errorf("failed to decode member of array %d: %w", m.arrayID, err)
			}
			if kind != shape.Reference {
				fresh[m.arrayID].SetAt(int(m.position), v)
				continue
			}
			refs = append(refs, ref{obj: fresh[m.arrayID], index: int(m.position), typ: m.class, id: v.(int64)})
		}
	}

	if err := k.resolveRefs(ctx, l, refs, false); err != nil {
		return err
	}
	for id, f := range fresh {
		out[id].Replace(f)
	}
	return nil
}

// member is one scanned array member.
type member struct {
	arrayID  int64
	position int64
	value    any
	class    string
}

func (k *Kernel) members(ctx context.Context, ex adapter.Executor, table string, arrayIDs []int64) ([]member, error) {
	var out []member
	for _, st := range k.gen.Members(table, arrayIDs) {
		rows, err := ex.QueryContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "select members", err)
		}
		for rows.Next() {
			var (
				m     member
				class sql.NullString
			)
			if err := rows.Scan(&m.arrayID, &m.position, &m.value, &class); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan array member: %w", err)
			}
			if b, ok := m.value.([]byte); ok {
				m.value = append([]byte(nil), b...)
			}
			m.class = class.String
			out = append(out, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "select members", err)
		}
	}
	return out, nil
}
