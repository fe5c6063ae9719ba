package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/clause"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/migrate"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// EnsureSchema creates or migrates the tables of the named types. Without
// names every registered type is ensured.
func (k *Kernel) EnsureSchema(ctx context.Context, ex adapter.Executor, names ...string) error {
	if err := k.begin(); err != nil {
		return err
	}
	if len(names) == 0 {
		names = k.registry.Names()
	}
	for _, name := range names {
		if err := k.ensure(ctx, ex, name); err != nil {
			return err
		}
	}
	return nil
}

// PlanMigration computes the changes the stored tables of a type need
// without applying them.
func (k *Kernel) PlanMigration(ctx context.Context, ex adapter.Executor, name string) (*migrate.Plan, error) {
	if err := k.begin(); err != nil {
		return nil, err
	}
	stack, err := k.stacks.Stack(name)
	if err != nil {
		return nil, err
	}
	return k.migrator.Plan(ctx, ex, stack)
}

// ensure brings the tables of a type in line with its shape once per
// kernel. It runs on the caller's executor before the operation's own
// transaction is opened.
func (k *Kernel) ensure(ctx context.Context, ex adapter.Executor, name string) error {
	if _, ok := k.verified.Load(name); ok {
		return nil
	}

	k.schemaMu.Lock()
	defer k.schemaMu.Unlock()
	if _, ok := k.verified.Load(name); ok {
		return nil
	}

	stack, err := k.stacks.Stack(name)
	if err != nil {
		return err
	}
	plan, err := k.migrator.Plan(ctx, ex, stack)
	if err != nil {
		return err
	}

	if !plan.Empty() {
		if len(plan.NewTables) > 0 && !k.opts.CreateSchema {
			return &migrate.SchemaPermissionError{Table: plan.NewTables[0].Table, Action: "creation"}
		}
		if plan.Alters() && !k.opts.AlterSchema {
			table := plan.Type
			if len(plan.Changes) > 0 {
				table = plan.Changes[0].Table
			}
			return &migrate.SchemaPermissionError{Table: table, Action: "alteration"}
		}

		err := k.atomic(ctx, ex, func(tx adapter.Executor) error {
			rel := &releaser{k: k}
			if err := k.migrator.Apply(ctx, tx, plan, rel); err != nil {
				return err
			}
			if err := rel.settle(ctx, tx); err != nil {
				return err
			}
			return k.collect(ctx, tx, rel.orphans, newDeletion())
		})
		if err != nil {
			return err
		}
		k.log.With("kernel", k.id.String()).With("type", name).Info("Schema of %s updated: %d new tables, %d changes",
			name, len(plan.NewTables), len(plan.Changes))
	}

	k.verified.Store(name, struct{}{})
	return nil
}

// ensureMembers creates the member table of an array element type.
func (k *Kernel) ensureMembers(ctx context.Context, ex adapter.Executor, elem shape.TypeRef) error {
	key := "member:" + descriptor.MemberTable(elem)
	if _, ok := k.verified.Load(key); ok {
		return nil
	}

	k.schemaMu.Lock()
	defer k.schemaMu.Unlock()
	if _, ok := k.verified.Load(key); ok {
		return nil
	}
	if _, err := k.migrator.EnsureMemberTable(ctx, ex, elem, k.opts.CreateSchema); err != nil {
		return err
	}
	k.verified.Store(key, struct{}{})
	return nil
}

// ensureGraph ensures the tables of every object reachable from o.
func (k *Kernel) ensureGraph(ctx context.Context, ex adapter.Executor, o *object.Object, seen map[*object.Object]bool) error {
	if seen[o] {
		return nil
	}
	seen[o] = true

	if o.IsArray() {
		if err := k.ensure(ctx, ex, object.ArrayType); err != nil {
			return err
		}
		if err := k.ensureMembers(ctx, ex, o.Elem()); err != nil {
			return err
		}
		for _, item := range o.Items() {
			if sub, ok := item.(*object.Object); ok && sub != nil {
				if err := k.ensureGraph(ctx, ex, sub, seen); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := k.ensure(ctx, ex, o.Type()); err != nil {
		return err
	}
	for _, name := range o.Names() {
		if sub, ok := o.Value(name).(*object.Object); ok {
			if err := k.ensureGraph(ctx, ex, sub, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// ready ensures the tables a query over a type touches. It reports false
// when the searched type has no table and creating one is not allowed, in
// which case nothing of that type is stored.
func (k *Kernel) ready(ctx context.Context, ex adapter.Executor, name string, clauses []clause.Clause) (bool, error) {
	err := k.ensure(ctx, ex, name)
	var perm *migrate.SchemaPermissionError
	if errors.As(err, &perm) && perm.Action == "creation" {
		t, terr := k.types.Type(name)
		if terr != nil {
			return false, terr
		}
		_, ok, terr := k.catalog.TableType(ctx, ex, t.Table)
		if terr != nil {
			return false, terr
		}
		if !ok {
			return false, nil
		}
	}
	if err != nil {
		return false, err
	}

	for _, t := range clauseTypes(clauses) {
		if err := k.ensure(ctx, ex, t); err != nil {
			return false, err
		}
	}
	return true, nil
}

// clauseTypes lists the types named by subqueries and examples.
func clauseTypes(clauses []clause.Clause) []string {
	var out []string
	var walk func(c clause.Clause)
	walk = func(c clause.Clause) {
		switch c := c.(type) {
		case clause.Comparison:
			if c.Sub != nil {
				out = append(out, c.Sub.Type)
				for _, x := range c.Sub.Clauses {
					walk(x)
				}
			}
		case clause.Conjunction:
			for _, x := range c {
				walk(x)
			}
		case clause.Disjunction:
			for _, x := range c {
				walk(x)
			}
		case clause.Negation:
			walk(c.Clause)
		case clause.Example:
			if c.Object != nil && !c.Object.IsArray() {
				out = append(out, c.Object.Type())
			}
		}
	}
	for _, c := range clauses {
		walk(c)
	}
	return out
}

// releaser drops the ownership edges of reference and array values the
// migrator clears, and remembers the released rows so they can be
// collected once the plan is applied. Edges are dropped only after the
// plan is applied, and only when no remaining column of the owner still
// holds the target.
type releaser struct {
	k        *Kernel
	released []release
	orphans  []navigate.Row
}

// release is one cleared value, by concrete owner and target.
type release struct {
	owner  navigate.Row
	target navigate.Row
}

func (r *releaser) Release(ctx context.Context, ex adapter.Executor, owner navigate.Row, ref shape.TypeRef, value int64) error {
	k := r.k
	oc, ok, err := k.nav.Concrete(ctx, ex, owner.Type, owner.ID)
	if shape.IsUnknownType(err) {
		k.log.Warnf("Cannot release %s:%d held by unregistered type: %v", ref, value, err)
		return nil
	}
	if err != nil || !ok {
		return err
	}

	target := navigate.Row{Type: object.ArrayType, ID: value}
	if ref.Kind == shape.Reference {
		target, ok, err = k.nav.Concrete(ctx, ex, ref.Name, value)
		if err != nil {
			return fmt.Errorf("failed to resolve released reference: %w", err)
		}
		if !ok {
			return nil
		}
	}
	r.released = append(r.released, release{owner: oc, target: target})
	return nil
}

// settle drops the edges of released values whose owner no longer holds
// the target in any column.
func (r *releaser) settle(ctx context.Context, ex adapter.Executor) error {
	k := r.k
	done := make(map[release]bool, len(r.released))
	for _, rl := range r.released {
		if done[rl] {
			continue
		}
		done[rl] = true

		held, err := k.holds(ctx, ex, rl.owner, rl.target)
		if err != nil {
			return err
		}
		if held {
			continue
		}
		ownerRow, err := k.row(rl.owner)
		if err != nil {
			return err
		}
		targetRow, err := k.row(rl.target)
		if err != nil {
			return err
		}
		removed, err := k.tracker.Unprotect(ctx, ex, ownerRow, targetRow)
		if err != nil {
			return err
		}
		if removed {
			r.orphans = append(r.orphans, rl.target)
		}
	}
	return nil
}

// holds reports whether a stored reference or array column of a concrete
// row still points at target. Columns are read as the catalog records
// them, not as the registered shape declares them.
func (k *Kernel) holds(ctx context.Context, ex adapter.Executor, owner, target navigate.Row) (bool, error) {
	stack, err := k.stacks.Stack(owner.Type)
	if err != nil {
		return false, err
	}
	levels, err := k.nav.Levels(ctx, ex, owner)
	if err != nil {
		return false, err
	}

	for _, node := range stack.Nodes() {
		cols, err := k.catalog.Columns(ctx, ex, node.Table)
		if err != nil {
			return false, err
		}
		for _, col := range cols {
			ref, err := col.Type()
			if err != nil || !ref.IsObject() {
				continue
			}
			var raw any
			err = ex.QueryRowContext(ctx, adapter.Rebind(k.dialect, "SELECT "+col.Name+" FROM "+node.Table+
				" WHERE "+descriptor.ColumnID+" = ?"), levels[node.Name]).Scan(&raw)
			if err != nil {
				return false, adapter.WrapError(k.dialect.ID(), "read "+node.Table+"."+col.Name, err)
			}
			if raw == nil {
				continue
			}
			v, err := k.dialect.Decode(shape.Reference, raw)
			if err != nil {
				return false, err
			}
			id := v.(int64)

			if ref.Kind == shape.Array {
				if target.Type == object.ArrayType && target.ID == id {
					return true, nil
				}
				continue
			}
			if target.Type == object.ArrayType {
				continue
			}
			cur, ok, err := k.nav.Concrete(ctx, ex, ref.Name, id)
			if err != nil {
				return false, err
			}
			if ok && cur == target {
				return true, nil
			}
		}
	}
	return false, nil
}
