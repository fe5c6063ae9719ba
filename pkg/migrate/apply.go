package migrate

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// systemNameLength bounds C__REAL_CLASS and member class values.
const systemNameLength = 512

// Apply executes a plan. ex should be a transaction on engines with
// transactional DDL; the caller commits. rel may be nil when no ownership
// edges need releasing.
func (m *Migrator) Apply(ctx context.Context, ex adapter.Executor, p *Plan, rel Releaser) error {
	done := 0
	fail := func(step string, err error) error {
		return &MigrationError{Step: step, Partial: p.RequiresCommit && done > 0, Cause: err}
	}

	for _, t := range p.NewTables {
		node, ok := p.stack.Node(t.Type)
		if !ok {
			return fail("create table "+t.Table, fmt.Errorf("type %s is not part of the stack", t.Type))
		}
		if err := m.createTable(ctx, ex, p.stack, node); err != nil {
			return fail("create table "+t.Table, err)
		}
		done++
		m.log.Infof("Created table %s for %s", t.Table, t.Type)
	}

	for _, c := range p.steps() {
		if err := m.apply(ctx, ex, p, c, rel); err != nil {
			return fail(c.String(), err)
		}
		done++
		m.log.Infof("Migrated %s: %s", p.Type, c)
	}

	for _, table := range slices.Sorted(maps.Keys(p.Supers)) {
		if err := m.catalog.SetSupers(ctx, ex, table, p.Supers[table]); err != nil {
			return fail("set parents of "+table, err)
		}
		done++
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, ex adapter.Executor, p *Plan, c Change, rel Releaser) error {
	switch c.Kind {
	case IndexChange:
		if c.Drop {
			if err := m.ddl(ctx, ex, m.dialect.DropIndex(c.Index.Name, c.Table)); err != nil {
				return err
			}
			return m.catalog.DropIndex(ctx, ex, c.Table, c.Index.Name)
		}
		if err := m.ddl(ctx, ex, m.dialect.CreateIndex(c.Index.Name, c.Table, c.Index.Columns)); err != nil {
			return err
		}
		return m.catalog.AddIndex(ctx, ex, c.Index)

	case Deletion:
		if err := m.release(ctx, ex, c.Type, c.Table, c.From, c.FromType, rel); err != nil {
			return err
		}
		if err := m.dropColumn(ctx, ex, c.Table, c.From); err != nil {
			return err
		}
		return m.catalog.DropColumn(ctx, ex, c.Table, c.From)

	case Move:
		fromType := c.Type
		for _, node := range p.stack.Nodes() {
			if node.Table == c.FromTable {
				fromType = node.Name
			}
		}
		if err := m.release(ctx, ex, fromType, c.FromTable, c.From, c.FromType, rel); err != nil {
			return err
		}
		if err := m.dropColumn(ctx, ex, c.FromTable, c.From); err != nil {
			return err
		}
		if err := m.catalog.DropColumn(ctx, ex, c.FromTable, c.From); err != nil {
			return err
		}
		return m.addColumn(ctx, ex, c.Table, c.Property)

	case Rename:
		def := m.columnDef(c.Property)
		if !c.FromType.Equal(c.ToType) {
			def.Type = m.sqlType(c.FromType)
		}
		if err := m.renameColumn(ctx, ex, c.Table, c.From, def); err != nil {
			return err
		}
		if err := m.catalog.RenameColumn(ctx, ex, c.Table, c.From, c.To); err != nil {
			return err
		}
		if c.FromType.Equal(c.ToType) {
			return nil
		}
		if err := m.changeType(ctx, ex, c, rel); err != nil {
			return err
		}
		return m.catalog.SetColumnClass(ctx, ex, c.Table, c.To, c.ToType.String())

	case TypeChange:
		if err := m.changeType(ctx, ex, c, rel); err != nil {
			return err
		}
		return m.catalog.SetColumnClass(ctx, ex, c.Table, c.To, c.ToType.String())

	case Creation:
		return m.addColumn(ctx, ex, c.Table, c.Property)
	}
	return fmt.Errorf("unknown change kind %d", c.Kind)
}

func (m *Migrator) changeType(ctx context.Context, ex adapter.Executor, c Change, rel Releaser) error {
	column := c.To
	def := m.columnDef(c.Property)

	switch c.Outcome {
	case Preserved, PerRow:
		if c.FromType.Kind == shape.Reference {
			return m.repoint(ctx, ex, c, rel)
		}
		if m.sqlType(c.FromType) == def.Type {
			return nil
		}
		if m.dialect.Features().AlterColumnType && c.FromType.Kind.IsNumeric() && c.ToType.Kind.IsNumeric() {
			return m.ddl(ctx, ex, m.dialect.AlterColumnType(c.Table, def))
		}
		return m.convertColumn(ctx, ex, c.Table, column, c.FromType.Kind, c.ToType.Kind, def)
	}

	if err := m.release(ctx, ex, c.Type, c.Table, column, c.FromType, rel); err != nil {
		return err
	}
	if m.sqlType(c.FromType) == def.Type {
		if _, err := ex.ExecContext(ctx, "UPDATE "+c.Table+" SET "+column+" = NULL"); err != nil {
			return adapter.WrapError(m.dialect.ID(), "clear column", err)
		}
		return nil
	}
	if err := m.dropColumn(ctx, ex, c.Table, column); err != nil {
		return err
	}
	return m.ddl(ctx, ex, m.dialect.AddColumn(c.Table, def))
}

// repoint rewrites each stored reference to the row of the new declared
// type of the same object, clearing references whose object does not fit.
func (m *Migrator) repoint(ctx context.Context, ex adapter.Executor, c Change, rel Releaser) error {
	values, err := m.values(ctx, ex, c.Table, c.To)
	if err != nil {
		return err
	}

	update := adapter.Rebind(m.dialect, "UPDATE "+c.Table+" SET "+c.To+" = ? WHERE "+descriptor.ColumnID+" = ?")
	for _, v := range values {
		ref, err := m.dialect.Decode(shape.Reference, v.value)
		if err != nil {
			return err
		}
		old := ref.(int64)

		var next any
		concrete, ok, err := m.nav.Concrete(ctx, ex, c.FromType.Name, old)
		if err != nil {
			return err
		}
		if ok && m.registry.IsAssignable(concrete.Type, c.ToType.Name) {
			id, found, err := m.nav.Level(ctx, ex, concrete, c.ToType.Name)
			if err != nil {
				return err
			}
			if found {
				if id == old {
					continue
				}
				next = id
			}
		}
		if next == nil && ok && rel != nil {
			if err := rel.Release(ctx, ex, navigate.Row{Type: c.Type, ID: v.id}, c.FromType, old); err != nil {
				return err
			}
		}
		if _, err := ex.ExecContext(ctx, update, next, v.id); err != nil {
			return adapter.WrapError(m.dialect.ID(), "repoint reference", err)
		}
	}
	return nil
}

// convertColumn rebuilds a column with a new type, converting every value.
// The new column is filled under a temporary name and takes the old name
// once the old column is gone.
func (m *Migrator) convertColumn(ctx context.Context, ex adapter.Executor, table, column string, from, to shape.Kind, def adapter.ColumnDef) error {
	values, err := m.values(ctx, ex, table, column)
	if err != nil {
		return err
	}

	tmp := adapter.ColumnDef{Name: descriptor.Shorten("C__TMP_"+column, m.dialect.MaxNameLength()), Type: def.Type}
	if err := m.ddl(ctx, ex, m.dialect.AddColumn(table, tmp)); err != nil {
		return err
	}

	update := adapter.Rebind(m.dialect, "UPDATE "+table+" SET "+tmp.Name+" = ? WHERE "+descriptor.ColumnID+" = ?")
	for _, v := range values {
		decoded, err := m.dialect.Decode(from, v.value)
		if err != nil {
			return err
		}
		encoded, err := m.dialect.Encode(to, decoded)
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, update, encoded, v.id); err != nil {
			return adapter.WrapError(m.dialect.ID(), "convert value", err)
		}
	}

	if err := m.dropColumn(ctx, ex, table, column); err != nil {
		return err
	}
	return m.renameColumn(ctx, ex, table, tmp.Name, adapter.ColumnDef{Name: column, Type: def.Type})
}

// renameColumn renames natively or adds the new column, copies the values
// and drops the old one.
func (m *Migrator) renameColumn(ctx context.Context, ex adapter.Executor, table, from string, to adapter.ColumnDef) error {
	if m.dialect.Features().RenameColumn {
		return m.ddl(ctx, ex, m.dialect.RenameColumn(table, from, to.Name))
	}
	if err := m.ddl(ctx, ex, m.dialect.AddColumn(table, to)); err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, "UPDATE "+table+" SET "+to.Name+" = "+from); err != nil {
		return adapter.WrapError(m.dialect.ID(), "copy column", err)
	}
	return m.dropColumn(ctx, ex, table, from)
}

func (m *Migrator) dropColumn(ctx context.Context, ex adapter.Executor, table, column string) error {
	if !m.dialect.Features().DropColumn {
		return adapter.NewUnsupportedOperationError(m.dialect.ID(), "drop column", table+"."+column)
	}
	return m.ddl(ctx, ex, m.dialect.DropColumn(table, column))
}

func (m *Migrator) addColumn(ctx context.Context, ex adapter.Executor, table string, prop descriptor.Property) error {
	if err := m.ddl(ctx, ex, m.dialect.AddColumn(table, m.columnDef(prop))); err != nil {
		return err
	}
	return m.catalog.AddColumn(ctx, ex, table, catalog.Column{Name: prop.Column, Class: prop.Type.String()})
}

// release hands every non-null reference or array value of a column to the
// releaser.
func (m *Migrator) release(ctx context.Context, ex adapter.Executor, typeName, table, column string, ref shape.TypeRef, rel Releaser) error {
	if rel == nil || !ref.IsObject() {
		return nil
	}
	values, err := m.values(ctx, ex, table, column)
	if err != nil {
		return err
	}
	for _, v := range values {
		id, err := m.dialect.Decode(shape.Reference, v.value)
		if err != nil {
			return err
		}
		if err := rel.Release(ctx, ex, navigate.Row{Type: typeName, ID: v.id}, ref, id.(int64)); err != nil {
			return err
		}
	}
	return nil
}

type value struct {
	id    int64
	value any
}

// values reads the non-null values of a column. Rows are collected before
// any update runs on the same executor.
func (m *Migrator) values(ctx context.Context, ex adapter.Executor, table, column string) ([]value, error) {
	rows, err := ex.QueryContext(ctx, "SELECT "+descriptor.ColumnID+", "+column+" FROM "+table+
		" WHERE "+column+" IS NOT NULL ORDER BY "+descriptor.ColumnID)
	if err != nil {
		return nil, adapter.WrapError(m.dialect.ID(), "read column", err)
	}
	defer rows.Close()

	var out []value
	for rows.Next() {
		var v value
		if err := rows.Scan(&v.id, &v.value); err != nil {
			return nil, fmt.Errorf("failed to scan column value: %w", err)
		}
		if b, ok := v.value.([]byte); ok {
			v.value = append([]byte(nil), b...)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(m.dialect.ID(), "read column", err)
	}
	return out, nil
}

func (m *Migrator) ddl(ctx context.Context, ex adapter.Executor, stmt string) error {
	if stmt == "" {
		return adapter.NewUnsupportedOperationError(m.dialect.ID(), "schema change", "no statement for this engine")
	}
	m.log.Debugf("DDL: %s", stmt)
	if _, err := ex.ExecContext(ctx, stmt); err != nil {
		return adapter.WrapError(m.dialect.ID(), "ddl", err)
	}
	return nil
}

func (m *Migrator) columnDef(prop descriptor.Property) adapter.ColumnDef {
	return adapter.ColumnDef{Name: prop.Column, Type: m.dialect.ColumnType(prop.Kind(), prop.MaxLength, prop.LargeObject)}
}

func (m *Migrator) sqlType(t shape.TypeRef) string {
	return m.dialect.ColumnType(t.Kind, 0, false)
}

// createTable creates a level table with its system columns, property
// columns and indices, and records it in the catalog.
func (m *Migrator) createTable(ctx context.Context, ex adapter.Executor, stack *inheritance.Stack, node *inheritance.Node) error {
	cols := []adapter.ColumnDef{
		{Name: descriptor.ColumnID, Type: m.dialect.IDColumn(m.generatedIDs)},
		{Name: descriptor.ColumnRealClass, Type: m.dialect.ColumnType(shape.String, systemNameLength, false)},
		{Name: descriptor.ColumnRealID, Type: m.dialect.ColumnType(shape.Int64, 0, false)},
	}
	if node.Name == object.ArrayType {
		cols = append(cols,
			adapter.ColumnDef{Name: descriptor.ColumnComponentType, Type: m.dialect.ColumnType(shape.String, systemNameLength, false)},
			adapter.ColumnDef{Name: descriptor.ColumnLength, Type: m.dialect.ColumnType(shape.Int64, 0, false)},
		)
	}
	for _, prop := range node.Properties {
		cols = append(cols, m.columnDef(prop))
	}

	if err := m.ddl(ctx, ex, m.dialect.CreateTable(node.Table, cols)); err != nil {
		return err
	}
	backRef := descriptor.Shorten("IDXR_"+node.Table, m.dialect.MaxNameLength())
	if err := m.ddl(ctx, ex, m.dialect.CreateIndex(backRef, node.Table,
		[]string{descriptor.ColumnRealID, descriptor.ColumnRealClass})); err != nil {
		return err
	}

	if err := m.catalog.RegisterTable(ctx, ex, node.Table, node.Name); err != nil {
		return err
	}
	for _, prop := range node.Properties {
		if err := m.catalog.AddColumn(ctx, ex, node.Table, catalog.Column{Name: prop.Column, Class: prop.Type.String()}); err != nil {
			return err
		}
	}
	if err := m.catalog.SetSupers(ctx, ex, node.Table, parentTables(node)); err != nil {
		return err
	}

	for _, idx := range descriptor.TableIndexes(descriptor.Indexes(stack.Levels(), m.dialect), node.Table) {
		if err := m.ddl(ctx, ex, m.dialect.CreateIndex(idx.Name, idx.Table, idx.Columns)); err != nil {
			return err
		}
		if err := m.catalog.AddIndex(ctx, ex, idx); err != nil {
			return err
		}
	}
	return nil
}

// MemberTypeName is the catalog type name of array member tables.
const MemberTypeName = "C__ARRAY_MEMBER"

// EnsureMemberTable creates the member table for arrays of elem when it
// does not exist yet. It reports whether the table was created.
func (m *Migrator) EnsureMemberTable(ctx context.Context, ex adapter.Executor, elem shape.TypeRef, create bool) (bool, error) {
	table := descriptor.MemberTable(elem)
	_, ok, err := m.catalog.TableType(ctx, ex, table)
	if err != nil || ok {
		return false, err
	}
	if !create {
		return false, &SchemaPermissionError{Table: table, Action: "creation"}
	}

	kind := descriptor.MemberKind(elem)
	cols := []adapter.ColumnDef{
		{Name: descriptor.ColumnID, Type: m.dialect.IDColumn(m.generatedIDs)},
		{Name: descriptor.ColumnArrayID, Type: m.dialect.ColumnType(shape.Int64, 0, false)},
		{Name: descriptor.ColumnPosition, Type: m.dialect.ColumnType(shape.Int64, 0, false)},
		{Name: descriptor.ColumnValue, Type: m.dialect.ColumnType(kind, 0, kind == shape.String || kind == shape.Bytes)},
		{Name: descriptor.ColumnClass, Type: m.dialect.ColumnType(shape.String, systemNameLength, false)},
	}
	if err := m.ddl(ctx, ex, m.dialect.CreateTable(table, cols)); err != nil {
		return false, err
	}
	idx := descriptor.Shorten("IDXR_"+table, m.dialect.MaxNameLength())
	if err := m.ddl(ctx, ex, m.dialect.CreateIndex(idx, table, []string{descriptor.ColumnArrayID})); err != nil {
		return false, err
	}
	if err := m.catalog.RegisterTable(ctx, ex, table, MemberTypeName); err != nil {
		return false, err
	}
	m.log.Infof("Created array member table %s", table)
	return true, nil
}
