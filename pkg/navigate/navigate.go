// Package navigate walks the C__REAL_CLASS / C__REAL_ID back-references
// between the level rows of one stored object.
package navigate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
)

// ErrInconsistent is returned when a level row points at a row that does
// not exist, or the back-references form a loop.
var ErrInconsistent = errors.New("level rows are inconsistent")

// maxDepth bounds the number of back-references followed from one row.
const maxDepth = 256

// Row is one row of a level table.
type Row struct {
	Type string
	ID   int64
}

// Navigator follows back-references through one dialect.
type Navigator struct {
	dialect adapter.Dialect
	stacks  *inheritance.Cache
}

// New creates a navigator.
func New(d adapter.Dialect, stacks *inheritance.Cache) *Navigator {
	return &Navigator{dialect: d, stacks: stacks}
}

func (n *Navigator) types() *descriptor.Cache { return n.stacks.Types() }

// Concrete follows a level row down to the concrete row of its object.
// The boolean is false when the starting row does not exist.
func (n *Navigator) Concrete(ctx context.Context, ex adapter.Executor, typeName string, id int64) (Row, bool, error) {
	cur := Row{Type: typeName, ID: id}
	for depth := 0; depth < maxDepth; depth++ {
		t, err := n.types().Type(cur.Type)
		if err != nil {
			return Row{}, false, err
		}

		var (
			realClass sql.NullString
			realID    sql.NullInt64
		)
		err = ex.QueryRowContext(ctx, adapter.Rebind(n.dialect,
			"SELECT "+descriptor.ColumnRealClass+", "+descriptor.ColumnRealID+" FROM "+t.Table+
				" WHERE "+descriptor.ColumnID+" = ?"), cur.ID).Scan(&realClass, &realID)
		if errors.Is(err, sql.ErrNoRows) {
			if depth == 0 {
				return Row{}, false, nil
			}
			return Row{}, false, fmt.Errorf("%w: %s row %d is missing", ErrInconsistent, t.Table, cur.ID)
		}
		if err != nil {
			return Row{}, false, adapter.WrapError(n.dialect.ID(), "resolve concrete row", err)
		}
		if !realClass.Valid || realClass.String == "" {
			return cur, true, nil
		}
		cur = Row{Type: realClass.String, ID: realID.Int64}
	}
	return Row{}, false, fmt.Errorf("%w: back-references of %s:%d do not terminate", ErrInconsistent, typeName, id)
}

// Levels returns the ids of every level row of a concrete row, keyed by
// type name.
func (n *Navigator) Levels(ctx context.Context, ex adapter.Executor, concrete Row) (map[string]int64, error) {
	stack, err := n.stacks.Stack(concrete.Type)
	if err != nil {
		return nil, err
	}

	ids := map[string]int64{concrete.Type: concrete.ID}
	for _, node := range stack.Nodes()[1:] {
		id, err := n.parentID(ctx, ex, node, ids[node.Child.Name])
		if err != nil {
			return nil, err
		}
		ids[node.Name] = id
	}
	return ids, nil
}

// Level returns the id of the row of one level of a concrete row. The
// boolean is false when the concrete type does not extend the level.
func (n *Navigator) Level(ctx context.Context, ex adapter.Executor, concrete Row, level string) (int64, bool, error) {
	if concrete.Type == level {
		return concrete.ID, true, nil
	}
	stack, err := n.stacks.Stack(concrete.Type)
	if err != nil {
		return 0, false, err
	}
	node, ok := stack.Node(level)
	if !ok {
		return 0, false, nil
	}

	chain := node.ChildChain()
	id := concrete.ID
	for i := len(chain) - 2; i >= 0; i-- {
		if id, err = n.parentID(ctx, ex, chain[i], id); err != nil {
			return 0, false, err
		}
	}
	return id, true, nil
}

// parentID reads the id of the row of node pointing at its child's row.
func (n *Navigator) parentID(ctx context.Context, ex adapter.Executor, node *inheritance.Node, childID int64) (int64, error) {
	var id int64
	err := ex.QueryRowContext(ctx, adapter.Rebind(n.dialect,
		"SELECT "+descriptor.ColumnID+" FROM "+node.Table+" WHERE "+
			descriptor.ColumnRealClass+" = ? AND "+descriptor.ColumnRealID+" = ?"), node.Child.Name, childID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: no %s row for %s:%d", ErrInconsistent, node.Table, node.Child.Name, childID)
	}
	if err != nil {
		return 0, adapter.WrapError(n.dialect.ID(), "resolve level row", err)
	}
	return id, nil
}
