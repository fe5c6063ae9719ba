package navigate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/adapter/sqlite"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/shape"
)

func TestNavigator(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	for _, table := range []string{"EMPLOYEE", "PERSON", "NAMED", descriptor.RootTable} {
		_, err := db.Exec("CREATE TABLE " + table + " (C__ID INTEGER PRIMARY KEY AUTOINCREMENT, C__REAL_CLASS TEXT, C__REAL_ID INTEGER)")
		require.NoError(t, err)
	}
	insert := func(table, class string, realID int64) int64 {
		res, err := db.Exec("INSERT INTO "+table+" (C__REAL_CLASS, C__REAL_ID) VALUES (?, ?)", class, realID)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}

	// Offset the id sequences so level ids differ.
	insert("PERSON", "", 0)
	insert(descriptor.RootTable, "", 0)
	insert(descriptor.RootTable, "", 0)

	employee := insert("EMPLOYEE", "", 0)
	person := insert("PERSON", "Employee", employee)
	named := insert("NAMED", "Employee", employee)
	root := insert(descriptor.RootTable, "Person", person)

	d := sqlite.New()
	reg := shape.NewRegistry().MustRegister(
		shape.InterfaceOf("Named", nil),
		shape.Class("Person", ""),
		shape.Class("Employee", "Person").Implements("Named"),
	)
	nav := New(d, inheritance.NewCache(descriptor.NewCache(reg, d)))

	t.Run("concrete from every level", func(t *testing.T) {
		for typeName, id := range map[string]int64{"Employee": employee, "Person": person, "Named": named, shape.Root: root} {
			got, ok, err := nav.Concrete(ctx, db, typeName, id)
			require.NoError(t, err, typeName)
			assert.True(t, ok)
			assert.Equal(t, Row{Type: "Employee", ID: employee}, got, typeName)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		_, ok, err := nav.Concrete(ctx, db, "Person", 999)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("broken chain", func(t *testing.T) {
		broken := insert(descriptor.RootTable, "Person", 999)
		_, _, err := nav.Concrete(ctx, db, shape.Root, broken)
		assert.True(t, errors.Is(err, ErrInconsistent))
	})

	t.Run("levels", func(t *testing.T) {
		ids, err := nav.Levels(ctx, db, Row{Type: "Employee", ID: employee})
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"Employee": employee, "Person": person, "Named": named, shape.Root: root}, ids)

		id, ok, err := nav.Level(ctx, db, Row{Type: "Employee", ID: employee}, shape.Root)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, root, id)

		_, ok, err = nav.Level(ctx, db, Row{Type: "Person", ID: person}, "Named")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
