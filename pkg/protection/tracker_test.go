package protection

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/adapter/sqlite"
	"github.com/redbco/redb-persist/pkg/catalog"
)

func newTracker(t *testing.T) (*Tracker, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	c := catalog.New(sqlite.New(), nil)
	require.NoError(t, c.Bootstrap(context.Background(), db))
	return NewTracker(c, nil), db
}

func TestTracker_External(t *testing.T) {
	ctx := context.Background()
	tr, db := newTracker(t)
	a := Row{Table: "A", ID: 1}

	ok, err := tr.IsProtected(ctx, db, a)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.ProtectExternal(ctx, db, a, "A"))
	require.NoError(t, tr.ProtectExternal(ctx, db, a, "A"))

	owners, err := tr.Owners(ctx, db, a)
	require.NoError(t, err)
	assert.Len(t, owners, 1)

	ok, err = tr.IsProtectedExternal(ctx, db, a)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := tr.UnprotectExternal(ctx, db, a)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = tr.UnprotectExternal(ctx, db, a)
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = tr.IsProtected(ctx, db, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_SharedOwnership(t *testing.T) {
	ctx := context.Background()
	tr, db := newTracker(t)
	p1, p2, c := Row{Table: "P", ID: 1}, Row{Table: "P", ID: 2}, Row{Table: "C", ID: 1}

	require.NoError(t, tr.Protect(ctx, db, p1, c, "C"))
	require.NoError(t, tr.Protect(ctx, db, p2, c, "C"))
	require.NoError(t, tr.Protect(ctx, db, p1, c, "C"))

	owned, err := tr.Owned(ctx, db, p1)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, c, owned[0].Property)

	removed, err := tr.Unprotect(ctx, db, p1, c)
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err := tr.IsProtected(ctx, db, c)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = tr.Unprotect(ctx, db, p2, c)
	require.NoError(t, err)
	ok, err = tr.IsProtected(ctx, db, c)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, tr.Protect(ctx, db, Row{}, c, "C"))
	_, err = tr.Unprotect(ctx, db, Row{}, c)
	assert.Error(t, err)
}

func TestTracker_Reachable(t *testing.T) {
	ctx := context.Background()
	tr, db := newTracker(t)
	root, a, b, lone := Row{Table: "R", ID: 1}, Row{Table: "A", ID: 1}, Row{Table: "B", ID: 1}, Row{Table: "L", ID: 1}

	// a and b reference each other; only root pins into the cycle.
	require.NoError(t, tr.Protect(ctx, db, a, b, "B"))
	require.NoError(t, tr.Protect(ctx, db, b, a, "A"))
	require.NoError(t, tr.Protect(ctx, db, root, a, "A"))
	require.NoError(t, tr.ProtectExternal(ctx, db, root, "R"))

	// p is stored without a pin and owns c.
	require.NoError(t, tr.Protect(ctx, db, Row{Table: "P", ID: 1}, Row{Table: "C", ID: 1}, "C"))

	tests := []struct {
		name     string
		row      Row
		skip     map[Row]bool
		expected bool
	}{
		{"pinned", root, nil, true},
		{"through owner", b, nil, true},
		{"owner deleted", b, map[Row]bool{root: true}, false},
		{"no owners", lone, nil, false},
		{"held by top-level owner", Row{Table: "C", ID: 1}, nil, true},
		{"top-level owner deleted", Row{Table: "C", ID: 1}, map[Row]bool{{Table: "P", ID: 1}: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tr.Reachable(ctx, db, tt.row, tt.skip)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}

	require.NoError(t, tr.Forget(ctx, db, a))
	owners, err := tr.Owners(ctx, db, b)
	require.NoError(t, err)
	assert.Empty(t, owners)
}
