package persist

import (
	"context"
	"fmt"
	"iter"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/clause"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/statement"
)

// Find returns the objects of a type, including subtypes, matching
// clauses. Ids are selected when iteration starts and objects are loaded
// a page at a time; each iteration runs the query again. Arrays are not
// returned.
func (k *Kernel) Find(ctx context.Context, ex adapter.Executor, typeName string, clauses ...clause.Clause) iter.Seq2[*object.Object, error] {
	return func(yield func(*object.Object, error) bool) {
		if err := k.begin(); err != nil {
			yield(nil, err)
			return
		}
		ok, err := k.ready(ctx, ex, typeName, clauses)
		if err != nil {
			yield(nil, err)
			return
		}
		if !ok {
			return
		}

		ids, err := k.findIDs(ctx, ex, typeName, clauses)
		if err != nil {
			yield(nil, err)
			return
		}
		for start := 0; start < len(ids); start += k.opts.PageSize {
			page := ids[start:min(start+k.opts.PageSize, len(ids))]
			l := k.newLoader(ex, false)
			objs, err := k.loadIDs(ctx, l, typeName, page)
			if err != nil {
				yield(nil, err)
				return
			}
			k.publish(l)
			for _, o := range objs {
				if !yield(o, nil) {
					return
				}
			}
		}
	}
}

// FindAll collects the results of Find.
func (k *Kernel) FindAll(ctx context.Context, ex adapter.Executor, typeName string, clauses ...clause.Clause) ([]*object.Object, error) {
	var out []*object.Object
	for o, err := range k.Find(ctx, ex, typeName, clauses...) {
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// findIDs selects the matching ids of the type's table, de-duplicated in
// result order.
func (k *Kernel) findIDs(ctx context.Context, ex adapter.Executor, typeName string, clauses []clause.Clause) ([]int64, error) {
	st, err := k.gen.IDs(typeName, clauses, true)
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, adapter.WrapError(k.dialect.ID(), "find", err)
	}
	defer rows.Close()

	var ids []int64
	seen := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(k.dialect.ID(), "find", err)
	}
	return ids, nil
}

// Count counts the objects of a type matching clauses. Ordering and
// paging clauses are ignored.
func (k *Kernel) Count(ctx context.Context, ex adapter.Executor, typeName string, clauses ...clause.Clause) (int64, error) {
	if err := k.begin(); err != nil {
		return 0, err
	}
	ok, err := k.ready(ctx, ex, typeName, clauses)
	if err != nil || !ok {
		return 0, err
	}

	st, err := k.gen.Count(typeName, clauses)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := ex.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, adapter.WrapError(k.dialect.ID(), "count", err)
	}
	return n, nil
}

// Aggregate computes aggregates over the objects of a type matching
// clauses, in one statement. Over no rows counts and sums are 0 and
// averages, minimums and maximums are NaN.
func (k *Kernel) Aggregate(ctx context.Context, ex adapter.Executor, typeName string, aggs []statement.Aggregate, clauses ...clause.Clause) ([]float64, error) {
	if err := k.begin(); err != nil {
		return nil, err
	}
	ok, err := k.ready(ctx, ex, typeName, clauses)
	if err != nil {
		return nil, err
	}

	raw := make([]any, len(aggs))
	if ok {
		st, err := k.gen.Aggregates(typeName, clauses, aggs)
		if err != nil {
			return nil, err
		}
		dest := make([]any, len(raw))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := ex.QueryRowContext(ctx, st.SQL, st.Args...).Scan(dest...); err != nil {
			return nil, adapter.WrapError(k.dialect.ID(), "aggregate", err)
		}
	}

	out := make([]float64, len(aggs))
	for i, a := range aggs {
		if raw[i] == nil && (a.Func == statement.Count || a.Func == statement.Sum) {
			continue
		}
		f, err := adapter.ToFloat64(raw[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s(%s): %w", a.Func, a.Field, err)
		}
		out[i] = f
	}
	return out, nil
}

