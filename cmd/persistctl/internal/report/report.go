// Package report implements the persistctl commands against an open
// kernel and prints their results.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/redbco/redb-persist/pkg/health"
	"github.com/redbco/redb-persist/pkg/persist"
	"github.com/redbco/redb-persist/pkg/statement"
)

var (
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Inspect lists the stored types with their tables and object counts and
// summarizes the ownership edges. Types missing from the registry are
// listed without a count.
func Inspect(ctx context.Context, k *persist.Kernel, out io.Writer, columns bool) error {
	db := k.DB()
	checker := k.Health(ctx)
	status := checker.Overall()
	if status == health.Healthy {
		fmt.Fprintf(out, "%s %s\n", bold("Health:"), green(status))
	} else {
		fmt.Fprintf(out, "%s %s\n", bold("Health:"), yellow(status))
		for _, c := range checker.Checks() {
			fmt.Fprintf(out, "  %s: %s\n", c.Name, c.Message)
		}
	}

	tables, err := k.Catalog().Tables(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	types, err := k.Types(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to list types: %w", err)
	}
	if len(types) == 0 {
		fmt.Fprintln(out, "No stored types found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Type\tTable\tObjects")
	fmt.Fprintln(w, "----\t-----\t-------")
	for _, name := range types {
		count := "-"
		if k.Registry().Has(name) {
			n, err := k.Count(ctx, db, name)
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", name, err)
			}
			count = fmt.Sprint(n)
		}
		for _, t := range tables {
			if t.Type != name {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, t.Table, count)
			if !columns {
				continue
			}
			cols, err := k.Catalog().Columns(ctx, db, t.Table)
			if err != nil {
				return fmt.Errorf("failed to list columns of %s: %w", t.Table, err)
			}
			for _, c := range cols {
				fmt.Fprintf(w, "  %s\t%s\t\n", c.Name, c.Class)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	edges, err := k.Catalog().Edges(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to list edges: %w", err)
	}
	pins := 0
	for _, e := range edges {
		if e.External() {
			pins++
		}
	}
	fmt.Fprintf(out, "\n%s %d pinned, %d owned\n", bold("Edges:"), pins, len(edges)-pins)
	return nil
}

// Migrate plans the schema changes of the named types, or of every
// registered type, and applies them unless dryRun is set.
func Migrate(ctx context.Context, k *persist.Kernel, out io.Writer, dryRun bool, names []string) error {
	if len(names) == 0 {
		names = k.Registry().Names()
	}
	if len(names) == 0 {
		return fmt.Errorf("no types declared, pass --shapes")
	}

	db := k.DB()
	pending := 0
	for _, name := range names {
		plan, err := k.PlanMigration(ctx, db, name)
		if err != nil {
			return fmt.Errorf("failed to plan %s: %w", name, err)
		}
		if plan.Empty() {
			fmt.Fprintf(out, "%s %s is up to date\n", green("✓"), name)
			continue
		}

		pending++
		fmt.Fprintf(out, "%s %s\n", yellow("~"), bold(name))
		for _, step := range plan.Describe() {
			fmt.Fprintf(out, "    %s\n", step)
		}
		if dryRun {
			continue
		}
		if err := k.EnsureSchema(ctx, db, name); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", name, err)
		}
		fmt.Fprintf(out, "%s %s migrated\n", green("✓"), name)
	}

	if dryRun && pending > 0 {
		fmt.Fprintf(out, "\n%d types need changes, nothing applied\n", pending)
	}
	return nil
}

// Count prints the number of stored objects of a type and the requested
// aggregates, each given as func:property.
func Count(ctx context.Context, k *persist.Kernel, out io.Writer, typeName string, specs []string) error {
	aggs := []statement.Aggregate{{Func: statement.Count}}
	for _, spec := range specs {
		agg, err := ParseAggregate(spec)
		if err != nil {
			return err
		}
		aggs = append(aggs, agg)
	}

	values, err := k.Aggregate(ctx, k.DB(), typeName, aggs)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", typeName, err)
	}

	fmt.Fprintf(out, "%s: %d objects\n", bold(typeName), int64(values[0]))
	for i, agg := range aggs[1:] {
		v := values[i+1]
		text := fmt.Sprint(v)
		if math.IsNaN(v) {
			text = "n/a"
		}
		fmt.Fprintf(out, "  %s(%s) = %s\n", strings.ToLower(string(agg.Func)), agg.Field, text)
	}
	return nil
}

// ParseAggregate parses func:property, for example sum:age.
func ParseAggregate(spec string) (statement.Aggregate, error) {
	fn, field, ok := strings.Cut(spec, ":")
	if !ok || field == "" {
		return statement.Aggregate{}, fmt.Errorf("invalid aggregate %q, expected func:property", spec)
	}
	switch f := statement.Func(strings.ToUpper(fn)); f {
	case statement.Sum, statement.Avg, statement.Min, statement.Max, statement.Count:
		return statement.Aggregate{Func: f, Field: field}, nil
	}
	return statement.Aggregate{}, fmt.Errorf("unknown aggregate function %q", fn)
}

// Copy duplicates every stored object of from into to.
func Copy(ctx context.Context, from, to *persist.Kernel, out io.Writer) error {
	n, err := from.Duplicate(ctx, from.DB(), to, to.DB())
	if err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	fmt.Fprintf(out, "%s Copied %d objects\n", green("✓"), n)
	return nil
}
