package health

import (
	"context"
	"runtime"
	"strings"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines run.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// ColumnLister lists the column names of a table; none means no table.
type ColumnLister func(ctx context.Context, table string) ([]string, error)

// ColumnsCheck fails unless table exists and, for every group, at least one
// of the group's columns is present. Names compare case-insensitively.
func ColumnsCheck(list ColumnLister, table string, groups ...[]string) CheckFunc {
	return func(ctx context.Context) error {
		cols, err := list(ctx, table)
		if err != nil {
			return errors.Wrapf(err, "list columns of %s", table)
		}
		if len(cols) == 0 {
			return errors.Errorf("table %s not found", table)
		}

		present := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			present[strings.ToLower(c)] = struct{}{}
		}
	Groups:
		for _, group := range groups {
			for _, c := range group {
				if _, ok := present[strings.ToLower(c)]; ok {
					continue Groups
				}
			}
			return errors.Errorf("table %s has none of the columns %s", table, strings.Join(group, ", "))
		}
		return nil
	}
}
