package repository

import (
	"context"
	"errors"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"

	"github.com/joseph-ayodele/docreader/internal/common"
)

func columnNames(cols []*schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func queryAll[T any](ctx context.Context, ex dialect.ExecQuerier, query string, args []any) ([]T, error) {
	var rows entsql.Rows
	if err := ex.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	if err := entsql.ScanSlice(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func queryInt(ctx context.Context, ex dialect.ExecQuerier, query string, args []any) (int, error) {
	var rows entsql.Rows
	if err := ex.Query(ctx, query, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	return entsql.ScanInt(rows)
}

// execAffected runs a statement and returns the number of rows it touched.
func execAffected(ctx context.Context, ex dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res entsql.Result
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func now() time.Time { return time.Now().UTC() }

func isInvalidState(err error) bool { return errors.Is(err, common.ErrInvalidState) }
