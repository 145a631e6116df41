// Package sqlxrepos implements the repositories on Postgres with sqlx named queries.
// Repositories only hold a core.DBExecutor: every method runs on the executor passed by the
// service when one is given (e.g. a transaction), and on the repository's own otherwise.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// bindNamed compiles a query with :named parameters into a positional Postgres query.
func bindNamed(query string, arg interface{}) (string, []interface{}, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return "", nil, errors.Wrap(err, "binding query")
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

func execNamed(ctx context.Context, exec core.DBExecutor, query string, arg interface{}) (sql.Result, error) {
	q, args, err := bindNamed(query, arg)
	if err != nil {
		return nil, err
	}
	return exec.ExecContext(ctx, q, args...)
}

// selectRows scans every row of a named query into a slice of T (a struct with `db` tags).
func selectRows[T any](ctx context.Context, exec core.DBExecutor, query string, arg interface{}) ([]T, error) {
	q, args, err := bindNamed(query, arg)
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	dest := make([]T, 0)
	if err = sqlx.StructScan(rows, &dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// getRow returns the first row of a named query, or sql.ErrNoRows.
func getRow[T any](ctx context.Context, exec core.DBExecutor, query string, arg interface{}) (T, error) {
	var row T
	rows, err := selectRows[T](ctx, exec, query, arg)
	if err != nil {
		return row, err
	}
	if len(rows) == 0 {
		return row, sql.ErrNoRows
	}
	return rows[0], nil
}

// trapNoRowsErr maps psql "no rows" err to the resource's not found error
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func newID() string {
	return uuid.New().String()
}

// isUUID guards UUID columns: Postgres rejects malformed UUIDs instead of matching nothing.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// whereClause joins conditions with AND.
type whereClause []string

func (w whereClause) String() string {
	if len(w) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w, " AND ")
}

// orderBy only keeps orderings on the allowed columns.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool, fallback string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if allowed[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}
