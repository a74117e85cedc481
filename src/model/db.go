package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/username/taxfolio/ledger/src/utils"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so accessors can run inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + strings.Repeat(",?", n-1)
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func parseStoredDate(s string) (time.Time, error) {
	t, err := utils.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt stored date: %w", err)
	}
	return t, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
