package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// SQLite is the dialect for github.com/mattn/go-sqlite3.
type SQLite struct {
	baseDialect
}

var sqliteTypes = map[entity.Datatype]string{
	entity.DatatypeInt:     "INTEGER",
	entity.DatatypeNumeric: "REAL",
	entity.DatatypeBool:    "INTEGER",
	entity.DatatypeString:  "TEXT",
	entity.DatatypeBytes:   "BLOB",
	entity.DatatypeJSON:    "TEXT",
	entity.DatatypeEntity:  "TEXT",
}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite3" }

// Configure limits the pool to one connection and applies the pragmas:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func (SQLite) Configure(ctx context.Context, db *sql.DB) error {
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (SQLite) SQLType(d entity.Datatype, c entity.Cardinality, primaryKey bool) string {
	if primaryKey && d == entity.DatatypeString {
		return "TEXT"
	}
	if c == entity.CardMap {
		return "TEXT"
	}
	return sqliteTypes[d]
}

func (SQLite) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

func (SQLite) Placeholder(int) string { return "?" }

// ToDB stores booleans as 0 or 1.
func (d SQLite) ToDB(dt entity.Datatype, v ir.IRValue) (any, error) {
	if b, ok := v.(ir.IRBool); ok {
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return d.baseDialect.ToDB(dt, v)
}
