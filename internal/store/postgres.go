package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/roach88/dust/internal/entity"
)

// Postgres is the dialect for PostgreSQL through the pgx stdlib driver.
type Postgres struct {
	baseDialect
}

var postgresTypes = map[entity.Datatype]string{
	entity.DatatypeInt:     "BIGINT",
	entity.DatatypeNumeric: "DOUBLE PRECISION",
	entity.DatatypeBool:    "BOOLEAN",
	entity.DatatypeString:  "TEXT",
	entity.DatatypeBytes:   "BYTEA",
	entity.DatatypeJSON:    "TEXT",
	entity.DatatypeEntity:  "TEXT",
}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "pgx" }

func (Postgres) Configure(context.Context, *sql.DB) error { return nil }

func (Postgres) SQLType(d entity.Datatype, c entity.Cardinality, primaryKey bool) string {
	if primaryKey && d == entity.DatatypeString {
		return "VARCHAR(100)"
	}
	if c == entity.CardMap {
		return "TEXT"
	}
	return postgresTypes[d]
}

func (Postgres) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
