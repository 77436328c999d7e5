package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// Execer runs statements. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier runs statements and queries.
type Querier interface {
	Execer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect is the capability surface a SQL backend exposes to the
// persistence engine.
type Dialect interface {
	// Name is the configuration name of the dialect.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// Configure applies connection settings after the database is opened.
	Configure(ctx context.Context, db *sql.DB) error

	// SQLType maps a field shape to a column type.
	SQLType(d entity.Datatype, c entity.Cardinality, primaryKey bool) string
	// TableExists reports whether table is present.
	TableExists(ctx context.Context, q Querier, table string) (bool, error)
	// CreateTableTemplate selects the DDL template for t.
	CreateTableTemplate(t *Table) string
	// Placeholder renders the n-th bind parameter, starting at 1.
	Placeholder(n int) string
	// Quote renders an identifier.
	Quote(ident string) string

	// ToDB converts a scalar to a driver argument.
	ToDB(d entity.Datatype, v ir.IRValue) (any, error)
	// FromDB converts a scanned column value to a scalar of datatype d.
	FromDB(d entity.Datatype, raw any) (ir.IRValue, error)
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// baseDialect holds the behaviour SQLite and PostgreSQL share.
type baseDialect struct{}

func (baseDialect) CreateTableTemplate(t *Table) string {
	if len(t.PrimaryKeys()) > 1 {
		return createTableMultiPKTemplate
	}
	return createTableTemplate
}

func (baseDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (baseDialect) ToDB(d entity.Datatype, v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString, ir.IRInt, ir.IRFloat, ir.IRBool, ir.IRBytes, ir.IRRef:
		return ir.Native(val), nil
	default:
		return nil, fmt.Errorf("cannot bind %s as %s column", ir.Kind(v), d)
	}
}

func (baseDialect) FromDB(d entity.Datatype, raw any) (ir.IRValue, error) {
	var v ir.IRValue
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		if d == entity.DatatypeBytes {
			v = ir.IRBytes(append([]byte(nil), val...))
		} else {
			v = ir.IRString(val)
		}
	case string:
		v = ir.IRString(val)
	case int64:
		v = ir.IRInt(val)
	case int32:
		v = ir.IRInt(val)
	case float64:
		v = ir.IRFloat(val)
	case float32:
		v = ir.IRFloat(val)
	case bool:
		v = ir.IRBool(val)
	case time.Time:
		v = ir.IRString(val.UTC().Format(time.RFC3339Nano))
	default:
		return nil, fmt.Errorf("unsupported column value %T", raw)
	}
	return entity.Coerce(d, v), nil
}
