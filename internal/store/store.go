package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/dust/internal/entity"
)

// Store maps the entities of an entity.Store onto relational tables.
//
// A Store does not lock the entity store it persists; callers serialize
// access (see engine.Engine).
type Store struct {
	db       *sql.DB
	dialect  Dialect
	entities *entity.Store
	logger   *zap.Logger
	passID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence passes and loads.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPassIDs overrides the generator for persistence pass ids.
func WithPassIDs(next func() string) Option {
	return func(s *Store) { s.passID = next }
}

// Open connects to the database at dsn with dialect d and binds it to the
// entity store es.
//
// For SQLite the connection is configured with:
//   - a single open connection
//   - WAL mode and NORMAL synchronous mode
//   - a 5-second busy timeout
//
// Tables are not created; call GenerateSchema and apply the result, or use
// Migrate.
func Open(ctx context.Context, d Dialect, dsn string, es *entity.Store, opts ...Option) (*Store, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := d.Configure(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure %s: %w", d.Name(), err)
	}

	s := &Store{
		db:       db,
		dialect:  d,
		entities: es,
		logger:   zap.NewNop(),
		passID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect the store was opened with.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Entities returns the entity store being persisted.
func (s *Store) Entities() *entity.Store {
	return s.entities
}

// Schema derives the tables of the named type.
func (s *Store) Schema(typeName string) (*Schema, error) {
	mt, ok := s.entities.MetaType(typeName)
	if !ok {
		return nil, fmt.Errorf("schema %s: %w", typeName, entity.ErrUnknownType)
	}
	return DeriveSchema(s.dialect, mt)
}

// persistedTypes returns the persisted types of units, foundational types
// first. With no units every registered type is returned.
func (s *Store) persistedTypes(units []string) []*entity.MetaType {
	var out []*entity.MetaType
	seen := make(map[string]bool)
	add := func(mt *entity.MetaType) {
		if mt.Persisted() && !seen[mt.Name] {
			seen[mt.Name] = true
			out = append(out, mt)
		}
	}
	for _, mt := range s.entities.TypesOf(entity.UnitEntityMeta) {
		add(mt)
	}
	if len(units) == 0 {
		for _, mt := range s.entities.Types() {
			add(mt)
		}
		return out
	}
	for _, u := range units {
		for _, mt := range s.entities.TypesOf(u) {
			add(mt)
		}
	}
	return out
}

// GenerateSchema returns CREATE TABLE statements for every persisted type of
// the given units (all units when none are named) whose tables do not exist
// yet. The foundational types are always included.
func (s *Store) GenerateSchema(ctx context.Context, units ...string) ([]string, error) {
	var ddl []string
	for _, mt := range s.persistedTypes(units) {
		sch, err := DeriveSchema(s.dialect, mt)
		if err != nil {
			return nil, err
		}
		for _, t := range sch.Tables() {
			exists, err := s.dialect.TableExists(ctx, s.db, t.Name)
			if err != nil {
				return nil, fmt.Errorf("generate schema: %w", err)
			}
			if exists {
				continue
			}
			stmt, err := CreateStatement(s.dialect, t)
			if err != nil {
				return nil, fmt.Errorf("generate schema: %w", err)
			}
			ddl = append(ddl, stmt)
		}
	}
	return ddl, nil
}

// Migrate creates the missing tables of the given units in one transaction
// and returns the statements it applied.
func (s *Store) Migrate(ctx context.Context, units ...string) ([]string, error) {
	ddl, err := s.GenerateSchema(ctx, units...)
	if err != nil {
		return nil, err
	}
	if len(ddl) == 0 {
		return nil, nil
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, stmt := range ddl {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return &StatementError{SQL: stmt, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info("schema migrated", zap.Int("tables", len(ddl)), zap.String("dialect", s.dialect.Name()))
	return ddl, nil
}

// txBeginner is satisfied by *sql.DB and *sql.Conn.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, b txBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
