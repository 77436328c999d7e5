// Package store persists an entity.Store to a relational database.
//
// Every persisted meta-type maps to:
//   - a primary table {unit}_{type} keyed by _global_id, with the ancestry
//     columns _unit, _meta_type and _entity_id and one _<field> column per
//     SINGLE or MAP field (MAP values as canonical JSON text)
//   - one auxiliary table {unit}_{type}_{field} per SET or LIST field, keyed
//     by (_global_id, _value_cnt) with a single _<field>_value column
//
// Types whose name starts with an underscore are never persisted.
//
// # Persistence pass
//
// Persist dispatches on committed state: uncommitted entities are inserted,
// dirty ones updated (primary row rewritten, auxiliary rows replaced),
// deleted ones skipped. Each entity commits in its own transaction.
//
// # Loading
//
// LoadType selects the primary rows and assigns fields through SET, then
// replays auxiliary rows through ADD in (_global_id, _value_cnt) order so
// LIST order survives.
//
// # Dialects
//
//   - SQLite via github.com/mattn/go-sqlite3 (WAL, busy_timeout=5000)
//   - PostgreSQL via github.com/jackc/pgx/v5/stdlib
package store
