package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/queryir"
	"github.com/roach88/dust/internal/querysql"
)

// unitTableOrder loads units before the types and fields they own.
var unitTableOrder = []string{entity.TypeUnit, entity.TypeTypeMeta, entity.TypeMetaField}

// LoadUnits loads the unit, type and field entities. Unit counters are
// restored so ids allocated afterwards continue where storage left off.
// Types must already be registered for their unit to resolve.
func (s *Store) LoadUnits(ctx context.Context) ([]*entity.Entity, error) {
	var loaded []*entity.Entity
	for _, name := range unitTableOrder {
		es, err := s.LoadType(ctx, name)
		if err != nil {
			return loaded, err
		}
		loaded = append(loaded, es...)
	}
	return loaded, nil
}

// LoadAll loads the foundational tables and then every persisted type of the
// given units (all registered units when none are named). Types whose tables
// do not exist are skipped.
func (s *Store) LoadAll(ctx context.Context, units ...string) ([]*entity.Entity, error) {
	loaded, err := s.LoadUnits(ctx)
	if err != nil {
		return loaded, err
	}
	for _, mt := range s.persistedTypes(units) {
		if mt.Unit == entity.UnitEntityMeta {
			continue
		}
		exists, err := s.dialect.TableExists(ctx, s.db, TableName(mt))
		if err != nil {
			return loaded, fmt.Errorf("load %s: %w", mt.Name, err)
		}
		if !exists {
			s.logger.Debug("table missing, skipping load", zap.String("type", mt.Name))
			continue
		}
		es, err := s.LoadType(ctx, mt.Name)
		if err != nil {
			return loaded, err
		}
		loaded = append(loaded, es...)
	}
	return loaded, nil
}

// LoadType reads every stored entity of a type into the entity store.
func (s *Store) LoadType(ctx context.Context, typeName string) ([]*entity.Entity, error) {
	return s.LoadWhere(ctx, queryir.Select{Type: typeName})
}

// LoadWhere reads the stored entities of q.Type that satisfy q.Filter into
// the entity store.
//
// The first pass selects the matching primary rows, locating or creating
// each entity and assigning its SINGLE and MAP fields through SET. The
// second pass reads the auxiliary rows of the same entities in
// (_global_id, _value_cnt) order and replays each member through ADD. LIST
// fields of loaded entities are cleared beforehand so a reload does not
// duplicate members. Loaded entities end up saved.
func (s *Store) LoadWhere(ctx context.Context, q queryir.Select) ([]*entity.Entity, error) {
	sch, err := s.Schema(q.Type)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", q.Type, err)
	}
	where, err := s.compiler().Compile(sch.Type, q.Filter)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", q.Type, err)
	}

	query, err := sch.Primary.selectWhere(s.dialect, where.SQL)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", q.Type, err)
	}
	loaded, err := s.loadPrimary(ctx, sch.Primary, query, where.Args)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", q.Type, err)
	}
	byGID := make(map[string]*entity.Entity, len(loaded))
	for _, e := range loaded {
		byGID[string(e.GlobalID())] = e
	}

	memberWhere := ""
	if !where.Empty() {
		memberWhere = fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
			s.dialect.Quote(ColGlobalID), s.dialect.Quote(ColGlobalID), s.dialect.Quote(sch.Primary.Name), where.SQL)
	}
	for _, aux := range sch.Aux {
		if aux.Field.Cardinality == entity.CardList {
			for _, e := range loaded {
				if _, err := s.entities.Del(e.Path().F(aux.Field.Name)); err != nil {
					return nil, fmt.Errorf("load %s: %w", q.Type, err)
				}
			}
		}
		query, err := aux.selectWhere(s.dialect, memberWhere)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", q.Type, err)
		}
		if err := s.loadMembers(ctx, aux, query, where.Args, byGID); err != nil {
			return nil, fmt.Errorf("load %s: %w", q.Type, err)
		}
	}

	for _, e := range loaded {
		s.entities.MarkSaved(e)
	}
	s.logger.Debug("type loaded",
		zap.String("type", q.Type),
		zap.Bool("filtered", !where.Empty()),
		zap.Int("entities", len(loaded)))
	return loaded, nil
}

// compiler compiles filters against the columns DeriveSchema lays out.
func (s *Store) compiler() *querysql.Compiler {
	return &querysql.Compiler{
		Dialect: s.dialect,
		Column:  fieldColumn,
	}
}

func (s *Store) loadPrimary(ctx context.Context, t *Table, query string, args []any) ([]*entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StatementError{SQL: query, Err: err}
	}
	defer rows.Close()

	var loaded []*entity.Entity
	for rows.Next() {
		raw := make([]any, len(t.Columns))
		dest := make([]any, len(raw))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		e, err := s.loadRow(t, raw)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Name, err)
	}
	return loaded, nil
}

func (s *Store) loadRow(t *Table, raw []any) (*entity.Entity, error) {
	gid, err := scanGlobalID(raw[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}
	unit, id, typeName, err := entity.ParseGlobalID(gid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}
	e, err := s.entities.GetEntity(entity.Locate(unit, id, typeName))
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", gid, err)
	}

	for i, c := range t.Columns {
		if c.Base {
			continue
		}
		v, err := s.decodeColumn(c.Field, raw[i])
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", gid, c.Name, err)
		}
		// Loading never lowers a unit counter below ids already handed out.
		if c.Field.Qualified == entity.FieldUnitIDCount {
			cur, _ := e.Value(entity.FieldUnitIDCount)
			have, _ := cur.(ir.IRInt)
			if stored, ok := v.(ir.IRInt); ok && have > stored {
				continue
			}
		}
		if _, err := s.entities.Set(e.Path().F(c.Field.Name), v); err != nil {
			return nil, fmt.Errorf("%s %s: %w", gid, c.Name, err)
		}
	}
	return e, nil
}

func (s *Store) decodeColumn(f *entity.Field, raw any) (ir.IRValue, error) {
	v, err := s.fromColumn(f, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return ir.IRNull{}, nil
	}
	return v, nil
}

// fromColumn reverses toColumn. A NULL column yields nil.
func (s *Store) fromColumn(f *entity.Field, raw any) (ir.IRValue, error) {
	if raw == nil {
		return nil, nil
	}
	if f.Cardinality == entity.CardMap || f.Datatype == entity.DatatypeJSON {
		var data []byte
		switch v := raw.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			return nil, fmt.Errorf("json column holds %T", raw)
		}
		return ir.UnmarshalValue(data)
	}
	return s.dialect.FromDB(f.Datatype, raw)
}

func (s *Store) loadMembers(ctx context.Context, aux *Table, query string, args []any, byGID map[string]*entity.Entity) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return &StatementError{SQL: query, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var gidRaw, cnt, member any
		if err := rows.Scan(&gidRaw, &cnt, &member); err != nil {
			return fmt.Errorf("scan %s: %w", aux.Name, err)
		}
		gid, err := scanGlobalID(gidRaw)
		if err != nil {
			return fmt.Errorf("%s: %w", aux.Name, err)
		}
		e, ok := byGID[gid]
		if !ok {
			continue
		}
		v, err := s.fromColumn(aux.Field, member)
		if err != nil {
			return fmt.Errorf("%s %s: %w", gid, aux.Name, err)
		}
		if v == nil {
			continue
		}
		if ir.Members(v) != nil {
			// A json member that is itself an array is added as one member.
			v = ir.IRList{v}
		}
		if _, err := s.entities.Add(e.Path().F(aux.Field.Name), v); err != nil {
			return fmt.Errorf("%s %s: %w", gid, aux.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read %s: %w", aux.Name, err)
	}
	return nil
}

func scanGlobalID(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("global id column holds %T", raw)
	}
}
