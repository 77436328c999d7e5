package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// PassResult summarizes one persistence pass.
type PassResult struct {
	ID       string `json:"id"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
}

// Insert writes e's primary row and one auxiliary row per element of each
// SET or LIST field, numbered from zero.
func (s *Store) Insert(ctx context.Context, x Execer, e *entity.Entity) error {
	sch, err := s.Schema(e.TypeName())
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.GlobalID(), err)
	}
	values, err := s.primaryValues(sch.Primary, e)
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.GlobalID(), err)
	}
	if err := s.exec(ctx, x, sch.Primary.Insert, values); err != nil {
		return fmt.Errorf("insert %s: %w", e.GlobalID(), err)
	}
	for _, aux := range sch.Aux {
		if err := s.insertMembers(ctx, x, aux, e); err != nil {
			return fmt.Errorf("insert %s: %w", e.GlobalID(), err)
		}
	}
	return nil
}

// Update rewrites e's primary row, then replaces every auxiliary collection
// by deleting the stored rows and inserting the current members.
func (s *Store) Update(ctx context.Context, x Execer, e *entity.Entity) error {
	sch, err := s.Schema(e.TypeName())
	if err != nil {
		return fmt.Errorf("update %s: %w", e.GlobalID(), err)
	}
	if sch.Primary.Update.SQL != "" {
		values, err := s.primaryValues(sch.Primary, e)
		if err != nil {
			return fmt.Errorf("update %s: %w", e.GlobalID(), err)
		}
		if err := s.exec(ctx, x, sch.Primary.Update, values); err != nil {
			return fmt.Errorf("update %s: %w", e.GlobalID(), err)
		}
	}
	gid := map[string]any{ColGlobalID: string(e.GlobalID())}
	for _, aux := range sch.Aux {
		if err := s.exec(ctx, x, aux.Delete, gid); err != nil {
			return fmt.Errorf("update %s: %w", e.GlobalID(), err)
		}
		if err := s.insertMembers(ctx, x, aux, e); err != nil {
			return fmt.Errorf("update %s: %w", e.GlobalID(), err)
		}
	}
	return nil
}

// Delete removes e's primary row. Auxiliary rows are left in place.
func (s *Store) Delete(ctx context.Context, x Execer, e *entity.Entity) error {
	sch, err := s.Schema(e.TypeName())
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.GlobalID(), err)
	}
	if err := s.exec(ctx, x, sch.Primary.Delete, map[string]any{ColGlobalID: string(e.GlobalID())}); err != nil {
		return fmt.Errorf("delete %s: %w", e.GlobalID(), err)
	}
	return nil
}

// Persist reconciles entities with the database on one connection. Each
// entity is written in its own transaction and marked saved once it commits,
// so a failure leaves earlier entities committed. Uncommitted entities are
// inserted, dirty ones updated; deleted and saved entities are skipped, as are
// entities of unpersisted types.
func (s *Store) Persist(ctx context.Context, entities []*entity.Entity) (PassResult, error) {
	res := PassResult{ID: s.passID()}
	log := s.logger.With(zap.String("pass_id", res.ID))

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("persist: acquire connection: %w", err)
	}
	defer conn.Close()

	for _, e := range entities {
		mt, ok := s.entities.MetaType(e.TypeName())
		if !ok || !mt.Persisted() {
			res.Skipped++
			continue
		}

		var write func(context.Context, Execer, *entity.Entity) error
		switch e.State() {
		case entity.Uncommitted:
			write = s.Insert
		case entity.Dirty:
			write = s.Update
		default:
			res.Skipped++
			continue
		}

		err := withTx(ctx, conn, func(tx *sql.Tx) error {
			return write(ctx, tx, e)
		})
		if err != nil {
			log.Error("persist failed",
				zap.String("global_id", string(e.GlobalID())),
				zap.Stringer("state", e.State()),
				zap.Error(err),
			)
			return res, fmt.Errorf("persist: %w", err)
		}

		log.Debug("entity persisted",
			zap.String("global_id", string(e.GlobalID())),
			zap.Stringer("state", e.State()),
		)
		if e.State() == entity.Uncommitted {
			res.Inserted++
		} else {
			res.Updated++
		}
		s.entities.MarkSaved(e)
	}

	log.Info("persistence pass complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// PersistPending runs a persistence pass over every entity that is not saved.
func (s *Store) PersistPending(ctx context.Context) (PassResult, error) {
	return s.Persist(ctx, s.entities.Pending())
}

func (s *Store) primaryValues(t *Table, e *entity.Entity) (map[string]any, error) {
	values := map[string]any{
		ColGlobalID: string(e.GlobalID()),
		ColUnit:     nil,
		ColMetaType: nil,
		ColEntityID: e.ID(),
	}
	if v, ok := e.Value(entity.FieldBaseUnit); ok {
		values[ColUnit] = ir.Native(v)
	}
	if v, ok := e.Value(entity.FieldBaseMetaType); ok {
		values[ColMetaType] = ir.Native(v)
	}
	for _, c := range t.ValueColumns() {
		arg, err := s.columnValue(c.Field, e)
		if err != nil {
			return nil, err
		}
		values[c.Name] = arg
	}
	return values, nil
}

// columnValue converts a SINGLE or MAP field to a driver argument.
func (s *Store) columnValue(f *entity.Field, e *entity.Entity) (any, error) {
	v, ok := e.Value(f.Qualified)
	if !ok || ir.IsNull(v) {
		return nil, nil
	}
	arg, err := s.toColumn(f, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Qualified, err)
	}
	return arg, nil
}

// toColumn converts one stored value of f to a driver argument. MAP fields
// and json values are stored as canonical JSON text.
func (s *Store) toColumn(f *entity.Field, v ir.IRValue) (any, error) {
	if f.Cardinality == entity.CardMap || f.Datatype == entity.DatatypeJSON {
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return s.dialect.ToDB(f.Datatype, v)
}

func (s *Store) insertMembers(ctx context.Context, x Execer, aux *Table, e *entity.Entity) error {
	v, _ := e.Value(aux.Field.Qualified)
	col := valueColumn(aux.Field)
	for i, m := range ir.Members(v) {
		arg, err := s.toColumn(aux.Field, m)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", aux.Field.Qualified, i, err)
		}
		values := map[string]any{
			ColGlobalID: string(e.GlobalID()),
			ColValueCnt: int64(i),
			col:         arg,
		}
		if err := s.exec(ctx, x, aux.Insert, values); err != nil {
			return err
		}
	}
	return nil
}

// exec binds values to st and runs it.
func (s *Store) exec(ctx context.Context, x Execer, st Statement, values map[string]any) error {
	args, err := st.Bind(values)
	if err != nil {
		return &StatementError{SQL: st.SQL, Err: err}
	}
	if _, err := x.ExecContext(ctx, st.SQL, args...); err != nil {
		return &StatementError{SQL: st.SQL, Err: err}
	}
	return nil
}
