// Package querysql compiles queryir predicates to parameterized SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/queryir"
)

// Dialect is the part of a SQL dialect the compiler needs.
type Dialect interface {
	// Placeholder renders the n-th bind parameter, starting at 1.
	Placeholder(n int) string
	// Quote renders an identifier.
	Quote(ident string) string
	// ToDB converts a scalar to a driver argument.
	ToDB(d entity.Datatype, v ir.IRValue) (any, error)
}

// Where is a compiled WHERE clause without the keyword.
type Where struct {
	SQL  string
	Args []any
}

// Empty reports whether the clause filters nothing.
func (w Where) Empty() bool {
	return w.SQL == ""
}

// Compiler compiles predicates over the fields of one meta-type.
//
// All values are parameterized, never interpolated.
type Compiler struct {
	Dialect Dialect
	// Column names the column that stores a field.
	Column func(f *entity.Field) string
}

// Compile validates p against mt and renders it. A nil predicate compiles
// to an empty Where. Placeholders are numbered from 1.
func (c *Compiler) Compile(mt *entity.MetaType, p queryir.Predicate) (Where, error) {
	if p == nil {
		return Where{}, nil
	}
	if err := queryir.Validate(mt, p); err != nil {
		return Where{}, err
	}
	st := &state{Compiler: c, mt: mt}
	sql, err := st.predicate(p)
	if err != nil {
		return Where{}, err
	}
	return Where{SQL: sql, Args: st.args}, nil
}

type state struct {
	*Compiler
	mt   *entity.MetaType
	args []any
}

func (st *state) bind(v any) string {
	st.args = append(st.args, v)
	return st.Dialect.Placeholder(len(st.args))
}

func (st *state) column(name string) (*entity.Field, string) {
	f, _ := queryir.FieldOf(st.mt, name)
	return f, st.Dialect.Quote(st.Column(f))
}

func (st *state) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Compare:
		return st.compare(pred)
	case *queryir.Compare:
		return st.compare(*pred)
	case queryir.IsNull:
		return st.isNull(pred), nil
	case *queryir.IsNull:
		return st.isNull(*pred), nil
	case queryir.And:
		return st.and(pred)
	case *queryir.And:
		return st.and(*pred)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compare renders "col op ?". Not-equal also matches NULL so that it is the
// complement of equality.
func (st *state) compare(cmp queryir.Compare) (string, error) {
	f, col := st.column(cmp.Field)
	arg, err := st.Dialect.ToDB(f.Datatype, entity.Coerce(f.Datatype, cmp.Value))
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", cmp.Field, err)
	}
	if cmp.Op == queryir.OpNe {
		return fmt.Sprintf("(%s <> %s OR %s IS NULL)", col, st.bind(arg), col), nil
	}
	return fmt.Sprintf("%s %s %s", col, cmp.Op, st.bind(arg)), nil
}

func (st *state) isNull(n queryir.IsNull) string {
	_, col := st.column(n.Field)
	if n.Negate {
		return col + " IS NOT NULL"
	}
	return col + " IS NULL"
}

func (st *state) and(and queryir.And) (string, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(and.Predicates))
	for _, p := range and.Predicates {
		sql, err := st.predicate(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}
