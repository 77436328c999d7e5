package queryir

import (
	"fmt"

	"github.com/roach88/dust/internal/ir"
)

// Predicate is a filter condition over the fields of one meta-type.
//
// This is a sealed interface; only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select loads the stored entities of Type that satisfy Filter.
// A nil Filter selects every entity of the type.
type Select struct {
	Type   string
	Filter Predicate
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opSymbols = map[Op]string{
	OpEq: "=",
	OpNe: "!=",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

func (o Op) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Ordered reports whether o compares by order rather than equality.
func (o Op) Ordered() bool {
	return o >= OpLt && o <= OpGe
}

// ParseOp maps an operator symbol to its Op. "==" and "<>" are accepted as
// spellings of "=" and "!=".
func ParseOp(s string) (Op, error) {
	switch s {
	case "=", "==":
		return OpEq, nil
	case "!=", "<>":
		return OpNe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// Compare compares a single-valued field with a literal.
//
// Example:
//
//	Compare{Field: "price", Op: OpGe, Value: ir.IRFloat(10)}
//
// OpNe also matches entities whose field is unset.
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// IsNull matches entities whose field is unset, or set when Negate is true.
type IsNull struct {
	Field  string
	Negate bool
}

func (IsNull) predicateNode() {}

// And matches when every predicate matches. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Error reports a predicate that cannot apply to a meta-type.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "filter: " + e.Message
	}
	return fmt.Sprintf("filter %s: %s", e.Field, e.Message)
}
