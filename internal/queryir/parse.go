package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// NullLiteral is the condition value that tests for an unset field.
const NullLiteral = "null"

// Condition is a textual field comparison, not yet bound to a meta-type.
type Condition struct {
	Field string
	Op    Op
	Raw   string
}

func (c Condition) String() string {
	return c.Field + c.Op.String() + c.Raw
}

// ParseCondition splits "field<op>value", for example "price>=10".
// Surrounding whitespace of the field and value is dropped.
func ParseCondition(s string) (Condition, error) {
	i := strings.IndexAny(s, "=!<>")
	if i < 0 {
		return Condition{}, fmt.Errorf("condition %q: missing operator", s)
	}
	field := strings.TrimSpace(s[:i])
	if field == "" {
		return Condition{}, fmt.Errorf("condition %q: missing field", s)
	}

	sym := s[i : i+1]
	if i+1 < len(s) {
		if _, err := ParseOp(s[i : i+2]); err == nil {
			sym = s[i : i+2]
		}
	}
	op, err := ParseOp(sym)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w", s, err)
	}
	return Condition{Field: field, Op: op, Raw: strings.TrimSpace(s[i+len(sym):])}, nil
}

// ParseConditions parses each condition in order.
func ParseConditions(conds []string) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for _, s := range conds {
		c, err := ParseCondition(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Bind types the raw values of conds by the declared fields of mt and
// returns their conjunction. No conditions bind to a nil predicate; a
// single condition binds to itself.
//
// "field=null" and "field!=null" bind to IsNull.
func Bind(mt *entity.MetaType, conds []Condition) (Predicate, error) {
	preds := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		p, err := bindCondition(mt, c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return And{Predicates: preds}, nil
	}
}

func bindCondition(mt *entity.MetaType, c Condition) (Predicate, error) {
	f, err := filterField(mt, c.Field)
	if err != nil {
		return nil, err
	}
	if c.Raw == NullLiteral {
		switch c.Op {
		case OpEq:
			return IsNull{Field: c.Field}, nil
		case OpNe:
			return IsNull{Field: c.Field, Negate: true}, nil
		default:
			return nil, &Error{Field: c.Field, Message: c.Op.String() + " null"}
		}
	}

	v, err := parseValue(f.Datatype, c.Raw)
	if err != nil {
		return nil, &Error{Field: c.Field, Message: err.Error()}
	}
	p := Compare{Field: c.Field, Op: c.Op, Value: v}
	if err := validateCompare(mt, p); err != nil {
		return nil, err
	}
	return p, nil
}

func parseValue(d entity.Datatype, raw string) (ir.IRValue, error) {
	switch d {
	case entity.DatatypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", raw)
		}
		return ir.IRInt(n), nil
	case entity.DatatypeNumeric:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not numeric", raw)
		}
		return ir.IRFloat(f), nil
	case entity.DatatypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", raw)
		}
		return ir.IRBool(b), nil
	case entity.DatatypeBytes:
		b, err := ir.DecodeBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not base64", raw)
		}
		return b, nil
	case entity.DatatypeEntity:
		return ir.IRRef(raw), nil
	default:
		return ir.IRString(raw), nil
	}
}
