package queryir

import (
	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// Validate checks p against the declared fields of mt. Every referenced
// field must be a SINGLE field of mt, compared values must have the
// field's datatype, and ordering operators apply only to int, numeric and
// string fields. The first violation is returned as an *Error.
//
// Validate is a pure function with no side effects.
func Validate(mt *entity.MetaType, p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Compare:
		return validateCompare(mt, pred)
	case *Compare:
		return validateCompare(mt, *pred)
	case IsNull:
		_, err := filterField(mt, pred.Field)
		return err
	case *IsNull:
		_, err := filterField(mt, pred.Field)
		return err
	case And:
		return validateAnd(mt, pred)
	case *And:
		return validateAnd(mt, *pred)
	default:
		return &Error{Message: "unsupported predicate"}
	}
}

func validateAnd(mt *entity.MetaType, and And) error {
	for _, sub := range and.Predicates {
		if err := Validate(mt, sub); err != nil {
			return err
		}
	}
	return nil
}

func validateCompare(mt *entity.MetaType, c Compare) error {
	f, err := filterField(mt, c.Field)
	if err != nil {
		return err
	}
	if _, ok := opSymbols[c.Op]; !ok {
		return &Error{Field: c.Field, Message: c.Op.String() + " is not an operator"}
	}
	if c.Value == nil || ir.IsNull(c.Value) {
		return &Error{Field: c.Field, Message: "compare with null; use IsNull"}
	}
	if !matchesDatatype(f.Datatype, entity.Coerce(f.Datatype, c.Value)) {
		return &Error{Field: c.Field, Message: ir.Kind(c.Value) + " value for " + f.Datatype.String() + " field"}
	}
	if c.Op.Ordered() && !orderable(f.Datatype) {
		return &Error{Field: c.Field, Message: c.Op.String() + " on " + f.Datatype.String() + " field"}
	}
	return nil
}

// FieldOf returns the declared field of mt named name.
func FieldOf(mt *entity.MetaType, name string) (*entity.Field, bool) {
	for _, f := range mt.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// filterField resolves name to a field that can appear in a predicate.
func filterField(mt *entity.MetaType, name string) (*entity.Field, error) {
	f, ok := FieldOf(mt, name)
	if !ok {
		return nil, &Error{Field: name, Message: "not declared on " + mt.Name}
	}
	if f.Cardinality != entity.CardSingle {
		return nil, &Error{Field: name, Message: f.Cardinality.String() + " fields cannot be filtered"}
	}
	if f.Datatype == entity.DatatypeJSON {
		return nil, &Error{Field: name, Message: "json fields cannot be filtered"}
	}
	return f, nil
}

func matchesDatatype(d entity.Datatype, v ir.IRValue) bool {
	switch v.(type) {
	case ir.IRInt:
		return d == entity.DatatypeInt
	case ir.IRFloat:
		return d == entity.DatatypeNumeric
	case ir.IRBool:
		return d == entity.DatatypeBool
	case ir.IRString:
		return d == entity.DatatypeString
	case ir.IRBytes:
		return d == entity.DatatypeBytes
	case ir.IRRef:
		return d == entity.DatatypeEntity
	}
	return false
}

func orderable(d entity.Datatype) bool {
	return d == entity.DatatypeInt || d == entity.DatatypeNumeric || d == entity.DatatypeString
}
