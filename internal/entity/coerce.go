package entity

import (
	"math"

	"github.com/roach88/dust/internal/ir"
)

// Coerce converts a scalar decoded from a foreign representation (JSON,
// BSON, a SQL row) into the value shape of datatype d. Values with no known
// conversion are returned unchanged; SET does not check datatypes.
func Coerce(d Datatype, v ir.IRValue) ir.IRValue {
	switch d {
	case DatatypeEntity:
		if s, ok := v.(ir.IRString); ok {
			return ir.IRRef(s)
		}
	case DatatypeBytes:
		if s, ok := v.(ir.IRString); ok {
			if b, err := ir.DecodeBytes(string(s)); err == nil {
				return b
			}
		}
	case DatatypeNumeric:
		if n, ok := v.(ir.IRInt); ok {
			return ir.IRFloat(n)
		}
	case DatatypeInt:
		if f, ok := v.(ir.IRFloat); ok && f == ir.IRFloat(math.Trunc(float64(f))) {
			return ir.IRInt(f)
		}
	case DatatypeBool:
		if n, ok := v.(ir.IRInt); ok {
			return ir.IRBool(n != 0)
		}
	case DatatypeString:
		if b, ok := v.(ir.IRBytes); ok {
			return ir.IRString(b)
		}
	}
	return v
}

// CoerceField converts a decoded value to the shape field f stores: members
// of a SET or LIST field are coerced one by one and collected into an IRSet or
// IRList; MAP values are kept as decoded.
func CoerceField(f *Field, v ir.IRValue) ir.IRValue {
	if ir.IsNull(v) {
		return ir.IRNull{}
	}
	switch f.Cardinality {
	case CardMap:
		return v
	case CardSet, CardList:
		members := ir.Members(v)
		if members == nil {
			return Coerce(f.Datatype, v)
		}
		out := make([]ir.IRValue, len(members))
		for i, m := range members {
			out[i] = Coerce(f.Datatype, m)
		}
		if f.Cardinality == CardSet {
			return ir.SetOf(out...)
		}
		return ir.IRList(out)
	default:
		return Coerce(f.Datatype, v)
	}
}
