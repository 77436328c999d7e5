package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface over the attribute value shapes.
type IRValue interface {
	irValue() // Sealed - only the types below implement it
}

// IRNull represents an explicit absent value.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString is a string scalar.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer scalar.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat is a numeric (floating point) scalar.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool is a boolean scalar.
type IRBool bool

func (IRBool) irValue() {}

// IRBytes is a binary scalar. Encoded as base64 in JSON.
type IRBytes []byte

func (IRBytes) irValue() {}

// IRRef references another entity by its global id ("unit:id:type").
type IRRef string

func (IRRef) irValue() {}

// IRList is an ordered sequence; duplicates are allowed.
type IRList []IRValue

func (IRList) irValue() {}

// IRSet is a sequence of unique members kept in insertion order.
// Uniqueness is maintained by With; a literal IRSet is trusted as given.
type IRSet []IRValue

func (IRSet) irValue() {}

// IRMap maps string keys to values. Use SortedKeys() for deterministic iteration.
type IRMap map[string]IRValue

func (IRMap) irValue() {}

// IsNull reports whether v is nil or IRNull.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// Equal reports deep equality. Sets compare by membership, independent of order.
func Equal(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}

	switch av := a.(type) {
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRInt:
		bv, ok := b.(IRInt)
		return ok && av == bv
	case IRFloat:
		bv, ok := b.(IRFloat)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRBytes:
		bv, ok := b.(IRBytes)
		return ok && bytes.Equal(av, bv)
	case IRRef:
		bv, ok := b.(IRRef)
		return ok && av == bv
	case IRList:
		bv, ok := b.(IRList)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRSet:
		bv, ok := b.(IRSet)
		if !ok || len(av) != len(bv) {
			return false
		}
		for _, m := range av {
			if !bv.Contains(m) {
				return false
			}
		}
		return true
	case IRMap:
		bv, ok := b.(IRMap)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, found := bv[k]
			if !found || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Contains reports whether m is a member of the set.
func (s IRSet) Contains(m IRValue) bool {
	for _, v := range s {
		if Equal(v, m) {
			return true
		}
	}
	return false
}

// With returns the set with m appended, and whether m was new.
// The receiver is not modified.
func (s IRSet) With(m IRValue) (IRSet, bool) {
	if s.Contains(m) {
		return s, false
	}
	out := make(IRSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, m), true
}

// Without returns the set minus m, and whether m was present.
func (s IRSet) Without(m IRValue) (IRSet, bool) {
	for i, v := range s {
		if Equal(v, m) {
			out := make(IRSet, 0, len(s)-1)
			out = append(out, s[:i]...)
			return append(out, s[i+1:]...), true
		}
	}
	return s, false
}

// Append returns a fresh list with vals added at the end.
func (l IRList) Append(vals ...IRValue) IRList {
	out := make(IRList, len(l), len(l)+len(vals))
	copy(out, l)
	return append(out, vals...)
}

// Members returns the elements of a list or set, or nil for any other shape.
func Members(v IRValue) []IRValue {
	switch c := v.(type) {
	case IRList:
		return c
	case IRSet:
		return c
	default:
		return nil
	}
}

// SetOf builds a set from vals, dropping duplicates and keeping first occurrence order.
func SetOf(vals ...IRValue) IRSet {
	out := IRSet{}
	for _, v := range vals {
		out, _ = out.With(v)
	}
	return out
}

// Clone returns a deep copy of containers; scalars are returned as is.
func Clone(v IRValue) IRValue {
	switch c := v.(type) {
	case IRList:
		out := make(IRList, len(c))
		for i, e := range c {
			out[i] = Clone(e)
		}
		return out
	case IRSet:
		out := make(IRSet, len(c))
		for i, e := range c {
			out[i] = Clone(e)
		}
		return out
	case IRMap:
		out := make(IRMap, len(c))
		for k, e := range c {
			out[k] = Clone(e)
		}
		return out
	case IRBytes:
		return IRBytes(bytes.Clone(c))
	default:
		return v
	}
}

// Add sums two numeric values. Null counts as zero of the other operand's kind.
// The result is an IRInt only when both operands are integers.
func Add(a, b IRValue) (IRValue, error) {
	if IsNull(a) {
		a = IRInt(0)
	}
	switch av := a.(type) {
	case IRInt:
		switch bv := b.(type) {
		case IRInt:
			return av + bv, nil
		case IRFloat:
			return IRFloat(float64(av) + float64(bv)), nil
		}
	case IRFloat:
		switch bv := b.(type) {
		case IRInt:
			return av + IRFloat(bv), nil
		case IRFloat:
			return av + bv, nil
		}
	}
	return nil, fmt.Errorf("cannot add %s and %s", Kind(a), Kind(b))
}

// Kind returns a short name of the value shape, used in error messages.
func Kind(v IRValue) string {
	switch v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRFloat:
		return "float"
	case IRBool:
		return "bool"
	case IRBytes:
		return "bytes"
	case IRRef:
		return "ref"
	case IRList:
		return "list"
	case IRSet:
		return "set"
	case IRMap:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (m IRMap) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler for IRMap using canonical encoding.
func (m IRMap) MarshalJSON() ([]byte, error) { return MarshalCanonical(m) }

// MarshalJSON implements json.Marshaler for IRList using canonical encoding.
func (l IRList) MarshalJSON() ([]byte, error) { return MarshalCanonical(l) }

// MarshalJSON implements json.Marshaler for IRSet using canonical encoding.
func (s IRSet) MarshalJSON() ([]byte, error) { return MarshalCanonical(s) }

// UnmarshalValue decodes arbitrary JSON into an IRValue without schema knowledge.
// Integral numbers become IRInt, other numbers IRFloat, arrays IRList,
// objects IRMap and null IRNull.
func UnmarshalValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return From(raw)
}

// From converts a native Go value (as produced by encoding/json, yaml or bson
// decoders) into an IRValue.
func From(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case float32:
		return IRFloat(val), nil
	case float64:
		return IRFloat(val), nil
	case []byte:
		return IRBytes(bytes.Clone(val)), nil
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			n, err := val.Int64()
			if err == nil {
				return IRInt(n), nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", s, err)
		}
		return IRFloat(f), nil
	case []any:
		out := make(IRList, len(val))
		for i, elem := range val {
			e, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	case map[string]any:
		out := make(IRMap, len(val))
		for k, elem := range val {
			e, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			out[k] = e
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// Native converts an IRValue back into plain Go values (string, int64,
// float64, bool, []byte, []any, map[string]any, nil). References become
// their global id string.
func Native(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRFloat:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRBytes:
		return []byte(val)
	case IRRef:
		return string(val)
	case IRList, IRSet:
		members := Members(val)
		out := make([]any, len(members))
		for i, m := range members {
			out[i] = Native(m)
		}
		return out
	case IRMap:
		out := make(map[string]any, len(val))
		for k, m := range val {
			out[k] = Native(m)
		}
		return out
	default:
		return nil
	}
}

// EncodeBytes renders binary data the way canonical JSON carries it.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes is the inverse of EncodeBytes.
func DecodeBytes(s string) (IRBytes, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return IRBytes(b), nil
}

// isFinite reports whether f can be represented in JSON.
func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
