// Package codec converts entities to and from their flat map form: one key
// per qualified field name, SET and LIST values as arrays, references as
// global id strings.
package codec

import (
	"fmt"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// Codec encodes and decodes entities of one Store.
type Codec struct {
	store *entity.Store
}

// New returns a Codec bound to s.
func New(s *entity.Store) *Codec {
	return &Codec{store: s}
}

// Encode returns the flat map of e's populated fields, ancestry included.
func (c *Codec) Encode(e *entity.Entity) ir.IRMap {
	out := make(ir.IRMap)
	for _, q := range e.FieldNames() {
		v, _ := e.Value(q)
		out[q] = ir.Clone(v)
	}
	return out
}

// Marshal encodes e as canonical JSON.
func (c *Codec) Marshal(e *entity.Entity) ([]byte, error) {
	data, err := ir.MarshalCanonical(c.Encode(e))
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.GlobalID(), err)
	}
	return data, nil
}

// Decode hydrates the entity described by m. The ancestry fields pick the
// entity, which is created if needed; every other field is replayed through
// SET so container semantics apply as for live writes.
func (c *Codec) Decode(m ir.IRMap) (*entity.Entity, error) {
	unitName, err := c.ancestorName(m, entity.FieldBaseUnit, entity.FieldUnitName)
	if err != nil {
		return nil, err
	}
	typeName, err := c.ancestorName(m, entity.FieldBaseMetaType, entity.FieldTypeName)
	if err != nil {
		return nil, err
	}
	id, err := entityID(m)
	if err != nil {
		return nil, err
	}

	e, err := c.store.GetEntity(entity.Locate(unitName, id, typeName))
	if err != nil {
		return nil, &DecodeError{Field: entity.FieldBaseEntityID, Err: err}
	}

	for _, q := range m.SortedKeys() {
		if entity.IsBaseField(q) {
			continue
		}
		f, ok := c.store.Field(q)
		if !ok {
			return nil, &DecodeError{GlobalID: e.GlobalID(), Field: q, Err: entity.ErrUnknownField}
		}
		if _, err := c.store.Set(e.Path().F(q), entity.CoerceField(f, m[q])); err != nil {
			return nil, &DecodeError{GlobalID: e.GlobalID(), Field: q, Err: err}
		}
	}
	return e, nil
}

// Unmarshal decodes one JSON object produced by Marshal.
func (c *Codec) Unmarshal(data []byte) (*entity.Entity, error) {
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	m, ok := v.(ir.IRMap)
	if !ok {
		return nil, fmt.Errorf("unmarshal entity: expected object, got %s", ir.Kind(v))
	}
	return c.Decode(m)
}

// ToJSON encodes every entity addressed by p as a canonical JSON array. p may
// be a scope path, an entity path, or a path to a reference field.
func (c *Codec) ToJSON(p entity.Path) ([]byte, error) {
	entities, err := c.Select(p)
	if err != nil {
		return nil, err
	}
	data, err := c.MarshalAll(entities)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p, err)
	}
	return data, nil
}

// MarshalAll encodes entities, in order, as a canonical JSON array.
func (c *Codec) MarshalAll(entities []*entity.Entity) ([]byte, error) {
	list := make(ir.IRList, len(entities))
	for i, e := range entities {
		list[i] = c.Encode(e)
	}
	return ir.MarshalCanonical(list)
}

// FromJSON decodes a JSON array of entity objects.
func (c *Codec) FromJSON(data []byte) ([]*entity.Entity, error) {
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal entities: %w", err)
	}
	list, ok := v.(ir.IRList)
	if !ok {
		return nil, fmt.Errorf("unmarshal entities: expected array, got %s", ir.Kind(v))
	}

	out := make([]*entity.Entity, 0, len(list))
	for i, item := range list {
		m, ok := item.(ir.IRMap)
		if !ok {
			return nil, fmt.Errorf("unmarshal entities: item %d: expected object, got %s", i, ir.Kind(item))
		}
		e, err := c.Decode(m)
		if err != nil {
			return nil, fmt.Errorf("unmarshal entities: item %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Select returns the entities a path addresses without creating any.
func (c *Codec) Select(p entity.Path) ([]*entity.Entity, error) {
	res, err := c.store.Access(entity.Request{Op: entity.OpVisit, Path: p})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", p, err)
	}
	switch {
	case res.Entities != nil:
		return res.Entities, nil
	case res.Entity != nil:
		return []*entity.Entity{res.Entity}, nil
	default:
		return c.store.Entities(res.Value), nil
	}
}

// ancestorName resolves the reference held in field to an existing unit or
// type entity and returns the name stored on it.
func (c *Codec) ancestorName(m ir.IRMap, field, nameField string) (string, error) {
	raw, ok := m[field]
	if !ok || ir.IsNull(raw) {
		return "", &DecodeError{Field: field, Err: ErrMissingAncestry}
	}
	ref, ok := entity.Coerce(entity.DatatypeEntity, raw).(ir.IRRef)
	if !ok {
		return "", &DecodeError{Field: field, Err: fmt.Errorf("%w: %s is not a reference", ErrUnresolvedAncestry, ir.Kind(raw))}
	}
	anc, ok := c.store.Lookup(entity.GlobalID(ref))
	if !ok {
		return "", &DecodeError{Field: field, Err: fmt.Errorf("%w: %s", ErrUnresolvedAncestry, ref)}
	}
	name, ok := anc.Value(nameField)
	if !ok {
		return "", &DecodeError{Field: field, Err: fmt.Errorf("%w: %s has no name", ErrUnresolvedAncestry, ref)}
	}
	s, ok := name.(ir.IRString)
	if !ok {
		return "", &DecodeError{Field: field, Err: fmt.Errorf("%w: %s name is %s", ErrUnresolvedAncestry, ref, ir.Kind(name))}
	}
	return string(s), nil
}

func entityID(m ir.IRMap) (int64, error) {
	raw, ok := m[entity.FieldBaseEntityID]
	if !ok || ir.IsNull(raw) {
		return 0, &DecodeError{Field: entity.FieldBaseEntityID, Err: ErrMissingAncestry}
	}
	n, ok := entity.Coerce(entity.DatatypeInt, raw).(ir.IRInt)
	if !ok || n <= 0 {
		return 0, &DecodeError{Field: entity.FieldBaseEntityID, Err: fmt.Errorf("%w: bad entity id %s", ErrUnresolvedAncestry, ir.Kind(raw))}
	}
	return int64(n), nil
}
