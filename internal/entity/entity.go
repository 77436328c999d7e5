package entity

import (
	"slices"

	"github.com/roach88/dust/internal/ir"
)

// Handle is the arena index of an entity inside its Store. Handles are
// stable for the lifetime of the Store.
type Handle int

const noHandle Handle = -1

// Entity is one typed record. Its attribute values are keyed by qualified
// field name and are only changed through the Store's access operations.
type Entity struct {
	handle   Handle
	gid      GlobalID
	id       int64
	unitName string
	typeName string
	unit     Handle
	meta     Handle
	state    Committed
	attrs    map[string]ir.IRValue
}

// Handle returns the entity's arena index.
func (e *Entity) Handle() Handle { return e.handle }

// GlobalID returns "unit:entity_id:meta_type".
func (e *Entity) GlobalID() GlobalID { return e.gid }

// ID returns the entity id, unique within the unit.
func (e *Entity) ID() int64 { return e.id }

// UnitName returns the name of the owning unit.
func (e *Entity) UnitName() string { return e.unitName }

// TypeName returns the name of the entity's meta-type.
func (e *Entity) TypeName() string { return e.typeName }

// State returns the persistence state.
func (e *Entity) State() Committed { return e.state }

// Ref returns a reference value pointing at e.
func (e *Entity) Ref() ir.IRRef { return ir.IRRef(e.gid) }

// Path starts an access path at e.
func (e *Entity) Path() Path { return At(e.gid) }

// Value returns the stored value of a qualified field. The returned value
// must not be modified.
func (e *Entity) Value(qualified string) (ir.IRValue, bool) {
	v, ok := e.attrs[qualified]
	return v, ok
}

// FieldNames returns the qualified names of all populated fields, sorted.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.attrs))
	for k := range e.attrs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// markChanged applies the dirty transition after a real change.
func (e *Entity) markChanged() {
	if e.state == Saved {
		e.state = Dirty
	}
}
