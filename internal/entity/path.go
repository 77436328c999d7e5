package entity

import (
	"strconv"
	"strings"
)

// Step is one segment of an access path. The set of steps is closed.
type Step interface {
	step()
	String() string
}

// EntityStep addresses an entity by its global id. A missing entity is
// created by creating operations.
type EntityStep struct {
	ID GlobalID
}

// LocateStep addresses an entity by unit, id and type. ID 0 allocates the
// next id from the unit's counter.
type LocateStep struct {
	Unit string
	ID   int64
	Type string
}

// ScopeStep addresses every loaded entity of a unit, optionally narrowed to a
// type. It is only valid as the whole path of a VISIT.
type ScopeStep struct {
	Unit string
	Type string
}

// FieldStep names a field. Short names are qualified against the type of the
// entity being traversed.
type FieldStep struct {
	Name string
}

// IndexStep addresses a list element.
type IndexStep struct {
	Index int
}

// KeyStep addresses a map entry.
type KeyStep struct {
	Key string
}

func (EntityStep) step() {}
func (LocateStep) step() {}
func (ScopeStep) step()  {}
func (FieldStep) step()  {}
func (IndexStep) step()  {}
func (KeyStep) step()    {}

func (s EntityStep) String() string { return string(s.ID) }

func (s LocateStep) String() string {
	if s.ID == 0 {
		return s.Unit + ":*:" + s.Type
	}
	return string(NewGlobalID(s.Unit, s.ID, s.Type))
}

func (s ScopeStep) String() string {
	if s.Type == "" {
		return s.Unit + ":*"
	}
	return s.Unit + ":*:" + s.Type
}

func (s FieldStep) String() string { return s.Name }
func (s IndexStep) String() string { return "[" + strconv.Itoa(s.Index) + "]" }
func (s KeyStep) String() string   { return strconv.Quote(s.Key) }

// Path is a sequence of steps from an entity locator down to a value.
type Path []Step

// At starts a path at a known global id.
func At(id GlobalID) Path { return Path{EntityStep{ID: id}} }

// Locate starts a path at unit:id:type.
func Locate(unit string, id int64, typeName string) Path {
	return Path{LocateStep{Unit: unit, ID: id, Type: typeName}}
}

// Create starts a path at a fresh entity whose id is allocated from the unit.
func Create(unit, typeName string) Path {
	return Path{LocateStep{Unit: unit, Type: typeName}}
}

// Scope builds a VISIT path over loaded entities of a unit and type.
func Scope(unit, typeName string) Path {
	return Path{ScopeStep{Unit: unit, Type: typeName}}
}

// F appends a field step.
func (p Path) F(name string) Path { return p.with(FieldStep{Name: name}) }

// I appends a list index step.
func (p Path) I(i int) Path { return p.with(IndexStep{Index: i}) }

// K appends a map key step.
func (p Path) K(key string) Path { return p.with(KeyStep{Key: key}) }

func (p Path) with(s Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// Strings renders each step, as carried in change notifications.
func (p Path) Strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.String()
	}
	return out
}

func (p Path) String() string {
	return strings.Join(p.Strings(), "/")
}
