package entity

import (
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/dust/internal/ir"
)

// Store owns every loaded entity and the schema registry describing them.
//
// A Store is not safe for concurrent use; callers that share one across
// goroutines must serialize access (see engine.Engine).
type Store struct {
	entities []*Entity
	byGID    map[GlobalID]Handle

	units  map[string]Handle
	types  map[string]*MetaType
	fields map[string]*Field

	notifier Notifier
	reserved map[string]bool
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sends change notifications to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithReservedUnits excludes the named units from change notification, in
// addition to the foundational units.
func WithReservedUnits(names ...string) Option {
	return func(s *Store) {
		for _, n := range names {
			s.reserved[n] = true
		}
	}
}

// WithLogger sets the logger used for registry events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a bootstrapped store containing the foundational units and
// meta-types.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byGID:    make(map[GlobalID]Handle),
		units:    make(map[string]Handle),
		types:    make(map[string]*MetaType),
		fields:   make(map[string]*Field),
		reserved: make(map[string]bool),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bootstrap()
	return s
}

// Close releases all entities and registry tables. The store must not be used
// afterwards.
func (s *Store) Close() {
	s.entities = nil
	s.byGID = nil
	s.units = nil
	s.types = nil
	s.fields = nil
	s.notifier = nil
}

// Len returns the number of entities in the arena.
func (s *Store) Len() int { return len(s.entities) }

// Entity returns the entity at handle h.
func (s *Store) Entity(h Handle) *Entity {
	if h < 0 || int(h) >= len(s.entities) {
		return nil
	}
	return s.entities[h]
}

// Lookup returns the entity with the given global id without creating it.
func (s *Store) Lookup(gid GlobalID) (*Entity, bool) {
	h, ok := s.byGID[gid]
	if !ok {
		return nil, false
	}
	return s.entities[h], true
}

// Unit returns the unit entity registered under name.
func (s *Store) Unit(name string) (*Entity, bool) {
	h, ok := s.units[name]
	if !ok {
		return nil, false
	}
	return s.entities[h], true
}

// UnitNames returns every known unit name, sorted.
func (s *Store) UnitNames() []string {
	names := make([]string, 0, len(s.units))
	for n := range s.units {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Entities dereferences every reference held in v (a single reference, a
// list or a set). Missing targets are skipped.
func (s *Store) Entities(v ir.IRValue) []*Entity {
	var refs []ir.IRValue
	if r, ok := v.(ir.IRRef); ok {
		refs = []ir.IRValue{r}
	} else {
		refs = ir.Members(v)
	}
	out := make([]*Entity, 0, len(refs))
	for _, m := range refs {
		r, ok := m.(ir.IRRef)
		if !ok {
			continue
		}
		if e, found := s.Lookup(GlobalID(r)); found {
			out = append(out, e)
		}
	}
	return out
}

// VisitEntities returns loaded entities of a unit in creation order,
// narrowed to typeName when it is not empty.
func (s *Store) VisitEntities(unit, typeName string) []*Entity {
	var out []*Entity
	for _, e := range s.entities {
		if e.unitName != unit {
			continue
		}
		if typeName != "" && e.typeName != typeName {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Pending returns every entity whose state is not Saved, in creation order.
func (s *Store) Pending() []*Entity {
	var out []*Entity
	for _, e := range s.entities {
		if e.state != Saved {
			out = append(out, e)
		}
	}
	return out
}

// MarkSaved records that e matches storage.
func (s *Store) MarkSaved(e *Entity) {
	e.state = Saved
}

// insert places a new uncommitted entity in the arena. Ancestry handles are
// filled in by link.
func (s *Store) insert(unit string, id int64, typeName string) *Entity {
	e := &Entity{
		handle:   Handle(len(s.entities)),
		gid:      NewGlobalID(unit, id, typeName),
		id:       id,
		unitName: unit,
		typeName: typeName,
		unit:     noHandle,
		meta:     noHandle,
		state:    Uncommitted,
		attrs:    map[string]ir.IRValue{FieldBaseEntityID: ir.IRInt(id)},
	}
	s.entities = append(s.entities, e)
	s.byGID[e.gid] = e.handle
	return e
}

// link records e's owning unit and meta-type, both as handles and as the
// ancestry reference fields.
func (s *Store) link(e *Entity, unit, meta Handle) {
	e.unit = unit
	e.meta = meta
	e.attrs[FieldBaseUnit] = s.entities[unit].Ref()
	e.attrs[FieldBaseMetaType] = s.entities[meta].Ref()
}

// locate resolves unit:id:type, allocating an id when id is 0 and creating
// the entity when create is set. It returns nil without error when the
// entity is missing and create is false.
func (s *Store) locate(unit string, id int64, typeName string, create bool) (*Entity, error) {
	mt, ok := s.types[typeName]
	if !ok {
		return nil, unknownType(typeName)
	}
	uh, ok := s.units[unit]
	if !ok {
		return nil, unknownUnit(unit)
	}

	if id == 0 {
		if !create {
			return nil, nil
		}
		next, err := s.nextID(s.entities[uh])
		if err != nil {
			return nil, err
		}
		id = next
	}

	if h, found := s.byGID[NewGlobalID(unit, id, typeName)]; found {
		return s.entities[h], nil
	}
	if !create {
		return nil, nil
	}

	// Explicit ids raise the unit's high-water mark so later auto ids never collide.
	if err := s.raiseCounter(s.entities[uh], id); err != nil {
		return nil, err
	}
	e := s.insert(unit, id, typeName)
	s.link(e, uh, mt.Handle)
	return e, nil
}

// nextID increments a unit's counter and returns the new value.
func (s *Store) nextID(unit *Entity) (int64, error) {
	res, err := s.Access(Request{Op: OpChange, Path: unit.Path().F(FieldUnitIDCount), Value: ir.IRInt(1)})
	if err != nil {
		return 0, err
	}
	n, ok := res.Value.(ir.IRInt)
	if !ok {
		return 0, &PathError{Op: OpChange, Path: unit.Path().F(FieldUnitIDCount), Message: "counter is not an int"}
	}
	return int64(n), nil
}

// raiseCounter lifts a unit's counter to at least id.
func (s *Store) raiseCounter(unit *Entity, id int64) error {
	if counter(unit) >= id {
		return nil
	}
	_, err := s.Access(Request{Op: OpSet, Path: unit.Path().F(FieldUnitIDCount), Value: ir.IRInt(id)})
	return err
}

func counter(unit *Entity) int64 {
	n, _ := unit.attrs[FieldUnitIDCount].(ir.IRInt)
	return int64(n)
}
