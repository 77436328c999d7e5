package entity

import (
	"errors"
	"fmt"

	"github.com/roach88/dust/internal/ir"
)

// Request is one access engine call.
type Request struct {
	Op   Op
	Path Path

	// Value is the operand of SET, ADD and CHANGE, the member removed by a
	// DEL on a SET or LIST field, and the default returned by GET.
	Value ir.IRValue

	// Visit is called per element by VISIT.
	Visit func(key, value ir.IRValue) error

	// Walk is called per leaf by WALK.
	Walk func(p Path, leaf ir.IRValue) error
}

// Result is the outcome of an access engine call.
type Result struct {
	// Value is the addressed value after the operation.
	Value ir.IRValue
	// Entity is the addressed entity, or the one referenced by Value.
	Entity *Entity
	// Entities holds the matches of a scope VISIT.
	Entities []*Entity
	// Changed reports whether state actually changed.
	Changed bool
}

// target is a resolved path.
type target struct {
	owner *Entity
	field *Field     // nil when the path addresses owner itself
	sub   Path       // index and key steps below field
	value ir.IRValue // current value at the path, nil when absent
	path  Path       // canonical path reported in notifications
}

// Access runs one operation. It is the single entry point every read and
// write goes through.
func (s *Store) Access(req Request) (Result, error) {
	if len(req.Path) == 0 {
		return Result{}, &PathError{Op: req.Op, Path: req.Path, Message: "empty path"}
	}
	if sc, ok := req.Path[0].(ScopeStep); ok {
		if req.Op != OpVisit || len(req.Path) != 1 {
			return Result{}, &PathError{Op: req.Op, Path: req.Path, Message: "scope paths are only valid as a whole VISIT path"}
		}
		return s.visitScope(sc, req.Visit)
	}

	t, err := s.resolve(req.Op, req.Path)
	if err != nil {
		return Result{}, err
	}
	if t.owner == nil {
		if req.Op == OpGet {
			return Result{Value: req.Value}, nil
		}
		return Result{}, nil
	}

	switch req.Op {
	case OpGet:
		return s.get(t, req.Value)
	case OpPeek:
		return Result{Value: ir.Clone(t.value), Entity: entityIfWhole(t)}, nil
	case OpSet, OpAdd, OpChange, OpDel:
		return s.mutate(req, t)
	case OpVisit:
		return t.visit(req)
	case OpWalk:
		return t.walk(req)
	default:
		return Result{}, &PathError{Op: req.Op, Path: req.Path, Message: "unknown operation"}
	}
}

func entityIfWhole(t target) *Entity {
	if t.field == nil {
		return t.owner
	}
	return nil
}

// resolve walks p from its entity locator through fields and container
// steps, crossing references whenever a field step follows one.
func (s *Store) resolve(op Op, p Path) (target, error) {
	e, err := s.root(op, p, p[0])
	if err != nil || e == nil {
		return target{}, err
	}

	i := 1
	for {
		if i == len(p) {
			return target{owner: e, value: e.Ref(), path: e.Path()}, nil
		}
		fs, ok := p[i].(FieldStep)
		if !ok {
			return target{}, &PathError{Op: op, Path: p, Message: fmt.Sprintf("expected a field after %s, got %s", p[i-1], p[i])}
		}
		f, err := s.fieldFor(e, fs.Name)
		if err != nil {
			return target{}, err
		}
		i++

		v := present(e.attrs[f.Qualified])
		j := i
		for ; j < len(p) && v != nil; j++ {
			if _, isField := p[j].(FieldStep); isField {
				break
			}
			v, err = child(v, p[j])
			if err != nil {
				return target{}, &PathError{Op: op, Path: p, Message: err.Error()}
			}
		}

		if j < len(p) {
			if _, isField := p[j].(FieldStep); isField {
				ref, isRef := v.(ir.IRRef)
				if !isRef {
					if v == nil && !(op.mutates() && op != OpDel) {
						return target{}, nil
					}
					return target{}, &PathError{Op: op, Path: p, Message: fmt.Sprintf("no reference to follow before %s", p[j])}
				}
				next, err := s.deref(op, p, ref)
				if err != nil || next == nil {
					return target{}, err
				}
				e = next
				i = j
				continue
			}
		}

		canonical := append(e.Path().F(f.Qualified), p[i:]...)
		return target{owner: e, field: f, sub: p[i:], value: v, path: canonical}, nil
	}
}

// root resolves the leading entity locator of a path.
func (s *Store) root(op Op, p Path, first Step) (*Entity, error) {
	switch st := first.(type) {
	case EntityStep:
		return s.deref(op, p, ir.IRRef(st.ID))
	case LocateStep:
		if st.ID < 0 {
			return nil, &PathError{Op: op, Path: p, Message: "negative entity id"}
		}
		if st.ID == 0 && !op.creates() {
			return nil, &PathError{Op: op, Path: p, Message: "an explicit id is required"}
		}
		return s.locate(st.Unit, st.ID, st.Type, op.creates())
	default:
		return nil, &PathError{Op: op, Path: p, Message: "path must start with an entity locator"}
	}
}

// deref returns the entity a reference points at, creating it when op creates.
func (s *Store) deref(op Op, p Path, ref ir.IRRef) (*Entity, error) {
	if h, ok := s.byGID[GlobalID(ref)]; ok {
		return s.entities[h], nil
	}
	unit, id, typeName, err := ParseGlobalID(string(ref))
	if err != nil {
		return nil, &PathError{Op: op, Path: p, Message: err.Error()}
	}
	return s.locate(unit, id, typeName, op.creates())
}

// child steps into a container value. Missing elements yield nil.
func child(v ir.IRValue, step Step) (ir.IRValue, error) {
	switch st := step.(type) {
	case IndexStep:
		l, ok := v.(ir.IRList)
		if !ok {
			return nil, fmt.Errorf("cannot index into %s", ir.Kind(v))
		}
		if st.Index < 0 || st.Index >= len(l) {
			return nil, nil
		}
		return present(l[st.Index]), nil
	case KeyStep:
		m, ok := v.(ir.IRMap)
		if !ok {
			return nil, fmt.Errorf("cannot look up key in %s", ir.Kind(v))
		}
		return present(m[st.Key]), nil
	default:
		return nil, fmt.Errorf("unexpected step %s", step)
	}
}

func present(v ir.IRValue) ir.IRValue {
	if ir.IsNull(v) {
		return nil
	}
	return v
}

func (s *Store) get(t target, def ir.IRValue) (Result, error) {
	if t.field == nil {
		return Result{Value: t.value, Entity: t.owner}, nil
	}
	if t.value == nil {
		return Result{Value: def}, nil
	}
	res := Result{Value: ir.Clone(t.value)}
	if ref, ok := t.value.(ir.IRRef); ok {
		e, err := s.deref(OpGet, t.path, ref)
		if err != nil {
			return Result{}, err
		}
		res.Entity = e
	}
	return res, nil
}

// mutate applies SET, ADD, CHANGE or DEL and records a real change.
func (s *Store) mutate(req Request, t target) (Result, error) {
	if t.field == nil {
		if req.Op != OpDel {
			return Result{}, &PathError{Op: req.Op, Path: req.Path, Message: "address a field, not an entity"}
		}
		if t.owner.state == Deleted {
			return Result{Entity: t.owner}, nil
		}
		t.owner.state = Deleted
		s.notify(OpDel, t.path, t.owner)
		return Result{Entity: t.owner, Changed: true}, nil
	}
	if IsBaseField(t.field.Qualified) {
		return Result{}, &PathError{Op: req.Op, Path: req.Path, Message: "ancestry fields are read-only"}
	}

	old := present(t.owner.attrs[t.field.Qualified])
	var (
		nv      ir.IRValue
		changed bool
		err     error
	)
	if len(t.sub) == 0 {
		nv, changed, err = applyField(req.Op, t.field, old, req.Value)
	} else {
		nv, changed, err = updateIn(old, t.sub, func(cur ir.IRValue) (ir.IRValue, bool, error) {
			return applyNested(req.Op, cur, req.Value)
		})
	}
	if err != nil {
		return Result{}, &PathError{Op: req.Op, Path: req.Path, Message: err.Error()}
	}

	res := Result{Changed: changed}
	if !changed {
		res.Value = ir.Clone(t.value)
		return res, nil
	}

	s.assign(t.owner, t.field, old, nv)
	t.owner.markChanged()
	s.notify(req.Op, t.path, t.owner)

	if len(t.sub) == 0 {
		res.Value = ir.Clone(nv)
	} else if v, err := valueAt(nv, t.sub); err == nil {
		res.Value = ir.Clone(v)
	}
	return res, nil
}

// assign stores v under f and keeps the unit name index current.
func (s *Store) assign(e *Entity, f *Field, old, v ir.IRValue) {
	if v == nil {
		delete(e.attrs, f.Qualified)
	} else {
		e.attrs[f.Qualified] = v
	}

	if f.Qualified == FieldUnitName && e.typeName == TypeUnit {
		if prev, ok := old.(ir.IRString); ok && s.units[string(prev)] == e.handle {
			delete(s.units, string(prev))
		}
		if name, ok := v.(ir.IRString); ok {
			s.units[string(name)] = e.handle
		}
	}
}

// applyField implements the field-level value semantics of each operation.
func applyField(op Op, f *Field, old, v ir.IRValue) (ir.IRValue, bool, error) {
	switch op {
	case OpSet:
		if ir.IsNull(v) {
			return nil, old != nil, nil
		}
		switch f.Cardinality {
		case CardSet:
			cur := asSet(old)
			switch nv := v.(type) {
			case ir.IRSet:
				next := ir.SetOf(nv...)
				return next, !ir.Equal(cur, next), nil
			case ir.IRList:
				return union(cur, nv)
			default:
				next, added := cur.With(v)
				return next, added, nil
			}
		case CardList:
			cur := asList(old)
			switch nv := v.(type) {
			case ir.IRList:
				return nv, !ir.Equal(cur, nv), nil
			case ir.IRSet:
				next := ir.IRList(nv)
				return next, !ir.Equal(cur, next), nil
			default:
				return cur.Append(v), true, nil
			}
		default:
			return v, !ir.Equal(old, v), nil
		}

	case OpAdd:
		switch f.Cardinality {
		case CardSet:
			if members := ir.Members(v); members != nil {
				return union(asSet(old), members)
			}
			next, added := asSet(old).With(v)
			return next, added, nil
		case CardList:
			if members := ir.Members(v); members != nil {
				return asList(old).Append(members...), len(members) > 0, nil
			}
			return asList(old).Append(v), true, nil
		default:
			return nil, false, fmt.Errorf("ADD needs a set or list field, %s is %s", f.Qualified, f.Cardinality)
		}

	case OpChange:
		if f.Multi() {
			return nil, false, fmt.Errorf("CHANGE needs a numeric field, %s is %s", f.Qualified, f.Cardinality)
		}
		sum, err := ir.Add(old, v)
		return sum, true, err

	case OpDel:
		if old == nil {
			return nil, false, nil
		}
		if f.Multi() && !ir.IsNull(v) {
			return removeMember(old, v)
		}
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("operation %s does not mutate", op)
}

// applyNested implements operations on a value inside a container field.
func applyNested(op Op, cur, v ir.IRValue) (ir.IRValue, bool, error) {
	switch op {
	case OpSet:
		if ir.IsNull(v) {
			return nil, cur != nil, nil
		}
		return v, !ir.Equal(cur, v), nil
	case OpAdd:
		switch c := cur.(type) {
		case nil:
			return ir.IRList{v}, true, nil
		case ir.IRList:
			return c.Append(v), true, nil
		case ir.IRSet:
			next, added := c.With(v)
			return next, added, nil
		default:
			return nil, false, fmt.Errorf("cannot ADD to %s", ir.Kind(cur))
		}
	case OpChange:
		sum, err := ir.Add(cur, v)
		return sum, true, err
	case OpDel:
		if cur != nil && !ir.IsNull(v) && ir.Members(cur) != nil {
			return removeMember(cur, v)
		}
		return nil, cur != nil, nil
	}
	return nil, false, fmt.Errorf("operation %s does not mutate", op)
}

// updateIn rewrites the value at sub inside v without modifying v.
func updateIn(v ir.IRValue, sub Path, fn func(ir.IRValue) (ir.IRValue, bool, error)) (ir.IRValue, bool, error) {
	if len(sub) == 0 {
		return fn(present(v))
	}
	switch st := sub[0].(type) {
	case KeyStep:
		var m ir.IRMap
		switch c := v.(type) {
		case nil:
			m = ir.IRMap{}
		case ir.IRMap:
			m = c
		default:
			return nil, false, fmt.Errorf("cannot look up key in %s", ir.Kind(v))
		}
		nv, changed, err := updateIn(m[st.Key], sub[1:], fn)
		if err != nil || !changed {
			return v, false, err
		}
		out := make(ir.IRMap, len(m)+1)
		for k, e := range m {
			out[k] = e
		}
		if nv == nil {
			delete(out, st.Key)
		} else {
			out[st.Key] = nv
		}
		return out, true, nil

	case IndexStep:
		l, ok := v.(ir.IRList)
		if !ok {
			return nil, false, fmt.Errorf("cannot index into %s", ir.Kind(v))
		}
		if st.Index < 0 || st.Index >= len(l) {
			return nil, false, fmt.Errorf("index %d out of range [0,%d)", st.Index, len(l))
		}
		nv, changed, err := updateIn(l[st.Index], sub[1:], fn)
		if err != nil || !changed {
			return v, false, err
		}
		out := make(ir.IRList, 0, len(l))
		out = append(out, l[:st.Index]...)
		if nv != nil {
			out = append(out, nv)
		}
		return append(out, l[st.Index+1:]...), true, nil

	default:
		return nil, false, fmt.Errorf("cannot follow %s through a missing reference", sub[0])
	}
}

func valueAt(v ir.IRValue, sub Path) (ir.IRValue, error) {
	for _, st := range sub {
		if v == nil {
			return nil, nil
		}
		var err error
		if v, err = child(v, st); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func asSet(v ir.IRValue) ir.IRSet {
	switch c := v.(type) {
	case ir.IRSet:
		return c
	case ir.IRList:
		return ir.SetOf(c...)
	case nil:
		return ir.IRSet{}
	default:
		return ir.IRSet{c}
	}
}

func asList(v ir.IRValue) ir.IRList {
	switch c := v.(type) {
	case ir.IRList:
		return c
	case ir.IRSet:
		return ir.IRList(c)
	case nil:
		return ir.IRList{}
	default:
		return ir.IRList{c}
	}
}

func union(cur ir.IRSet, vals []ir.IRValue) (ir.IRValue, bool, error) {
	changed := false
	for _, m := range vals {
		var added bool
		cur, added = cur.With(m)
		changed = changed || added
	}
	return cur, changed, nil
}

// removeMember drops every occurrence of m from a list or set.
func removeMember(v, m ir.IRValue) (ir.IRValue, bool, error) {
	switch c := v.(type) {
	case ir.IRSet:
		next, removed := c.Without(m)
		return next, removed, nil
	case ir.IRList:
		out := make(ir.IRList, 0, len(c))
		for _, e := range c {
			if !ir.Equal(e, m) {
				out = append(out, e)
			}
		}
		return out, len(out) != len(c), nil
	default:
		return nil, false, errors.New("member removal needs a set or list value")
	}
}

func (t target) visit(req Request) (Result, error) {
	res := Result{Value: ir.Clone(t.value), Entity: entityIfWhole(t)}
	if req.Visit == nil {
		return res, nil
	}
	if t.field == nil {
		for _, q := range t.owner.FieldNames() {
			if err := req.Visit(ir.IRString(q), ir.Clone(t.owner.attrs[q])); err != nil {
				return res, err
			}
		}
		return res, nil
	}
	return res, visitValue(t.value, req.Visit)
}

func visitValue(v ir.IRValue, fn func(key, value ir.IRValue) error) error {
	switch c := v.(type) {
	case nil:
		return nil
	case ir.IRList, ir.IRSet:
		for i, m := range ir.Members(c) {
			if err := fn(ir.IRInt(i), ir.Clone(m)); err != nil {
				return err
			}
		}
		return nil
	case ir.IRMap:
		for _, k := range c.SortedKeys() {
			if err := fn(ir.IRString(k), ir.Clone(c[k])); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(ir.IRNull{}, v)
	}
}

func (t target) walk(req Request) (Result, error) {
	res := Result{Value: ir.Clone(t.value), Entity: entityIfWhole(t)}
	if req.Walk == nil {
		return res, nil
	}
	if t.field == nil {
		for _, q := range t.owner.FieldNames() {
			if err := walkValue(t.path.F(q), t.owner.attrs[q], req.Walk); err != nil {
				return res, err
			}
		}
		return res, nil
	}
	return res, walkValue(t.path, t.value, req.Walk)
}

// walkValue visits leaves depth first. References are leaves.
func walkValue(p Path, v ir.IRValue, fn func(Path, ir.IRValue) error) error {
	switch c := v.(type) {
	case nil, ir.IRNull:
		return nil
	case ir.IRList, ir.IRSet:
		for i, m := range ir.Members(c) {
			if err := walkValue(p.I(i), m, fn); err != nil {
				return err
			}
		}
		return nil
	case ir.IRMap:
		for _, k := range c.SortedKeys() {
			if err := walkValue(p.K(k), c[k], fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(p, v)
	}
}

func (s *Store) visitScope(sc ScopeStep, fn func(key, value ir.IRValue) error) (Result, error) {
	if _, ok := s.units[sc.Unit]; !ok {
		return Result{}, unknownUnit(sc.Unit)
	}
	if sc.Type != "" {
		if _, ok := s.types[sc.Type]; !ok {
			return Result{}, unknownType(sc.Type)
		}
	}
	matches := s.VisitEntities(sc.Unit, sc.Type)
	res := Result{Entities: matches}
	if fn == nil {
		return res, nil
	}
	for i, e := range matches {
		if err := fn(ir.IRInt(i), e.Ref()); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Get returns the value at p, or def when absent.
func (s *Store) Get(p Path, def ir.IRValue) (ir.IRValue, error) {
	res, err := s.Access(Request{Op: OpGet, Path: p, Value: def})
	return res.Value, err
}

// GetEntity returns the entity addressed by p, or the entity referenced by
// the value at p. Missing entities are created.
func (s *Store) GetEntity(p Path) (*Entity, error) {
	res, err := s.Access(Request{Op: OpGet, Path: p})
	if err != nil {
		return nil, err
	}
	if res.Entity == nil {
		return nil, fmt.Errorf("get %s: %w", p, ErrNotFound)
	}
	return res.Entity, nil
}

// Peek returns the value at p without creating anything.
func (s *Store) Peek(p Path) (ir.IRValue, bool, error) {
	res, err := s.Access(Request{Op: OpPeek, Path: p})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Value != nil, nil
}

// Set writes v at p and reports whether anything changed.
func (s *Store) Set(p Path, v ir.IRValue) (bool, error) {
	res, err := s.Access(Request{Op: OpSet, Path: p, Value: v})
	return res.Changed, err
}

// Add appends v to a list or inserts it into a set.
func (s *Store) Add(p Path, v ir.IRValue) (bool, error) {
	res, err := s.Access(Request{Op: OpAdd, Path: p, Value: v})
	return res.Changed, err
}

// Change adds delta to the number at p and returns the new value.
func (s *Store) Change(p Path, delta ir.IRValue) (ir.IRValue, error) {
	res, err := s.Access(Request{Op: OpChange, Path: p, Value: delta})
	return res.Value, err
}

// Del removes the value at p. A path naming only an entity marks it Deleted.
func (s *Store) Del(p Path) (bool, error) {
	res, err := s.Access(Request{Op: OpDel, Path: p})
	return res.Changed, err
}

// Remove drops member from the set or list at p.
func (s *Store) Remove(p Path, member ir.IRValue) (bool, error) {
	res, err := s.Access(Request{Op: OpDel, Path: p, Value: member})
	return res.Changed, err
}

// Visit calls fn per element of the value at p, or per loaded entity when p
// is a scope path.
func (s *Store) Visit(p Path, fn func(key, value ir.IRValue) error) error {
	_, err := s.Access(Request{Op: OpVisit, Path: p, Visit: fn})
	return err
}

// Walk calls fn for every leaf under p, depth first.
func (s *Store) Walk(p Path, fn func(Path, ir.IRValue) error) error {
	_, err := s.Access(Request{Op: OpWalk, Path: p, Walk: fn})
	return err
}

func (s *Store) setField(e *Entity, q string, v ir.IRValue) error {
	_, err := s.Set(e.Path().F(q), v)
	return err
}

func (s *Store) addField(e *Entity, q string, v ir.IRValue) error {
	_, err := s.Add(e.Path().F(q), v)
	return err
}
