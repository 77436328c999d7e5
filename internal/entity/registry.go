package entity

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dust/internal/ir"
)

// Field describes one declared attribute of a meta-type.
type Field struct {
	Unit        string
	Type        string
	Name        string
	Qualified   string
	Datatype    Datatype
	Cardinality Cardinality
	ID          int64
	Order       int
	Handle      Handle // the meta_field entity
}

// Multi reports whether the field is a container (SET or LIST).
func (f *Field) Multi() bool {
	return f.Cardinality == CardSet || f.Cardinality == CardList
}

// MetaType describes a registered type.
type MetaType struct {
	Unit   string
	Name   string
	ID     int64
	Handle Handle   // the type_meta entity
	Fields []*Field // sorted by Order, then ID
}

// Persisted reports whether the type gets relational tables. Types whose
// name starts with an underscore are abstract.
func (m *MetaType) Persisted() bool {
	return !strings.HasPrefix(m.Name, "_")
}

// TypeDecl declares a type to register. ID 0 allocates from the unit counter.
type TypeDecl struct {
	Unit   string      `yaml:"unit" json:"unit"`
	Name   string      `yaml:"name" json:"name"`
	ID     int64       `yaml:"id,omitempty" json:"id,omitempty"`
	Fields []FieldDecl `yaml:"fields" json:"fields"`
}

// FieldDecl declares one field of a TypeDecl.
type FieldDecl struct {
	Name        string      `yaml:"name" json:"name"`
	Datatype    Datatype    `yaml:"-" json:"-"`
	Cardinality Cardinality `yaml:"-" json:"-"`
	ID          int64       `yaml:"id,omitempty" json:"id,omitempty"`
	Order       int         `yaml:"order,omitempty" json:"order,omitempty"`
}

// foundationalTypes describe the schema of the schema.
var foundationalTypes = []TypeDecl{
	{Unit: UnitEntityMeta, Name: TypeTypeMeta, ID: 1, Fields: []FieldDecl{
		{Name: "name", Datatype: DatatypeString, ID: 200, Order: 0},
		{Name: "fields", Datatype: DatatypeEntity, Cardinality: CardSet, ID: 201, Order: 1},
	}},
	{Unit: UnitEntityMeta, Name: TypeEntityBase, ID: 2, Fields: []FieldDecl{
		{Name: "unit", Datatype: DatatypeEntity, ID: 400, Order: 0},
		{Name: "meta_type", Datatype: DatatypeEntity, ID: 401, Order: 1},
		{Name: "entity_id", Datatype: DatatypeInt, ID: 402, Order: 2},
	}},
	{Unit: UnitEntityMeta, Name: TypeUnit, ID: 3, Fields: []FieldDecl{
		{Name: "name", Datatype: DatatypeString, ID: 100, Order: 0},
		{Name: "id_cnt", Datatype: DatatypeInt, ID: 101, Order: 1},
		{Name: "meta_types", Datatype: DatatypeEntity, Cardinality: CardSet, ID: 102, Order: 2},
	}},
	{Unit: UnitEntityMeta, Name: TypeMetaField, ID: 4, Fields: []FieldDecl{
		{Name: "name", Datatype: DatatypeString, ID: 300, Order: 0},
		{Name: "global_name", Datatype: DatatypeString, ID: 301, Order: 1},
		{Name: "order", Datatype: DatatypeInt, ID: 302, Order: 2},
	}},
}

// FoundationalTypes returns the declarations of the bootstrap meta-types.
func FoundationalTypes() []TypeDecl {
	return slices.Clone(foundationalTypes)
}

// bootstrap wires the foundational units and meta-types by hand, then runs
// the generic registration over them so their field entities exist.
func (s *Store) bootstrap() {
	root := s.insert(UnitEntity, 1, TypeUnit)
	meta := s.insert(UnitEntity, 2, TypeUnit)
	s.units[UnitEntity] = root.handle
	s.units[UnitEntityMeta] = meta.handle
	root.attrs[FieldUnitName] = ir.IRString(UnitEntity)
	root.attrs[FieldUnitIDCount] = ir.IRInt(2)
	meta.attrs[FieldUnitName] = ir.IRString(UnitEntityMeta)
	meta.attrs[FieldUnitIDCount] = ir.IRInt(int64(len(foundationalTypes)))

	typeEntities := make([]*Entity, 0, len(foundationalTypes))
	for _, d := range foundationalTypes {
		t := s.insert(UnitEntityMeta, d.ID, TypeTypeMeta)
		t.attrs[FieldTypeName] = ir.IRString(d.Name)
		s.types[d.Name] = &MetaType{Unit: d.Unit, Name: d.Name, ID: d.ID, Handle: t.handle}
		typeEntities = append(typeEntities, t)
	}

	typeMeta := s.types[TypeTypeMeta].Handle
	for _, t := range typeEntities {
		s.link(t, meta.handle, typeMeta)
	}
	unitType := s.types[TypeUnit].Handle
	s.link(root, root.handle, unitType)
	s.link(meta, root.handle, unitType)

	if err := s.RegisterTypes(foundationalTypes...); err != nil {
		panic(fmt.Sprintf("bootstrap registry: %v", err))
	}
}

// CreateUnit returns the unit named name, creating it on first use with a
// zero id counter.
func (s *Store) CreateUnit(name string) (*Entity, error) {
	name = norm.NFC.String(name)
	if err := validName(name); err != nil {
		return nil, fmt.Errorf("create unit: %w", err)
	}
	if u, ok := s.Unit(name); ok {
		return u, nil
	}

	u, err := s.GetEntity(Create(UnitEntity, TypeUnit))
	if err != nil {
		return nil, fmt.Errorf("create unit %s: %w", name, err)
	}
	if err := s.setField(u, FieldUnitIDCount, ir.IRInt(0)); err != nil {
		return nil, fmt.Errorf("create unit %s: %w", name, err)
	}
	if err := s.setField(u, FieldUnitName, ir.IRString(name)); err != nil {
		return nil, fmt.Errorf("create unit %s: %w", name, err)
	}
	s.logger.Debug("unit created", zap.String("unit", name), zap.String("global_id", string(u.gid)))
	return u, nil
}

// RegisterTypes turns declarations into meta-type and field entities and
// populates the field lookup table. Registering a type again refreshes its
// fields.
func (s *Store) RegisterTypes(decls ...TypeDecl) error {
	normalized := make([]TypeDecl, len(decls))
	for i, d := range decls {
		nd, err := normalizeDecl(d)
		if err != nil {
			return err
		}
		if mt, ok := s.types[nd.Name]; ok && mt.Unit != nd.Unit {
			return fmt.Errorf("register type %s: already declared in unit %s", nd.Name, mt.Unit)
		}
		normalized[i] = nd
	}

	for _, d := range normalized {
		s.declare(d)
	}

	var unitOrder []*Entity
	unitTypes := make(map[Handle][]*Entity)
	for _, d := range normalized {
		unit, err := s.CreateUnit(d.Unit)
		if err != nil {
			return err
		}
		typeEntity, err := s.registerType(d)
		if err != nil {
			return fmt.Errorf("register type %s: %w", d.Name, err)
		}
		if _, seen := unitTypes[unit.handle]; !seen {
			unitOrder = append(unitOrder, unit)
		}
		unitTypes[unit.handle] = append(unitTypes[unit.handle], typeEntity)
	}

	for _, unit := range unitOrder {
		for _, t := range unitTypes[unit.handle] {
			if err := s.addField(unit, FieldUnitMetaTypes, t.Ref()); err != nil {
				return fmt.Errorf("attach types to unit %s: %w", unit.gid, err)
			}
		}
	}
	return nil
}

// declare installs field descriptors for d, keeping entity handles from any
// earlier registration. Descriptors of fields d no longer declares are dropped.
func (s *Store) declare(d TypeDecl) {
	if mt, ok := s.types[d.Name]; ok {
		kept := make(map[string]bool, len(d.Fields))
		for _, fd := range d.Fields {
			kept[fd.Name] = true
		}
		for _, f := range mt.Fields {
			if !kept[f.Name] {
				delete(s.fields, f.Qualified)
			}
		}
	}
	for _, fd := range d.Fields {
		q := QualifiedName(d.Unit, d.Name, fd.Name)
		f := &Field{
			Unit:        d.Unit,
			Type:        d.Name,
			Name:        fd.Name,
			Qualified:   q,
			Datatype:    fd.Datatype,
			Cardinality: fd.Cardinality,
			ID:          fd.ID,
			Order:       fd.Order,
			Handle:      noHandle,
		}
		if prev, ok := s.fields[q]; ok && fd.ID == 0 {
			f.ID = prev.ID
			f.Handle = prev.Handle
		}
		s.fields[q] = f
	}
}

func (s *Store) registerType(d TypeDecl) (*Entity, error) {
	mt, ok := s.types[d.Name]
	var typeEntity *Entity
	if ok {
		typeEntity = s.entities[mt.Handle]
	} else {
		e, err := s.GetEntity(Locate(d.Unit, d.ID, TypeTypeMeta))
		if err != nil {
			return nil, err
		}
		typeEntity = e
		mt = &MetaType{Unit: d.Unit, Name: d.Name, ID: e.id, Handle: e.handle}
		s.types[d.Name] = mt
	}
	if err := s.setField(typeEntity, FieldTypeName, ir.IRString(d.Name)); err != nil {
		return nil, err
	}

	fields := make([]*Field, 0, len(d.Fields))
	for _, fd := range d.Fields {
		f := s.fields[QualifiedName(d.Unit, d.Name, fd.Name)]
		fe, err := s.GetEntity(Locate(d.Unit, f.ID, TypeMetaField))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Qualified, err)
		}
		f.ID = fe.id
		f.Handle = fe.handle
		if err := s.setField(fe, FieldFieldName, ir.IRString(f.Name)); err != nil {
			return nil, err
		}
		if err := s.setField(fe, FieldFieldOrder, ir.IRInt(int64(f.Order))); err != nil {
			return nil, err
		}
		if err := s.setField(fe, FieldFieldGlobalName, ir.IRString(f.Qualified)); err != nil {
			return nil, err
		}
		if err := s.addField(typeEntity, FieldTypeFields, fe.Ref()); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if err := s.dropStaleFields(typeEntity, fields); err != nil {
		return nil, err
	}
	slices.SortStableFunc(fields, func(a, b *Field) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	mt.Fields = fields

	s.logger.Debug("type registered",
		zap.String("type", d.Name),
		zap.String("global_id", string(typeEntity.gid)),
		zap.Int("fields", len(fields)))
	return typeEntity, nil
}

// dropStaleFields detaches field entities the current declaration of the
// type no longer lists.
func (s *Store) dropStaleFields(typeEntity *Entity, fields []*Field) error {
	current, _ := typeEntity.Value(FieldTypeFields)
	keep := make(map[ir.IRRef]bool, len(fields))
	for _, f := range fields {
		keep[ir.IRRef(s.entities[f.Handle].gid)] = true
	}
	for _, m := range ir.Members(current) {
		if ref, ok := m.(ir.IRRef); ok && !keep[ref] {
			if _, err := s.Remove(typeEntity.Path().F(FieldTypeFields), ref); err != nil {
				return err
			}
		}
	}
	return nil
}

// MetaType returns the registered type named name.
func (s *Store) MetaType(name string) (*MetaType, bool) {
	mt, ok := s.types[name]
	return mt, ok
}

// Types returns every registered type ordered by unit name, then id.
func (s *Store) Types() []*MetaType {
	out := make([]*MetaType, 0, len(s.types))
	for _, mt := range s.types {
		out = append(out, mt)
	}
	slices.SortFunc(out, func(a, b *MetaType) int {
		return cmp.Or(strings.Compare(a.Unit, b.Unit), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// TypesOf returns the registered types of one unit, ordered by id.
func (s *Store) TypesOf(unit string) []*MetaType {
	var out []*MetaType
	for _, mt := range s.Types() {
		if mt.Unit == unit {
			out = append(out, mt)
		}
	}
	return out
}

// Field returns the descriptor for a qualified field name.
func (s *Store) Field(qualified string) (*Field, bool) {
	f, ok := s.fields[qualified]
	return f, ok
}

// fieldFor resolves a field step against the type of e. Short names are
// qualified with e's type; base fields resolve by short name on any entity.
func (s *Store) fieldFor(e *Entity, name string) (*Field, error) {
	q := name
	if !strings.Contains(name, ":") {
		mt := s.types[e.typeName]
		q = QualifiedName(mt.Unit, mt.Name, name)
		if _, ok := s.fields[q]; !ok {
			q = QualifiedName(UnitEntityMeta, TypeEntityBase, name)
		}
	}
	f, ok := s.fields[q]
	if !ok {
		return nil, unknownField(name, "not declared on "+e.typeName)
	}
	if f.Type != e.typeName && f.Type != TypeEntityBase {
		return nil, unknownField(q, "not declared on "+e.typeName)
	}
	return f, nil
}

func normalizeDecl(d TypeDecl) (TypeDecl, error) {
	out := TypeDecl{
		Unit:   norm.NFC.String(d.Unit),
		Name:   norm.NFC.String(d.Name),
		ID:     d.ID,
		Fields: make([]FieldDecl, len(d.Fields)),
	}
	if err := validName(out.Unit); err != nil {
		return TypeDecl{}, fmt.Errorf("register type %s: unit: %w", d.Name, err)
	}
	if err := validName(out.Name); err != nil {
		return TypeDecl{}, fmt.Errorf("register type: %w", err)
	}
	if out.ID < 0 {
		return TypeDecl{}, fmt.Errorf("register type %s: negative id %d", out.Name, out.ID)
	}
	seen := make(map[string]bool, len(d.Fields))
	for i, fd := range d.Fields {
		fd.Name = norm.NFC.String(fd.Name)
		if err := validName(fd.Name); err != nil {
			return TypeDecl{}, fmt.Errorf("register type %s: field %d: %w", out.Name, i, err)
		}
		if ReservedFieldName(fd.Name) && out.Unit != UnitEntityMeta {
			return TypeDecl{}, fmt.Errorf("register type %s: field %q: %w", out.Name, fd.Name, ErrReservedField)
		}
		if seen[fd.Name] {
			return TypeDecl{}, fmt.Errorf("register type %s: duplicate field %q", out.Name, fd.Name)
		}
		if fd.ID < 0 {
			return TypeDecl{}, fmt.Errorf("register type %s: field %s: negative id %d", out.Name, fd.Name, fd.ID)
		}
		seen[fd.Name] = true
		out.Fields[i] = fd
	}
	return out, nil
}

var errBadName = errors.New("name must be non-empty and must not contain ':'")

func validName(name string) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("%w: %q", errBadName, name)
	}
	return nil
}
