package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Datatype is the scalar type of a field's values.
type Datatype int

const (
	DatatypeInt Datatype = iota
	DatatypeNumeric
	DatatypeBool
	DatatypeString
	DatatypeBytes
	DatatypeJSON
	DatatypeEntity
)

var datatypeNames = map[Datatype]string{
	DatatypeInt:     "int",
	DatatypeNumeric: "numeric",
	DatatypeBool:    "bool",
	DatatypeString:  "string",
	DatatypeBytes:   "bytes",
	DatatypeJSON:    "json",
	DatatypeEntity:  "entity",
}

func (d Datatype) String() string {
	if name, ok := datatypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Datatype(%d)", int(d))
}

// ParseDatatype maps a declared datatype name to its Datatype.
func ParseDatatype(s string) (Datatype, error) {
	for d, name := range datatypeNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown datatype %q", s)
}

// Cardinality determines the storage shape of a field.
// Single and Map fields occupy one slot; Set and List fields are containers.
type Cardinality int

const (
	CardSingle Cardinality = iota
	CardSet
	CardList
	CardMap
)

var cardinalityNames = map[Cardinality]string{
	CardSingle: "single",
	CardSet:    "set",
	CardList:   "list",
	CardMap:    "map",
}

func (c Cardinality) String() string {
	if name, ok := cardinalityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// ParseCardinality maps a declared cardinality name to its Cardinality.
// The empty string means single.
func ParseCardinality(s string) (Cardinality, error) {
	if s == "" {
		return CardSingle, nil
	}
	for c, name := range cardinalityNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cardinality %q", s)
}

// Committed is the persistence state of an entity.
type Committed int

const (
	// Uncommitted entities have never been written to storage.
	Uncommitted Committed = iota
	// Dirty entities were saved once and changed since.
	Dirty
	// Deleted entities are logically removed.
	Deleted
	// Saved entities match storage.
	Saved
)

func (c Committed) String() string {
	switch c {
	case Uncommitted:
		return "uncommitted"
	case Dirty:
		return "dirty"
	case Deleted:
		return "deleted"
	case Saved:
		return "saved"
	default:
		return fmt.Sprintf("Committed(%d)", int(c))
	}
}

// Op is an access engine operation.
type Op int

const (
	OpSet Op = iota
	OpAdd
	OpGet
	OpPeek
	OpVisit
	OpChange
	OpDel
	OpWalk
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "SET"
	case OpAdd:
		return "ADD"
	case OpGet:
		return "GET"
	case OpPeek:
		return "PEEK"
	case OpVisit:
		return "VISIT"
	case OpChange:
		return "CHANGE"
	case OpDel:
		return "DEL"
	case OpWalk:
		return "WALK"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// mutates reports whether the operation may change state.
func (o Op) mutates() bool {
	return o == OpSet || o == OpAdd || o == OpChange || o == OpDel
}

// creates reports whether the operation materializes missing entities.
func (o Op) creates() bool {
	return o == OpGet || o == OpSet || o == OpAdd || o == OpChange
}

// GlobalID identifies an entity as "unit:entity_id:meta_type".
type GlobalID string

// NewGlobalID formats a global id.
func NewGlobalID(unit string, id int64, typeName string) GlobalID {
	return GlobalID(unit + ":" + strconv.FormatInt(id, 10) + ":" + typeName)
}

// ParseGlobalID splits a global id into its parts.
func ParseGlobalID(s string) (unit string, id int64, typeName string, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", 0, "", fmt.Errorf("malformed global id %q", s)
	}
	id, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, "", fmt.Errorf("malformed global id %q: bad entity id", s)
	}
	return parts[0], id, parts[2], nil
}

// QualifiedName formats the "unit:type:field" name of a field.
func QualifiedName(unit, typeName, field string) string {
	return unit + ":" + typeName + ":" + field
}

// Foundational units.
const (
	UnitEntity     = "entity"
	UnitEntityMeta = "entity_meta"
)

// Foundational meta-types, all declared in UnitEntityMeta.
const (
	TypeTypeMeta   = "type_meta"
	TypeEntityBase = "_entity_base"
	TypeUnit       = "unit"
	TypeMetaField  = "meta_field"
)

// Qualified names of the foundational fields.
const (
	FieldUnitName      = "entity_meta:unit:name"
	FieldUnitIDCount   = "entity_meta:unit:id_cnt"
	FieldUnitMetaTypes = "entity_meta:unit:meta_types"

	FieldTypeName   = "entity_meta:type_meta:name"
	FieldTypeFields = "entity_meta:type_meta:fields"

	FieldFieldName       = "entity_meta:meta_field:name"
	FieldFieldGlobalName = "entity_meta:meta_field:global_name"
	FieldFieldOrder      = "entity_meta:meta_field:order"

	FieldBaseUnit     = "entity_meta:_entity_base:unit"
	FieldBaseMetaType = "entity_meta:_entity_base:meta_type"
	FieldBaseEntityID = "entity_meta:_entity_base:entity_id"
)

// BaseFields lists the ancestry fields every entity carries, in resolution order.
var BaseFields = []string{FieldBaseUnit, FieldBaseMetaType, FieldBaseEntityID}

// IsBaseField reports whether q is one of the ancestry fields.
func IsBaseField(q string) bool {
	return q == FieldBaseUnit || q == FieldBaseMetaType || q == FieldBaseEntityID
}

// reservedFieldNames would shadow an ancestry field or a base column of the
// relational layout.
var reservedFieldNames = map[string]bool{
	"unit":      true,
	"meta_type": true,
	"entity_id": true,
	"global_id": true,
}

// ReservedFieldName reports whether name is unavailable to user types.
func ReservedFieldName(name string) bool {
	return reservedFieldNames[name]
}
