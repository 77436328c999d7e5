package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/dust/internal/entity"
)

// Validation error codes (E100-E199)
const (
	ErrEmptyName        = "E101" // unit, type or field name is empty
	ErrInvalidName      = "E102" // name contains ':'
	ErrDuplicateType    = "E103" // type declared twice
	ErrDuplicateField   = "E104" // field declared twice on one type
	ErrTypeInManyUnits  = "E105" // type name reused across units
	ErrNegativeID       = "E106" // explicit id below zero
	ErrReservedTypeName = "E107" // type shadows a foundational meta-type
	ErrDuplicateID      = "E108" // explicit type or field id reused within a unit
	ErrReservedField    = "E109" // field name collides with a base field or column
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks type declarations before registration.
// Returns all errors found (does not fail-fast).
func Validate(decls []entity.TypeDecl) []ValidationError {
	var errs []ValidationError

	foundational := make(map[string]bool)
	for _, d := range entity.FoundationalTypes() {
		foundational[d.Name] = true
	}

	typeUnits := make(map[string]string)
	seenType := make(map[string]bool)
	typeIDs := make(map[string]string)  // unit:id -> type
	fieldIDs := make(map[string]string) // unit:id -> qualified field

	for i, d := range decls {
		where := fmt.Sprintf("types[%d]", i)
		errs = append(errs, checkName(where+".unit", d.Unit)...)
		errs = append(errs, checkName(where+".name", d.Name)...)

		if foundational[d.Name] && d.Unit != entity.UnitEntityMeta {
			errs = append(errs, ValidationError{
				Field:   where + ".name",
				Message: fmt.Sprintf("type %q is reserved", d.Name),
				Code:    ErrReservedTypeName,
			})
		}

		key := d.Unit + ":" + d.Name
		if seenType[key] {
			errs = append(errs, ValidationError{
				Field:   where + ".name",
				Message: fmt.Sprintf("duplicate type %s", key),
				Code:    ErrDuplicateType,
			})
		}
		seenType[key] = true

		if unit, ok := typeUnits[d.Name]; ok && unit != d.Unit {
			errs = append(errs, ValidationError{
				Field:   where + ".name",
				Message: fmt.Sprintf("type %q already declared in unit %q", d.Name, unit),
				Code:    ErrTypeInManyUnits,
			})
		} else {
			typeUnits[d.Name] = d.Unit
		}

		errs = append(errs, checkID(where+".id", d.Unit, d.ID, key, typeIDs)...)

		fieldNames := make(map[string]bool)
		for j, f := range d.Fields {
			fwhere := fmt.Sprintf("%s.fields[%d]", where, j)
			errs = append(errs, checkName(fwhere+".name", f.Name)...)
			if fieldNames[f.Name] {
				errs = append(errs, ValidationError{
					Field:   fwhere + ".name",
					Message: fmt.Sprintf("duplicate field %q on %s", f.Name, key),
					Code:    ErrDuplicateField,
				})
			}
			if entity.ReservedFieldName(f.Name) && d.Unit != entity.UnitEntityMeta {
				errs = append(errs, ValidationError{
					Field:   fwhere + ".name",
					Message: fmt.Sprintf("field %q is reserved", f.Name),
					Code:    ErrReservedField,
				})
			}
			fieldNames[f.Name] = true
			errs = append(errs, checkID(fwhere+".id", d.Unit, f.ID, entity.QualifiedName(d.Unit, d.Name, f.Name), fieldIDs)...)
		}
	}
	return errs
}

func checkName(field, name string) []ValidationError {
	if strings.TrimSpace(name) == "" {
		return []ValidationError{{Field: field, Message: "name is required", Code: ErrEmptyName}}
	}
	if strings.Contains(name, ":") {
		return []ValidationError{{Field: field, Message: fmt.Sprintf("name %q must not contain ':'", name), Code: ErrInvalidName}}
	}
	return nil
}

// checkID rejects negative ids and explicit ids used twice for the same kind
// of entity in one unit.
func checkID(field, unit string, id int64, owner string, seen map[string]string) []ValidationError {
	if id < 0 {
		return []ValidationError{{Field: field, Message: fmt.Sprintf("id %d is negative", id), Code: ErrNegativeID}}
	}
	if id == 0 {
		return nil
	}
	key := fmt.Sprintf("%s:%d", unit, id)
	if prev, ok := seen[key]; ok && prev != owner {
		return []ValidationError{{Field: field, Message: fmt.Sprintf("id %d already used by %s", id, prev), Code: ErrDuplicateID}}
	}
	seen[key] = owner
	return nil
}
