package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dust/internal/entity"
)

// CompileTypes parses type declarations out of a CUE value.
//
// The value holds a `unit` struct keyed by unit name, each with a `type`
// struct keyed by type name:
//
//	unit: shop: type: product: {
//		id: 10 // optional
//		fields: {
//			name:  "string"
//			tags:  {datatype: "string", cardinality: "set"}
//			sizes: {datatype: "int", cardinality: "list", id: 50, order: 3}
//		}
//	}
//
// A field given as a bare string is a SINGLE field of that datatype. Field
// order defaults to declaration order.
func CompileTypes(v cue.Value) ([]entity.TypeDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unitsVal := v.LookupPath(cue.ParsePath("unit"))
	if !unitsVal.Exists() {
		return nil, nil
	}
	units, err := unitsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []entity.TypeDecl
	for units.Next() {
		unitName := units.Label()
		typesVal := units.Value().LookupPath(cue.ParsePath("type"))
		if !typesVal.Exists() {
			continue
		}
		types, err := typesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for types.Next() {
			decl, err := compileType(unitName, types.Label(), types.Value())
			if err != nil {
				return nil, err
			}
			decls = append(decls, decl)
		}
	}
	return decls, nil
}

// compileType parses one type struct.
func compileType(unit, name string, v cue.Value) (entity.TypeDecl, error) {
	decl := entity.TypeDecl{Unit: unit, Name: name}
	where := fmt.Sprintf("unit.%s.type.%s", unit, name)

	if idVal := v.LookupPath(cue.ParsePath("id")); idVal.Exists() {
		id, err := idVal.Int64()
		if err != nil {
			return decl, &CompileError{Field: where + ".id", Message: "id must be an integer", Pos: idVal.Pos()}
		}
		decl.ID = id
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return decl, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return decl, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		fd, err := compileField(where+".fields."+iter.Label(), iter.Label(), i, iter.Value())
		if err != nil {
			return decl, err
		}
		decl.Fields = append(decl.Fields, fd)
	}
	return decl, nil
}

// compileField parses a field given either as a datatype string or as a
// struct with datatype, cardinality, id and order.
func compileField(where, name string, index int, v cue.Value) (entity.FieldDecl, error) {
	fd := entity.FieldDecl{Name: name, Order: index}

	if s, err := v.String(); err == nil {
		d, err := entity.ParseDatatype(s)
		if err != nil {
			return fd, &CompileError{Field: where, Message: err.Error(), Pos: v.Pos()}
		}
		fd.Datatype = d
		return fd, nil
	}

	if v.IncompleteKind() != cue.StructKind {
		return fd, &CompileError{
			Field:   where,
			Message: "field must be a datatype string or a struct",
			Pos:     v.Pos(),
		}
	}

	dtVal := v.LookupPath(cue.ParsePath("datatype"))
	if !dtVal.Exists() {
		return fd, &CompileError{Field: where + ".datatype", Message: "datatype is required", Pos: v.Pos()}
	}
	dt, err := dtVal.String()
	if err != nil {
		return fd, formatCUEError(err)
	}
	if fd.Datatype, err = entity.ParseDatatype(dt); err != nil {
		return fd, &CompileError{Field: where + ".datatype", Message: err.Error(), Pos: dtVal.Pos()}
	}

	if cVal := v.LookupPath(cue.ParsePath("cardinality")); cVal.Exists() {
		c, err := cVal.String()
		if err != nil {
			return fd, formatCUEError(err)
		}
		if fd.Cardinality, err = entity.ParseCardinality(c); err != nil {
			return fd, &CompileError{Field: where + ".cardinality", Message: err.Error(), Pos: cVal.Pos()}
		}
	}

	if idVal := v.LookupPath(cue.ParsePath("id")); idVal.Exists() {
		if fd.ID, err = idVal.Int64(); err != nil {
			return fd, &CompileError{Field: where + ".id", Message: "id must be an integer", Pos: idVal.Pos()}
		}
	}

	if oVal := v.LookupPath(cue.ParsePath("order")); oVal.Exists() {
		order, err := oVal.Int64()
		if err != nil {
			return fd, &CompileError{Field: where + ".order", Message: "order must be an integer", Pos: oVal.Pos()}
		}
		fd.Order = int(order)
	}
	return fd, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	File    string // set for sources without CUE positions
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
