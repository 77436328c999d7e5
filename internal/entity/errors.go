package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	// ErrUnknownUnit is returned when a path names a unit that was never created.
	ErrUnknownUnit = errors.New("unknown unit")

	// ErrUnknownType is returned when a path or declaration names an unregistered type.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownField is returned when a field is not part of the registry.
	ErrUnknownField = errors.New("unknown field")

	// ErrNotFound is returned when a non-creating operation addresses a missing entity.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidPath is returned when a path does not fit the addressed value.
	ErrInvalidPath = errors.New("invalid path")

	// ErrReservedField is returned when a declaration uses a base field name.
	ErrReservedField = errors.New("reserved field name")
)

// SchemaError reports a path or declaration that references something the
// registry does not know. These are programming errors and are not retried.
type SchemaError struct {
	Kind   error // ErrUnknownUnit, ErrUnknownType or ErrUnknownField
	Name   string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v %q: %s", e.Kind, e.Name, e.Detail)
	}
	return fmt.Sprintf("%v %q", e.Kind, e.Name)
}

func (e *SchemaError) Unwrap() error {
	return e.Kind
}

// PathError reports a path whose shape does not match the value it addresses.
type PathError struct {
	Op      Op
	Path    Path
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
}

func (e *PathError) Is(target error) bool {
	return target == ErrInvalidPath
}

func unknownUnit(name string) error {
	return &SchemaError{Kind: ErrUnknownUnit, Name: name}
}

func unknownType(name string) error {
	return &SchemaError{Kind: ErrUnknownType, Name: name}
}

func unknownField(name, detail string) error {
	return &SchemaError{Kind: ErrUnknownField, Name: name, Detail: detail}
}
