package codec

import (
	"errors"
	"fmt"

	"github.com/roach88/dust/internal/entity"
)

var (
	// ErrMissingAncestry is returned when a record lacks one of the three
	// ancestry fields.
	ErrMissingAncestry = errors.New("missing ancestry field")

	// ErrUnresolvedAncestry is returned when an ancestry field does not
	// resolve to a loaded unit or type.
	ErrUnresolvedAncestry = errors.New("unresolved ancestry")
)

// DecodeError reports a record that could not be hydrated.
type DecodeError struct {
	GlobalID entity.GlobalID // empty until the entity is resolved
	Field    string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.GlobalID != "" {
		return fmt.Sprintf("decode %s: field %s: %v", e.GlobalID, e.Field, e.Err)
	}
	return fmt.Sprintf("decode entity: field %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
