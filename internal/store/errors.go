package store

import "fmt"

// StatementError wraps a database error with the statement that caused it.
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("exec %q: %v", e.SQL, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
