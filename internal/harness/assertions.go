package harness

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // assertion type
	Subject  string // entity alias, path or scope checked
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s %s: expected %s, got %s", e.Type, e.Subject, e.Expected, e.Actual)
}

// evaluate checks every assertion against the current entity store. The
// returned error is an infrastructure failure; failed assertions are
// returned in the slice.
func (r *runner) evaluate(ctx context.Context, assertions []Assertion) ([]*AssertionError, error) {
	if len(assertions) == 0 {
		return nil, nil
	}
	var failed []*AssertionError
	err := r.engine.Do(ctx, func(es *entity.Store) error {
		for _, a := range assertions {
			if ae := r.assert(es, a); ae != nil {
				failed = append(failed, ae)
			}
		}
		return nil
	})
	return failed, err
}

func (r *runner) assert(es *entity.Store, a Assertion) *AssertionError {
	switch a.Type {
	case AssertValue:
		return r.assertValue(es, a)
	case AssertCount:
		return assertCount(es, a)
	case AssertState:
		return r.assertState(es, a)
	case AssertNotified:
		return r.assertNotified(a)
	}
	return &AssertionError{Type: a.Type, Expected: "a known assertion type", Actual: a.Type}
}

// assertValue peeks at a field so a missing container is not created. An
// absent equals expects the value to be unset.
func (r *runner) assertValue(es *entity.Store, a Assertion) *AssertionError {
	p, f, err := r.path(es, a.Entity, "", a.Field, a.Index, a.Key)
	if err != nil {
		return &AssertionError{Type: a.Type, Subject: a.Entity, Expected: "an addressable field", Actual: err.Error()}
	}
	fail := func(expected, actual string) *AssertionError {
		return &AssertionError{Type: a.Type, Subject: a.Entity + "/" + p.String(), Expected: expected, Actual: actual}
	}

	res, err := es.Access(entity.Request{Op: entity.OpPeek, Path: p})
	if err != nil {
		return fail(show(nil), err.Error())
	}
	if a.Equals == nil {
		if res.Value != nil {
			return fail(show(nil), show(res.Value))
		}
		return nil
	}
	want, err := operand(f, nested(a.Index, a.Key), a.Equals)
	if err != nil {
		return fail(fmt.Sprintf("%v", a.Equals), err.Error())
	}
	if !ir.Equal(want, res.Value) {
		return fail(show(want), show(res.Value))
	}
	return nil
}

// assertCount counts the live entities of a scope.
func assertCount(es *entity.Store, a Assertion) *AssertionError {
	unit, typeName, _ := splitScope(a.Scope)
	n := 0
	for _, e := range es.VisitEntities(unit, typeName) {
		if e.State() != entity.Deleted {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Subject:  a.Scope,
			Expected: strconv.Itoa(a.Count),
			Actual:   strconv.Itoa(n),
		}
	}
	return nil
}

func (r *runner) assertState(es *entity.Store, a Assertion) *AssertionError {
	actual := "not loaded"
	if e, ok := es.Lookup(r.aliases[a.Entity]); ok {
		actual = e.State().String()
	}
	if actual != a.State {
		return &AssertionError{Type: a.Type, Subject: a.Entity, Expected: a.State, Actual: actual}
	}
	return nil
}

// assertNotified compares the number of change notifications an entity
// received. Notifications delivered while reloading are not counted.
func (r *runner) assertNotified(a Assertion) *AssertionError {
	n := r.notes.count(r.aliases[a.Entity])
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Subject:  a.Entity,
			Expected: strconv.Itoa(a.Count),
			Actual:   strconv.Itoa(n),
		}
	}
	return nil
}
