package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dust/internal/ir"
)

// Snapshot renders a result as canonical JSON: the scenario name, every
// traced step and the final state of each alias.
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make(ir.IRList, len(result.Trace))
	for i, ev := range result.Trace {
		steps[i] = ev.canonical()
	}
	return ir.MarshalCanonical(ir.IRMap{
		"scenario": ir.IRString(name),
		"steps":    steps,
		"state":    result.State,
	})
}

// RunWithGolden executes a scenario and compares its snapshot with
// testdata/golden/<name>.golden. Failed expectations fail the test.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario, opts ...Option) error {
	t.Helper()

	result, err := Run(context.Background(), sc, opts...)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, sc.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
