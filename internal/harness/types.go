package harness

import "github.com/roach88/dust/internal/ir"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64
	Op      string
	Path    string
	Value   ir.IRValue // operand, nil when the step has none
	Result  ir.IRValue // returned value, nil when absent
	Changed *bool      // set for mutating operations
	Visited int        // elements seen by visit and walk
	Error   string
}

// canonical renders e for golden comparison.
func (e TraceEvent) canonical() ir.IRMap {
	m := ir.IRMap{
		"seq": ir.IRInt(e.Seq),
		"op":  ir.IRString(e.Op),
	}
	if e.Path != "" {
		m["path"] = ir.IRString(e.Path)
	}
	if e.Value != nil {
		m["value"] = e.Value
	}
	if e.Result != nil {
		m["result"] = e.Result
	}
	if e.Changed != nil {
		m["changed"] = ir.IRBool(*e.Changed)
	}
	if e.Op == OpVisit || e.Op == OpWalk {
		m["visited"] = ir.IRInt(e.Visited)
	}
	if e.Error != "" {
		m["error"] = ir.IRString(e.Error)
	}
	return m
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	// Trace holds setup and flow steps in execution order.
	Trace []TraceEvent

	// Errors describes every failed expectation.
	Errors []string

	// State maps each alias to its entity's encoded fields after the run.
	State ir.IRMap
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  ir.IRMap{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
