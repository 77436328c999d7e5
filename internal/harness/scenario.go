package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against an entity store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Types lists YAML or CUE declaration files, relative to the scenario
	// file.
	Types []string `yaml:"types"`

	// Setup steps run first and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps is the flow under test.
	Steps []Step `yaml:"steps"`

	// Assertions check the state after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Harness operations beyond the access operations.
const (
	OpCreate = "create"
	OpFlush  = "flush"
	OpReload = "reload"

	OpSet    = "set"
	OpAdd    = "add"
	OpGet    = "get"
	OpPeek   = "peek"
	OpVisit  = "visit"
	OpChange = "change"
	OpDel    = "del"
	OpWalk   = "walk"
)

// Step is one operation.
type Step struct {
	Op string `yaml:"op"`

	// Entity is the alias of a created entity.
	Entity string `yaml:"entity,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Index  *int   `yaml:"index,omitempty"`
	Key    string `yaml:"key,omitempty"`

	// Scope ("unit" or "unit:type") replaces Entity for visit steps.
	Scope string `yaml:"scope,omitempty"`

	// Unit, Type and As configure create.
	Unit string `yaml:"unit,omitempty"`
	Type string `yaml:"type,omitempty"`
	As   string `yaml:"as,omitempty"`

	// Value is the operand: the value of set, the member of add, the delta
	// of change, the member removed by del and the default of get.
	Value any `yaml:"value,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step. Unset fields are not checked.
type Expect struct {
	Value   any    `yaml:"value,omitempty"`
	Changed *bool  `yaml:"changed,omitempty"`
	Found   *bool  `yaml:"found,omitempty"`
	Visited *int   `yaml:"visited,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	Type string `yaml:"type"`

	Entity string `yaml:"entity,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Index  *int   `yaml:"index,omitempty"`
	Key    string `yaml:"key,omitempty"`
	Equals any    `yaml:"equals,omitempty"`

	Scope string `yaml:"scope,omitempty"`
	Count int    `yaml:"count,omitempty"`
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertValue    = "value"
	AssertCount    = "count"
	AssertState    = "state"
	AssertNotified = "notified"
)

var accessOps = map[string]bool{
	OpSet: true, OpAdd: true, OpGet: true, OpPeek: true,
	OpVisit: true, OpChange: true, OpDel: true, OpWalk: true,
}

// LoadScenario reads and validates a scenario file. Type paths are resolved
// relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i, p := range sc.Types {
		if !filepath.IsAbs(p) {
			sc.Types[i] = filepath.Join(base, p)
		}
	}
	for _, p := range sc.Types {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("invalid scenario: types file not found: %s", p)
		}
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario. Unknown keys are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// validateScenario checks required fields and that every alias is created
// before it is used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Types) == 0 {
		return fmt.Errorf("types list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, step := range s.Setup {
		if err := validateStep(step, aliases); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step, aliases); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, aliases); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, aliases map[string]bool) error {
	switch {
	case step.Op == OpCreate:
		if step.Unit == "" || step.Type == "" || step.As == "" {
			return fmt.Errorf("create needs unit, type and as")
		}
		if aliases[step.As] {
			return fmt.Errorf("alias %q already defined", step.As)
		}
		aliases[step.As] = true
		return nil
	case step.Op == OpFlush || step.Op == OpReload:
		return nil
	case !accessOps[step.Op]:
		if step.Op == "" {
			return fmt.Errorf("op is required")
		}
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if step.Scope != "" {
		if step.Op != OpVisit {
			return fmt.Errorf("scope is only valid for visit")
		}
		if step.Entity != "" {
			return fmt.Errorf("scope and entity are exclusive")
		}
		_, _, err := splitScope(step.Scope)
		return err
	}
	if step.Entity == "" {
		return fmt.Errorf("entity is required for %s", step.Op)
	}
	if !aliases[step.Entity] {
		return fmt.Errorf("unknown entity %q", step.Entity)
	}
	return nil
}

func validateAssertion(a Assertion, aliases map[string]bool) error {
	switch a.Type {
	case AssertValue, AssertState, AssertNotified:
		if a.Entity == "" {
			return fmt.Errorf("entity is required for %s", a.Type)
		}
		if !aliases[a.Entity] {
			return fmt.Errorf("unknown entity %q", a.Entity)
		}
		if a.Type == AssertValue && a.Field == "" {
			return fmt.Errorf("field is required for value")
		}
		if a.Type == AssertState && a.State == "" {
			return fmt.Errorf("state is required for state")
		}
	case AssertCount:
		if _, _, err := splitScope(a.Scope); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// splitScope parses "unit" or "unit:type".
func splitScope(s string) (unit, typeName string, err error) {
	unit, typeName, _ = strings.Cut(s, ":")
	if unit == "" || strings.Contains(typeName, ":") {
		return "", "", fmt.Errorf("scope %q must be unit or unit:type", s)
	}
	return unit, typeName, nil
}
