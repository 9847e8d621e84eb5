package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario seeds every backend with the same objects, runs the same steps
// against each of them, and checks that they all answer as expected.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mapping is the path to a YAML or CUE mapping file.
	// Relative paths are resolved against the scenario file location.
	Mapping string `yaml:"mapping"`

	// Entity names the stored entity; it is the root table name on the
	// relational backend. Defaults to the mapping definition name.
	Entity string `yaml:"entity,omitempty"`

	// Backends restricts the run to the named backends.
	// Defaults to every backend in AllBackends.
	Backends []string `yaml:"backends,omitempty"`

	// Seed holds detached objects created before the steps run.
	Seed []map[string]any `yaml:"seed,omitempty"`

	// Steps are repository calls with optional expectations.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one repository call. Criteria, update and options use the "$Tag"
// text form, e.g. {age: {$IsGreaterThan: 4}}.
type Step struct {
	// Op is the repository operation, one of the Op* constants.
	Op string `yaml:"op"`

	Criteria map[string]any   `yaml:"criteria,omitempty"`
	Update   map[string]any   `yaml:"update,omitempty"`
	Options  map[string]any   `yaml:"options,omitempty"`
	Object   map[string]any   `yaml:"object,omitempty"`
	Objects  []map[string]any `yaml:"objects,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step only has to succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step. Only the fields that are
// set are checked.
type Expect struct {
	// Error is the expected error code: one of the queryir error codes or
	// NOT_FOUND for FindOneOrFail.
	Error string `yaml:"error,omitempty"`

	// IDs are the ids of the returned objects, in order.
	IDs []any `yaml:"ids,omitempty"`

	// Count is the returned count.
	Count *int `yaml:"count,omitempty"`

	// Object is matched against a single returned object (subset match).
	Object map[string]any `yaml:"object,omitempty"`

	// Objects are matched against the returned objects in order (subset match).
	Objects []map[string]any `yaml:"objects,omitempty"`

	// Null requires a single-object operation to return nothing.
	Null bool `yaml:"null,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "count": CountAll(where) equals Count
	// - "final_state": FindAll(where) sorted by id matches Expect in order
	Type string `yaml:"type"`

	// Where holds criteria in the "$Tag" form. Empty matches everything.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains the expected objects (used by final_state).
	// Subset match - only specified fields are validated.
	Expect []map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of matches (used by count).
	Count int `yaml:"count,omitempty"`
}

// Operation names.
const (
	OpFindOne          = "findOne"
	OpFindOneOrFail    = "findOneOrFail"
	OpFindAll          = "findAll"
	OpCountAll         = "countAll"
	OpCreate           = "create"
	OpCreateMany       = "createMany"
	OpFindOneAndUpdate = "findOneAndUpdate"
	OpFindAllAndUpdate = "findAllAndUpdate"
	OpFindOneAndDelete = "findOneAndDelete"
	OpFindAllAndDelete = "findAllAndDelete"
)

var operations = []string{
	OpFindOne, OpFindOneOrFail, OpFindAll, OpCountAll, OpCreate, OpCreateMany,
	OpFindOneAndUpdate, OpFindAllAndUpdate, OpFindOneAndDelete, OpFindAllAndDelete,
}

// Assertion type constants.
const (
	AssertCount      = "count"
	AssertFinalState = "final_state"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// AllBackends lists the backends a scenario runs on by default.
var AllBackends = []string{BackendMemory, BackendSQLite}

// ErrCodeNotFound is the expected error for a failed FindOneOrFail.
const ErrCodeNotFound = "NOT_FOUND"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The mapping path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Mapping != "" && !filepath.IsAbs(scenario.Mapping) {
		scenario.Mapping = filepath.Join(filepath.Dir(path), scenario.Mapping)
	}
	if _, err := os.Stat(scenario.Mapping); err != nil {
		return nil, fmt.Errorf("invalid scenario: mapping file not found: %s", scenario.Mapping)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml scenario in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Mapping == "" {
		return fmt.Errorf("mapping is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, b := range s.Backends {
		if !slices.Contains(AllBackends, b) {
			return fmt.Errorf("unknown backend %q", b)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step names a known operation and carries the
// inputs that operation needs.
func validateStep(index int, s *Step) error {
	if s.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !slices.Contains(operations, s.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}

	switch s.Op {
	case OpCreate:
		if s.Object == nil {
			return fmt.Errorf("steps[%d]: object is required for %s", index, s.Op)
		}
	case OpCreateMany:
		if len(s.Objects) == 0 {
			return fmt.Errorf("steps[%d]: objects list is required for %s", index, s.Op)
		}
	case OpFindOneAndUpdate, OpFindAllAndUpdate:
		if s.Update == nil {
			return fmt.Errorf("steps[%d]: update is required for %s", index, s.Op)
		}
	}

	if s.Options != nil && s.Op != OpFindAll {
		return fmt.Errorf("steps[%d]: options are only allowed for %s", index, OpFindAll)
	}

	if e := s.Expect; e != nil && e.Error != "" {
		if e.Count != nil || e.IDs != nil || e.Object != nil || e.Objects != nil || e.Null {
			return fmt.Errorf("steps[%d].expect: error cannot be combined with other expectations", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for count", index)
		}
	case AssertFinalState:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
