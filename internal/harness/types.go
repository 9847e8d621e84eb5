package harness

// StepOutcome records what one backend answered for one step.
type StepOutcome struct {
	Backend string `json:"backend"`
	Step    int    `json:"step"`
	Op      string `json:"op"`

	// Output is the normalized return value: an object, a list of objects,
	// a count, or nil.
	Output any `json:"output,omitempty"`

	// Error is the error code, or the error text for unclassified errors.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Scenario is the name of the scenario that produced this result.
	Scenario string `json:"scenario"`

	// Pass indicates overall test success.
	// True if every expectation and assertion held on every backend and
	// the backends agreed with each other.
	Pass bool `json:"pass"`

	// Trace contains the outcome of every step on every backend, grouped by
	// backend in run order.
	Trace []StepOutcome `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Trace:    []StepOutcome{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutcome appends a step outcome to the trace.
func (r *Result) AddOutcome(o StepOutcome) {
	r.Trace = append(r.Trace, o)
}

// Outcomes returns the trace entries of one backend in step order.
func (r *Result) Outcomes(backend string) []StepOutcome {
	var out []StepOutcome
	for _, o := range r.Trace {
		if o.Backend == backend {
			out = append(out, o)
		}
	}
	return out
}
