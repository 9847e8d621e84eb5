package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/entitymap/internal/ir"
)

// Snapshot renders the step outcomes of one backend as canonical JSON, one
// line per scenario:
//
//	{"scenario":"...","steps":[{"op":"countAll","output":3},...]}
//
// The backend name is left out so every backend renders the same snapshot
// when they agree.
func Snapshot(result *Result, backend string) ([]byte, error) {
	outcomes := result.Outcomes(backend)
	steps := make([]any, len(outcomes))
	for i, o := range outcomes {
		step := map[string]any{"op": o.Op}
		if o.Error != "" {
			step["error"] = o.Error
		} else {
			step["output"] = o.Output
		}
		steps[i] = step
	}

	data, err := ir.MarshalCanonical(map[string]any{
		"scenario": result.Scenario,
		"steps":    steps,
	})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the outcomes of its first
// backend against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The scenario must pass; a failing result fails the test before the golden
// comparison.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	backend := AllBackends[0]
	if len(scenario.Backends) > 0 {
		backend = scenario.Backends[0]
	}
	return AssertGolden(t, scenario.Name, result, backend)
}

// AssertGolden compares the outcomes of one backend against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result, backend string) error {
	t.Helper()

	data, err := Snapshot(result, backend)
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
