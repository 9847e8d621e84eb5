package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var animalMapping = filepath.Join("testdata", "mappings", "animal.yaml")

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps)*len(AllBackends))
		})
	}
}

func TestRun_TraceGroupedByBackend(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace",
		Description: "two steps",
		Mapping:     animalMapping,
		Seed:        []map[string]any{{"id": "a-1", "name": "Rex", "age": 3}},
		Steps: []Step{
			{Op: OpCountAll},
			{Op: OpFindOne, Criteria: map[string]any{"id": "a-1"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	for i, backend := range AllBackends {
		outcomes := result.Outcomes(backend)
		require.Len(t, outcomes, 2)
		assert.Equal(t, result.Trace[i*2:i*2+2], outcomes)
		assert.EqualValues(t, 1, outcomes[0].Output)
		assert.Equal(t, map[string]any{"id": "a-1", "name": "Rex", "age": int64(3)}, normalizeInts(outcomes[1].Output))
	}
}

func TestRun_FailedExpectation(t *testing.T) {
	count := 5
	scenario := &Scenario{
		Name:        "failing",
		Description: "wrong count",
		Mapping:     animalMapping,
		Backends:    []string{BackendMemory},
		Seed:        []map[string]any{{"id": "a-1", "name": "Rex"}},
		Steps: []Step{
			{Op: OpCountAll, Expect: &Expect{Count: &count}},
			{Op: OpFindAll, Expect: &Expect{IDs: []any{"a-1"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "[memory] steps[0] countAll")
	assert.Contains(t, result.Errors[0], "expected: 5")
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "an invalid request without an error expectation",
		Mapping:     animalMapping,
		Backends:    []string{BackendMemory},
		Steps: []Step{
			{Op: OpFindAll, Criteria: map[string]any{"tags": []any{}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "INVALID_USAGE")
}

func TestRun_BackendsDisagree(t *testing.T) {
	// The memory backend keeps fields the mapping does not declare; the
	// relational backend drops them.
	scenario := &Scenario{
		Name:        "disagree",
		Description: "undeclared field",
		Mapping:     animalMapping,
		Seed:        []map[string]any{{"id": "a-1", "name": "Rex", "color": "brown"}},
		Steps: []Step{
			{Op: OpFindOne, Criteria: map[string]any{"id": "a-1"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] findOne: memory returned")
	assert.Contains(t, result.Errors[0], `"color":"brown"`)
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "assertion",
		Description: "final state mismatch",
		Mapping:     animalMapping,
		Backends:    []string{BackendSQLite},
		Seed:        []map[string]any{{"id": "a-1", "name": "Rex", "age": 3}},
		Steps: []Step{
			{Op: OpFindAllAndUpdate, Update: map[string]any{"age": map[string]any{"$Increment": 1}}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Expect: []map[string]any{{"id": "a-1", "age": 3}}},
			{Type: AssertCount, Where: map[string]any{"age": 4}, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "[sqlite] assertions[0]")
}

func TestRun_MappingErrors(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing",
		Description: "mapping file missing",
		Mapping:     filepath.Join(t.TempDir(), "missing.yaml"),
		Steps:       []Step{{Op: OpCountAll}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load mapping")
}

func TestHarness_EntityName(t *testing.T) {
	scenario := &Scenario{
		Name:        "entity",
		Description: "custom table name",
		Mapping:     animalMapping,
		Entity:      "pets",
		Backends:    []string{BackendSQLite},
		Seed:        []map[string]any{{"id": "a-1", "name": "Rex", "toys": []any{map[string]any{"id": "t-1", "label": "ball"}}}},
		Steps: []Step{
			{Op: OpFindAll, Criteria: map[string]any{"toys": map[string]any{"$HasElementThatMatches": map[string]any{"label": "ball"}}}},
		},
	}

	result, err := New().Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []any{"a-1"}, outputIDs(result.Trace[0].Output))
}

// normalizeInts widens int values so results from both backends compare
// with assert.Equal.
func normalizeInts(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeInts(e)
		}
		return out
	}
	return v
}
