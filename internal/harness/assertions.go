package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/repository"
)

// AssertionError is returned when an expectation or assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}

// checkExpect compares a step outcome with its expectation.
func checkExpect(expect *Expect, o StepOutcome) error {
	if expect == nil {
		if o.Error != "" {
			return &AssertionError{Type: "error", Expected: "success", Actual: o.Error}
		}
		return nil
	}

	if expect.Error != "" {
		if o.Error != expect.Error {
			return &AssertionError{Type: "error", Expected: expect.Error, Actual: describeOutcome(o)}
		}
		return nil
	}
	if o.Error != "" {
		return &AssertionError{Type: "error", Expected: "success", Actual: o.Error}
	}

	if expect.Null && o.Output != nil {
		return &AssertionError{Type: "null", Expected: "no object", Actual: describe(o.Output)}
	}

	if expect.Count != nil {
		n, ok := ir.ToInt64(o.Output)
		if !ok || int(n) != *expect.Count {
			return &AssertionError{Type: "count", Expected: fmt.Sprint(*expect.Count), Actual: describe(o.Output)}
		}
	}

	if expect.IDs != nil {
		got := outputIDs(o.Output)
		if !ir.DeepEqual(got, expect.IDs) {
			return &AssertionError{Type: "ids", Expected: describe(expect.IDs), Actual: describe(got)}
		}
	}

	if expect.Object != nil {
		if !matchValue(o.Output, expect.Object) {
			return &AssertionError{Type: "object", Expected: describe(expect.Object), Actual: describe(o.Output)}
		}
	}

	if expect.Objects != nil {
		list, _ := ir.AsSlice(o.Output)
		if err := matchObjects(list, expect.Objects); err != nil {
			return err
		}
	}
	return nil
}

// matchObjects checks that actual holds exactly len(expected) objects, each a
// superset of its counterpart.
func matchObjects(actual []any, expected []map[string]any) error {
	if len(actual) != len(expected) {
		return &AssertionError{
			Type:     "objects",
			Expected: fmt.Sprintf("%d objects", len(expected)),
			Actual:   fmt.Sprintf("%d objects: %s", len(actual), describe(actual)),
		}
	}
	for i := range expected {
		if !matchValue(actual[i], expected[i]) {
			return &AssertionError{
				Type:     fmt.Sprintf("objects[%d]", i),
				Expected: describe(expected[i]),
				Actual:   describe(actual[i]),
			}
		}
	}
	return nil
}

// matchValue checks if actual contains expected (subset match).
// Extra keys in actual objects are ignored at every depth; arrays must have
// the same length and match element by element.
func matchValue(actual, expected any) bool {
	if em, ok := expected.(map[string]any); ok {
		am, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, ev := range em {
			av, exists := am[key]
			if !exists {
				return false
			}
			if !matchValue(av, ev) {
				return false
			}
		}
		return true
	}

	if es, ok := ir.AsSlice(expected); ok {
		as, ok := ir.AsSlice(actual)
		if !ok || len(as) != len(es) {
			return false
		}
		for i := range es {
			if !matchValue(as[i], es[i]) {
				return false
			}
		}
		return true
	}

	return ir.DeepEqual(actual, expected)
}

// outputIDs returns the ids of the objects in an output. A single object
// yields one id and nil yields none.
func outputIDs(output any) []any {
	if m, ok := output.(map[string]any); ok {
		return []any{m["id"]}
	}
	list, _ := ir.AsSlice(output)
	ids := make([]any, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			ids = append(ids, m["id"])
		}
	}
	return ids
}

// EvaluateAssertions evaluates all assertions against a repository after the
// steps ran. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, repo repository.Repository, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		if err := evaluateAssertion(ctx, repo, a); err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errors
}

func evaluateAssertion(ctx context.Context, repo repository.Repository, a Assertion) error {
	criteria, err := queryir.DecodeCriteria(orEmpty(a.Where))
	if err != nil {
		return fmt.Errorf("decode where: %w", err)
	}

	switch a.Type {
	case AssertCount:
		n, err := repo.CountAll(ctx, criteria)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if n != a.Count {
			return &AssertionError{Type: AssertCount, Expected: fmt.Sprint(a.Count), Actual: fmt.Sprint(n)}
		}
	case AssertFinalState:
		opts := &queryir.SearchOptions{SortBy: []queryir.SortField{{Key: "id", Direction: queryir.Asc}}}
		docs, err := repo.FindAll(ctx, criteria, opts)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		if err := matchObjects(normalizeList(docs), a.Expect); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// describe renders a value as canonical JSON for messages.
func describe(v any) string {
	data, err := ir.MarshalCanonical(normalize(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func describeOutcome(o StepOutcome) string {
	if o.Error != "" {
		return o.Error
	}
	return "success: " + describe(o.Output)
}
