package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querysql"
	"github.com/roach88/entitymap/internal/repository"
	"github.com/roach88/entitymap/internal/store"
	"github.com/roach88/entitymap/internal/testutil"
)

// Harness runs scenarios. Every backend gets a fresh repository per
// scenario and its own sequential id generator, so created ids are the same
// on every backend and across runs.
type Harness struct {
	logger   *slog.Logger
	registry *mapping.Registry
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to the stores and repositories.
//
// Default: discard
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRegistry sets the transform registry used to load mapping files.
//
// Default: mapping.NewRegistry()
func WithRegistry(reg *mapping.Registry) Option {
	return func(h *Harness) {
		if reg != nil {
			h.registry = reg
		}
	}
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:   slog.New(slog.DiscardHandler),
		registry: mapping.NewRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a test scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario on each of its backends and returns the
// result.
//
// Execution flow:
//  1. Load and compile the mapping
//  2. Per backend: open a fresh repository, create the seed objects, run
//     the steps with expect validation, evaluate the assertions
//  3. Compare step outcomes across backends
//
// An error is returned only when the scenario cannot run at all (bad
// mapping, unopenable store, failing seed). Failed expectations are
// reported in Result.Errors.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	def, err := mapping.LoadFile(scenario.Mapping, h.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}
	compiled, err := mapping.Compile(def.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mapping: %w", err)
	}

	entity := scenario.Entity
	if entity == "" {
		entity = def.Name
	}
	if entity == "" {
		entity = "entities"
	}

	backends := scenario.Backends
	if len(backends) == 0 {
		backends = AllBackends
	}

	result := NewResult(scenario.Name)
	for _, backend := range backends {
		if err := h.runBackend(ctx, backend, entity, compiled, scenario, result); err != nil {
			return nil, fmt.Errorf("%s: %w", backend, err)
		}
	}
	compareBackends(result, backends)
	return result, nil
}

func (h *Harness) runBackend(ctx context.Context, backend, entity string, compiled *mapping.Compiled, scenario *Scenario, result *Result) error {
	repo, closeFn, err := h.open(ctx, backend, entity, compiled)
	if err != nil {
		return err
	}
	defer closeFn()

	if len(scenario.Seed) > 0 {
		if _, err := repo.CreateMany(ctx, toDocuments(scenario.Seed)); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	for i, step := range scenario.Steps {
		h.logger.DebugContext(ctx, "step", "backend", backend, "index", i, "op", step.Op)
		outcome := StepOutcome{Backend: backend, Step: i, Op: step.Op}
		output, err := runStep(ctx, repo, step)
		if err != nil {
			outcome.Error = errorCode(err)
		} else {
			outcome.Output = normalize(output)
		}
		result.AddOutcome(outcome)

		if err := checkExpect(step.Expect, outcome); err != nil {
			result.AddError(fmt.Sprintf("[%s] steps[%d] %s: %v", backend, i, step.Op, err))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, repo, scenario.Assertions) {
		result.AddError(fmt.Sprintf("[%s] %s", backend, msg))
	}
	return nil
}

// open creates a fresh repository for the named backend. The returned
// function releases it.
func (h *Harness) open(ctx context.Context, backend, entity string, compiled *mapping.Compiled) (repository.Repository, func(), error) {
	ids := testutil.NewSequentialIDs("g")
	opts := []repository.RepositoryOption{
		repository.WithLogger(h.logger),
		repository.WithIDGenerator(ids.Next),
		repository.WithEntityName(entity),
	}

	switch backend {
	case BackendMemory:
		return repository.NewMemory(nil, opts...), func() {}, nil
	case BackendSQLite:
		st, err := store.Open(":memory:", store.WithLogger(h.logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		table, err := querysql.DeriveTable(entity, compiled)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		if err := st.CreateTables(ctx, table); err != nil {
			st.Close()
			return nil, nil, err
		}
		return repository.NewRelational(st, table, compiled, opts...), func() { st.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}

// runStep decodes a step's inputs and calls the repository.
func runStep(ctx context.Context, repo repository.Repository, step Step) (any, error) {
	criteria, err := queryir.DecodeCriteria(orEmpty(step.Criteria))
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpFindOne:
		return repo.FindOne(ctx, criteria)
	case OpFindOneOrFail:
		return repo.FindOneOrFail(ctx, criteria)
	case OpFindAll:
		var opts *queryir.SearchOptions
		if step.Options != nil {
			o, err := queryir.DecodeSearchOptions(step.Options)
			if err != nil {
				return nil, err
			}
			opts = &o
		}
		return repo.FindAll(ctx, criteria, opts)
	case OpCountAll:
		return repo.CountAll(ctx, criteria)
	case OpCreate:
		return repo.Create(ctx, ir.CloneDocument(step.Object))
	case OpCreateMany:
		return repo.CreateMany(ctx, toDocuments(step.Objects))
	case OpFindOneAndDelete:
		return repo.FindOneAndDelete(ctx, criteria)
	case OpFindAllAndDelete:
		return repo.FindAllAndDelete(ctx, criteria)
	}

	update, err := queryir.DecodeUpdate(step.Update)
	if err != nil {
		return nil, err
	}
	switch step.Op {
	case OpFindOneAndUpdate:
		return repo.FindOneAndUpdate(ctx, criteria, update)
	case OpFindAllAndUpdate:
		return repo.FindAllAndUpdate(ctx, criteria, update)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// errorCode classifies a step error. Unclassified errors keep their text.
func errorCode(err error) string {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	if repository.IsSingleEntityNotFound(err) {
		return ErrCodeNotFound
	}
	return err.Error()
}

// compareBackends reports steps where a backend answered differently from
// the first one.
func compareBackends(result *Result, backends []string) {
	if len(backends) < 2 {
		return
	}
	want := result.Outcomes(backends[0])
	for _, b := range backends[1:] {
		got := result.Outcomes(b)
		for i := range min(len(want), len(got)) {
			if want[i].Error == got[i].Error && ir.DeepEqual(want[i].Output, got[i].Output) {
				continue
			}
			result.AddError(fmt.Sprintf("steps[%d] %s: %s returned %s, %s returned %s",
				i, want[i].Op, backends[0], describeOutcome(want[i]), b, describeOutcome(got[i])))
		}
	}
}

// normalize turns repository results into plain values: documents become
// map[string]any and document lists become []any, at every depth.
func normalize(v any) any {
	switch val := v.(type) {
	case ir.Document:
		if val == nil {
			return nil
		}
		return normalize(map[string]any(val))
	case []ir.Document:
		return normalizeList(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func normalizeList(docs []ir.Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = normalize(d)
	}
	return out
}

func toDocuments(objects []map[string]any) []ir.Document {
	docs := make([]ir.Document, len(objects))
	for i, o := range objects {
		docs[i] = ir.CloneDocument(o)
	}
	return docs
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
