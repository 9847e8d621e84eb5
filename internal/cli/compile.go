package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/entitymap/internal/mapper"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querydoc"
	"github.com/roach88/entitymap/internal/querymem"
	"github.com/roach88/entitymap/internal/querysql"
)

// Backend names accepted by --backend.
const (
	BackendSQL    = "sql"
	BackendSQLite = "sqlite"
	BackendDoc    = "doc"
	BackendMem    = "mem"
)

// ValidBackends lists the accepted --backend values.
var ValidBackends = []string{BackendSQL, BackendSQLite, BackendDoc, BackendMem}

// Update strategies on the relational backends.
const (
	StrategyFastPath = "fast_path"
	StrategyFallback = "fallback"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Request       string // request file path
	Backend       string
	Entity        string // root table or collection name
	LoadRelations bool
}

// Request is a search or update request in the "$Tag" text form.
type Request struct {
	Criteria map[string]any `yaml:"criteria"`
	Update   map[string]any `yaml:"update"`
	Options  map[string]any `yaml:"options"`
}

// CompileResult holds the native artifacts for one backend.
type CompileResult struct {
	Backend string `json:"backend"`
	Entity  string `json:"entity"`

	// Criteria and Update are the requests after mapping to entity space.
	Criteria queryir.Criteria `json:"criteria"`
	Update   queryir.Update   `json:"update,omitempty"`

	// Relational backends.
	SQL        string   `json:"sql,omitempty"`
	Args       []any    `json:"args,omitempty"`
	Joins      []string `json:"joins,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	UpdateSQL  string   `json:"update_sql,omitempty"`
	UpdateArgs []any    `json:"update_args,omitempty"`

	// Document backend, as relaxed extended JSON.
	Filter    json.RawMessage `json:"filter,omitempty"`
	UpdateDoc json.RawMessage `json:"update_doc,omitempty"`
	Sort      json.RawMessage `json:"sort,omitempty"`

	// In-memory backend.
	Summary string `json:"summary,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <mapping-file>",
		Short: "Compile a request for a backend",
		Long: `Map a search or update request through a mapping file and print what
the chosen backend would run.

The request file holds criteria, update and options in the "$Tag" form:

  criteria:
    age: {$IsGreaterThan: 4}
    owner: {$NestedCriteria: {name: Jo}}
  update:
    age: {$Increment: 1}
  options:
    sortBy: [{age: desc}]
    limit: 10

Backends:
  sql     PostgreSQL select (and UPDATE on the fast path)
  sqlite  SQLite select (and UPDATE on the fast path)
  doc     MongoDB filter, update and sort documents
  mem     in-memory predicate and mutator (validation only)

Examples:
  entitymap compile animal.yaml --request find.yaml --backend sqlite
  entitymap compile animal.cue --request bump.yaml --backend doc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Request, "request", "r", "", "request file (YAML or JSON); empty matches everything")
	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", BackendSQL, "target backend (sql|sqlite|doc|mem)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "table or collection name (default: mapping name)")
	cmd.Flags().BoolVar(&opts.LoadRelations, "load-relations", false, "join every relation in the select")

	return cmd
}

func runCompile(opts *CompileOptions, mappingPath string, cmd *cobra.Command) error {
	printer := newPrinter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if !isValidBackend(opts.Backend) {
		return printer.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends))
	}

	def, compiled, err := loadMapping(mappingPath)
	if err != nil {
		if isReadError(err) {
			return printer.Fail(ExitCommandError, ErrCodeRead, err)
		}
		return printer.Fail(ExitFailure, ErrCodeMapping, err)
	}

	var req Request
	if opts.Request != "" {
		r, err := LoadRequest(opts.Request)
		if err != nil {
			return printer.Fail(ExitCommandError, ErrCodeRead, err)
		}
		req = *r
	}

	entity := opts.Entity
	if entity == "" {
		entity = def.Name
	}
	if entity == "" {
		entity = "entities"
	}

	result, err := CompileRequest(compiled, entity, opts.Backend, &req, opts.LoadRelations)
	if err != nil {
		code := ErrCodeCompile
		if queryir.IsMalformed(err) || queryir.IsInvalidUsage(err) || errors.As(err, new(*mapping.TransformError)) {
			code = ErrCodeRequest
		}
		return printer.Fail(ExitFailure, code, err)
	}
	slog.Debug("compiled request", "backend", result.Backend, "entity", entity, "joins", result.Joins, "strategy", result.Strategy)

	if printer.Format == "json" {
		return printer.Result(result)
	}
	writeCompileText(printer.Out, result)
	return nil
}

// LoadRequest reads a request file. Unknown top-level keys are rejected.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}

	var req Request
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse request file: %w", err)
	}
	return &req, nil
}

// CompileRequest decodes req, maps it to entity space and compiles it for
// backend.
func CompileRequest(compiled *mapping.Compiled, entity, backend string, req *Request, loadRelations bool) (*CompileResult, error) {
	criteria, update, options, err := decodeRequest(req)
	if err != nil {
		return nil, err
	}

	m := mapper.New(compiled)
	mappedCriteria, err := m.MapSearchCriteria(criteria)
	if err != nil {
		return nil, fmt.Errorf("map criteria: %w", err)
	}
	var mappedUpdate queryir.Update
	if update != nil {
		if mappedUpdate, err = m.MapUpdate(update); err != nil {
			return nil, fmt.Errorf("map update: %w", err)
		}
	}
	var mappedOptions *queryir.SearchOptions
	if options != nil {
		o := m.MapSearchOptions(*options)
		mappedOptions = &o
	}

	result := &CompileResult{Backend: backend, Entity: entity, Criteria: mappedCriteria, Update: mappedUpdate}
	switch backend {
	case BackendSQL, BackendSQLite:
		err = compileSQL(result, compiled, mappedCriteria, mappedUpdate, mappedOptions, loadRelations)
	case BackendDoc:
		err = compileDoc(result, mappedCriteria, mappedUpdate, mappedOptions)
	case BackendMem:
		err = compileMem(result, mappedCriteria, mappedUpdate)
	default:
		err = fmt.Errorf("invalid backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decodeRequest(req *Request) (queryir.Criteria, queryir.Update, *queryir.SearchOptions, error) {
	raw := req.Criteria
	if raw == nil {
		raw = map[string]any{}
	}
	criteria, err := queryir.DecodeCriteria(raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("criteria: %w", err)
	}

	var update queryir.Update
	if req.Update != nil {
		if update, err = queryir.DecodeUpdate(req.Update); err != nil {
			return nil, nil, nil, fmt.Errorf("update: %w", err)
		}
	}

	var options *queryir.SearchOptions
	if req.Options != nil {
		o, err := queryir.DecodeSearchOptions(req.Options)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("options: %w", err)
		}
		options = &o
	}
	return criteria, update, options, nil
}

func compileSQL(result *CompileResult, compiled *mapping.Compiled, criteria queryir.Criteria, update queryir.Update,
	options *queryir.SearchOptions, loadRelations bool) error {
	d, err := querysql.DialectByName(result.Backend)
	if err != nil {
		return err
	}
	table, err := querysql.DeriveTable(result.Entity, compiled)
	if err != nil {
		return err
	}

	if update != nil && querysql.IsSimpleUpdate(criteria, update) {
		u := querysql.NewUpdate(d, table)
		if _, err := querysql.FormatSimpleUpdate(u, criteria, update); err != nil {
			return err
		}
		result.Strategy = StrategyFastPath
		result.UpdateSQL, result.UpdateArgs, err = u.SQL()
		return err
	}

	q := querysql.NewSelect(d, table, table.Name)
	plan, err := querysql.FormatSelect(q, table.Name, criteria, options, compiled, loadRelations)
	if err != nil {
		return err
	}
	result.SQL, result.Args, err = q.SQL()
	if err != nil {
		return err
	}
	result.Joins = append(append([]string{}, plan.Paths...), plan.Loaded...)

	if update != nil {
		if _, err := querymem.CompileUpdate(update); err != nil {
			return err
		}
		result.Strategy = StrategyFallback
	}
	return nil
}

func compileDoc(result *CompileResult, criteria queryir.Criteria, update queryir.Update, options *queryir.SearchOptions) error {
	filter, err := querydoc.Filter(criteria)
	if err != nil {
		return err
	}
	if result.Filter, err = bson.MarshalExtJSON(filter, false, false); err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}

	if update != nil {
		doc, err := querydoc.Update(update)
		if err != nil {
			return err
		}
		if result.UpdateDoc, err = bson.MarshalExtJSON(doc, false, false); err != nil {
			return fmt.Errorf("encode update: %w", err)
		}
	}

	if options != nil {
		if sort := querydoc.Sort(options.SortBy); sort != nil {
			if result.Sort, err = bson.MarshalExtJSON(sort, false, false); err != nil {
				return fmt.Errorf("encode sort: %w", err)
			}
		}
	}
	return nil
}

func compileMem(result *CompileResult, criteria queryir.Criteria, update queryir.Update) error {
	if _, err := querymem.Compile(criteria); err != nil {
		return err
	}
	summary := fmt.Sprintf("predicate over %d key(s)", len(criteria))
	if update != nil {
		if _, err := querymem.CompileUpdate(update); err != nil {
			return err
		}
		summary += fmt.Sprintf(", mutator over %d key(s)", len(update))
	}
	result.Summary = summary
	return nil
}

func writeCompileText(w io.Writer, r *CompileResult) {
	fmt.Fprintf(w, "backend: %s\n", r.Backend)
	fmt.Fprintf(w, "entity: %s\n", r.Entity)
	if r.Strategy != "" {
		fmt.Fprintf(w, "strategy: %s\n", r.Strategy)
	}
	if r.UpdateSQL != "" {
		fmt.Fprintf(w, "update: %s\n", r.UpdateSQL)
		fmt.Fprintf(w, "args: %v\n", r.UpdateArgs)
	}
	if r.SQL != "" {
		fmt.Fprintf(w, "select: %s\n", r.SQL)
		fmt.Fprintf(w, "args: %v\n", r.Args)
	}
	if len(r.Joins) > 0 {
		fmt.Fprintf(w, "joins: %s\n", strings.Join(r.Joins, ", "))
	}
	if r.Filter != nil {
		fmt.Fprintf(w, "filter: %s\n", r.Filter)
	}
	if r.UpdateDoc != nil {
		fmt.Fprintf(w, "update: %s\n", r.UpdateDoc)
	}
	if r.Sort != nil {
		fmt.Fprintf(w, "sort: %s\n", r.Sort)
	}
	if r.Summary != "" {
		fmt.Fprintf(w, "summary: %s\n", r.Summary)
	}
}

func isValidBackend(backend string) bool {
	for _, b := range ValidBackends {
		if b == backend {
			return true
		}
	}
	return false
}
