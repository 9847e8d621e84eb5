package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/querydoc"
)

// ValidationError is one problem found in a mapping file.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Name       string            `json:"name,omitempty"`
	EntityKeys []string          `json:"entity_keys,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <mapping-file>",
		Short: "Check a mapping file",
		Long: `Load a YAML or CUE mapping file and compile it, reporting every
problem found rather than stopping at the first one.

Exit codes:
  0 - Mapping is valid
  1 - Mapping has errors
  2 - Command error (file missing, unsupported extension)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	printer := newPrinter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	printer.Tracef("Loading mapping %s", path)

	def, compiled, err := loadMapping(path)
	if err != nil {
		if isReadError(err) {
			return printer.Fail(ExitCommandError, ErrCodeRead, err)
		}
		return outputValidationErrors(printer, validationErrors(err))
	}

	result := ValidationResult{Valid: true, Name: def.Name, EntityKeys: compiled.EntityKeys()}
	if printer.Format == "json" {
		return printer.Result(result)
	}
	name := def.Name
	if name == "" {
		name = path
	}
	fmt.Fprintf(printer.Out, "✓ %s valid (%d entity keys: %s)\n", name, len(result.EntityKeys), strings.Join(result.EntityKeys, ", "))
	return nil
}

// loadMapping loads and compiles a mapping file. The registry holds the
// built-in transforms plus the ObjectID transforms.
func loadMapping(path string) (*mapping.Definition, *mapping.Compiled, error) {
	reg := mapping.NewRegistry()
	if err := querydoc.RegisterTransforms(reg); err != nil {
		return nil, nil, err
	}

	def, err := mapping.LoadFile(path, reg)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := mapping.Compile(def.Spec)
	if err != nil {
		return nil, nil, err
	}
	return def, compiled, nil
}

// isReadError reports whether err means the file could not be read at all,
// as opposed to holding a bad mapping.
func isReadError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) || strings.Contains(err.Error(), "unsupported mapping file extension")
}

// validationErrors flattens an aggregated load or compile error.
func validationErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range multierr.Errors(err) {
		var loadErr *mapping.LoadError
		var specErr *mapping.SpecError
		switch {
		case errors.As(e, &loadErr):
			ve := ValidationError{Path: loadErr.Path, Message: loadErr.Message}
			if loadErr.Pos.IsValid() {
				ve.Line = loadErr.Pos.Line()
			}
			out = append(out, ve)
		case errors.As(e, &specErr):
			out = append(out, ValidationError{Path: specErr.Path, Message: specErr.Message})
		default:
			out = append(out, ValidationError{Message: e.Error()})
		}
	}
	return out
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(printer *Printer, errs []ValidationError) error {
	if printer.Format == "json" {
		_ = printer.Report(ErrCodeMapping, fmt.Sprintf("%d error(s) in mapping", len(errs)), ValidationResult{Valid: false, Errors: errs})
	} else {
		fmt.Fprintf(printer.Out, "✗ %d error(s) in mapping\n", len(errs))
		for _, e := range errs {
			loc := e.Path
			if e.Line > 0 {
				loc = fmt.Sprintf("%s (line %d)", loc, e.Line)
			}
			if loc == "" {
				fmt.Fprintf(printer.Out, "  %s\n", e.Message)
				continue
			}
			fmt.Fprintf(printer.Out, "  %s: %s\n", loc, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d error(s) in mapping", len(errs)))
}
