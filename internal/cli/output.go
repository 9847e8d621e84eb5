package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the mapping, request or a scenario is wrong
	ExitCommandError = 2 // the invocation is wrong: unreadable paths, bad flags
)

// Error codes carried by Response.Error.
const (
	ErrCodeGeneric  = "E001"
	ErrCodeRead     = "E002" // mapping, request or scenario file unreadable
	ErrCodeMapping  = "E003" // mapping does not decode or compile
	ErrCodeRequest  = "E004" // request holds a malformed or misused condition or action
	ErrCodeCompile  = "E005" // the backend has no translation for the request
	ErrCodeScenario = "E006"
)

// ExitError carries the process exit code out of a command's RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no code
// count as failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the envelope every command writes in json format.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Printer writes command results as text or as a json Response.
//
// Results and reports go to Out. Trace lines go to Diag so they never mix
// with a json document on Out.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer // defaults to Out
	Verbose bool
}

func newPrinter(opts *RootOptions, out, diag io.Writer) *Printer {
	return &Printer{Format: opts.Format, Out: out, Diag: diag, Verbose: opts.Verbose}
}

func (p *Printer) json() bool { return p.Format == "json" }

func (p *Printer) encode(r Response) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Result prints a successful command's payload. Text output relies on the
// payload's String method.
func (p *Printer) Result(data any) error {
	if p.json() {
		return p.encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.Out, data)
	return err
}

// Report prints an error. Details only reach text output in verbose mode.
func (p *Printer) Report(code, message string, details any) error {
	if p.json() {
		return p.encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(p.Out, "Error [%s]: %s\n", code, message)
	if p.Verbose && details != nil {
		fmt.Fprintf(p.Out, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under code and returns the ExitError for RunE.
func (p *Printer) Fail(exitCode int, code string, err error) error {
	_ = p.Report(code, err.Error(), nil)
	return WrapExitError(exitCode, code, err)
}

// Tracef prints a progress line in verbose mode.
func (p *Printer) Tracef(format string, args ...any) {
	if !p.Verbose {
		return
	}
	fmt.Fprintf(p.diag(), format+"\n", args...)
}

func (p *Printer) diag() io.Writer {
	if p.Diag != nil {
		return p.Diag
	}
	return p.Out
}
