package model

import "fmt"

// DiagnosticKind separates informational progress from failures.
type DiagnosticKind int

const (
	DiagnosticInfo DiagnosticKind = iota
	DiagnosticError
)

func (k DiagnosticKind) String() string {
	if k == DiagnosticError {
		return "error"
	}
	return "info"
}

// Diagnostic is one out-of-band message sent from a pipeline component to
// the supervisor.
type Diagnostic struct {
	Kind      DiagnosticKind
	Source    string // originating component, e.g. "ingest", "source/tcp"
	Text      string
	Retryable bool // only meaningful for errors
}

// Info builds an informational diagnostic.
func Info(source, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: DiagnosticInfo, Source: source, Text: fmt.Sprintf(format, args...)}
}

// Error builds a retryable error diagnostic from err.
func Error(source string, err error) Diagnostic {
	return Diagnostic{Kind: DiagnosticError, Source: source, Text: err.Error(), Retryable: true}
}

// Fatal builds a non-retryable error diagnostic.
func Fatal(source string, err error) Diagnostic {
	return Diagnostic{Kind: DiagnosticError, Source: source, Text: err.Error()}
}

// IsError reports whether the diagnostic counts toward the circuit breaker.
func (d Diagnostic) IsError() bool { return d.Kind == DiagnosticError }
