// Package traceparse reconstructs Firebird trace events from the line
// stream produced by a trace session or a saved trace log.
//
// An event starts at a header line ("2024-01-02T03:04:05.6789 (...) EVENT")
// and extends until the next header. The Parser is a single-goroutine state
// machine: feed it lines with Parse and poll PopEvent after every call.
package traceparse
