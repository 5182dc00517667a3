// Package logsource feeds live trace output into a streaming channel.
//
// Sources hand over whole blocks of lines, normally one trace event each,
// so that several senders can be merged without splitting an event.
package logsource

// Streamer is a live source of framed trace lines (stdin, TCP).
type Streamer interface {
	Blocks() <-chan []string // closed when the source is exhausted or stopped
	Stop()                   // graceful shutdown
	Name() string            // "tcp", "stdin", "stdin+tcp"
}
