package logsource

import "github.com/tinytelemetry/fdbtracer/internal/tcpserver"

// TCPSource wraps a tcpserver.Server as a Streamer. The server frames each
// connection on its own.
type TCPSource struct {
	server *tcpserver.Server
}

// NewTCPSource creates a TCPSource from an already-started TCP server.
func NewTCPSource(server *tcpserver.Server) *TCPSource {
	return &TCPSource{server: server}
}

func (t *TCPSource) Blocks() <-chan []string { return t.server.Blocks() }
func (t *TCPSource) Stop()                   { _ = t.server.Stop() }
func (t *TCPSource) Name() string            { return "tcp" }

// Server exposes the wrapped server for connection stats.
func (t *TCPSource) Server() *tcpserver.Server { return t.server }
