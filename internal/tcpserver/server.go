// Package tcpserver receives trace session output from remote senders,
// typically `fbtracemgr -start ... | nc host 4010`.
package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/fdbtracer/internal/frame"
)

const (
	// DefaultAddr is used when NewServer is given an empty address.
	DefaultAddr = "127.0.0.1:4010"

	// DefaultBlockChannelSize is the default buffer, in blocks, between
	// connections and the consumer.
	DefaultBlockChannelSize = 1024

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single trace line.
	// Statement text lines can be long, so this is generous.
	DefaultMaxLineSize = 4 * 1024 * 1024
)

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	BlockChannelSize int
	MaxLineSize      int

	// Boundary splits each connection's stream into blocks. Nil forwards
	// every line as its own block.
	Boundary      frame.Boundary
	MaxBlockLines int
}

// Server frames every connection separately and emits whole blocks, so
// concurrent senders never interleave inside an event. Blank lines are
// kept; they are part of the trace layout.
type Server struct {
	addr string
	conf ServerConfig

	listener net.Listener
	blocks   chan []string
	ctx      context.Context
	cancel   context.CancelFunc
	conns    sync.WaitGroup
	stopOnce sync.Once

	active   atomic.Int64
	accepted atomic.Uint64
}

// NewServer creates a new TCP server. Default addr is DefaultAddr.
func NewServer(addr string, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	var c ServerConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.BlockChannelSize <= 0 {
		c.BlockChannelSize = DefaultBlockChannelSize
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		conf:   c,
		blocks: make(chan []string, c.BlockChannelSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the listener and accepts connections in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.conns.Add(1)
	go s.accept(ln)
	return nil
}

func (s *Server) accept(ln net.Listener) {
	defer s.conns.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			continue
		}
		s.accepted.Add(1)
		s.conns.Add(1)
		go s.serve(conn)
	}
}

// serve reads one sender until EOF. The block in progress is flushed when
// the sender disconnects, since it cannot be continued by anyone else.
func (s *Server) serve(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()
	s.active.Add(1)
	defer s.active.Add(-1)

	// Unblock the scan when the server stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	fr := frame.New(s.conf.Boundary, s.conf.MaxBlockLines)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), s.conf.MaxLineSize)
	for scanner.Scan() {
		if block := fr.Add(scanner.Text()); block != nil && !s.emit(block) {
			return
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Printf("tcpserver: dropped connection %s due to line exceeding max size (%d bytes)", conn.RemoteAddr(), s.conf.MaxLineSize)
		} else {
			log.Printf("tcpserver: read error from %s: %v", conn.RemoteAddr(), err)
		}
	}
	if block := fr.Flush(); block != nil {
		s.emit(block)
	}
}

func (s *Server) emit(block []string) bool {
	select {
	case s.blocks <- block:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Stop closes the listener and every connection, then closes Blocks.
// It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.conns.Wait()
		close(s.blocks)
	})
	return nil
}

// Blocks returns the channel of framed blocks from all connections.
func (s *Server) Blocks() <-chan []string {
	return s.blocks
}

// ActiveConnections returns the number of currently connected senders.
func (s *Server) ActiveConnections() int64 { return s.active.Load() }

// AcceptedConnections returns the number of connections accepted since Start.
func (s *Server) AcceptedConnections() uint64 { return s.accepted.Load() }

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
