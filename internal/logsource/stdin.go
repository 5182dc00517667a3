package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/tinytelemetry/fdbtracer/internal/frame"
)

const (
	// DefaultStdinBuffer is the default channel buffer size, in blocks.
	DefaultStdinBuffer = 1024

	// DefaultStdinMaxLineSize is the default maximum size (in bytes) of a single stdin line.
	DefaultStdinMaxLineSize = 4 * 1024 * 1024
)

// StdinConfig holds tunable parameters for the stdin source.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int

	// Boundary splits stdin into blocks. Nil forwards every line as its own block.
	Boundary      frame.Boundary
	MaxBlockLines int
}

// StdinSource reads piped trace output, usually from fbtracemgr.
type StdinSource struct {
	blocks chan []string
	cancel context.CancelFunc
}

// NewStdinSource starts reading stdin in the background.
func NewStdinSource(ctx context.Context, conf ...StdinConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	var c StdinConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultStdinBuffer
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultStdinMaxLineSize
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		blocks: make(chan []string, c.BufferSize),
		cancel: cancel,
	}
	go s.run(ctx, scanLines(ctx, r, c.MaxLineSize), frame.New(c.Boundary, c.MaxBlockLines))
	return s
}

// scanLines does the blocking read on its own goroutine so that
// cancellation is noticed even while stdin is idle.
func scanLines(ctx context.Context, r io.Reader, maxLineSize int) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		switch err := scanner.Err(); {
		case errors.Is(err, bufio.ErrTooLong):
			log.Printf("logsource: stdin line exceeded max size (%d bytes), stopping stdin source", maxLineSize)
		case err != nil:
			log.Printf("logsource: stdin scanner error: %v", err)
		}
	}()
	return out
}

func (s *StdinSource) run(ctx context.Context, lines <-chan string, fr *frame.Framer) {
	defer close(s.blocks)

	send := func(block []string) bool {
		select {
		case s.blocks <- block:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				// End of input completes the last event.
				if block := fr.Flush(); block != nil {
					send(block)
				}
				return
			}
			if block := fr.Add(line); block != nil && !send(block) {
				return
			}
		}
	}
}

func (s *StdinSource) Blocks() <-chan []string { return s.blocks }
func (s *StdinSource) Stop()                   { s.cancel() }
func (s *StdinSource) Name() string            { return "stdin" }
