package logsource

import (
	"context"
	"strings"
	"sync"
)

// DefaultMuxBuffer is the default output buffer, in blocks.
const DefaultMuxBuffer = 1024

// Multiplexer merges several streamers into one. Blocks are forwarded
// whole, so events from different sources alternate but never mix.
// The output closes once every source is exhausted.
type Multiplexer struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sources []Streamer
	out     chan []string

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	running   sync.WaitGroup
}

// NewMultiplexer creates a multiplexer over sources. Call Start to begin forwarding.
func NewMultiplexer(parent context.Context, sources []Streamer, buffer int) *Multiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &Multiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		out:     make(chan []string, buffer),
	}
}

// Start launches one forwarder per source.
func (m *Multiplexer) Start() {
	m.startOnce.Do(func() {
		m.running.Add(len(m.sources))
		for _, src := range m.sources {
			go m.forward(src.Blocks())
		}
		go func() {
			m.running.Wait()
			m.closeOut()
		}()
	})
}

// Stop stops every source and closes the output.
func (m *Multiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.running.Wait()
		m.closeOut()
	})
}

// Name joins the source names, e.g. "stdin+tcp".
func (m *Multiplexer) Name() string {
	names := make([]string, len(m.sources))
	for i, src := range m.sources {
		names[i] = src.Name()
	}
	if len(names) == 0 {
		return "mux"
	}
	return strings.Join(names, "+")
}

func (m *Multiplexer) Blocks() <-chan []string { return m.out }

func (m *Multiplexer) forward(in <-chan []string) {
	defer m.running.Done()
	for {
		var block []string
		select {
		case <-m.ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			block = b
		}
		select {
		case m.out <- block:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Multiplexer) closeOut() {
	m.closeOnce.Do(func() { close(m.out) })
}
