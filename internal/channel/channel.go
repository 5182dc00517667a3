// Package channel is the conduit between the trace source, the ingest loop
// and the supervisor: a line lane, a diagnostic lane and a stop flag.
//
// Every operation is non-blocking. Callers interleave "is there work",
// "has stop been raised" and "how much is queued" from a single goroutine
// and self-schedule with short sleeps.
package channel

import (
	"sync"

	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// DefaultMessageCapacity bounds the diagnostic lane.
const DefaultMessageCapacity = 4096

// Config holds tunable lane sizes.
type Config struct {
	MessageCapacity int
}

// Channel is shared by pointer between all pipeline components.
type Channel struct {
	lines    LineStore
	messages chan model.Diagnostic

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a channel over the given line store.
func New(lines LineStore, conf ...Config) *Channel {
	capacity := DefaultMessageCapacity
	if len(conf) > 0 && conf[0].MessageCapacity > 0 {
		capacity = conf[0].MessageCapacity
	}
	return &Channel{
		lines:    lines,
		messages: make(chan model.Diagnostic, capacity),
		stopCh:   make(chan struct{}),
	}
}

// PushLine offers a line without blocking. false means retry later.
func (c *Channel) PushLine(line string) bool {
	return c.lines.Push(line)
}

// PopLine takes the next line without blocking.
func (c *Channel) PopLine() Result {
	return c.lines.Pop()
}

// Finisher is implemented by line stores that can be told their source is
// exhausted, after which they drain and report EndOfStream.
type Finisher interface {
	Finish()
}

// FinishLines tells the line store that no more lines will be pushed. It
// reports false when the store cannot signal end of stream.
func (c *Channel) FinishLines() bool {
	f, ok := c.lines.(Finisher)
	if ok {
		f.Finish()
	}
	return ok
}

// LinesLeft is the best-effort depth of the line lane, or Unknown.
func (c *Channel) LinesLeft() int {
	return c.lines.Len()
}

// PushMessage offers a diagnostic without blocking. When the lane is full
// the message is dropped and false is returned.
func (c *Channel) PushMessage(d model.Diagnostic) bool {
	select {
	case c.messages <- d:
		return true
	default:
		return false
	}
}

// PopMessage takes the next diagnostic without blocking.
func (c *Channel) PopMessage() (model.Diagnostic, bool) {
	select {
	case d := <-c.messages:
		return d, true
	default:
		return model.Diagnostic{}, false
	}
}

// Stop raises the stop flag. It is idempotent and visible to every reader.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Stopped polls the stop flag.
func (c *Channel) Stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Done is closed once Stop has been called.
func (c *Channel) Done() <-chan struct{} { return c.stopCh }

// Close releases the line store.
func (c *Channel) Close() error {
	return c.lines.Close()
}
