// Package frame groups one sender's trace lines into whole event blocks.
// Several senders can then share a single line lane: blocks are handed on
// one at a time, so a descriptor line never lands in another sender's event.
package frame

// DefaultMaxLines caps a block. A runaway event is cut here and passed on
// in pieces rather than held in memory.
const DefaultMaxLines = 100_000

// Boundary reports whether line opens a new block, typically an event header.
type Boundary func(line string) bool

// Framer accumulates lines until the next boundary. It is not safe for
// concurrent use; each sender owns one.
type Framer struct {
	boundary Boundary
	maxLines int
	block    []string
}

// New creates a framer. With a nil boundary every line is its own block.
func New(boundary Boundary, maxLines int) *Framer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Framer{boundary: boundary, maxLines: maxLines}
}

// Add appends line and returns the completed block when line opens a new
// one, or nil while the current block is still growing.
func (f *Framer) Add(line string) []string {
	if f.boundary == nil {
		return []string{line}
	}
	var done []string
	if len(f.block) > 0 && (len(f.block) >= f.maxLines || f.boundary(line)) {
		done = f.block
		f.block = nil
	}
	f.block = append(f.block, line)
	return done
}

// Flush returns the block in progress, or nil, and resets the framer.
// Senders call it when their stream ends.
func (f *Framer) Flush() []string {
	done := f.block
	f.block = nil
	return done
}

// Pending is the number of lines held in the current block.
func (f *Framer) Pending() int { return len(f.block) }
