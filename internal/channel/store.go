package channel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Unknown is returned by LinesLeft when the store cannot report its depth.
const Unknown = -1

// DefaultQueueCapacity bounds the streaming line queue.
const DefaultQueueCapacity = 50_000

// Status tags the outcome of a non-blocking read.
type Status int

const (
	Value       Status = iota // Line holds the next line
	Empty                     // nothing available yet; poll again
	EndOfStream               // finite source exhausted
	Failed                    // Err holds the read failure
)

func (s Status) String() string {
	switch s {
	case Value:
		return "value"
	case Empty:
		return "empty"
	case EndOfStream:
		return "end-of-stream"
	default:
		return "failed"
	}
}

// Result is the tagged outcome of PopLine.
type Result struct {
	Status Status
	Line   string
	Err    error
}

// LineStore backs the line lane. Implementations never block.
type LineStore interface {
	Push(line string) bool
	Pop() Result
	Len() int
	Close() error
}

// QueueStore is the streaming variant: a bounded FIFO fed by a live source.
// It reports EndOfStream only after Finish, once every queued line is taken.
type QueueStore struct {
	ch       chan string
	finished atomic.Bool
}

// NewQueueStore creates a streaming store holding at most capacity lines.
func NewQueueStore(capacity int) *QueueStore {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &QueueStore{ch: make(chan string, capacity)}
}

func (q *QueueStore) Push(line string) bool {
	select {
	case q.ch <- line:
		return true
	default:
		return false
	}
}

func (q *QueueStore) Pop() Result {
	select {
	case line := <-q.ch:
		return Result{Status: Value, Line: line}
	default:
	}
	if !q.finished.Load() {
		return Result{Status: Empty}
	}
	// No Push follows Finish, so a second look is conclusive.
	select {
	case line := <-q.ch:
		return Result{Status: Value, Line: line}
	default:
		return Result{Status: EndOfStream}
	}
}

// Finish marks the feeding source as exhausted. Push must not be called
// afterwards.
func (q *QueueStore) Finish() { q.finished.Store(true) }

func (q *QueueStore) Len() int     { return len(q.ch) }
func (q *QueueStore) Close() error { return nil }

// FileStore is the finite variant: lines are read on demand from a saved
// trace log and exhaustion is reported as EndOfStream.
type FileStore struct {
	path string

	mu     sync.Mutex
	file   *os.File
	reader *bufio.Reader
	done   bool
}

// NewFileStore creates a finite store over path. The file is opened on the
// first Pop so that open failures surface as Failed results.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file being read.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Push(string) bool { return false }

func (f *FileStore) Pop() Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return Result{Status: EndOfStream}
	}
	if f.reader == nil {
		file, err := os.Open(f.path)
		if err != nil {
			return Result{Status: Failed, Err: fmt.Errorf("open trace file: %w", err)}
		}
		f.file = file
		f.reader = bufio.NewReaderSize(file, 64*1024)
	}

	line, err := f.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Result{Status: Failed, Err: fmt.Errorf("read trace file: %w", err)}
	}
	if line == "" && errors.Is(err, io.EOF) {
		f.done = true
		return Result{Status: EndOfStream}
	}
	return Result{Status: Value, Line: strings.TrimRight(line, "\r\n")}
}

func (f *FileStore) Len() int { return Unknown }

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = true
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
