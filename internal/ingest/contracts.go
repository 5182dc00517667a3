package ingest

import (
	"context"

	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// Source is the diagnostic tag used by the ingest loop.
const Source = "ingest"

// RecordSink persists event records one unit of work at a time.
// Column names are the schema fields, in order.
type RecordSink interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (SinkTx, error)
	Close() error
}

// SinkTx is one atomic unit of work holding a single record.
type SinkTx interface {
	Insert(ctx context.Context, rec *model.EventRecord) error
	Commit() error
	Rollback() error
}

// EventParser is the line-driven state machine feeding the loop.
type EventParser interface {
	Parse(line string)
	PopEvent() *model.EventRecord
	Flush() bool
}
