package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tinytelemetry/fdbtracer/internal/channel"
	"github.com/tinytelemetry/fdbtracer/internal/model"
)

const (
	// DefaultProgressEvery is the number of persisted records between
	// progress diagnostics.
	DefaultProgressEvery = 10_000

	// DefaultPollInterval is how long the loop idles on an empty lane.
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultSinkTimeout bounds one insert transaction.
	DefaultSinkTimeout = 30 * time.Second
)

// State is the lifecycle position of the loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateEndOfStream
	StateStopRequested
	StateFatal
	StateDisconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateEndOfStream:
		return "end-of-stream"
	case StateStopRequested:
		return "stop-requested"
	case StateFatal:
		return "fatal"
	case StateDisconnecting:
		return "disconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "idle"
	}
}

// Config holds tunable loop parameters.
type Config struct {
	PollInterval  time.Duration
	ProgressEvery int
	SinkTimeout   time.Duration
}

// Stats is a point-in-time snapshot of loop counters.
type Stats struct {
	LinesProcessed  uint64
	EventsPersisted uint64
	PersistFailures uint64
	LinesLeft       int
	State           State
}

// Loop pulls lines from the channel, drives the parser and persists every
// sealed event. It owns the parser and the sink; nothing else touches them.
type Loop struct {
	ch     *channel.Channel
	parser EventParser
	sink   RecordSink
	cfg    Config

	linesProcessed  atomic.Uint64
	eventsPersisted atomic.Uint64
	persistFailures atomic.Uint64
	state           atomic.Int32
	exit            atomic.Int32
}

// NewLoop wires a loop. The sink is closed when Run returns.
func NewLoop(ch *channel.Channel, parser EventParser, sink RecordSink, conf ...Config) *Loop {
	cfg := Config{
		PollInterval:  DefaultPollInterval,
		ProgressEvery: DefaultProgressEvery,
		SinkTimeout:   DefaultSinkTimeout,
	}
	if len(conf) > 0 {
		if conf[0].PollInterval > 0 {
			cfg.PollInterval = conf[0].PollInterval
		}
		if conf[0].ProgressEvery > 0 {
			cfg.ProgressEvery = conf[0].ProgressEvery
		}
		if conf[0].SinkTimeout > 0 {
			cfg.SinkTimeout = conf[0].SinkTimeout
		}
	}
	return &Loop{ch: ch, parser: parser, sink: sink, cfg: cfg}
}

// Stats returns current counters. Safe for concurrent use.
func (l *Loop) Stats() Stats {
	return Stats{
		LinesProcessed:  l.linesProcessed.Load(),
		EventsPersisted: l.eventsPersisted.Load(),
		PersistFailures: l.persistFailures.Load(),
		LinesLeft:       l.ch.LinesLeft(),
		State:           l.State(),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// ExitState returns why the loop left the running state: StateEndOfStream,
// StateStopRequested or StateFatal. It is StateIdle while running.
func (l *Loop) ExitState() State { return State(l.exit.Load()) }

// Run processes lines until end of stream, a stop request, ctx cancellation
// or an unrecoverable failure. Failures are reported as diagnostics, so Run
// always returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateRunning)
	if err := l.sink.Ping(ctx); err != nil {
		l.report(model.Error(Source, fmt.Errorf("connect dump database: %w", err)))
	} else {
		l.report(model.Info(Source, "Connected to dump database."))
	}

	for {
		next := l.step(ctx)
		if next == StateRunning && (l.ch.Stopped() || ctx.Err() != nil) {
			next = StateStopRequested
		}
		if next != StateRunning {
			l.setState(next)
			l.exit.Store(int32(next))
			break
		}
	}

	l.disconnect()
	return nil
}

// step runs one iteration and returns the state the loop should move to.
func (l *Loop) step(ctx context.Context) (next State) {
	defer func() {
		if r := recover(); r != nil {
			l.report(model.Fatal(Source, fmt.Errorf("ingest loop panic: %v", r)))
			next = StateFatal
		}
	}()

	r := l.ch.PopLine()
	switch r.Status {
	case channel.Value:
		l.parser.Parse(r.Line)
		l.linesProcessed.Add(1)
		if ev := l.parser.PopEvent(); ev != nil {
			l.persist(ctx, ev)
		}
	case channel.Empty:
		l.idle(ctx)
	case channel.EndOfStream:
		if l.parser.Flush() {
			if ev := l.parser.PopEvent(); ev != nil {
				l.persist(ctx, ev)
			}
		}
		l.report(model.Info(Source, "All data has been processed: %s events from %s lines.",
			humanize.Comma(int64(l.eventsPersisted.Load())), humanize.Comma(int64(l.linesProcessed.Load()))))
		l.ch.Stop()
		return StateEndOfStream
	case channel.Failed:
		l.report(model.Error(Source, r.Err))
		l.idle(ctx)
	}
	return StateRunning
}

func (l *Loop) idle(ctx context.Context) {
	t := time.NewTimer(l.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.ch.Done():
	case <-ctx.Done():
	}
}

func (l *Loop) persist(ctx context.Context, ev *model.EventRecord) {
	if err := l.insert(ctx, ev); err != nil {
		l.persistFailures.Add(1)
		l.report(model.Error(Source, fmt.Errorf("persist %s event at %s: %w",
			ev.String(model.FieldEventName), ev.Time(model.FieldDateTime).Format(time.RFC3339Nano), err)))
		return
	}
	n := l.eventsPersisted.Add(1)
	if n%uint64(l.cfg.ProgressEvery) == 0 {
		l.report(model.Info(Source, "Dumped %s events, %s lines processed, %s lines left.",
			humanize.Comma(int64(n)), humanize.Comma(int64(l.linesProcessed.Load())), linesLeft(l.ch.LinesLeft())))
	}
}

// insert runs one record through begin/insert/commit, rolling back on any
// failure.
func (l *Loop) insert(ctx context.Context, ev *model.EventRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.SinkTimeout)
	defer cancel()

	tx, err := l.sink.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := tx.Insert(ctx, ev); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *Loop) disconnect() {
	l.setState(StateDisconnecting)
	if err := l.sink.Close(); err != nil {
		l.report(model.Error(Source, fmt.Errorf("disconnect dump database: %w", err)))
	} else {
		l.report(model.Info(Source, "Disconnected from dump database."))
	}
	l.setState(StateTerminated)
}

func (l *Loop) report(d model.Diagnostic) {
	if !l.ch.PushMessage(d) {
		log.Printf("ingest: diagnostic lane full, dropped %s: %s", d.Kind, d.Text)
	}
}

func linesLeft(n int) string {
	if n == channel.Unknown {
		return "unknown"
	}
	return humanize.Comma(int64(n))
}
