package supervisor

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/fdbtracer/internal/ingest"
	"github.com/tinytelemetry/fdbtracer/internal/logsource"
	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// Outcome says why a session ended.
type Outcome int

const (
	// OutcomeExhausted means the source ran dry and every line was processed.
	OutcomeExhausted Outcome = iota
	// OutcomeBreakerTripped means too many consecutive errors were reported.
	OutcomeBreakerTripped
	// OutcomeInterrupted means the operator raised stop.
	OutcomeInterrupted
	// OutcomeFailed means the ingest loop hit an unrecoverable failure.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExhausted:
		return "All data has been processed"
	case OutcomeBreakerTripped:
		return "Maximum errors reached"
	case OutcomeInterrupted:
		return "Interrupted"
	default:
		return "Ingest failed"
	}
}

// Report summarizes a finished session.
type Report struct {
	SessionID string
	Outcome   Outcome
	Stats     ingest.Stats
	Errors    int // diagnostics of kind error seen during the session
	Duration  time.Duration
}

// Run executes the open session: the ingest loop and, when src is not nil,
// the source pump run under an errgroup while the calling goroutine drains
// diagnostics. A value on interrupt, or ctx cancellation, raises stop.
// Run returns once every goroutine has exited and the diagnostic lane is empty.
func (s *Supervisor) Run(ctx context.Context, loop *ingest.Loop, src logsource.Streamer, interrupt <-chan struct{}) (Report, error) {
	sess := s.Session()
	if sess == nil {
		return Report{}, ErrNoSession
	}
	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()

	ch := sess.Channel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer ch.Stop()
		return loop.Run(gctx)
	})
	if src != nil {
		g.Go(func() error {
			return logsource.Pump(gctx, src, ch)
		})
	}

	var (
		errorsSeen int
		tripped    bool
	)
	handle := func(d model.Diagnostic) {
		s.logDiagnostic(d)
		if d.IsError() {
			errorsSeen++
		}
		if !tripped && s.breaker.Record(d) {
			tripped = true
			s.log.WithField("max_errors", s.breaker.Max()).Error("Maximum errors reached, stopping.")
			ch.Stop()
		}
	}

	for !ch.Stopped() {
		for {
			d, ok := ch.PopMessage()
			if !ok {
				break
			}
			handle(d)
		}
		if ch.Stopped() {
			break
		}
		t := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-t.C:
		case <-ch.Done():
		case <-interrupt:
			s.log.Debug("stop requested by operator")
			ch.Stop()
		case <-ctx.Done():
			ch.Stop()
		}
		t.Stop()
	}

	err := g.Wait()
	exhausted := errors.Is(err, logsource.ErrSourceClosed)
	if exhausted {
		err = nil
	}

	// Diagnostics emitted during shutdown, such as the disconnect notice.
	for {
		d, ok := ch.PopMessage()
		if !ok {
			break
		}
		handle(d)
	}
	if cerr := ch.Close(); cerr != nil {
		s.log.WithError(cerr).Warn("close line store")
	}

	stats := loop.Stats()
	rep := Report{
		SessionID: sess.ID.String(),
		Stats:     stats,
		Errors:    errorsSeen,
		Duration:  time.Since(sess.Started),
	}
	switch {
	case tripped:
		rep.Outcome = OutcomeBreakerTripped
	case loop.ExitState() == ingest.StateFatal:
		rep.Outcome = OutcomeFailed
	case loop.ExitState() == ingest.StateEndOfStream || exhausted:
		rep.Outcome = OutcomeExhausted
	default:
		rep.Outcome = OutcomeInterrupted
	}
	s.log.WithFields(log.Fields{
		"outcome":   rep.Outcome.String(),
		"lines":     stats.LinesProcessed,
		"persisted": stats.EventsPersisted,
		"failed":    stats.PersistFailures,
	}).Info("session finished")
	return rep, err
}

func (s *Supervisor) logDiagnostic(d model.Diagnostic) {
	entry := s.log.WithField("source", d.Source)
	if d.IsError() {
		entry.WithField("retryable", d.Retryable).Errorf("Got error: %s", d.Text)
		return
	}
	entry.Debug(d.Text)
}
