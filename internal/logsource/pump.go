package logsource

import (
	"context"
	"errors"
	"time"

	"github.com/tinytelemetry/fdbtracer/internal/channel"
	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// DefaultRetryInterval is how long Pump waits before re-offering a line
// to a full queue.
const DefaultRetryInterval = 10 * time.Millisecond

// ErrSourceClosed is returned by Pump when the source ran dry, the line
// store could not signal end of stream and the session was stopped instead.
var ErrSourceClosed = errors.New("logsource: line source closed")

// PumpConfig holds tunable pump parameters.
type PumpConfig struct {
	RetryInterval time.Duration
}

// Pump moves blocks from src into ch until the source is exhausted, stop is
// raised or ctx is cancelled. A block's lines are pushed back to back and a
// full queue is retried, never dropped.
//
// When src is exhausted Pump finishes the line store and returns nil: the
// ingest loop drains it, flushes the last event and ends the session. A
// store without end of stream is drained, then stop is raised and
// ErrSourceClosed returned.
func Pump(ctx context.Context, src Streamer, ch *channel.Channel, conf ...PumpConfig) error {
	retry := DefaultRetryInterval
	if len(conf) > 0 && conf[0].RetryInterval > 0 {
		retry = conf[0].RetryInterval
	}
	defer src.Stop()

	blocks := src.Blocks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return nil
		case block, ok := <-blocks:
			if !ok {
				return sourceClosed(ctx, src, ch, retry)
			}
			for _, line := range block {
				for !ch.PushLine(line) {
					if !wait(ctx, ch, retry) {
						return nil
					}
				}
			}
		}
	}
}

func sourceClosed(ctx context.Context, src Streamer, ch *channel.Channel, retry time.Duration) error {
	ch.PushMessage(model.Info("source/"+src.Name(), "Line source %s closed.", src.Name()))
	if ch.FinishLines() {
		return nil
	}
	for ch.LinesLeft() > 0 {
		if !wait(ctx, ch, retry) {
			return nil
		}
	}
	ch.Stop()
	return ErrSourceClosed
}

// wait sleeps for d and reports false when stop or ctx ended the wait.
func wait(ctx context.Context, ch *channel.Channel, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ch.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
