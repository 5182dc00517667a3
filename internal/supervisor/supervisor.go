// Package supervisor owns the trace session: it opens the shared channel,
// runs the source pump and the ingest loop, drains diagnostics into the
// operator log and trips the circuit breaker on sustained failure.
package supervisor

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/fdbtracer/internal/channel"
	"github.com/tinytelemetry/fdbtracer/internal/ingest"
	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// DefaultPollInterval is how long the drain loop idles on an empty lane.
const DefaultPollInterval = 10 * time.Millisecond

// ErrSessionOpen is returned by Open when the supervisor already owns a session.
var ErrSessionOpen = errors.New("supervisor: session already open")

// ErrNoSession is returned by Run before Open.
var ErrNoSession = errors.New("supervisor: no open session")

// Config holds supervisor parameters.
type Config struct {
	MaxErrors       int
	PollInterval    time.Duration
	MessageCapacity int
	Logger          *log.Logger
}

// Session is the state shared by one tracing run.
type Session struct {
	ID      uuid.UUID
	Channel *channel.Channel
	Schema  *model.Schema
	Source  string // "file:<path>", "stdin", "tcp", ...
	Started time.Time
}

// Supervisor builds exactly one Session and runs it.
type Supervisor struct {
	cfg     Config
	log     *log.Entry
	breaker *Breaker

	mu      sync.RWMutex
	session *Session
	loop    *ingest.Loop
}

// New creates a supervisor. MaxErrors is taken as given when a Config is
// passed; other zero values fall back to defaults.
func New(conf ...Config) *Supervisor {
	cfg := Config{
		MaxErrors:    DefaultMaxErrors,
		PollInterval: DefaultPollInterval,
	}
	if len(conf) > 0 {
		c := conf[0]
		if c.MaxErrors >= 0 {
			cfg.MaxErrors = c.MaxErrors
		}
		if c.PollInterval > 0 {
			cfg.PollInterval = c.PollInterval
		}
		cfg.MessageCapacity = c.MessageCapacity
		cfg.Logger = c.Logger
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Supervisor{
		cfg:     cfg,
		log:     log.NewEntry(cfg.Logger),
		breaker: NewBreaker(cfg.MaxErrors),
	}
}

// Open creates the session over lines. It succeeds once per supervisor.
func (s *Supervisor) Open(schema *model.Schema, lines channel.LineStore, source string) (*Session, error) {
	if schema == nil {
		return nil, model.ErrEmptySchema
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return nil, ErrSessionOpen
	}

	sess := &Session{
		ID:      uuid.New(),
		Channel: channel.New(lines, channel.Config{MessageCapacity: s.cfg.MessageCapacity}),
		Schema:  schema,
		Source:  source,
		Started: time.Now(),
	}
	s.session = sess
	s.log = s.log.WithField("session", sess.ID.String())
	s.log.WithFields(log.Fields{"source": source, "fields": schema.Len()}).Debug("session opened")
	return sess, nil
}

// Session returns the open session, or nil.
func (s *Supervisor) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Breaker returns the supervisor's circuit breaker.
func (s *Supervisor) Breaker() *Breaker { return s.breaker }

// Status is a point-in-time view of the session for status surfaces.
type Status struct {
	SessionID string
	Source    string
	Started   time.Time
	Uptime    time.Duration
	Stats     ingest.Stats
	Errors    int
	MaxErrors int
	Tripped   bool
	Stopped   bool
}

// Status returns the current session status. Stats are zero before Run.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	sess, loop := s.session, s.loop
	s.mu.RUnlock()

	st := Status{
		Errors:    s.breaker.Count(),
		MaxErrors: s.breaker.Max(),
		Tripped:   s.breaker.Tripped(),
	}
	if sess != nil {
		st.SessionID = sess.ID.String()
		st.Source = sess.Source
		st.Started = sess.Started
		st.Uptime = time.Since(sess.Started)
		st.Stopped = sess.Channel.Stopped()
	}
	if loop != nil {
		st.Stats = loop.Stats()
	}
	return st
}
