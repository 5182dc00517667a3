package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/fdbtracer/internal/channel"
	"github.com/tinytelemetry/fdbtracer/internal/duckdb"
	"github.com/tinytelemetry/fdbtracer/internal/httpserver"
	"github.com/tinytelemetry/fdbtracer/internal/ingest"
	"github.com/tinytelemetry/fdbtracer/internal/logsource"
	"github.com/tinytelemetry/fdbtracer/internal/metrics"
	"github.com/tinytelemetry/fdbtracer/internal/model"
	"github.com/tinytelemetry/fdbtracer/internal/schema"
	"github.com/tinytelemetry/fdbtracer/internal/supervisor"
	"github.com/tinytelemetry/fdbtracer/internal/tcpserver"
	"github.com/tinytelemetry/fdbtracer/internal/traceparse"
	"github.com/tinytelemetry/fdbtracer/internal/tui"
)

// errNoInput is returned when neither a file, piped stdin nor TCP is available.
var errNoInput = errors.New("no trace input: pass --file, pipe fbtracemgr output into stdin, or set tcp-enabled")

// runTracer opens one tracing session and runs it to completion.
func runTracer(cfg appConfig) error {
	if cfg.TraceFile != "" {
		if _, err := os.Stat(cfg.TraceFile); err != nil {
			return fmt.Errorf("trace file %s does not exist", cfg.TraceFile)
		}
	}

	logger, cleanupLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanupLogger()
	logParameters(logger, cfg)

	sch, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("load event schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in, err := openInput(ctx, cfg)
	if err != nil {
		return err
	}
	lines, src, sourceName := in.lines, in.src, in.name

	// The ingest loop owns and closes the store once Run starts.
	store, err := duckdb.NewStore(cfg.DBPath, sch, cfg.SinkTimeout)
	if err != nil {
		if src != nil {
			src.Stop()
		}
		_ = lines.Close()
		return fmt.Errorf("failed to initialize dump database: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		MaxErrors:       cfg.MaxErrors,
		PollInterval:    cfg.PollInterval,
		MessageCapacity: cfg.MessageBuffer,
		Logger:          logger,
	})
	sess, err := sup.Open(sch, lines, sourceName)
	if err != nil {
		_ = store.Close()
		return err
	}
	if store.Created() {
		sess.Channel.PushMessage(model.Info("dump", "Dump database file %s created.", cfg.DBPath))
	} else {
		sess.Channel.PushMessage(model.Info("dump", "Dump database file %s already exists, appending.", cfg.DBPath))
	}

	parser := traceparse.NewParser(sch, traceparse.WithClientSignatures(cfg.ClientSignatures...))
	loop := ingest.NewLoop(sess.Channel, parser, store, ingest.Config{
		PollInterval:  cfg.PollInterval,
		ProgressEvery: cfg.ProgressEvery,
		SinkTimeout:   cfg.SinkTimeout,
	})

	if cfg.APIEnabled {
		m := metrics.New(sup)
		if in.tcp != nil {
			m.RegisterConnections(in.tcp)
		}
		api := httpserver.NewServer(cfg.APIAddr, sup, store, m.Handler())
		if err := api.Start(); err != nil {
			logger.WithError(err).Warn("status API not started")
		} else {
			defer api.Stop()
		}
	}

	interrupt := make(chan struct{})
	var interruptOnce sync.Once
	raise := func() { interruptOnce.Do(func() { close(interrupt) }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	finished := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(finished)
	}()
	go watchSignals(sigCh, finished, func() {
		logger.Info("interrupt received, stopping")
		raise()
	}, cfg.SinkTimeout+10*time.Second, func(reason string) {
		fmt.Fprintln(os.Stderr, reason)
		os.Exit(1)
	})

	var monitorDone chan struct{}
	if cfg.Monitor {
		monitorDone = make(chan struct{})
		go func() {
			defer close(monitorDone)
			if err := tui.Run(tui.New(sup, raise)); err != nil {
				logger.WithError(err).Error("monitor failed")
			}
		}()
	} else {
		printStartupBanner(cfg, sourceName, sess.ID.String(), store.Created())
	}

	rep, err := sup.Run(ctx, loop, src, interrupt)
	if monitorDone != nil {
		<-monitorDone
	}
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(finalStatus(rep))
	logger.WithFields(log.Fields{
		"session":   rep.SessionID,
		"outcome":   rep.Outcome.String(),
		"duration":  rep.Duration,
		"errors":    rep.Errors,
		"persisted": rep.Stats.EventsPersisted,
	}).Info("fdbtracer finished")
	return nil
}

// watchSignals raises stop on the first signal. A second signal, or a
// shutdown still running after grace, calls force. It returns once finished
// is closed.
func watchSignals(sigCh <-chan os.Signal, finished <-chan struct{}, stop func(), grace time.Duration, force func(reason string)) {
	select {
	case <-sigCh:
	case <-finished:
		return
	}
	stop()

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	select {
	case <-sigCh:
		force("\nForce shutdown.")
	case <-deadline.C:
		force("Shutdown timed out, forcing exit.")
	case <-finished:
	}
}

// input is the selected trace line input.
type input struct {
	lines channel.LineStore
	src   logsource.Streamer // nil for a finite file
	name  string
	tcp   *tcpserver.Server // nil unless the TCP listener is running
}

// openInput selects the line store: a finite file store for --file, or a
// streaming queue fed by stdin and/or TCP.
func openInput(ctx context.Context, cfg appConfig) (input, error) {
	if cfg.TraceFile != "" {
		return input{lines: channel.NewFileStore(cfg.TraceFile), name: "file:" + cfg.TraceFile}, nil
	}

	sources, err := buildStreamers(ctx, buildInputPlugins(inputConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
	}))
	if err != nil {
		return input{}, err
	}
	if len(sources) == 0 {
		return input{}, errNoInput
	}

	in := input{lines: channel.NewQueueStore(cfg.LineBuffer)}
	for _, s := range sources {
		if t, ok := s.(*logsource.TCPSource); ok {
			in.tcp = t.Server()
		}
	}
	mux := logsource.NewMultiplexer(ctx, sources, 0)
	mux.Start()
	in.src, in.name = mux, mux.Name()
	return in, nil
}
