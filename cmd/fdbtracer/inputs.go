package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/fdbtracer/internal/logsource"
	"github.com/tinytelemetry/fdbtracer/internal/tcpserver"
	"github.com/tinytelemetry/fdbtracer/internal/traceparse"
)

// inputPlugin is a small plugin primitive for wiring streaming trace inputs.
type inputPlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (logsource.Streamer, error)
}

// inputConfig defines runtime input selection.
type inputConfig struct {
	TCPEnabled bool
	TCPAddr    string
}

func buildInputPlugins(cfg inputConfig) []inputPlugin {
	return []inputPlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled},
		stdinInputPlugin{},
	}
}

// buildStreamers starts every enabled plugin. Any start failure is fatal,
// and already started sources are stopped.
func buildStreamers(ctx context.Context, plugins []inputPlugin) ([]logsource.Streamer, error) {
	var sources []logsource.Streamer
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			for _, s := range sources {
				s.Stop()
			}
			return nil, fmt.Errorf("input %s: %w", plugin.Name(), err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

// Build starts the listener. Each connection is framed at event headers so
// that concurrent senders keep their events whole.
func (p tcpInputPlugin) Build(_ context.Context) (logsource.Streamer, error) {
	server := tcpserver.NewServer(p.addr, tcpserver.ServerConfig{Boundary: traceparse.IsEventHeader})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return logsource.NewTCPSource(server), nil
}

type stdinInputPlugin struct{}

func (p stdinInputPlugin) Name() string { return "stdin" }

// Enabled reports whether stdin is piped rather than a terminal.
func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (logsource.Streamer, error) {
	return logsource.NewStdinSource(ctx, logsource.StdinConfig{Boundary: traceparse.IsEventHeader}), nil
}
