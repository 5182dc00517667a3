package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadConfig_AddressResolution(t *testing.T) {
	resetFdbtracerEnv(t)

	tests := []struct {
		name        string
		configYAML  string
		wantHost    string
		wantTCPAddr string
		wantAPIAddr string
	}{
		{
			name: "defaults to localhost host",
			configYAML: `
tcp-port: 4100
api-port: 3100
`,
			wantHost:    "127.0.0.1",
			wantTCPAddr: "127.0.0.1:4100",
			wantAPIAddr: "127.0.0.1:3100",
		},
		{
			name: "host applies to derived tcp and api addresses",
			configYAML: `
host: 0.0.0.0
tcp-port: 4200
api-port: 3200
`,
			wantHost:    "0.0.0.0",
			wantTCPAddr: "0.0.0.0:4200",
			wantAPIAddr: "0.0.0.0:3200",
		},
		{
			name: "explicit addresses override host and ports",
			configYAML: `
host: 0.0.0.0
tcp-addr: 10.0.0.5:9999
api-addr: 10.0.0.5:8888
`,
			wantHost:    "0.0.0.0",
			wantTCPAddr: "10.0.0.5:9999",
			wantAPIAddr: "10.0.0.5:8888",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML), nil)
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Fatalf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.TCPAddr != tt.wantTCPAddr {
				t.Fatalf("TCPAddr = %q, want %q", cfg.TCPAddr, tt.wantTCPAddr)
			}
			if cfg.APIAddr != tt.wantAPIAddr {
				t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, tt.wantAPIAddr)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetFdbtracerEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, "\n"), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxErrors != defaultMaxErrors {
		t.Fatalf("MaxErrors = %d, want %d", cfg.MaxErrors, defaultMaxErrors)
	}
	if cfg.TCPEnabled || cfg.APIEnabled || cfg.Monitor {
		t.Fatalf("expected tcp, api and monitor off by default, got %+v", cfg)
	}
	if cfg.LineBuffer != defaultLineBuffer {
		t.Fatalf("LineBuffer = %d, want %d", cfg.LineBuffer, defaultLineBuffer)
	}
	if cfg.PollInterval != defaultPollInterval {
		t.Fatalf("PollInterval = %v, want %v", cfg.PollInterval, defaultPollInterval)
	}
	if len(cfg.ClientSignatures) == 0 {
		t.Fatal("expected default client signatures")
	}
	if !strings.HasSuffix(cfg.DBPath, filepath.Join("fdbtracer", "fdbtracer.duckdb")) {
		t.Fatalf("DBPath = %q, want default dump database", cfg.DBPath)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	resetFdbtracerEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		errSubstring string
	}{
		{name: "tcp port out of range", configYAML: "tcp-port: 70000\n", errSubstring: "invalid tcp-port"},
		{name: "api port zero", configYAML: "api-port: 0\n", errSubstring: "invalid api-port"},
		{name: "negative max errors", configYAML: "max-errors: -1\n", errSubstring: "invalid max-errors"},
		{name: "unknown log level", configYAML: "log-level: chatty\n", errSubstring: "invalid log-level"},
		{name: "empty line buffer", configYAML: "line-buffer: 0\n", errSubstring: "invalid line-buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeTempConfig(t, tt.configYAML), nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errSubstring) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
			}
		})
	}
}

func TestLoadConfig_ZeroMaxErrorsAllowed(t *testing.T) {
	resetFdbtracerEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, "max-errors: 0\n"), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxErrors != 0 {
		t.Fatalf("MaxErrors = %d, want 0", cfg.MaxErrors)
	}
}

func TestLoadConfig_TestModeForcesDebug(t *testing.T) {
	resetFdbtracerEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, "test-mode: true\nlog-level: warn\n"), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	resetFdbtracerEnv(t)

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	cfg, err := loadConfig(writeTempConfig(t, "db-path: ~/traces/dump.duckdb\n"), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	want := filepath.Join(home, "traces", "dump.duckdb")
	if cfg.DBPath != want {
		t.Fatalf("DBPath = %q, want %q", cfg.DBPath, want)
	}
}

func TestLoadConfig_DateSuffix(t *testing.T) {
	resetFdbtracerEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, "db-path: /tmp/dump.duckdb\ndb-name-date-suffix: true\n"), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	want := "/tmp/dump-" + time.Now().Format(dateSuffixLayout) + ".duckdb"
	if cfg.DBPath != want {
		t.Fatalf("DBPath = %q, want %q", cfg.DBPath, want)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	resetFdbtracerEnv(t)
	t.Setenv("FDBTRACER_MAX_ERRORS", "7")

	cfg, err := loadConfig(writeTempConfig(t, "max-errors: 3\n"), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxErrors != 7 {
		t.Fatalf("MaxErrors = %d, want 7", cfg.MaxErrors)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	resetFdbtracerEnv(t)

	flags := pflag.NewFlagSet("fdbtracer", pflag.ContinueOnError)
	flags.StringP("database", "d", "", "")
	flags.Bool("monitor", false, "")
	if err := flags.Parse([]string{"-d", "/tmp/from-flag.duckdb", "--monitor"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(writeTempConfig(t, "db-path: /tmp/from-file.duckdb\n"), flags)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.DBPath != "/tmp/from-flag.duckdb" {
		t.Fatalf("DBPath = %q, want flag value", cfg.DBPath)
	}
	if !cfg.Monitor {
		t.Fatal("expected --monitor to enable the monitor")
	}
}

func TestLoadConfig_UnsetFlagKeepsFileValue(t *testing.T) {
	resetFdbtracerEnv(t)

	flags := pflag.NewFlagSet("fdbtracer", pflag.ContinueOnError)
	flags.StringP("database", "d", "", "")
	if err := flags.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(writeTempConfig(t, "db-path: /tmp/from-file.duckdb\n"), flags)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.DBPath != "/tmp/from-file.duckdb" {
		t.Fatalf("DBPath = %q, want file value", cfg.DBPath)
	}
}

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	resetFdbtracerEnv(t)

	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yml"), nil)
	if err != nil {
		t.Fatalf("a missing config file should fall back to defaults, got %v", err)
	}
}

func TestWithDateSuffix(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{in: "/data/trace.duckdb", want: "/data/trace-2024-03-09.duckdb"},
		{in: "/data/trace", want: "/data/trace-2024-03-09"},
		{in: "dump.db", want: "dump-2024-03-09.db"},
	}
	for _, tt := range tests {
		if got := withDateSuffix(tt.in, day); got != tt.want {
			t.Fatalf("withDateSuffix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func resetFdbtracerEnv(t *testing.T) {
	t.Helper()

	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix+"_") {
			continue
		}
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}
