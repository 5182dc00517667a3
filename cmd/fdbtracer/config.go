package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/fdbtracer/internal/channel"
	"github.com/tinytelemetry/fdbtracer/internal/ingest"
	"github.com/tinytelemetry/fdbtracer/internal/supervisor"
	"github.com/tinytelemetry/fdbtracer/internal/traceparse"
)

const (
	envPrefix           = "FDBTRACER"
	defaultBindHost     = "127.0.0.1"
	defaultTCPPort      = 4010
	defaultAPIPort      = 3010
	defaultLogLevel     = "info"
	defaultLineBuffer   = channel.DefaultQueueCapacity
	defaultMessageBuf   = channel.DefaultMessageCapacity
	defaultPollInterval = ingest.DefaultPollInterval
	defaultProgress     = ingest.DefaultProgressEvery
	defaultSinkTimeout  = ingest.DefaultSinkTimeout
	defaultMaxErrors    = supervisor.DefaultMaxErrors
	dateSuffixLayout    = "2006-01-02"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	TestMode         bool          `mapstructure:"test-mode"`
	LogPath          string        `mapstructure:"log-path"`
	LogLevel         string        `mapstructure:"log-level"`
	ConsoleDebug     bool          `mapstructure:"console-debug"`
	MaxErrors        int           `mapstructure:"max-errors"`
	DBPath           string        `mapstructure:"db-path"`
	DBNameDateSuffix bool          `mapstructure:"db-name-date-suffix"`
	SchemaPath       string        `mapstructure:"schema-path"`
	LineBuffer       int           `mapstructure:"line-buffer"`
	MessageBuffer    int           `mapstructure:"message-buffer"`
	PollInterval     time.Duration `mapstructure:"poll-interval"`
	ProgressEvery    int           `mapstructure:"progress-every"`
	SinkTimeout      time.Duration `mapstructure:"sink-timeout"`
	ClientSignatures []string      `mapstructure:"client-signatures"`
	Host             string        `mapstructure:"host"`
	TCPEnabled       bool          `mapstructure:"tcp-enabled"`
	TCPPort          int           `mapstructure:"tcp-port"`
	TCPAddr          string        `mapstructure:"tcp-addr"`
	APIEnabled       bool          `mapstructure:"api-enabled"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`
	Monitor          bool          `mapstructure:"monitor"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
	TraceFile        string        `mapstructure:"-"` // --file only
}

// loadConfig resolves configuration from defaults, the config file, the
// FDBTRACER_* environment and any flags bound from the command line, in
// increasing order of precedence.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("test-mode", false)
	v.SetDefault("log-path", filepath.Join(home, ".local", "state", "fdbtracer", "fdbtracer.log"))
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("console-debug", false)
	v.SetDefault("max-errors", defaultMaxErrors)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "fdbtracer", "fdbtracer.duckdb"))
	v.SetDefault("db-name-date-suffix", false)
	v.SetDefault("schema-path", "")
	v.SetDefault("line-buffer", defaultLineBuffer)
	v.SetDefault("message-buffer", defaultMessageBuf)
	v.SetDefault("poll-interval", defaultPollInterval)
	v.SetDefault("progress-every", defaultProgress)
	v.SetDefault("sink-timeout", defaultSinkTimeout)
	v.SetDefault("client-signatures", traceparse.DefaultClientSignatures)
	v.SetDefault("host", defaultBindHost)
	v.SetDefault("tcp-enabled", false)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("monitor", false)

	if flags != nil {
		for key, flag := range map[string]string{"db-path": "database", "monitor": "monitor"} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "fdbtracer", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogPath = expandHome(cfg.LogPath, home)
	cfg.SchemaPath = expandHome(cfg.SchemaPath, home)
	if cfg.DBNameDateSuffix {
		cfg.DBPath = withDateSuffix(cfg.DBPath, time.Now())
	}
	if cfg.TestMode {
		cfg.LogLevel = logrus.DebugLevel.String()
	}

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func (cfg appConfig) validate() error {
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.MaxErrors < 0 {
		return fmt.Errorf("invalid max-errors: %d", cfg.MaxErrors)
	}
	if cfg.LineBuffer <= 0 {
		return fmt.Errorf("invalid line-buffer: %d", cfg.LineBuffer)
	}
	if cfg.ProgressEvery <= 0 {
		return fmt.Errorf("invalid progress-every: %d", cfg.ProgressEvery)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	if cfg.DBPath == "" {
		return errors.New("db-path must not be empty")
	}
	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// withDateSuffix turns /x/trace.duckdb into /x/trace-2024-01-02.duckdb.
func withDateSuffix(path string, now time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + now.Format(dateSuffixLayout) + ext
}
