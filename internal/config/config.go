// Package config handles loading and validating the narrator configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by the narrator binaries.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Synth      SynthConfig      `mapstructure:"synth"`
	Transports TransportsConfig `mapstructure:"transports"`
	Bus        BusConfig        `mapstructure:"bus"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Client     ClientConfig     `mapstructure:"client"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the API daemon settings.
type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	HealthPort int    `mapstructure:"health_port"`
	MaxChars   int    `mapstructure:"max_chars"`
	VoicesPath string `mapstructure:"voices_path"`
}

// JobsConfig bounds the in-memory job store.
type JobsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxJobs       int           `mapstructure:"max_jobs"`
}

// SynthConfig points the daemon at the synthesis service.
type SynthConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"` // bounds response headers only
}

// TransportsConfig holds the configuration for the optional transports.
// The HTTP API is always on.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	NATS NATSConfig `mapstructure:"nats"`
}

// GRPCConfig configures the gRPC health transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// NATSConfig configures completion callbacks delivered over the bus.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Subject string `mapstructure:"subject"`
}

// BusConfig holds NATS connection settings.
type BusConfig struct {
	Embedded       bool          `mapstructure:"embedded"`
	Port           int           `mapstructure:"port"`
	Servers        []string      `mapstructure:"servers"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Token          string        `mapstructure:"token"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// WorkerConfig configures the reference synthesis worker.
type WorkerConfig struct {
	Port          int          `mapstructure:"port"`
	Concurrency   int          `mapstructure:"concurrency"`
	ChunkWorkers  int          `mapstructure:"chunk_workers"`
	MaxChunkChars int          `mapstructure:"max_chunk_chars"`
	Format        string       `mapstructure:"format"` // "mp3" or "wav"
	OutputDir     string       `mapstructure:"output_dir"`
	DefaultVoice  string       `mapstructure:"default_voice"`
	Notify        NotifyConfig `mapstructure:"notify"`
	Piper         PiperConfig  `mapstructure:"piper"`
}

// NotifyConfig selects how the worker reports finished jobs.
type NotifyConfig struct {
	Mode string `mapstructure:"mode"` // "http" or "nats"
	URL  string `mapstructure:"url"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// Endpoints maps ISO-639-1 codes to per-language Wyoming TCP endpoints and
// takes precedence when set.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
}

// ClientConfig holds narratorctl settings.
type ClientConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"` // 0 polls until a terminal answer
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig holds tracing and metrics settings.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	StdoutTraces bool   `mapstructure:"stdout_traces"`
	Prometheus   bool   `mapstructure:"prometheus"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./narrator.yaml, ./configs/narrator.yaml, /etc/narrator/narrator.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("narrator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/narrator")
	}

	// Environment variables: NARRATOR_SERVER_PORT, NARRATOR_JOBS_TTL, etc.
	v.SetEnvPrefix("NARRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${NATS_TOKEN}").
	cfg.Bus.Password = resolveEnvRef(cfg.Bus.Password)
	cfg.Bus.Token = resolveEnvRef(cfg.Bus.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.max_chars", 5000)
	v.SetDefault("server.voices_path", "voices.json")
	v.SetDefault("jobs.ttl", 30*time.Minute)
	v.SetDefault("jobs.sweep_interval", time.Minute)
	v.SetDefault("jobs.max_jobs", 5000)
	v.SetDefault("synth.endpoint", "http://localhost:5001")
	v.SetDefault("synth.dispatch_timeout", 10*time.Second)
	v.SetDefault("synth.download_timeout", 60*time.Second)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.nats.enabled", false)
	v.SetDefault("transports.nats.subject", "narrator.jobs.done")
	v.SetDefault("bus.embedded", false)
	v.SetDefault("bus.port", 4222)
	v.SetDefault("bus.servers", []string{"nats://localhost:4222"})
	v.SetDefault("bus.username", "")
	v.SetDefault("bus.password", "")
	v.SetDefault("bus.token", "")
	v.SetDefault("bus.connect_timeout", 2*time.Second)
	v.SetDefault("worker.port", 5001)
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.chunk_workers", 4)
	v.SetDefault("worker.max_chunk_chars", 3000)
	v.SetDefault("worker.format", "mp3")
	v.SetDefault("worker.output_dir", "")
	v.SetDefault("worker.default_voice", "en_US-lessac-high")
	v.SetDefault("worker.notify.mode", "http")
	v.SetDefault("worker.notify.url", "http://localhost:5000/api/notify-done")
	v.SetDefault("worker.piper.endpoint", "localhost:10200")
	v.SetDefault("client.server_url", "http://localhost:5000")
	v.SetDefault("client.poll_interval", time.Second)
	v.SetDefault("client.max_attempts", 0)
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("telemetry.service_name", "narrator")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.stdout_traces", false)
	v.SetDefault("telemetry.prometheus", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validPort("server.health_port", c.Server.HealthPort); err != nil {
		return err
	}
	if c.Server.MaxChars <= 0 {
		return errors.New("server.max_chars must be positive")
	}
	if c.Jobs.TTL <= 0 {
		return errors.New("jobs.ttl must be positive")
	}
	if c.Jobs.SweepInterval <= 0 {
		return errors.New("jobs.sweep_interval must be positive")
	}
	if c.Jobs.MaxJobs <= 0 {
		return errors.New("jobs.max_jobs must be positive")
	}
	if c.Synth.Endpoint == "" {
		return errors.New("synth.endpoint must not be empty")
	}
	if c.Synth.DispatchTimeout <= 0 || c.Synth.DownloadTimeout <= 0 {
		return errors.New("synth timeouts must be positive")
	}
	if c.Transports.GRPC.Enabled {
		if err := validPort("transports.grpc.port", c.Transports.GRPC.Port); err != nil {
			return err
		}
	}
	if c.Transports.NATS.Enabled && c.Transports.NATS.Subject == "" {
		return errors.New("transports.nats.subject must not be empty when nats is enabled")
	}
	if c.Bus.Embedded {
		if err := validPort("bus.port", c.Bus.Port); err != nil {
			return err
		}
	} else if len(c.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if c.Worker.Concurrency <= 0 || c.Worker.ChunkWorkers <= 0 {
		return errors.New("worker.concurrency and worker.chunk_workers must be >= 1")
	}
	if c.Worker.MaxChunkChars <= 0 {
		return errors.New("worker.max_chunk_chars must be positive")
	}
	switch c.Worker.Format {
	case "mp3", "wav":
	default:
		return fmt.Errorf("worker.format must be one of mp3|wav, got %q", c.Worker.Format)
	}
	switch c.Worker.Notify.Mode {
	case "http":
		if c.Worker.Notify.URL == "" {
			return errors.New("worker.notify.url must be set when notify mode is http")
		}
	case "nats":
	default:
		return fmt.Errorf("worker.notify.mode must be one of http|nats, got %q", c.Worker.Notify.Mode)
	}
	if c.Client.PollInterval <= 0 {
		return errors.New("client.poll_interval must be positive")
	}
	if c.Client.MaxAttempts < 0 {
		return errors.New("client.max_attempts must be >= 0")
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", name)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
