package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-tutor/internal/platform/envutil"
)

type Config struct {
	LogMode string `yaml:"log_mode"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Learner  LearnerConfig  `yaml:"learner"`
	Temporal TemporalConfig `yaml:"temporal"`
	HTTP     HTTPConfig     `yaml:"http"`

	Tracing  TracingConfig  `yaml:"tracing"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	Channel  string        `yaml:"channel"`
}

type WorkerConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	StaleRunning   time.Duration `yaml:"stale_running"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type LearnerConfig struct {
	SnapshotEventInterval int           `yaml:"snapshot_event_interval"`
	SnapshotTimeInterval  time.Duration `yaml:"snapshot_time_interval"`
	SignificantEditWindow int           `yaml:"significant_edit_window"`
}

type TemporalConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath        string `yaml:"client_cert_path"`
	ClientKeyPath         string `yaml:"client_key_path"`
	ClientCAPath          string `yaml:"client_ca_path"`
	AutoRegisterNamespace bool   `yaml:"auto_register_namespace"`

	DialMaxWait   time.Duration `yaml:"dial_max_wait"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepGrace    time.Duration `yaml:"sweep_grace"`
}

// Enabled reports whether tasks are executed through Temporal instead of the
// polling worker.
func (c TemporalConfig) Enabled() bool {
	return strings.TrimSpace(c.Address) != ""
}

// TracingConfig selects the span exporter: OTLP/HTTP when Endpoint is set,
// pretty-printed stdout otherwise.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
	Version     string            `yaml:"version"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		LogMode: "development",
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "tutor.db",
		},
		Redis: RedisConfig{
			CacheTTL: 30 * time.Minute,
			LockTTL:  30 * time.Second,
			Channel:  "learner_state",
		},
		Worker: WorkerConfig{
			Concurrency:    4,
			MaxAttempts:    5,
			RetryBaseDelay: 2 * time.Second,
			StaleRunning:   10 * time.Minute,
			PollInterval:   time.Second,
		},
		Learner: LearnerConfig{
			SnapshotEventInterval: 25,
			SnapshotTimeInterval:  10 * time.Minute,
			SignificantEditWindow: 100,
		},
		Temporal: TemporalConfig{
			Namespace:     "default",
			TaskQueue:     "tutor-tasks",
			DialMaxWait:   time.Minute,
			SweepInterval: 30 * time.Second,
			SweepGrace:    time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
			ShutdownTimeout: 15 * time.Second,
		},
		Tracing: TracingConfig{
			SampleRatio: 0.1,
		},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE yaml
// overlay, then environment variables, in that order of precedence.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)

	cfg.Database.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.Database.Driver))
	cfg.Database.PostgresDSN = envutil.String("POSTGRES_DSN", cfg.Database.PostgresDSN)
	cfg.Database.SQLitePath = envutil.String("SQLITE_PATH", cfg.Database.SQLitePath)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.CacheTTL = envutil.Duration("REDIS_CACHE_TTL", cfg.Redis.CacheTTL)
	cfg.Redis.LockTTL = envutil.Duration("REDIS_LOCK_TTL", cfg.Redis.LockTTL)
	cfg.Redis.Channel = envutil.String("REDIS_STATE_CHANNEL", cfg.Redis.Channel)

	cfg.Worker.Concurrency = envutil.Int("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.MaxAttempts = envutil.Int("TASK_MAX_ATTEMPTS", cfg.Worker.MaxAttempts)
	cfg.Worker.RetryBaseDelay = envutil.Duration("TASK_RETRY_BASE_DELAY", cfg.Worker.RetryBaseDelay)
	cfg.Worker.StaleRunning = envutil.Duration("TASK_STALE_RUNNING", cfg.Worker.StaleRunning)
	cfg.Worker.PollInterval = envutil.Duration("TASK_POLL_INTERVAL", cfg.Worker.PollInterval)

	cfg.Learner.SnapshotEventInterval = envutil.Int("SNAPSHOT_EVENT_INTERVAL", cfg.Learner.SnapshotEventInterval)
	cfg.Learner.SnapshotTimeInterval = envutil.Duration("SNAPSHOT_TIME_INTERVAL", cfg.Learner.SnapshotTimeInterval)
	cfg.Learner.SignificantEditWindow = envutil.Int("SIGNIFICANT_EDIT_WINDOW", cfg.Learner.SignificantEditWindow)

	cfg.Temporal.Address = envutil.String("TEMPORAL_ADDRESS", cfg.Temporal.Address)
	cfg.Temporal.Namespace = envutil.String("TEMPORAL_NAMESPACE", cfg.Temporal.Namespace)
	cfg.Temporal.TaskQueue = envutil.String("TEMPORAL_TASK_QUEUE", cfg.Temporal.TaskQueue)
	cfg.Temporal.ClientCertPath = envutil.String("TEMPORAL_CLIENT_CERT_PATH", cfg.Temporal.ClientCertPath)
	cfg.Temporal.ClientKeyPath = envutil.String("TEMPORAL_CLIENT_KEY_PATH", cfg.Temporal.ClientKeyPath)
	cfg.Temporal.ClientCAPath = envutil.String("TEMPORAL_CLIENT_CA_PATH", cfg.Temporal.ClientCAPath)
	cfg.Temporal.AutoRegisterNamespace = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", cfg.Temporal.AutoRegisterNamespace)
	cfg.Temporal.DialMaxWait = envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", cfg.Temporal.DialMaxWait)
	cfg.Temporal.SweepInterval = envutil.Duration("TEMPORAL_SWEEP_INTERVAL", cfg.Temporal.SweepInterval)
	cfg.Temporal.SweepGrace = envutil.Duration("TEMPORAL_SWEEP_GRACE", cfg.Temporal.SweepGrace)

	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	if raw := envutil.String("HTTP_CORS_ORIGINS", ""); raw != "" {
		cfg.HTTP.CORSOrigins = splitList(raw)
	}
	cfg.HTTP.ShutdownTimeout = envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)

	cfg.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	if raw := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); raw != "" {
		cfg.Tracing.Headers = splitPairs(raw)
	}
	cfg.Tracing.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Tracing.SampleRatio)
	cfg.Tracing.Version = envutil.String("SERVICE_VERSION", cfg.Tracing.Version)
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("TASK_MAX_ATTEMPTS must be >= 1")
	}
	if c.Temporal.Enabled() && (c.Temporal.ClientCertPath == "") != (c.Temporal.ClientKeyPath == "") {
		return fmt.Errorf("TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH must be set together")
	}
	if c.Learner.SignificantEditWindow < 1 {
		return fmt.Errorf("SIGNIFICANT_EDIT_WINDOW must be >= 1")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLER_RATIO must be within [0,1]")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitPairs parses "k1=v1,k2=v2". Entries without a key or value are skipped.
func splitPairs(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
