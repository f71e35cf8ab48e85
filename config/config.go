package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration: the ambient server/ops
// settings inherited from the teacher, plus the nested pipeline domain
// settings of spec §6.
type Config struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log-level"`
	MetricsPath string `mapstructure:"metrics-path"`
	TLSCertFile string `mapstructure:"tls-cert-file"`
	TLSKeyFile  string `mapstructure:"tls-key-file"`
	AuthToken   string `mapstructure:"auth-token"`

	Source       SourceConfig       `mapstructure:"source"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Baseline     BaselineConfig     `mapstructure:"baseline"`
	Detectors    DetectorsConfig    `mapstructure:"detectors"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Sinks        SinksConfig        `mapstructure:"sinks"`
	API          APIConfig          `mapstructure:"api"`
	Sanitization SanitizationConfig `mapstructure:"sanitization"`
}

type SourceConfig struct {
	BrokerURL     string `mapstructure:"broker-url"`
	Topic         string `mapstructure:"topic"`
	ConsumerGroup string `mapstructure:"consumer-group"`
	DecodeFormat  string `mapstructure:"decode-format"`
}

type PipelineConfig struct {
	QueueCapacity int    `mapstructure:"queue-capacity"`
	Workers       int    `mapstructure:"workers"`
	Backpressure  string `mapstructure:"backpressure"`
}

type BaselineConfig struct {
	WindowSize        int `mapstructure:"window-size"`
	WarmupMinSamples  int `mapstructure:"warmup-min-samples"`
	MaxKeys           int `mapstructure:"max-keys"`
	FutureSkewSeconds int `mapstructure:"future-skew-seconds"`
}

type DetectorsConfig struct {
	ZScore ZScoreDetectorConfig `mapstructure:"zscore"`
	IQR    IQRDetectorConfig    `mapstructure:"iqr"`
	MAD    MADDetectorConfig    `mapstructure:"mad"`
	CUSUM  CUSUMDetectorConfig  `mapstructure:"cusum"`
}

type ZScoreDetectorConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	K       float64 `mapstructure:"k"`
}

type IQRDetectorConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	M       float64 `mapstructure:"m"`
}

type MADDetectorConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	K       float64 `mapstructure:"k"`
}

type CUSUMDetectorConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	H           float64 `mapstructure:"h"`
	SlackFactor float64 `mapstructure:"slack-factor"`
}

type DedupConfig struct {
	WindowSeconds int `mapstructure:"window-seconds"`
}

type SinksConfig struct {
	StorageURL        string `mapstructure:"storage-url"`
	AlertTransportURL string `mapstructure:"alert-transport-url"`
	TransportSecret   string `mapstructure:"transport-secret"`
	MaxRetryAttempts  int    `mapstructure:"max-retry-attempts"`
}

type APIConfig struct {
	BindAddr       string `mapstructure:"bind-addr"`
	MaxRequestBytes int64 `mapstructure:"max-request-bytes"`
}

type SanitizationConfig struct {
	ExtraKeyPrefixes []string `mapstructure:"extra-key-prefixes"`
}

// New creates a new Config object from flags, environment, and an optional
// config file, in the teacher's usual viper+pflag wiring.
func New() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindFlags()
	v.BindPFlags(pflag.CommandLine)

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString("config-file"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-path", "/metrics")
	v.SetDefault("tls-cert-file", "")
	v.SetDefault("tls-key-file", "")
	v.SetDefault("auth-token", "")

	v.SetDefault("source.broker-url", "")
	v.SetDefault("source.topic", "telemetry")
	v.SetDefault("source.consumer-group", "sentinel")
	v.SetDefault("source.decode-format", "json")

	v.SetDefault("pipeline.queue-capacity", 10000)
	v.SetDefault("pipeline.workers", runtime.NumCPU())
	v.SetDefault("pipeline.backpressure", "drop_oldest")

	v.SetDefault("baseline.window-size", 1000)
	v.SetDefault("baseline.warmup-min-samples", 30)
	v.SetDefault("baseline.max-keys", 100000)
	v.SetDefault("baseline.future-skew-seconds", 60)

	v.SetDefault("detectors.zscore.enabled", true)
	v.SetDefault("detectors.zscore.k", 3.0)
	v.SetDefault("detectors.iqr.enabled", true)
	v.SetDefault("detectors.iqr.m", 1.5)
	v.SetDefault("detectors.mad.enabled", true)
	v.SetDefault("detectors.mad.k", 3.5)
	v.SetDefault("detectors.cusum.enabled", true)
	v.SetDefault("detectors.cusum.h", 5.0)
	v.SetDefault("detectors.cusum.slack-factor", 0.5)

	v.SetDefault("dedup.window-seconds", 300)

	v.SetDefault("sinks.storage-url", "")
	v.SetDefault("sinks.alert-transport-url", "")
	v.SetDefault("sinks.transport-secret", "")
	v.SetDefault("sinks.max-retry-attempts", 5)

	v.SetDefault("api.bind-addr", ":8080")
	v.SetDefault("api.max-request-bytes", int64(1<<20))

	v.SetDefault("sanitization.extra-key-prefixes", []string{})
}

func bindFlags() {
	if pflag.Parsed() {
		return
	}
	pflag.Int("port", 8080, "Listening port")
	pflag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	pflag.String("metrics-path", "/metrics", "Metrics endpoint path")
	pflag.String("tls-cert-file", "", "Path to TLS certificate file")
	pflag.String("tls-key-file", "", "Path to TLS key file")
	pflag.String("auth-token", "", "Authentication token for admin/query endpoints")
	pflag.String("config-file", "", "Path to config file. Can also be set with SENTINEL_CONFIG_FILE env var.")

	pflag.String("source.broker-url", "", "Event source broker URL")
	pflag.String("source.topic", "telemetry", "Event source topic")
	pflag.String("source.decode-format", "json", "Wire decode format: json or otlp")

	pflag.Int("pipeline.queue-capacity", 10000, "Per-worker bounded queue capacity")
	pflag.Int("pipeline.workers", runtime.NumCPU(), "Number of ingestion workers")
	pflag.String("pipeline.backpressure", "drop_oldest", "Backpressure policy: block, drop_newest, drop_oldest")

	pflag.Int("baseline.window-size", 1000, "Rolling baseline window size")
	pflag.Int("baseline.warmup-min-samples", 30, "Minimum samples before a baseline is warm")
	pflag.Int("baseline.max-keys", 100000, "Maximum distinct baseline keys retained")

	pflag.String("sinks.storage-url", "", "Durable anomaly storage sink URL")
	pflag.String("sinks.alert-transport-url", "", "Alert transport base URL")

	pflag.String("api.bind-addr", ":8080", "Query/admin API bind address")

	pflag.Parse()
}

// DefaultConfig returns a Config struct with every default value set,
// without touching flags/env/file — used by tests and admin tools that
// need a baseline Config to mutate.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		LogLevel:    "info",
		MetricsPath: "/metrics",
		Source: SourceConfig{
			Topic:         "telemetry",
			ConsumerGroup: "sentinel",
			DecodeFormat:  "json",
		},
		Pipeline: PipelineConfig{
			QueueCapacity: 10000,
			Workers:       runtime.NumCPU(),
			Backpressure:  "drop_oldest",
		},
		Baseline: BaselineConfig{
			WindowSize:        1000,
			WarmupMinSamples:  30,
			MaxKeys:           100000,
			FutureSkewSeconds: 60,
		},
		Detectors: DetectorsConfig{
			ZScore: ZScoreDetectorConfig{Enabled: true, K: 3.0},
			IQR:    IQRDetectorConfig{Enabled: true, M: 1.5},
			MAD:    MADDetectorConfig{Enabled: true, K: 3.5},
			CUSUM:  CUSUMDetectorConfig{Enabled: true, H: 5.0, SlackFactor: 0.5},
		},
		Dedup: DedupConfig{WindowSeconds: 300},
		Sinks: SinksConfig{MaxRetryAttempts: 5},
		API:   APIConfig{BindAddr: ":8080", MaxRequestBytes: 1 << 20},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLogLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValidLogLevel = true
			break
		}
	}
	if !isValidLogLevel {
		return fmt.Errorf("invalid log-level: %s, must be one of %v", c.LogLevel, validLogLevels)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d, must be between 1 and 65535", c.Port)
	}

	switch c.Source.DecodeFormat {
	case "json", "otlp":
	default:
		return fmt.Errorf("invalid source.decode-format: %s, must be json or otlp", c.Source.DecodeFormat)
	}

	switch c.Pipeline.Backpressure {
	case "block", "drop_newest", "drop_oldest":
	default:
		return fmt.Errorf("invalid pipeline.backpressure: %s, must be block, drop_newest, or drop_oldest", c.Pipeline.Backpressure)
	}

	if c.Pipeline.QueueCapacity <= 0 {
		return fmt.Errorf("invalid pipeline.queue-capacity: %d, must be positive", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("invalid pipeline.workers: %d, must be positive", c.Pipeline.Workers)
	}
	if c.Baseline.WindowSize <= 0 {
		return fmt.Errorf("invalid baseline.window-size: %d, must be positive", c.Baseline.WindowSize)
	}

	return nil
}
