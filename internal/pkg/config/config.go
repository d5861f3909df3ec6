package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at process
// start and immutable thereafter.
type Config struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	DataDir    string `env:"DATA_DIR" envDefault:"./data"`
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr  string `env:"ADMIN_ADDR" envDefault:":9091"`

	FlushInterval  time.Duration `env:"FLUSH_INTERVAL" envDefault:"250ms"`
	MaxQueueSize   int           `env:"MAX_QUEUE_SIZE" envDefault:"4096"`
	QueueHighWater int           `env:"QUEUE_HIGH_WATER" envDefault:"64"`
	FlushChunkSize int           `env:"FLUSH_CHUNK_SIZE" envDefault:"128"`
	RotateSizeMB   int64         `env:"ROTATE_SIZE_MB" envDefault:"64"`
	SyncBytes      int64         `env:"SYNC_BYTES" envDefault:"65536"`
	RetentionDays  int           `env:"RETENTION_DAYS" envDefault:"30"` // recorded for the external pruner; not enforced here

	MaxSubscribers    int           `env:"MAX_SUBSCRIBERS" envDefault:"128"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`

	DegradedQueuePct int `env:"DEGRADED_QUEUE_PCT" envDefault:"80"`
	RecentWindow     int `env:"RECENT_WINDOW" envDefault:"2048"`

	EventSampleRate     float64 `env:"EVENT_SAMPLE_RATE" envDefault:"1.0"`
	ReasoningSampleRate float64 `env:"REASONING_SAMPLE_RATE" envDefault:"1.0"`

	RedactionRulesPath string `env:"REDACTION_RULES_PATH"`
	PrivacyMode        string `env:"PRIVACY_MODE" envDefault:"standard"`

	ArbiterBaseURL string `env:"ARBITER_BASE_URL" envDefault:"http://localhost:9070"`
	MaxEventSize   int64  `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
}

// RotateSizeBytes returns the rotation threshold in bytes.
func (c *Config) RotateSizeBytes() int64 {
	return c.RotateSizeMB * 1024 * 1024
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
