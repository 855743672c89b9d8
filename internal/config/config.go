package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sentrygate/sentrygate/internal/models"
)

// Config holds all configuration for the riskd service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Verdict    VerdictConfig    `mapstructure:"verdict"`
	Planner    PlannerConfig    `mapstructure:"planner"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Automation AutomationConfig `mapstructure:"automation"`
	Incident   IncidentConfig   `mapstructure:"incident"`
	Rollback   RollbackConfig   `mapstructure:"rollback"`
	Detect     DetectConfig     `mapstructure:"detect"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the enforcement point and
// incident correlation state.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

// NATSConfig holds message bus configuration.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// VerdictConfig holds the verdict (ML) service client configuration.
type VerdictConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PlannerConfig holds the remediation plan template service configuration.
type PlannerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig holds OpenSearch archival configuration.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Insecure  bool   `mapstructure:"insecure"`
	Index     string `mapstructure:"index"`
	QueueSize int    `mapstructure:"queue_size"`
}

// RiskConfig holds scoring weights and decision thresholds.
type RiskConfig struct {
	WeightML           float64 `mapstructure:"weight_ml"`
	WeightOWASP        float64 `mapstructure:"weight_owasp"`
	WeightBehavioral   float64 `mapstructure:"weight_behavioral"`
	BlockThreshold     float64 `mapstructure:"block_threshold"`
	CaptchaThreshold   float64 `mapstructure:"captcha_threshold"`
	RateLimitThreshold float64 `mapstructure:"rate_limit_threshold"`
	// Enforcement duration ladder by decision band.
	BlockMinutes   int `mapstructure:"block_minutes"`
	CaptchaMinutes int `mapstructure:"captcha_minutes"`
	DefaultMinutes int `mapstructure:"default_minutes"`
}

// AutomationConfig gates human validation of automated actions.
// The per-mode thresholds are configuration so operators can tune them
// without a redeploy.
type AutomationConfig struct {
	Mode              models.AutomationMode `mapstructure:"mode"`
	SemiAutoThreshold float64               `mapstructure:"semi_auto_threshold"`
	AutoThreshold     float64               `mapstructure:"auto_threshold"`
}

// IncidentConfig holds incident correlation policy.
type IncidentConfig struct {
	Threshold             float64       `mapstructure:"threshold"` // score at which an incident opens
	CorrelationWindow     time.Duration `mapstructure:"correlation_window"`
	FalsePositiveCooldown time.Duration `mapstructure:"false_positive_cooldown"`
}

// RollbackConfig holds the expiry sweeper configuration.
type RollbackConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DetectConfig holds detection engine configuration.
type DetectConfig struct {
	// PackPath optionally overrides the embedded signature pack.
	PackPath        string `mapstructure:"pack_path"`
	MaxInspectBytes int    `mapstructure:"max_inspect_bytes"`
}

// AuditConfig holds the action-record signing key.
type AuditConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

// LoggingConfig holds log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// Policy misconfiguration (bad thresholds, unknown automation mode) is
// fatal here, never per-request.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "sentrygate")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "sentrygate")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)

	v.SetDefault("verdict.url", "http://localhost:8002")
	v.SetDefault("verdict.timeout", "5s")

	v.SetDefault("planner.url", "http://localhost:8005")
	v.SetDefault("planner.timeout", "5s")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.url", "https://localhost:9200")
	v.SetDefault("archive.username", "admin")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.insecure", true)
	v.SetDefault("archive.index", "sentrygate-assessments")
	v.SetDefault("archive.queue_size", 10000)

	v.SetDefault("risk.weight_ml", 0.40)
	v.SetDefault("risk.weight_owasp", 0.30)
	v.SetDefault("risk.weight_behavioral", 0.20)
	v.SetDefault("risk.block_threshold", 0.9)
	v.SetDefault("risk.captcha_threshold", 0.7)
	v.SetDefault("risk.rate_limit_threshold", 0.5)
	v.SetDefault("risk.block_minutes", 60)
	v.SetDefault("risk.captcha_minutes", 30)
	v.SetDefault("risk.default_minutes", 15)

	v.SetDefault("automation.mode", "semi-auto")
	v.SetDefault("automation.semi_auto_threshold", 0.8)
	v.SetDefault("automation.auto_threshold", 0.95)

	v.SetDefault("incident.threshold", 0.8)
	v.SetDefault("incident.correlation_window", "30m")
	v.SetDefault("incident.false_positive_cooldown", "2h")

	v.SetDefault("rollback.sweep_interval", "1m")

	v.SetDefault("detect.pack_path", "")
	v.SetDefault("detect.max_inspect_bytes", 65536)

	v.SetDefault("audit.signing_key", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix("RISKD")
	v.AutomaticEnv()

	return v
}

// Validate checks policy configuration. An error here must abort startup.
func (c *Config) Validate() error {
	if !c.Automation.Mode.Valid() {
		return fmt.Errorf("unknown automation mode %q", c.Automation.Mode)
	}

	for name, t := range map[string]float64{
		"risk.block_threshold":          c.Risk.BlockThreshold,
		"risk.captcha_threshold":        c.Risk.CaptchaThreshold,
		"risk.rate_limit_threshold":     c.Risk.RateLimitThreshold,
		"incident.threshold":            c.Incident.Threshold,
		"automation.semi_auto_threshold": c.Automation.SemiAutoThreshold,
		"automation.auto_threshold":     c.Automation.AutoThreshold,
	} {
		if t < 0 || t > 1 {
			return fmt.Errorf("%s out of range [0,1]: %v", name, t)
		}
	}

	// Decision bands must be ordered and non-overlapping.
	if !(c.Risk.BlockThreshold > c.Risk.CaptchaThreshold &&
		c.Risk.CaptchaThreshold > c.Risk.RateLimitThreshold) {
		return fmt.Errorf("decision thresholds must satisfy block > captcha > rate_limit, got %v > %v > %v",
			c.Risk.BlockThreshold, c.Risk.CaptchaThreshold, c.Risk.RateLimitThreshold)
	}

	sum := c.Risk.WeightML + c.Risk.WeightOWASP + c.Risk.WeightBehavioral
	if sum <= 0 || sum > 1 {
		return fmt.Errorf("risk weights must sum to (0,1], got %v", sum)
	}

	if c.Risk.BlockMinutes <= 0 || c.Risk.CaptchaMinutes <= 0 || c.Risk.DefaultMinutes <= 0 {
		return fmt.Errorf("enforcement durations must be positive")
	}

	if c.Incident.CorrelationWindow <= 0 {
		return fmt.Errorf("incident.correlation_window must be positive")
	}

	if c.Detect.MaxInspectBytes <= 0 {
		return fmt.Errorf("detect.max_inspect_bytes must be positive")
	}

	return nil
}
