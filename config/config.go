package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Device     DeviceConfig     `yaml:"device"`
	Remote     RemoteConfig     `yaml:"remote"`
	Dispense   DispenseConfig   `yaml:"dispense"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Influx     InfluxConfig     `yaml:"influx"`
}

// ServerConfig holds the status API configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DeviceConfig identifies this feeder to the remote inventory.
type DeviceConfig struct {
	MACAddress string `yaml:"mac_address"`
}

// RemoteConfig holds the inventory service client configuration.
type RemoteConfig struct {
	BaseURL             string        `yaml:"base_url"`
	TimeoutSeconds      int           `yaml:"timeout_seconds"`
	Timeout             time.Duration `yaml:"-"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	ReportMaxAttempts   int           `yaml:"report_max_attempts"`
	OutboxSize          int           `yaml:"outbox_size"`
	BreakerFailures     int           `yaml:"breaker_failures"`
	BreakerOpenSeconds  int           `yaml:"breaker_open_seconds"`
}

// DispenseConfig controls the dispense actuator loop.
type DispenseConfig struct {
	TickIntervalMs      int           `yaml:"tick_interval_ms"`
	TickInterval        time.Duration `yaml:"-"`
	StallTimeoutSeconds int           `yaml:"stall_timeout_seconds"`
	StallTimeout        time.Duration `yaml:"-"`
}

// TriggerConfig controls how operator buttons are sampled.
type TriggerConfig struct {
	PollIntervalMs int           `yaml:"poll_interval_ms"`
	PollInterval   time.Duration `yaml:"-"`
	DebounceMs     int           `yaml:"debounce_ms"`
	Debounce       time.Duration `yaml:"-"`
}

// SensorsConfig describes the sensing hardware.
type SensorsConfig struct {
	Simulated         bool            `yaml:"simulated"`
	WaterTank         WaterTankConfig `yaml:"water_tank"`
	DistanceTimeoutMs int             `yaml:"distance_timeout_ms"`
	DistanceTimeout   time.Duration   `yaml:"-"`
}

// WaterTankConfig is the geometry used to turn a distance reading into a volume.
type WaterTankConfig struct {
	HeightCm float64 `yaml:"height_cm"`
	AreaCm2  float64 `yaml:"area_cm2"`
}

// DatabaseConfig holds the journal database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push alerts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// MQTTConfig configures the optional telemetry publisher.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// InfluxConfig configures the optional sensor reading writer.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Remote.TimeoutSeconds <= 0 {
		cfg.Remote.TimeoutSeconds = 10
	}
	cfg.Remote.Timeout = time.Duration(cfg.Remote.TimeoutSeconds) * time.Second

	if cfg.Remote.PollIntervalSeconds <= 0 {
		cfg.Remote.PollIntervalSeconds = 5
	}
	cfg.Remote.PollInterval = time.Duration(cfg.Remote.PollIntervalSeconds) * time.Second

	if cfg.Remote.ReportMaxAttempts <= 0 {
		cfg.Remote.ReportMaxAttempts = 3
	}
	if cfg.Remote.OutboxSize <= 0 {
		cfg.Remote.OutboxSize = 32
	}
	if cfg.Remote.BreakerFailures <= 0 {
		cfg.Remote.BreakerFailures = 5
	}
	if cfg.Remote.BreakerOpenSeconds <= 0 {
		cfg.Remote.BreakerOpenSeconds = 30
	}

	if cfg.Dispense.TickIntervalMs <= 0 {
		cfg.Dispense.TickIntervalMs = 200
	}
	cfg.Dispense.TickInterval = time.Duration(cfg.Dispense.TickIntervalMs) * time.Millisecond
	if cfg.Dispense.StallTimeoutSeconds < 0 {
		cfg.Dispense.StallTimeoutSeconds = 0
	}
	cfg.Dispense.StallTimeout = time.Duration(cfg.Dispense.StallTimeoutSeconds) * time.Second

	if cfg.Trigger.PollIntervalMs <= 0 {
		cfg.Trigger.PollIntervalMs = 50
	}
	cfg.Trigger.PollInterval = time.Duration(cfg.Trigger.PollIntervalMs) * time.Millisecond
	if cfg.Trigger.DebounceMs <= 0 {
		cfg.Trigger.DebounceMs = 50
	}
	cfg.Trigger.Debounce = time.Duration(cfg.Trigger.DebounceMs) * time.Millisecond

	if cfg.Sensors.DistanceTimeoutMs <= 0 {
		cfg.Sensors.DistanceTimeoutMs = 30
	}
	cfg.Sensors.DistanceTimeout = time.Duration(cfg.Sensors.DistanceTimeoutMs) * time.Millisecond
	if cfg.Sensors.WaterTank.HeightCm <= 0 {
		cfg.Sensors.WaterTank.HeightCm = 20
	}
	if cfg.Sensors.WaterTank.AreaCm2 <= 0 {
		cfg.Sensors.WaterTank.AreaCm2 = 100
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "feeder.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "feeder"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "feederd"
	}
}
