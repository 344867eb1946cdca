package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Pose      PoseConfig      `yaml:"pose"`
	Session   SessionConfig   `yaml:"session"`
	Export    ExportConfig    `yaml:"export"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey guards the export download and /mcp when set.
	APIKey string `yaml:"api_key"`
}

type CameraConfig struct {
	Device int  `yaml:"device"`
	Mirror bool `yaml:"mirror"`
	Width  int  `yaml:"width"`
	Height int  `yaml:"height"`
}

type PoseConfig struct {
	Command       string        `yaml:"command"`
	Args          []string      `yaml:"args"`
	Timeout       time.Duration `yaml:"timeout"`
	MinVisibility float64       `yaml:"min_visibility"`
}

type SessionConfig struct {
	Tick           time.Duration `yaml:"tick"`
	DrainDelay     time.Duration `yaml:"drain_delay"`
	StreamWait     time.Duration `yaml:"stream_wait"`
	StreamPoll     time.Duration `yaml:"stream_poll"`
	StreamInterval time.Duration `yaml:"stream_interval"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type AnalysisConfig struct {
	ModelDir  string  `yaml:"model_dir"`
	Seed      uint64  `yaml:"seed"`
	TestRatio float64 `yaml:"test_ratio"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Source returns what storage.Open expects for the configured driver: the
// sqlite file path or the postgres URL.
func (d DatabaseConfig) Source() string {
	if d.Driver == "postgres" {
		return d.DSN()
	}
	return d.Path
}

// Default returns a config with every optional field set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5000},
		Camera: CameraConfig{Mirror: true},
		Pose:   PoseConfig{Timeout: 2 * time.Second},
		Session: SessionConfig{
			Tick:           10 * time.Millisecond,
			DrainDelay:     500 * time.Millisecond,
			StreamWait:     15 * time.Second,
			StreamPoll:     100 * time.Millisecond,
			StreamInterval: 30 * time.Millisecond,
		},
		Export:    ExportConfig{Dir: "data"},
		Analysis:  AnalysisConfig{ModelDir: "models", Seed: 1234, TestRatio: 0.3},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "formreps.db", Port: 5432},
		MQTT:      MQTTConfig{ClientID: "formreps", TopicPrefix: "formreps"},
		Tailscale: TailscaleConfig{Hostname: "formreps"},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Env vars use the prefix FORMREPS_ and
// underscore-separated paths:
//
//	FORMREPS_SERVER_HOST, FORMREPS_SERVER_PORT, FORMREPS_SERVER_API_KEY,
//	FORMREPS_CAMERA_DEVICE, FORMREPS_POSE_COMMAND, FORMREPS_POSE_TIMEOUT,
//	FORMREPS_EXPORT_DIR, FORMREPS_ANALYSIS_MODEL_DIR,
//	FORMREPS_DB_DRIVER, FORMREPS_DB_PATH, FORMREPS_DB_HOST, FORMREPS_DB_PORT,
//	FORMREPS_DB_NAME, FORMREPS_DB_USER, FORMREPS_DB_PASSWORD, FORMREPS_DB_SSLMODE,
//	FORMREPS_MQTT_BROKER, FORMREPS_TAILSCALE_ENABLED
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("FORMREPS_SERVER_HOST", &cfg.Server.Host)
	num("FORMREPS_SERVER_PORT", &cfg.Server.Port)
	str("FORMREPS_SERVER_API_KEY", &cfg.Server.APIKey)
	num("FORMREPS_CAMERA_DEVICE", &cfg.Camera.Device)
	str("FORMREPS_POSE_COMMAND", &cfg.Pose.Command)
	if v := os.Getenv("FORMREPS_POSE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pose.Timeout = d
		}
	}
	str("FORMREPS_EXPORT_DIR", &cfg.Export.Dir)
	str("FORMREPS_ANALYSIS_MODEL_DIR", &cfg.Analysis.ModelDir)
	str("FORMREPS_DB_DRIVER", &cfg.Database.Driver)
	str("FORMREPS_DB_PATH", &cfg.Database.Path)
	str("FORMREPS_DB_HOST", &cfg.Database.Host)
	num("FORMREPS_DB_PORT", &cfg.Database.Port)
	str("FORMREPS_DB_NAME", &cfg.Database.Name)
	str("FORMREPS_DB_USER", &cfg.Database.User)
	str("FORMREPS_DB_PASSWORD", &cfg.Database.Password)
	str("FORMREPS_DB_SSLMODE", &cfg.Database.SSLMode)
	str("FORMREPS_MQTT_BROKER", &cfg.MQTT.Broker)
	if v := os.Getenv("FORMREPS_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must not be negative")
	}
	if c.Pose.Command == "" {
		return fmt.Errorf("pose.command is required")
	}
	if c.Pose.Timeout <= 0 {
		return fmt.Errorf("pose.timeout must be positive")
	}
	s := c.Session
	if s.Tick <= 0 || s.DrainDelay <= 0 || s.StreamWait <= 0 || s.StreamPoll <= 0 || s.StreamInterval <= 0 {
		return fmt.Errorf("session timings must be positive")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export.dir is required")
	}
	if c.Analysis.TestRatio <= 0 || c.Analysis.TestRatio >= 1 {
		return fmt.Errorf("analysis.test_ratio must be between 0 and 1")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
