package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"
	"github.com/ifuryst/relay/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Platforms PlatformsConfig `yaml:"platforms"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// ShutdownTimeout bounds how long in-flight posts may run after a stop signal.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// Path is the database file when Type is sqlite.
	Path string `yaml:"path"`
}

type PlatformsConfig struct {
	MediaFetchTimeout string          `yaml:"media_fetch_timeout"`
	X                 XConfig         `yaml:"x"`
	Instagram         InstagramConfig `yaml:"instagram"`
	LinkedIn          LinkedInConfig  `yaml:"linkedin"`
}

type XConfig struct {
	Timeout string `yaml:"timeout"`
	Debug   bool   `yaml:"debug"`
}

type InstagramConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type LinkedInConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills every unset field with its default value.
func (cfg *Config) SetDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = "30s"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "relay.db"
	}
	if cfg.Platforms.MediaFetchTimeout == "" {
		cfg.Platforms.MediaFetchTimeout = "30s"
	}
	if cfg.Platforms.X.Timeout == "" {
		cfg.Platforms.X.Timeout = "30s"
	}
	if cfg.Platforms.Instagram.BaseURL == "" {
		cfg.Platforms.Instagram.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Platforms.Instagram.Timeout == "" {
		cfg.Platforms.Instagram.Timeout = "60s"
	}
	if cfg.Platforms.LinkedIn.BaseURL == "" {
		cfg.Platforms.LinkedIn.BaseURL = "https://api.linkedin.com"
	}
	if cfg.Platforms.LinkedIn.Timeout == "" {
		cfg.Platforms.LinkedIn.Timeout = "30s"
	}
}

// Duration parses value, falling back to def when it is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
