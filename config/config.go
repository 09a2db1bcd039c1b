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
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Registrar  RegistrarConfig  `yaml:"registrar"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds token signing and bootstrap-admin settings.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTLHours     int           `yaml:"token_ttl_hours"`
	TokenTTL          time.Duration `yaml:"-"` // Ignored by YAML parser
	BootstrapUsername string        `yaml:"bootstrap_username"`
	BootstrapPassword string        `yaml:"bootstrap_password"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey      string `yaml:"vapid_public_key"`
	PrivateKey     string `yaml:"vapid_private_key"`
	Subject        string `yaml:"subject"`
	TTL            int    `yaml:"ttl"`
	KeyFile        string `yaml:"key_file"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WorkerPoolConfig caps the concurrency of broadcast dispatch.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// RegistrarConfig holds the companion registration service settings.
type RegistrarConfig struct {
	Port            int    `yaml:"port"`
	PushServiceURL  string `yaml:"push_service_url"`
	AdminUsername   string `yaml:"admin_username"`
	AdminPassword   string `yaml:"admin_password"`
	ApplicationName string `yaml:"application_name"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
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

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	// Environment always wins for the signing secret.
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		cfg.Auth.TokenTTLHours = 24
	}
	cfg.Auth.TokenTTL = time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	if cfg.Auth.BootstrapUsername == "" {
		cfg.Auth.BootstrapUsername = "admin"
	}
	if cfg.Auth.BootstrapPassword == "" {
		cfg.Auth.BootstrapPassword = "admin"
	}

	if cfg.Push.Subject == "" {
		cfg.Push.Subject = "mailto:example@example.com"
	}
	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.KeyFile == "" {
		cfg.Push.KeyFile = ".env"
	}
	if cfg.Push.TimeoutSeconds <= 0 {
		cfg.Push.TimeoutSeconds = 30
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 4")
		cfg.WorkerPool.Size = 4
	}

	if cfg.Registrar.Port <= 0 {
		cfg.Registrar.Port = 8001
	}
	if cfg.Registrar.PushServiceURL == "" {
		cfg.Registrar.PushServiceURL = "http://localhost:8000"
	}
	if cfg.Registrar.AdminUsername == "" {
		cfg.Registrar.AdminUsername = "admin"
	}
	if cfg.Registrar.AdminPassword == "" {
		cfg.Registrar.AdminPassword = "admin"
	}
	if cfg.Registrar.ApplicationName == "" {
		cfg.Registrar.ApplicationName = "User Registration App"
	}
	if cfg.Registrar.CacheTTLSeconds <= 0 {
		cfg.Registrar.CacheTTLSeconds = 600
	}
	if cfg.Registrar.TimeoutSeconds <= 0 {
		cfg.Registrar.TimeoutSeconds = 10
	}
}
