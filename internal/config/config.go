package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server   ServerConfig   `json:"server"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Database DatabaseConfig `json:"database"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type SecurityConfig struct {
	TokenSecret string        `json:"token_secret"`
	TokenTTL    time.Duration `json:"token_ttl"`
	BcryptCost  int           `json:"bcrypt_cost"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type StorageConfig struct {
	BlobDir      string        `json:"blob_dir"`
	PendingTTL   time.Duration `json:"pending_ttl"`
	PendingSweep time.Duration `json:"pending_sweep"`
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

// LoadConfig reads a JSON config file, fills in defaults for anything the
// file left out, then applies environment overrides.
func LoadConfig(filePath string) (*Configuration, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Configuration{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultConfig returns a configuration built from defaults and environment
// overrides only, for running without a config file.
func DefaultConfig() *Configuration {
	cfg := &Configuration{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Security.TokenSecret == "" {
		cfg.Security.TokenSecret = "pdf-signature-dev-secret"
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = 24 * time.Hour
	}
	if cfg.Security.BcryptCost == 0 {
		cfg.Security.BcryptCost = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = "data/blobs"
	}
	if cfg.Storage.PendingTTL == 0 {
		cfg.Storage.PendingTTL = 30 * time.Minute
	}
	if cfg.Storage.PendingSweep == 0 {
		cfg.Storage.PendingSweep = 5 * time.Minute
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.Username == "" {
		cfg.Database.Username = "postgres"
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = "password"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "pdf_signatures"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 100
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
}

func applyEnvOverrides(cfg *Configuration) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.Security.TokenSecret = v
	}
	if v := os.Getenv("BLOB_DIR"); v != "" {
		cfg.Storage.BlobDir = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
}

func LogConfig(cfg *Configuration, logger *zap.Logger) {
	logger.Info("Application configuration",
		zap.String("port", cfg.Server.Port),
		zap.Duration("read_timeout", cfg.Server.ReadTimeout),
		zap.Duration("write_timeout", cfg.Server.WriteTimeout),
		zap.Duration("token_ttl", cfg.Security.TokenTTL),
		zap.String("blob_dir", cfg.Storage.BlobDir),
		zap.Duration("pending_ttl", cfg.Storage.PendingTTL),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Name),
	)
}
