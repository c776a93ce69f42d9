package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var envReplacer = strings.NewReplacer(".", "_")

// Config is the full service configuration, assembled from defaults, an
// optional yaml file and environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	HTTP     HTTPConfig
}

type ServerConfig struct {
	Addr        string
	Environment string
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type HTTPConfig struct {
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

// Load reads configuration from defaults, an optional config.yaml and the
// environment. Environment variables use the LEADLINE_ prefix, e.g.
// LEADLINE_DATABASE_DSN.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEADLINE")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/leadline")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No file is fine; env and defaults carry the configuration.
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			Environment: v.GetString("server.environment"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		HTTP: HTTPConfig{
			RateBurst:    v.GetInt("http.rate_burst"),
			RatePerSec:   v.GetInt("http.rate_per_sec"),
			MaxBodyBytes: v.GetInt64("http.max_body_bytes"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 15)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("http.rate_burst", 20)
	v.SetDefault("http.rate_per_sec", 10)
	v.SetDefault("http.max_body_bytes", 1<<20)
}
