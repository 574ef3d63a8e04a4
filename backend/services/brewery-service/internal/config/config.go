package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "github.com/FilipKaczor/iot-project-backend/backend/libs/config"
)

// Config represents service configuration loaded from YAML/env.
type Config struct {
	Service struct {
		Name string `yaml:"name" env:"BREWERY_SERVICE_NAME"`
	} `yaml:"service"`
	HTTP struct {
		Port                   string `yaml:"port" env:"BREWERY_HTTP_PORT"`
		ReadTimeoutSeconds     int    `yaml:"readTimeoutSeconds" env:"BREWERY_HTTP_READ_TIMEOUT_SECONDS"`
		WriteTimeoutSeconds    int    `yaml:"writeTimeoutSeconds" env:"BREWERY_HTTP_WRITE_TIMEOUT_SECONDS"`
		ShutdownTimeoutSeconds int    `yaml:"shutdownTimeoutSeconds" env:"BREWERY_HTTP_SHUTDOWN_TIMEOUT_SECONDS"`
	} `yaml:"http"`
	Database struct {
		DSN                 string `yaml:"dsn" env:"BREWERY_POSTGRES_DSN"`
		AutoMigrate         bool   `yaml:"autoMigrate" env:"BREWERY_DB_AUTO_MIGRATE"`
		MaxOpenConns        int    `yaml:"maxOpenConns" env:"BREWERY_DB_MAX_OPEN_CONNS"`
		MaxIdleConns        int    `yaml:"maxIdleConns" env:"BREWERY_DB_MAX_IDLE_CONNS"`
		ConnLifetimeMinutes int    `yaml:"connLifetimeMinutes" env:"BREWERY_DB_CONN_LIFETIME_MINUTES"`
	} `yaml:"database"`
	Redis struct {
		Addr       string `yaml:"addr" env:"BREWERY_REDIS_ADDR"`
		Password   string `yaml:"password" env:"BREWERY_REDIS_PASSWORD"`
		DB         int    `yaml:"db" env:"BREWERY_REDIS_DB"`
		TTLMinutes int    `yaml:"ttlMinutes" env:"BREWERY_REDIS_DEVICE_TTL_MINUTES"`
	} `yaml:"redis"`
	JWT struct {
		Secret           string `yaml:"secret" env:"BREWERY_JWT_SECRET"`
		ExpiresInMinutes int    `yaml:"expiresInMinutes" env:"BREWERY_JWT_EXPIRES_MINUTES"`
	} `yaml:"jwt"`
	Password struct {
		BcryptCost int `yaml:"bcryptCost" env:"BREWERY_BCRYPT_COST"`
	} `yaml:"password"`
	WebSocket struct {
		PingIntervalSeconds int `yaml:"pingIntervalSeconds" env:"BREWERY_WS_PING_INTERVAL_SECONDS"`
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"BREWERY_WS_WRITE_TIMEOUT_SECONDS"`
	} `yaml:"websocket"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins" env:"BREWERY_CORS_ALLOWED_ORIGINS"`
	} `yaml:"cors"`
	Ingest struct {
		FallbackDeviceID string `yaml:"fallbackDeviceID" env:"BREWERY_INGEST_FALLBACK_DEVICE_ID"`
		GenericDeviceID  string `yaml:"genericDeviceID" env:"BREWERY_INGEST_GENERIC_DEVICE_ID"`
	} `yaml:"ingest"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Service.Name = "Smart Brewery IoT Server"
	cfg.HTTP.Port = "8000"
	cfg.HTTP.ReadTimeoutSeconds = 10
	cfg.HTTP.WriteTimeoutSeconds = 15
	cfg.HTTP.ShutdownTimeoutSeconds = 10
	cfg.Database.AutoMigrate = true
	cfg.Redis.TTLMinutes = 24 * 60
	cfg.JWT.ExpiresInMinutes = 24 * 60
	cfg.WebSocket.PingIntervalSeconds = 30
	cfg.WebSocket.WriteTimeoutSeconds = 10
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.Ingest.FallbackDeviceID = "unknown"
	cfg.Ingest.GenericDeviceID = "raspberry-pi-brewery"
	return cfg
}

// Load reads configuration from the optional YAML file at path, then the environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if err := libconfig.LoadConfigFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database DSN is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.Redis.DB < 0 {
		return errors.New("config: redis db must not be negative")
	}
	if c.JWT.ExpiresInMinutes <= 0 {
		c.JWT.ExpiresInMinutes = 24 * 60
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	return nil
}

// HTTPAddress ensures we always return host:port formatted string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8000"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// JWTExpiration converts configured expiry to duration.
func (c *Config) JWTExpiration() time.Duration {
	if c.JWT.ExpiresInMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.JWT.ExpiresInMinutes) * time.Minute
}

// RedisEnabled reports whether device presence is backed by redis.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// DeviceTTL is how long a silent device stays listed.
func (c *Config) DeviceTTL() time.Duration {
	return minutes(c.Redis.TTLMinutes)
}

// ConnLifetime is the maximum age of a pooled database connection.
func (c *Config) ConnLifetime() time.Duration {
	return minutes(c.Database.ConnLifetimeMinutes)
}

// PingInterval is the device stream keepalive period.
func (c *Config) PingInterval() time.Duration {
	return seconds(c.WebSocket.PingIntervalSeconds)
}

// WSWriteTimeout bounds a single device stream write.
func (c *Config) WSWriteTimeout() time.Duration {
	return seconds(c.WebSocket.WriteTimeoutSeconds)
}

// ReadTimeout bounds reading a request.
func (c *Config) ReadTimeout() time.Duration {
	return seconds(c.HTTP.ReadTimeoutSeconds)
}

// WriteTimeout bounds writing a response.
func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.HTTP.WriteTimeoutSeconds)
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return seconds(c.HTTP.ShutdownTimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func minutes(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}
