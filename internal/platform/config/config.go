package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server captures process level configuration.
type Server struct {
	Addr          string `env:"CROWDFUND_ADDR" envDefault:":8080"`
	AdminIdentity string `env:"ADMIN_IDENTITY,required"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	JWT JWTConfig

	DatabaseURL string        `env:"DATABASE_URL"`
	TxTimeout   time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`

	Redis            RedisConfig
	ApprovalCacheTTL time.Duration `env:"APPROVAL_CACHE_TTL" envDefault:"5m"`

	Kafka KafkaConfig

	PayoutGatewayURL string        `env:"PAYOUT_GATEWAY_URL"`
	PayoutTimeout    time.Duration `env:"PAYOUT_TIMEOUT" envDefault:"10s"`
}

// DefaultSigningKey is the development JWT key used when JWT_SIGNING_KEY is unset.
const DefaultSigningKey = "dev-secret-key-change-in-production"

// JWTConfig holds bearer token settings shared by the server and cmd/devtoken.
// TokenTTL is the lifetime of minted tokens.
type JWTConfig struct {
	SigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"crowdfund"`
	TokenTTL   time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h"`
}

// UsesDefaultKey reports whether tokens are signed with DefaultSigningKey,
// which anyone can use to mint an administrator token.
func (c JWTConfig) UsesDefaultKey() bool {
	return c.SigningKey == DefaultSigningKey
}

func (c JWTConfig) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New("JWT_SIGNING_KEY must not be blank")
	}
	if c.TokenTTL <= 0 {
		return errors.New("JWT_TOKEN_TTL must be positive")
	}
	return nil
}

// RedisConfig holds client options. An empty URL disables the approval cache.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig holds outbox transport options. No brokers disables the outbox worker.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"crowdfund.events"`
	Group   string   `env:"KAFKA_GROUP" envDefault:"crowdfund-dashboard"`
}

// Load reads an optional .env file, then parses the environment.
func Load(files ...string) (Server, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Server{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// LoadJWT reads only the token settings, for tools that do not run the server.
func LoadJWT(files ...string) (JWTConfig, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return JWTConfig{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg JWTConfig
	if err := env.Parse(&cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return JWTConfig{}, err
	}
	return cfg, nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) Validate() error {
	if strings.TrimSpace(c.AdminIdentity) == "" {
		return errors.New("ADMIN_IDENTITY must not be blank")
	}
	if err := c.JWT.Validate(); err != nil {
		return err
	}
	if c.TxTimeout <= 0 {
		return errors.New("TX_TIMEOUT must be positive")
	}
	if c.PayoutTimeout <= 0 {
		return errors.New("PAYOUT_TIMEOUT must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// UsePostgres reports whether durable stores are configured.
func (c Server) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", level)
	}
	return l, nil
}
