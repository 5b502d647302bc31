package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the values loaded from config.env and the environment.
type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	Store    string `mapstructure:"STORE"`
	DSN      string `mapstructure:"DSN"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	MidtransServerKey  string        `mapstructure:"MIDTRANS_SERVER_KEY"`
	MidtransProduction bool          `mapstructure:"MIDTRANS_PRODUCTION"`
	PaymentCurrency    string        `mapstructure:"PAYMENT_CURRENCY"`
	CheckoutSuccessURL string        `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL  string        `mapstructure:"CHECKOUT_CANCEL_URL"`
	GatewayTimeout     time.Duration `mapstructure:"GATEWAY_TIMEOUT"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	LeaderboardTTL time.Duration `mapstructure:"LEADERBOARD_TTL"`

	KafkaBrokers           string `mapstructure:"KAFKA_BROKERS"`
	KafkaGroupID           string `mapstructure:"KAFKA_GROUP_ID"`
	KafkaContestEndedTopic string `mapstructure:"KAFKA_CONTEST_ENDED_TOPIC"`

	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                 ":8080",
	"STORE":                     "postgres",
	"DSN":                       "",
	"JWT_SECRET":                "",
	"JWT_TTL":                   7 * 24 * time.Hour,
	"MIDTRANS_SERVER_KEY":       "",
	"MIDTRANS_PRODUCTION":       false,
	"PAYMENT_CURRENCY":          "idr",
	"CHECKOUT_SUCCESS_URL":      "http://localhost:5173/payment/success?session_id={SESSION_ID}",
	"CHECKOUT_CANCEL_URL":       "http://localhost:5173/payment/cancel",
	"GATEWAY_TIMEOUT":           10 * time.Second,
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"LEADERBOARD_TTL":           time.Minute,
	"KAFKA_BROKERS":             "",
	"KAFKA_GROUP_ID":            "contest-platform",
	"KAFKA_CONTEST_ENDED_TOPIC": "contest.ended",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
	"CORS_ORIGINS":              "*",
}

// Load reads config.env from path (if present) and overlays the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var problems []string
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	switch c.Store {
	case "postgres":
		if c.DSN == "" {
			problems = append(problems, "DSN is required for the postgres store")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE %q", c.Store))
	}
	if c.MidtransServerKey == "" {
		problems = append(problems, "MIDTRANS_SERVER_KEY is required")
	}
	if c.GatewayTimeout <= 0 {
		problems = append(problems, "GATEWAY_TIMEOUT must be positive")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Brokers splits the comma-separated KAFKA_BROKERS value.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c Config) Origins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
