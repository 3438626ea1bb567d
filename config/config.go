// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		IdleTimeout  time.Duration
	}
	DB struct {
		URL          string
		Host         string
		Port         string
		User         string
		Password     string
		DBName       string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		ConnLifetime time.Duration
		QueryTimeout time.Duration
	}
	Stripe struct {
		SecretKey      string
		PublishableKey string
		WebhookSecret  string
		PriceSilver    string
		PriceGold      string
		SuccessURL     string
		CancelURL      string
		Timeout        time.Duration
	}
	Telegram struct {
		Token       string
		AdminChatID int64
	}
	Log struct {
		Level       string
		Development bool
	}
	ShutdownTimeout time.Duration
}

// envBindings maps config keys to the environment variables that may set them,
// in order of precedence.
var envBindings = map[string][]string{
	"server.port":           {"PORT", "SERVER_PORT"},
	"server.readtimeout":    {"SERVER_READ_TIMEOUT"},
	"server.writetimeout":   {"SERVER_WRITE_TIMEOUT"},
	"server.idletimeout":    {"SERVER_IDLE_TIMEOUT"},
	"db.url":                {"DATABASE_URL"},
	"db.host":               {"DB_HOST"},
	"db.port":               {"DB_PORT"},
	"db.user":               {"DB_USER"},
	"db.password":           {"DB_PASSWORD"},
	"db.dbname":             {"DB_NAME"},
	"db.sslmode":            {"DB_SSL_MODE"},
	"db.maxopenconns":       {"DB_MAX_OPEN_CONNS"},
	"db.maxidleconns":       {"DB_MAX_IDLE_CONNS"},
	"db.connlifetime":       {"DB_CONN_LIFETIME"},
	"db.querytimeout":       {"DB_QUERY_TIMEOUT"},
	"stripe.secretkey":      {"STRIPE_SECRET_KEY", "STRIPE_API_KEY"},
	"stripe.publishablekey": {"STRIPE_PUBLISHABLE_KEY"},
	"stripe.webhooksecret":  {"STRIPE_WEBHOOK_SECRET", "STRIPE_ENDPOINT_SECRET"},
	"stripe.pricesilver":    {"PRICE_SILVER"},
	"stripe.pricegold":      {"PRICE_GOLD"},
	"stripe.successurl":     {"SUCCESS_URL"},
	"stripe.cancelurl":      {"CANCEL_URL"},
	"stripe.timeout":        {"STRIPE_TIMEOUT"},
	"telegram.token":        {"TELEGRAM_TOKEN"},
	"telegram.adminchatid":  {"TELEGRAM_ADMIN_CHAT_ID"},
	"log.level":             {"LOG_LEVEL"},
	"log.development":       {"LOG_DEVELOPMENT"},
	"shutdowntimeout":       {"SHUTDOWN_TIMEOUT"},
}

// Load reads config.yaml/config.json when present, then .env, then the
// environment. Environment variables win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("$HOME/.faixabet")

	setDefaults(v)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			v.Set(key, os.Getenv(envVar))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.readtimeout", 10*time.Second)
	v.SetDefault("server.writetimeout", 30*time.Second)
	v.SetDefault("server.idletimeout", 120*time.Second)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.dbname", "faixabet")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.maxopenconns", 10)
	v.SetDefault("db.maxidleconns", 2)
	v.SetDefault("db.connlifetime", 30*time.Minute)
	v.SetDefault("db.querytimeout", 10*time.Second)
	v.SetDefault("stripe.successurl", "https://faixabet.com.br/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("stripe.cancelurl", "https://faixabet.com.br/cancel")
	v.SetDefault("stripe.timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("shutdowntimeout", 10*time.Second)
}

// DSN returns DB.URL when set, otherwise a keyword/value connection string
// built from the individual fields.
func (c *Config) DSN() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode,
	)
}

// Validate reports settings the HTTP service cannot start without.
// Missing plan prices are not fatal: those plans fail at checkout time.
func (c *Config) Validate() error {
	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Stripe.SuccessURL == "" || c.Stripe.CancelURL == "" {
		missing = append(missing, "SUCCESS_URL/CANCEL_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration is incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
