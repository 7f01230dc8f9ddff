package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration. Services receive only the
// section they need.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OnMeta   OnMetaConfig
	PayRam   PayRamConfig
	Solana   SolanaConfig
	PayLink  *PayLinkConfig
	LogLevel string
	Sentry   SentryConfig
}

type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey string
}

// OnMetaConfig configures the OnMeta integration. WebhookSecret is the
// pre-shared HMAC key for inbound webhooks.
type OnMetaConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	LockTTL       time.Duration
}

type PayRamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SolanaConfig configures the on-chain verifier. Mints maps a token symbol
// to its SPL mint address; SOL is native and has no mint.
type SolanaConfig struct {
	RPCURL        string
	Timeout       time.Duration
	LookupRetries uint
	RetryDelay    time.Duration
	Mints         map[string]string
}

type SentryConfig struct {
	DSN         string
	Environment string
}

var envBindings = map[string]string{
	"http.port":             "PORT",
	"http.allowed_origins":  "HTTP_ALLOWED_ORIGINS",
	"database.host":         "DATABASE_HOST",
	"database.port":         "DATABASE_PORT",
	"database.user":         "DATABASE_USER",
	"database.password":     "DATABASE_PASSWORD",
	"database.name":         "DATABASE_NAME",
	"database.ssl_mode":     "DATABASE_SSL_MODE",
	"redis.host":            "REDIS_HOST",
	"redis.port":            "REDIS_PORT",
	"redis.password":        "REDIS_PASSWORD",
	"redis.db":              "REDIS_DB",
	"jwt.secret_key":        "JWT_SECRET_KEY",
	"onmeta.base_url":       "ONMETA_BASE_URL",
	"onmeta.api_key":        "ONMETA_API_KEY",
	"onmeta.webhook_secret": "ONMETA_WEBHOOK_SECRET",
	"onmeta.timeout":        "ONMETA_TIMEOUT",
	"payram.base_url":       "PAYRAM_BASE_URL",
	"payram.api_key":        "PAYRAM_API_KEY",
	"payram.timeout":        "PAYRAM_TIMEOUT",
	"solana.rpc_url":        "SOLANA_RPC_URL",
	"solana.timeout":        "SOLANA_TIMEOUT",
	"solana.lookup_retries": "SOLANA_LOOKUP_RETRIES",
	"solana.mints.usdc":     "SOLANA_USDC_MINT",
	"solana.mints.usdt":     "SOLANA_USDT_MINT",
	"solana.mints.tt":       "SOLANA_TT_MINT",
	"log.level":             "LOG_LEVEL",
	"sentry.dsn":            "SENTRY_DSN",
	"sentry.environment":    "SENTRY_ENVIRONMENT",
}

// Init points viper at an optional .env file and binds environment
// variables. Missing files are not an error.
func Init(file string) error {
	if file != "" {
		viper.SetConfigFile(file)
	}
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	setDefaults()

	if file == "" {
		return nil
	}
	return viper.ReadInConfig()
}

func setDefaults() {
	viper.SetDefault("http.port", "8080")
	viper.SetDefault("http.read_timeout", 15*time.Second)
	viper.SetDefault("http.write_timeout", 15*time.Second)
	viper.SetDefault("http.idle_timeout", 60*time.Second)
	viper.SetDefault("http.request_timeout", 60*time.Second)
	viper.SetDefault("http.shutdown_timeout", 30*time.Second)
	viper.SetDefault("http.allowed_origins", []string{"https://*", "http://*"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "vaultpay")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("onmeta.base_url", "https://api.onmeta.in")
	viper.SetDefault("onmeta.timeout", 10*time.Second)
	viper.SetDefault("onmeta.lock_ttl", 30*time.Second)

	viper.SetDefault("payram.timeout", 5*time.Second)

	viper.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("solana.timeout", 15*time.Second)
	viper.SetDefault("solana.lookup_retries", 3)
	viper.SetDefault("solana.retry_delay", 500*time.Millisecond)
	viper.SetDefault("solana.mints.usdc", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	viper.SetDefault("solana.mints.usdt", "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")

	viper.SetDefault("log.level", "INFO")
	viper.SetDefault("sentry.environment", "production")
}

// Load builds a Config from the current viper state.
func Load() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            viper.GetString("http.port"),
			ReadTimeout:     viper.GetDuration("http.read_timeout"),
			WriteTimeout:    viper.GetDuration("http.write_timeout"),
			IdleTimeout:     viper.GetDuration("http.idle_timeout"),
			RequestTimeout:  viper.GetDuration("http.request_timeout"),
			ShutdownTimeout: viper.GetDuration("http.shutdown_timeout"),
			AllowedOrigins:  viper.GetStringSlice("http.allowed_origins"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: viper.GetString("jwt.secret_key"),
		},
		OnMeta: OnMetaConfig{
			BaseURL:       viper.GetString("onmeta.base_url"),
			APIKey:        viper.GetString("onmeta.api_key"),
			WebhookSecret: viper.GetString("onmeta.webhook_secret"),
			Timeout:       viper.GetDuration("onmeta.timeout"),
			LockTTL:       viper.GetDuration("onmeta.lock_ttl"),
		},
		PayRam: PayRamConfig{
			BaseURL: viper.GetString("payram.base_url"),
			APIKey:  viper.GetString("payram.api_key"),
			Timeout: viper.GetDuration("payram.timeout"),
		},
		Solana: SolanaConfig{
			RPCURL:        viper.GetString("solana.rpc_url"),
			Timeout:       viper.GetDuration("solana.timeout"),
			LookupRetries: viper.GetUint("solana.lookup_retries"),
			RetryDelay:    viper.GetDuration("solana.retry_delay"),
			Mints: map[string]string{
				"USDC": viper.GetString("solana.mints.usdc"),
				"USDT": viper.GetString("solana.mints.usdt"),
				"TT":   viper.GetString("solana.mints.tt"),
			},
		},
		PayLink:  LoadPayLinkConfig(),
		LogLevel: viper.GetString("log.level"),
		Sentry: SentryConfig{
			DSN:         viper.GetString("sentry.dsn"),
			Environment: viper.GetString("sentry.environment"),
		},
	}
}
