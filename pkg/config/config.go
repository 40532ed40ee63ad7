package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Eventing EventingConfig
	Gateways GatewaysConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OPTICORE_APP_ENV" required:"true"`
	Port         string `envconfig:"OPTICORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OPTICORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OPTICORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"OPTICORE_DB_DSN"`
	Driver string `envconfig:"OPTICORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OPTICORE_DB_HOST"`
	LegacyPort     int    `envconfig:"OPTICORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OPTICORE_DB_USER"`
	LegacyPassword string `envconfig:"OPTICORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"OPTICORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"OPTICORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OPTICORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OPTICORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OPTICORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OPTICORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"OPTICORE_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OPTICORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OPTICORE_REDIS_ADDR"`
	Password     string        `envconfig:"OPTICORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"OPTICORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OPTICORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OPTICORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OPTICORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OPTICORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OPTICORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type EventingConfig struct {
	// WebhookIdempotencyTTL bounds the redis fast-path duplicate guard. The
	// durable webhook_events ledger has no TTL and stays authoritative.
	WebhookIdempotencyTTL time.Duration `envconfig:"OPTICORE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type GatewaysConfig struct {
	Flow        FlowConfig
	MercadoPago MercadoPagoConfig
	PayPal      PayPalConfig
	NOWPayments NOWPaymentsConfig
}

type FlowConfig struct {
	APIKey    string `envconfig:"OPTICORE_FLOW_API_KEY"`
	SecretKey string `envconfig:"OPTICORE_FLOW_SECRET_KEY"`
}

type MercadoPagoConfig struct {
	AccessToken   string `envconfig:"OPTICORE_MERCADOPAGO_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"OPTICORE_MERCADOPAGO_WEBHOOK_SECRET"`
}

type PayPalConfig struct {
	ClientID  string `envconfig:"OPTICORE_PAYPAL_CLIENT_ID"`
	Secret    string `envconfig:"OPTICORE_PAYPAL_SECRET"`
	WebhookID string `envconfig:"OPTICORE_PAYPAL_WEBHOOK_ID"`
	Env       string `envconfig:"OPTICORE_PAYPAL_ENV" default:"sandbox"`
}

type NOWPaymentsConfig struct {
	APIKey    string `envconfig:"OPTICORE_NOWPAYMENTS_API_KEY"`
	IPNSecret string `envconfig:"OPTICORE_NOWPAYMENTS_IPN_SECRET"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
