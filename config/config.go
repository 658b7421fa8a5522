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
	// HTTP server
	App AppConfig `mapstructure:"app"`

	// Relational store
	Database DatabaseConfig `mapstructure:"database"`
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis (sessions, rate limiting)
	Redis RedisConfig `mapstructure:"redis"`

	// NATS (audit events)
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Upstreams
	Discord DiscordConfig `mapstructure:"discord"`
	Captcha CaptchaConfig `mapstructure:"captcha"`

	Session   SessionConfig   `mapstructure:"session"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	URLFilter URLFilterConfig `mapstructure:"url_filter"`
}

type AppConfig struct {
	Name        string   `mapstructure:"name"`
	Addr        string   `mapstructure:"addr"`
	Env         string   `mapstructure:"env"`
	LogLevel    string   `mapstructure:"log_level"`
	LogEncoding string   `mapstructure:"log_encoding"`
	LogOutput   []string `mapstructure:"log_output"`
}

type DatabaseConfig struct {
	// Driver is either "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type DiscordConfig struct {
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	BotToken         string        `mapstructure:"bot_token"`
	LoginRedirectURI string        `mapstructure:"login_redirect_uri"`
	JoinRedirectURI  string        `mapstructure:"join_redirect_uri"`
	APIBase          string        `mapstructure:"api_base"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type CaptchaConfig struct {
	Secret    string        `mapstructure:"secret"`
	SiteKey   string        `mapstructure:"site_key"`
	VerifyURL string        `mapstructure:"verify_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Secret       string        `mapstructure:"secret"`
	Expiration   time.Duration `mapstructure:"expiration"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type AdminConfig struct {
	// IDs lists the Discord user ids allowed onto the admin routes.
	IDs []string `mapstructure:"ids"`
}

type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type URLFilterConfig struct {
	// TrustMisses lets GET /invite/:x answer 404 from the filter alone.
	TrustMisses bool          `mapstructure:"trust_misses"`
	Refresh     time.Duration `mapstructure:"refresh"`
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Admin.IDs = normalizeIDs(cfg.Admin.IDs)

	return &cfg, nil
}

// Validate reports every required option that is missing.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		key   string
		value string
	}{
		{"discord.client_id", c.Discord.ClientID},
		{"discord.client_secret", c.Discord.ClientSecret},
		{"discord.bot_token", c.Discord.BotToken},
		{"discord.login_redirect_uri", c.Discord.LoginRedirectURI},
		{"discord.join_redirect_uri", c.Discord.JoinRedirectURI},
		{"captcha.secret", c.Captcha.Secret},
		{"session.secret", c.Session.Secret},
	}
	for _, opt := range required {
		if strings.TrimSpace(opt.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", opt.key))
		}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}

	if c.Discord.LoginRedirectURI != "" && c.Discord.LoginRedirectURI == c.Discord.JoinRedirectURI {
		errs = append(errs, errors.New("discord.login_redirect_uri and discord.join_redirect_uri must differ"))
	}

	if c.URLFilter.TrustMisses && c.Database.Driver == "postgres" && !c.NATS.Enabled {
		errs = append(errs, errors.New("url_filter.trust_misses with a postgres store requires nats.enabled"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "invitegate")
	v.SetDefault("app.addr", ":3000")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.log_encoding", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./urls.db")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "invitegate")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.name", "invitegate")
	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")

	v.SetDefault("prometheus.enabled", false)
	v.SetDefault("prometheus.port", 9090)
	v.SetDefault("prometheus.path", "/metrics")

	v.SetDefault("discord.client_id", "")
	v.SetDefault("discord.client_secret", "")
	v.SetDefault("discord.bot_token", "")
	v.SetDefault("discord.login_redirect_uri", "")
	v.SetDefault("discord.join_redirect_uri", "")
	v.SetDefault("discord.api_base", "https://discord.com/api/v10")
	v.SetDefault("discord.timeout", 10*time.Second)

	v.SetDefault("captcha.secret", "")
	v.SetDefault("captcha.site_key", "")
	v.SetDefault("captcha.verify_url", "https://hcaptcha.com/siteverify")
	v.SetDefault("captcha.timeout", 10*time.Second)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.expiration", 24*time.Hour)
	v.SetDefault("session.cookie_secure", false)

	v.SetDefault("admin.ids", []string{})

	v.SetDefault("rate_limit.max_requests", 30)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("url_filter.trust_misses", false)
	v.SetDefault("url_filter.refresh", 10*time.Minute)
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.addr", "APP_ADDR")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.log_level", "LOG_LEVEL")

	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.path", "DB_PATH")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.enabled", "NATS_ENABLED")
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Discord application
	v.BindEnv("discord.client_id", "CLIENT_ID")
	v.BindEnv("discord.client_secret", "CLIENT_SECRET")
	v.BindEnv("discord.bot_token", "BOT_TOKEN")
	v.BindEnv("discord.login_redirect_uri", "LOGIN_REDIRECT_URI")
	v.BindEnv("discord.join_redirect_uri", "REDIRECT_URI")

	// hCaptcha
	v.BindEnv("captcha.secret", "HCAPTCHA_SECRET")
	v.BindEnv("captcha.site_key", "HCAPTCHA_SITE_KEY")

	v.BindEnv("session.secret", "SESSION_SECRET")
	v.BindEnv("admin.ids", "ADMIN_USER_ID")

	v.BindEnv("url_filter.trust_misses", "URL_FILTER_TRUST_MISSES")
}

// normalizeIDs accepts both list entries and comma separated env values.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
