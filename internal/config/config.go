package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "PAPERLESS"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabasePath   = "paperless.db"
	defaultBlobDriver     = "local"
	defaultBlobRoot       = "data/blobs"
	defaultBlobBaseURL    = "/blobs"
	defaultShareOrigin    = "http://localhost:8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultCookieName     = "paperless_session"
	defaultIssuer         = "paperless"
	defaultTokenTTL       = 12 * time.Hour
	defaultRateLimitRPS   = 20.0
	defaultRateLimitBurst = 40
	defaultIdleTimeout    = 30 * time.Minute
)

// Blob storage drivers.
const (
	BlobDriverNone  = "none"
	BlobDriverLocal = "local"
	BlobDriverGCS   = "gcs"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	SigningSecret string
	Issuer        string
	CookieName    string
	TokenTTL      time.Duration

	DatabaseDriver   string
	DatabasePath     string
	DatabaseDSN      string
	DatabaseMaxConns int32

	BlobDriver  string
	BlobRoot    string
	BlobBaseURL string
	BlobBucket  string

	ShareOrigin string

	RateLimitRPS   float64
	RateLimitBurst int

	EditorIdleTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.max_conns", 0)
	configViper.SetDefault("blobs.driver", defaultBlobDriver)
	configViper.SetDefault("blobs.root", defaultBlobRoot)
	configViper.SetDefault("blobs.base_url", defaultBlobBaseURL)
	configViper.SetDefault("share.origin", defaultShareOrigin)
	configViper.SetDefault("ratelimit.rps", defaultRateLimitRPS)
	configViper.SetDefault("ratelimit.burst", defaultRateLimitBurst)
	configViper.SetDefault("editor.idle_timeout", defaultIdleTimeout)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    splitList(configViper.GetStringSlice("http.allowed_origins")),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		Issuer:            configViper.GetString("auth.issuer"),
		CookieName:        configViper.GetString("auth.cookie_name"),
		TokenTTL:          configViper.GetDuration("auth.token_ttl"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:      configViper.GetString("database.path"),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		DatabaseMaxConns:  configViper.GetInt32("database.max_conns"),
		BlobDriver:        strings.ToLower(strings.TrimSpace(configViper.GetString("blobs.driver"))),
		BlobRoot:          configViper.GetString("blobs.root"),
		BlobBaseURL:       configViper.GetString("blobs.base_url"),
		BlobBucket:        configViper.GetString("blobs.bucket"),
		ShareOrigin:       strings.TrimRight(configViper.GetString("share.origin"), "/"),
		RateLimitRPS:      configViper.GetFloat64("ratelimit.rps"),
		RateLimitBurst:    configViper.GetInt("ratelimit.burst"),
		EditorIdleTimeout: configViper.GetDuration("editor.idle_timeout"),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	switch c.BlobDriver {
	case BlobDriverNone:
	case BlobDriverLocal:
		if strings.TrimSpace(c.BlobRoot) == "" {
			return fmt.Errorf("blobs.root is required for the local driver")
		}
	case BlobDriverGCS:
		if strings.TrimSpace(c.BlobBucket) == "" {
			return fmt.Errorf("blobs.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("blobs.driver must be none, local or gcs, got %q", c.BlobDriver)
	}
	if parsed, err := url.Parse(c.ShareOrigin); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("share.origin must be an absolute url, got %q", c.ShareOrigin)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("ratelimit settings must not be negative")
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
