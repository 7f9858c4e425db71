package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the terminal server configuration, loadable from environment
// variables (MANDALA_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (MANDALA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	PinPepper    string `usage:"HMAC pepper for staff PIN hashing" flag:"pin-pepper"`
	TokenSecret  string `usage:"HS256 secret for staff session tokens" flag:"token-secret"`
	PIN          PINConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PINConfig shapes the staff PIN pad.
type PINConfig struct {
	Length   int           `default:"4" usage:"Number of PIN digits"`
	Delay    time.Duration `default:"300ms" usage:"Pause between the last digit and sign-in"`
	Attempts int           `default:"5" usage:"Wrong PINs in a row before entry is locked"`
	Lockout  time.Duration `default:"1m" usage:"How long PIN entry stays locked"`
}

// SessionConfig controls terminal session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration `default:"30m" usage:"Close sessions idle for longer than this" flag:"session-idle-ttl"`
	SweepInterval time.Duration `default:"1m" usage:"How often idle sessions are swept"`
	TokenTTL      time.Duration `default:"12h" usage:"Staff token lifetime"`
	RememberTTL   time.Duration `default:"720h" usage:"Staff token lifetime on remembered terminals"`
	MaxOpen       int           `default:"500" usage:"Open sessions above which the server reports not ready"`
}

// RateLimitConfig controls the per-terminal token bucket.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MANDALA",
		Files:     []string{"config.yaml", "/etc/mandala/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set MANDALA_DATABASE_URL or DATABASE_URL")
	case c.PinPepper == "":
		return errors.New("PIN pepper is required: set MANDALA_PIN_PEPPER")
	case c.TokenSecret == "":
		return errors.New("token secret is required: set MANDALA_TOKEN_SECRET")
	case c.PIN.Length < 1:
		return errors.Errorf("invalid PIN length %d", c.PIN.Length)
	case c.PIN.Attempts < 1:
		return errors.Errorf("invalid PIN attempts %d", c.PIN.Attempts)
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the MANDALA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
