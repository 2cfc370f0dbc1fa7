package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config is the catalog API configuration. Values come from SCANGO_-prefixed
// environment variables, flags, or YAML files; a .env file is loaded first
// when present.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SCANGO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxBodyBytes int64  `default:"65536" usage:"Maximum POST /products body size" flag:"max-body-bytes"`
	Admin        AdminConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AdminConfig guards product registration.
type AdminConfig struct {
	RequireKey   bool   `default:"false" usage:"Require an api_key header on POST /products" flag:"admin-require-key"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SCANGO_ADMIN_API_KEY_PEPPER)" flag:"api-key-pepper"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env, then environment, flags, and YAML files, and applies
// platform defaults.
func LoadConfig() (*Config, error) {
	if err := LoadDotenv(".env"); err != nil {
		return nil, err
	}
	return loadConfig(os.Args[1:], "config.yaml", "/etc/scango/config.yaml")
}

func loadConfig(args []string, files ...string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SCANGO",
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotenv loads environment variables from the given files. Missing files
// are skipped; variables already set in the environment win.
func LoadDotenv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

// Validate reports configuration that cannot start the server.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SCANGO_DATABASE_URL or DATABASE_URL")
	}
	if c.Admin.RequireKey && c.Admin.APIKeyPepper == "" {
		return errors.New("admin key check enabled without SCANGO_ADMIN_API_KEY_PEPPER")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the SCANGO_ settings.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
