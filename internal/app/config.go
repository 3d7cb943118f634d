package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/ticket-admin/internal/domain/product"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (TICKETS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (TICKETS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Database    DatabaseConfig
	Catalog     CatalogConfig
	Reconcile   ReconcileConfig
	Session     SessionConfig
	Debug       DebugConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DatabaseConfig tunes the connection pool.
type DatabaseConfig struct {
	MaxConns int32 `default:"10" usage:"Maximum pool connections"`
	MinConns int32 `default:"0" usage:"Minimum idle pool connections"`
}

// CatalogConfig locates the product table and its column aliases. Alias
// lists are ordered: the first present column wins on read, the first entry
// is written on insert.
type CatalogConfig struct {
	Table        string   `default:"producto" usage:"Product table name"`
	CodeColumn   string   `default:"codigo" usage:"Product code column"`
	StockColumn  string   `default:"cantidad" usage:"Stock quantity column"`
	NameColumns  []string `default:"nombre,nombre_del_producto,name" usage:"Product name column aliases"`
	PriceColumns []string `default:"precio_unitario,precio,price" usage:"Unit price column aliases"`
	KindColumns  []string `default:"tipo,kind" usage:"Product kind column aliases"`
}

// Columns converts the config into the catalog column mapping.
func (c CatalogConfig) Columns() product.Columns {
	return product.Columns{
		Table: c.Table,
		Code:  c.CodeColumn,
		Stock: c.StockColumn,
		Name:  c.NameColumns,
		Price: c.PriceColumns,
		Kind:  c.KindColumns,
	}
}

// ReconcileConfig bounds the add-product transaction.
type ReconcileConfig struct {
	Timeout       time.Duration `default:"5s" usage:"Deadline of one add-product transaction"`
	MaxRetries    uint64        `default:"3" usage:"Retries after serialization failures or deadlocks"`
	RetryInterval time.Duration `default:"20ms" usage:"Initial backoff between retries"`
}

// SessionConfig configures API key and token authentication.
type SessionConfig struct {
	APIKeyPepper string        `usage:"HMAC pepper for API key hashing (TICKETS_SESSION_API_KEY_PEPPER)" flag:"api-key-pepper"`
	TokenKey     string        `usage:"HS256 signing key for session tokens; empty disables login" flag:"token-key"`
	Issuer       string        `default:"ticket-admin" usage:"Session token issuer"`
	TTL          time.Duration `default:"12h" usage:"Session token lifetime"`
}

// DebugConfig gates the schema inspection endpoints.
type DebugConfig struct {
	Enabled    bool `default:"false" usage:"Expose /api/debug routes" flag:"debug"`
	SampleRows int  `default:"5" usage:"Rows returned by /api/debug/db"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
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

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	var cfg Config
	base.EnvPrefix = "TICKETS"
	base.Files = []string{"config.yaml", "/etc/tickets/config.yaml"}
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
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
		return errors.New("database URL is required: set TICKETS_DATABASE_URL or DATABASE_URL")
	case c.Catalog.Table == "" || c.Catalog.CodeColumn == "" || c.Catalog.StockColumn == "":
		return errors.New("catalog table, code column and stock column are required")
	case len(c.Catalog.PriceColumns) == 0:
		return errors.New("at least one catalog price column is required")
	case c.Session.TokenKey != "" && len(c.Session.TokenKey) < 32:
		return errors.New("session token key must be at least 32 bytes")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided DATABASE_URL and PORT onto the
// TICKETS_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
