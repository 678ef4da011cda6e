package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
)

type Mode string

const (
	ModeApply Mode = "apply" // Default, issues create/drop operations
	ModePlan  Mode = "plan"  // Logs every decision, mutates nothing
)

type Config struct {
	// Reconcile Settings
	DBName           string        `env:"DB_NAME,notEmpty"`
	SchemaFile       string        `env:"SCHEMA_FILE,notEmpty"`
	Mode             Mode          `env:"MODE" envDefault:"apply"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"30s"` // Max time for *one* create/drop/list call

	// Connection Retry
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`

	// Observability & Debugging
	EnableJsonLogging bool   `env:"ENABLE_JSON_LOGGING" envDefault:"false"` // Log in JSON format
	EnablePprof       bool   `env:"ENABLE_PPROF" envDefault:"false"`        // Enable pprof endpoints
	MetricsPort       int    `env:"METRICS_PORT" envDefault:"0"`            // Port for /metrics, /healthz, /readyz; 0 disables the server
	PushgatewayURL    string `env:"PUSHGATEWAY_URL"`                        // Push run metrics here when set
	DebugMode         bool   `env:"DEBUG_MODE" envDefault:"false"`

	// Vault
	VaultEnabled     bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr        string `env:"VAULT_ADDR" envDefault:"http://127.0.0.1:8200"`
	VaultToken       string `env:"VAULT_TOKEN"`
	VaultCACert      string `env:"VAULT_CACERT"`
	VaultSkipVerify  bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`
	VaultMountPath   string `env:"VAULT_MOUNT_PATH" envDefault:"secret"`
	MongoSecretPath  string `env:"MONGO_SECRET_PATH"`
	MongoUsernameKey string `env:"MONGO_USERNAME_KEY" envDefault:"username"`
	MongoPasswordKey string `env:"MONGO_PASSWORD_KEY" envDefault:"password"`

	Mongo MongoConfig `envPrefix:"MONGO_"`
}

type MongoConfig struct {
	URI        string `env:"URI"` // Full connection string; takes precedence over host/port
	Host       string `env:"HOST" envDefault:"localhost"`
	Port       int    `env:"PORT" envDefault:"27017"`
	User       string `env:"USER"`
	Password   string `env:"PASSWORD"` // Prefer MONGO_SECRET_PATH + Vault in prod
	AuthSource string `env:"AUTH_SOURCE" envDefault:"admin"`
	TLS        bool   `env:"TLS" envDefault:"false"`
	AppName    string `env:"APP_NAME" envDefault:"mongosync"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	cfg.Mode = Mode(strings.ToLower(string(cfg.Mode)))
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that struct tags cannot express.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DBName) == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if strings.ContainsAny(cfg.DBName, `/\. "$`) {
		return fmt.Errorf("invalid database name %q: must not contain any of /\\. \"$ or spaces", cfg.DBName)
	}
	if strings.TrimSpace(cfg.SchemaFile) == "" {
		return fmt.Errorf("schema file path cannot be empty")
	}

	allowedModes := map[string]bool{
		string(ModeApply): true,
		string(ModePlan):  true,
	}
	if !allowedModes[string(cfg.Mode)] {
		return fmt.Errorf("invalid mode: %s. Valid options: %v", cfg.Mode, getMapKeys(allowedModes))
	}

	// Validasi port
	validatePort := func(port int, name string) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s port: %d", name, port)
		}
		return nil
	}
	if cfg.Mongo.URI == "" {
		if strings.TrimSpace(cfg.Mongo.Host) == "" {
			return fmt.Errorf("either MONGO_URI or MONGO_HOST must be set")
		}
		if err := validatePort(cfg.Mongo.Port, "mongo"); err != nil {
			return err
		}
	} else {
		u, err := url.Parse(cfg.Mongo.URI)
		if err != nil {
			return fmt.Errorf("invalid MONGO_URI: %w", err)
		}
		if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			return fmt.Errorf("invalid MONGO_URI scheme %q: expected mongodb or mongodb+srv", u.Scheme)
		}
	}
	if cfg.MetricsPort != 0 {
		if err := validatePort(cfg.MetricsPort, "metrics"); err != nil {
			return err
		}
	}

	// Validasi nilai numerik
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if cfg.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive")
	}
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if cfg.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative")
	}

	if cfg.PushgatewayURL != "" {
		if _, err := url.ParseRequestURI(cfg.PushgatewayURL); err != nil {
			return fmt.Errorf("invalid PUSHGATEWAY_URL: %w", err)
		}
	}
	if cfg.VaultEnabled && cfg.VaultAddr == "" {
		return fmt.Errorf("VAULT_ADDR is required when VAULT_ENABLED is true")
	}

	return nil
}

func getMapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Sort for consistent error messages
	return keys
}
