// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/db"
	"github.com/arwahdevops/mongosync/internal/logger"
	"github.com/arwahdevops/mongosync/internal/metrics"
	"github.com/arwahdevops/mongosync/internal/schema"
	"github.com/arwahdevops/mongosync/internal/secrets"
	"github.com/arwahdevops/mongosync/internal/server"
	projectSync "github.com/arwahdevops/mongosync/internal/sync" // Alias to avoid clashing with the standard library
)

const (
	exitOK          = 0
	exitSchemaError = 1
	exitInterrupted = 2
)

// flagEnv maps flag names to the environment variables they override.
var flagEnv = map[string]string{
	"schema":            "SCHEMA_FILE",
	"db":                "DB_NAME",
	"mode":              "MODE",
	"uri":               "MONGO_URI",
	"operation-timeout": "OPERATION_TIMEOUT",
	"metrics-port":      "METRICS_PORT",
}

func registerFlags(fs *pflag.FlagSet) {
	fs.StringP("schema", "s", "", "Override SCHEMA_FILE (desired schema, .json/.jsonc/.yaml)")
	fs.String("db", "", "Override DB_NAME")
	fs.String("mode", "", "Override MODE (apply, plan)")
	fs.String("uri", "", "Override MONGO_URI")
	fs.Duration("operation-timeout", 0, "Override OPERATION_TIMEOUT")
	fs.Int("metrics-port", 0, "Override METRICS_PORT (0 disables the HTTP server)")
}

func main() {
	flagSet := pflag.NewFlagSet("mongosync", pflag.ExitOnError)
	registerFlags(flagSet)
	_ = flagSet.Parse(os.Args[1:])

	// 1. Load environment variables (.env overrides)
	if err := godotenv.Overload(".env"); err != nil {
		stdlog.Printf("Warning: Could not load .env file: %v. Relying on environment variables.\n", err)
	}

	// 2. Initial config loading to get logger settings
	preCfg := &struct {
		EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
		DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	}{}
	if err := env.Parse(preCfg); err != nil {
		stdlog.Fatalf("Failed to parse pre-configuration for logger: %v", err)
	}

	// 3. Initialize Zap logger
	if err := logger.Init(preCfg.DebugMode, preCfg.EnableJsonLogging); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}

	// 4. CLI flags win over env, then load and validate the full configuration
	if err := applyCliOverrides(flagSet); err != nil {
		logger.Log.Fatal("Failed to apply CLI overrides", zap.Error(err))
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("Configuration loading error from environment", zap.Error(err))
	}
	logLoadedConfig(cfg)

	code := run(cfg)
	_ = logger.Log.Sync()
	os.Exit(code)
}

// run performs one reconciliation pass and returns the process exit code.
func run(cfg *config.Config) int {
	// 5. Parse the desired schema before touching the database
	desired, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		var perr *schema.ParseError
		if errors.As(err, &perr) {
			logger.Log.Error("Desired schema is invalid; nothing was changed",
				zap.String("schema_file", cfg.SchemaFile),
				zap.String("path", perr.Path),
				zap.Error(err))
		} else {
			logger.Log.Error("Failed to load desired schema", zap.String("schema_file", cfg.SchemaFile), zap.Error(err))
		}
		return exitSchemaError
	}
	if len(desired.Collections) == 0 {
		logger.Log.Warn("Desired schema declares no collections; every existing collection will be dropped",
			zap.String("schema_file", cfg.SchemaFile), zap.String("mode", string(cfg.Mode)))
	}
	logger.Log.Info("Desired schema loaded",
		zap.String("schema_file", cfg.SchemaFile),
		zap.Strings("collections", desired.Names()))

	// 6. Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 7. Initialize Metrics Store
	metricsStore := metrics.NewMetricsStore()

	// 8. Initialize Secret Managers
	vaultMgr, vaultErr := secrets.NewVaultManager(cfg, logger.Log)
	if vaultErr != nil {
		if cfg.VaultEnabled {
			logger.Log.Fatal("Failed to initialize Vault secret manager", zap.Error(vaultErr))
		}
		logger.Log.Warn("Could not initialize Vault secret manager (Vault not enabled or config error)", zap.Error(vaultErr))
	}
	availableSecretManagers := make([]secrets.SecretManager, 0)
	if vaultMgr != nil && vaultMgr.IsEnabled() {
		availableSecretManagers = append(availableSecretManagers, vaultMgr)
	}

	// 9. Load Credentials
	logger.Log.Info("Loading database credentials...")
	creds, err := loadCredentials(ctx, cfg, availableSecretManagers)
	if err != nil {
		logger.Log.Fatal("Failed to load MongoDB credentials", zap.Error(err))
	}

	// 10. Connect with retry
	conn, err := connectWithRetry(ctx, cfg, creds, metricsStore)
	if err != nil {
		logger.Log.Fatal("Failed to establish MongoDB connection", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			logger.Log.Error("Error closing mongo client", zap.Error(err))
		}
	}()

	// 11. Start HTTP Server for the duration of the pass
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if cfg.MetricsPort > 0 {
		go server.RunHTTPServer(serverCtx, cfg, metricsStore, conn, logger.Log)
	}

	// 12. Run the reconciliation pass
	reconciler := projectSync.NewReconciler(db.NewMongoHandle(conn), cfg, logger.Log, metricsStore)
	result := reconciler.Reconcile(ctx, desired)

	// 13. Process and log results
	exitCode := processResult(result)

	if cfg.PushgatewayURL != "" {
		if err := metricsStore.Push(cfg.PushgatewayURL, "mongosync", cfg.DBName); err != nil {
			logger.Log.Warn("Failed to push run metrics", zap.Error(err))
		} else {
			logger.Log.Info("Run metrics pushed", zap.String("pushgateway", cfg.PushgatewayURL))
		}
	}

	logger.Log.Info("Shutdown complete. Exiting.", zap.Int("exit_code", exitCode))
	return exitCode
}

// applyCliOverrides exports every flag given on the command line as the
// environment variable it overrides, so config.Load sees one source of truth.
func applyCliOverrides(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		envName, ok := flagEnv[f.Name]
		if !ok || err != nil {
			return
		}
		logValue := f.Value.String()
		if f.Name == "uri" {
			logValue = db.RedactURI(logValue)
		}
		logger.Log.Info("Overriding environment with CLI flag",
			zap.String("flag", f.Name), zap.String("env", envName), zap.String("cli_value", logValue))
		if setErr := os.Setenv(envName, f.Value.String()); setErr != nil {
			err = fmt.Errorf("set %s from --%s: %w", envName, f.Name, setErr)
		}
	})
	return err
}

// logLoadedConfig logs the final configuration in use.
func logLoadedConfig(cfg *config.Config) {
	passSource := "not set"
	if cfg.Mongo.Password != "" {
		passSource = "env var"
	} else if cfg.VaultEnabled && cfg.MongoSecretPath != "" {
		passSource = "vault"
	}

	logger.Log.Info("Final configuration in use",
		zap.String("db_name", cfg.DBName),
		zap.String("schema_file", cfg.SchemaFile),
		zap.String("mode", string(cfg.Mode)),
		zap.Duration("operation_timeout", cfg.OperationTimeout),
		zap.Bool("mongo_uri_set", cfg.Mongo.URI != ""), zap.String("mongo_host", cfg.Mongo.Host), zap.Int("mongo_port", cfg.Mongo.Port),
		zap.String("mongo_user", cfg.Mongo.User), zap.String("mongo_password_source", passSource),
		zap.String("mongo_auth_source", cfg.Mongo.AuthSource), zap.Bool("mongo_tls", cfg.Mongo.TLS),
		zap.Int("max_retries", cfg.MaxRetries), zap.Duration("retry_interval", cfg.RetryInterval), zap.Duration("connect_timeout", cfg.ConnectTimeout),
		zap.Bool("json_logging", cfg.EnableJsonLogging), zap.Bool("enable_pprof", cfg.EnablePprof), zap.Int("metrics_port", cfg.MetricsPort),
		zap.Bool("pushgateway_set", cfg.PushgatewayURL != ""), zap.Bool("debug_mode", cfg.DebugMode),
		zap.Bool("vault_enabled", cfg.VaultEnabled), zap.String("vault_addr", cfg.VaultAddr), zap.Bool("vault_token_present", cfg.VaultToken != ""),
		zap.String("mongo_secret_path", cfg.MongoSecretPath), zap.String("mongo_username_key", cfg.MongoUsernameKey), zap.String("mongo_password_key", cfg.MongoPasswordKey),
	)
}

// loadCredentials loads credentials from env vars or a secret manager.
// It returns nil credentials when none are configured: the server may not
// require authentication, or MONGO_URI already carries them.
func loadCredentials(ctx context.Context, cfg *config.Config, secretManagers []secrets.SecretManager) (*secrets.Credentials, error) {
	log := logger.Log.With(zap.String("db", cfg.DBName))

	if cfg.Mongo.Password != "" {
		log.Info("Using password directly from environment variable.")
		if cfg.Mongo.User == "" {
			return nil, errors.New("password provided via MONGO_PASSWORD, but MONGO_USER is missing")
		}
		return &secrets.Credentials{Username: cfg.Mongo.User, Password: cfg.Mongo.Password, Source: "env"}, nil
	}

	if cfg.MongoSecretPath == "" {
		log.Info("No MONGO_PASSWORD and no MONGO_SECRET_PATH configured; connecting without explicit credentials.")
		return nil, nil
	}

	if len(secretManagers) == 0 {
		log.Warn("Secret path is configured, but no secret managers are active/enabled.")
	}
	for _, sm := range secretManagers {
		log.Info("Attempting to retrieve credentials from configured secret manager",
			zap.String("manager_type", fmt.Sprintf("%T", sm)),
			zap.String("path_or_id", cfg.MongoSecretPath),
		)
		getCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		creds, err := sm.GetCredentials(getCtx, cfg.MongoSecretPath, cfg.MongoUsernameKey, cfg.MongoPasswordKey)
		cancel()

		if err == nil && creds != nil {
			if creds.Password == "" {
				return nil, fmt.Errorf("retrieved credentials from %T, but password field is empty", sm)
			}
			if creds.Username == "" {
				log.Warn("Username field empty in retrieved secret. Falling back to MONGO_USER.", zap.String("mongo_user", cfg.Mongo.User))
				creds.Username = cfg.Mongo.User
				if creds.Username == "" {
					return nil, errors.New("password retrieved, but username is missing in both secret and MONGO_USER")
				}
			}
			log.Info("Successfully retrieved credentials from secret manager.", zap.String("source", creds.Source))
			return creds, nil
		}
		log.Warn("Failed to retrieve credentials from secret manager. Trying next if available.",
			zap.String("manager_type", fmt.Sprintf("%T", sm)),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("could not load credentials from MONGO_SECRET_PATH=%s. Ensure VAULT_ENABLED=true and the secret exists, or set MONGO_PASSWORD", cfg.MongoSecretPath)
}

// connectWithRetry tries to connect to MongoDB, retrying on failure.
func connectWithRetry(ctx context.Context, cfg *config.Config, creds *secrets.Credentials, metricsStore *metrics.Store) (*db.Connector, error) {
	var user, password string
	if creds != nil {
		user, password = creds.Username, creds.Password
	}
	uri, err := db.BuildURI(cfg.Mongo, user, password)
	if err != nil {
		metricsStore.ErrorsTotal.WithLabelValues("connection", "").Inc()
		return nil, err
	}
	loggerOpts := logger.NewMongoLogSink(logger.Log).LoggerOptions(cfg.DebugMode)

	var lastErr error
	for i := 0; i <= cfg.MaxRetries; i++ {
		attemptStartTime := time.Now()
		if i > 0 {
			logger.Log.Warn("Retrying database connection",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", cfg.MaxRetries+1),
				zap.Duration("wait_interval", cfg.RetryInterval),
				zap.NamedError("previous_error", lastErr))
			timer := time.NewTimer(cfg.RetryInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				metricsStore.ErrorsTotal.WithLabelValues("connection_cancelled", "").Inc()
				return nil, fmt.Errorf("context cancelled while waiting to retry connection (attempt %d): %w; last error: %v", i+1, ctx.Err(), lastErr)
			}
		}

		logger.Log.Info("Attempting to connect",
			zap.String("uri", db.RedactURI(uri)),
			zap.String("dbname", cfg.DBName),
			zap.Int("attempt", i+1))

		conn, err := db.New(ctx, uri, cfg.DBName, cfg.Mongo.AppName, cfg.ConnectTimeout, loggerOpts)
		if err != nil {
			lastErr = fmt.Errorf("connect attempt %d/%d failed: %w", i+1, cfg.MaxRetries+1, err)
			continue
		}

		logger.Log.Info("Database connection successful", zap.Duration("connect_duration", time.Since(attemptStartTime)))
		return conn, nil
	}

	metricsStore.ErrorsTotal.WithLabelValues("connection_failed", "").Inc()
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", db.RedactURI(uri), cfg.MaxRetries+1, lastErr)
}

// processResult logs the outcome of the pass and picks the exit code.
// Failed database operations are reported but still exit 0.
func processResult(res *projectSync.Result) (exitCode int) {
	for _, op := range res.Failed() {
		logger.Log.Error("Operation FAILED",
			zap.String("operation", string(op.Kind)),
			zap.String("target", op.Target()),
			zap.Error(op.Err))
	}

	logger.Log.Info("-------------------- Reconciliation Summary --------------------",
		zap.String("database", res.Database),
		zap.String("mode", string(res.Mode)),
		zap.Bool("database_existed", res.DatabaseExisted),
		zap.Duration("duration", res.Duration),
		zap.Int("collections_created", res.Count(projectSync.OpCreateCollection, metrics.OutcomeSuccess)),
		zap.Int("collections_dropped", res.Count(projectSync.OpDropCollection, metrics.OutcomeSuccess)),
		zap.Int("indexes_created", res.Count(projectSync.OpCreateIndex, metrics.OutcomeSuccess)),
		zap.Int("indexes_dropped", res.Count(projectSync.OpDropIndex, metrics.OutcomeSuccess)),
		zap.Int("operations_planned", countOutcome(res, metrics.OutcomePlanned)),
		zap.Int("operations_failed", len(res.Failed())),
		zap.Int("collections_unchanged", res.UnchangedCollections),
		zap.Int("indexes_unchanged", res.UnchangedIndexes),
	)

	switch {
	case res.Cancelled:
		logger.Log.Warn("Overall reconciliation: INTERRUPTED before completion; re-run to converge.", zap.Error(res.Err))
		return exitInterrupted
	case res.Err != nil:
		logger.Log.Warn("Overall reconciliation: COMPLETED WITH ERRORS (see failed operations above).", zap.Error(res.Err))
	case res.Converged():
		logger.Log.Info("Overall reconciliation: database already matches the desired schema.")
	case res.Mode == config.ModePlan:
		logger.Log.Info("Overall reconciliation: PLAN COMPLETE, nothing was changed.")
	default:
		logger.Log.Info("Overall reconciliation: COMPLETED SUCCESSFULLY.")
	}
	return exitOK
}

func countOutcome(res *projectSync.Result, outcome string) int {
	n := 0
	for _, op := range res.Operations {
		if op.Outcome == outcome {
			n++
		}
	}
	return n
}
