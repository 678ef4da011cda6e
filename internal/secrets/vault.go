package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/config"
)

// kvReader is the part of the Vault KV v2 client the manager needs.
type kvReader interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
}

// VaultManager implements the SecretManager interface for HashiCorp Vault KV v2.
type VaultManager struct {
	kv      kvReader
	enabled bool
	logger  *zap.Logger
}

var _ SecretManager = (*VaultManager)(nil)

// NewVaultManager builds a manager from cfg. When Vault is disabled it returns
// a manager whose IsEnabled reports false.
func NewVaultManager(cfg *config.Config, baseLogger *zap.Logger) (*VaultManager, error) {
	log := baseLogger.Named("vault-manager")
	if !cfg.VaultEnabled {
		log.Info("Vault secret manager is disabled via configuration.")
		return &VaultManager{logger: log}, nil
	}

	log.Info("Initializing Vault secret manager", zap.String("address", cfg.VaultAddr), zap.String("mount", cfg.VaultMountPath))

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.VaultAddr
	vConfig.Timeout = 10 * time.Second

	tlsConfig := &vault.TLSConfig{
		CACert:   cfg.VaultCACert,
		Insecure: cfg.VaultSkipVerify,
	}
	if err := vConfig.ConfigureTLS(tlsConfig); err != nil {
		return nil, fmt.Errorf("failed to configure Vault TLS: %w", err)
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.VaultToken != "" {
		log.Info("Using Vault token authentication")
		client.SetToken(cfg.VaultToken)
	} else {
		log.Warn("Vault is enabled, but no VAULT_TOKEN provided; relying on the client's token helper or VAULT_TOKEN file.")
	}

	mount := cfg.VaultMountPath
	if mount == "" {
		mount = "secret"
	}
	return &VaultManager{
		kv:      client.KVv2(mount),
		enabled: true,
		logger:  log,
	}, nil
}

// IsEnabled reports whether Vault is configured and a client exists.
func (m *VaultManager) IsEnabled() bool {
	return m != nil && m.enabled && m.kv != nil
}

// GetCredentials retrieves the MongoDB username/password pair from Vault KV v2.
func (m *VaultManager) GetCredentials(ctx context.Context, path, usernameKey, passwordKey string) (*Credentials, error) {
	if !m.IsEnabled() {
		return nil, fmt.Errorf("vault manager is not enabled or not initialized")
	}
	if path == "" {
		return nil, fmt.Errorf("vault secret path cannot be empty")
	}
	if usernameKey == "" {
		usernameKey = "username"
	}
	if passwordKey == "" {
		passwordKey = "password"
	}

	log := m.logger.With(zap.String("vault_path", path))
	log.Info("Reading MongoDB credentials from Vault KV v2", zap.String("username_key", usernameKey), zap.String("password_key", passwordKey))

	secret, err := m.kv.Get(ctx, path)
	if err != nil {
		var respErr *vault.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound || errors.Is(err, vault.ErrSecretNotFound) {
			log.Error("Secret not found in Vault", zap.Error(err))
			return nil, fmt.Errorf("secret '%s' not found in Vault: %w", path, err)
		}
		log.Error("Failed to read secret from Vault", zap.Error(err))
		return nil, fmt.Errorf("failed to read secret '%s' from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret data for '%s' is empty", path)
	}

	passwordVal, ok := secret.Data[passwordKey]
	if !ok || passwordVal == nil {
		return nil, fmt.Errorf("password key '%s' not found or is null in secret '%s'", passwordKey, path)
	}
	password, ok := passwordVal.(string)
	if !ok || password == "" {
		return nil, fmt.Errorf("password value for key '%s' in secret '%s' is not a non-empty string", passwordKey, path)
	}

	username := ""
	if u, ok := secret.Data[usernameKey].(string); ok {
		username = u
	}

	log.Info("Successfully retrieved credentials from Vault")
	return &Credentials{Username: username, Password: password, Source: "vault"}, nil
}
