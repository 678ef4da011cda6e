package secrets

import "context"

// Credentials holds the MongoDB username and password used to build the connection string.
type Credentials struct {
	Username string
	Password string
	// Source names where the pair came from ("env", "vault"), for logs only.
	Source string
}

// SecretManager defines the interface for interacting with different secret backends.
type SecretManager interface {
	// GetCredentials reads the secret at pathOrID and picks the values
	// stored under usernameKey and passwordKey.
	GetCredentials(ctx context.Context, pathOrID string, usernameKey string, passwordKey string) (*Credentials, error)

	// IsEnabled checks if this specific secret manager is configured and enabled.
	IsEnabled() bool
}
