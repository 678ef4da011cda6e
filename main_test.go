package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/logger"
	"github.com/arwahdevops/mongosync/internal/metrics"
	"github.com/arwahdevops/mongosync/internal/secrets"
	projectSync "github.com/arwahdevops/mongosync/internal/sync"
)

type fakeSecretManager struct {
	creds *secrets.Credentials
	err   error
	calls int
}

func (f *fakeSecretManager) GetCredentials(context.Context, string, string, string) (*secrets.Credentials, error) {
	f.calls++
	return f.creds, f.err
}

func (f *fakeSecretManager) IsEnabled() bool { return true }

func useTestLogger(t *testing.T) {
	t.Helper()
	prev := logger.Log
	logger.Log = zaptest.NewLogger(t)
	t.Cleanup(func() { logger.Log = prev })
}

func TestRun_SchemaErrorsExitOne(t *testing.T) {
	useTestLogger(t)
	dir := t.TempDir()
	invalid := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"engine_execution_state": {"indexes": {"key": {"a": 1}}}}`), 0o600))
	nullDoc := filepath.Join(dir, "null.json")
	require.NoError(t, os.WriteFile(nullDoc, []byte("null\n"), 0o600))
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	commentOnly := filepath.Join(dir, "comment.yml")
	require.NoError(t, os.WriteFile(commentOnly, []byte("# collections go here\n"), 0o600))

	testCases := []struct {
		name string
		path string
	}{
		{name: "shape mismatch", path: invalid},
		{name: "missing file", path: filepath.Join(dir, "absent.json")},
		{name: "null document", path: nullDoc},
		{name: "empty yaml", path: empty},
		{name: "comment-only yaml", path: commentOnly},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{DBName: "engine", SchemaFile: tc.path, Mode: config.ModeApply}
			assert.Equal(t, exitSchemaError, run(cfg))
		})
	}
}

func TestApplyCliOverrides(t *testing.T) {
	useTestLogger(t)
	t.Setenv("SCHEMA_FILE", "from-env.json")
	t.Setenv("MODE", "apply")
	t.Setenv("DB_NAME", "env_db")
	t.Setenv("MONGO_URI", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"-s", "schemas/engine-iac.json", "--mode", "plan", "--uri", "mongodb://u:p@h:27017"}))

	require.NoError(t, applyCliOverrides(fs))

	assert.Equal(t, "schemas/engine-iac.json", os.Getenv("SCHEMA_FILE"))
	assert.Equal(t, "plan", os.Getenv("MODE"))
	assert.Equal(t, "mongodb://u:p@h:27017", os.Getenv("MONGO_URI"))
	assert.Equal(t, "env_db", os.Getenv("DB_NAME"), "flags not given leave env untouched")
}

func TestLoadCredentials(t *testing.T) {
	useTestLogger(t)

	testCases := []struct {
		name     string
		cfg      config.Config
		manager  *fakeSecretManager
		expected *secrets.Credentials
		wantErr  bool
	}{
		{
			name:     "password from env",
			cfg:      config.Config{Mongo: config.MongoConfig{User: "engine", Password: "pw"}},
			expected: &secrets.Credentials{Username: "engine", Password: "pw", Source: "env"},
		},
		{
			name:    "password without user",
			cfg:     config.Config{Mongo: config.MongoConfig{Password: "pw"}},
			wantErr: true,
		},
		{
			name:     "nothing configured",
			cfg:      config.Config{},
			expected: nil,
		},
		{
			name:     "from secret manager",
			cfg:      config.Config{MongoSecretPath: "mongo/engine"},
			manager:  &fakeSecretManager{creds: &secrets.Credentials{Username: "vault", Password: "vpw"}},
			expected: &secrets.Credentials{Username: "vault", Password: "vpw"},
		},
		{
			name:     "secret without username falls back to MONGO_USER",
			cfg:      config.Config{MongoSecretPath: "mongo/engine", Mongo: config.MongoConfig{User: "engine"}},
			manager:  &fakeSecretManager{creds: &secrets.Credentials{Password: "vpw"}},
			expected: &secrets.Credentials{Username: "engine", Password: "vpw"},
		},
		{
			name:    "secret with empty password",
			cfg:     config.Config{MongoSecretPath: "mongo/engine"},
			manager: &fakeSecretManager{creds: &secrets.Credentials{Username: "vault"}},
			wantErr: true,
		},
		{
			name:    "secret manager failure",
			cfg:     config.Config{MongoSecretPath: "mongo/engine"},
			manager: &fakeSecretManager{err: errors.New("secret not found")},
			wantErr: true,
		},
		{
			name:    "secret path without managers",
			cfg:     config.Config{MongoSecretPath: "mongo/engine"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var managers []secrets.SecretManager
			if tc.manager != nil {
				managers = append(managers, tc.manager)
			}
			cfg := tc.cfg
			creds, err := loadCredentials(context.Background(), &cfg, managers)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, creds)
		})
	}
}

func TestProcessResult(t *testing.T) {
	useTestLogger(t)

	testCases := []struct {
		name     string
		result   *projectSync.Result
		expected int
	}{
		{name: "converged", result: &projectSync.Result{Mode: config.ModeApply}, expected: exitOK},
		{
			name: "failed operations still exit zero",
			result: &projectSync.Result{
				Mode: config.ModeApply,
				Operations: []projectSync.Operation{
					{Kind: projectSync.OpCreateIndex, Collection: "c", Index: "a", Outcome: metrics.OutcomeFailure, Err: errors.New("boom")},
				},
				Err: errors.New("boom"),
			},
			expected: exitOK,
		},
		{
			name: "plan",
			result: &projectSync.Result{
				Mode:       config.ModePlan,
				Operations: []projectSync.Operation{{Kind: projectSync.OpDropCollection, Collection: "legacy_audit", Outcome: metrics.OutcomePlanned}},
			},
			expected: exitOK,
		},
		{name: "interrupted", result: &projectSync.Result{Cancelled: true, Err: context.Canceled}, expected: exitInterrupted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, processResult(tc.result))
		})
	}
}
