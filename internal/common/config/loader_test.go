package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt:
    secret: test-secret
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "passport-manager", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 15, cfg.Estimation.MinimumDays)
	assert.Equal(t, 200, cfg.Estimation.DefaultWorkload)
	assert.Equal(t, 5, cfg.Workflow.NumberAttempts)
	assert.Equal(t, "passport-applications", cfg.Search.Index)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Workflow.EnforceOfficerScope)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("PASSPORT_TEST_SECRET", "from-env")
	path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt:
    secret: ${PASSPORT_TEST_SECRET}
workflow:
  enforce_officer_scope: false
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	assert.False(t, cfg.Workflow.EnforceOfficerScope)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown driver",
			body:    "database:\n  driver: mysql\nauth:\n  jwt:\n    secret: s\n",
			wantErr: "database.driver",
		},
		{
			name:    "postgres without host",
			body:    "database:\n  driver: postgres\nauth:\n  jwt:\n    secret: s\n",
			wantErr: "database.postgres.host",
		},
		{
			name:    "email without sender",
			body:    "database:\n  driver: memory\nauth:\n  jwt:\n    secret: s\nnotifications:\n  email:\n    enabled: true\n",
			wantErr: "from_email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"verify-stage": {Enabled: false, MaxJobsActive: 2, Timeout: 1000, MaxRetries: 1},
	}}

	assert.Equal(t, 2, GetWorkerConfig(cfg, "verify-stage").MaxJobsActive)
	assert.Equal(t, 5, GetWorkerConfig(cfg, "send-notification").MaxJobsActive)
	assert.False(t, IsWorkerEnabled(cfg, "verify-stage"))
	assert.True(t, IsWorkerEnabled(cfg, "send-notification"))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, "1.5s", GetDuration(1500).String())
}

func TestLoadFromFile_UnsetPlaceholderIsMissing(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt:
    secret: ${PASSPORT_UNSET_SECRET}
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt.secret")
}
