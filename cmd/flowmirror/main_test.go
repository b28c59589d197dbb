package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkflow-ai/flowmirror/internal/app"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`app:
  environment: test
database:
  driver: sqlite
  path: %s
security:
  encryption_key: cli-test-key
jwt:
  secret: cli-jwt-secret
  expiry: 1h
backup:
  store: memory
`, filepath.Join(dir, "flowmirror.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func emptyInstance(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(n8n.APIKeyHeader) != "n8n-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"nextCursor":null}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLI_MigrateAndList(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database migrated")

	out, err = run(t, cfg, "provider", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestCLI_ProviderAddThenSync(t *testing.T) {
	cfg := writeConfig(t)
	srv := emptyInstance(t)

	out, err := run(t, cfg, "provider", "add", "--name", "local", "--base-url", srv.URL, "--api-key", "n8n-key")
	require.NoError(t, err)
	var added struct {
		Provider   map[string]interface{} `json:"provider"`
		Connection map[string]interface{} `json:"connection"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "local", added.Provider["name"])
	assert.Equal(t, true, added.Connection["connected"])

	out, err = run(t, cfg, "sync", "--type", "workflows")
	require.NoError(t, err)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "workflows", summary["sync_type"])
	assert.Equal(t, float64(1), summary["providers"])
	assert.Equal(t, float64(1), summary["succeeded"])
}

func TestCLI_SyncRejectsUnknownType(t *testing.T) {
	_, err := run(t, writeConfig(t), "sync", "--type", "everything")
	assert.ErrorContains(t, err, "invalid sync options")
}

func TestCLI_WorkflowRequiresUUID(t *testing.T) {
	_, err := run(t, writeConfig(t), "workflow", "archive", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid workflow id")
}

func TestCLI_TokenIsAccepted(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, path, "token", "--subject", "ops")
	require.NoError(t, err)

	var issued map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	require.NotEmpty(t, issued["token"])

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	claims, err := app.NewJWTManager(cfg).ValidateToken(issued["token"])
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "admin", claims.Scope)
}
