package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAirflow(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/dags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dags": []map[string]any{
				{"dag_id": "etl_daily", "is_paused": false, "is_active": true},
				{"dag_id": "reporting", "is_paused": true, "is_active": true},
			},
			"total_entries": 2,
		})
	})
	mux.HandleFunc("/api/v1/dags/etl_daily/dagRuns", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dag_runs":      []map[string]any{{"dag_run_id": "run_1", "dag_id": "etl_daily", "state": "success"}},
			"total_entries": 1,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckCommand(t *testing.T) {
	srv := fakeAirflow(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--url", srv.URL, "--instance", "cli-test"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "etl_daily")
	assert.Contains(t, out.String(), "run_1")
	assert.Contains(t, out.String(), "success")
	assert.Contains(t, out.String(), "reporting")
}

func TestCheckCommand_MissingURL(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"check"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestLoadConfig_FileWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dagsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instance: from-file
remote:
  base_url: http://airflow.internal:8080
polling:
  list: "@every 30s"
`), 0o600))

	flags := &globalFlags{configFile: path, baseURL: "http://localhost:9090", username: "admin"}
	cfg, err := flags.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Instance)
	assert.Equal(t, "@every 30s", cfg.ListPollSchedule)
	assert.Equal(t, "http://localhost:9090", cfg.Remote.BaseURL)
	assert.Equal(t, "admin", cfg.Remote.Username)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	flags := &globalFlags{configFile: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := flags.loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "watch")
	assert.Contains(t, names, "check")
}
