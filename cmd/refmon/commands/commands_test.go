package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/snapshot"
	"github.com/editorialops/referee-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const platformsYAML = `
platforms:
  - name: sicon
    login:
      url: https://review.example.org/login
      username: "#user"
      password: "#pass"
      submit: "#go"
    extraction:
      list_url: https://review.example.org/queue
      row: "tr.manuscript"
      row_id: "td.id"
      row_link: "a.open"
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func writePlatforms(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(platformsYAML), 0o600))
	return path
}

func TestValidate_ReportsPresenceNotValues(t *testing.T) {
	t.Setenv("CREDENTIAL_PREFIX", "")
	t.Setenv("REFMON_SICON_USERNAME", "editor@example.org")
	t.Setenv("REFMON_SICON_PASSWORD", "")

	out := execute(t, "validate", "--file", writePlatforms(t))

	assert.Contains(t, out, "sicon")
	assert.Contains(t, out, "https://review.example.org/queue")
	assert.Contains(t, out, "set")
	assert.Contains(t, out, "missing")
	assert.NotContains(t, out, "editor@example.org")
}

func TestSnapshots_ListsStoredPlatforms(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLATFORMS_FILE", writePlatforms(t))
	t.Setenv("AZURE_STORAGE_ACCOUNT", "")
	t.Setenv("STORAGE_DIR", dir)
	t.Setenv("PLATFORMS", "")

	fs, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	records := []models.ManuscriptRecord{{
		ID:       "M-1",
		Title:    "Sparse control",
		Referees: []models.RefereeRecord{{Name: "Lee Park", Status: models.StatusAccepted}},
	}}
	extracted := time.Date(2024, 1, 30, 7, 0, 0, 0, time.UTC)
	require.NoError(t, snapshot.NewStore(fs).Commit(context.Background(), snapshot.Build("sicon", records, extracted)))

	out := execute(t, "snapshots")

	assert.Contains(t, out, "sicon")
	assert.Contains(t, out, "2024-01-30T07:00:00Z")

	out = execute(t, "reset", "sicon")
	assert.Contains(t, out, "snapshot of sicon removed")

	snap, err := snapshot.NewStore(fs).Load(context.Background(), "sicon")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDayCount(t *testing.T) {
	assert.Equal(t, "1 day", dayCount(1))
	assert.Equal(t, "3 days", dayCount(3))
}
