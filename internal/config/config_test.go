package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_name: land-registry\ngenesis_signer: system\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "land-registry", cfg.DatabaseName)
	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.NotEmpty(t, cfg.InstallationID)
}

func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_name: x\nbogus_key: 1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsMissingDatabaseName(t *testing.T) {
	cfg := Defaults()
	cfg.DatabaseName = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedInstallationID(t *testing.T) {
	cfg := Defaults()
	cfg.InstallationID = "not-a-uuid"
	assert.Error(t, cfg.Validate())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := NewAtInit("land-registry", "system")

	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DatabaseName, got.DatabaseName)
	assert.Equal(t, cfg.InstallationID, got.InstallationID)
	assert.Equal(t, cfg.CreatedAt, got.CreatedAt)
	assert.NotEmpty(t, got.Checksum)
}

func TestLoadRejectsTamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := NewAtInit("land-registry", "system")
	require.NoError(t, Save(cfg, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(raw, []byte("land-registry"), []byte("tampered-name"), 1)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	_, err = Load(path)
	require.Error(t, err)
}
