package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), ".env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.False(t, cfg.App.SeedDemo)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "recycling.db", cfg.Store.DBPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 15*time.Second, cfg.Server.Timeout)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.Server.CORSOrigins)
	assert.Empty(t, cfg.Backup.Dir)
	assert.Equal(t, time.Hour, cfg.Backup.Interval)
	assert.Equal(t, 24, cfg.Backup.Keep)
}

func TestLoad_Environment(t *testing.T) {
	// GIVEN: Settings in the process environment
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", " Workbook ")
	t.Setenv("SEED_DEMO", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	// WHEN: The config is loaded
	cfg, err := Load(missingEnvFile(t))

	// THEN: They override the defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, DriverWorkbook, cfg.Store.Driver)
	assert.True(t, cfg.App.SeedDemo)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: An env file and one variable already set in the environment
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_PATH=file.db\nWORKBOOK_PATH=file.xlsx\n"), 0o600))
	t.Setenv("DB_PATH", "env.db")
	t.Cleanup(func() { os.Unsetenv("WORKBOOK_PATH") })

	// WHEN: The config is loaded from the file
	cfg, err := Load(path)

	// THEN: The environment wins and the file fills the rest
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Store.DBPath)
	assert.Equal(t, "file.xlsx", cfg.Store.WorkbookPath)
}

func TestLoad_Backup(t *testing.T) {
	t.Setenv("BACKUP_DIR", "/var/backups/ledger")
	t.Setenv("BACKUP_INTERVAL", "30m")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "/var/backups/ledger", cfg.Backup.Dir)
	assert.Equal(t, 30*time.Minute, cfg.Backup.Interval)

	// nothing to keep
	t.Setenv("BACKUP_KEEP", "0")
	_, err = Load(missingEnvFile(t))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown driver", key: "STORE_DRIVER", val: "postgres"},
		{name: "port out of range", key: "PORT", val: "70000"},
		{name: "port not a number", key: "PORT", val: "http"},
		{name: "bad duration", key: "SERVER_TIMEOUT", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := Load(missingEnvFile(t))

			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logg, err := NewLogger("debug", "text")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logg.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logg.Formatter)

	logg, err = NewLogger("warn", "")
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logg.Formatter)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
