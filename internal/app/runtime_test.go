package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jercomio/LuT-1/internal/config"
	"github.com/jercomio/LuT-1/internal/db"
	"github.com/jercomio/LuT-1/internal/engine"
)

func TestOpenWithoutSettingsFile(t *testing.T) {
	ws := t.TempDir()
	rt, err := Open(Options{Workspace: ws})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, config.DefaultAppName, rt.Config.App.Name)
	assert.Equal(t, db.SQLite, rt.Dialect)
	assert.Equal(t, 1, rt.Version)
	assert.Equal(t, config.DefaultAllocAttempts, rt.Engine.AllocAttempts)
	assert.FileExists(t, db.Path(ws))

	task, err := rt.Engine.CreateTask(context.Background(), engine.TaskCreateOptions{Title: "first", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "TASK-0001", task.Identifier)

	authCfg := rt.AuthConfig("signing", "shared")
	assert.Equal(t, config.DefaultAppName, authCfg.AppName)
	assert.Equal(t, "signing", authCfg.SigningSecret)
	assert.Equal(t, "shared", authCfg.SharedSecret)
}

func TestLoadConfigOverrides(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(config.GenerateDefault("Moon")), 0o644))

	cfg, err := LoadConfig(Options{Workspace: ws})
	require.NoError(t, err)
	assert.Equal(t, "Moon", cfg.App.Name)

	_, err = LoadConfig(Options{Workspace: ws, Driver: "postgres"})
	assert.Error(t, err, "postgres without dsn")

	cfg, err = LoadConfig(Options{Workspace: ws, Driver: "postgres", DSN: "postgres://localhost/tasks"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)

	other := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(other, []byte("app:\n  name: Custom\n"), 0o644))
	cfg, err = LoadConfig(Options{Workspace: ws, ConfigPath: other})
	require.NoError(t, err)
	assert.Equal(t, "Custom", cfg.App.Name)
}
