package app

import (
	"database/sql"
	"fmt"

	"github.com/jercomio/LuT-1/internal/auth"
	"github.com/jercomio/LuT-1/internal/config"
	"github.com/jercomio/LuT-1/internal/db"
	"github.com/jercomio/LuT-1/internal/engine"
	"github.com/jercomio/LuT-1/internal/migrate"
)

// Options select the workspace and override parts of the settings file.
type Options struct {
	Workspace string
	// ConfigPath points at a settings file outside the workspace.
	ConfigPath string
	Driver     string
	DSN        string
}

// Runtime is an opened, migrated store plus the settings it was opened with.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Dialect   db.Dialect
	Engine    engine.Engine
	Version   int
}

// LoadConfig resolves settings for opts without touching the database.
func LoadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(opts.Workspace)
	}
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Store.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Store.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Open loads settings, connects to the store and applies migrations.
func Open(opts Options) (*Runtime, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, dialect, err := db.Open(db.Config{
		Workspace: opts.Workspace,
		Driver:    cfg.Store.Driver,
		DSN:       cfg.Store.DSN,
	})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(conn, dialect)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, dialect)
	e.AllocAttempts = cfg.Store.AllocAttempts
	return &Runtime{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Dialect:   dialect,
		Engine:    e,
		Version:   version,
	}, nil
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}

// AuthConfig combines the configured application name with secrets that
// only ever come from the environment.
func (r *Runtime) AuthConfig(signingSecret, sharedSecret string) auth.Config {
	return auth.Config{
		AppName:       r.Config.App.Name,
		SigningSecret: signingSecret,
		SharedSecret:  sharedSecret,
	}
}
