package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the workspace.
const FileName = "lunartasks.yml"

// Defaults used by GenerateDefault and for fields left empty in the file.
const (
	DefaultAppName       = "LuT-1"
	DefaultAddr          = "127.0.0.1:8080"
	DefaultBasePath      = "/api"
	DefaultDriver        = "sqlite"
	DefaultAllocAttempts = 5
)

// Config models lunartasks.yml.
type Config struct {
	App struct {
		// Name must match the `name` claim of bearer tokens.
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"app"`
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Store struct {
		Driver        string `yaml:"driver"`
		DSN           string `yaml:"dsn"`
		AllocAttempts int    `yaml:"alloc_attempts"`
	} `yaml:"store"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with lut settings init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(DefaultAppName), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("config.app.name is required")
	}
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config.store.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.store.driver must be 'sqlite' or 'postgres', got %q", c.Store.Driver)
	}
	if c.Store.AllocAttempts <= 0 {
		return fmt.Errorf("config.store.alloc_attempts must be positive")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "" {
			return fmt.Errorf("config.server.cors_origins contains an empty origin")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultDriver
	}
	if c.Store.AllocAttempts == 0 {
		c.Store.AllocAttempts = DefaultAllocAttempts
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(appName string) string {
	if appName == "" {
		appName = DefaultAppName
	}
	return fmt.Sprintf(defaultTemplate, appName)
}

// Default returns the default Config struct for an application name.
func Default(appName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(appName))).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `app:
  name: %s
  description: "Organize your tasks"

server:
  addr: 127.0.0.1:8080
  base_path: /api
  cors_origins: ["*"]

store:
  # sqlite keeps data in .lunartasks/lunartasks.db; postgres needs a dsn.
  driver: sqlite
  dsn: ""
  alloc_attempts: 5
`
