// Package config resolves dust runtime settings.
//
// Sources in increasing precedence: built-in defaults, a dotenv file,
// the process environment, and command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvDialect = "DUST_DIALECT"
	EnvDSN     = "DUST_DSN"
)

// Defaults.
const (
	DefaultDialect = "sqlite"
	DefaultDSN     = "dust.db"
	DefaultEnvFile = ".env"
	DefaultFormat  = "text"
)

// ValidFormats lists the accepted output formats.
var ValidFormats = []string{"text", "json"}

// Config holds the settings shared by every command.
type Config struct {
	Dialect string // "sqlite" | "postgres"
	DSN     string
	EnvFile string
	Verbose bool
	Format  string // "json" | "text"
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Dialect: DefaultDialect,
		DSN:     DefaultDSN,
		EnvFile: DefaultEnvFile,
		Format:  DefaultFormat,
	}
}

// Load resolves Dialect and DSN from defaults, the dotenv file envFile and
// the process environment. An empty envFile means DefaultEnvFile, which may
// be absent; an explicitly named file must exist.
func Load(envFile string) (Config, error) {
	cfg := Default()
	required := envFile != ""
	if envFile != "" {
		cfg.EnvFile = envFile
	}

	vars, err := godotenv.Read(cfg.EnvFile)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !required:
		vars = nil
	default:
		return cfg, fmt.Errorf("read env file %s: %w", cfg.EnvFile, err)
	}

	cfg.Dialect = lookup(vars, EnvDialect, cfg.Dialect)
	cfg.DSN = lookup(vars, EnvDSN, cfg.DSN)
	return cfg, nil
}

// lookup prefers the process environment over the dotenv file.
func lookup(file map[string]string, key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if v := file[key]; v != "" {
		return v
	}
	return def
}

// Validate checks the fields that have a closed set of values.
func (c Config) Validate() error {
	if c.Dialect == "" {
		return errors.New("dialect is required")
	}
	if c.DSN == "" {
		return errors.New("database is required")
	}
	for _, f := range ValidFormats {
		if f == c.Format {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %v", c.Format, ValidFormats)
}
