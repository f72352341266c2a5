// Package config loads runtime settings from config.yaml and LEANVIRTUALS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverJSONL    = "jsonl"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Lean      Lean
	Store     Store
	Telemetry Telemetry
	Log       Log
}

type Lean struct {
	EnabledByDefault bool
}

type Store struct {
	Driver   string
	JSONL    JSONL
	Postgres Postgres
	Mongo    Mongo
}

type JSONL struct {
	Dir string
}

type Postgres struct {
	DSN   string
	Table string
}

type Mongo struct {
	URI      string
	Database string
}

type Telemetry struct {
	OTLPEndpoint string
	ServiceName  string
}

type Log struct {
	Level  string
	Format string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Store: Store{
			Driver:   DriverMemory,
			JSONL:    JSONL{Dir: "."},
			Postgres: Postgres{Table: "lean_documents"},
			Mongo:    Mongo{Database: "leanvirtuals"},
		},
		Telemetry: Telemetry{ServiceName: "leanvirtuals"},
		Log:       Log{Level: "info", Format: "text"},
	}
}

// Load reads config.yaml from dir (when present) and applies environment
// overrides such as LEANVIRTUALS_STORE_DRIVER. A path to a file is read
// directly. An empty path searches the working directory.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix("LEANVIRTUALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		v.SetConfigFile(path)
	} else {
		if path == "" {
			path = "."
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		slog.Debug("no config.yaml found, using defaults and env vars", "path", path)
	}

	cfg := Config{
		Lean: Lean{EnabledByDefault: v.GetBool("lean.enabledByDefault")},
		Store: Store{
			Driver: strings.ToLower(v.GetString("store.driver")),
			JSONL:  JSONL{Dir: v.GetString("store.jsonl.dir")},
			Postgres: Postgres{
				DSN:   v.GetString("store.postgres.dsn"),
				Table: v.GetString("store.postgres.table"),
			},
			Mongo: Mongo{
				URI:      v.GetString("store.mongo.uri"),
				Database: v.GetString("store.mongo.database"),
			},
		},
		Telemetry: Telemetry{
			OTLPEndpoint: v.GetString("telemetry.otlpEndpoint"),
			ServiceName:  v.GetString("telemetry.serviceName"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("lean.enabledByDefault", d.Lean.EnabledByDefault)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.jsonl.dir", d.Store.JSONL.Dir)
	v.SetDefault("store.postgres.dsn", d.Store.Postgres.DSN)
	v.SetDefault("store.postgres.table", d.Store.Postgres.Table)
	v.SetDefault("store.mongo.uri", d.Store.Mongo.URI)
	v.SetDefault("store.mongo.database", d.Store.Mongo.Database)
	v.SetDefault("telemetry.otlpEndpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.serviceName", d.Telemetry.ServiceName)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the driver and the settings it needs.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverJSONL:
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("config: store.postgres.dsn is required for the postgres driver")
		}
	case DriverMongo:
		if c.Store.Mongo.URI == "" {
			return errors.New("config: store.mongo.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}
