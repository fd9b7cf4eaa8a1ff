// Package config loads and validates the YAML configuration file of
// spec §4.5/§6.4: server settings, component specs, and the
// persistence_enabled/read_only gate, following the teacher's
// pkg/config loader pattern (yaml.v3 + godotenv) generalized with
// shell-style ${NAME}/${NAME:-default} environment interpolation.
package config

import (
	"github.com/ruokun-niu/drasi-server/internal/model"
)

// ServerSettings controls the REST API listener (spec §6.3).
type ServerSettings struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingSettings controls structured log output, mirroring the teacher's
// LoggingConfig shape.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RouterSettings controls the three channel-fabric routers (spec §4.1).
type RouterSettings struct {
	DefaultDispatchBufferCapacity int `yaml:"default_dispatch_buffer_capacity"`
}

// PersistenceSettings controls the configuration persistence gate (spec
// §4.5.3).
type PersistenceSettings struct {
	Enabled  bool   `yaml:"persistence_enabled"`
	ReadOnly bool   `yaml:"read_only"`
	Path     string `yaml:"path"`
}

// Document is the top-level shape of the YAML configuration file (spec
// §6.4).
type Document struct {
	Server      ServerSettings      `yaml:"server"`
	Logging     LoggingSettings     `yaml:"logging"`
	Routers     RouterSettings      `yaml:"routers"`
	Persistence PersistenceSettings `yaml:"persistence"`
	Sources     []model.SourceSpec   `yaml:"sources"`
	Queries     []model.QuerySpec    `yaml:"queries"`
	Reactions   []model.ReactionSpec `yaml:"reactions"`
}

// defaults returns a Document pre-populated the way the teacher's
// config.New() seeds defaults before files/env are applied.
func defaults() *Document {
	return &Document{
		Server: ServerSettings{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Routers: RouterSettings{DefaultDispatchBufferCapacity: 1000},
		Persistence: PersistenceSettings{
			Enabled: false,
			Path:    "drasi-config.yaml",
		},
	}
}
