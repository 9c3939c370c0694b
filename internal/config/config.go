// Package config loads the server's on-disk YAML configuration and
// applies its defaults, mirroring the merged-config convention used
// elsewhere in this codebase's lineage (an optional file, CLI flags
// override whatever it sets, and a missing file is not fatal).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the place server.
type Config struct {
	Address          string        `yaml:"address"`
	StaticDir        string        `yaml:"static_dir"`
	CanvasPath       string        `yaml:"canvas_path"`
	LoginsPath       string        `yaml:"logins_path"`
	AuditDBPath      string        `yaml:"audit_db_path"`
	TickRate         time.Duration `yaml:"tick_rate"`
	SaveInterval     time.Duration `yaml:"save_interval"`
	MaxPixelsPerTick int           `yaml:"max_pixels_per_tick"`
	QueueIdleTimeout time.Duration `yaml:"queue_idle_timeout"`
	BlankWidth       uint32        `yaml:"blank_width"`
	BlankHeight      uint32        `yaml:"blank_height"`
}

// Default returns the configuration used when no file and no flags
// override anything.
func Default() Config {
	return Config{
		Address:          ":8000",
		StaticDir:        "static",
		CanvasPath:       "canvas.place",
		LoginsPath:       "logins.json",
		AuditDBPath:      "place-audit.db",
		TickRate:         16666667 * time.Nanosecond,
		SaveInterval:     5 * time.Second,
		MaxPixelsPerTick: 3000,
		QueueIdleTimeout: 5 * time.Second,
		BlankWidth:       500,
		BlankHeight:      500,
	}
}

// Load reads path and overlays it onto Default(). A missing file is not
// an error: it simply yields the defaults, consistent with the rest of
// this server treating absent on-disk state as a cold-start condition
// rather than a fault.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
