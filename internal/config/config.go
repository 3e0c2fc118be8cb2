package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Role         string        `yaml:"role"`
	PollInterval time.Duration `yaml:"poll_interval"`

	GNSS        GNSSConfig        `yaml:"gnss"`
	Corrections CorrectionsConfig `yaml:"corrections"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Web         WebConfig         `yaml:"web"`
	Log         LogConfig         `yaml:"log"`
}

type GNSSConfig struct {
	Device           string        `yaml:"device"`
	BaudRates        []int         `yaml:"baud_rates"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type CorrectionsConfig struct {
	// Base: address to listen on and the serial device bursts arrive from.
	Listen string `yaml:"listen"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// Rover: base-station address to dial.
	Addr          string        `yaml:"addr"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	BufferBytes int           `yaml:"buffer_bytes"`
	BurstGap    time.Duration `yaml:"burst_gap"`
}

type TelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type WebConfig struct {
	Listen       string        `yaml:"listen"`
	PushInterval time.Duration `yaml:"push_interval"`
}

type LogConfig struct {
	Enable   bool          `yaml:"enable"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	switch cfg.Role {
	case "rover", "base":
	case "":
		return Config{}, fmt.Errorf("role is required (rover or base)")
	default:
		return Config{}, fmt.Errorf("role must be rover or base, got %q", cfg.Role)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}

	if cfg.GNSS.Device == "" {
		return Config{}, fmt.Errorf("gnss.device is required")
	}
	if cfg.GNSS.HandshakeTimeout <= 0 {
		cfg.GNSS.HandshakeTimeout = 250 * time.Millisecond
	}

	switch cfg.Role {
	case "base":
		if cfg.Corrections.Listen == "" {
			return Config{}, fmt.Errorf("corrections.listen is required for role=base")
		}
		if cfg.Corrections.Device == "" {
			return Config{}, fmt.Errorf("corrections.device is required for role=base")
		}
		if cfg.Corrections.Baud <= 0 {
			cfg.Corrections.Baud = 115200
		}
	case "rover":
		if cfg.Corrections.Addr == "" {
			return Config{}, fmt.Errorf("corrections.addr is required for role=rover")
		}
	}
	if cfg.Corrections.RetryInterval <= 0 {
		cfg.Corrections.RetryInterval = 1 * time.Second
	}
	if cfg.Corrections.BufferBytes <= 0 {
		cfg.Corrections.BufferBytes = 4096
	}
	if cfg.Corrections.BurstGap <= 0 {
		cfg.Corrections.BurstGap = 50 * time.Millisecond
	}

	if cfg.Telemetry.Enable {
		if cfg.Telemetry.Device == "" {
			return Config{}, fmt.Errorf("telemetry.device is required when telemetry.enable is true")
		}
		if cfg.Telemetry.Baud <= 0 {
			cfg.Telemetry.Baud = 115200
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.PushInterval <= 0 {
		cfg.Web.PushInterval = 1 * time.Second
	}

	if cfg.Log.Enable {
		if cfg.Log.Path == "" {
			return Config{}, fmt.Errorf("log.path is required when log.enable is true")
		}
		if cfg.Log.Interval <= 0 {
			cfg.Log.Interval = 2 * time.Second
		}
	}

	return cfg, nil
}
