// Package config loads portbridge settings from YAML, .env files and the
// environment.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/portbridge/internal/bridge"
	"github.com/shaunagostinho/portbridge/internal/journal"
	"github.com/shaunagostinho/portbridge/internal/monitor"
	"github.com/shaunagostinho/portbridge/internal/power"
	"github.com/shaunagostinho/portbridge/internal/serialport"
)

// DefaultPath is where the config file is looked up when none is given.
const DefaultPath = "/etc/portbridge/config.yaml"

// Config holds all bridge configuration.
type Config struct {
	Serial   serialport.Config `yaml:"serial" json:"serial"`
	Protocol ProtocolConfig    `yaml:"protocol" json:"protocol"`
	Power    power.Config      `yaml:"power" json:"power"`
	Logging  LoggingConfig     `yaml:"logging" json:"logging"`
	Monitor  monitor.Config    `yaml:"monitor" json:"monitor"`
	Journal  journal.Config    `yaml:"journal" json:"journal"`
}

type ProtocolConfig struct {
	Mode               string `yaml:"mode" json:"mode"` // "structured", "raw-power", "raw-minimal"
	MaxFrame           int    `yaml:"max_frame" json:"maxFrame"`
	ReplyOnDecodeError bool   `yaml:"reply_on_decode_error" json:"replyOnDecodeError"`
}

// LoggingConfig controls the diagnostic logger. Output always goes to
// stderr; stdout carries frames.
type LoggingConfig struct {
	Level  string   `yaml:"level" json:"level"`
	Format string   `yaml:"format" json:"format"` // "console" or "json"
	File   FileSink `yaml:"file" json:"file"`
}

// FileSink configures an additional rotated log file.
type FileSink struct {
	Filename   string `yaml:"filename" json:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"maxSizeMB"`
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"maxAgeDays"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Serial: serialport.Config{
			BaudRate:    115200,
			Timeout:     100 * time.Millisecond,
			FlushOnOpen: true,
		},
		Protocol: ProtocolConfig{
			Mode: "structured",
		},
		Power: power.Config{
			Backend:  power.BackendAuto,
			GPIORoot: power.DefaultGPIORoot,
			Pulse:    power.DefaultPulse,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File: FileSink{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
		Monitor: monitor.Config{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9750",
		},
		Journal: journal.Config{
			Enabled: false,
			Path:    "/var/log/portbridge",
			MaxRows: 100_000,
		},
	}
}

// Load reads config from a YAML file, then applies .env and environment
// overrides. A missing file is not an error; a malformed one is.
// The logger is not configured yet at this point, so notes go to the
// standard logger (stderr).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Printf("[config] no config at %s, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}

		loadEnvFile(filepath.Join(filepath.Dir(path), ".env"))
	}
	loadEnvFile(".env")

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
// Variables already present in the real environment win.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads PORTBRIDGE_* variables and overrides config values.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORTBRIDGE_PORT"); v != "" {
		c.Serial.PortPath = v
	}
	if v := os.Getenv("PORTBRIDGE_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORTBRIDGE_BAUD: %w", err)
		}
		c.Serial.BaudRate = n
	}
	if v := os.Getenv("PORTBRIDGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: PORTBRIDGE_TIMEOUT: %w", err)
		}
		c.Serial.Timeout = d
	}
	if v := os.Getenv("PORTBRIDGE_MODE"); v != "" {
		c.Protocol.Mode = v
	}
	if v := os.Getenv("PORTBRIDGE_POWER"); v != "" {
		c.Power.Backend = v
	}
	if v := os.Getenv("PORTBRIDGE_GPIO_PIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORTBRIDGE_GPIO_PIN: %w", err)
		}
		c.Power.GPIOPin = n
	}
	if v := os.Getenv("PORTBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PORTBRIDGE_LOG_FILE"); v != "" {
		c.Logging.File.Filename = v
	}
	if v := os.Getenv("PORTBRIDGE_MONITOR_ADDR"); v != "" {
		c.Monitor.Enabled = true
		c.Monitor.ListenAddr = v
	}
	if v := os.Getenv("PORTBRIDGE_JOURNAL_PATH"); v != "" {
		c.Journal.Enabled = true
		c.Journal.Path = v
	}
	return nil
}

// Validate checks the values the bridge cannot start without.
func (c *Config) Validate() error {
	if c.Serial.PortPath == "" {
		return fmt.Errorf("config: serial port path is required")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("config: invalid baud rate %d", c.Serial.BaudRate)
	}
	if c.Serial.Timeout <= 0 {
		return fmt.Errorf("config: invalid serial timeout %v", c.Serial.Timeout)
	}
	if _, err := bridge.ParseMode(c.Protocol.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Protocol.MaxFrame < 0 || c.Protocol.MaxFrame > 0xffff {
		return fmt.Errorf("config: max_frame must be between 0 and 65535")
	}
	switch strings.ToLower(c.Power.Backend) {
	case "", power.BackendAuto, power.BackendNone, power.BackendDTR, power.BackendRTS, power.BackendGPIO:
	default:
		return fmt.Errorf("config: unknown power backend %q", c.Power.Backend)
	}
	return nil
}

// Mode returns the parsed protocol mode. Call Validate first.
func (c *Config) Mode() bridge.Mode {
	m, _ := bridge.ParseMode(c.Protocol.Mode)
	return m
}
