package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/portbridge/internal/bridge"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORTBRIDGE_PORT", "PORTBRIDGE_BAUD", "PORTBRIDGE_TIMEOUT", "PORTBRIDGE_MODE",
		"PORTBRIDGE_POWER", "PORTBRIDGE_GPIO_PIN", "PORTBRIDGE_LOG_LEVEL", "PORTBRIDGE_LOG_FILE",
		"PORTBRIDGE_MONITOR_ADDR", "PORTBRIDGE_JOURNAL_PATH",
	} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Serial, cfg.Serial)
	assert.Equal(t, "structured", cfg.Protocol.Mode)
	assert.False(t, cfg.Monitor.Enabled)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  port_path: /dev/ttyUSB0
  baud_rate: 9600
  timeout: 250ms
protocol:
  mode: raw-power
  max_frame: 4096
power:
  backend: rts
  pulse: 1s
monitor:
  enabled: true
  listen_addr: ":9000"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.PortPath)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Serial.Timeout)
	assert.True(t, cfg.Serial.FlushOnOpen, "unset keys keep defaults")
	assert.Equal(t, 4096, cfg.Protocol.MaxFrame)
	assert.Equal(t, "rts", cfg.Power.Backend)
	assert.Equal(t, time.Second, cfg.Power.Pulse)
	assert.Equal(t, ":9000", cfg.Monitor.ListenAddr)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, bridge.ModeRawPower, cfg.Mode())
}

func TestLoadMalformed(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial: [oops"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	t.Setenv("PORTBRIDGE_BAUD", "57600")
	t.Setenv("PORTBRIDGE_TIMEOUT", "2s")
	t.Setenv("PORTBRIDGE_MODE", "raw-minimal")
	t.Setenv("PORTBRIDGE_POWER", "gpio")
	t.Setenv("PORTBRIDGE_GPIO_PIN", "17")
	t.Setenv("PORTBRIDGE_MONITOR_ADDR", "127.0.0.1:9999")
	t.Setenv("PORTBRIDGE_JOURNAL_PATH", "/tmp/journal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Serial.Timeout)
	assert.Equal(t, "raw-minimal", cfg.Protocol.Mode)
	assert.Equal(t, "gpio", cfg.Power.Backend)
	assert.Equal(t, 17, cfg.Power.GPIOPin)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Monitor.ListenAddr)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/tmp/journal", cfg.Journal.Path)
}

func TestEnvOverrideInvalid(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PORTBRIDGE_BAUD", "fast")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTBRIDGE_BAUD")
}

func TestEnvFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  baud_rate: 9600\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(`
# comment
PORTBRIDGE_MODE="raw"
PORTBRIDGE_LOG_LEVEL=debug
garbage line
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "raw", cfg.Protocol.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, bridge.ModeRawPower, cfg.Mode())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Serial.PortPath = "/dev/ttyACM0"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no port", func(c *Config) { c.Serial.PortPath = "" }, "port path"},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }, "baud rate"},
		{"zero timeout", func(c *Config) { c.Serial.Timeout = 0 }, "timeout"},
		{"bad mode", func(c *Config) { c.Protocol.Mode = "xml" }, "protocol mode"},
		{"huge frame", func(c *Config) { c.Protocol.MaxFrame = 70000 }, "max_frame"},
		{"bad power", func(c *Config) { c.Power.Backend = "relay" }, "power backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
