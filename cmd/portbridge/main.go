package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/portbridge/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Exit statuses.
const (
	exitOK      = 0
	exitStartup = 1
	exitFatal   = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitStartup
}

type rootFlags struct {
	configPath    string
	mode          string
	power         string
	gpioPin       int
	pulse         time.Duration
	timeout       time.Duration
	maxFrame      int
	replyOnDecode bool
	logLevel      string
	logFormat     string
	logFile       string
	monitorAddr   string
	journalPath   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "portbridge: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "portbridge <device> <baud>",
		Short: "Bridge length-prefixed frames on stdio to a serial device",
		Long: `portbridge runs as an external port of a supervising runtime. It reads
frames (2-byte big-endian length + payload) from stdin, executes them against
a serial device and answers on stdout.

Modes:
  structured   JSON commands with JSON acknowledgements (default)
  raw-power    raw payloads forwarded verbatim, 0x01 pulses device power
  raw-minimal  raw payloads forwarded verbatim, no power control

Use "loopback" as the device to run without hardware.`,
		Example: `  portbridge /dev/ttyACM0 115200
  portbridge /dev/ttyUSB0 9600 --mode raw-power --power dtr
  portbridge loopback 115200 --monitor 127.0.0.1:9750`,
		Args:          cobra.ExactArgs(2),
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, args)
			if err != nil {
				return &exitError{code: exitStartup, err: err}
			}
			return run(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}
	// stdout carries frames
	cmd.SetOut(os.Stderr)

	registerRootFlags(cmd, flags)

	return cmd
}

func registerRootFlags(cmd *cobra.Command, flags *rootFlags) {
	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "Path to config file")
	f.StringVarP(&flags.mode, "mode", "m", "", "Protocol mode: structured, raw-power, raw-minimal")
	f.StringVar(&flags.power, "power", "", "Power backend: auto, none, dtr, rts, gpio")
	f.IntVar(&flags.gpioPin, "gpio-pin", 0, "Sysfs GPIO pin for the gpio power backend")
	f.DurationVar(&flags.pulse, "pulse", 0, "Power-on pulse length")
	f.DurationVar(&flags.timeout, "timeout", 0, "Serial I/O timeout")
	f.IntVar(&flags.maxFrame, "max-frame", 0, "Reject frames larger than this (0 = no limit)")
	f.BoolVar(&flags.replyOnDecode, "reply-on-decode-error", false, "Answer undecodable structured frames with an error response")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format: console or json")
	f.StringVar(&flags.logFile, "log-file", "", "Also log to this file, rotated")
	f.StringVar(&flags.monitorAddr, "monitor", "", "Serve the monitor on this address")
	f.StringVar(&flags.journalPath, "journal", "", "Write the CSV traffic journal to this directory")
}

// loadConfig reads the config file and lays the positional arguments and
// explicitly set flags over it.
func loadConfig(cmd *cobra.Command, flags *rootFlags, args []string) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	baud, err := strconv.Atoi(args[1])
	if err != nil || baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %q", args[1])
	}
	cfg.Serial.PortPath = args[0]
	cfg.Serial.BaudRate = baud

	changed := cmd.Flags().Changed
	if changed("mode") {
		cfg.Protocol.Mode = flags.mode
	}
	if changed("power") {
		cfg.Power.Backend = flags.power
	}
	if changed("gpio-pin") {
		cfg.Power.GPIOPin = flags.gpioPin
	}
	if changed("pulse") {
		cfg.Power.Pulse = flags.pulse
	}
	if changed("timeout") {
		cfg.Serial.Timeout = flags.timeout
	}
	if changed("max-frame") {
		cfg.Protocol.MaxFrame = flags.maxFrame
	}
	if changed("reply-on-decode-error") {
		cfg.Protocol.ReplyOnDecodeError = flags.replyOnDecode
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = flags.logFormat
	}
	if changed("log-file") {
		cfg.Logging.File.Filename = flags.logFile
	}
	if changed("monitor") {
		cfg.Monitor.Enabled = flags.monitorAddr != ""
		cfg.Monitor.ListenAddr = flags.monitorAddr
	}
	if changed("journal") {
		cfg.Journal.Enabled = flags.journalPath != ""
		cfg.Journal.Path = flags.journalPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
