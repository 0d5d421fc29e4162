package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/bridge"
	"github.com/shaunagostinho/portbridge/internal/config"
	"github.com/shaunagostinho/portbridge/internal/journal"
	"github.com/shaunagostinho/portbridge/internal/logging"
	"github.com/shaunagostinho/portbridge/internal/metrics"
	"github.com/shaunagostinho/portbridge/internal/monitor"
	"github.com/shaunagostinho/portbridge/internal/power"
	"github.com/shaunagostinho/portbridge/internal/serialport"
	"github.com/shaunagostinho/portbridge/web"
)

// shutdownGrace bounds how long a signal waits for the frame loop to stop.
const shutdownGrace = 2 * time.Second

// run wires the bridge together and blocks until the session ends. The
// returned error carries the process exit status.
func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	logger, logCloser, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return &exitError{code: exitStartup, err: fmt.Errorf("logging: %w", err)}
	}
	defer func() {
		logger.Sync()
		logCloser.Close()
	}()
	return runWithLogger(ctx, cfg, stdin, stdout, logger)
}

func runWithLogger(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := cfg.Mode()
	logger.Info("portbridge starting",
		zap.String("version", version),
		zap.String("mode", mode.String()),
		zap.String("port", cfg.Serial.PortPath),
		zap.Int("baud", cfg.Serial.BaudRate))

	link, err := serialport.Connect(cfg.Serial, logger)
	if err != nil {
		return &exitError{code: exitStartup, err: err}
	}

	var lines serialport.ModemLines
	if ml, ok := link.(serialport.ModemLines); ok {
		lines = ml
	}
	var sw power.Switch = power.NewNoop(logger.Named("power"))
	if mode == bridge.ModeRawPower {
		sw, err = power.Detect(cfg.Power, lines, logger)
		if err != nil {
			link.Close()
			return &exitError{code: exitStartup, err: err}
		}
	}

	reg := metrics.NewRegistry()
	observers := bridge.Observers{metrics.NewBridge(reg)}

	var wg sync.WaitGroup
	monCtx, stopMonitor := context.WithCancel(context.Background())
	defer func() {
		stopMonitor()
		wg.Wait()
	}()
	if cfg.Monitor.Enabled {
		mon := monitor.New(cfg.Monitor, mode.String(), link.Name(), metrics.Handler(reg), logger)
		mon.ServeAssets(web.FS)
		observers = append(observers, mon)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Run(monCtx); err != nil {
				logger.Error("monitor stopped", zap.Error(err))
			}
		}()
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl = journal.New(cfg.Journal, logger)
		observers = append(observers, jrnl)
	}

	session := bridge.NewSession(stdin, stdout, bridge.Options{
		Mode:               mode,
		Link:               link,
		Power:              sw,
		Observer:           observers,
		Logger:             logger,
		MaxFrame:           cfg.Protocol.MaxFrame,
		ReplyOnDecodeError: cfg.Protocol.ReplyOnDecodeError,
	})

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	stopped, runErr := awaitSession(ctx, done, stdin, shutdownGrace, logger)
	if stopped {
		if err := session.Close(); err != nil {
			logger.Warn("close session", zap.Error(err))
		}
	} else {
		// the loop still owns stdout and the link; the process exit releases them
		logger.Warn("frame loop did not stop in time, skipping session close")
	}
	if jrnl != nil {
		if err := jrnl.Close(); err != nil {
			logger.Warn("close journal", zap.Error(err))
		}
	}

	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
		logger.Info("portbridge stopped")
		return nil
	case bridge.IsFatal(runErr):
		logger.Error("fatal protocol error", zap.Error(runErr))
		return &exitError{code: exitFatal, err: runErr}
	default:
		logger.Error("session failed", zap.Error(runErr))
		return &exitError{code: exitFatal, err: runErr}
	}
}

// awaitSession waits for the frame loop to return. On cancellation the loop
// only notices between frames, so stdin is closed when it is a file and the
// loop gets grace to stop. stopped is false if it is still running.
func awaitSession(ctx context.Context, done <-chan error, stdin io.Reader, grace time.Duration, logger *zap.Logger) (stopped bool, err error) {
	select {
	case err = <-done:
		return true, err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Error(context.Cause(ctx)))
	if f, ok := stdin.(*os.File); ok {
		f.Close()
	}
	select {
	case err = <-done:
		return true, err
	case <-time.After(grace):
		return false, ctx.Err()
	}
}
