// Package journal records bridge traffic to CSV files with automatic
// rotation.
package journal

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/bridge"
)

// Config holds journal configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	MaxRows int    `yaml:"max_rows" json:"maxRows"`
}

const (
	defaultMaxRows  = 100_000
	maxPayloadBytes = 64 // payload column is truncated to this many bytes
)

var csvHeader = []string{
	"timestamp", "mode", "kind", "length", "opcode", "message_type",
	"action", "result", "written", "response_type", "error", "payload_hex",
}

// Journal writes one CSV row per bridge event. It implements
// bridge.Observer.
type Journal struct {
	mu      sync.Mutex
	dir     string
	maxRows int
	log     *zap.Logger

	file   *os.File
	writer *csv.Writer
	rows   int
	seq    int
	closed bool
}

// New creates a Journal. Files are created lazily on the first event.
func New(cfg Config, log *zap.Logger) *Journal {
	if cfg.Path == "" {
		cfg.Path = "/var/log/portbridge"
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return &Journal{
		dir:     cfg.Path,
		maxRows: cfg.MaxRows,
		log:     log.Named("journal"),
	}
}

// Observe implements bridge.Observer.
func (j *Journal) Observe(ev bridge.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	if j.writer == nil || j.rows >= j.maxRows {
		if err := j.rotateFile(time.UnixMilli(ev.Stamp)); err != nil {
			j.log.Warn("rotate failed", zap.Error(err))
			return
		}
	}

	if err := j.writer.Write(buildRow(ev)); err != nil {
		j.log.Warn("write failed", zap.Error(err))
		return
	}
	j.writer.Flush()
	j.rows++
}

// Close flushes and closes the current file. Later events are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return j.closeFile()
}

func (j *Journal) rotateFile(now time.Time) error {
	if err := j.closeFile(); err != nil {
		j.log.Warn("close failed", zap.Error(err))
	}

	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", j.dir, err)
	}

	// seq keeps names unique when rotating more than once a second
	j.seq++
	filename := fmt.Sprintf("portbridge_%s_%03d.csv", now.Format("2006-01-02_150405"), j.seq)
	path := filepath.Join(j.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	j.file = f
	j.writer = csv.NewWriter(f)
	j.rows = 0

	if err := j.writer.Write(csvHeader); err != nil {
		return err
	}
	j.writer.Flush()

	j.log.Info("opened journal", zap.String("path", path))
	return nil
}

func (j *Journal) closeFile() error {
	if j.writer != nil {
		j.writer.Flush()
		j.writer = nil
	}
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}

func buildRow(ev bridge.Event) []string {
	row := make([]string, len(csvHeader))
	row[0] = time.UnixMilli(ev.Stamp).UTC().Format(time.RFC3339Nano)
	row[1] = ev.Mode
	row[2] = ev.Kind
	row[3] = strconv.Itoa(ev.Length)
	if ev.Opcode != nil {
		row[4] = fmt.Sprintf("0x%02x", *ev.Opcode)
	}
	if ev.MessageType != nil {
		row[5] = strconv.Itoa(int(*ev.MessageType))
	}
	row[6] = ev.Action
	row[7] = ev.Result
	row[8] = strconv.Itoa(ev.Written)
	if ev.ResponseType != 0 {
		row[9] = strconv.Itoa(int(ev.ResponseType))
	}
	row[10] = ev.Error

	payload := ev.Payload
	if len(payload) > maxPayloadBytes {
		payload = payload[:maxPayloadBytes]
	}
	row[11] = hex.EncodeToString(payload)
	return row
}
