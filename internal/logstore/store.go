// Package logstore provides append-only, line-oriented, rotating
// persistence for webhook trace records. One Store owns the file handles
// for its log targets; every producer funnels appends through it, so
// rotation is decided in exactly one place. Independent handles tracking
// size against the same file diverge on rotation decisions and produce
// oversized files, which is the failure mode this design exists to prevent.
package logstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/pkg/logger"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// Default store configuration values
const (
	// DefaultMaxSizeMB is the rotation threshold for the main log file
	DefaultMaxSizeMB = 10
	// DefaultMaxBackups is the number of rotated files kept on disk
	DefaultMaxBackups = 20

	// mainLogName is the active webhook log file name
	mainLogName = "webhook.log"
	// contextDirName holds the day-segmented execution-context summaries
	contextDirName = "contexts"
	// contextDayLayout names one summary file per UTC calendar day
	contextDayLayout = "2006-01-02"

	logFileMode = 0o644
	logDirMode  = 0o755
)

// Listener receives every record appended to the main log, in append
// order. Listeners must not block: the append path is shared by all
// webhook deliveries.
type Listener func(model.LogRecord)

// Config holds store configuration.
type Config struct {
	// Dir is the directory holding the main log and its backups
	Dir string `yaml:"dir"`
	// MaxSizeMB is the active file size threshold that triggers rotation
	MaxSizeMB int `yaml:"max_size_mb"`
	// MaxBackups is the number of rotated backup files to retain
	MaxBackups int `yaml:"max_backups"`
}

// Store is the single owner of the webhook log targets: the size-rotated
// main log and the day-segmented context-summary files. All mutation is
// serialized on one mutex; readers never take it.
type Store struct {
	dir        string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64

	// day-segmented summary target, guarded by mu as well
	ctxFile *os.File
	ctxDay  string

	lmu       sync.RWMutex
	listeners []Listener

	closed bool
}

// Open creates or reopens a store rooted at cfg.Dir.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("logstore: dir is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, contextDirName), logDirMode); err != nil {
		return nil, fmt.Errorf("logstore: create dir: %w", err)
	}

	s := &Store{
		dir:        cfg.Dir,
		maxBytes:   int64(cfg.MaxSizeMB) * 1024 * 1024,
		maxBackups: cfg.MaxBackups,
	}

	if err := s.openActive(); err != nil {
		return nil, err
	}

	logger.Info("Log store opened",
		zap.String("dir", cfg.Dir),
		zap.Int("max_size_mb", cfg.MaxSizeMB),
		zap.Int("max_backups", cfg.MaxBackups),
	)
	return s, nil
}

// openActive opens the active main log file and records its current size.
func (s *Store) openActive() error {
	path := filepath.Join(s.dir, mainLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return fmt.Errorf("logstore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("logstore: stat %s: %w", path, err)
	}
	s.file = f
	s.size = info.Size()
	return nil
}

// Append serializes one record as one self-contained line and writes it
// to the main log. The line is written with a single write call, so a
// concurrent reader never observes a partial record boundary between two
// appends. Rotation happens inside the same critical section.
func (s *Store) Append(rec model.LogRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("logstore: marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("logstore: store is closed")
	}
	n, err := s.file.Write(line)
	s.size += int64(n)
	if err == nil && s.size >= s.maxBytes {
		err = s.rotateLocked()
	}
	if err == nil {
		// Notify inside the critical section so listeners observe
		// records in append order. Listeners must not block.
		s.notify(rec)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	telemetry.GetMetrics().RecordAppend(len(line))
	return nil
}

// AppendSummary writes an execution-context summary record. The summary
// goes to the main log like any record and additionally to the current
// UTC day's context file; crossing a day boundary opens a new file
// regardless of size.
func (s *Store) AppendSummary(rec model.LogRecord) error {
	if err := s.Append(rec); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("logstore: marshal summary: %w", err)
	}
	line = append(line, '\n')

	day := rec.Timestamp.Std().UTC().Format(contextDayLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("logstore: store is closed")
	}
	if s.ctxFile == nil || day != s.ctxDay {
		if s.ctxFile != nil {
			s.ctxFile.Close()
		}
		path := filepath.Join(s.dir, contextDirName, day+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
		if err != nil {
			return fmt.Errorf("logstore: open context file %s: %w", path, err)
		}
		s.ctxFile = f
		s.ctxDay = day
	}
	if _, err := s.ctxFile.Write(line); err != nil {
		return fmt.Errorf("logstore: write summary: %w", err)
	}
	return nil
}

// rotateLocked closes the active file, renames it with the next
// incrementing numeric suffix, prunes backups beyond the cap and reopens
// a fresh active file. Caller holds s.mu.
func (s *Store) rotateLocked() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("logstore: close for rotation: %w", err)
	}

	base := filepath.Join(s.dir, mainLogName)
	backups, err := backupSuffixes(s.dir)
	if err != nil {
		return err
	}

	next := 1
	if len(backups) > 0 {
		next = backups[len(backups)-1] + 1
	}
	if err := os.Rename(base, fmt.Sprintf("%s.%d", base, next)); err != nil {
		return fmt.Errorf("logstore: rotate rename: %w", err)
	}
	backups = append(backups, next)

	// Oldest backups carry the smallest suffix.
	for len(backups) > s.maxBackups {
		oldest := fmt.Sprintf("%s.%d", base, backups[0])
		if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove old log backup",
				zap.String("file", oldest),
				zap.Error(err),
			)
		}
		backups = backups[1:]
	}

	if err := s.openActive(); err != nil {
		return err
	}

	telemetry.GetMetrics().RecordRotation()
	logger.Debug("Log file rotated",
		zap.Int("suffix", next),
		zap.Int("backups", len(backups)),
	)
	return nil
}

// Files returns the main log files in chronological order, oldest first:
// numeric backups ascending, then the active file. Files that rotate away
// between listing and reading are the caller's race to tolerate.
func (s *Store) Files() ([]string, error) {
	backups, err := backupSuffixes(s.dir)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(s.dir, mainLogName)
	files := make([]string, 0, len(backups)+1)
	for _, n := range backups {
		files = append(files, fmt.Sprintf("%s.%d", base, n))
	}
	if _, err := os.Stat(base); err == nil {
		files = append(files, base)
	}
	return files, nil
}

// ContextFiles returns the day-segmented summary files, oldest day first.
func (s *Store) ContextFiles() ([]string, error) {
	dir := filepath.Join(s.dir, contextDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("logstore: read context dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := time.Parse(contextDayLayout, dayFromName(e.Name())); err == nil {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// AddListener registers a callback invoked for every main-log append, in
// append order. Intended for the live subscription broker.
func (s *Store) AddListener(fn Listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// notify fans an appended record out to listeners. Append order is
// preserved because Append serializes the write and the notification of
// each record before releasing the next producer.
func (s *Store) notify(rec model.LogRecord) {
	s.lmu.RLock()
	listeners := s.listeners
	s.lmu.RUnlock()
	for _, fn := range listeners {
		fn(rec)
	}
}

// Close flushes and closes the underlying files. Appends after Close fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			firstErr = err
		}
	}
	if s.ctxFile != nil {
		if err := s.ctxFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// backupSuffixes lists the numeric suffixes of rotated backups in dir,
// sorted ascending (oldest first).
func backupSuffixes(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("logstore: read dir: %w", err)
	}
	prefix := mainLogName + "."
	var suffixes []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		n := 0
		valid := true
		for _, c := range name[len(prefix):] {
			if c < '0' || c > '9' {
				valid = false
				break
			}
			n = n*10 + int(c-'0')
		}
		if valid && n > 0 {
			suffixes = append(suffixes, n)
		}
	}
	sort.Ints(suffixes)
	return suffixes, nil
}

// dayFromName strips the ".log" extension from a context file name.
func dayFromName(name string) string {
	if filepath.Ext(name) == ".log" {
		return name[:len(name)-len(".log")]
	}
	return name
}
