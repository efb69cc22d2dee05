// Package storage persists analyzer state between build sessions in BadgerDB.
//
// Layout, one key per record:
//
//	snap/<symbol>/<generation>   snapshot.Record (JSON)
//	edges/<unit>                 []model.Dependency (JSON)
//	outputs/<unit>               []string (JSON)
//	meta/generation              model.Generation (JSON)
//	meta/classpath               []string (JSON)
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNoState is returned by Load when nothing was saved yet
var ErrNoState = errors.New("no persisted analyzer state")

// Config holds configuration for the state database
type Config struct {
	// Path is the state directory, ignored when InMemory is set
	Path     string
	InMemory bool

	// SyncWrites fsyncs every commit
	SyncWrites bool

	// GCInterval runs value log GC periodically; 0 disables it
	GCInterval     time.Duration
	GCDiscardRatio float64

	// Logger receives badger's own log output; nil silences it
	Logger *slog.Logger
}

// DefaultConfig returns the configuration for a state directory on disk
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration that keeps nothing on disk
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the persisted analyzer state. It is safe for concurrent use, but
// sessions of one project are serialized by the caller.
type Store struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
	logger *slog.Logger
}

// Open opens (or creates) the state database
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("state directory is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite only means there was nothing to collect
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("state value log GC failed", "error", err)
			}
		}
	}
}

// Close stops GC and closes the database
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
		s.stopGC = nil
	}
	return s.db.Close()
}
