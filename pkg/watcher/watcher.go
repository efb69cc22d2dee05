// Package watcher turns file system activity in a workspace into batches of
// changed units for the analysis runner.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/impact-analyzer/pkg/finder"
	"github.com/ritzau/impact-analyzer/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	// ChangeTypeBuildFile is a build script or the analyzer config
	ChangeTypeBuildFile ChangeType = iota
	// ChangeTypeSource is a source file created or written
	ChangeTypeSource
	// ChangeTypeRemoved is a source file removed or renamed away
	ChangeTypeRemoved
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeBuildFile:
		return "build"
	case ChangeTypeSource:
		return "source"
	case ChangeTypeRemoved:
		return "removed"
	}
	return fmt.Sprintf("ChangeType(%d)", int(t))
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// buildFiles trigger a full analysis when they change
var buildFiles = map[string]bool{
	"build.gradle":         true,
	"build.gradle.kts":     true,
	"settings.gradle":      true,
	"settings.gradle.kts":  true,
	"pom.xml":              true,
	"impact-analyzer.toml": true,
}

// IsBuildFile reports whether a file name is a build script
func IsBuildFile(name string) bool {
	return buildFiles[filepath.Base(name)]
}

// FileWatcher watches the source directories of a workspace
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	workspace  string
	extensions []string
	events     chan ChangeEvent
	flushDelay time.Duration

	mu      sync.Mutex
	watched map[string]bool
}

// NewFileWatcher creates a watcher for sources with the given extensions
func NewFileWatcher(workspace string, extensions []string) (*FileWatcher, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if len(extensions) == 0 {
		extensions = finder.DefaultExtensions
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:    watcher,
		workspace:  abs,
		extensions: extensions,
		events:     make(chan ChangeEvent, 100),
		flushDelay: 100 * time.Millisecond,
		watched:    make(map[string]bool),
	}, nil
}

// Workspace returns the absolute workspace root
func (fw *FileWatcher) Workspace() string {
	return fw.workspace
}

// Start begins watching. Events stop and the channel closes when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watchTree(fw.workspace); err != nil {
		return err
	}

	fw.mu.Lock()
	count := len(fw.watched)
	fw.mu.Unlock()
	logging.Info("started watching workspace", "path", fw.workspace, "directories", count)

	go fw.processEvents(ctx)
	return nil
}

// watchTree adds root and every directory below it that may hold sources
func (fw *FileWatcher) watchTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.workspace && finder.SkipDir(d.Name()) {
			return filepath.SkipDir
		}

		fw.mu.Lock()
		defer fw.mu.Unlock()
		if fw.watched[path] {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		fw.watched[path] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk workspace: %w", err)
	}
	return nil
}

// classify maps one fsnotify event to a change type. ok is false for events
// the analyzer does not care about.
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	if IsBuildFile(event.Name) {
		return ChangeTypeBuildFile, true
	}
	if !finder.HasSourceExtension(event.Name, fw.extensions) {
		return 0, false
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return ChangeTypeRemoved, true
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		return ChangeTypeSource, true
	}
	return 0, false
}

// processEvents batches file system events by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(fw.flushDelay)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeBuildFile, ChangeTypeRemoved, ChangeTypeSource} {
			if paths := pending[t]; len(paths) > 0 {
				select {
				case fw.events <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
		pending = make(map[ChangeType][]string)
	}

	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// New directories may already hold sources (e.g. a moved package)
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := fw.watchTree(event.Name); err != nil {
					logging.Warn("failed to watch new directory", "path", event.Name, "error", err)
				}
				units, err := finder.FindSourceFiles(event.Name, fw.extensions)
				if err != nil {
					logging.Warn("failed to scan new directory", "path", event.Name, "error", err)
				}
				for _, u := range units {
					pending[ChangeTypeSource] = append(pending[ChangeTypeSource], filepath.Join(event.Name, filepath.FromSlash(string(u))))
				}
				if len(units) > 0 {
					flushTimer.Reset(fw.flushDelay)
				}
				continue
			}

			t, ok := fw.classify(event)
			if !ok {
				continue
			}
			logging.Trace("file event", "path", event.Name, "op", event.Op.String(), "type", t.String())
			pending[t] = append(pending[t], event.Name)
			flushTimer.Reset(fw.flushDelay)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
