package finder

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// DefaultExtensions are the source extensions compiled by the front-end
var DefaultExtensions = []string{".kt", ".java"}

// SkipDir reports directories that never hold sources: VCS metadata, build
// outputs and tool caches
func SkipDir(name string) bool {
	switch name {
	case ".git", ".gradle", ".idea", "build", "out", "node_modules":
		return true
	}
	return strings.HasPrefix(name, "bazel-")
}

// HasSourceExtension reports whether path ends in one of the extensions
func HasSourceExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FindSourceFiles walks the workspace directory and returns the unit key of
// every source file with one of the given extensions, sorted
func FindSourceFiles(workspaceRoot string, extensions []string) ([]model.UnitKey, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	var units []model.UnitKey

	err := filepath.WalkDir(workspaceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != workspaceRoot && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if HasSourceExtension(path, extensions) {
			unit, err := UnitKeyFor(workspaceRoot, path)
			if err != nil {
				return err
			}
			units = append(units, unit)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units, nil
}

// UnitKeyFor turns a file path into the workspace-relative, slash separated
// key the front-end uses for the unit
func UnitKeyFor(workspaceRoot, path string) (model.UnitKey, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspaceRoot, path)
	}
	rel, err := filepath.Rel(workspaceRoot, path)
	if err != nil {
		return "", fmt.Errorf("unit key for %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside workspace %s", path, workspaceRoot)
	}
	return model.UnitKey(filepath.ToSlash(rel)), nil
}
