package artifacts

import "sort"

// ClasspathDiff lists classpath entries that entered or left since the last build
type ClasspathDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Changed reports whether anything entered or left
func (d ClasspathDiff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// CompareClasspath diffs two classpaths as sets; order and duplicates are ignored
func CompareClasspath(previous, current []string) ClasspathDiff {
	before := make(map[string]bool, len(previous))
	for _, entry := range previous {
		before[entry] = true
	}
	after := make(map[string]bool, len(current))
	for _, entry := range current {
		after[entry] = true
	}

	var diff ClasspathDiff
	for entry := range after {
		if !before[entry] {
			diff.Added = append(diff.Added, entry)
		}
	}
	for entry := range before {
		if !after[entry] {
			diff.Removed = append(diff.Removed, entry)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff
}
