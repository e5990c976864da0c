package github

import (
	"path"

	"github.com/ahn-nath/confevo/internal/models"
	"github.com/bmatcuk/doublestar/v4"
)

// AllowList selects the tracked files of a commit by base name.
// Entries are exact names ("Matxin.yaml") or glob patterns ("*.yaml").
type AllowList struct {
	names    map[string]struct{}
	patterns []string
}

// NewAllowList builds an allow-list from names and patterns
func NewAllowList(entries []string) *AllowList {
	a := &AllowList{names: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		a.names[entry] = struct{}{}
		if entry != path.Base(entry) || hasMeta(entry) {
			a.patterns = append(a.patterns, entry)
		}
	}
	return a
}

// Allows reports whether filename is tracked
func (a *AllowList) Allows(filename string) bool {
	base := path.Base(filename)
	if _, ok := a.names[base]; ok {
		return true
	}
	for _, pattern := range a.patterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, filename); ok {
			return true
		}
	}
	return false
}

// Filter returns the tracked files in their original order; never nil
func (a *AllowList) Filter(files []models.ChangedFile) []models.ChangedFile {
	kept := make([]models.ChangedFile, 0, len(files))
	for _, file := range files {
		if a.Allows(file.Name) {
			kept = append(kept, file)
		}
	}
	return kept
}

// Len returns the number of entries
func (a *AllowList) Len() int {
	return len(a.names)
}

func hasMeta(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', '{', '\\':
			return true
		}
	}
	return false
}
