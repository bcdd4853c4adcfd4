package ingest

import (
	"fmt"
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// Excluder matches workspace-relative, slash-separated paths against the
// configured exclusion globs. A nil Excluder excludes nothing.
type Excluder struct {
	patterns []string
}

func NewExcluder(patterns []string) (*Excluder, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Excluder{patterns: append([]string(nil), patterns...)}, nil
}

// Excluded reports whether rel is excluded. A directory is also excluded
// when the patterns would exclude everything inside it, so "**/bin/**"
// prunes the bin directory itself.
func (x *Excluder) Excluded(rel string, dir bool) bool {
	if x == nil || rel == "" || rel == "." {
		return false
	}
	for _, p := range x.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if dir {
			if ok, _ := doublestar.Match(p, path.Join(rel, "_")); ok {
				return true
			}
		}
	}
	return false
}

func (x *Excluder) Patterns() []string {
	if x == nil {
		return nil
	}
	return append([]string(nil), x.patterns...)
}
