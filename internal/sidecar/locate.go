package sidecar

import (
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
)

// Excluder reports whether a workspace-relative, slash-separated path is
// hidden from discovery.
type Excluder interface {
	Excluded(rel string, dir bool) bool
}

// Locate finds the sidecar under the root of fs: the first file whose name
// matches pattern. Files in a directory are checked before its
// subdirectories, each in lexical order. No match returns "" and no error.
func Locate(fs billy.Filesystem, pattern string, excl Excluder) (string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return "", fmt.Errorf("invalid sidecar pattern %q", pattern)
	}
	return locate(fs, "", pattern, excl)
}

func locate(fs billy.Filesystem, dir, pattern string, excl Excluder) (string, error) {
	infos, err := fs.ReadDir(dirName(dir))
	if err != nil {
		if dir != "" && os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read dir %s: %w", dirName(dir), err)
	}
	slices.SortFunc(infos, func(a, b os.FileInfo) int { return strings.Compare(a.Name(), b.Name()) })

	var subdirs []string
	for _, fi := range infos {
		rel := path.Join(dir, fi.Name())
		if excl != nil && excl.Excluded(rel, fi.IsDir()) {
			continue
		}
		if fi.IsDir() {
			subdirs = append(subdirs, rel)
			continue
		}
		if ok, _ := doublestar.Match(pattern, fi.Name()); ok {
			return rel, nil
		}
	}
	for _, sub := range subdirs {
		found, err := locate(fs, sub, pattern, excl)
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}

func dirName(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}

// DefaultName is the sidecar name used when a mutation has to create one:
// <project>.vcxproj.filters next to the only *.vcxproj at the root, else
// named after the root directory.
func DefaultName(fs billy.Filesystem, rootName string) string {
	infos, err := fs.ReadDir(".")
	if err == nil {
		var projects []string
		for _, fi := range infos {
			if !fi.IsDir() && strings.EqualFold(path.Ext(fi.Name()), ".vcxproj") {
				projects = append(projects, fi.Name())
			}
		}
		if len(projects) == 1 {
			return projects[0] + ".filters"
		}
	}
	return rootName + ".vcxproj.filters"
}
