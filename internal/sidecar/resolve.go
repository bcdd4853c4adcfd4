package sidecar

import (
	"errors"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/agentic-research/filtertree/internal/graph"
)

// Resolve maps an Include value to the file's actual relative path in fs.
// When the exact path is missing a case-insensitive match is accepted, so
// sidecars authored on Windows keep working on case-sensitive filesystems.
// A missing file yields ok == false and no error.
func Resolve(fs billy.Filesystem, include string) (rel string, ok bool, err error) {
	rel = graph.IncludeToRel(include)
	if rel == "." || rel == "" {
		return "", false, nil
	}
	fi, err := fs.Stat(rel)
	if err == nil {
		return rel, !fi.IsDir(), nil
	}
	if !os.IsNotExist(err) {
		return "", false, err
	}
	return resolveFold(fs, rel)
}

func resolveFold(fs billy.Filesystem, rel string) (string, bool, error) {
	segs := strings.Split(rel, "/")
	cur := ""
	for i, seg := range segs {
		infos, err := fs.ReadDir(dirName(cur))
		if err != nil {
			if os.IsNotExist(err) {
				return "", false, nil
			}
			return "", false, err
		}
		last := i == len(segs)-1
		found := ""
		for _, fi := range infos {
			if strings.EqualFold(fi.Name(), seg) && fi.IsDir() != last {
				found = fi.Name()
				break
			}
		}
		if found == "" {
			return "", false, nil
		}
		cur = path.Join(cur, found)
	}
	return cur, true, nil
}

// Stale returns the file entries whose Include no longer names a file in fs.
// Entries that cannot be checked (permission errors, paths outside the
// workspace) are not reported as stale.
func Stale(fs billy.Filesystem, doc *Document) []*Entry {
	var stale []*Entry
	for _, e := range doc.Files() {
		if strings.TrimSpace(e.Include) == "" {
			continue
		}
		_, ok, err := Resolve(fs, e.Include)
		if err != nil || ok {
			continue
		}
		stale = append(stale, e)
	}
	return stale
}

// IsMissing reports whether err means the sidecar does not exist.
func IsMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
