package writeback

import (
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/agentic-research/filtertree/internal/sidecar"
)

// Save writes doc to name if it carries changes. The encoded document is
// checked before anything touches disk, then written to a temp file beside
// the target and renamed over it, so readers never see a partial sidecar.
func Save(fs billy.Filesystem, name string, doc *sidecar.Document) error {
	if !doc.Changed() {
		return nil
	}
	out, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := Validate(out); err != nil {
		return err
	}
	return writeAtomic(fs, name, out)
}

// Validate decodes content again and rejects it if the result would not be
// readable as a sidecar.
func Validate(content []byte) error {
	if _, err := sidecar.Decode(content); err != nil {
		return fmt.Errorf("refusing to write invalid sidecar: %w", err)
	}
	return nil
}

func writeAtomic(fs billy.Filesystem, name string, data []byte) error {
	dir := path.Dir(name)
	if dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	tmp, err := fs.TempFile(dir, ".filtertree-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	// Keep the permissions of the file being replaced.
	if ch, ok := fs.(billy.Change); ok {
		mode := os.FileMode(0o644)
		if fi, err := fs.Stat(name); err == nil {
			mode = fi.Mode().Perm()
		}
		_ = ch.Chmod(tmpName, mode)
	}

	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}
