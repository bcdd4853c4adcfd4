// Package config loads the filter tree configuration from an HCL file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/filtertree/api"
)

// FileName is the conventional configuration file name looked up in a
// workspace root when no explicit path is given.
const FileName = "filtertree.hcl"

// fileConfig mirrors api.Config with optional attributes so that unset
// values keep their defaults.
type fileConfig struct {
	ExcludePatterns *[]string `hcl:"exclude_patterns,optional"`
	MaxFiles        *int      `hcl:"max_files,optional"`
	SidecarPattern  *string   `hcl:"sidecar_pattern,optional"`
	Debounce        *string   `hcl:"debounce,optional"`
	LogLevel        *string   `hcl:"log_level,optional"`
}

// Load reads path and overlays it on api.DefaultConfig. A missing file is
// not an error. The file must use the .hcl or .json extension.
func Load(path string) (api.Config, error) {
	cfg := api.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(path, src)
}

// Parse decodes src (named filename for syntax selection and diagnostics).
func Parse(filename string, src []byte) (api.Config, error) {
	cfg := api.DefaultConfig()

	var fc fileConfig
	if err := hclsimple.Decode(filename, src, nil, &fc); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", filename, err)
	}

	if fc.ExcludePatterns != nil {
		cfg.ExcludePatterns = append([]string{}, (*fc.ExcludePatterns)...)
	}
	if fc.MaxFiles != nil {
		if *fc.MaxFiles <= 0 {
			return cfg, fmt.Errorf("config %s: max_files must be positive, got %d", filename, *fc.MaxFiles)
		}
		cfg.MaxFiles = *fc.MaxFiles
	}
	if fc.SidecarPattern != nil && *fc.SidecarPattern != "" {
		cfg.SidecarPattern = *fc.SidecarPattern
	}
	if fc.Debounce != nil {
		d, err := time.ParseDuration(*fc.Debounce)
		if err != nil {
			return cfg, fmt.Errorf("config %s: debounce: %w", filename, err)
		}
		cfg.Debounce = d
	}
	if fc.LogLevel != nil && *fc.LogLevel != "" {
		cfg.LogLevel = *fc.LogLevel
	}
	return cfg.Normalize(), nil
}
