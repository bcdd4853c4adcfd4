package api

import "time"

// Config is the configuration surface consumed by the filter tree core.
// It is supplied per invocation; the core never persists it.
type Config struct {
	// ExcludePatterns are doublestar globs matched against root-relative,
	// slash-separated paths. They apply to sidecar discovery, unfiltered-file
	// enumeration and change-event filtering.
	ExcludePatterns []string `json:"exclude_patterns"`
	// MaxFiles caps the number of files scanned per enumeration pass.
	// Enumeration stops silently at the ceiling.
	MaxFiles int `json:"max_files"`
	// SidecarPattern is the file-name glob used to locate the sidecar.
	SidecarPattern string `json:"sidecar_pattern"`
	// Debounce is the quiet interval before a rebuild fires.
	Debounce time.Duration `json:"debounce"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

const (
	DefaultMaxFiles       = 20000
	DefaultSidecarPattern = "*.vcxproj.filters"
	DefaultDebounce       = 300 * time.Millisecond
	DefaultLogLevel       = "info"
)

// DefaultExcludePatterns covers common build, VCS and IDE output directories.
var DefaultExcludePatterns = []string{
	"**/.git/**",
	"**/.svn/**",
	"**/.hg/**",
	"**/.vs/**",
	"**/.vscode/**",
	"**/node_modules/**",
	"**/bin/**",
	"**/obj/**",
	"**/build/**",
	"**/out/**",
	"**/Debug/**",
	"**/Release/**",
	"**/x64/**",
	"**/Win32/**",
	"**/ipch/**",
}

// DefaultConfig returns a Config populated with the defaults.
func DefaultConfig() Config {
	return Config{
		ExcludePatterns: append([]string(nil), DefaultExcludePatterns...),
		MaxFiles:        DefaultMaxFiles,
		SidecarPattern:  DefaultSidecarPattern,
		Debounce:        DefaultDebounce,
		LogLevel:        DefaultLogLevel,
	}
}

// Normalize fills zero values with defaults. A nil ExcludePatterns slice
// means "use defaults"; an empty non-nil slice disables exclusion.
func (c Config) Normalize() Config {
	if c.ExcludePatterns == nil {
		c.ExcludePatterns = append([]string(nil), DefaultExcludePatterns...)
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.SidecarPattern == "" {
		c.SidecarPattern = DefaultSidecarPattern
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}
