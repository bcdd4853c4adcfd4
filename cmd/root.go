package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filtertree/api"
	"github.com/agentic-research/filtertree/internal/config"
	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/ingest"
	"github.com/agentic-research/filtertree/internal/logging"
	"github.com/agentic-research/filtertree/internal/provider"
)

var version = "dev"

var (
	configPath string
	rootDirs   []string
	logLevel   string
	maxFiles   int
	excludes   []string
	workspace  string
)

var rootCmd = &cobra.Command{
	Use:           "filtertree",
	Short:         "Browse and edit the filter tree of Visual Studio projects",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to the HCL config (default <first root>/"+config.FileName+")")
	pf.StringSliceVarP(&rootDirs, "root", "r", nil, "Workspace root; repeat for multi-root (default .)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.IntVar(&maxFiles, "max-files", 0, "Ceiling on files scanned per root")
	pf.StringSliceVarP(&excludes, "exclude", "x", nil, "Additional exclusion glob")
	pf.StringVarP(&workspace, "workspace", "w", "", "Root a filter command applies to (default first root)")
}

// Execute runs the root command.
func Execute() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func workspaces() []string {
	if len(rootDirs) == 0 {
		return []string{"."}
	}
	return rootDirs
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (api.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspaces()[0], config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if maxFiles > 0 {
		cfg.MaxFiles = maxFiles
	}
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, excludes...)
	return cfg, nil
}

// openProvider sets up logging and returns a provider over every root.
// readOnly disables the stale-entry cleanup that building normally does.
func openProvider(readOnly bool) (*provider.Provider, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel}); err != nil {
		return nil, err
	}
	engine, err := ingest.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	engine.ReadOnly = readOnly
	return provider.New(engine, workspaces()...)
}

// targetRoot is the root named by --workspace, or the first one.
func targetRoot(p *provider.Provider) (string, error) {
	roots := p.Roots()
	if workspace == "" {
		return roots[0].Workspace, nil
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	for _, r := range roots {
		if r.Workspace == abs {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", provider.ErrUnknownRoot, workspace)
}

// filterArg accepts either separator on the command line.
func filterArg(s string) string {
	return graph.Clean(strings.ReplaceAll(s, "/", graph.Separator))
}

// lookupFilter finds an existing filter in the current tree of ws.
func lookupFilter(p *provider.Provider, ws, path string) (*graph.Filter, error) {
	tree, err := p.Tree(ws)
	if err != nil {
		return nil, err
	}
	f, err := tree.Lookup(path)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", path, err)
	}
	return f, nil
}
