package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/dshills/mapdap/internal/config"
	"github.com/dshills/mapdap/internal/logging"
	"github.com/dshills/mapdap/internal/sourcemap"
	"github.com/dshills/mapdap/internal/sourcemap/mapfile"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "mapdap",
		Short: "Source map translation for debug adapter sessions",
		Long: `mapdap translates debugger positions between authored sources and the
generated files a runtime executes, using revision 3 source maps.

Examples:
  mapdap sources out/app.js
  mapdap to-generated out/app.js src/app.ts:10
  mapdap to-authored out/app.js 5:1
  mapdap attach localhost:9229 --break src/app.ts:10`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("mapdap version {{.Version}}\n")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to configuration file (TOML or YAML)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Write results as JSON")

	root.AddCommand(
		newSourcesCmd(flags),
		newToGeneratedCmd(flags),
		newToAuthoredCmd(flags),
		newWatchCmd(flags),
		newAttachCmd(flags),
	)
	return root
}

// environment is the translation stack a command runs against.
type environment struct {
	cfg         config.Config
	logger      *logging.Logger
	store       *mapfile.Store
	transformer *sourcemap.Transformer
	out         io.Writer
	json        bool
}

func newEnvironment(cmd *cobra.Command, flags *globalFlags) (*environment, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	logger := logging.New(lc)

	store := mapfile.NewStore(mapfile.Options{
		LinesStartAt1:   cfg.SourceMaps.LinesStartAt1,
		ColumnsStartAt1: cfg.SourceMaps.ColumnsStartAt1,
		Logger:          logger,
	})
	tr := sourcemap.New(sourcemap.Options{
		Enabled:        cfg.SourceMaps.Enabled,
		Mapper:         store,
		LedgerCapacity: cfg.Ledger.Capacity,
		Logger:         logger,
	})
	logger.Debug("environment ready", "transformer", tr.ID(), "enabled", tr.Enabled())

	return &environment{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		transformer: tr,
		out:         cmd.OutOrStdout(),
		json:        flags.jsonOutput,
	}, nil
}

func (e *environment) requireMaps() error {
	if !e.transformer.Enabled() {
		return fmt.Errorf("source maps are disabled by configuration")
	}
	return nil
}

// preload ingests the maps of every generated file matching the
// configured outFiles patterns and opens the ready gate. Patterns may use
// ** to match any number of directories.
func (e *environment) preload(ctx context.Context) error {
	var scripts []sourcemap.Script
	seen := make(map[string]bool)
	for _, pattern := range e.cfg.SourceMaps.OutFiles {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return fmt.Errorf("outFiles pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || seen[abs] {
				continue
			}
			seen[abs] = true
			locator, err := mapfile.FindSourceMapURLInFile(abs)
			if err != nil {
				e.logger.Debug("no source map for out file", "path", abs, "error", err)
				continue
			}
			scripts = append(scripts, sourcemap.Script{GeneratedPath: abs, Locator: locator})
		}
	}
	return e.transformer.Preload(ctx, scripts)
}

// ingest loads the map of one generated file as if the runtime had just
// reported it. An empty locator is read from the file's sourceMappingURL
// comment.
func (e *environment) ingest(ctx context.Context, generated, locator string) (string, []string, error) {
	abs, err := filepath.Abs(generated)
	if err != nil {
		return "", nil, err
	}
	if locator == "" {
		locator, err = mapfile.FindSourceMapURLInFile(abs)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", generated, err)
		}
	}
	sources, err := e.transformer.ScriptParsed(ctx, abs, locator)
	if err != nil {
		return "", nil, err
	}
	return abs, sources, nil
}

func (e *environment) print(v any, text string) error {
	if e.json {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(e.out, string(data))
		return err
	}
	_, err := fmt.Fprintln(e.out, text)
	return err
}

// location is a parsed path:line[:column] argument.
type location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// parseLocation reads "path:line" or "path:line:column". Paths may
// themselves contain colons.
func parseLocation(s string, needPath bool) (location, error) {
	parts := strings.Split(s, ":")
	var nums []int
	for len(parts) > 0 && len(nums) < 2 {
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			break
		}
		nums = append([]int{n}, nums...)
		parts = parts[:len(parts)-1]
	}
	path := strings.Join(parts, ":")

	if len(nums) == 0 {
		return location{}, fmt.Errorf("invalid location %q: missing line", s)
	}
	if needPath && path == "" {
		return location{}, fmt.Errorf("invalid location %q: missing path", s)
	}
	if !needPath && path != "" {
		return location{}, fmt.Errorf("invalid position %q", s)
	}

	loc := location{Path: path, Line: nums[0]}
	if len(nums) == 2 {
		loc.Column = nums[1]
	}
	if loc.Line < 0 || loc.Column < 0 {
		return location{}, fmt.Errorf("invalid location %q: negative position", s)
	}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return location{}, err
		}
		loc.Path = abs
	}
	return loc, nil
}

// signalContext is cancelled on interrupt or termination.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
