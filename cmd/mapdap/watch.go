package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/mapdap/internal/sourcemap/mapfile"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <generated-file>...",
		Short: "Keep source maps loaded and reload them when they change",
		Long: `Load the source maps of generated files and reload each one when its
map file changes on disk, printing the authored sources after every reload.

Runs until interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			if err := env.requireMaps(); err != nil {
				return err
			}
			defer env.transformer.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			reload := func(generated, locator string) error {
				if err := env.transformer.Reload(ctx, generated, locator); err != nil {
					return err
				}
				sources := env.store.AllMappedSources(generated)
				return env.print(sourcesResult{Generated: generated, Sources: sources},
					fmt.Sprintf("%s reloaded:\n  %s", generated, strings.Join(sources, "\n  ")))
			}
			watcher, err := mapfile.NewWatcher(reload, mapfile.WithLogger(env.logger))
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			for _, arg := range args {
				generated, sources, err := env.ingest(ctx, arg, "")
				if err != nil {
					return err
				}
				mapPath, ok := env.store.MapFiles()[generated]
				if !ok {
					env.logger.Warn("map is inline, nothing to watch", "generated", generated)
					continue
				}
				locator, _ := env.store.Locator(generated)
				if err := watcher.Add(generated, mapPath, locator); err != nil {
					return fmt.Errorf("watch %s: %w", mapPath, err)
				}
				if err := env.print(sourcesResult{Generated: generated, Sources: sources},
					fmt.Sprintf("%s:\n  %s", generated, strings.Join(sources, "\n  "))); err != nil {
					return err
				}
			}

			if watcher.Watched() == 0 {
				return fmt.Errorf("no map files to watch")
			}
			env.logger.Info("watching source maps", "count", watcher.Watched())
			<-ctx.Done()
			return nil
		},
	}
}
