package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type sourcesResult struct {
	Generated string   `json:"generated"`
	Sources   []string `json:"sources"`
}

func newSourcesCmd(flags *globalFlags) *cobra.Command {
	var mapLocator string

	cmd := &cobra.Command{
		Use:   "sources <generated-file>",
		Short: "List the authored sources a generated file maps from",
		Long: `Load the source map of a generated file and list its authored sources.

The map is found from the file's sourceMappingURL comment unless --map
names it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			if err := env.requireMaps(); err != nil {
				return err
			}
			defer env.transformer.Close()

			generated, sources, err := env.ingest(cmd.Context(), args[0], mapLocator)
			if err != nil {
				return err
			}
			return env.print(sourcesResult{Generated: generated, Sources: sources}, strings.Join(sources, "\n"))
		},
	}
	cmd.Flags().StringVar(&mapLocator, "map", "", "Source map locator (path, file: URL or data: URI)")
	return cmd
}

type positionResult struct {
	From   location `json:"from"`
	To     location `json:"to"`
	Mapped bool     `json:"mapped"`
}

func (r positionResult) String() string {
	if !r.Mapped {
		return fmt.Sprintf("%s: no mapping", formatLocation(r.From))
	}
	return formatLocation(r.To)
}

func formatLocation(l location) string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

func newToGeneratedCmd(flags *globalFlags) *cobra.Command {
	var mapLocator string

	cmd := &cobra.Command{
		Use:   "to-generated <generated-file> <authored-file>:<line>[:<column>]",
		Short: "Map an authored position into its generated file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseLocation(args[1], true)
			if err != nil {
				return err
			}

			env, err := newEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			if err := env.requireMaps(); err != nil {
				return err
			}
			defer env.transformer.Close()

			ctx := cmd.Context()
			if err := env.preload(ctx); err != nil {
				return err
			}
			if _, _, err := env.ingest(ctx, args[0], mapLocator); err != nil {
				return err
			}

			pos, ok, err := env.transformer.MapToGenerated(ctx, from.Path, from.Line, from.Column)
			if err != nil {
				return err
			}
			res := positionResult{From: from, Mapped: ok}
			if ok {
				res.To = location{Path: pos.Path, Line: pos.Line, Column: pos.Column}
			}
			return env.print(res, res.String())
		},
	}
	cmd.Flags().StringVar(&mapLocator, "map", "", "Source map locator (path, file: URL or data: URI)")
	return cmd
}

func newToAuthoredCmd(flags *globalFlags) *cobra.Command {
	var mapLocator string

	cmd := &cobra.Command{
		Use:   "to-authored <generated-file> <line>[:<column>]",
		Short: "Map a generated position back to its authored source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseLocation(args[1], false)
			if err != nil {
				return err
			}

			env, err := newEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			if err := env.requireMaps(); err != nil {
				return err
			}
			defer env.transformer.Close()

			ctx := cmd.Context()
			if err := env.preload(ctx); err != nil {
				return err
			}
			generated, _, err := env.ingest(ctx, args[0], mapLocator)
			if err != nil {
				return err
			}

			pos.Path = generated
			mapped, ok, err := env.transformer.MapToAuthored(ctx, generated, pos.Line, pos.Column)
			if err != nil {
				return err
			}
			res := positionResult{From: pos, Mapped: ok}
			if ok {
				res.To = location{Path: mapped.Path, Line: mapped.Line, Column: mapped.Column}
			}
			return env.print(res, res.String())
		},
	}
	cmd.Flags().StringVar(&mapLocator, "map", "", "Source map locator (path, file: URL or data: URI)")
	return cmd
}
