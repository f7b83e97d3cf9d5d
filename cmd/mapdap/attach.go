package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/mapdap/internal/integration/debug"
	"github.com/dshills/mapdap/internal/integration/debug/dap"
	"github.com/dshills/mapdap/internal/sourcemap/mapfile"
)

type attachOptions struct {
	request     string
	requestArgs string
	breakpoints []string
	adapterID   string
}

func newAttachCmd(flags *globalFlags) *cobra.Command {
	opts := &attachOptions{}

	cmd := &cobra.Command{
		Use:   "attach [address]",
		Short: "Connect to a debug adapter and debug in authored sources",
		Long: `Connect to a debug adapter over TCP, set breakpoints in authored files
and print call stacks in authored coordinates whenever the program stops.

The address defaults to adapter.address from the configuration.

Examples:
  mapdap attach localhost:4711 --break src/app.ts:10
  mapdap attach --request launch --args '{"program":"out/app.js"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			address := env.cfg.Adapter.Address
			if len(args) == 1 {
				address = args[0]
			}
			if address == "" {
				return fmt.Errorf("no adapter address given")
			}
			return runAttach(cmd.Context(), env, address, opts)
		},
	}
	cmd.Flags().StringVar(&opts.request, "request", "attach", "Request to start the debuggee: attach or launch")
	cmd.Flags().StringVar(&opts.requestArgs, "args", "{}", "JSON arguments for the attach or launch request")
	cmd.Flags().StringArrayVar(&opts.breakpoints, "break", nil, "Breakpoint as file:line[:column] (repeatable)")
	cmd.Flags().StringVar(&opts.adapterID, "adapter-id", "node", "Adapter id sent in the initialize request")
	return cmd
}

func runAttach(parent context.Context, env *environment, address string, opts *attachOptions) error {
	if opts.request != "attach" && opts.request != "launch" {
		return fmt.Errorf("unknown request %q", opts.request)
	}
	var requestArgs json.RawMessage
	if err := json.Unmarshal([]byte(opts.requestArgs), &requestArgs); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}
	var locations []location
	for _, b := range opts.breakpoints {
		loc, err := parseLocation(b, true)
		if err != nil {
			return err
		}
		locations = append(locations, loc)
	}

	ctx, stop := signalContext(parent)
	defer stop()

	if err := env.preload(ctx); err != nil {
		return err
	}

	var watcher *mapfile.Watcher
	if env.cfg.SourceMaps.Watch && env.transformer.Enabled() {
		var err error
		watcher, err = mapfile.NewWatcher(func(generated, locator string) error {
			return env.transformer.Reload(ctx, generated, locator)
		}, mapfile.WithLogger(env.logger))
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()
	}
	watchScript := func(generated, locator string) {
		if watcher == nil {
			return
		}
		if mapPath, ok := env.store.MapFiles()[generated]; ok {
			if err := watcher.Add(generated, mapPath, locator); err != nil {
				env.logger.Warn("cannot watch source map", "map", mapPath, "error", err)
			}
		}
	}

	session, err := debug.DialSession(address,
		debug.WithTransformer(env.transformer),
		debug.WithLogger(env.logger.WithField("session", env.transformer.ID())),
		debug.WithScriptHook(watchScript),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	mgr := debug.NewBreakpointManager(session)
	nav := debug.NewStackNavigator(session)

	var outMu sync.Mutex
	printf := func(format string, a ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(env.out, format, a...)
	}

	terminated := make(chan struct{})
	var once sync.Once
	session.SetHandlers(debug.SessionHandlers{
		OnSourcesLoaded: func(generated string, authored []string) {
			mgr.HandleSourcesLoaded(generated, authored, nil)
		},
		OnBreakpointChanged: func(reason string, bp dap.Breakpoint) {
			mgr.HandleBreakpointChanged(reason, bp)
			printf("breakpoint %d %s: verified=%v line=%d\n", bp.ID, reason, bp.Verified, bp.Line)
		},
		OnStopped: func(reason string, threadID int, _ bool) {
			go func() {
				if _, err := nav.GetCallStack(ctx, threadID); err != nil {
					env.logger.Warn("stack trace failed", "thread", threadID, "error", err)
					return
				}
				printf("stopped (%s) on thread %d\n%s", reason, threadID, nav.FormatStackTrace(threadID))
			}()
		},
		OnTerminated: func() {
			once.Do(func() { close(terminated) })
		},
	})

	timeout := time.Duration(env.cfg.Adapter.TimeoutMs) * time.Millisecond
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cfg := debug.DefaultSessionConfig()
	cfg.AdapterID = opts.adapterID
	cfg.LinesStartAt1 = env.cfg.SourceMaps.LinesStartAt1
	cfg.ColumnsStartAt1 = env.cfg.SourceMaps.ColumnsStartAt1
	if err := session.Initialize(reqCtx, cfg); err != nil {
		return err
	}

	for _, loc := range locations {
		if loc.Column > 0 {
			mgr.AddColumnBreakpoint(loc.Path, loc.Line, loc.Column)
		} else {
			mgr.AddLineBreakpoint(loc.Path, loc.Line)
		}
	}

	// Some adapters answer attach and launch only after configurationDone.
	started := make(chan error, 1)
	go func() {
		if opts.request == "launch" {
			started <- session.Launch(ctx, requestArgs)
		} else {
			started <- session.Attach(ctx, requestArgs)
		}
	}()

	if err := mgr.SyncToSession(reqCtx); err != nil {
		return err
	}
	if deferred := mgr.Deferred(); len(deferred) > 0 {
		env.logger.Info("breakpoints waiting for sources to load", "files", deferred)
	}
	if err := session.ConfigurationDone(reqCtx); err != nil {
		return err
	}

	select {
	case err := <-started:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	select {
	case <-terminated:
		printf("debuggee terminated\n")
	case <-ctx.Done():
		dctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := session.Disconnect(dctx, false); err != nil {
			env.logger.Debug("disconnect failed", "error", err)
		}
	}
	return nil
}
