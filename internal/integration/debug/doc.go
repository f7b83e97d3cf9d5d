// Package debug drives a Debug Adapter Protocol session for programs whose
// running code was generated from other sources.
//
// A Session owns a dap.Client and a sourcemap.Transformer. Requests and
// events that carry source positions pass through the transformer, so
// callers work in authored files while the adapter sees generated ones:
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Session                                                 │
//	│  - setBreakpoints: authored -> generated -> authored     │
//	│  - stackTrace, breakpoint events: generated -> authored  │
//	│  - loadedSource events: ingest the file's source map     │
//	└──────────────────────────────────────────────────────────┘
//	                             │
//	                             ▼
//	┌──────────────────────────────────────────────────────────┐
//	│  dap.Client  (Content-Length framed JSON over a stream)  │
//	└──────────────────────────────────────────────────────────┘
//
// # Breakpoints
//
// A BreakpointManager keeps the user's breakpoints. Files the runtime has
// not loaded yet cannot be sent; the manager defers them and sends them
// again when a loaded script maps to them. Wire it into the session:
//
//	mgr := debug.NewBreakpointManager(session)
//	session.SetHandlers(debug.SessionHandlers{
//	    OnSourcesLoaded: func(gen string, authored []string) {
//	        mgr.HandleSourcesLoaded(gen, authored, nil)
//	    },
//	    OnBreakpointChanged: mgr.HandleBreakpointChanged,
//	})
//
// # Call stacks
//
// A StackNavigator fetches and caches call stacks per thread. Frames whose
// authored text only exists inside a source map carry a source reference;
// FrameSource serves that text locally.
package debug
