package sourcemap

import (
	"fmt"

	"github.com/dshills/mapdap/internal/integration/debug/dap"
)

// SetBreakpoints rewrites args in place from authored into generated
// space before the request with sequence number seq is sent.
//
// A source given only by a reference id is resolved to the authored file
// its inline content belongs to, falling back to the generated file when
// that authored file no longer maps there.
//
// A request for an authored file is redirected to the generated file it
// compiles into, and carries along the breakpoints last set in every
// other authored file that shares that generated file. Requests for
// loaded generated files pass through. Any other path yields
// ErrSourceNotLoaded, and nothing is recorded for seq.
func (t *Transformer) SetBreakpoints(args *dap.SetBreakpointsArguments, seq int) error {
	if !t.enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransformerClosed
	}

	if args.Source.Path == "" && args.Source.SourceReference != 0 {
		if src, ok := t.handles.Get(args.Source.SourceReference); ok {
			args.Source.Path = src.GeneratedPath
			if generatedPath, ok := t.mapper.GeneratedPathFromAuthoredPath(src.AuthoredPath); ok && generatedPath == src.GeneratedPath {
				args.Source.Path = src.AuthoredPath
			}
			args.Source.SourceReference = 0
		}
	}

	var (
		authoredPath string
		origins      []string
	)

	if path := args.Source.Path; path != "" {
		generatedPath, ok := t.mapper.GeneratedPathFromAuthoredPath(path)
		switch {
		case ok:
			authoredPath = path
			args.Source.Path = generatedPath

			own := make([]dap.SourceBreakpoint, len(args.Breakpoints))
			for i, bp := range args.Breakpoints {
				own[i] = t.toGenerated(authoredPath, bp)
			}
			t.ledger.SetAuthoredBreakpoints(authoredPath, own)

			merged := own
			origins = make([]string, len(own))
			for i := range origins {
				origins[i] = authoredPath
			}
			for _, other := range t.mapper.AllMappedSources(generatedPath) {
				if other == authoredPath {
					continue
				}
				bps, ok := t.ledger.AuthoredBreakpoints(other)
				if !ok {
					continue
				}
				merged = append(merged, bps...)
				for range bps {
					origins = append(origins, other)
				}
			}
			args.Breakpoints = merged

			t.logger.Debug("breakpoints mapped to generated",
				"seq", seq, "authored", authoredPath, "generated", generatedPath,
				"own", len(own), "total", len(merged))

		case t.scripts.Has(path):
			t.logger.Debug("breakpoints for loaded script passed through", "seq", seq, "path", path)

		default:
			return fmt.Errorf("%w: %s", ErrSourceNotLoaded, path)
		}
	}

	evicted := t.ledger.Put(seq, PendingSet{
		Args:         *args,
		AuthoredPath: authoredPath,
		Origins:      origins,
	})
	for _, old := range evicted {
		t.logger.Warn("dropped unanswered setBreakpoints request", "seq", old)
	}
	return nil
}

// toGenerated maps one breakpoint, leaving it unchanged when the authored
// position has no mapping.
func (t *Transformer) toGenerated(authoredPath string, bp dap.SourceBreakpoint) dap.SourceBreakpoint {
	pos, ok := t.mapper.MapToGenerated(authoredPath, bp.Line, bp.Column)
	if !ok {
		return bp
	}
	bp.Line = pos.Line
	bp.Column = pos.Column
	return bp
}
