package sourcemap

import (
	"path/filepath"

	"github.com/dshills/mapdap/internal/integration/debug/dap"
)

// SetBreakpointsResponse rewrites the breakpoints the runtime returned for
// request seq back into the authored file the caller asked about.
// Breakpoints that were merged in from other authored files are dropped.
// Responses with no recorded request are returned unchanged.
func (t *Transformer) SetBreakpointsResponse(bps []dap.Breakpoint, seq int) []dap.Breakpoint {
	if !t.enabled {
		return bps
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.ledger.Take(seq)
	if !ok {
		t.logger.Debug("no pending request for setBreakpoints response", "seq", seq)
		return bps
	}
	if entry.AuthoredPath == "" {
		return bps
	}

	if len(bps) != len(entry.Origins) {
		t.logger.Warn("setBreakpoints response length differs from request",
			"seq", seq, "sent", len(entry.Origins), "received", len(bps))
	}
	if own := entry.OwnCount(); len(bps) > own {
		bps = bps[:own]
	}

	generatedPath := entry.Args.Source.Path
	for i := range bps {
		t.toAuthored(&bps[i], generatedPath)
	}
	return bps
}

// DropPending forgets request seq without a response, for requests that
// failed or were never answered.
func (t *Transformer) DropPending(seq int) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledger.Take(seq)
}

// BreakpointResolved rewrites a runtime-reported breakpoint in
// generatedPath into authored coordinates. Only the line and column
// change.
func (t *Transformer) BreakpointResolved(bp *dap.Breakpoint, generatedPath string) {
	if !t.enabled || bp == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.toAuthored(bp, generatedPath)
}

func (t *Transformer) toAuthored(bp *dap.Breakpoint, generatedPath string) {
	pos, ok := t.mapper.MapToAuthored(generatedPath, bp.Line, bp.Column)
	if !ok {
		return
	}
	bp.Line = pos.Line
	bp.Column = pos.Column
}

// StackTraceResponse rewrites frames in place so each names a source the
// caller can open: an authored file on disk, an inline source served by
// reference id, or a generated file on disk. Frames whose source cannot
// be opened keep only their reference id.
func (t *Transformer) StackTraceResponse(frames []dap.StackFrame) {
	if !t.enabled {
		for i := range frames {
			if src := frames[i].Source; src != nil && src.Path != "" && src.SourceReference != 0 {
				src.Path = ""
			}
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range frames {
		if frames[i].Source != nil {
			t.translateFrame(&frames[i])
		}
	}
}

func (t *Transformer) translateFrame(frame *dap.StackFrame) {
	src := frame.Source
	if src.Path != "" {
		pos, ok := t.mapper.MapToAuthored(src.Path, frame.Line, frame.Column)
		if ok {
			switch {
			case t.fs.Exists(pos.Path):
				src.Path = pos.Path
				src.Name = filepath.Base(pos.Path)
				src.SourceReference = 0
				frame.Line = pos.Line
				frame.Column = pos.Column
				return
			default:
				if contents, ok := t.mapper.SourceContentFor(src.Path, pos.Path); ok {
					src.SourceReference = t.handles.LookupOrCreate(src.Path, pos.Path, contents)
					src.Path = ""
					src.Name = filepath.Base(pos.Path)
					frame.Line = pos.Line
					frame.Column = pos.Column
					return
				}
				t.logger.Debug("authored source unavailable, keeping generated frame",
					"generated", src.Path, "authored", pos.Path)
			}
		}
	}

	if t.fs.Exists(src.Path) {
		src.SourceReference = 0
	} else {
		src.Path = ""
	}
}
