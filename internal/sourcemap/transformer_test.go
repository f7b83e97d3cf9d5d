package sourcemap

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dshills/mapdap/internal/integration/debug/dap"
)

func setArgs(path string, bps ...dap.SourceBreakpoint) *dap.SetBreakpointsArguments {
	return &dap.SetBreakpointsArguments{
		Source:      dap.Source{Path: path},
		Breakpoints: bps,
	}
}

func TestSetBreakpoints_MapsAuthoredToGenerated(t *testing.T) {
	m := newFakeMapper()
	m.link("app.js", "app.ts")
	m.pair("app.ts", 10, 2, "app.js", 5, 0)
	tr := newTestTransformer(m, fakeFS{})

	args := setArgs("app.ts",
		dap.SourceBreakpoint{Line: 10, Column: 2},
		dap.SourceBreakpoint{Line: 20},
	)
	if err := tr.SetBreakpoints(args, 7); err != nil {
		t.Fatalf("SetBreakpoints failed: %v", err)
	}

	if args.Source.Path != "app.js" {
		t.Errorf("expected path app.js, got %s", args.Source.Path)
	}
	want := []dap.SourceBreakpoint{{Line: 5, Column: 0}, {Line: 20, Column: 0}}
	if !reflect.DeepEqual(args.Breakpoints, want) {
		t.Errorf("expected %+v, got %+v", want, args.Breakpoints)
	}

	entry, ok := tr.ledger.Take(7)
	if !ok {
		t.Fatal("expected ledger entry for seq 7")
	}
	if entry.AuthoredPath != "app.ts" {
		t.Errorf("expected authored path app.ts, got %s", entry.AuthoredPath)
	}
}

func TestSetBreakpoints_UnmappedKeepsPosition(t *testing.T) {
	m := newFakeMapper()
	m.link("out.js", "src.ts")
	tr := newTestTransformer(m, fakeFS{})

	tests := []struct {
		name string
		in   dap.SourceBreakpoint
		want dap.SourceBreakpoint
	}{
		{"line only", dap.SourceBreakpoint{Line: 3}, dap.SourceBreakpoint{Line: 3, Column: 0}},
		{"line and column", dap.SourceBreakpoint{Line: 4, Column: 9}, dap.SourceBreakpoint{Line: 4, Column: 9}},
		{"condition kept", dap.SourceBreakpoint{Line: 8, Condition: "x > 1"}, dap.SourceBreakpoint{Line: 8, Condition: "x > 1"}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := setArgs("src.ts", tt.in)
			if err := tr.SetBreakpoints(args, i+1); err != nil {
				t.Fatalf("SetBreakpoints failed: %v", err)
			}
			if args.Breakpoints[0] != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, args.Breakpoints[0])
			}
		})
	}
}

func TestSetBreakpoints_MergesSiblingSources(t *testing.T) {
	m := newFakeMapper()
	m.link("bundle.js", "a.ts", "b.ts")
	m.pair("a.ts", 1, 0, "bundle.js", 100, 0)
	m.pair("a.ts", 2, 0, "bundle.js", 101, 0)
	m.pair("b.ts", 7, 0, "bundle.js", 200, 0)
	tr := newTestTransformer(m, fakeFS{})

	a := setArgs("a.ts", dap.SourceBreakpoint{Line: 1}, dap.SourceBreakpoint{Line: 2})
	if err := tr.SetBreakpoints(a, 1); err != nil {
		t.Fatalf("SetBreakpoints(a) failed: %v", err)
	}
	b := setArgs("b.ts", dap.SourceBreakpoint{Line: 7})
	if err := tr.SetBreakpoints(b, 2); err != nil {
		t.Fatalf("SetBreakpoints(b) failed: %v", err)
	}

	want := []dap.SourceBreakpoint{{Line: 200}, {Line: 100}, {Line: 101}}
	if !reflect.DeepEqual(b.Breakpoints, want) {
		t.Fatalf("expected merged %+v, got %+v", want, b.Breakpoints)
	}

	resp := []dap.Breakpoint{
		{ID: 1, Verified: true, Line: 200},
		{ID: 2, Verified: true, Line: 100},
		{ID: 3, Verified: true, Line: 101},
	}
	got := tr.SetBreakpointsResponse(resp, 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 breakpoint after truncation, got %d", len(got))
	}
	if got[0].Line != 7 || got[0].ID != 1 {
		t.Errorf("expected id 1 at line 7, got id %d at line %d", got[0].ID, got[0].Line)
	}
}

func TestSetBreakpoints_ClearingFileStillMerges(t *testing.T) {
	m := newFakeMapper()
	m.link("bundle.js", "a.ts", "b.ts")
	m.pair("a.ts", 1, 0, "bundle.js", 100, 0)
	tr := newTestTransformer(m, fakeFS{})

	if err := tr.SetBreakpoints(setArgs("a.ts", dap.SourceBreakpoint{Line: 1}), 1); err != nil {
		t.Fatal(err)
	}
	b := setArgs("b.ts")
	if err := tr.SetBreakpoints(b, 2); err != nil {
		t.Fatal(err)
	}

	if len(b.Breakpoints) != 1 || b.Breakpoints[0].Line != 100 {
		t.Fatalf("expected a.ts breakpoint carried along, got %+v", b.Breakpoints)
	}
	got := tr.SetBreakpointsResponse([]dap.Breakpoint{{ID: 9, Line: 100}}, 2)
	if len(got) != 0 {
		t.Errorf("expected no breakpoints for b.ts, got %+v", got)
	}
}

func TestSetBreakpoints_LoadedGeneratedPassesThrough(t *testing.T) {
	m := newFakeMapper()
	tr := newTestTransformer(m, fakeFS{})
	if _, err := tr.ScriptParsed(context.Background(), "plain.js", ""); err != nil {
		t.Fatal(err)
	}

	args := setArgs("plain.js", dap.SourceBreakpoint{Line: 12, Column: 3})
	if err := tr.SetBreakpoints(args, 4); err != nil {
		t.Fatalf("SetBreakpoints failed: %v", err)
	}
	if args.Source.Path != "plain.js" || args.Breakpoints[0].Line != 12 {
		t.Errorf("expected pass-through, got %+v", args)
	}

	resp := []dap.Breakpoint{{ID: 1, Line: 12, Column: 3}}
	got := tr.SetBreakpointsResponse(resp, 4)
	if !reflect.DeepEqual(got, resp) {
		t.Errorf("expected response unchanged, got %+v", got)
	}
	if tr.PendingRequests() != 0 {
		t.Errorf("expected ledger empty, got %d", tr.PendingRequests())
	}
}

func TestSetBreakpoints_NotLoaded(t *testing.T) {
	tr := newTestTransformer(newFakeMapper(), fakeFS{})

	err := tr.SetBreakpoints(setArgs("unknown.ts", dap.SourceBreakpoint{Line: 1}), 3)
	if !errors.Is(err, ErrSourceNotLoaded) {
		t.Fatalf("expected ErrSourceNotLoaded, got %v", err)
	}
	if tr.PendingRequests() != 0 {
		t.Errorf("expected no ledger entry, got %d", tr.PendingRequests())
	}
}

func TestSetBreakpoints_ResolvesReference(t *testing.T) {
	m := newFakeMapper()
	tr := newTestTransformer(m, fakeFS{})
	if _, err := tr.ScriptParsed(context.Background(), "gen.js", ""); err != nil {
		t.Fatal(err)
	}
	// The authored file is no longer mapped, so the generated file is used.
	ref := tr.handles.LookupOrCreate("gen.js", "/v/gone.ts", "let x = 1")

	args := &dap.SetBreakpointsArguments{
		Source:      dap.Source{SourceReference: ref},
		Breakpoints: []dap.SourceBreakpoint{{Line: 1}},
	}
	if err := tr.SetBreakpoints(args, 1); err != nil {
		t.Fatalf("SetBreakpoints failed: %v", err)
	}
	if args.Source.Path != "gen.js" {
		t.Errorf("expected path gen.js, got %q", args.Source.Path)
	}
	if args.Source.SourceReference != 0 {
		t.Errorf("expected reference cleared, got %d", args.Source.SourceReference)
	}
}

func TestInlineSources_SharedGeneratedFile(t *testing.T) {
	m := newFakeMapper()
	m.link("/out/app.js", "/v/a.ts", "/v/b.ts")
	m.pair("/v/a.ts", 1, 0, "/out/app.js", 10, 0)
	m.pair("/v/b.ts", 2, 0, "/out/app.js", 20, 0)
	m.contents["/v/a.ts"] = "AAA"
	m.contents["/v/b.ts"] = "BBB"
	tr := newTestTransformer(m, fakeFS{})

	frames := []dap.StackFrame{
		{Source: &dap.Source{Path: "/out/app.js"}, Line: 10},
		{Source: &dap.Source{Path: "/out/app.js"}, Line: 20},
	}
	tr.StackTraceResponse(frames)

	refA, refB := frames[0].Source.SourceReference, frames[1].Source.SourceReference
	if refA == 0 || refB == 0 || refA == refB {
		t.Fatalf("expected distinct references, got %d and %d", refA, refB)
	}
	for ref, want := range map[int]string{refA: "AAA", refB: "BBB"} {
		if got, _ := tr.SourceContent(ref); got != want {
			t.Errorf("SourceContent(%d) = %q, want %q", ref, got, want)
		}
	}

	again := []dap.StackFrame{{Source: &dap.Source{Path: "/out/app.js"}, Line: 20}}
	tr.StackTraceResponse(again)
	if again[0].Source.SourceReference != refB {
		t.Errorf("expected reused reference %d, got %d", refB, again[0].Source.SourceReference)
	}

	args := &dap.SetBreakpointsArguments{
		Source:      dap.Source{SourceReference: refB},
		Breakpoints: []dap.SourceBreakpoint{{Line: 2}},
	}
	if err := tr.SetBreakpoints(args, 7); err != nil {
		t.Fatalf("SetBreakpoints failed: %v", err)
	}
	if args.Source.Path != "/out/app.js" || args.Source.SourceReference != 0 {
		t.Errorf("unexpected outgoing source %+v", args.Source)
	}
	if len(args.Breakpoints) != 1 || args.Breakpoints[0].Line != 20 {
		t.Fatalf("expected breakpoint mapped to line 20, got %+v", args.Breakpoints)
	}

	got := tr.SetBreakpointsResponse([]dap.Breakpoint{{ID: 1, Verified: true, Line: 20}}, 7)
	if len(got) != 1 || got[0].Line != 2 {
		t.Errorf("expected response mapped back to line 2, got %+v", got)
	}
}

func TestSetBreakpoints_Disabled(t *testing.T) {
	tr := New(Options{Enabled: false, Mapper: newFakeMapper()})

	args := setArgs("anything.ts", dap.SourceBreakpoint{Line: 5, Column: 1})
	if err := tr.SetBreakpoints(args, 1); err != nil {
		t.Fatalf("SetBreakpoints failed: %v", err)
	}
	if args.Source.Path != "anything.ts" || args.Breakpoints[0].Line != 5 {
		t.Errorf("expected unchanged args, got %+v", args)
	}

	resp := []dap.Breakpoint{{ID: 1, Line: 5}}
	if got := tr.SetBreakpointsResponse(resp, 1); !reflect.DeepEqual(got, resp) {
		t.Errorf("expected unchanged response, got %+v", got)
	}
	if tr.handles != nil || tr.ledger != nil || tr.scripts != nil {
		t.Error("expected no state allocated when disabled")
	}
}

func TestSetBreakpointsResponse_UnknownSeq(t *testing.T) {
	tr := newTestTransformer(newFakeMapper(), fakeFS{})

	resp := []dap.Breakpoint{{ID: 1, Line: 3}}
	got := tr.SetBreakpointsResponse(resp, 99)
	if !reflect.DeepEqual(got, resp) {
		t.Errorf("expected unchanged response, got %+v", got)
	}
}

func TestSetBreakpointsResponse_MatchesBySeq(t *testing.T) {
	m := newFakeMapper()
	m.link("x.js", "x.ts", "y.ts")
	m.pair("x.ts", 1, 0, "x.js", 10, 0)
	m.pair("y.ts", 2, 0, "x.js", 20, 0)
	tr := newTestTransformer(m, fakeFS{})

	if err := tr.SetBreakpoints(setArgs("x.ts", dap.SourceBreakpoint{Line: 1}), 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetBreakpoints(setArgs("y.ts", dap.SourceBreakpoint{Line: 2}), 2); err != nil {
		t.Fatal(err)
	}

	// Responses arrive out of order.
	gotY := tr.SetBreakpointsResponse([]dap.Breakpoint{{ID: 2, Line: 20}, {ID: 1, Line: 10}}, 2)
	gotX := tr.SetBreakpointsResponse([]dap.Breakpoint{{ID: 1, Line: 10}}, 1)

	if len(gotY) != 1 || gotY[0].Line != 2 {
		t.Errorf("expected y.ts line 2, got %+v", gotY)
	}
	if len(gotX) != 1 || gotX[0].Line != 1 {
		t.Errorf("expected x.ts line 1, got %+v", gotX)
	}
}

func TestSetBreakpointsResponse_ShortResponse(t *testing.T) {
	m := newFakeMapper()
	m.link("g.js", "a.ts")
	m.pair("a.ts", 1, 0, "g.js", 11, 0)
	tr := newTestTransformer(m, fakeFS{})

	args := setArgs("a.ts", dap.SourceBreakpoint{Line: 1}, dap.SourceBreakpoint{Line: 2})
	if err := tr.SetBreakpoints(args, 1); err != nil {
		t.Fatal(err)
	}
	got := tr.SetBreakpointsResponse([]dap.Breakpoint{{ID: 1, Line: 11}}, 1)
	if len(got) != 1 || got[0].Line != 1 {
		t.Errorf("expected one breakpoint at line 1, got %+v", got)
	}
}

func TestRoundTrip(t *testing.T) {
	m := newFakeMapper()
	m.link("out.js", "in.ts")
	m.pair("in.ts", 3, 4, "out.js", 30, 8)
	m.pair("in.ts", 9, 0, "out.js", 41, 2)
	tr := newTestTransformer(m, fakeFS{})
	tr.MarkReady()
	ctx := context.Background()

	for _, p := range []MappedPosition{{"in.ts", 3, 4}, {"in.ts", 9, 0}} {
		g, ok, err := tr.MapToGenerated(ctx, p.Path, p.Line, p.Column)
		if err != nil || !ok {
			t.Fatalf("MapToGenerated(%+v) = %v, %v", p, ok, err)
		}
		back, ok, err := tr.MapToAuthored(ctx, g.Path, g.Line, g.Column)
		if err != nil || !ok {
			t.Fatalf("MapToAuthored(%+v) = %v, %v", g, ok, err)
		}
		if back != p {
			t.Errorf("round trip: expected %+v, got %+v", p, back)
		}
	}
}

func TestStackTraceResponse(t *testing.T) {
	m := newFakeMapper()
	m.link("app.js", "app.ts", "lib.ts")
	m.pair("/src/app.ts", 4, 1, "/out/app.js", 40, 10)
	m.pair("/virtual/lib.ts", 2, 0, "/out/app.js", 50, 0)
	m.pair("/gone/x.ts", 1, 0, "/out/app.js", 60, 0)
	m.contents["/virtual/lib.ts"] = "export const a = 1"
	fs := fakeFS{"/src/app.ts": true, "/out/app.js": true}

	tests := []struct {
		name     string
		frame    dap.StackFrame
		wantPath string
		wantName string
		wantRef  bool
		wantLine int
		wantCol  int
	}{
		{
			name:     "mapped on disk",
			frame:    dap.StackFrame{Source: &dap.Source{Path: "/out/app.js", SourceReference: 3}, Line: 40, Column: 10},
			wantPath: "/src/app.ts", wantName: "app.ts", wantLine: 4, wantCol: 1,
		},
		{
			name:     "mapped inline",
			frame:    dap.StackFrame{Source: &dap.Source{Path: "/out/app.js"}, Line: 50},
			wantPath: "", wantName: "lib.ts", wantRef: true, wantLine: 2, wantCol: 0,
		},
		{
			name:     "mapped without content falls back to generated",
			frame:    dap.StackFrame{Source: &dap.Source{Path: "/out/app.js", SourceReference: 8}, Line: 60},
			wantPath: "/out/app.js", wantLine: 60,
		},
		{
			name:     "unmapped on disk",
			frame:    dap.StackFrame{Source: &dap.Source{Path: "/out/app.js", SourceReference: 5}, Line: 1},
			wantPath: "/out/app.js", wantLine: 1,
		},
		{
			name:     "unmapped missing",
			frame:    dap.StackFrame{Source: &dap.Source{Path: "eval-1", SourceReference: 6}, Line: 2},
			wantPath: "", wantRef: true, wantLine: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTransformer(m, fs)
			frames := []dap.StackFrame{tt.frame}
			tr.StackTraceResponse(frames)

			src := frames[0].Source
			if src.Path != tt.wantPath {
				t.Errorf("expected path %q, got %q", tt.wantPath, src.Path)
			}
			if tt.wantName != "" && src.Name != tt.wantName {
				t.Errorf("expected name %q, got %q", tt.wantName, src.Name)
			}
			if tt.wantRef && src.SourceReference == 0 {
				t.Error("expected a content reference")
			}
			if !tt.wantRef && src.SourceReference != 0 {
				t.Errorf("expected no content reference, got %d", src.SourceReference)
			}
			if frames[0].Line != tt.wantLine || frames[0].Column != tt.wantCol {
				t.Errorf("expected %d:%d, got %d:%d", tt.wantLine, tt.wantCol, frames[0].Line, frames[0].Column)
			}
		})
	}
}

func TestStackTraceResponse_InlineContent(t *testing.T) {
	m := newFakeMapper()
	m.pair("/virtual/lib.ts", 2, 0, "/out/app.js", 50, 0)
	m.pair("/virtual/lib.ts", 3, 0, "/out/app.js", 51, 0)
	m.contents["/virtual/lib.ts"] = "export const a = 1"
	tr := newTestTransformer(m, fakeFS{})

	frames := []dap.StackFrame{
		{Source: &dap.Source{Path: "/out/app.js"}, Line: 50},
		{Source: &dap.Source{Path: "/out/app.js"}, Line: 51},
	}
	tr.StackTraceResponse(frames)

	ref := frames[0].Source.SourceReference
	if ref == 0 {
		t.Fatal("expected a content reference")
	}
	if frames[1].Source.SourceReference != ref {
		t.Errorf("expected reused reference %d, got %d", ref, frames[1].Source.SourceReference)
	}
	content, ok := tr.SourceContent(ref)
	if !ok || content != "export const a = 1" {
		t.Errorf("expected inline content, got %q (%v)", content, ok)
	}
}

func TestStackTraceResponse_Disabled(t *testing.T) {
	tr := New(Options{Enabled: false})

	frames := []dap.StackFrame{
		{Source: &dap.Source{Path: "/a.js", SourceReference: 4}, Line: 1},
		{Source: &dap.Source{Path: "/b.js"}, Line: 2},
		{Line: 3},
	}
	tr.StackTraceResponse(frames)

	if frames[0].Source.Path != "" || frames[0].Source.SourceReference != 4 {
		t.Errorf("expected reference only, got %+v", frames[0].Source)
	}
	if frames[1].Source.Path != "/b.js" {
		t.Errorf("expected path kept, got %+v", frames[1].Source)
	}
}

func TestBreakpointResolved(t *testing.T) {
	m := newFakeMapper()
	m.pair("a.ts", 3, 0, "a.js", 30, 4)
	tr := newTestTransformer(m, fakeFS{})

	bp := &dap.Breakpoint{ID: 1, Verified: true, Line: 30, Column: 4, Source: &dap.Source{Path: "a.js"}}
	tr.BreakpointResolved(bp, "a.js")
	if bp.Line != 3 || bp.Column != 0 {
		t.Errorf("expected 3:0, got %d:%d", bp.Line, bp.Column)
	}
	if bp.Source.Path != "a.js" {
		t.Errorf("expected source untouched, got %s", bp.Source.Path)
	}

	unmapped := &dap.Breakpoint{ID: 2, Line: 99, Column: 1}
	tr.BreakpointResolved(unmapped, "a.js")
	if unmapped.Line != 99 || unmapped.Column != 1 {
		t.Errorf("expected unmapped unchanged, got %d:%d", unmapped.Line, unmapped.Column)
	}
}

func TestScriptParsed(t *testing.T) {
	m := newFakeMapper()
	m.link("main.js", "main.ts", "util.ts")
	tr := newTestTransformer(m, fakeFS{})
	ctx := context.Background()

	sources, err := tr.ScriptParsed(ctx, "main.js", "main.js.map")
	if err != nil {
		t.Fatalf("ScriptParsed failed: %v", err)
	}
	if !reflect.DeepEqual(sources, []string{"main.ts", "util.ts"}) {
		t.Errorf("unexpected sources %v", sources)
	}
	if len(m.processed) != 1 || m.processed[0] != "main.js=main.js.map" {
		t.Errorf("expected map processed once, got %v", m.processed)
	}

	sources, err = tr.ScriptParsed(ctx, "other.js", "")
	if err != nil || len(sources) != 0 {
		t.Errorf("expected no sources without locator, got %v, %v", sources, err)
	}
	if len(m.processed) != 1 {
		t.Error("expected no processing without locator")
	}
	if !reflect.DeepEqual(tr.LoadedScripts(), []string{"main.js", "other.js"}) {
		t.Errorf("unexpected loaded scripts %v", tr.LoadedScripts())
	}
}

func TestScriptParsed_LoadError(t *testing.T) {
	m := newFakeMapper()
	m.loadErr = errLoad
	tr := newTestTransformer(m, fakeFS{})

	_, err := tr.ScriptParsed(context.Background(), "bad.js", "bad.js.map")
	if !errors.Is(err, errLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if len(tr.LoadedScripts()) != 1 {
		t.Error("expected script recorded despite map error")
	}
}

func TestClearTargetContext(t *testing.T) {
	m := newFakeMapper()
	m.link("g.js", "a.ts")
	m.pair("a.ts", 1, 0, "g.js", 10, 0)
	m.pair("/v/a.ts", 1, 0, "/g.js", 10, 0)
	m.contents["/v/a.ts"] = "x"
	tr := newTestTransformer(m, fakeFS{})
	ctx := context.Background()

	if _, err := tr.ScriptParsed(ctx, "g.js", "g.js.map"); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetBreakpoints(setArgs("a.ts", dap.SourceBreakpoint{Line: 1}), 5); err != nil {
		t.Fatal(err)
	}
	frames := []dap.StackFrame{{Source: &dap.Source{Path: "/g.js"}, Line: 10}}
	tr.StackTraceResponse(frames)
	ref := frames[0].Source.SourceReference

	tr.ClearTargetContext()

	if n := len(tr.LoadedScripts()); n != 0 {
		t.Errorf("expected no loaded scripts, got %d", n)
	}
	got := tr.SetBreakpointsResponse([]dap.Breakpoint{{ID: 1, Line: 10}}, 5)
	if len(got) != 1 || got[0].Line != 1 {
		t.Errorf("expected prior response still translated, got %+v", got)
	}
	if _, ok := tr.SourceContent(ref); !ok {
		t.Error("expected handle to survive")
	}
}

func TestQueries_WaitForGate(t *testing.T) {
	m := newFakeMapper()
	m.link("g.js", "a.ts")
	m.pair("a.ts", 1, 0, "g.js", 10, 0)
	tr := newTestTransformer(m, fakeFS{})

	result := make(chan MappedPosition, 1)
	go func() {
		pos, _, err := tr.MapToGenerated(context.Background(), "a.ts", 1, 0)
		if err != nil {
			t.Errorf("MapToGenerated failed: %v", err)
		}
		result <- pos
	}()

	select {
	case <-result:
		t.Fatal("query answered before gate opened")
	case <-time.After(20 * time.Millisecond):
	}

	tr.MarkReady()

	select {
	case pos := <-result:
		if pos.Line != 10 {
			t.Errorf("expected line 10, got %d", pos.Line)
		}
	case <-time.After(time.Second):
		t.Fatal("query not answered after gate opened")
	}
}

func TestQueries_Cancelled(t *testing.T) {
	tr := newTestTransformer(newFakeMapper(), fakeFS{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := tr.GeneratedPathFromAuthoredPath(ctx, "a.ts")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestQueries_Disabled(t *testing.T) {
	tr := New(Options{Enabled: false})
	ctx := context.Background()

	pos, ok, err := tr.MapToAuthored(ctx, "x.js", 4, 2)
	if err != nil || !ok || pos != (MappedPosition{"x.js", 4, 2}) {
		t.Errorf("expected identity, got %+v %v %v", pos, ok, err)
	}
	path, ok, err := tr.GeneratedPathFromAuthoredPath(ctx, "x.ts")
	if err != nil || !ok || path != "x.ts" {
		t.Errorf("expected identity path, got %q %v %v", path, ok, err)
	}
	if !tr.Ready() {
		t.Error("expected disabled transformer to be ready")
	}
}

func TestPreload(t *testing.T) {
	m := newFakeMapper()
	tr := newTestTransformer(m, fakeFS{})

	err := tr.Preload(context.Background(), []Script{
		{GeneratedPath: "a.js", Locator: "a.js.map"},
		{GeneratedPath: "b.js", Locator: "b.js.map"},
	})
	if err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	if len(m.processed) != 2 {
		t.Errorf("expected 2 maps processed, got %d", len(m.processed))
	}
	if !tr.Ready() {
		t.Error("expected gate open after preload")
	}
	if len(tr.LoadedScripts()) != 0 {
		t.Error("preload must not mark scripts as loaded")
	}
}

func TestPreload_FailuresOpenGate(t *testing.T) {
	m := newFakeMapper()
	m.loadErr = errLoad
	tr := newTestTransformer(m, fakeFS{})

	if err := tr.Preload(context.Background(), []Script{{GeneratedPath: "a.js", Locator: "x"}}); err != nil {
		t.Fatalf("expected per-script errors to be skipped, got %v", err)
	}
	if !tr.Ready() {
		t.Error("expected gate open")
	}
}

func TestClose(t *testing.T) {
	tr := newTestTransformer(newFakeMapper(), fakeFS{})
	tr.Close()

	if err := tr.SetBreakpoints(setArgs("a.ts"), 1); !errors.Is(err, ErrTransformerClosed) {
		t.Errorf("expected ErrTransformerClosed, got %v", err)
	}
	if _, err := tr.ScriptParsed(context.Background(), "a.js", ""); !errors.Is(err, ErrTransformerClosed) {
		t.Errorf("expected ErrTransformerClosed, got %v", err)
	}
	if _, _, err := tr.MapToGenerated(context.Background(), "a.ts", 1, 0); !errors.Is(err, ErrTransformerClosed) {
		t.Errorf("expected ErrTransformerClosed, got %v", err)
	}
}

func TestNew_RequiresMapper(t *testing.T) {
	tr := New(Options{Enabled: true})
	if tr.Enabled() {
		t.Error("expected transformer without mapper to be disabled")
	}
	if tr.ID() == "" {
		t.Error("expected an id")
	}
}

func TestDropPending(t *testing.T) {
	m := newFakeMapper()
	m.link("app.js", "app.ts")
	tr := newTestTransformer(m, fakeFS{})

	if err := tr.SetBreakpoints(setArgs("app.ts", dap.SourceBreakpoint{Line: 1}), 4); err != nil {
		t.Fatalf("SetBreakpoints failed: %v", err)
	}
	if tr.PendingRequests() != 1 {
		t.Fatalf("expected 1 pending request, got %d", tr.PendingRequests())
	}

	tr.DropPending(4)
	if tr.PendingRequests() != 0 {
		t.Errorf("expected no pending requests, got %d", tr.PendingRequests())
	}
	tr.DropPending(4)
}
