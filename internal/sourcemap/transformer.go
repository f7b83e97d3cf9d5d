// Package sourcemap translates debug protocol traffic between the authored
// sources a user edits and the generated files a runtime executes.
//
// A Transformer sits between a debug session and its adapter. Outgoing
// setBreakpoints requests are rewritten into generated coordinates before
// they are sent; responses, stack traces and breakpoint events are
// rewritten back into authored coordinates before the session reports
// them. All position arithmetic is delegated to a Mapper.
package sourcemap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/mapdap/internal/logging"
)

// Errors returned by the transformer.
var (
	ErrSourceNotLoaded   = errors.New("source not loaded")
	ErrTransformerClosed = errors.New("transformer closed")
)

// Options configures a Transformer.
type Options struct {
	// Enabled turns translation on. A disabled transformer passes every
	// request through unchanged and allocates no state.
	Enabled bool

	// Mapper answers position queries. Required when Enabled.
	Mapper Mapper

	// FileSystem checks whether files exist. Defaults to OSFileSystem.
	FileSystem FileSystem

	// LedgerCapacity bounds the number of unanswered setBreakpoints
	// requests remembered. Zero selects DefaultLedgerCapacity.
	LedgerCapacity int

	// Logger receives diagnostics. Nil discards them.
	Logger *logging.Logger
}

// Script names a generated file and the locator of its source map.
type Script struct {
	GeneratedPath string
	Locator       string
}

// Transformer holds the translation state of one debug session.
type Transformer struct {
	id      string
	enabled bool
	mapper  Mapper
	fs      FileSystem
	logger  *logging.Logger
	gate    *ReadyGate

	mu      sync.Mutex
	closed  bool
	handles *HandleRegistry
	scripts *ScriptTracker
	ledger  *Ledger
}

// New creates a transformer.
func New(opts Options) *Transformer {
	id := uuid.New().String()
	t := &Transformer{
		id:      id,
		enabled: opts.Enabled && opts.Mapper != nil,
		logger:  opts.Logger.WithComponent("sourcemap").WithField("transformer", id),
	}
	if opts.Enabled && opts.Mapper == nil {
		t.logger.Warn("source maps enabled without a mapper, translation disabled")
	}
	if !t.enabled {
		return t
	}

	t.mapper = opts.Mapper
	t.fs = opts.FileSystem
	if t.fs == nil {
		t.fs = OSFileSystem{}
	}
	t.gate = NewReadyGate()
	t.handles = NewHandleRegistry()
	t.scripts = NewScriptTracker()
	t.ledger = NewLedger(opts.LedgerCapacity)
	return t
}

// ID returns the transformer's unique id.
func (t *Transformer) ID() string {
	return t.id
}

// Enabled reports whether translation is active.
func (t *Transformer) Enabled() bool {
	return t.enabled
}

// Close releases the transformer. Later calls that need state return
// ErrTransformerClosed. Queries blocked on the ready gate are released.
func (t *Transformer) Close() {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.gate.Open()
}

// Preload ingests the source maps of scripts before the runtime reports
// them, then opens the ready gate. Individual failures are logged and
// skipped.
func (t *Transformer) Preload(ctx context.Context, scripts []Script) error {
	if !t.enabled {
		return nil
	}
	defer t.MarkReady()

	for _, s := range scripts {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrTransformerClosed
		}
		err := t.mapper.ProcessNewSourceMap(ctx, s.GeneratedPath, s.Locator)
		t.mu.Unlock()

		if err != nil {
			t.logger.Warn("preload source map failed", "generated", s.GeneratedPath, "error", err)
			continue
		}
		t.logger.Debug("preloaded source map", "generated", s.GeneratedPath)
	}
	return nil
}

// MarkReady opens the ready gate without preloading.
func (t *Transformer) MarkReady() {
	if t.enabled {
		t.gate.Open()
	}
}

// Ready reports whether the ready gate is open. A disabled transformer is
// always ready.
func (t *Transformer) Ready() bool {
	return !t.enabled || t.gate.Ready()
}

// ScriptParsed records that the runtime loaded generatedPath and ingests
// the map named by locator. It returns the authored paths the generated
// file maps from.
func (t *Transformer) ScriptParsed(ctx context.Context, generatedPath, locator string) ([]string, error) {
	if !t.enabled {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransformerClosed
	}

	t.scripts.Add(generatedPath)
	if locator == "" {
		return nil, nil
	}
	if err := t.mapper.ProcessNewSourceMap(ctx, generatedPath, locator); err != nil {
		return nil, fmt.Errorf("process source map for %s: %w", generatedPath, err)
	}

	sources := t.mapper.AllMappedSources(generatedPath)
	t.logger.Debug("script parsed", "generated", generatedPath, "sources", len(sources))
	return sources, nil
}

// Reload re-ingests the map of a generated file whose map changed on
// disk. The loaded-script set is not touched.
func (t *Transformer) Reload(ctx context.Context, generatedPath, locator string) error {
	if !t.enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransformerClosed
	}
	if err := t.mapper.ProcessNewSourceMap(ctx, generatedPath, locator); err != nil {
		return fmt.Errorf("reload source map for %s: %w", generatedPath, err)
	}
	return nil
}

// ClearTargetContext forgets loaded scripts after the runtime restarts.
// Handles and cached breakpoints survive.
func (t *Transformer) ClearTargetContext() {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts.Reset()
	t.logger.Debug("target context cleared")
}

// LoadedScripts returns the generated paths the runtime has loaded.
func (t *Transformer) LoadedScripts() []string {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scripts.Paths()
}

// PendingRequests returns the number of setBreakpoints requests awaiting
// a response.
func (t *Transformer) PendingRequests() int {
	if !t.enabled {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Pending()
}

// SourceContent returns the contents registered under a reference id.
func (t *Transformer) SourceContent(ref int) (string, bool) {
	if !t.enabled {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	src, ok := t.handles.Get(ref)
	if !ok {
		return "", false
	}
	return src.Contents, true
}

// MapToGenerated maps an authored position once the ready gate is open.
// A disabled transformer returns the input unchanged.
func (t *Transformer) MapToGenerated(ctx context.Context, authoredPath string, line, column int) (MappedPosition, bool, error) {
	if !t.enabled {
		return MappedPosition{Path: authoredPath, Line: line, Column: column}, true, nil
	}
	if err := t.waitReady(ctx); err != nil {
		return MappedPosition{}, false, err
	}
	defer t.mu.Unlock()

	pos, ok := t.mapper.MapToGenerated(authoredPath, line, column)
	return pos, ok, nil
}

// MapToAuthored maps a generated position once the ready gate is open.
// A disabled transformer returns the input unchanged.
func (t *Transformer) MapToAuthored(ctx context.Context, generatedPath string, line, column int) (MappedPosition, bool, error) {
	if !t.enabled {
		return MappedPosition{Path: generatedPath, Line: line, Column: column}, true, nil
	}
	if err := t.waitReady(ctx); err != nil {
		return MappedPosition{}, false, err
	}
	defer t.mu.Unlock()

	pos, ok := t.mapper.MapToAuthored(generatedPath, line, column)
	return pos, ok, nil
}

// GeneratedPathFromAuthoredPath resolves the generated file for an
// authored path once the ready gate is open.
func (t *Transformer) GeneratedPathFromAuthoredPath(ctx context.Context, authoredPath string) (string, bool, error) {
	if !t.enabled {
		return authoredPath, true, nil
	}
	if err := t.waitReady(ctx); err != nil {
		return "", false, err
	}
	defer t.mu.Unlock()

	path, ok := t.mapper.GeneratedPathFromAuthoredPath(authoredPath)
	return path, ok, nil
}

// waitReady blocks on the gate and returns with t.mu held on success.
func (t *Transformer) waitReady(ctx context.Context) error {
	if err := t.gate.Wait(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransformerClosed
	}
	return nil
}
