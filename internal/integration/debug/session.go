package debug

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/mapdap/internal/integration/debug/dap"
	"github.com/dshills/mapdap/internal/logging"
	"github.com/dshills/mapdap/internal/sourcemap"
	"github.com/dshills/mapdap/internal/sourcemap/mapfile"
)

// SessionState represents the current state of a debug session.
type SessionState int

const (
	// StateConnected is after transport is established.
	StateConnected SessionState = iota
	// StateConfiguring is after initialize but before configurationDone.
	StateConfiguring
	// StateRunning is when the debuggee is running.
	StateRunning
	// StateStopped is when the debuggee is stopped.
	StateStopped
	// StateTerminated is when the debuggee has exited.
	StateTerminated
	// StateDisconnected is when the debug adapter has disconnected.
	StateDisconnected
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// LocateFunc returns the source map locator of a generated file, or ""
// when the file has none.
type LocateFunc func(generatedPath string) string

// SessionHandlers contains callbacks for session events. Handlers run on
// the client's receive goroutine and must not issue requests inline.
type SessionHandlers struct {
	// OnStateChanged is called when the session state changes.
	OnStateChanged func(old, new SessionState)

	// OnStopped is called when the debuggee stops.
	OnStopped func(reason string, threadID int, allStopped bool)

	// OnBreakpointChanged is called with breakpoints the adapter reports,
	// already in authored coordinates.
	OnBreakpointChanged func(reason string, breakpoint dap.Breakpoint)

	// OnSourcesLoaded is called when a generated file is loaded, with the
	// authored files it maps from.
	OnSourcesLoaded func(generatedPath string, authored []string)

	// OnTerminated is called when the debuggee terminates.
	OnTerminated func()
}

// SessionConfig configures a debug session.
type SessionConfig struct {
	// AdapterID is the debug adapter identifier.
	AdapterID string

	// ClientID is this client's identifier.
	ClientID string

	// ClientName is this client's name.
	ClientName string

	// LinesStartAt1 indicates if line numbers start at 1.
	LinesStartAt1 bool

	// ColumnsStartAt1 indicates if column numbers start at 1.
	ColumnsStartAt1 bool

	// PathFormat is the path format ("path" or "uri").
	PathFormat string
}

// DefaultSessionConfig returns a default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AdapterID:       "node",
		ClientID:        "mapdap",
		ClientName:      "mapdap",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		PathFormat:      "path",
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTransformer routes breakpoint and stack traffic through t.
func WithTransformer(t *sourcemap.Transformer) SessionOption {
	return func(s *Session) {
		s.transformer = t
	}
}

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithLocator replaces the function that finds a loaded file's source map.
func WithLocator(fn LocateFunc) SessionOption {
	return func(s *Session) {
		s.locate = fn
	}
}

// WithScriptHook registers fn to run after a loaded file's map has been
// ingested.
func WithScriptHook(fn func(generatedPath, locator string)) SessionOption {
	return func(s *Session) {
		s.scriptHook = fn
	}
}

// Session represents a debug session with a debug adapter.
type Session struct {
	client       *dap.Client
	transformer  *sourcemap.Transformer
	logger       *logging.Logger
	locate       LocateFunc
	scriptHook   func(generatedPath, locator string)
	capabilities *dap.Capabilities

	state         SessionState
	currentThread int
	processSeen   bool
	stateMu       sync.RWMutex

	threads   []dap.Thread
	threadsMu sync.RWMutex

	// Confirmed breakpoints by the path the caller set them on.
	breakpoints   map[string][]dap.Breakpoint
	breakpointsMu sync.RWMutex

	handlers   SessionHandlers
	handlersMu sync.RWMutex
}

// NewSession creates a new debug session with the given client. Without
// WithTransformer, the session uses a disabled transformer and passes
// coordinates through unchanged.
func NewSession(client *dap.Client, opts ...SessionOption) *Session {
	s := &Session{
		client:      client,
		state:       StateConnected,
		breakpoints: make(map[string][]dap.Breakpoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("debug")
	if s.transformer == nil {
		s.transformer = sourcemap.New(sourcemap.Options{Logger: s.logger})
	}
	if s.locate == nil {
		s.locate = s.locateFromFile
	}

	client.OnStopped(s.onStopped)
	client.OnTerminated(s.onTerminated)
	client.OnBreakpoint(s.onBreakpoint)
	client.OnLoadedSource(s.onLoadedSource)
	client.OnProcess(s.onProcess)

	return s
}

// DialSession connects to an adapter listening on address.
func DialSession(address string, opts ...SessionOption) (*Session, error) {
	transport, err := dap.DialTransport(address)
	if err != nil {
		return nil, fmt.Errorf("create socket transport: %w", err)
	}
	return NewSession(dap.NewClient(transport), opts...), nil
}

// SetHandlers sets the session event handlers.
func (s *Session) SetHandlers(handlers SessionHandlers) {
	s.handlersMu.Lock()
	s.handlers = handlers
	s.handlersMu.Unlock()
}

func (s *Session) getHandlers() SessionHandlers {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers
}

// Transformer returns the session's transformer.
func (s *Session) Transformer() *sourcemap.Transformer {
	return s.transformer
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.stateMu.Lock()
	old := s.state
	s.state = state
	s.stateMu.Unlock()

	if old == state {
		return
	}
	if handler := s.getHandlers().OnStateChanged; handler != nil {
		handler(old, state)
	}
}

// Capabilities returns the debug adapter capabilities.
func (s *Session) Capabilities() *dap.Capabilities {
	return s.capabilities
}

// CurrentThread returns the thread that last stopped.
func (s *Session) CurrentThread() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.currentThread
}

// Threads returns the threads from the last GetThreads call.
func (s *Session) Threads() []dap.Thread {
	s.threadsMu.RLock()
	defer s.threadsMu.RUnlock()
	return append([]dap.Thread{}, s.threads...)
}

// Initialize initializes the debug session.
func (s *Session) Initialize(ctx context.Context, config SessionConfig) error {
	args := dap.InitializeRequestArguments{
		ClientID:        config.ClientID,
		ClientName:      config.ClientName,
		AdapterID:       config.AdapterID,
		LinesStartAt1:   config.LinesStartAt1,
		ColumnsStartAt1: config.ColumnsStartAt1,
		PathFormat:      config.PathFormat,
	}

	caps, err := s.client.Initialize(ctx, args)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	s.capabilities = caps
	s.setState(StateConfiguring)
	return nil
}

// ConfigurationDone signals that configuration is complete.
func (s *Session) ConfigurationDone(ctx context.Context) error {
	if err := s.client.ConfigurationDone(ctx); err != nil {
		return fmt.Errorf("configurationDone: %w", err)
	}

	s.setState(StateRunning)
	return nil
}

// Launch launches the debuggee with the given arguments.
func (s *Session) Launch(ctx context.Context, launchArgs interface{}) error {
	if err := s.client.Launch(ctx, launchArgs); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	return nil
}

// Attach attaches to a running process.
func (s *Session) Attach(ctx context.Context, attachArgs interface{}) error {
	if err := s.client.Attach(ctx, attachArgs); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

// Disconnect disconnects from the debug adapter.
func (s *Session) Disconnect(ctx context.Context, terminate bool) error {
	args := dap.DisconnectArguments{
		TerminateDebuggee: terminate,
	}

	if err := s.client.Disconnect(ctx, args); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	s.setState(StateDisconnected)
	return nil
}

// Close closes the session, its transformer and the underlying client.
func (s *Session) Close() error {
	s.setState(StateDisconnected)
	s.transformer.Close()
	return s.client.Close()
}

// SetBreakpoints replaces the breakpoints of a source file. The path may
// name an authored file; the request is sent for its generated file and
// the result is reported in authored coordinates. An error wrapping
// sourcemap.ErrSourceNotLoaded means the runtime does not know the file
// yet.
func (s *Session) SetBreakpoints(ctx context.Context, path string, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	return s.SetBreakpointsForSource(ctx, dap.Source{Path: path}, bps)
}

// SetBreakpointsForSource is SetBreakpoints for a source that may be
// identified by reference instead of path.
func (s *Session) SetBreakpointsForSource(ctx context.Context, source dap.Source, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	key := source.Path
	if key == "" {
		key = fmt.Sprintf("ref:%d", source.SourceReference)
	}

	args := dap.SetBreakpointsArguments{
		Source:      source,
		Breakpoints: append([]dap.SourceBreakpoint{}, bps...),
	}

	seq := s.client.NextSeq()
	if err := s.transformer.SetBreakpoints(&args, seq); err != nil {
		return nil, err
	}

	result, err := s.client.SetBreakpointsWithSeq(ctx, seq, args)
	if err != nil {
		s.transformer.DropPending(seq)
		return nil, err
	}
	result = s.transformer.SetBreakpointsResponse(result, seq)

	s.breakpointsMu.Lock()
	if len(bps) == 0 {
		delete(s.breakpoints, key)
	} else {
		s.breakpoints[key] = result
	}
	s.breakpointsMu.Unlock()

	return result, nil
}

// SetLineBreakpoints sets plain breakpoints on lines of a source file.
func (s *Session) SetLineBreakpoints(ctx context.Context, path string, lines []int) ([]dap.Breakpoint, error) {
	bps := make([]dap.SourceBreakpoint, len(lines))
	for i, line := range lines {
		bps[i] = dap.SourceBreakpoint{Line: line}
	}
	return s.SetBreakpoints(ctx, path, bps)
}

// ClearBreakpoints clears all breakpoints in a source file.
func (s *Session) ClearBreakpoints(ctx context.Context, path string) error {
	_, err := s.SetBreakpoints(ctx, path, nil)
	return err
}

// GetBreakpoints returns the confirmed breakpoints of a source file.
func (s *Session) GetBreakpoints(path string) []dap.Breakpoint {
	s.breakpointsMu.RLock()
	defer s.breakpointsMu.RUnlock()
	return append([]dap.Breakpoint{}, s.breakpoints[path]...)
}

// GetThreads retrieves the current threads.
func (s *Session) GetThreads(ctx context.Context) ([]dap.Thread, error) {
	threads, err := s.client.Threads(ctx)
	if err != nil {
		return nil, err
	}

	s.threadsMu.Lock()
	s.threads = threads
	s.threadsMu.Unlock()

	return threads, nil
}

// GetStackTrace retrieves the stack trace for a thread with frames
// rewritten to authored locations where a map covers them.
func (s *Session) GetStackTrace(ctx context.Context, threadID int, startFrame, levels int) ([]dap.StackFrame, int, error) {
	args := dap.StackTraceArguments{
		ThreadID:   threadID,
		StartFrame: startFrame,
		Levels:     levels,
	}

	result, err := s.client.StackTrace(ctx, args)
	if err != nil {
		return nil, 0, err
	}

	s.transformer.StackTraceResponse(result.StackFrames)
	return result.StackFrames, result.TotalFrames, nil
}

// SourceContent returns the text of a source. Content inlined in a map is
// served locally; anything else is fetched from the adapter.
func (s *Session) SourceContent(ctx context.Context, source dap.Source) (string, error) {
	if source.SourceReference > 0 {
		if content, ok := s.transformer.SourceContent(source.SourceReference); ok {
			return content, nil
		}
	}

	body, err := s.client.Source(ctx, dap.SourceArguments{
		Source:          &source,
		SourceReference: source.SourceReference,
	})
	if err != nil {
		return "", fmt.Errorf("source: %w", err)
	}
	return body.Content, nil
}

func (s *Session) locateFromFile(generatedPath string) string {
	url, err := mapfile.FindSourceMapURLInFile(generatedPath)
	if err != nil {
		if !errors.Is(err, mapfile.ErrNoSourceMapURL) {
			s.logger.Debug("cannot read generated file", "path", generatedPath, "error", err)
		}
		return ""
	}
	return url
}

// Event handlers

func (s *Session) onStopped(body dap.StoppedEventBody) {
	s.stateMu.Lock()
	s.currentThread = body.ThreadID
	s.stateMu.Unlock()

	s.setState(StateStopped)

	if handler := s.getHandlers().OnStopped; handler != nil {
		handler(body.Reason, body.ThreadID, body.AllThreadsStopped)
	}
}

func (s *Session) onTerminated(body dap.TerminatedEventBody) {
	if body.Restart != nil {
		s.transformer.ClearTargetContext()
		return
	}

	s.setState(StateTerminated)

	if handler := s.getHandlers().OnTerminated; handler != nil {
		handler()
	}
}

func (s *Session) onBreakpoint(body dap.BreakpointEventBody) {
	bp := body.Breakpoint
	if bp.Source != nil {
		src := *bp.Source
		bp.Source = &src
		if src.Path != "" {
			s.transformer.BreakpointResolved(&bp, src.Path)
		}
	}

	if handler := s.getHandlers().OnBreakpointChanged; handler != nil {
		handler(body.Reason, bp)
	}
}

func (s *Session) onLoadedSource(body dap.LoadedSourceEventBody) {
	if body.Reason == "removed" || body.Source.Path == "" {
		return
	}

	path := body.Source.Path
	locator := s.locate(path)
	authored, err := s.transformer.ScriptParsed(context.Background(), path, locator)
	if err != nil {
		s.logger.Warn("source map not loaded", "generated", path, "error", err)
	}
	if err == nil && locator != "" && s.scriptHook != nil {
		s.scriptHook(path, locator)
	}

	if handler := s.getHandlers().OnSourcesLoaded; handler != nil {
		handler(path, authored)
	}
}

// onProcess clears loaded scripts when a second process replaces the
// first; scripts reported before the first process event belong to it.
func (s *Session) onProcess(body dap.ProcessEventBody) {
	s.logger.Debug("debuggee process started", "name", body.Name, "pid", body.SystemProcessID)

	s.stateMu.Lock()
	seen := s.processSeen
	s.processSeen = true
	s.stateMu.Unlock()

	if seen {
		s.transformer.ClearTargetContext()
	}
}
