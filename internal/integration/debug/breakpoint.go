package debug

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/mapdap/internal/integration/debug/dap"
	"github.com/dshills/mapdap/internal/sourcemap"
)

// BreakpointType represents the type of breakpoint.
type BreakpointType int

const (
	// BreakpointTypeLine is a standard line breakpoint.
	BreakpointTypeLine BreakpointType = iota
	// BreakpointTypeConditional is a breakpoint with a condition.
	BreakpointTypeConditional
	// BreakpointTypeLogPoint is a log point (prints message without stopping).
	BreakpointTypeLogPoint
)

// String returns a string representation of the breakpoint type.
func (t BreakpointType) String() string {
	switch t {
	case BreakpointTypeLine:
		return "line"
	case BreakpointTypeConditional:
		return "conditional"
	case BreakpointTypeLogPoint:
		return "logpoint"
	default:
		return "unknown"
	}
}

// Breakpoint is a user-defined breakpoint in an authored or generated file.
type Breakpoint struct {
	ID           int
	Type         BreakpointType
	Path         string
	Line         int
	Column       int
	Condition    string
	HitCondition string
	LogMessage   string
	Enabled      bool

	// Set from the adapter's answer, in the coordinates of Path.
	Verified     bool
	Message      string
	ActualLine   int
	ActualColumn int
	AdapterID    int

	// Pending is true while the runtime has not loaded the file yet.
	Pending bool
}

func (bp *Breakpoint) sourceBreakpoint() dap.SourceBreakpoint {
	return dap.SourceBreakpoint{
		Line:         bp.Line,
		Column:       bp.Column,
		Condition:    bp.Condition,
		HitCondition: bp.HitCondition,
		LogMessage:   bp.LogMessage,
	}
}

func (bp *Breakpoint) apply(r dap.Breakpoint) {
	bp.Verified = r.Verified
	bp.Message = r.Message
	bp.AdapterID = r.ID
	if r.Line > 0 {
		bp.ActualLine = r.Line
	}
	bp.ActualColumn = r.Column
}

// BreakpointManager owns the user's breakpoints and keeps the adapter in
// step with them. Files the runtime has not loaded yet are deferred and
// sent again once a loaded script maps to them.
type BreakpointManager struct {
	session *Session
	mu      sync.RWMutex

	breakpoints map[int]*Breakpoint
	byPath      map[string][]*Breakpoint
	deferred    map[string]bool
	nextID      int
}

// NewBreakpointManager creates a new breakpoint manager.
func NewBreakpointManager(session *Session) *BreakpointManager {
	return &BreakpointManager{
		session:     session,
		breakpoints: make(map[int]*Breakpoint),
		byPath:      make(map[string][]*Breakpoint),
		deferred:    make(map[string]bool),
		nextID:      1,
	}
}

func (m *BreakpointManager) add(bp *Breakpoint) *Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp.ID = m.nextID
	m.nextID++
	bp.Enabled = true
	m.breakpoints[bp.ID] = bp
	m.byPath[bp.Path] = append(m.byPath[bp.Path], bp)
	return bp
}

// AddLineBreakpoint adds a line breakpoint.
func (m *BreakpointManager) AddLineBreakpoint(path string, line int) *Breakpoint {
	return m.add(&Breakpoint{Type: BreakpointTypeLine, Path: path, Line: line})
}

// AddColumnBreakpoint adds a breakpoint at a line and column.
func (m *BreakpointManager) AddColumnBreakpoint(path string, line, column int) *Breakpoint {
	return m.add(&Breakpoint{Type: BreakpointTypeLine, Path: path, Line: line, Column: column})
}

// AddConditionalBreakpoint adds a conditional breakpoint.
func (m *BreakpointManager) AddConditionalBreakpoint(path string, line int, condition string) *Breakpoint {
	return m.add(&Breakpoint{
		Type:      BreakpointTypeConditional,
		Path:      path,
		Line:      line,
		Condition: condition,
	})
}

// AddLogPoint adds a log point.
func (m *BreakpointManager) AddLogPoint(path string, line int, logMessage string) *Breakpoint {
	return m.add(&Breakpoint{
		Type:       BreakpointTypeLogPoint,
		Path:       path,
		Line:       line,
		LogMessage: logMessage,
	})
}

// RemoveBreakpoint removes a breakpoint by ID. The adapter is updated on
// the next sync.
func (m *BreakpointManager) RemoveBreakpoint(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp, ok := m.breakpoints[id]
	if !ok {
		return fmt.Errorf("breakpoint %d not found", id)
	}
	delete(m.breakpoints, id)

	list := m.byPath[bp.Path]
	for i, b := range list {
		if b.ID == id {
			m.byPath[bp.Path] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

// ToggleBreakpoint removes the breakpoint on path:line if there is one,
// otherwise adds a line breakpoint there. It reports whether a breakpoint
// now exists.
func (m *BreakpointManager) ToggleBreakpoint(path string, line int) (*Breakpoint, bool) {
	m.mu.RLock()
	var existing *Breakpoint
	for _, bp := range m.byPath[path] {
		if bp.Line == line {
			existing = bp
			break
		}
	}
	m.mu.RUnlock()

	if existing != nil {
		_ = m.RemoveBreakpoint(existing.ID)
		return existing, false
	}
	return m.AddLineBreakpoint(path, line), true
}

// SetEnabled enables or disables a breakpoint.
func (m *BreakpointManager) SetEnabled(id int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp, ok := m.breakpoints[id]
	if !ok {
		return fmt.Errorf("breakpoint %d not found", id)
	}
	bp.Enabled = enabled
	return nil
}

// SetCondition sets the condition of a breakpoint. An empty condition
// turns it back into a line breakpoint.
func (m *BreakpointManager) SetCondition(id int, condition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp, ok := m.breakpoints[id]
	if !ok {
		return fmt.Errorf("breakpoint %d not found", id)
	}
	bp.Condition = condition
	if bp.Type != BreakpointTypeLogPoint {
		if condition == "" {
			bp.Type = BreakpointTypeLine
		} else {
			bp.Type = BreakpointTypeConditional
		}
	}
	return nil
}

// GetBreakpoint returns a copy of a breakpoint.
func (m *BreakpointManager) GetBreakpoint(id int) (Breakpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bp, ok := m.breakpoints[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// GetBreakpointsForPath returns copies of the breakpoints of a file in
// insertion order.
func (m *BreakpointManager) GetBreakpointsForPath(path string) []Breakpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Breakpoint, len(m.byPath[path]))
	for i, bp := range m.byPath[path] {
		out[i] = *bp
	}
	return out
}

// Paths returns the files that have breakpoints, sorted.
func (m *BreakpointManager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.byPath))
	for p := range m.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Deferred returns the files waiting for the runtime to load them, sorted.
func (m *BreakpointManager) Deferred() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.deferred))
	for p := range m.deferred {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ClearForPath removes every breakpoint of a file. The adapter is updated
// on the next sync.
func (m *BreakpointManager) ClearForPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bp := range m.byPath[path] {
		delete(m.breakpoints, bp.ID)
	}
	m.byPath[path] = nil
	delete(m.deferred, path)
}

// SyncToSession sends the breakpoints of every file to the session. Files
// the runtime has not loaded are deferred rather than failing the sync.
func (m *BreakpointManager) SyncToSession(ctx context.Context) error {
	if m.session == nil {
		return fmt.Errorf("no session attached")
	}

	for _, path := range m.Paths() {
		if err := m.SyncPath(ctx, path); err != nil {
			return fmt.Errorf("sync breakpoints for %s: %w", path, err)
		}
	}
	return nil
}

// SyncPath sends the enabled breakpoints of one file to the session.
func (m *BreakpointManager) SyncPath(ctx context.Context, path string) error {
	m.mu.RLock()
	var enabled []*Breakpoint
	sourceBPs := make([]dap.SourceBreakpoint, 0, len(m.byPath[path]))
	for _, bp := range m.byPath[path] {
		if !bp.Enabled {
			continue
		}
		enabled = append(enabled, bp)
		sourceBPs = append(sourceBPs, bp.sourceBreakpoint())
	}
	m.mu.RUnlock()

	result, err := m.session.SetBreakpoints(ctx, path, sourceBPs)
	if errors.Is(err, sourcemap.ErrSourceNotLoaded) {
		m.mu.Lock()
		m.deferred[path] = true
		for _, bp := range enabled {
			bp.Pending = true
			bp.Verified = false
		}
		m.mu.Unlock()
		m.session.logger.Debug("breakpoints deferred until source loads", "path", path)
		return nil
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deferred, path)
	for i, bp := range enabled {
		bp.Pending = false
		if i < len(result) {
			bp.apply(result[i])
		}
	}
	if len(m.byPath[path]) == 0 {
		delete(m.byPath, path)
	}
	return nil
}

// Resync sends the deferred files among paths again.
func (m *BreakpointManager) Resync(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		m.mu.RLock()
		waiting := m.deferred[path]
		m.mu.RUnlock()
		if !waiting {
			continue
		}
		if err := m.SyncPath(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("resync %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// HandleSourcesLoaded is a SessionHandlers.OnSourcesLoaded callback. It
// resends deferred breakpoints of the loaded file and of the authored
// files it maps from on a new goroutine, since event handlers must not
// wait on responses. done, if non-nil, receives the outcome and should
// be buffered.
func (m *BreakpointManager) HandleSourcesLoaded(generatedPath string, authored []string, done chan<- error) {
	paths := append([]string{generatedPath}, authored...)

	m.mu.RLock()
	waiting := false
	for _, p := range paths {
		if m.deferred[p] {
			waiting = true
			break
		}
	}
	m.mu.RUnlock()

	if !waiting {
		if done != nil {
			done <- nil
		}
		return
	}

	go func() {
		err := m.Resync(context.Background(), paths)
		if err != nil {
			m.session.logger.Warn("resync deferred breakpoints failed", "error", err)
		}
		if done != nil {
			done <- err
		}
	}()
}

// HandleBreakpointChanged is a SessionHandlers.OnBreakpointChanged
// callback that records the adapter's later verdict on a breakpoint.
func (m *BreakpointManager) HandleBreakpointChanged(reason string, bp dap.Breakpoint) {
	if bp.ID == 0 || reason == "removed" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.breakpoints {
		if b.AdapterID == bp.ID {
			b.apply(bp)
			return
		}
	}
}
