package debug

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/mapdap/internal/integration/debug/dap"
)

// StackFrame is a stack frame as reported to the user, in authored
// coordinates where a source map covers it.
type StackFrame struct {
	ID               int
	Name             string
	Source           *dap.Source
	Line             int
	Column           int
	PresentationHint string
	IsCurrentFrame   bool
}

// CallStack represents the call stack for a thread.
type CallStack struct {
	ThreadID   int
	ThreadName string

	// Frames are the stack frames in order (top of stack first).
	Frames []*StackFrame

	// TotalFrames may exceed len(Frames) when more can be fetched.
	TotalFrames int

	CurrentFrameIndex int
}

// HasSource reports whether the frame can be opened, either from a file
// or through a source reference.
func (f *StackFrame) HasSource() bool {
	return f.Source != nil && (f.Source.Path != "" || f.Source.SourceReference > 0)
}

// SourcePath returns the source file path, or empty string if unavailable.
func (f *StackFrame) SourcePath() string {
	if f.Source == nil {
		return ""
	}
	return f.Source.Path
}

// FormatLocation returns a location string like "app.ts:42:3".
func (f *StackFrame) FormatLocation() string {
	name := "<unknown>"
	if f.Source != nil && f.Source.Name != "" {
		name = f.Source.Name
	}
	if f.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", name, f.Line, f.Column)
	}
	return fmt.Sprintf("%s:%d", name, f.Line)
}

// CurrentFrame returns the currently selected frame.
func (c *CallStack) CurrentFrame() *StackFrame {
	if c.CurrentFrameIndex < 0 || c.CurrentFrameIndex >= len(c.Frames) {
		return nil
	}
	return c.Frames[c.CurrentFrameIndex]
}

// StackNavigator fetches call stacks through a session and tracks the
// selected frame per thread.
type StackNavigator struct {
	session *Session
	mu      sync.RWMutex

	stacks              map[int]*CallStack
	currentThreadID     int
	maxFramesPerRequest int
}

// NewStackNavigator creates a new stack navigator.
func NewStackNavigator(session *Session) *StackNavigator {
	return &StackNavigator{
		session:             session,
		stacks:              make(map[int]*CallStack),
		maxFramesPerRequest: 20,
	}
}

// SetMaxFramesPerRequest sets the maximum frames to fetch per request.
func (n *StackNavigator) SetMaxFramesPerRequest(max int) {
	n.mu.Lock()
	n.maxFramesPerRequest = max
	n.mu.Unlock()
}

// GetCallStack retrieves the call stack for a thread and selects its top
// frame.
func (n *StackNavigator) GetCallStack(ctx context.Context, threadID int) (*CallStack, error) {
	n.mu.RLock()
	levels := n.maxFramesPerRequest
	n.mu.RUnlock()

	frames, totalFrames, err := n.session.GetStackTrace(ctx, threadID, 0, levels)
	if err != nil {
		return nil, fmt.Errorf("get stack trace: %w", err)
	}

	threadName := fmt.Sprintf("Thread %d", threadID)
	for _, t := range n.session.Threads() {
		if t.ID == threadID {
			threadName = t.Name
			break
		}
	}

	stack := &CallStack{
		ThreadID:    threadID,
		ThreadName:  threadName,
		Frames:      make([]*StackFrame, len(frames)),
		TotalFrames: totalFrames,
	}
	for i, f := range frames {
		stack.Frames[i] = toStackFrame(f)
	}
	if len(stack.Frames) > 0 {
		stack.Frames[0].IsCurrentFrame = true
	}

	n.mu.Lock()
	n.stacks[threadID] = stack
	n.currentThreadID = threadID
	n.mu.Unlock()

	return stack, nil
}

func toStackFrame(f dap.StackFrame) *StackFrame {
	return &StackFrame{
		ID:               f.ID,
		Name:             f.Name,
		Source:           f.Source,
		Line:             f.Line,
		Column:           f.Column,
		PresentationHint: f.PresentationHint,
	}
}

// FetchMoreFrames loads additional frames for a call stack.
func (n *StackNavigator) FetchMoreFrames(ctx context.Context, threadID int) error {
	n.mu.RLock()
	stack, ok := n.stacks[threadID]
	levels := n.maxFramesPerRequest
	var start, total int
	if ok {
		start, total = len(stack.Frames), stack.TotalFrames
	}
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no call stack for thread %d", threadID)
	}
	if start >= total {
		return nil
	}

	frames, totalFrames, err := n.session.GetStackTrace(ctx, threadID, start, levels)
	if err != nil {
		return fmt.Errorf("get more frames: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	stack.TotalFrames = totalFrames
	for _, f := range frames {
		stack.Frames = append(stack.Frames, toStackFrame(f))
	}
	return nil
}

// SelectFrame selects a frame in the call stack.
func (n *StackNavigator) SelectFrame(threadID int, frameIndex int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	stack, ok := n.stacks[threadID]
	if !ok {
		return fmt.Errorf("no call stack for thread %d", threadID)
	}
	if frameIndex < 0 || frameIndex >= len(stack.Frames) {
		return fmt.Errorf("frame index %d out of range [0, %d)", frameIndex, len(stack.Frames))
	}

	if cur := stack.CurrentFrame(); cur != nil {
		cur.IsCurrentFrame = false
	}
	stack.Frames[frameIndex].IsCurrentFrame = true
	stack.CurrentFrameIndex = frameIndex
	return nil
}

// SelectFrameUp moves towards the caller.
func (n *StackNavigator) SelectFrameUp(threadID int) error {
	return n.moveFrame(threadID, 1)
}

// SelectFrameDown moves towards the callee.
func (n *StackNavigator) SelectFrameDown(threadID int) error {
	return n.moveFrame(threadID, -1)
}

func (n *StackNavigator) moveFrame(threadID, delta int) error {
	n.mu.RLock()
	stack, ok := n.stacks[threadID]
	var index, count int
	if ok {
		index, count = stack.CurrentFrameIndex, len(stack.Frames)
	}
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no call stack for thread %d", threadID)
	}
	next := index + delta
	if next >= count {
		return fmt.Errorf("already at bottom of stack")
	}
	if next < 0 {
		return fmt.Errorf("already at top of stack")
	}
	return n.SelectFrame(threadID, next)
}

// GetCurrentFrame returns the currently selected frame for a thread.
func (n *StackNavigator) GetCurrentFrame(threadID int) (*StackFrame, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stack, ok := n.stacks[threadID]
	if !ok {
		return nil, fmt.Errorf("no call stack for thread %d", threadID)
	}
	return stack.CurrentFrame(), nil
}

// FrameSource returns the text of the file a frame points at. Sources
// inlined in a source map are served without asking the adapter.
func (n *StackNavigator) FrameSource(ctx context.Context, frame *StackFrame) (string, error) {
	if !frame.HasSource() {
		return "", fmt.Errorf("frame %d has no source", frame.ID)
	}
	return n.session.SourceContent(ctx, *frame.Source)
}

// ClearStacks clears all cached call stacks.
func (n *StackNavigator) ClearStacks() {
	n.mu.Lock()
	n.stacks = make(map[int]*CallStack)
	n.currentThreadID = 0
	n.mu.Unlock()
}

// GetCurrentThreadID returns the currently selected thread ID.
func (n *StackNavigator) GetCurrentThreadID() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.currentThreadID
}

// FormatStackTrace returns a printable call stack for a thread.
func (n *StackNavigator) FormatStackTrace(threadID int) string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stack, ok := n.stacks[threadID]
	if !ok {
		return ""
	}

	var b strings.Builder
	for i, frame := range stack.Frames {
		marker := "  "
		if i == stack.CurrentFrameIndex {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s#%d %s at %s\n", marker, i, frame.Name, frame.FormatLocation())
	}
	if len(stack.Frames) < stack.TotalFrames {
		fmt.Fprintf(&b, "  ... (%d more frames)\n", stack.TotalFrames-len(stack.Frames))
	}
	return b.String()
}
