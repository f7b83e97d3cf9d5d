package sourcemap

import (
	"github.com/dshills/mapdap/internal/integration/debug/dap"
)

// DefaultLedgerCapacity bounds the number of unanswered setBreakpoints
// requests remembered at once.
const DefaultLedgerCapacity = 256

// PendingSet is the translated form of one setBreakpoints request, kept
// until its response arrives.
type PendingSet struct {
	// Args is a private copy of the request as sent to the runtime.
	Args dap.SetBreakpointsArguments

	// AuthoredPath is the file the caller asked about. Empty when the
	// request was not translated.
	AuthoredPath string

	// Origins holds the authored file of each outgoing breakpoint, in
	// order. Breakpoints of AuthoredPath come first.
	Origins []string
}

// OwnCount returns how many outgoing breakpoints belong to AuthoredPath.
func (p PendingSet) OwnCount() int {
	n := 0
	for _, origin := range p.Origins {
		if origin != p.AuthoredPath {
			break
		}
		n++
	}
	return n
}

// Ledger records in-flight setBreakpoints requests by sequence number and
// the generated-space breakpoints last sent for each authored file.
type Ledger struct {
	capacity   int
	entries    map[int]PendingSet
	byAuthored map[string][]dap.SourceBreakpoint
}

// NewLedger creates a ledger holding at most capacity pending requests.
// A non-positive capacity selects DefaultLedgerCapacity.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{
		capacity:   capacity,
		entries:    make(map[int]PendingSet),
		byAuthored: make(map[string][]dap.SourceBreakpoint),
	}
}

// Put records entry under seq, replacing any entry with the same seq.
// When the ledger is over capacity the lowest sequence numbers are
// evicted and returned.
func (l *Ledger) Put(seq int, entry PendingSet) []int {
	entry.Args = cloneArgs(entry.Args)
	entry.Origins = append([]string(nil), entry.Origins...)
	l.entries[seq] = entry

	var evicted []int
	for len(l.entries) > l.capacity {
		oldest := seq
		for s := range l.entries {
			if s < oldest {
				oldest = s
			}
		}
		delete(l.entries, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// Take removes and returns the entry for seq.
func (l *Ledger) Take(seq int) (PendingSet, bool) {
	entry, ok := l.entries[seq]
	if ok {
		delete(l.entries, seq)
	}
	return entry, ok
}

// Pending returns the number of unanswered requests.
func (l *Ledger) Pending() int {
	return len(l.entries)
}

// SetAuthoredBreakpoints remembers the generated-space breakpoints last
// sent for an authored file.
func (l *Ledger) SetAuthoredBreakpoints(authoredPath string, bps []dap.SourceBreakpoint) {
	l.byAuthored[authoredPath] = append([]dap.SourceBreakpoint(nil), bps...)
}

// AuthoredBreakpoints returns the breakpoints last sent for an authored file.
func (l *Ledger) AuthoredBreakpoints(authoredPath string) ([]dap.SourceBreakpoint, bool) {
	bps, ok := l.byAuthored[authoredPath]
	if !ok {
		return nil, false
	}
	return append([]dap.SourceBreakpoint(nil), bps...), true
}

// cloneArgs deep-copies setBreakpoints arguments.
func cloneArgs(args dap.SetBreakpointsArguments) dap.SetBreakpointsArguments {
	out := args
	if args.Breakpoints != nil {
		out.Breakpoints = append([]dap.SourceBreakpoint(nil), args.Breakpoints...)
	}
	return out
}
