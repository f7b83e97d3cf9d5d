package sourcemap

import "sort"

// ScriptTracker is the set of generated paths the runtime has loaded.
type ScriptTracker struct {
	paths map[string]struct{}
}

// NewScriptTracker creates an empty tracker.
func NewScriptTracker() *ScriptTracker {
	return &ScriptTracker{paths: make(map[string]struct{})}
}

// Add records path as loaded.
func (t *ScriptTracker) Add(path string) {
	t.paths[path] = struct{}{}
}

// Has reports whether path is loaded.
func (t *ScriptTracker) Has(path string) bool {
	_, ok := t.paths[path]
	return ok
}

// Reset forgets every loaded path.
func (t *ScriptTracker) Reset() {
	t.paths = make(map[string]struct{})
}

// Paths returns the loaded paths in sorted order.
func (t *ScriptTracker) Paths() []string {
	out := make([]string, 0, len(t.paths))
	for p := range t.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of loaded paths.
func (t *ScriptTracker) Len() int {
	return len(t.paths)
}
