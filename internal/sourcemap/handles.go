package sourcemap

// InlineSource is content served by reference id rather than from disk.
type InlineSource struct {
	ID            int
	GeneratedPath string
	AuthoredPath  string
	Contents      string
}

type handleKey struct {
	generatedPath string
	authoredPath  string
}

// HandleRegistry assigns stable reference ids to inline sources, keyed by
// the generated file they were reached through and the authored file
// whose content they carry. Ids start at 1 and are never reused within a
// session.
type HandleRegistry struct {
	nextID int
	byID   map[int]*InlineSource
	byKey  map[handleKey]int
}

// NewHandleRegistry creates an empty registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{
		nextID: 1,
		byID:   make(map[int]*InlineSource),
		byKey:  make(map[handleKey]int),
	}
}

// LookupOrCreate returns the id already assigned to the pair
// (generatedPath, authoredPath), or assigns the next id and stores
// contents under it.
func (r *HandleRegistry) LookupOrCreate(generatedPath, authoredPath, contents string) int {
	key := handleKey{generatedPath: generatedPath, authoredPath: authoredPath}
	if id, ok := r.byKey[key]; ok {
		return id
	}

	id := r.nextID
	r.nextID++
	r.byID[id] = &InlineSource{
		ID:            id,
		GeneratedPath: generatedPath,
		AuthoredPath:  authoredPath,
		Contents:      contents,
	}
	r.byKey[key] = id
	return id
}

// Get returns the inline source for id.
func (r *HandleRegistry) Get(id int) (InlineSource, bool) {
	src, ok := r.byID[id]
	if !ok {
		return InlineSource{}, false
	}
	return *src, true
}

// Len returns the number of registered handles.
func (r *HandleRegistry) Len() int {
	return len(r.byID)
}
