package mapfile

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dshills/mapdap/internal/logging"
	"github.com/dshills/mapdap/internal/sourcemap"
)

// Options configures a Store.
type Options struct {
	// LinesStartAt1 and ColumnsStartAt1 give the base of the coordinates
	// the Store is queried with. Map data is always 0-based.
	LinesStartAt1   bool
	ColumnsStartAt1 bool

	// Logger receives diagnostics. Nil discards them.
	Logger *logging.Logger
}

// Store holds the indexed source maps of one session.
type Store struct {
	lineBase int
	colBase  int
	logger   *logging.Logger

	mu          sync.RWMutex
	byGenerated map[string]*indexedMap
	byAuthored  map[string]string
	locators    map[string]string
}

// indexedMap is one loaded map, indexed in both directions.
type indexedMap struct {
	generatedPath string
	mapPath       string
	sources       []string
	contents      map[string]string

	// generated holds every segment ordered by generated position.
	generated []segment
	// authored holds segments with a source, per source index, ordered by
	// authored position.
	authored map[int][]segment
}

var _ sourcemap.Mapper = (*Store)(nil)

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	s := &Store{
		logger:      opts.Logger.WithComponent("mapfile"),
		byGenerated: make(map[string]*indexedMap),
		byAuthored:  make(map[string]string),
		locators:    make(map[string]string),
	}
	if opts.LinesStartAt1 {
		s.lineBase = 1
	}
	if opts.ColumnsStartAt1 {
		s.colBase = 1
	}
	return s
}

// ProcessNewSourceMap loads the map named by locator and indexes it for
// generatedPath, replacing any map loaded for that path before.
func (s *Store) ProcessNewSourceMap(ctx context.Context, generatedPath, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, mapPath, err := readLocator(locator, generatedPath)
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(generatedPath)
	if mapPath != "" {
		baseDir = filepath.Dir(mapPath)
	}
	f, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", locator, err)
	}
	m, err := index(generatedPath, f, baseDir)
	if err != nil {
		return fmt.Errorf("%s: %w", locator, err)
	}
	m.mapPath = mapPath

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byGenerated[generatedPath]; ok {
		for _, src := range old.sources {
			if s.byAuthored[src] == generatedPath {
				delete(s.byAuthored, src)
			}
		}
	}
	s.byGenerated[generatedPath] = m
	s.locators[generatedPath] = locator
	for _, src := range m.sources {
		if prev, ok := s.byAuthored[src]; ok && prev != generatedPath {
			s.logger.Debug("authored source claimed by another generated file",
				"authored", src, "previous", prev, "generated", generatedPath)
		}
		s.byAuthored[src] = generatedPath
	}

	s.logger.Debug("source map indexed",
		"generated", generatedPath, "sources", len(m.sources), "segments", len(m.generated))
	return nil
}

// Forget drops the map loaded for generatedPath.
func (s *Store) Forget(generatedPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byGenerated[generatedPath]
	if !ok {
		return
	}
	for _, src := range m.sources {
		if s.byAuthored[src] == generatedPath {
			delete(s.byAuthored, src)
		}
	}
	delete(s.byGenerated, generatedPath)
	delete(s.locators, generatedPath)
}

// Loaded returns the generated paths that have a map, sorted.
func (s *Store) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byGenerated))
	for p := range s.byGenerated {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MapFiles returns the on-disk map file of each generated path whose
// map was not inline.
func (s *Store) MapFiles() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for p, m := range s.byGenerated {
		if m.mapPath != "" {
			out[p] = m.mapPath
		}
	}
	return out
}

// Locator returns the locator last used to load generatedPath.
func (s *Store) Locator(generatedPath string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locators[generatedPath]
	return l, ok
}

// MapToGenerated maps an authored position into its generated file. The
// closest segment at or before column on the same line wins, then the
// first one after it.
func (s *Store) MapToGenerated(authoredPath string, line, column int) (sourcemap.MappedPosition, bool) {
	authoredPath = normalizePath(authoredPath)

	s.mu.RLock()
	defer s.mu.RUnlock()

	generatedPath, ok := s.byAuthored[authoredPath]
	if !ok {
		return sourcemap.MappedPosition{}, false
	}
	m := s.byGenerated[generatedPath]
	idx := m.sourceIndex(authoredPath)
	if idx < 0 {
		return sourcemap.MappedPosition{}, false
	}

	segs := m.authored[idx]
	l, c := s.toMapLine(line), s.toMapColumn(column)
	i := sort.Search(len(segs), func(i int) bool {
		return segs[i].srcLine > l || segs[i].srcLine == l && segs[i].srcCol > c
	})

	var hit *segment
	if i > 0 && segs[i-1].srcLine == l {
		// Several generated spans can share one authored position; take
		// the first.
		j := i - 1
		for j > 0 && segs[j-1].srcLine == l && segs[j-1].srcCol == segs[i-1].srcCol {
			j--
		}
		hit = &segs[j]
	} else if i < len(segs) && segs[i].srcLine == l {
		hit = &segs[i]
	}
	if hit == nil {
		return sourcemap.MappedPosition{}, false
	}

	return sourcemap.MappedPosition{
		Path:   generatedPath,
		Line:   hit.genLine + s.lineBase,
		Column: hit.genCol + s.colBase,
	}, true
}

// MapToAuthored maps a generated position back to its authored file.
func (s *Store) MapToAuthored(generatedPath string, line, column int) (sourcemap.MappedPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byGenerated[generatedPath]
	if !ok {
		return sourcemap.MappedPosition{}, false
	}

	segs := m.generated
	l, c := s.toMapLine(line), s.toMapColumn(column)
	i := sort.Search(len(segs), func(i int) bool {
		return segs[i].genLine > l || segs[i].genLine == l && segs[i].genCol > c
	})

	var hit *segment
	if i > 0 && segs[i-1].genLine == l {
		hit = &segs[i-1]
	} else if i < len(segs) && segs[i].genLine == l {
		hit = &segs[i]
	}
	if hit == nil || hit.source < 0 {
		return sourcemap.MappedPosition{}, false
	}

	return sourcemap.MappedPosition{
		Path:   m.sources[hit.source],
		Line:   hit.srcLine + s.lineBase,
		Column: hit.srcCol + s.colBase,
	}, true
}

// AllMappedSources lists the authored paths that map into generatedPath.
func (s *Store) AllMappedSources(generatedPath string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byGenerated[generatedPath]
	if !ok {
		return nil
	}
	return append([]string(nil), m.sources...)
}

// GeneratedPathFromAuthoredPath returns the generated file an authored
// file maps into.
func (s *Store) GeneratedPathFromAuthoredPath(authoredPath string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byAuthored[normalizePath(authoredPath)]
	return p, ok
}

// SourceContentFor returns the sourcesContent entry the map of
// generatedPath carries for an authored file.
func (s *Store) SourceContentFor(generatedPath, authoredPath string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byGenerated[generatedPath]
	if !ok {
		return "", false
	}
	c, ok := m.contents[normalizePath(authoredPath)]
	return c, ok
}

func (s *Store) toMapLine(line int) int {
	return line - s.lineBase
}

// toMapColumn converts a session column. Zero means no column was given
// and selects the start of the line.
func (s *Store) toMapColumn(column int) int {
	if column <= 0 {
		return 0
	}
	return column - s.colBase
}

func (m *indexedMap) sourceIndex(authoredPath string) int {
	for i, src := range m.sources {
		if src == authoredPath {
			return i
		}
	}
	return -1
}

// index decodes f and builds both lookup orders.
func index(generatedPath string, f *File, baseDir string) (*indexedMap, error) {
	segs, err := decodeMappings(f.Mappings, len(f.Sources))
	if err != nil {
		return nil, err
	}

	m := &indexedMap{
		generatedPath: generatedPath,
		sources:       make([]string, len(f.Sources)),
		contents:      make(map[string]string),
		generated:     segs,
		authored:      make(map[int][]segment),
	}
	for i, src := range f.Sources {
		m.sources[i] = resolveSource(f.SourceRoot, src, baseDir)
		if c, ok := f.Content(i); ok {
			m.contents[m.sources[i]] = c
		}
	}

	sort.SliceStable(m.generated, func(i, j int) bool {
		a, b := m.generated[i], m.generated[j]
		if a.genLine != b.genLine {
			return a.genLine < b.genLine
		}
		return a.genCol < b.genCol
	})

	for _, seg := range segs {
		if seg.source >= 0 {
			m.authored[seg.source] = append(m.authored[seg.source], seg)
		}
	}
	for _, list := range m.authored {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.srcLine != b.srcLine {
				return a.srcLine < b.srcLine
			}
			if a.srcCol != b.srcCol {
				return a.srcCol < b.srcCol
			}
			if a.genLine != b.genLine {
				return a.genLine < b.genLine
			}
			return a.genCol < b.genCol
		})
	}
	return m, nil
}

// normalizePath cleans file paths and leaves URLs alone.
func normalizePath(p string) string {
	if p == "" || isURL(p) {
		return p
	}
	return filepath.Clean(p)
}
