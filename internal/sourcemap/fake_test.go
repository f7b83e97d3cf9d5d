package sourcemap

import (
	"context"
	"errors"
	"fmt"
)

// fakeMapper is a table-driven Mapper for tests.
type fakeMapper struct {
	// generated maps authored path to generated path.
	generated map[string]string
	// sources maps generated path to its authored paths.
	sources map[string][]string
	// toGen maps "authored:line:col" to a generated position.
	toGen map[string]MappedPosition
	// toAuth maps "generated:line:col" to an authored position.
	toAuth map[string]MappedPosition
	// contents maps authored path to inline content.
	contents map[string]string

	processed []string
	loadErr   error
}

func newFakeMapper() *fakeMapper {
	return &fakeMapper{
		generated: make(map[string]string),
		sources:   make(map[string][]string),
		toGen:     make(map[string]MappedPosition),
		toAuth:    make(map[string]MappedPosition),
		contents:  make(map[string]string),
	}
}

func key(path string, line, col int) string {
	return fmt.Sprintf("%s:%d:%d", path, line, col)
}

// link registers authored under generated.
func (m *fakeMapper) link(generated string, authored ...string) {
	for _, a := range authored {
		m.generated[a] = generated
		m.sources[generated] = append(m.sources[generated], a)
	}
}

// pair registers a two-way mapping.
func (m *fakeMapper) pair(authored string, aLine, aCol int, generated string, gLine, gCol int) {
	m.toGen[key(authored, aLine, aCol)] = MappedPosition{Path: generated, Line: gLine, Column: gCol}
	m.toAuth[key(generated, gLine, gCol)] = MappedPosition{Path: authored, Line: aLine, Column: aCol}
}

func (m *fakeMapper) ProcessNewSourceMap(_ context.Context, generatedPath, locator string) error {
	m.processed = append(m.processed, generatedPath+"="+locator)
	return m.loadErr
}

func (m *fakeMapper) MapToGenerated(authoredPath string, line, column int) (MappedPosition, bool) {
	pos, ok := m.toGen[key(authoredPath, line, column)]
	return pos, ok
}

func (m *fakeMapper) MapToAuthored(generatedPath string, line, column int) (MappedPosition, bool) {
	pos, ok := m.toAuth[key(generatedPath, line, column)]
	return pos, ok
}

func (m *fakeMapper) AllMappedSources(generatedPath string) []string {
	return append([]string(nil), m.sources[generatedPath]...)
}

func (m *fakeMapper) GeneratedPathFromAuthoredPath(authoredPath string) (string, bool) {
	g, ok := m.generated[authoredPath]
	return g, ok
}

func (m *fakeMapper) SourceContentFor(_, authoredPath string) (string, bool) {
	c, ok := m.contents[authoredPath]
	return c, ok
}

// fakeFS reports a fixed set of files as present.
type fakeFS map[string]bool

func (f fakeFS) Exists(path string) bool {
	return f[path]
}

var errLoad = errors.New("load failed")

func newTestTransformer(m Mapper, fs FileSystem) *Transformer {
	return New(Options{Enabled: true, Mapper: m, FileSystem: fs})
}
