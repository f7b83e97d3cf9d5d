package sourcemap

import (
	"context"
	"os"
)

// MappedPosition is the result of a position lookup in the other
// coordinate space.
type MappedPosition struct {
	Path   string
	Line   int
	Column int
}

// Mapper answers position and path queries from loaded mapping data.
// Lookups report ok=false when no mapping is available; that is a normal
// outcome, not an error.
type Mapper interface {
	// ProcessNewSourceMap ingests the map named by locator for a generated file.
	ProcessNewSourceMap(ctx context.Context, generatedPath, locator string) error

	// MapToGenerated maps an authored position into its generated file.
	MapToGenerated(authoredPath string, line, column int) (MappedPosition, bool)

	// MapToAuthored maps a generated position back to its authored file.
	MapToAuthored(generatedPath string, line, column int) (MappedPosition, bool)

	// AllMappedSources lists the authored paths that map into generatedPath.
	AllMappedSources(generatedPath string) []string

	// GeneratedPathFromAuthoredPath returns the generated file an authored file maps into.
	GeneratedPathFromAuthoredPath(authoredPath string) (string, bool)

	// SourceContentFor returns inline content the map of generatedPath
	// carries for an authored file.
	SourceContentFor(generatedPath, authoredPath string) (string, bool)
}

// FileSystem reports whether a file exists on disk.
type FileSystem interface {
	Exists(path string) bool
}

// OSFileSystem checks the real file system.
type OSFileSystem struct{}

// Exists reports whether path names an existing regular file or directory.
func (OSFileSystem) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
