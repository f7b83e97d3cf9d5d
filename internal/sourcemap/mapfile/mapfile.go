// Package mapfile loads revision 3 source maps from disk or data URIs and
// answers position queries against them. Store implements
// sourcemap.Mapper.
package mapfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedMap is returned for maps this package cannot index.
var ErrUnsupportedMap = errors.New("unsupported source map")

// File is the JSON form of a revision 3 source map.
type File struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names,omitempty"`
	Mappings       string    `json:"mappings"`

	Sections []json.RawMessage `json:"sections,omitempty"`
}

// xssiPrefix may precede the JSON to stop it being evaluated as script.
var xssiPrefix = []byte(")]}'")

// Parse decodes a source map document.
func Parse(data []byte) (*File, error) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), xssiPrefix)

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode source map: %w", err)
	}
	if f.Version != 3 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedMap, f.Version)
	}
	if len(f.Sections) > 0 {
		return nil, fmt.Errorf("%w: indexed maps with sections", ErrUnsupportedMap)
	}
	return &f, nil
}

// Content returns the inline content for source index i.
func (f *File) Content(i int) (string, bool) {
	if i < 0 || i >= len(f.SourcesContent) || f.SourcesContent[i] == nil {
		return "", false
	}
	return *f.SourcesContent[i], true
}
