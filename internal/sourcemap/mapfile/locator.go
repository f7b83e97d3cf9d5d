package mapfile

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSourceMapURL is returned when a generated file names no map.
var ErrNoSourceMapURL = errors.New("no sourceMappingURL comment")

var sourceMappingPrefixes = []string{
	"//# sourceMappingURL=",
	"//@ sourceMappingURL=",
	"/*# sourceMappingURL=",
	"/*@ sourceMappingURL=",
}

// FindSourceMapURL returns the locator named by the last sourceMappingURL
// comment in r.
func FindSourceMapURL(r io.Reader) (string, error) {
	var found string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		for _, prefix := range sourceMappingPrefixes {
			rest, ok := strings.CutPrefix(line, prefix)
			if !ok {
				continue
			}
			rest = strings.TrimSpace(strings.TrimSuffix(rest, "*/"))
			if rest != "" {
				found = rest
			}
			break
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan for sourceMappingURL: %w", err)
	}
	if found == "" {
		return "", ErrNoSourceMapURL
	}
	return found, nil
}

// FindSourceMapURLInFile opens path and calls FindSourceMapURL.
func FindSourceMapURLInFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return FindSourceMapURL(f)
}

// readLocator returns the map document named by locator and the file it
// was read from. The path is empty for inline maps.
//
// A locator is a data: URI, a file: URL, an absolute path, or a path
// relative to the generated file.
func readLocator(locator, generatedPath string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(locator, "data:"):
		data, err := decodeDataURI(locator)
		return data, "", err

	case strings.HasPrefix(locator, "file:"):
		u, err := url.Parse(locator)
		if err != nil {
			return nil, "", fmt.Errorf("parse locator %q: %w", locator, err)
		}
		return readMapFile(filepath.FromSlash(u.Path))

	case strings.Contains(locator, "://"):
		return nil, "", fmt.Errorf("%w: remote locator %q", ErrUnsupportedMap, locator)
	}

	path, err := url.PathUnescape(locator)
	if err != nil {
		path = locator
	}
	path = filepath.FromSlash(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(generatedPath), path)
	}
	return readMapFile(path)
}

func readMapFile(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read source map: %w", err)
	}
	return data, path, nil
}

// decodeDataURI decodes a data: URI payload, base64 or percent-encoded.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI without payload", ErrUnsupportedMap)
	}

	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
		return data, nil
	}

	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return []byte(s), nil
}

// resolveSource turns a source entry into the path used as its authored
// path.
func resolveSource(sourceRoot, source, baseDir string) string {
	if sourceRoot != "" && !isURL(source) && !filepath.IsAbs(source) {
		if isURL(sourceRoot) && !strings.HasPrefix(sourceRoot, "file:") {
			return strings.TrimSuffix(sourceRoot, "/") + "/" + source
		}
		source = strings.TrimSuffix(sourceRoot, "/") + "/" + source
	}

	if strings.HasPrefix(source, "file:") {
		if u, err := url.Parse(source); err == nil {
			return filepath.Clean(filepath.FromSlash(u.Path))
		}
	}
	if isURL(source) {
		return source
	}

	p := filepath.FromSlash(source)
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

func isURL(s string) bool {
	i := strings.Index(s, ":")
	if i <= 1 {
		// Windows drive letters are not schemes.
		return false
	}
	for _, c := range s[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
