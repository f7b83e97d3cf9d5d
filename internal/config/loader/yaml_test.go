package loader

import (
	"errors"
	"testing"
)

func TestYAMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/mapdap.yaml", `
sourceMaps:
  enabled: false
  outFiles:
    - dist/*.js
logging:
  level: debug
  format: json
`)

	config, err := NewYAMLLoaderWithFS(memfs, "/mapdap.yaml").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sm := config["sourceMaps"].(map[string]any)
	if sm["enabled"] != false {
		t.Errorf("sourceMaps.enabled = %v, want false", sm["enabled"])
	}
	files := sm["outFiles"].([]any)
	if len(files) != 1 || files[0] != "dist/*.js" {
		t.Errorf("sourceMaps.outFiles = %v", files)
	}
	if config["logging"].(map[string]any)["format"] != "json" {
		t.Errorf("logging.format = %v", config["logging"])
	}
}

func TestYAMLLoader_Missing(t *testing.T) {
	config, err := NewYAMLLoaderWithFS(NewMemFS(), "/none.yaml").Load()
	if err != nil || config != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", config, err)
	}
}

func TestYAMLLoader_ParseError(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.yaml", "logging: [level\n")

	_, err := NewYAMLLoaderWithFS(memfs, "/bad.yaml").Load()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if perr.Path != "/bad.yaml" {
		t.Errorf("Path = %q", perr.Path)
	}
}
