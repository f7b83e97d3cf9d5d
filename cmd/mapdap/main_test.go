package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// writeProject lays out out/app.js with a map that sends app.ts:10 to
// app.js:5 and util.ts:3 to app.js:6.
func writeProject(t *testing.T) (generated, appTS string) {
	t.Helper()
	root := t.TempDir()
	generated = filepath.Join(root, "out", "app.js")
	appTS = filepath.Join(root, "src", "app.ts")

	files := map[string]string{
		generated: "var a = 1;\n//# sourceMappingURL=app.js.map\n",
		generated + ".map": `{"version":3,"sourceRoot":"../src","sources":["app.ts","util.ts"],` +
			`"names":[],"mappings":"AAAA;;;;AASA;ACPA"}`,
	}
	for path, content := range files {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return generated, appTS
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "mapdap.toml")
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSourcesCommand(t *testing.T) {
	generated, appTS := writeProject(t)

	out, err := execute(t, "sources", generated)
	if err != nil {
		t.Fatalf("sources failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != appTS || !strings.HasSuffix(lines[1], "util.ts") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSourcesCommand_NoMapComment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.js")
	if err := os.WriteFile(path, []byte("var x;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "sources", path); err == nil {
		t.Error("expected error for file without sourceMappingURL")
	}
}

func TestToGeneratedCommand(t *testing.T) {
	generated, appTS := writeProject(t)

	out, err := execute(t, "--json", "to-generated", generated, appTS+":10")
	if err != nil {
		t.Fatalf("to-generated failed: %v", err)
	}
	var res positionResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if !res.Mapped || res.To.Path != generated || res.To.Line != 5 || res.To.Column != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestToAuthoredCommand(t *testing.T) {
	generated, appTS := writeProject(t)

	out, err := execute(t, "to-authored", generated, "5:1")
	if err != nil {
		t.Fatalf("to-authored failed: %v", err)
	}
	if got := strings.TrimSpace(out); got != appTS+":10:1" {
		t.Errorf("expected %s:10:1, got %s", appTS, got)
	}

	out, err = execute(t, "to-authored", generated, "3")
	if err != nil {
		t.Fatalf("to-authored failed: %v", err)
	}
	if !strings.Contains(out, "no mapping") {
		t.Errorf("expected no mapping, got %s", out)
	}
}

func TestPreload_RecursiveOutFiles(t *testing.T) {
	root := t.TempDir()
	var want []string
	for _, rel := range []string{"out/top.js", "out/a/mid.js", "out/a/b/deep.js"} {
		generated := filepath.Join(root, filepath.FromSlash(rel))
		base := filepath.Base(generated)
		if err := os.MkdirAll(filepath.Dir(generated), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(generated, []byte("x;\n//# sourceMappingURL="+base+".map\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		doc := `{"version":3,"sources":["` + strings.TrimSuffix(base, ".js") + `.ts"],"mappings":"AAAA"}`
		if err := os.WriteFile(generated+".map", []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		want = append(want, generated)
	}

	cfgPath := filepath.Join(root, "mapdap.toml")
	pattern := filepath.ToSlash(filepath.Join(root, "out")) + "/**/*.js"
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf("[sourceMaps]\noutFiles = [%q]\n", pattern)), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	env, err := newEnvironment(cmd, &globalFlags{configPath: cfgPath})
	if err != nil {
		t.Fatalf("newEnvironment failed: %v", err)
	}
	defer env.transformer.Close()

	if err := env.preload(context.Background()); err != nil {
		t.Fatalf("preload failed: %v", err)
	}
	got := env.store.Loaded()
	if len(got) != len(want) {
		t.Fatalf("expected %d preloaded maps, got %v", len(want), got)
	}
	wantSet := make(map[string]bool)
	for _, w := range want {
		wantSet[w] = true
	}
	gotSet := make(map[string]bool)
	for _, g := range got {
		gotSet[g] = true
	}
	if !reflect.DeepEqual(gotSet, wantSet) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !env.transformer.Ready() {
		t.Error("expected ready gate open after preload")
	}
}

func TestDisabledByEnvironment(t *testing.T) {
	generated, _ := writeProject(t)
	t.Setenv("MAPDAP_SOURCE_MAPS", "false")

	if _, err := execute(t, "sources", generated); err == nil {
		t.Error("expected error when source maps are disabled")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	generated, _ := writeProject(t)
	if _, err := execute(t, "--log-level", "loud", "sources", generated); err == nil {
		t.Error("expected validation error")
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in       string
		needPath bool
		line     int
		column   int
		base     string
		wantErr  bool
	}{
		{"src/app.ts:10", true, 10, 0, "app.ts", false},
		{"src/app.ts:10:4", true, 10, 4, "app.ts", false},
		{"5:1", false, 5, 1, "", false},
		{"5", false, 5, 0, "", false},
		{"src/app.ts", true, 0, 0, "", true},
		{"10", true, 0, 0, "", true},
		{"a.js:5", false, 0, 0, "", true},
		{"a.ts:-1", true, 0, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := parseLocation(tt.in, tt.needPath)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", loc)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if loc.Line != tt.line || loc.Column != tt.column {
				t.Errorf("expected %d:%d, got %d:%d", tt.line, tt.column, loc.Line, loc.Column)
			}
			if tt.base != "" && (filepath.Base(loc.Path) != tt.base || !filepath.IsAbs(loc.Path)) {
				t.Errorf("expected absolute path ending in %s, got %s", tt.base, loc.Path)
			}
		})
	}
}
