package pipeline

import (
	"path/filepath"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	ctx := &parserCtx{
		filepath:    filepath.Join("/proj", ConfigFile),
		projectRoot: "/proj",
	}

	cases := []struct {
		input    string
		expected string
	}{
		{"//src/main.rs", filepath.Join("/proj", "src", "main.rs")},
		{"src/main.rs", filepath.Join("/proj", "src", "main.rs")},
		{"/usr/arm-linux-gnueabihf", filepath.Join("/usr", "arm-linux-gnueabihf")},
		{".", "/proj"},
	}

	for _, tc := range cases {
		got := normalizePath(ctx, tc.input)
		if got != tc.expected {
			t.Errorf("normalizePath(%s) = %s, expected %s", tc.input, got, tc.expected)
		}
	}
}

func TestSimplifyPath(t *testing.T) {
	ctx := &parserCtx{
		filepath:    filepath.Join("/proj", ConfigFile),
		projectRoot: "/proj",
	}

	if got := simplifyPath(ctx, "/proj/src/main.rs"); got != "//src/main.rs" {
		t.Errorf("Expected //src/main.rs, got %s", got)
	}

	if got := simplifyPath(ctx, "/etc/hosts"); got != "/etc/hosts" {
		t.Errorf("Paths outside the project root should stay untouched, got %s", got)
	}
}

func TestDocLookup(t *testing.T) {
	doc := map[string]interface{}{
		"package": map[string]interface{}{
			"name": "led-strip-controller",
		},
		"bin": []interface{}{
			map[string]interface{}{"name": "ledstrip"},
		},
	}

	value, found, err := docLookup(doc, "package.name")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v (found=%v)", err, found)
	}
	if value != "led-strip-controller" {
		t.Errorf("Unexpected value %v", value)
	}

	value, found, err = docLookup(doc, "bin.0.name")
	if err != nil || !found {
		t.Fatalf("Index lookup failed: %v (found=%v)", err, found)
	}
	if value != "ledstrip" {
		t.Errorf("Unexpected value %v", value)
	}

	_, found, err = docLookup(doc, "package.missing")
	if err != nil {
		t.Fatalf("Missing key must not error: %v", err)
	}
	if found {
		t.Error("Missing key reported as found")
	}

	_, _, err = docLookup(doc, "package.name.deeper")
	if err == nil {
		t.Error("Descending into a scalar should error")
	}
}
