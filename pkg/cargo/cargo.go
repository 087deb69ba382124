// Package cargo reads the parts of a Cargo manifest that are relevant for locating
// and naming build artifacts.
package cargo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"
)

type Manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
}

// ReadManifest parses the Cargo.toml at the given path
func ReadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	var manifest Manifest
	err = toml.Unmarshal(content, &manifest)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	if manifest.BinaryName() == "" {
		return nil, eris.Errorf("%s declares neither a package name nor a [[bin]] entry", path)
	}

	return &manifest, nil
}

// BinaryName returns the name of the binary this manifest produces. The first
// [[bin]] entry wins, the package name is the fallback (matching cargo's own
// default).
func (m *Manifest) BinaryName() string {
	if len(m.Bin) > 0 && m.Bin[0].Name != "" {
		return m.Bin[0].Name
	}

	return m.Package.Name
}

// ArtifactPath returns the relative path of the release binary for the given
// target triple.
func (m *Manifest) ArtifactPath(target string) string {
	return filepath.Join("target", target, "release", m.BinaryName())
}

// BuildCommand returns the default release build invocation for the given target
// triple as a shell snippet.
func BuildCommand(target string) string {
	return fmt.Sprintf("cargo build --release --target %s", target)
}
