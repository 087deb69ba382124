package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"

	"github.com/halcyonlabs/crossdeploy/pkg/cargo"
)

// BuildCmd is a single build step, stored as a shell snippet
type BuildCmd struct {
	ProfileName string
	Content     string
	Index       int
}

func (c BuildCmd) ShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(c.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", c.ProfileName, c.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", c.Content)
	}

	return result.Stmts, nil
}

// Profile contains the processed values passed to profile() by the config script
type Profile struct {
	Env      map[string]string
	Name     string
	Desc     string
	Target   string
	Base     string
	Artifact string
	Deploy   string
	Inputs   []string
	Cmds     []BuildCmd
	Strict   bool
	Default  bool
	Hidden   bool
}

// ArtifactPath returns the path of the binary this profile produces. An explicit
// artifact setting wins; otherwise the path is derived from the Cargo manifest
// next to the profile's base directory (target/<triple>/release/<bin>).
func (p *Profile) ArtifactPath() (string, error) {
	if p.Artifact != "" {
		if filepath.IsAbs(p.Artifact) {
			return p.Artifact, nil
		}
		return filepath.Join(p.Base, p.Artifact), nil
	}

	manifest, err := cargo.ReadManifest(filepath.Join(p.Base, "Cargo.toml"))
	if err != nil {
		return "", eris.Wrapf(err, "profile %s declares no artifact and the Cargo manifest could not be read", p.Name)
	}

	return filepath.Join(p.Base, manifest.ArtifactPath(p.Target)), nil
}

// ProfileList maps names to each declared profile
type ProfileList map[string]*Profile

// DefaultProfile returns the profile marked with default=True. If none is marked and
// exactly one visible profile exists, that one is returned.
func (l ProfileList) DefaultProfile() (*Profile, error) {
	var visible *Profile
	visibleCount := 0

	for _, profile := range l {
		if profile.Default {
			return profile, nil
		}

		if !profile.Hidden {
			visible = profile
			visibleCount++
		}
	}

	if visibleCount == 1 {
		return visible, nil
	}

	return nil, eris.New("no default profile declared, pass a profile name")
}

type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// Implement starlark.Value for *Profile

// String returns a string representation of the profile
func (p *Profile) String() string {
	return fmt.Sprintf("<Profile %s: %s>", p.Name, p.Target)
}

// Type always returns "profile" to indicate this type
func (p *Profile) Type() string {
	return "profile"
}

// Freeze doesn't do anything since profiles are immutable anyway
func (p *Profile) Freeze() {}

// Truth always returns true since a profile can't be nil or None
func (p *Profile) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since profile is not a hashable type
func (p *Profile) Hash() (uint32, error) {
	return 0, eris.New("profile is not a hashable type")
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
