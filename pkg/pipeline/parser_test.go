package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	return path, dir
}

const basicConfig = `
mode = option("mode", "release", help="build mode")

setenv("PKG_CONFIG_ALLOW_CROSS", "1")

def configure():
    profile(
        name = "dev",
        desc = "mode: " + mode,
        target = "arm-unknown-linux-gnueabihf",
        env = {"PKG_CONFIG_SYSROOT_DIR": "/usr/arm-linux-gnueabihf"},
        cmds = ["cargo build --release", ("echo", "done")],
        inputs = ["src/**/*.rs"],
        default = True,
    )

    profile(
        name = "release",
        target = "arm-unknown-linux-gnueabihf",
        artifact = "bin/out",
        strict = True,
    )
`

func TestParseProfiles(t *testing.T) {
	path, root := writeConfig(t, basicConfig)

	profiles, options, err := Parse(testCtx(), path, root, map[string]string{}, true)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(profiles) != 2 {
		t.Fatalf("Expected 2 profiles, got %d", len(profiles))
	}

	dev, ok := profiles["dev"]
	if !ok {
		t.Fatal("Profile dev is missing")
	}

	if dev.Desc != "mode: release" {
		t.Errorf("Option default was not applied: %s", dev.Desc)
	}

	if dev.Env["PKG_CONFIG_SYSROOT_DIR"] != "/usr/arm-linux-gnueabihf" {
		t.Error("Profile env is missing the sysroot variable")
	}

	// script-level setenv calls apply to every profile
	for _, name := range []string{"dev", "release"} {
		if profiles[name].Env["PKG_CONFIG_ALLOW_CROSS"] != "1" {
			t.Errorf("Profile %s is missing the setenv override", name)
		}
	}

	if len(dev.Cmds) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(dev.Cmds))
	}

	if dev.Cmds[1].Content != "echo done" {
		t.Errorf("Tuple command was not converted: %q", dev.Cmds[1].Content)
	}

	if !profiles["release"].Strict {
		t.Error("Strict flag was not picked up")
	}

	if _, ok := options["mode"]; !ok {
		t.Error("Declared option is missing")
	}
}

func TestParseOptionOverride(t *testing.T) {
	path, root := writeConfig(t, basicConfig)

	profiles, _, err := Parse(testCtx(), path, root, map[string]string{"mode": "debug"}, true)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if profiles["dev"].Desc != "mode: debug" {
		t.Errorf("Option override was not applied: %s", profiles["dev"].Desc)
	}
}

func TestParseDefaultProfile(t *testing.T) {
	path, root := writeConfig(t, basicConfig)

	profiles, _, err := Parse(testCtx(), path, root, map[string]string{}, true)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	def, err := profiles.DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile failed: %v", err)
	}

	if def.Name != "dev" {
		t.Errorf("Expected dev to be the default profile, got %s", def.Name)
	}
}

func TestParseMissingTarget(t *testing.T) {
	path, root := writeConfig(t, `
def configure():
    profile(name = "broken")
`)

	_, _, err := Parse(testCtx(), path, root, map[string]string{}, true)
	if err == nil {
		t.Fatal("Expected an error for a profile without a target")
	}
}

func TestParseReservedName(t *testing.T) {
	path, root := writeConfig(t, `
def configure():
    profile(name = "configure", target = "arm-unknown-linux-gnueabihf")
`)

	_, _, err := Parse(testCtx(), path, root, map[string]string{}, true)
	if err == nil {
		t.Fatal("Expected an error for the reserved profile name")
	}
}

func TestParseMissingConfigure(t *testing.T) {
	path, root := writeConfig(t, `x = 1`)

	_, _, err := Parse(testCtx(), path, root, map[string]string{}, true)
	if err == nil {
		t.Fatal("Expected an error for a script without configure")
	}
}

func TestParseOptionsOnly(t *testing.T) {
	path, root := writeConfig(t, basicConfig)

	profiles, options, err := Parse(testCtx(), path, root, map[string]string{}, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(profiles) != 0 {
		t.Error("Expected no profiles without the configure call")
	}

	if len(options) != 1 {
		t.Errorf("Expected the declared option, got %d", len(options))
	}
}

func TestFindConfig(t *testing.T) {
	_, root := writeConfig(t, basicConfig)

	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0770); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("FindConfig failed: %v", err)
	}

	if found != filepath.Join("..", "..", ConfigFile) {
		t.Errorf("Expected a relative path to the config, got %s", found)
	}
}
