package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type recordingDeployer struct {
	err   error
	calls []string
}

func (d *recordingDeployer) Deliver(ctx context.Context, artifact string) error {
	d.calls = append(d.calls, artifact)
	return d.err
}

func testCtx() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func testProfile(base string, strict bool, cmds ...string) *Profile {
	profile := &Profile{
		Name:     "test",
		Target:   "arm-unknown-linux-gnueabihf",
		Base:     base,
		Artifact: "out.bin",
		Env:      map[string]string{},
		Strict:   strict,
	}

	for idx, content := range cmds {
		profile.Cmds = append(profile.Cmds, BuildCmd{ProfileName: profile.Name, Content: content, Index: idx})
	}

	return profile
}

func TestRunProfileBuildOnly(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, false, "echo hi > built.txt")

	err := RunProfile(testCtx(), dir, profile, RunOptions{})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "built.txt")); err != nil {
		t.Errorf("Expected the build command to run: %v", err)
	}
}

func TestRunProfileDeliversAfterBuild(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, true, "echo hi > out.bin")
	rec := &recordingDeployer{}

	err := RunProfile(testCtx(), dir, profile, RunOptions{Deployer: rec})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	if len(rec.calls) != 1 {
		t.Fatalf("Expected exactly one transfer, got %d", len(rec.calls))
	}

	if rec.calls[0] != filepath.Join(dir, "out.bin") {
		t.Errorf("Transfer got the wrong artifact: %s", rec.calls[0])
	}
}

func TestRunProfileStrictStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, true, "exit 7", "echo hi > after.txt")
	rec := &recordingDeployer{}

	err := RunProfile(testCtx(), dir, profile, RunOptions{Deployer: rec})
	if err == nil {
		t.Fatal("Expected RunProfile to fail")
	}

	var exitErr *ExitError
	if !eris.As(err, &exitErr) {
		t.Fatalf("Expected an ExitError, got %v", err)
	}

	if exitErr.Status != 7 {
		t.Errorf("Expected the build tool's exit status 7, got %d", exitErr.Status)
	}

	if _, err := os.Stat(filepath.Join(dir, "after.txt")); err == nil {
		t.Error("Strict profile ran commands past the failure")
	}

	if len(rec.calls) != 0 {
		t.Error("Strict profile attempted a transfer after a failed build")
	}
}

func TestRunProfilePermissiveContinues(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, false, "false", "echo hi > after.txt")
	rec := &recordingDeployer{}

	err := RunProfile(testCtx(), dir, profile, RunOptions{Deployer: rec})
	if err == nil {
		t.Fatal("Expected the build failure to be reported")
	}

	var exitErr *ExitError
	if !eris.As(err, &exitErr) {
		t.Fatalf("Expected an ExitError, got %v", err)
	}

	if exitErr.Status != 1 {
		t.Errorf("Expected exit status 1, got %d", exitErr.Status)
	}

	if _, err := os.Stat(filepath.Join(dir, "after.txt")); err != nil {
		t.Error("Permissive profile stopped at the failed command")
	}

	if len(rec.calls) != 1 {
		t.Errorf("Permissive profile should still attempt the transfer, got %d calls", len(rec.calls))
	}
}

func TestRunProfileTransferFailure(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, true, "echo hi > out.bin")
	rec := &recordingDeployer{err: eris.New("connection refused")}

	err := RunProfile(testCtx(), dir, profile, RunOptions{Deployer: rec})
	if err == nil {
		t.Fatal("Expected the transfer failure to propagate")
	}
}

func TestRunProfileEnvScopedToChild(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, true, "echo $CROSSDEPLOY_TEST_SYSROOT > env.txt")
	profile.Env["CROSSDEPLOY_TEST_SYSROOT"] = "/usr/arm-linux-gnueabihf"

	err := RunProfile(testCtx(), dir, profile, RunOptions{})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "env.txt"))
	if err != nil {
		t.Fatalf("Failed to read env.txt: %v", err)
	}

	if string(content) != "/usr/arm-linux-gnueabihf\n" {
		t.Errorf("Build command saw the wrong env value: %q", content)
	}

	if os.Getenv("CROSSDEPLOY_TEST_SYSROOT") != "" {
		t.Error("Profile env leaked into the parent process")
	}
}

func TestRunProfileDryRun(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, true, "echo hi > built.txt")
	rec := &recordingDeployer{}

	err := RunProfile(testCtx(), dir, profile, RunOptions{DryRun: true, Deployer: rec})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "built.txt")); err == nil {
		t.Error("Dry run executed a build command")
	}

	if len(rec.calls) != 0 {
		t.Error("Dry run attempted a transfer")
	}
}

func TestRunProfileUpToDate(t *testing.T) {
	dir := t.TempDir()

	input := filepath.Join(dir, "main.rs")
	if err := os.WriteFile(input, []byte("fn main() {}"), 0600); err != nil {
		t.Fatal(err)
	}

	artifact := filepath.Join(dir, "out.bin")
	if err := os.WriteFile(artifact, []byte("elf"), 0600); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(input, old, old); err != nil {
		t.Fatal(err)
	}

	profile := testProfile(dir, true, "echo hi > marker.txt")
	profile.Inputs = []string{"main.rs"}

	err := RunProfile(testCtx(), dir, profile, RunOptions{})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "marker.txt")); err == nil {
		t.Error("Build ran although the artifact is newer than all inputs")
	}

	err = RunProfile(testCtx(), dir, profile, RunOptions{Force: true})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "marker.txt")); err != nil {
		t.Error("Force should always run the build commands")
	}
}

func TestRunProfileDeployOnly(t *testing.T) {
	dir := t.TempDir()
	profile := testProfile(dir, true, "echo hi > built.txt")
	rec := &recordingDeployer{}

	err := RunProfile(testCtx(), dir, profile, RunOptions{DeployOnly: true, Deployer: rec})
	if err != nil {
		t.Fatalf("RunProfile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "built.txt")); err == nil {
		t.Error("deploy-only ran the build commands")
	}

	if len(rec.calls) != 1 {
		t.Errorf("Expected exactly one transfer, got %d", len(rec.calls))
	}
}

func TestExitStatusFallback(t *testing.T) {
	if status := exitStatus(eris.New("boom")); status != 1 {
		t.Errorf("Expected fallback status 1, got %d", status)
	}
}
