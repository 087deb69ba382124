package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/halcyonlabs/crossdeploy/pkg/cargo"
)

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		projectRoot string
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

// Deployer delivers a built artifact to its destination
type Deployer interface {
	Deliver(ctx context.Context, artifact string) error
}

// RunOptions control a single RunProfile invocation
type RunOptions struct {
	// Deployer is invoked after the build commands; nil means build only
	Deployer   Deployer
	DryRun     bool
	Force      bool
	DeployOnly bool
}

// ExitError carries the exit status of the underlying tool so the process can
// terminate with the same code.
type ExitError struct {
	cause  error
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d: %s", e.Status, e.cause.Error())
}

func (e *ExitError) Unwrap() error {
	return e.cause
}

func exitStatus(err error) int {
	if code, ok := interp.IsExitStatus(err); ok {
		return int(code)
	}

	var execErr *exec.ExitError
	if eris.As(err, &execErr) {
		return execErr.ExitCode()
	}

	return 1
}

func profileEnv(profile *Profile) expand.Environ {
	envVars := os.Environ()

	for name, value := range profile.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

// posixAliases routes mv/rm/mkdir through our cross-platform implementations to make
// sure build commands behave consistently
func posixAliases(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			switch args[0] {
			case "mv", "rm", "mkdir":
				args = append([]string{"crossdeploy"}, args...)
			}
		}

		return next(ctx, args)
	}
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func resolvePatternLists(ctx context.Context, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir2: shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	parserCtx := &parserCtx{
		filepath:    "invalid",
		projectRoot: getRuntimeCtx(ctx).projectRoot,
	}

	for _, item := range patterns {
		item = normalizePath(parserCtx, base, item)
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// RunProfile builds the given profile and, if opts.Deployer is set, delivers the
// artifact afterwards. A strict profile stops at the first failing command and
// never reaches the deploy step; a permissive profile keeps going and still
// attempts the transfer, reporting the build failure at the end.
func RunProfile(ctx context.Context, projectRoot string, profile *Profile, opts RunOptions) error {
	rctx := runtimeCtx{
		projectRoot: projectRoot,
	}
	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)

	artifact, err := profile.ArtifactPath()
	if err != nil {
		return err
	}

	var buildErr error
	if !opts.DeployOnly {
		buildErr = runBuild(ctx, profile, artifact, opts)
	}

	if buildErr != nil {
		if profile.Strict || opts.Deployer == nil {
			return buildErr
		}

		log(ctx).Warn().
			Str("profile", profile.Name).
			Msg("build failed, attempting the transfer anyway")
	}

	if opts.Deployer != nil {
		if opts.DryRun {
			log(ctx).Info().
				Str("profile", profile.Name).
				Msgf("would deliver %s", artifact)
		} else {
			err = opts.Deployer.Deliver(ctx, artifact)
			if err != nil {
				return &ExitError{
					Status: exitStatus(err),
					cause:  eris.Wrapf(err, "failed to deliver %s", artifact),
				}
			}

			log(ctx).Info().
				Str("profile", profile.Name).
				Msgf("delivered %s", artifact)
		}
	}

	return buildErr
}

func runBuild(ctx context.Context, profile *Profile, artifact string, opts RunOptions) error {
	if !opts.Force {
		skip, err := upToDate(ctx, profile, artifact)
		if err != nil {
			return err
		}

		if skip {
			log(ctx).Info().
				Str("profile", profile.Name).
				Msg("nothing to do (artifact is newer than all inputs)")
			return nil
		}
	}

	cmds := profile.Cmds
	if len(cmds) == 0 {
		cmds = []BuildCmd{{ProfileName: profile.Name, Content: cargo.BuildCommand(profile.Target)}}
	}

	params := []string{}
	if profile.Strict {
		params = append(params, "-e")
	}

	runner, err := interp.New(
		interp.Dir(profile.Base),
		interp.Env(profileEnv(profile)),
		interp.ExecHandlers(posixAliases),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params(params...),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}

	var lastErr error
	for _, item := range cmds {
		stmts, err := item.ShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse build command")
		}

		for _, stm := range stmts {
			strBuffer.Reset()
			printer.Print(&strBuffer, stm)
			log(ctx).Info().
				Str("profile", profile.Name).
				Bool("command", true).
				Msg(strBuffer.String())

			if opts.DryRun {
				continue
			}

			err = runner.Run(ctx, stm)
			if err != nil {
				wrapped := &ExitError{
					Status: exitStatus(err),
					cause:  eris.Wrapf(err, "command %s failed", strBuffer.String()),
				}

				if profile.Strict {
					return wrapped
				}

				log(ctx).Error().
					Err(err).
					Str("profile", profile.Name).
					Msg("command failed, continuing")
				lastErr = wrapped
			}

			if runner.Exited() {
				return lastErr
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return lastErr
}

func upToDate(ctx context.Context, profile *Profile, artifact string) (bool, error) {
	if len(profile.Inputs) == 0 {
		return false, nil
	}

	artifactInfo, err := os.Stat(artifact)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, eris.Wrapf(err, "Failed to check %s", artifact)
	}

	inputList, err := resolvePatternLists(ctx, profile.Base, profile.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	if len(inputList) == 0 {
		return false, nil
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().Sub(newestInput) > 0 {
			newestInput = info.ModTime()
		}
	}

	return artifactInfo.ModTime().Sub(newestInput) > 0, nil
}
