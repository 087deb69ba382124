package deploy

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

// ScpCommand delivers an artifact through the system scp binary. It relies on
// ambient ssh configuration (agent, keys, known_hosts); nothing is managed here.
type ScpCommand struct {
	Stdout io.Writer
	Stderr io.Writer

	Dest    Dest
	Options []string

	// set after the command is started
	cmd *exec.Cmd
}

func NewScpCommand(dest Dest, options []string) *ScpCommand {
	return &ScpCommand{
		Dest:    dest,
		Options: options,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Deliver copies the artifact to the destination. The transfer blocks until scp
// finishes; cancelling the context kills the process.
func (s *ScpCommand) Deliver(ctx context.Context, artifact string) error {
	if err := s.start(ctx, artifact); err != nil {
		return eris.Wrap(err, "failed to start scp")
	}

	errChan := make(chan error)
	go func() {
		errChan <- s.cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		return eris.Wrapf(ctx.Err(), "scp operation '%s=>%s' was canceled and terminated", artifact, s.Dest.String())
	case err := <-errChan:
		if err != nil {
			return eris.Wrapf(err, "scp %s to %s failed", artifact, s.Dest.String())
		}
		return nil
	}
}

func (s *ScpCommand) start(ctx context.Context, artifact string) error {
	// the remote operand always carries a colon, otherwise scp treats it as a
	// local path
	remote := s.Dest.Remote() + ":" + s.Dest.Path

	cmdArray := append(append([]string{}, s.Options...), artifact, remote)

	cmd := exec.CommandContext(ctx, "scp", cmdArray...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	s.cmd = cmd

	return cmd.Start()
}

// Args returns the argument vector the next Deliver call will execute, without
// the leading scp. Exposed for dry runs.
func (s *ScpCommand) Args(artifact string) []string {
	return append(append([]string{}, s.Options...), artifact, s.Dest.Remote()+":"+s.Dest.Path)
}
