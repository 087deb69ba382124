package deploy

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SftpUploader delivers an artifact over a native ssh connection. It's meant for
// targets that don't ship an scp binary (small embedded images often don't).
// Authentication uses the given key file or, if none is set, the local ssh agent.
type SftpUploader struct {
	Dest    Dest
	KeyFile string
	Port    int
	Timeout time.Duration
}

func NewSftpUploader(dest Dest, keyFile string) *SftpUploader {
	return &SftpUploader{
		Dest:    dest,
		KeyFile: keyFile,
		Port:    22,
		Timeout: time.Minute,
	}
}

func (u *SftpUploader) authMethods() ([]ssh.AuthMethod, error) {
	if u.KeyFile != "" {
		keyData, err := os.ReadFile(u.KeyFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read key file %s", u.KeyFile)
		}

		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse key file %s", u.KeyFile)
		}

		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, eris.New("no key file given and no ssh agent running")
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to the ssh agent")
	}

	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
}

// Deliver uploads the artifact, marks it executable and shows a progress bar on
// stderr while the bytes are in flight.
func (u *SftpUploader) Deliver(ctx context.Context, artifact string) error {
	username := u.Dest.User
	if username == "" {
		current, err := user.Current()
		if err != nil {
			return eris.Wrap(err, "failed to determine the local user")
		}
		username = current.Username
	}

	auth, err := u.authMethods()
	if err != nil {
		return err
	}

	sshConfig := &ssh.ClientConfig{
		User: username,
		Auth: auth,
		// host keys are ambient configuration, same as with scp
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         u.Timeout,
	}

	addr := fmt.Sprintf("%s:%d", u.Dest.Host, u.Port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return eris.Wrapf(err, "failed to connect to %s", addr)
	}
	defer sshConn.Close()

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		return eris.Wrap(err, "failed to open sftp session")
	}
	defer client.Close()

	if err = ctx.Err(); err != nil {
		return err
	}

	local, err := os.Open(artifact)
	if err != nil {
		return eris.Wrapf(err, "failed to open artifact %s", artifact)
	}
	defer local.Close()

	localInfo, err := local.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to check artifact %s", artifact)
	}

	remotePath := u.remotePath(client, artifact)
	remote, err := client.Create(remotePath)
	if err != nil {
		return eris.Wrapf(err, "failed to create remote file %s", remotePath)
	}

	bar := progressbar.DefaultBytes(localInfo.Size(), path.Base(remotePath))
	_, err = io.Copy(io.MultiWriter(remote, bar), &cancelReader{ctx: ctx, reader: local})
	bar.Finish()
	if err != nil {
		remote.Close()
		return eris.Wrapf(err, "upload to %s failed", remotePath)
	}

	err = remote.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to finish upload to %s", remotePath)
	}

	err = client.Chmod(remotePath, localInfo.Mode().Perm()|0o100)
	if err != nil {
		return eris.Wrapf(err, "failed to mark %s as executable", remotePath)
	}

	return nil
}

// cancelReader stops an upload as soon as the context is canceled instead of
// copying until the connection dies
type cancelReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *cancelReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	return r.reader.Read(p)
}

func (u *SftpUploader) remotePath(client *sftp.Client, artifact string) string {
	remotePath := u.Dest.Path
	if remotePath == "" {
		return path.Base(artifact)
	}

	info, err := client.Stat(remotePath)
	if err == nil && info.IsDir() {
		return path.Join(remotePath, path.Base(artifact))
	}

	return remotePath
}
