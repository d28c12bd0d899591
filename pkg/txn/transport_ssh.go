package txn

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// defaultSSHCommandTimeout bounds each individual ssh invocation used for
// bookkeeping (Begin/End), as distinct from the transfer itself, which is
// governed by the inactivity timeout on the content reader the coordinator
// passes in (spec §5). The read-back process runs without this bound.
const defaultSSHCommandTimeout = 30 * time.Second

// SSHTransport bridges client and remote over the system ssh binary,
// following the teacher's pattern of shelling out to ssh/scp rather than
// linking an SSH client library: locating the executable on PATH and
// running it as a detached subprocess with content piped over stdin/stdout.
type SSHTransport struct {
	// Host is the ssh destination, e.g. "user@host" or a Host alias from
	// the user's ssh config.
	Host string
	// Port is the ssh port, or 0 to let ssh use its default/config value.
	Port int
	// RemoteTempDir is the directory on Host used for transient transfer
	// files.
	RemoteTempDir string
	// CommandTimeout bounds each bookkeeping ssh invocation (Begin, End).
	// Zero means defaultSSHCommandTimeout.
	CommandTimeout time.Duration

	seq int
}

// NewSSHTransport creates a Transport that reaches host over ssh.
func NewSSHTransport(host string, port int, remoteTempDir string) *SSHTransport {
	return &SSHTransport{Host: host, Port: port, RemoteTempDir: remoteTempDir}
}

func (t *SSHTransport) sshArgs(command string) []string {
	var args []string
	if t.Port != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", t.Port))
	}
	args = append(args, t.Host, command)
	return args
}

func (t *SSHTransport) commandTimeout() time.Duration {
	if t.CommandTimeout > 0 {
		return t.CommandTimeout
	}
	return defaultSSHCommandTimeout
}

// Begin implements Transport, ensuring the remote temp directory exists.
func (t *SSHTransport) Begin() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.commandTimeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, "ssh", t.sshArgs(fmt.Sprintf("mkdir -p %q", t.RemoteTempDir))...)
	if err := cmd.Run(); err != nil {
		return errkind.Wrap(errkind.Transport, err, "creating remote temp directory over ssh")
	}
	return nil
}

func (t *SSHTransport) nextRemotePath() string {
	t.seq++
	return fmt.Sprintf("%s/xfer-%d", t.RemoteTempDir, t.seq)
}

// TransferToRemote implements Transport: streams content to a temp file on
// Host via ssh, then returns a reader that streams it back via a second ssh
// invocation so the caller can hand it to RemoteFilesystem.Stage as a plain
// io.Reader, matching the "filesystems consume the temp handles" contract.
func (t *SSHTransport) TransferToRemote(path string, content io.Reader) (io.Reader, error) {
	remotePath := t.nextRemotePath()

	write := exec.Command("ssh", t.sshArgs(fmt.Sprintf("cat > %q", remotePath))...)
	write.Stdin = content
	if err := write.Run(); err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "writing remote temp file over ssh: "+path)
	}

	return t.remoteReader(remotePath)
}

// TransferToLocal implements Transport, reusing the same remote temp file
// scheme in reverse direction.
func (t *SSHTransport) TransferToLocal(path string, content io.Reader) (io.Reader, error) {
	return t.TransferToRemote(path, content)
}

func (t *SSHTransport) remoteReader(remotePath string) (io.Reader, error) {
	read := exec.Command("ssh", t.sshArgs(fmt.Sprintf("cat %q && rm -f %q", remotePath, remotePath))...)
	stdout, err := read.StdoutPipe()
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "opening ssh stdout pipe")
	}
	if err := read.Start(); err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "starting ssh read-back process")
	}
	return &sshProcessReader{cmd: read, stdout: stdout}, nil
}

// sshProcessReader waits on the backing ssh process once its stdout is
// fully drained, surfacing any late process error on the final Read.
type sshProcessReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (r *sshProcessReader) Read(p []byte) (int, error) {
	n, err := r.stdout.Read(p)
	if err == io.EOF {
		if waitErr := r.cmd.Wait(); waitErr != nil {
			return n, errkind.Wrap(errkind.Transport, waitErr, "ssh read-back process failed")
		}
	}
	return n, err
}

// End implements Transport, removing the remote temp directory.
func (t *SSHTransport) End() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.commandTimeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, "ssh", t.sshArgs(fmt.Sprintf("rm -rf %q", t.RemoteTempDir))...)
	if err := cmd.Run(); err != nil {
		return errkind.Wrap(errkind.Transport, err, "removing remote temp directory over ssh")
	}
	return nil
}
