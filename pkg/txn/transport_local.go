package txn

import (
	"io"
	"os"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// LocalTransport is the Transport used when client and remote share a
// filesystem (spec §4.4.1: Transport is oblivious to which side is
// "remote"). It passes content straight through via a temp file, matching
// the shape the network transports use without any actual network hop.
type LocalTransport struct {
	dir string
}

// NewLocalTransport creates a Transport staging its temp handles under dir.
func NewLocalTransport(dir string) *LocalTransport {
	return &LocalTransport{dir: dir}
}

// Begin implements Transport.
func (t *LocalTransport) Begin() error {
	return os.MkdirAll(t.dir, 0o700)
}

func (t *LocalTransport) relay(content io.Reader) (io.Reader, error) {
	file, err := os.CreateTemp(t.dir, "dsg-transport-*")
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "creating transport temp file")
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, errkind.Wrap(errkind.Transport, err, "copying content through transport")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, errkind.Wrap(errkind.Transport, err, "rewinding transport temp file")
	}
	return &tempFileHandle{File: file}, nil
}

// TransferToRemote implements Transport.
func (t *LocalTransport) TransferToRemote(path string, content io.Reader) (io.Reader, error) {
	return t.relay(content)
}

// TransferToLocal implements Transport.
func (t *LocalTransport) TransferToLocal(path string, content io.Reader) (io.Reader, error) {
	return t.relay(content)
}

// End implements Transport.
func (t *LocalTransport) End() error {
	return os.RemoveAll(t.dir)
}

// tempFileHandle closes and removes its backing temp file once fully read
// by the caller's Stage call, since Transport handles are single-use.
type tempFileHandle struct {
	*os.File
}

func (h *tempFileHandle) Read(p []byte) (int, error) {
	n, err := h.File.Read(p)
	if err == io.EOF {
		name := h.File.Name()
		h.File.Close()
		os.Remove(name)
	}
	return n, err
}
