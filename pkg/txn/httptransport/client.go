package httptransport

import (
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
	"github.com/HRDAG/dsg-sub001/pkg/txn"
)

// Transport is the client-side txn.Transport talking to a Server over
// plain HTTP: TransferToRemote PUTs content to the spool and hands back a
// reader that GETs it back, so callers can hand the result to
// RemoteFilesystem.Stage as an ordinary io.Reader.
type Transport struct {
	BaseURL string
	Client  *http.Client

	tx  string
	log *logrus.Entry
}

// NewTransport builds a Transport against a Server reachable at baseURL
// (e.g. "http://remote.example:9418"), scoped to transaction tx.
func NewTransport(baseURL string, tx txn.ID) *Transport {
	return &Transport{
		BaseURL: baseURL,
		Client:  http.DefaultClient,
		tx:      string(tx),
		log:     logrus.WithField("component", "httptransport.client"),
	}
}

func (t *Transport) url(relPath string) string {
	return fmt.Sprintf("%s/transfer/%s/%s", t.BaseURL, t.tx, relPath)
}

// Begin implements txn.Transport; the HTTP transport has no connection
// setup beyond the per-request round trip.
func (t *Transport) Begin() error {
	return nil
}

func (t *Transport) put(relPath string, content io.Reader) error {
	req, err := http.NewRequest(http.MethodPut, t.url(relPath), content)
	if err != nil {
		return errkind.Wrap(errkind.Transport, err, "building http transfer request")
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.Transport, err, "sending http transfer request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return errkind.New(errkind.Transport, fmt.Sprintf("http transfer put failed: %s", resp.Status))
	}
	return nil
}

func (t *Transport) get(relPath string) (io.Reader, error) {
	resp, err := t.Client.Get(t.url(relPath))
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "sending http transfer get")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errkind.New(errkind.Transport, fmt.Sprintf("http transfer get failed: %s", resp.Status))
	}
	return &deletingBody{ReadCloser: resp.Body, client: t.Client, url: t.url(relPath)}, nil
}

// TransferToRemote implements txn.Transport.
func (t *Transport) TransferToRemote(path string, content io.Reader) (io.Reader, error) {
	if err := t.put(path, content); err != nil {
		return nil, err
	}
	return t.get(path)
}

// TransferToLocal implements txn.Transport.
func (t *Transport) TransferToLocal(path string, content io.Reader) (io.Reader, error) {
	return t.TransferToRemote(path, content)
}

// End implements txn.Transport; spooled objects are removed per-transfer by
// deletingBody, so there is no bulk cleanup step here.
func (t *Transport) End() error {
	return nil
}

// deletingBody issues a DELETE against the spooled object once the caller
// has fully drained it, so the spool does not accumulate stale transfers.
type deletingBody struct {
	io.ReadCloser
	client *http.Client
	url    string
}

func (d *deletingBody) Read(p []byte) (int, error) {
	n, err := d.ReadCloser.Read(p)
	if err == io.EOF {
		req, reqErr := http.NewRequest(http.MethodDelete, d.url, nil)
		if reqErr == nil {
			if resp, doErr := d.client.Do(req); doErr == nil {
				resp.Body.Close()
			}
		}
	}
	return n, err
}
