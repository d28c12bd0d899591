// Package httptransport implements txn.Transport over plain HTTP, for
// remotes reachable only through a web-facing endpoint rather than ssh or a
// shared filesystem. Grounded on the teacher pack's registry HTTP server
// (distribution-distribution's gorilla/mux router plus
// gorilla/handlers.CombinedLoggingHandler access logging and sirupsen/logrus
// structured logging), re-purposed here as a transient byte-spool rather
// than a content-addressable blob store.
package httptransport

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server spools transfer payloads to SpoolDir, keyed by transaction id and
// path, so an httptransport.Transport on the other end of the wire can PUT
// content and later GET it back for a RemoteFilesystem/ClientFilesystem to
// consume.
type Server struct {
	SpoolDir string

	router *mux.Router
	log    *logrus.Entry
}

// NewServer builds a Server rooted at spoolDir, which is created if absent.
func NewServer(spoolDir string) *Server {
	s := &Server{
		SpoolDir: spoolDir,
		router:   mux.NewRouter(),
		log:      logrus.WithField("component", "httptransport"),
	}
	s.router.HandleFunc("/transfer/{tx}/{path:.*}", s.handleTransfer).Methods(http.MethodPut, http.MethodGet, http.MethodDelete)
	return s
}

// Handler returns an http.Handler wrapping the router with combined access
// logging, suitable for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(s.log.Logger.Writer(), s.router)
}

func (s *Server) spoolPath(tx, relPath string) string {
	return filepath.Join(s.SpoolDir, tx, filepath.FromSlash(relPath))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	target := s.spoolPath(vars["tx"], vars["path"])

	switch r.Method {
	case http.MethodPut:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			s.log.WithError(err).Error("creating spool parent directory")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		file, err := os.Create(target)
		if err != nil {
			s.log.WithError(err).Error("creating spool file")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer file.Close()
		if _, err := io.Copy(file, r.Body); err != nil {
			s.log.WithError(err).Error("writing spool file")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		file, err := os.Open(target)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer file.Close()
		if _, err := io.Copy(w, file); err != nil {
			s.log.WithError(err).Error("streaming spool file")
		}
	case http.MethodDelete:
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).Error("removing spool file")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
