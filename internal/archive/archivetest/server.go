// Package archivetest provides an in-memory cold storage server for tests.
package archivetest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Additional-Code/vaultshop/internal/archive"
	"github.com/Additional-Code/vaultshop/internal/config"
)

const (
	AccessKey = "test-access"
	SecretKey = "test-secret"
)

// Server accepts authorized PUTs at /{item}/{file} and serves the stored
// bytes at /download/{item}/{file}.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	objects map[string][]byte
	putCode int
	getCode int
	puts    int
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{objects: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Config points an archive client at this server.
func (s *Server) Config() config.Archive {
	return config.Archive{
		AccessKey:       AccessKey,
		SecretKey:       SecretKey,
		UploadBaseURL:   s.URL,
		PublicBaseURL:   s.URL + "/download",
		DefaultFilename: "file.bin",
	}
}

// ArchiveClient returns an archive client bound to this server.
func (s *Server) ArchiveClient() *archive.Client {
	return archive.New(s.Config(), s.Server.Client())
}

// FailPuts makes every PUT answer with code.
func (s *Server) FailPuts(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCode = code
}

// FailGets makes every GET answer with code.
func (s *Server) FailGets(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCode = code
}

// Object returns the stored bytes for item/file.
func (s *Server) Object(item, file string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[item+"/"+file]
	return b, ok
}

// Store seeds an object directly.
func (s *Server) Store(item, file string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[item+"/"+file] = append([]byte(nil), data...)
	return s.URL + "/download/" + item + "/" + file
}

// Puts reports how many PUT requests reached the server.
func (s *Server) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		s.puts++
		if s.putCode != 0 {
			w.WriteHeader(s.putCode)
			return
		}
		if r.Header.Get("Authorization") != "LOW "+AccessKey+":"+SecretKey {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.objects[strings.TrimPrefix(r.URL.Path, "/")] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if s.getCode != 0 {
			w.WriteHeader(s.getCode)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/download/")
		body, ok := s.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
