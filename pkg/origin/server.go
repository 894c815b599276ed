package origin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/podcache/pkg/log"
)

// Server serves files under root via plain HTTP GET, rejecting any
// request path that would resolve outside of it.
type Server struct {
	root string
}

// New builds a Server rooted at root. root should already be an
// absolute, cleaned path (callers typically resolve it with
// filepath.Abs before calling New).
func New(root string) *Server {
	return &Server{root: filepath.Clean(root)}
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Run serves the origin's file tree on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/")
	rel, err := url.PathUnescape(raw)
	if err != nil {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}

	local, ok := s.resolve(rel)
	if !ok {
		log.WithComponent("origin").Warn().Str("path", rel).Msg("rejected path outside root")
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}

	http.ServeFile(w, r, local)
}

// resolve joins rel onto the server root and verifies the result is
// still contained within it, refusing any "../" escape.
func (s *Server) resolve(rel string) (string, bool) {
	local := filepath.Join(s.root, filepath.FromSlash(rel))
	if local != s.root && !strings.HasPrefix(local, s.root+string(filepath.Separator)) {
		return "", false
	}
	return local, true
}
