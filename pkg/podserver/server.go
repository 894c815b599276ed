package podserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/podcache/pkg/coordinator"
	"github.com/cuemby/podcache/pkg/log"
	"github.com/cuemby/podcache/pkg/metrics"
	"github.com/cuemby/podcache/pkg/reserve"
)

// safePathPattern restricts /files/<rel> to a conservative character set,
// matching the reference's SAFE_PATH. It alone does not block traversal
// (".." is made of characters the set allows); isSafeRel adds that check.
var safePathPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

const originFetchTimeout = 30 * time.Second

// Server is a pod's HTTP cache surface: /files/<rel>, /healthz, /metrics.
type Server struct {
	cacheDir string
	origin   string
	podID    string
	store    *coordinator.Store // nil disables preheat gating entirely
	limiter  *reserve.OriginRateLimiter
	client   *http.Client
	locks    stripedLock
}

// New builds a Server rooted at cacheDir, fetching misses from origin.
// store may be nil (no coordination store configured); limiter may be
// nil (no origin rate limiting).
func New(cacheDir, origin, podID string, store *coordinator.Store, limiter *reserve.OriginRateLimiter) *Server {
	return &Server{
		cacheDir: cacheDir,
		origin:   origin,
		podID:    podID,
		store:    store,
		limiter:  limiter,
		client:   &http.Client{},
	}
}

// Handler returns the pod's full HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/", s.handleFiles)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run serves the pod's HTTP surface on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // large file transfers
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

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	l := log.WithComponent("pod")

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/files/")
	rel, err := url.PathUnescape(raw)
	if err != nil || rel == "" || !isSafeRel(rel) {
		metrics.CacheRequestsTotal.WithLabelValues("bad_path").Inc()
		l.Warn().Str("path", raw).Msg("rejected bad path")
		http.Error(w, fmt.Sprintf("bad path: %q", raw), http.StatusBadRequest)
		return
	}

	status, fetched, err := s.ensureCached(r.Context(), rel)
	switch status {
	case http.StatusTooEarly:
		metrics.CacheRequestsTotal.WithLabelValues("preheat_denied").Inc()
		l.Info().Str("path", rel).Msg("not in preheat set, preheat required")
		w.Header().Set("X-Preheat-Needed", "1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooEarly)
		_, _ = w.Write([]byte(`{"error":"preheat required"}`))
		return
	case http.StatusBadGateway:
		metrics.CacheRequestsTotal.WithLabelValues("origin_failed").Inc()
		l.Warn().Err(err).Str("path", rel).Msg("origin fetch failed")
		http.Error(w, fmt.Sprintf("failed to fetch from origin: %v", err), http.StatusBadGateway)
		return
	case http.StatusServiceUnavailable:
		metrics.CacheRequestsTotal.WithLabelValues("rate_limited").Inc()
		l.Warn().Str("path", rel).Msg("origin fetch rate limited")
		http.Error(w, "origin fetch rate limited, try again shortly", http.StatusServiceUnavailable)
		return
	}

	outcome := "hit"
	if fetched {
		outcome = "miss_fill"
	}
	metrics.CacheRequestsTotal.WithLabelValues(outcome).Inc()
	metrics.CacheRequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	l.Info().Str("path", rel).Str("outcome", outcome).Msg("serving file")
	s.observeBusySlots(r.Context())

	localPath := filepath.Join(s.cacheDir, filepath.FromSlash(rel))
	http.ServeFile(w, r, localPath)
}

// observeBusySlots refreshes the podcache_busy_slots gauge from this
// pod's current semaphore occupancy. Best effort: a store error just
// leaves the gauge at its last observed value.
func (s *Server) observeBusySlots(ctx context.Context) {
	if s.store == nil {
		return
	}
	n, err := s.store.BusyCount(ctx, s.podID)
	if err != nil {
		return
	}
	metrics.BusySlots.Set(float64(n))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}
}

// ensureCached fills localPath from origin if it is not already cached,
// gated by preheat authorization and the origin rate limiter. Returns
// the HTTP status the caller should translate into a response, whether
// a fetch actually happened (for metrics), and the fetch error if any.
func (s *Server) ensureCached(ctx context.Context, rel string) (status int, fetched bool, err error) {
	localPath := filepath.Join(s.cacheDir, filepath.FromSlash(rel))
	if _, statErr := os.Stat(localPath); statErr == nil {
		return http.StatusOK, false, nil
	}

	unlock := s.locks.lock(rel)
	defer unlock()

	if _, statErr := os.Stat(localPath); statErr == nil {
		return http.StatusOK, false, nil
	}

	l := log.WithComponent("pod")

	if s.store != nil {
		authorized, checkErr := s.store.IsAuthorized(ctx, rel, s.podID)
		if checkErr != nil {
			l.Warn().Err(checkErr).Str("path", rel).Msg("preheat check failed, degrading to direct fetch")
		} else if !authorized {
			return http.StatusTooEarly, false, nil
		}
	}

	if s.limiter != nil {
		allowed, limitErr := s.limiter.Allow(ctx, s.podID)
		if limitErr != nil {
			l.Warn().Err(limitErr).Msg("rate limit check failed, allowing fetch")
		} else if !allowed {
			metrics.OriginFetchesTotal.WithLabelValues("rate_limited").Inc()
			return http.StatusServiceUnavailable, false, nil
		}
	}

	if fetchErr := s.fetchFromOrigin(ctx, rel, localPath); fetchErr != nil {
		metrics.OriginFetchesTotal.WithLabelValues("failed").Inc()
		return http.StatusBadGateway, true, fetchErr
	}
	metrics.OriginFetchesTotal.WithLabelValues("ok").Inc()
	return http.StatusOK, true, nil
}

func (s *Server) fetchFromOrigin(ctx context.Context, rel, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create cache subdir: %w", err)
	}

	origin := fmt.Sprintf("%s/%s", trimTrailingSlash(s.origin), rel)
	ctx, cancel := context.WithTimeout(ctx, originFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return fmt.Errorf("build origin request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", origin, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("origin returned status %d for %s", resp.StatusCode, origin)
	}

	tmpPath := fmt.Sprintf("%s.tmp-%d", localPath, os.Getpid())
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	buf := make([]byte, 1<<20)
	_, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr != nil {
			return fmt.Errorf("write %s: %w", tmpPath, copyErr)
		}
		return fmt.Errorf("close %s: %w", tmpPath, closeErr)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("promote %s to %s: %w", tmpPath, localPath, err)
	}
	return nil
}

// isSafeRel reports whether rel matches the allowed character set and
// does not escape the cache root once cleaned.
func isSafeRel(rel string) bool {
	if !safePathPattern.MatchString(rel) {
		return false
	}
	clean := path.Clean("/" + rel)
	return clean == "/"+rel
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
