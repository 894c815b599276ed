package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/podcache/pkg/coordinator"
	"github.com/cuemby/podcache/pkg/digest"
	"github.com/cuemby/podcache/pkg/health"
	"github.com/cuemby/podcache/pkg/log"
	"github.com/cuemby/podcache/pkg/metrics"
	"github.com/cuemby/podcache/pkg/replica"
	"github.com/cuemby/podcache/pkg/types"
	"github.com/google/uuid"
)

// ErrNoSource means neither a pod nor the origin could serve the path.
var ErrNoSource = errors.New("no source could serve the requested path")

// ErrDigestMismatch means the downloaded file's digest does not match
// the one already recorded in the coordination store.
var ErrDigestMismatch = errors.New("digest mismatch")

const healthProbeTimeout = 2 * time.Second

// Options configures one Scheduler.
type Options struct {
	Origin         string        // origin base URL, e.g. http://127.0.0.1:8000
	DownloadTimeout time.Duration // per-attempt GET timeout; 0 uses a 60s default
}

// Scheduler downloads one logical path at a time, trying fresh pods
// before falling back to origin.
type Scheduler struct {
	store    *coordinator.Store
	opts     Options
	client   *http.Client
	hostname string
}

func New(store *coordinator.Store, hostname string, opts Options) *Scheduler {
	timeout := opts.DownloadTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	opts.DownloadTimeout = timeout
	return &Scheduler{
		store:    store,
		opts:     opts,
		client:   &http.Client{},
		hostname: hostname,
	}
}

// Download fetches logicalPath into destDir/basename(logicalPath),
// trying pods first and falling back to origin, then verifies the
// result's digest. Returns ErrNoSource or ErrDigestMismatch as sentinel
// errors so callers (the CLI) can map them to distinct exit codes;
// any other error means a coordination-store or local filesystem
// failure and should abort with a generic non-zero exit.
func (s *Scheduler) Download(ctx context.Context, logicalPath, destDir string) (*types.DownloadResult, error) {
	start := time.Now()
	timer := metrics.NewTimer()
	l := log.WithComponent("worker").With().Str("path", logicalPath).Logger()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(logicalPath))

	servedBy, err := s.downloadViaPods(ctx, logicalPath, destPath)
	if err != nil {
		return nil, err
	}
	if servedBy == "" {
		l.Info().Msg("no pod served the path, falling back to origin")
		if err := s.downloadFromOrigin(ctx, logicalPath, destPath); err != nil {
			metrics.WorkerDownloadsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("%w: %v", ErrNoSource, err)
		}
		servedBy = "origin"
	}

	got, err := digest.ComputeFile(destPath)
	if err != nil {
		return nil, fmt.Errorf("compute digest of %s: %w", destPath, err)
	}

	known, exists, err := s.store.GetDigest(ctx, logicalPath)
	if err != nil {
		return nil, fmt.Errorf("look up recorded digest: %w", err)
	}
	if exists {
		if known != got {
			l.Error().Str("expected", known).Str("got", got).Msg("digest mismatch")
			metrics.WorkerDownloadsTotal.WithLabelValues("digest_mismatch").Inc()
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, known, got)
		}
	} else {
		if _, err := s.store.SetDigestIfAbsent(ctx, logicalPath, got); err != nil {
			return nil, fmt.Errorf("record digest: %w", err)
		}
	}

	outcome := "pod"
	if servedBy == "origin" {
		outcome = "origin_fallback"
	}
	metrics.WorkerDownloadsTotal.WithLabelValues(outcome).Inc()
	timer.ObserveDuration(metrics.WorkerDownloadDuration)

	l.Info().Str("served_by", servedBy).Str("digest", got).Dur("elapsed", time.Since(start)).Msg("download complete")
	return &types.DownloadResult{
		Path:       logicalPath,
		Dest:       destPath,
		ServedBy:   servedBy,
		Digest:     got,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// downloadViaPods discovers fresh pods, orders them, elects the preheat
// set, and trials each candidate in order. Returns the serving pod id,
// or "" if none served (caller should fall back to origin).
func (s *Scheduler) downloadViaPods(ctx context.Context, logicalPath, destPath string) (string, error) {
	l := log.WithComponent("worker")

	fresh, err := s.store.FreshPods(ctx, time.Now())
	if err != nil {
		return "", fmt.Errorf("list fresh pods: %w", err)
	}
	if len(fresh) == 0 {
		l.Info().Msg("no fresh pods available")
		return "", nil
	}

	ids := make([]string, len(fresh))
	for i, p := range fresh {
		ids[i] = p.ID
	}
	ordered := replica.Order(logicalPath, ids)

	if err := s.store.EnsurePreheatSet(ctx, logicalPath, ordered); err != nil {
		return "", fmt.Errorf("elect preheat set: %w", err)
	}

	for _, podID := range ordered {
		outcome, err := s.attemptPod(ctx, podID, logicalPath, destPath)
		if err != nil {
			return "", err
		}
		if outcome == types.AttemptOK {
			return podID, nil
		}
	}
	return "", nil
}

// attemptPod runs one trial against podID: descriptor fetch, health
// probe, reservation, GET, and cleanup. A non-nil error means a
// coordination-store operation failed and the whole download should
// abort; AttemptRetryOther means this pod is unusable and the caller
// should move to the next candidate.
func (s *Scheduler) attemptPod(ctx context.Context, podID, logicalPath, destPath string) (types.AttemptOutcome, error) {
	l := log.WithPodID(podID)

	desc, err := s.store.GetDescriptor(ctx, podID)
	if err != nil {
		return types.AttemptRetryOther, fmt.Errorf("get descriptor for %s: %w", podID, err)
	}
	if desc == nil {
		l.Warn().Msg("ghost pod in active set, pruning")
		if err := s.store.RemoveGhost(ctx, podID); err != nil {
			return types.AttemptRetryOther, fmt.Errorf("prune ghost pod %s: %w", podID, err)
		}
		return types.AttemptRetryOther, nil
	}

	healthURL := fmt.Sprintf("http://%s:%d/healthz", desc.Host, desc.Port)
	if !s.probeHealth(ctx, healthURL) {
		l.Warn().Msg("pod unhealthy, pruning")
		metrics.WorkerPodAttemptsTotal.WithLabelValues("unhealthy").Inc()
		if err := s.store.RemoveGhost(ctx, podID); err != nil {
			return types.AttemptRetryOther, fmt.Errorf("prune unhealthy pod %s: %w", podID, err)
		}
		return types.AttemptRetryOther, nil
	}

	token := s.hostname + ":" + uuid.New().String()
	ok, err := s.store.Reserve(ctx, podID, token, desc.MaxConns)
	if err != nil {
		return types.AttemptRetryOther, fmt.Errorf("reserve slot on %s: %w", podID, err)
	}
	if !ok {
		l.Debug().Msg("pod at capacity")
		metrics.WorkerPodAttemptsTotal.WithLabelValues("at_capacity").Inc()
		return types.AttemptRetryOther, nil
	}
	defer func() {
		if _, err := s.store.Release(ctx, podID, token); err != nil {
			l.Warn().Err(err).Msg("failed to release reservation")
		}
	}()

	url := fmt.Sprintf("http://%s:%d/files/%s", desc.Host, desc.Port, logicalPath)
	l.Info().Str("url", url).Msg("downloading via pod")
	status, err := s.fetch(ctx, url, destPath)
	if err != nil {
		l.Warn().Err(err).Msg("download attempt failed")
		metrics.WorkerPodAttemptsTotal.WithLabelValues("error").Inc()
		return types.AttemptRetryOther, nil
	}
	switch status {
	case http.StatusOK:
		metrics.WorkerPodAttemptsTotal.WithLabelValues("served").Inc()
		return types.AttemptOK, nil
	case http.StatusTooEarly:
		l.Debug().Msg("pod not authorized to preheat, trying next")
		metrics.WorkerPodAttemptsTotal.WithLabelValues("preheat_required").Inc()
		return types.AttemptRetryOther, nil
	default:
		l.Warn().Int("status", status).Msg("unexpected status from pod")
		metrics.WorkerPodAttemptsTotal.WithLabelValues("error").Inc()
		return types.AttemptRetryOther, nil
	}
}

func (s *Scheduler) probeHealth(ctx context.Context, url string) bool {
	checker := health.NewHTTPChecker(url).
		WithMethod(http.MethodHead).
		WithStatusRange(http.StatusOK, http.StatusOK).
		WithTimeout(healthProbeTimeout)
	return checker.Check(ctx).Healthy
}

// fetch streams url into destPath, removing any partial file on
// failure. Returns the HTTP status observed (0 if the request itself
// never completed).
func (s *Scheduler) fetch(ctx context.Context, url, destPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	out, err := os.Create(destPath)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("create %s: %w", destPath, err)
	}
	buf := make([]byte, 1<<20)
	_, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(destPath)
		if copyErr != nil {
			return resp.StatusCode, fmt.Errorf("write %s: %w", destPath, copyErr)
		}
		return resp.StatusCode, fmt.Errorf("close %s: %w", destPath, closeErr)
	}
	return resp.StatusCode, nil
}

// downloadFromOrigin performs a direct GET of the origin's copy of
// logicalPath.
func (s *Scheduler) downloadFromOrigin(ctx context.Context, logicalPath, destPath string) error {
	url := fmt.Sprintf("%s/%s", trimTrailingSlash(s.opts.Origin), logicalPath)
	status, err := s.fetch(ctx, url, destPath)
	if err != nil {
		return fmt.Errorf("fetch from origin: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("origin returned status %d", status)
	}
	return nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
