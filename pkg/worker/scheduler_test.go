package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/podcache/pkg/coordinator"
	"github.com/cuemby/podcache/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *coordinator.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return coordinator.NewFromClient(rdb)
}

func registerTestPod(t *testing.T, store *coordinator.Store, srv *httptest.Server, maxConns int) string {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	id := host + ":" + portStr
	desc := &types.PodDescriptor{
		ID:       id,
		Host:     host,
		Port:     port,
		CacheDir: t.TempDir(),
		Origin:   "http://example.invalid",
		MaxConns: maxConns,
	}
	require.NoError(t, store.RegisterPod(context.Background(), desc, time.Now()))
	return id
}

func TestDownloadServedByPodSeedsDigest(t *testing.T) {
	store := newTestStore(t)

	pod := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/files/big.pkg":
			_, _ = w.Write([]byte("hello\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer pod.Close()
	podID := registerTestPod(t, store, pod, 2)

	sched := New(store, "test-host", Options{Origin: "http://example.invalid", DownloadTimeout: 5 * time.Second})
	dest := t.TempDir()

	result, err := sched.Download(context.Background(), "big.pkg", dest)
	require.NoError(t, err)
	require.Equal(t, podID, result.ServedBy)
	require.Equal(t, "b1946ac92492d2347c6235b4d2611184", result.Digest)

	got, exists, err := store.GetDigest(context.Background(), "big.pkg")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "b1946ac92492d2347c6235b4d2611184", got)

	data, err := os.ReadFile(filepath.Join(dest, "big.pkg"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}

func TestDownloadFallsBackToOriginOn425(t *testing.T) {
	store := newTestStore(t)

	pod := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/files/big.pkg":
			w.Header().Set("X-Preheat-Needed", "1")
			w.WriteHeader(http.StatusTooEarly)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer pod.Close()
	registerTestPod(t, store, pod, 2)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big.pkg" {
			_, _ = w.Write([]byte("hello\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer origin.Close()

	sched := New(store, "test-host", Options{Origin: origin.URL, DownloadTimeout: 5 * time.Second})
	dest := t.TempDir()

	result, err := sched.Download(context.Background(), "big.pkg", dest)
	require.NoError(t, err)
	require.Equal(t, "origin", result.ServedBy)
}

func TestDownloadDetectsDigestMismatch(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SetDigestIfAbsent(context.Background(), "big.pkg", "00000000000000000000000000000000")
	require.NoError(t, err)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello\n"))
	}))
	defer origin.Close()

	sched := New(store, "test-host", Options{Origin: origin.URL, DownloadTimeout: 5 * time.Second})
	dest := t.TempDir()

	_, err = sched.Download(context.Background(), "big.pkg", dest)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDigestMismatch))

	// the file is preserved for forensic inspection
	_, statErr := os.Stat(filepath.Join(dest, "big.pkg"))
	require.NoError(t, statErr)
}

func TestDownloadNoSourceReturnsErrNoSource(t *testing.T) {
	store := newTestStore(t)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer origin.Close()

	sched := New(store, "test-host", Options{Origin: origin.URL, DownloadTimeout: 5 * time.Second})
	dest := t.TempDir()

	_, err := sched.Download(context.Background(), "missing.pkg", dest)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoSource))
}
