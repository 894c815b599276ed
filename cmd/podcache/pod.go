package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/podcache/pkg/coordinator"
	"github.com/cuemby/podcache/pkg/log"
	"github.com/cuemby/podcache/pkg/metrics"
	"github.com/cuemby/podcache/pkg/podserver"
	"github.com/cuemby/podcache/pkg/registry"
	"github.com/cuemby/podcache/pkg/reserve"
	"github.com/cuemby/podcache/pkg/types"
	"github.com/spf13/cobra"
)

var podCmd = &cobra.Command{
	Use:   "pod",
	Short: "Run a cache pod: serve, fetch-and-promote, and heartbeat",
	RunE:  runPod,
}

func init() {
	podCmd.Flags().Int("port", 8080, "port to listen on")
	podCmd.Flags().String("cache-dir", "", "local cache directory (required)")
	podCmd.Flags().String("origin", "", "origin base URL, e.g. http://127.0.0.1:8000 (required)")
	podCmd.Flags().String("redis-url", coordinator.DefaultRedisAddr, "coordination store URL")
	podCmd.Flags().Int("max-conns", 2, "max concurrent reservations this pod admits")
	podCmd.Flags().String("metrics-addr", "", "separate address for /metrics; empty serves it on the main port")
	podCmd.Flags().Float64("origin-rate", 0, "origin fetch rate limit in requests/sec (0 disables)")
	podCmd.Flags().Float64("origin-burst", 4, "origin fetch rate limit burst size")
	_ = podCmd.MarkFlagRequired("cache-dir")
	_ = podCmd.MarkFlagRequired("origin")
}

func runPod(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	origin, _ := cmd.Flags().GetString("origin")
	redisURL, _ := cmd.Flags().GetString("redis-url")
	maxConns, _ := cmd.Flags().GetInt("max-conns")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	originRate, _ := cmd.Flags().GetFloat64("origin-rate")
	originBurst, _ := cmd.Flags().GetFloat64("origin-burst")

	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(absCacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	store, err := coordinator.New(redisURL)
	if err != nil {
		return fmt.Errorf("connect to coordination store: %w", err)
	}
	defer store.Close()

	host := registry.DetectOutboundIP()
	podID := fmt.Sprintf("%s:%d", host, port)
	desc := &types.PodDescriptor{
		ID:       podID,
		Host:     host,
		Port:     port,
		CacheDir: absCacheDir,
		Origin:   origin,
		MaxConns: maxConns,
	}

	hb := registry.New(store, desc)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hb.Start(ctx); err != nil {
		return fmt.Errorf("register pod: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hb.Stop(shutdownCtx); err != nil {
			log.WithComponent("pod").Warn().Err(err).Msg("unregister failed")
		}
	}()

	var limiter *reserve.OriginRateLimiter
	if originRate > 0 {
		limiter = reserve.NewOriginRateLimiter(store.Client(), originRate, originBurst)
	}

	srv := podserver.New(absCacheDir, origin, podID, store, limiter)

	l := log.WithComponent("pod")
	l.Info().Str("pod_id", podID).Str("cache_dir", absCacheDir).Str("origin", origin).Int("max_conns", maxConns).Msg("pod starting")

	addr := fmt.Sprintf(":%d", port)
	if metricsAddr == "" || metricsAddr == addr {
		return srv.Run(ctx, addr)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(ctx, addr) }()
	go func() { errCh <- runMetricsServer(ctx, metricsAddr) }()
	return <-errCh
}

func runMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
