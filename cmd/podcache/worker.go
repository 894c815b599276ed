package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/podcache/pkg/coordinator"
	"github.com/cuemby/podcache/pkg/log"
	"github.com/cuemby/podcache/pkg/worker"
	"github.com/spf13/cobra"
)

const (
	exitSuccess       = 0
	exitGenericError  = 1
	exitNoSource      = 2
	exitDigestMismatch = 3
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Download one logical path via the pod fleet, falling back to origin",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().String("path", "", "logical path to download, e.g. big.pkg (required)")
	workerCmd.Flags().String("dest", "./downloads", "destination directory")
	workerCmd.Flags().String("origin", "", "origin base URL to fall back to (required)")
	workerCmd.Flags().String("redis-url", coordinator.DefaultRedisAddr, "coordination store URL")
	workerCmd.Flags().Duration("timeout", 60*time.Second, "per-attempt download timeout")
	_ = workerCmd.MarkFlagRequired("path")
	_ = workerCmd.MarkFlagRequired("origin")
}

func runWorker(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	dest, _ := cmd.Flags().GetString("dest")
	origin, _ := cmd.Flags().GetString("origin")
	redisURL, _ := cmd.Flags().GetString("redis-url")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	store, err := coordinator.New(redisURL)
	if err != nil {
		return fmt.Errorf("connect to coordination store: %w", err)
	}
	defer store.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	sched := worker.New(store, hostname, worker.Options{
		Origin:          origin,
		DownloadTimeout: timeout,
	})

	result, err := sched.Download(context.Background(), path, dest)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDigestMismatch):
			log.WithComponent("worker").Error().Err(err).Msg("digest mismatch")
			os.Exit(exitDigestMismatch)
		case errors.Is(err, worker.ErrNoSource):
			log.WithComponent("worker").Error().Err(err).Msg("no source could serve the path")
			os.Exit(exitNoSource)
		default:
			return err
		}
	}

	log.WithComponent("worker").Info().Str("served_by", result.ServedBy).Str("dest", result.Dest).Msg("download succeeded")
	return nil
}
