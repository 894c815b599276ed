package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cuemby/podcache/pkg/log"
	"github.com/cuemby/podcache/pkg/origin"
	"github.com/spf13/cobra"
)

var originCmd = &cobra.Command{
	Use:   "origin",
	Short: "Run a static file origin server",
	RunE:  runOrigin,
}

func init() {
	originCmd.Flags().Int("port", 8000, "port to listen on")
	originCmd.Flags().String("root", "./origin_data", "directory to serve")
}

func runOrigin(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	root, _ := cmd.Flags().GetString("root")

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return fmt.Errorf("create root: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := origin.New(absRoot)
	log.WithComponent("origin").Info().Str("root", absRoot).Int("port", port).Msg("origin server starting")

	return srv.Run(ctx, fmt.Sprintf(":%d", port))
}
