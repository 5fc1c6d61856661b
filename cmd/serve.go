package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/server"
	"github.com/cwbudde/portfolioopt/internal/store"
)

type serveOptions struct {
	addr            string
	noStore         bool
	maxJobs         int
	shutdownTimeout time.Duration
	store           storeOptions
}

func newServeCmd() *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP job server",
		Long: `Serves the job API under /api/v1. Jobs run in the background, stream their
best score over SSE and are persisted to the result store. Prometheus metrics
are served under /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", ":8080", "Listen address")
	f.BoolVar(&o.noStore, "no-store", false, "Do not persist records and traces")
	f.IntVar(&o.maxJobs, "max-jobs", 0, "Maximum number of jobs solving at once (0 = unlimited)")
	f.DurationVar(&o.shutdownTimeout, "shutdown-timeout", 30*time.Second, "Time to wait for running jobs on shutdown")
	o.store.addFlags(cmd)

	return cmd
}

func (o *serveOptions) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if !o.noStore {
		var err error
		if st, err = o.store.open(); err != nil {
			return err
		}
		defer store.CloseIfSupported(st)
	}

	srv := server.NewServer(o.addr, st, server.WithMaxJobs(o.maxJobs))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Signal received, shutting down", "timeout", o.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
