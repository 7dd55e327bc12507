package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/api"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/query"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/snapshot"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
			}

			snap, err := a.loadSnapshot(a.cfg.QueryConfig())
			if err != nil {
				return err
			}
			engine, err := a.engine(query.WithSnapshot(snap))
			if err != nil {
				return err
			}

			server := api.NewServer(addr, engine,
				api.WithLogger(a.logger.With().Str("component", "api").Logger()),
				api.WithMetrics(a.metrics),
			)

			errChan := make(chan error, 1)
			go func() { errChan <- server.Start() }()

			select {
			case err := <-errChan:
				return err
			case <-cmd.Context().Done():
			}

			// The signal context is already done; shutdown gets its own deadline.
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return <-errChan
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.host:server.port)")
	return cmd
}

// loadSnapshot reads the snapshot once for long-running commands.
func (a *app) loadSnapshot(qc config.QueryConfig) (*snapshot.Snapshot, error) {
	snap, err := snapshot.Load(qc.DataDir, qc.Basename, qc.SearchEf)
	if err != nil {
		if errors.Is(err, snapshot.ErrSnapshot) {
			return nil, fmt.Errorf("%w (run `ragctl ingest` first): %w", query.ErrIndexLoad, err)
		}
		return nil, err
	}
	a.logger.Info().
		Str("dir", qc.DataDir).
		Int("entries", snap.Index.Len()).
		Msg("Snapshot loaded")
	return snap, nil
}
