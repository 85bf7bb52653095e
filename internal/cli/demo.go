package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/volley/internal/demo"
)

func newDemoCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Serve the demo deal API",
		Long: `Serve a small in-memory deal API to point load tests at.

  POST /deals            201 when saved, 409 when the dealId exists, 400 when invalid
  GET  /deals/{dealId}   the stored deal
  GET  /health           200

Example:
  volley demo --addr :8080 &
  volley run --config examples/deal-api.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demo API listening on %s\n", ln.Addr())
			return serveDemo(cmd.Context(), ln, a.logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	return cmd
}

// serveDemo serves the demo API on ln until ctx is done.
func serveDemo(ctx context.Context, ln net.Listener, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Handler:           demo.NewServer(demo.NewStore(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down demo API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
