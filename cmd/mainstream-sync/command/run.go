package command

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jwulff/mainstream-sync/internal/scheduler"
	"github.com/jwulff/mainstream-sync/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	a.logger.Info("starting mainstream-sync",
		zap.String("version", Version),
		zap.String("storage_driver", a.cfg.Storage.Driver),
		zap.Int("sinks", len(a.sinks)))

	g, ctx := errgroup.WithContext(ctx)

	serverEnabled := a.cfg.Server.Enable
	if serverEnabled {
		gin.SetMode(gin.ReleaseMode)
		router := server.NewRouter(a.scheduler, a.registry, nil, a.logger)
		srv := server.New(a.cfg.Server.Addr, router, a.logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	g.Go(func() error {
		err := a.scheduler.Start(ctx)
		if !errors.Is(err, scheduler.ErrDisabled) {
			return err
		}
		// Keep reporting unhealthy until shutdown.
		if serverEnabled {
			<-ctx.Done()
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info("mainstream-sync stopped")
	return err
}
