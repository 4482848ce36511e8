package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finrules/internal/api"
	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the mining scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(cmd.Context(), a, !noScheduler)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.address)")
	cmd.Flags().Bool("no-scheduler", false, "do not run the periodic mining job")
	_ = viper.BindPFlag("server.address", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServer(ctx context.Context, a *app, withScheduler bool) error {
	logger := slog.Default()

	if n, err := a.engine.RetrainModel(ctx); err != nil {
		logger.Warn("Initial model training failed", "error", err)
	} else {
		logger.Info("Trained categorization model", "examples", n)
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr: a.cfg.Server.Address,
		Handler: api.NewRouter(api.RouterConfig{
			Engine:         a.engine,
			Logger:         logger,
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if withScheduler {
		s, err := scheduler.New(scheduler.Config{
			Schedule: a.cfg.Scheduler.MiningSchedule,
			TimeZone: a.cfg.Scheduler.Timezone,
			Mining:   a.cfg.Mining,
		}, a.engine, logger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		sched = s
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Println(cli.FormatInfo("Shutting down..."))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
