package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
	"github.com/nextlevelbuilder/scheduler/internal/executor"
	"github.com/nextlevelbuilder/scheduler/internal/httpapi"
	"github.com/nextlevelbuilder/scheduler/internal/observability"
	"github.com/nextlevelbuilder/scheduler/internal/scheduler"
	"github.com/nextlevelbuilder/scheduler/internal/session"
	"github.com/nextlevelbuilder/scheduler/internal/storage"
)

func serveCmd() *cobra.Command {
	var otlpEndpoint string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler poll loop and session cleanup sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := observability.Setup(ctx, otlpEndpoint, "goscheduler")
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			store, err := storage.New(storage.Config{
				DataDir:     cfg.DataDir,
				LockTimeout: cfg.LockTimeout,
				MaxHistory:  cfg.MaxHistory,
			})
			if err != nil {
				return err
			}

			exec := executor.New(agent.NewProcessAdapter(cfg.AgentBinary))
			sched := scheduler.New(scheduler.Config{Store: store, Executor: exec, PollInterval: cfg.PollInterval})
			// Each streaming session gets its own adapter instance (and
			// therefore its own subprocess) so concurrent sessions never
			// contend for the single in-flight slot a ProcessAdapter enforces.
			sessions := session.NewManager(func() agent.Adapter {
				return agent.NewProcessAdapter(cfg.AgentBinary)
			}, cfg.MaxConcurrentSessions)

			sched.Start(ctx)
			go sessions.RunCleanupLoop(ctx, 10*time.Minute)

			srv := httpapi.NewServer(httpapi.Config{
				Store:             store,
				Scheduler:         sched,
				Sessions:          sessions,
				Token:             cfg.HTTPToken,
				AllowAnyWorkspace: cfg.AllowAnyWorkspace,
				DefaultWorkspace:  cfg.WorkingDir,
			})

			httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Routes()}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
				sched.Stop()
			}()

			slog.Info("goscheduler: listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP/gRPC endpoint for trace export (empty disables tracing)")
	return cmd
}
