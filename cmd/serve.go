package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/api"
	"github.com/sells-group/tariff-cli/internal/policy"
	"github.com/sells-group/tariff-cli/internal/sourcing"
)

var servePort int

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API over one decision session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initSession(ctx, "serve")
		if err != nil {
			return err
		}

		server := api.New(env.Session, env.Store, env.Norm, api.Options{
			BaseRoute:          cfg.Pipeline.BaseRoute,
			PriceUSD:           cfg.Pipeline.PriceUSD,
			Destination:        cfg.Pipeline.Destination,
			ApprovalConfidence: cfg.Pipeline.ApprovalConfidence,
			AuditTail:          cfg.Pipeline.AuditTail,
			AllowedOrigins:     cfg.Server.AllowedOrigins,
		})

		if cfg.Policy.Reload {
			reloader, err := policy.NewReloader(cfg.Policy.Path, policy.DefaultReloadDebounce, func(pc *policy.Config) {
				gate := policy.NewGate(pc)
				server.SetPolicy(sourcing.New(env.Engine, gate.Weights(), cfg.Pipeline.MaxConcurrentRoutes), gate)
			})
			if err != nil {
				return err
			}
			go func() { _ = reloader.Run(ctx) }()
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
