package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/api"
	"github.com/Velsaravanan-kafka/Second-brain/internal/auth"
	"github.com/Velsaravanan-kafka/Second-brain/internal/observability"
	"github.com/Velsaravanan-kafka/Second-brain/internal/session"
	"github.com/Velsaravanan-kafka/Second-brain/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		defer store.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := observability.NewMetrics(reg)

		sessions := session.NewManager(store,
			session.WithLogger(logger),
			session.WithMetrics(metrics),
			session.WithDefiner(newDefiner()),
			session.WithDebounce(cfg.Session.Debounce),
			session.WithPersistTimeout(cfg.Session.PersistTimeout),
		)
		defer sessions.Close()

		if !devLogging {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := api.NewServer(api.Deps{
			Store:    store,
			Sessions: sessions,
			Auth:     authProvider(),
			Metrics:  metrics,
			Gatherer: reg,
			Logger:   logger,
		})
		httpServer := &http.Server{
			Addr:    cfg.Server.Address,
			Handler: srv.Handler(),
		}

		go func() {
			logger.Info("Starting HTTP server", zap.String("address", cfg.Server.Address))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("HTTP server error", zap.Error(err))
			}
		}()

		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down HTTP server", zap.Error(err))
		}
	},
}

func authProvider() auth.Provider {
	if cfg.Auth.Mode == config.AuthJWT {
		return auth.NewJWTProvider(cfg.Auth.Secret, cfg.Auth.Issuer)
	}
	logger.Warn("Serving every request as the local owner", zap.String("owner_id", cfg.Auth.LocalOwner))
	return auth.StaticProvider{OwnerID: cfg.Auth.LocalOwner}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
