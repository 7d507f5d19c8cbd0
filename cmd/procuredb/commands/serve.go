package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/api"
	"github.com/marshallshelly/procuredb/internal/config"
	"github.com/marshallshelly/procuredb/internal/mail"
	"github.com/marshallshelly/procuredb/internal/metrics"
	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/service"
	"github.com/marshallshelly/procuredb/internal/storage"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	reg, err := models.NewRegistry()
	if err != nil {
		return err
	}
	set, err := models.Policies()
	if err != nil {
		return err
	}
	st := store.New(pool, reg, set, store.WithLogger(log), store.WithMetrics(m))

	var uploader storage.Uploader
	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("configure logo storage: %w", err)
		}
		uploader = s3
	} else {
		log.Warn("storage.bucket is empty; logo uploads are disabled")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Dependencies{
		Services: api.Services{
			Accounts:    service.NewAccounts(st, mail.New(cfg.Mail, log), cfg.Auth, cfg.App.BaseURL, log),
			Admin:       service.NewAdmin(st, log),
			Orders:      service.NewOrders(st, log),
			Suggestions: service.NewSuggestions(st),
			Branding:    service.NewBranding(st, uploader, log),
			Search:      service.NewSearch(st),
			Feedback:    service.NewFeedback(st),
			Trends:      service.NewTrends(st, log),
		},
		Tokens:   api.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.App.Name),
		Resolver: policy.NewResolver(store.NewAdminLookup(pool, set.Config())),
		Metrics:  m,
		DB:       pool,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
