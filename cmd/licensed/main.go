package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"palcro/internal/authz"
	"palcro/internal/config"
	"palcro/internal/domain"
	"palcro/internal/notify"
	"palcro/internal/observability/logging"
	"palcro/internal/observability/metrics"
	impl "palcro/internal/service/impl"
	"palcro/internal/store"
	httpx "palcro/internal/transport/http"
	"palcro/pkg/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "licensed",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg := config.Load()

	metrics.MustRegister("licensed")

	gdb, err := db.Open(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := gdb.AutoMigrate(&domain.LicenseKey{}); err != nil {
		logger.Error("automigrate", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout)
	}

	svc := impl.NewLicenseServiceImpl(st, notifier, cfg.DefaultValidity, cfg.LoaderScript)

	admin := authz.NewAdminValidator(cfg.AdminSigningKey, cfg.Issuer)

	handler := httpx.NewRouter(svc, admin.Middleware, httpx.Options{
		CORSOrigins:        cfg.CORSOrigins,
		ValidateRatePerMin: cfg.ValidateRatePerMin,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("license service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
