package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trailhead/waivers/internal/bot"
	"github.com/trailhead/waivers/internal/config"
	"github.com/trailhead/waivers/internal/db"
	"github.com/trailhead/waivers/internal/events"
	"github.com/trailhead/waivers/internal/gate"
	"github.com/trailhead/waivers/internal/handlers"
	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/services"
	"github.com/trailhead/waivers/internal/sessions"
	"github.com/trailhead/waivers/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	conn, err := db.Open(cfg.DbDriver, cfg.DbDsn, log)
	if err != nil {
		log.WithError(err).Fatal("db init")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tg := bot.NewClient(cfg.TelegramToken)
	bus := events.NewBus(log)
	bot.NewNotifier(conn, tg, cfg.PublicBaseURL).Subscribe(bus)
	if cfg.RemindersEnable {
		bot.NewReminders(conn, tg, cfg.RemindOffsets, log).Start(ctx)
	}

	files := services.SignatureFiles{Root: cfg.UploadDir}
	reg := sessions.NewRegistry(sessions.Options{
		TTL:              cfg.SessionTTL,
		AutosaveInterval: cfg.AutosaveInterval,
	}, log)
	admin := handlers.NewAdminAuth(cfg.AdminPasswordHash)
	defer admin.Close()

	deps := web.Deps{
		DB: conn,
		Env: &handlers.Env{
			Store:           services.NewWaiverStore(conn, files, bus, log),
			Sessions:        reg,
			Files:           files,
			Log:             log,
			BaseURL:         cfg.PublicBaseURL,
			SavingIndicator: cfg.SavingIndicator,
		},
		Gate:          gate.New(cfg.LaunchAt, cfg.BypassTokens),
		Admin:         admin,
		WebhookSecret: cfg.WebhookSecret,
	}
	if tg.Enabled() {
		deps.Dispatcher = bot.NewDispatcher(tg, conn, log)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.Router(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("waivers listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	reg.CloseAll()
}
