package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"

	"github.com/ecotransporte/dispatch-bot/internal/bot"
	"github.com/ecotransporte/dispatch-bot/internal/config"
	"github.com/ecotransporte/dispatch-bot/internal/dialog"
	"github.com/ecotransporte/dispatch-bot/internal/dispatch"
	"github.com/ecotransporte/dispatch-bot/internal/domain/admins"
	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
	"github.com/ecotransporte/dispatch-bot/internal/infra/db"
	httpx "github.com/ecotransporte/dispatch-bot/internal/infra/http"
	"github.com/ecotransporte/dispatch-bot/internal/infra/logger"
	"github.com/ecotransporte/dispatch-bot/internal/reports"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

// bootstrapSupreme guarantees the configured owner exists and holds the
// supreme grant. Runs on every start; repairs a demoted or revoked grant.
func bootstrapSupreme(ctx context.Context, usersRepo *users.Repo, adminsRepo *admins.Repo, tgID int64, log *slog.Logger) error {
	u, err := usersRepo.Create(ctx, tgID, "")
	if err != nil {
		return err
	}
	if u.Status != users.StatusActive {
		if err := usersRepo.Activate(ctx, tgID); err != nil {
			return err
		}
	}
	if err := adminsRepo.EnsureSupreme(ctx, u.ID); err != nil {
		return err
	}
	log.Info("supreme admin ensured", "user", u.ID)
	return nil
}

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env, "dispatch-bot")

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	usersRepo := users.NewRepo(pool)
	geoRepo := geo.NewRepo(pool)
	adminsRepo := admins.NewRepo(pool)
	requestsRepo := requests.NewRepo(pool)
	statesRepo := dialog.NewRepo(pool)
	exporter := reports.NewExporter(pool)
	perms := admins.NewResolver(geoRepo)

	if cfg.Telegram.SupremeAdminID == 0 {
		log.Error("telegram.supreme_admin_id is not configured")
		return
	}
	if err := bootstrapSupreme(ctx, usersRepo, adminsRepo, cfg.Telegram.SupremeAdminID, log); err != nil {
		log.Error("supreme bootstrap failed", "err", err)
		return
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	log.Info("telegram bot authorized", "username", api.Self.UserName)

	sink := bot.NewSink(api, usersRepo, log)
	notifier := dispatch.NewNotifier(usersRepo, geoRepo, sink, log)
	sweeper := dispatch.NewSweeper(requestsRepo, notifier, statesRepo, log)

	b := bot.New(api, log, usersRepo, statesRepo, geoRepo, adminsRepo, perms,
		requestsRepo, notifier, exporter)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, pool.Ping)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	go sweeper.Run(ctx)
	log.Info("reservation sweeper started")

	go func() {
		if err := b.Run(ctx, 30); err != nil && ctx.Err() == nil {
			log.Error("bot stopped", "err", err)
			stop()
		}
	}()
	log.Info("bot started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
