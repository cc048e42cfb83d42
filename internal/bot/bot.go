package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dialog"
	"github.com/ecotransporte/dispatch-bot/internal/dispatch"
	"github.com/ecotransporte/dispatch-bot/internal/domain/admins"
	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
	"github.com/ecotransporte/dispatch-bot/internal/reports"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	log      *slog.Logger
	users    *users.Repo
	states   *dialog.Repo
	geo      *geo.Repo
	admins   *admins.Repo
	perms    *admins.Resolver
	requests *requests.Repo
	notifier *dispatch.Notifier
	reports  *reports.Exporter
}

func New(api *tgbotapi.BotAPI, log *slog.Logger,
	usersRepo *users.Repo, statesRepo *dialog.Repo,
	geoRepo *geo.Repo, adminsRepo *admins.Repo, perms *admins.Resolver,
	requestsRepo *requests.Repo, notifier *dispatch.Notifier,
	exporter *reports.Exporter) *Bot {

	return &Bot{
		api: api, log: log, users: usersRepo, states: statesRepo,
		geo: geoRepo, admins: adminsRepo, perms: perms,
		requests: requestsRepo, notifier: notifier, reports: exporter,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				b.onMessage(ctx, upd)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd)
			}
		}
	}
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}
