package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dispatch"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
)

// Sink delivers dispatch notifications over Telegram. It maps internal user
// ids to chat ids and renders buttons as a one-per-row inline keyboard.
type Sink struct {
	api   *tgbotapi.BotAPI
	users *users.Repo
	log   *slog.Logger
}

func NewSink(api *tgbotapi.BotAPI, usersRepo *users.Repo, log *slog.Logger) *Sink {
	return &Sink{api: api, users: usersRepo, log: log}
}

func (s *Sink) Send(ctx context.Context, msg dispatch.Message) error {
	u, err := s.users.GetByID(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", msg.UserID, err)
	}
	if u == nil {
		return fmt.Errorf("user %d not found", msg.UserID)
	}

	m := tgbotapi.NewMessage(u.TelegramID, msg.Text)
	if len(msg.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, btn := range msg.Buttons {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data)))
		}
		m.ReplyMarkup = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	}

	if _, err := s.api.Send(m); err != nil {
		return fmt.Errorf("telegram send to %d: %w", u.TelegramID, err)
	}
	return nil
}
