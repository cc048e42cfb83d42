package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dialog"
)

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "registro":
		b.cmdStart(ctx, msg)
	case "help":
		b.send(tgbotapi.NewMessage(msg.Chat.ID,
			"Comandos:\n"+
				"/start — registro / menú principal\n"+
				"/nueva_solicitud — pedir un transporte\n"+
				"/mis_solicitudes — ver tus solicitudes\n"+
				"/zonas — configurar tus zonas de trabajo (transportistas)\n"+
				"/help — esta ayuda"))
	case "nueva_solicitud":
		b.cmdNewRequest(ctx, msg)
	case "mis_solicitudes":
		b.cmdMyRequests(ctx, msg)
	case "zonas":
		b.cmdWorkZones(ctx, msg)
	case "admin_panel", "admin_crear_pais", "admin_crear_provincia", "admin_crear_zona",
		"admin_desactivar", "admin_designar", "admin_revocar", "admin_banear", "admin_export":
		b.handleAdminCommand(ctx, msg)
	default:
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "No conozco ese comando. Usa /help"))
	}
}

// handleStateMessage routes free-text (and contact) messages by the chat's
// dialog state.
func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	st, err := b.states.Get(ctx, msg.Chat.ID)
	if err != nil {
		b.log.Error("dialog state read failed", "chat", msg.Chat.ID, "err", err)
		return
	}

	switch st.State {
	case dialog.StateRegPhone:
		b.regPhone(ctx, msg, st)
	case dialog.StateRegName:
		b.regName(ctx, msg, st)
	case dialog.StateReqDescription, dialog.StateReqPickup, dialog.StateReqDropoff, dialog.StateReqBudget:
		b.reqTextStep(ctx, msg, st)
	case dialog.StateIdle:
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Usa /help para ver los comandos disponibles."))
	default:
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Continúa con los botones del paso anterior o pulsa ✖️ Cancelar."))
	}
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	cb := upd.CallbackQuery
	data := cb.Data

	switch {
	case data == "nav:cancel":
		_ = b.states.Reset(ctx, cb.Message.Chat.ID)
		b.answerCallback(cb, "Cancelado", false)
		b.clearMarkup(cb)

	// Registro
	case strings.HasPrefix(data, "reg:lang:"):
		b.regLanguage(ctx, cb)
	case strings.HasPrefix(data, "reg:role:"):
		b.regRole(ctx, cb)
	case strings.HasPrefix(data, "reg:country:"):
		b.regCountry(ctx, cb)
	case strings.HasPrefix(data, "reg:province:"):
		b.regProvince(ctx, cb)

	// Zonas de trabajo
	case strings.HasPrefix(data, "zones:country:"):
		b.zonesCountry(ctx, cb)
	case strings.HasPrefix(data, "zones:prov:"):
		b.zonesProvince(ctx, cb)
	case strings.HasPrefix(data, "zones:toggle:"):
		b.zonesToggle(ctx, cb)
	case data == "zones:save":
		b.zonesSave(ctx, cb)

	// Nueva solicitud
	case strings.HasPrefix(data, "req:new:vehicle:"):
		b.reqVehicle(ctx, cb)
	case strings.HasPrefix(data, "req:new:cargo:"):
		b.reqCargo(ctx, cb)
	case strings.HasPrefix(data, "req:new:country:"):
		b.reqCountry(ctx, cb)
	case strings.HasPrefix(data, "req:new:prov:"):
		b.reqProvince(ctx, cb)
	case strings.HasPrefix(data, "req:new:zone:"):
		b.reqZone(ctx, cb)
	case data == "req:new:send":
		b.reqPublish(ctx, cb)

	// Ciclo de vida
	case strings.HasPrefix(data, "req:accept:"):
		b.reqAccept(ctx, cb)
	case strings.HasPrefix(data, "req:confirm:"):
		b.reqConfirm(ctx, cb)
	case strings.HasPrefix(data, "req:reject:"):
		b.reqReject(ctx, cb)
	case strings.HasPrefix(data, "req:cancel:"):
		b.reqCancel(ctx, cb)

	default:
		b.answerCallback(cb, "", false)
	}
}

// clearMarkup removes the inline keyboard from the message a callback came
// from, so stale buttons cannot be pressed twice.
func (b *Bot) clearMarkup(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	rm := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	b.send(tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, rm))
}
