package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dialog"
	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
)

// cmdWorkZones starts the work-zone picker: país → provincia → toggles.
func (b *Bot) cmdWorkZones(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u := b.requireActive(ctx, msg.From.ID, chatID)
	if u == nil {
		return
	}
	if !u.Role.CanTransport() {
		b.send(tgbotapi.NewMessage(chatID, "Esta función es sólo para transportistas."))
		return
	}

	countries, err := b.geo.ListChildren(ctx, nil, geo.LevelCountry)
	if err != nil {
		b.log.Error("list countries failed", "err", err)
		return
	}
	if len(countries) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Todavía no hay territorios configurados."))
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateZonesCountry, dialog.Payload{})

	m := tgbotapi.NewMessage(chatID, "🌍 Elige el país:")
	m.ReplyMarkup = nodesKeyboard("zones:country", countries, false)
	b.send(m)
}

func (b *Bot) zonesCountry(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	countryID, ok := callbackID(cb.Data)
	if !ok {
		return
	}
	provinces, err := b.geo.ListChildren(ctx, &countryID, geo.LevelProvince)
	if err != nil {
		b.log.Error("list provinces failed", "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateZonesProvince, dialog.Payload{})

	m := tgbotapi.NewMessage(chatID, "🏙️ Elige la provincia:")
	m.ReplyMarkup = nodesKeyboard("zones:prov", provinces, false)
	b.send(m)
}

func (b *Bot) zonesProvince(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	provinceID, ok := callbackID(cb.Data)
	if !ok {
		return
	}
	u, err := b.users.GetByTelegramID(ctx, cb.From.ID)
	if err != nil || u == nil {
		return
	}

	// Seed the selection with the transporter's full current zone set, so
	// saving from this province does not wipe zones picked elsewhere.
	current, err := b.users.ListWorkZones(ctx, u.ID)
	if err != nil {
		b.log.Error("list work zones failed", "user", u.ID, "err", err)
		return
	}
	selected := map[int64]bool{}
	for _, id := range current {
		selected[id] = true
	}

	zones, err := b.geo.ListChildren(ctx, &provinceID, geo.LevelZone)
	if err != nil {
		b.log.Error("list zones failed", "err", err)
		return
	}

	p := dialog.Payload{"province_id": float64(provinceID)}
	storeZones(p, selected)
	_ = b.states.Set(ctx, chatID, dialog.StateZonesToggle, p)

	m := tgbotapi.NewMessage(chatID, "🗺️ Marca las zonas donde trabajas y pulsa «Guardar zonas»:")
	m.ReplyMarkup = zonesToggleKeyboard(zones, selected)
	b.send(m)
}

func (b *Bot) zonesToggle(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	zoneID, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}

	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		return
	}
	if st.State != dialog.StateZonesToggle && st.State != dialog.StateRegZone {
		b.answerCallback(cb, "Este paso ya terminó.", false)
		return
	}

	selected := selectedZones(st.Payload)
	if selected[zoneID] {
		delete(selected, zoneID)
	} else {
		selected[zoneID] = true
	}
	storeZones(st.Payload, selected)
	_ = b.states.Set(ctx, chatID, st.State, st.Payload)
	b.answerCallback(cb, "", false)

	provinceID, ok := dialog.GetInt64(st.Payload, "province_id")
	if !ok {
		return
	}
	zones, err := b.geo.ListChildren(ctx, &provinceID, geo.LevelZone)
	if err != nil {
		return
	}
	kb := zonesToggleKeyboard(zones, selected)
	b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, kb))
}

func (b *Bot) zonesSave(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		return
	}
	u, err := b.users.GetByTelegramID(ctx, cb.From.ID)
	if err != nil || u == nil {
		return
	}

	selected := selectedZones(st.Payload)
	ids := make([]int64, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	if err := b.users.SetWorkZones(ctx, u.ID, ids); err != nil {
		if errors.Is(err, users.ErrInvalidZone) {
			b.answerCallback(cb, "Alguna de las zonas ya no está disponible. Vuelve a abrir /zonas.", true)
			return
		}
		b.log.Error("set work zones failed", "user", u.ID, "err", err)
		b.answerCallback(cb, "Error al guardar. Inténtalo de nuevo.", true)
		return
	}
	b.answerCallback(cb, "Zonas guardadas", false)
	b.clearMarkup(cb)

	if st.State == dialog.StateRegZone {
		b.finishRegistration(ctx, cb.From.ID, chatID)
		return
	}
	_ = b.states.Reset(ctx, chatID)
	b.send(tgbotapi.NewMessage(chatID, "✅ Zonas de trabajo actualizadas. Recibirás las solicitudes de esas zonas."))
}
