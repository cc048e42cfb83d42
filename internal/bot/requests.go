package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dialog"
	"github.com/ecotransporte/dispatch-bot/internal/dispatch"
	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
	"github.com/ecotransporte/dispatch-bot/internal/infra/metrics"
)

// requireActive loads the acting user and rejects anyone not fully
// registered. Returns nil after messaging the chat.
func (b *Bot) requireActive(ctx context.Context, tgID, chatID int64) *users.User {
	u, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil {
		b.log.Error("user lookup failed", "tg", tgID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return nil
	}
	if u == nil || u.Status == users.StatusRegistering {
		b.send(tgbotapi.NewMessage(chatID, "Primero completa tu registro con /start"))
		return nil
	}
	if u.Status == users.StatusBanned {
		b.send(tgbotapi.NewMessage(chatID, "Tu cuenta está suspendida."))
		return nil
	}
	return u
}

/* Creación de solicitudes */

func (b *Bot) cmdNewRequest(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u := b.requireActive(ctx, msg.From.ID, chatID)
	if u == nil {
		return
	}
	if !u.Role.CanRequest() {
		b.send(tgbotapi.NewMessage(chatID, "Esta función es sólo para solicitantes."))
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateReqVehicle, dialog.Payload{})

	m := tgbotapi.NewMessage(chatID, "📦 Nueva solicitud\n\nPaso 1: ¿qué tipo de vehículo necesitas?")
	m.ReplyMarkup = vehicleKeyboard()
	b.send(m)
}

func (b *Bot) reqVehicle(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	idx, ok := callbackID(cb.Data)
	if !ok || idx < 0 || int(idx) >= len(vehicleTypes) {
		b.answerCallback(cb, "", false)
		return
	}
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	p := dialog.Payload{"vehicle": vehicleTypes[idx]}
	_ = b.states.Set(ctx, chatID, dialog.StateReqCargo, p)

	m := tgbotapi.NewMessage(chatID, "Paso 2: ¿qué tipo de carga es?")
	m.ReplyMarkup = cargoKeyboard()
	b.send(m)
}

func (b *Bot) reqCargo(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	idx, ok := callbackID(cb.Data)
	if !ok || idx < 0 || int(idx) >= len(cargoCategories) {
		b.answerCallback(cb, "", false)
		return
	}
	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		return
	}
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	st.Payload["cargo"] = cargoCategories[idx]
	_ = b.states.Set(ctx, chatID, dialog.StateReqDescription, st.Payload)
	b.send(tgbotapi.NewMessage(chatID,
		"Paso 3: describe brevemente lo que necesitas transportar.\n(Ej.: «2 cajas de ropa», «un mueble de 2 metros»)"))
}

// reqTextStep consumes the free-text steps of the request flow in order:
// descripción → origen → destino → presupuesto.
func (b *Bot) reqTextStep(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.send(tgbotapi.NewMessage(chatID, "Escribe una respuesta de texto, por favor."))
		return
	}

	switch st.State {
	case dialog.StateReqDescription:
		st.Payload["description"] = text
		_ = b.states.Set(ctx, chatID, dialog.StateReqPickup, st.Payload)
		b.send(tgbotapi.NewMessage(chatID, "Paso 4: dirección de origen (recogida):"))

	case dialog.StateReqPickup:
		st.Payload["pickup"] = text
		_ = b.states.Set(ctx, chatID, dialog.StateReqDropoff, st.Payload)
		b.send(tgbotapi.NewMessage(chatID, "Paso 5: dirección de destino (entrega):"))

	case dialog.StateReqDropoff:
		st.Payload["dropoff"] = text
		_ = b.states.Set(ctx, chatID, dialog.StateReqBudget, st.Payload)
		b.send(tgbotapi.NewMessage(chatID, "Paso 6: presupuesto estimado (texto libre):"))

	case dialog.StateReqBudget:
		st.Payload["budget"] = text
		countries, err := b.geo.ListChildren(ctx, nil, geo.LevelCountry)
		if err != nil {
			b.log.Error("list countries failed", "err", err)
			return
		}
		_ = b.states.Set(ctx, chatID, dialog.StateReqZone, st.Payload)
		m := tgbotapi.NewMessage(chatID, "Paso 7: ¿en qué zona se recoge la carga?\n\nElige el país:")
		m.ReplyMarkup = nodesKeyboard("req:new:country", countries, false)
		b.send(m)
	}
}

func (b *Bot) reqCountry(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	countryID, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	provinces, err := b.geo.ListChildren(ctx, &countryID, geo.LevelProvince)
	if err != nil {
		b.log.Error("list provinces failed", "err", err)
		return
	}
	m := tgbotapi.NewMessage(chatID, "Elige la provincia:")
	m.ReplyMarkup = nodesKeyboard("req:new:prov", provinces, false)
	b.send(m)
}

func (b *Bot) reqProvince(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	provinceID, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	zones, err := b.geo.ListChildren(ctx, &provinceID, geo.LevelZone)
	if err != nil {
		b.log.Error("list zones failed", "err", err)
		return
	}
	if len(zones) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Esa provincia no tiene zonas configuradas todavía. Elige otra."))
		return
	}
	m := tgbotapi.NewMessage(chatID, "Elige la zona:")
	m.ReplyMarkup = nodesKeyboard("req:new:zone", zones, false)
	b.send(m)
}

func (b *Bot) reqZone(ctx context.Context, cb *tgbotapi.CallbackQuery) {
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
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	st.Payload["zone_id"] = float64(zoneID)
	_ = b.states.Set(ctx, chatID, dialog.StateReqConfirm, st.Payload)

	zoneName := b.geo.ResolveName(ctx, zoneID)
	m := tgbotapi.NewMessage(chatID, renderDraft(st.Payload, zoneName)+"\n\n¿Publicamos la solicitud?")
	m.ReplyMarkup = confirmRequestKeyboard()
	b.send(m)
}

func (b *Bot) reqPublish(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	st, err := b.states.Get(ctx, chatID)
	if err != nil || st.State != dialog.StateReqConfirm {
		b.answerCallback(cb, "Este paso ya terminó.", false)
		return
	}
	u := b.requireActive(ctx, cb.From.ID, chatID)
	if u == nil {
		return
	}
	zoneID, ok := dialog.GetInt64(st.Payload, "zone_id")
	if !ok {
		b.answerCallback(cb, "Falta la zona. Empieza de nuevo con /nueva_solicitud", true)
		return
	}

	get := func(k string) string { s, _ := dialog.GetString(st.Payload, k); return s }
	req, err := b.requests.Create(ctx, u.ID, zoneID, requests.Payload{
		VehicleType: get("vehicle"),
		CargoType:   get("cargo"),
		Description: get("description"),
		Pickup:      get("pickup"),
		Dropoff:     get("dropoff"),
		Budget:      get("budget"),
	})
	if err != nil {
		if errors.Is(err, requests.ErrInvalidZone) {
			b.answerCallback(cb, "La zona seleccionada ya no está disponible. Empieza de nuevo con /nueva_solicitud", true)
			return
		}
		b.log.Error("request create failed", "user", u.ID, "err", err)
		b.answerCallback(cb, "Error al crear la solicitud. Inténtalo de nuevo.", true)
		return
	}
	metrics.RequestsCreated.Inc()
	_ = b.states.Reset(ctx, chatID)
	b.answerCallback(cb, "Solicitud publicada", false)
	b.clearMarkup(cb)
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ Solicitud #%d publicada. Te avisaremos cuando un transportista la acepte.", req.ID)))

	if err := b.notifier.BroadcastNew(ctx, req); err != nil {
		b.log.Error("broadcast failed", "request", req.ID, "err", err)
	}
}

func (b *Bot) cmdMyRequests(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u := b.requireActive(ctx, msg.From.ID, chatID)
	if u == nil {
		return
	}
	list, err := b.requests.ListByRequester(ctx, u.ID)
	if err != nil {
		b.log.Error("list requests failed", "user", u.ID, "err", err)
		return
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "No tienes solicitudes. Crea una con /nueva_solicitud"))
		return
	}

	for _, req := range list {
		text := fmt.Sprintf("#%d — %s\n%s → %s\nZona: %s",
			req.ID, statusLabel(req.Status),
			req.Payload.Pickup, req.Payload.Dropoff,
			b.geo.ResolveName(ctx, req.ZoneID))
		m := tgbotapi.NewMessage(chatID, text)
		if req.Status == requests.StatusActive {
			m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("🚫 Cancelar", "req:cancel:"+strconv.FormatInt(req.ID, 10)),
				),
			)
		}
		b.send(m)
	}
}

/* Ciclo de vida: aceptar, confirmar, rechazar, cancelar */

func (b *Bot) reqAccept(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	id, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}
	u := b.requireActive(ctx, cb.From.ID, chatID)
	if u == nil {
		return
	}
	if !u.Role.CanTransport() {
		b.answerCallback(cb, "Sólo los transportistas pueden aceptar solicitudes.", true)
		return
	}

	req, err := b.requests.TryReserve(ctx, id, u.ID, time.Now())
	if err != nil {
		if errors.Is(err, requests.ErrAlreadyTaken) {
			// Uniform answer: taken by someone else and already-closed look
			// identical to the losing transporter.
			metrics.ReservationsLost.Inc()
			b.answerCallback(cb, "Esta solicitud ya no está disponible.", true)
			b.clearMarkup(cb)
			return
		}
		b.log.Error("reserve failed", "request", id, "err", err)
		b.answerCallback(cb, "Error temporal. Inténtalo de nuevo.", true)
		return
	}
	metrics.ReservationsWon.Inc()
	b.answerCallback(cb, "¡Reserva hecha!", false)
	b.clearMarkup(cb)
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"🕐 Has reservado la solicitud #%d. Espera la confirmación del solicitante (máx. %d min).",
		req.ID, int(requests.ConfirmWindow.Minutes()))))

	b.notifier.NotifyReservation(ctx, req)
}

func (b *Bot) reqConfirm(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	id, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}
	u := b.requireActive(ctx, cb.From.ID, chatID)
	if u == nil {
		return
	}

	req, err := b.requests.Confirm(ctx, id, u.ID)
	if err != nil {
		b.lifecycleError(cb, err)
		return
	}
	metrics.RequestsConfirmed.Inc()
	b.answerCallback(cb, "Confirmado", false)
	b.clearMarkup(cb)
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ Solicitud #%d confirmada. El transportista recibirá tus datos de contacto.", req.ID)))

	b.notifier.NotifyOutcome(ctx, req, req.TransporterID, dispatch.OutcomeConfirmed)
}

func (b *Bot) reqReject(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	id, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}
	u := b.requireActive(ctx, cb.From.ID, chatID)
	if u == nil {
		return
	}

	// Remember who held the reservation; the revert clears the assignment
	// but the dropped transporter still gets told.
	prev, err := b.requests.GetByID(ctx, id)
	if err != nil || prev == nil {
		b.answerCallback(cb, "Solicitud no encontrada.", true)
		return
	}
	droppedTransporter := prev.TransporterID

	req, err := b.requests.Reject(ctx, id, u.ID)
	if err != nil {
		b.lifecycleError(cb, err)
		return
	}
	b.answerCallback(cb, "Rechazado", false)
	b.clearMarkup(cb)
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"↩️ Reserva rechazada. La solicitud #%d vuelve a estar activa.", req.ID)))

	b.notifier.NotifyOutcome(ctx, req, droppedTransporter, dispatch.OutcomeRejected)
	if err := b.notifier.BroadcastNew(ctx, req); err != nil {
		b.log.Error("rebroadcast failed", "request", req.ID, "err", err)
	}
}

func (b *Bot) reqCancel(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	id, ok := callbackID(cb.Data)
	if !ok {
		b.answerCallback(cb, "", false)
		return
	}
	u := b.requireActive(ctx, cb.From.ID, chatID)
	if u == nil {
		return
	}

	req, err := b.requests.Cancel(ctx, id, u.ID)
	if err != nil {
		b.lifecycleError(cb, err)
		return
	}
	b.answerCallback(cb, "Cancelada", false)
	b.clearMarkup(cb)
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("🚫 Solicitud #%d cancelada.", req.ID)))
}

func (b *Bot) lifecycleError(cb *tgbotapi.CallbackQuery, err error) {
	switch {
	case errors.Is(err, requests.ErrNotOwner):
		b.answerCallback(cb, "Esa solicitud no es tuya.", true)
	case errors.Is(err, requests.ErrInvalidState):
		b.answerCallback(cb, "La solicitud ya no admite esa acción.", true)
	case errors.Is(err, requests.ErrNotFound):
		b.answerCallback(cb, "Solicitud no encontrada.", true)
	default:
		b.log.Error("lifecycle operation failed", "err", err)
		b.answerCallback(cb, "Error temporal. Inténtalo de nuevo.", true)
	}
}
