package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dialog"
	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
)

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	if _, err := b.api.Request(resp); err != nil {
		b.log.Error("answer callback failed", "err", err)
	}
}

// callbackID parses the trailing numeric segment of callback data like
// "req:accept:42".
func callbackID(data string) (int64, bool) {
	i := strings.LastIndexByte(data, ':')
	if i < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(data[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// selectedZones reads the zone set accumulated in the dialog payload.
// JSON round-trips arrays as []any of float64.
func selectedZones(p dialog.Payload) map[int64]bool {
	out := map[int64]bool{}
	raw, ok := p["zones"]
	if !ok {
		return out
	}
	arr, ok := raw.([]any)
	if !ok {
		return out
	}
	for _, v := range arr {
		if f, ok := v.(float64); ok {
			out[int64(f)] = true
		}
	}
	return out
}

func storeZones(p dialog.Payload, zones map[int64]bool) {
	arr := make([]any, 0, len(zones))
	for id := range zones {
		arr = append(arr, float64(id))
	}
	p["zones"] = arr
}

func statusLabel(s requests.Status) string {
	switch s {
	case requests.StatusActive:
		return "🟢 Activa"
	case requests.StatusPending:
		return "🕐 Pendiente de confirmación"
	case requests.StatusConfirmed:
		return "✅ Confirmada"
	case requests.StatusCancelled:
		return "🚫 Cancelada"
	default:
		return string(s)
	}
}

func renderDraft(p dialog.Payload, zoneName string) string {
	get := func(k string) string {
		s, _ := dialog.GetString(p, k)
		return s
	}
	return fmt.Sprintf(
		"📋 Resumen de la solicitud\n\n"+
			"Vehículo: %s\nCarga: %s\nDescripción: %s\n"+
			"Origen: %s\nDestino: %s\nPresupuesto: %s\nZona: %s",
		get("vehicle"), get("cargo"), get("description"),
		get("pickup"), get("dropoff"), get("budget"), zoneName)
}
