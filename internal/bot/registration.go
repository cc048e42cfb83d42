package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/dialog"
	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
)

// cmdStart creates the user on first contact and walks them through
// registration: idioma → contacto → nombre → rol → ubicación.
func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	u, err := b.users.Create(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		b.log.Error("user create failed", "tg", msg.From.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error: no se pudo guardar tu perfil. Inténtalo de nuevo."))
		return
	}

	switch u.Status {
	case users.StatusActive:
		b.send(tgbotapi.NewMessage(chatID, b.mainMenuText(u)))
	case users.StatusBanned:
		b.send(tgbotapi.NewMessage(chatID, "Tu cuenta está suspendida."))
	default:
		if err := b.states.Set(ctx, chatID, dialog.StateRegLanguage, dialog.Payload{}); err != nil {
			b.log.Error("dialog set failed", "chat", chatID, "err", err)
			return
		}
		m := tgbotapi.NewMessage(chatID, "👋 ¡Bienvenido a EcoTransporte!\n\nElige tu idioma:")
		m.ReplyMarkup = languageKeyboard()
		b.send(m)
	}
}

func (b *Bot) mainMenuText(u *users.User) string {
	var sb strings.Builder
	sb.WriteString("🛠️ Menú principal\n\n")
	if u.Role.CanRequest() {
		sb.WriteString("/nueva_solicitud — pedir un transporte\n")
		sb.WriteString("/mis_solicitudes — tus solicitudes\n")
	}
	if u.Role.CanTransport() {
		sb.WriteString("/zonas — tus zonas de trabajo\n")
	}
	sb.WriteString("/help — ayuda")
	return sb.String()
}

func (b *Bot) regLanguage(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	lang := strings.TrimPrefix(cb.Data, "reg:lang:")
	if lang != "es" && lang != "en" {
		b.answerCallback(cb, "", false)
		return
	}
	if err := b.users.SetLanguage(ctx, cb.From.ID, lang); err != nil {
		b.log.Error("set language failed", "tg", cb.From.ID, "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateRegPhone, dialog.Payload{})
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	m := tgbotapi.NewMessage(chatID, "📱 Comparte tu número de teléfono con el botón de abajo.")
	m.ReplyMarkup = contactKeyboard()
	b.send(m)
}

func (b *Bot) regPhone(ctx context.Context, msg *tgbotapi.Message, _ *dialog.Item) {
	chatID := msg.Chat.ID
	if msg.Contact == nil {
		b.send(tgbotapi.NewMessage(chatID, "Usa el botón «Compartir mi número» para continuar."))
		return
	}
	// Only the user's own contact counts as phone verification.
	if msg.Contact.UserID != msg.From.ID {
		b.send(tgbotapi.NewMessage(chatID, "Comparte tu propio contacto, no el de otra persona."))
		return
	}
	if err := b.users.SetPhone(ctx, msg.From.ID, msg.Contact.PhoneNumber); err != nil {
		b.log.Error("set phone failed", "tg", msg.From.ID, "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateRegName, dialog.Payload{})

	m := tgbotapi.NewMessage(chatID, "✅ Teléfono recibido.\n\nEscribe tu nombre completo:")
	m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(m)
}

func (b *Bot) regName(ctx context.Context, msg *tgbotapi.Message, _ *dialog.Item) {
	chatID := msg.Chat.ID
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		b.send(tgbotapi.NewMessage(chatID, "Escribe tu nombre completo en una línea."))
		return
	}
	if err := b.users.SetFullName(ctx, msg.From.ID, name); err != nil {
		b.log.Error("set name failed", "tg", msg.From.ID, "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateRegRole, dialog.Payload{})

	m := tgbotapi.NewMessage(chatID, "¿Cómo vas a usar el bot?")
	m.ReplyMarkup = roleKeyboard()
	b.send(m)
}

func (b *Bot) regRole(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	role := users.Role(strings.TrimPrefix(cb.Data, "reg:role:"))
	switch role {
	case users.RoleRequester, users.RoleTransporter, users.RoleBoth:
	default:
		b.answerCallback(cb, "", false)
		return
	}
	if err := b.users.SetRole(ctx, cb.From.ID, role); err != nil {
		b.log.Error("set role failed", "tg", cb.From.ID, "err", err)
		return
	}
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	countries, err := b.geo.ListChildren(ctx, nil, geo.LevelCountry)
	if err != nil {
		b.log.Error("list countries failed", "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateRegCountry, dialog.Payload{})

	m := tgbotapi.NewMessage(chatID, "🌍 Elige tu país (o salta este paso):")
	m.ReplyMarkup = nodesKeyboard("reg:country", countries, true)
	b.send(m)
}

func (b *Bot) regCountry(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	if strings.HasSuffix(cb.Data, ":skip") {
		b.finishRegistration(ctx, cb.From.ID, chatID)
		return
	}
	countryID, ok := callbackID(cb.Data)
	if !ok {
		return
	}
	provinces, err := b.geo.ListChildren(ctx, &countryID, geo.LevelProvince)
	if err != nil {
		b.log.Error("list provinces failed", "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateRegProvince, dialog.Payload{"country_id": float64(countryID)})

	m := tgbotapi.NewMessage(chatID, "🏙️ Elige tu provincia:")
	m.ReplyMarkup = nodesKeyboard("reg:province", provinces, true)
	b.send(m)
}

func (b *Bot) regProvince(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	b.answerCallback(cb, "", false)
	b.clearMarkup(cb)

	if strings.HasSuffix(cb.Data, ":skip") {
		b.finishRegistration(ctx, cb.From.ID, chatID)
		return
	}
	provinceID, ok := callbackID(cb.Data)
	if !ok {
		return
	}
	if err := b.users.SetHome(ctx, cb.From.ID, &provinceID); err != nil {
		b.log.Error("set home failed", "tg", cb.From.ID, "err", err)
		return
	}

	u, err := b.users.GetByTelegramID(ctx, cb.From.ID)
	if err != nil || u == nil {
		b.log.Error("user lookup failed", "tg", cb.From.ID, "err", err)
		return
	}
	if !u.Role.CanTransport() {
		b.finishRegistration(ctx, cb.From.ID, chatID)
		return
	}

	// Transporters pick their work zones right away; the zone set is the
	// dispatch filter, without it they receive nothing.
	zones, err := b.geo.ListChildren(ctx, &provinceID, geo.LevelZone)
	if err != nil {
		b.log.Error("list zones failed", "err", err)
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateRegZone, dialog.Payload{"province_id": float64(provinceID)})

	m := tgbotapi.NewMessage(chatID, "🗺️ Marca las zonas donde trabajas y pulsa «Guardar zonas»:")
	m.ReplyMarkup = zonesToggleKeyboard(zones, map[int64]bool{})
	b.send(m)
}

func (b *Bot) finishRegistration(ctx context.Context, tgID, chatID int64) {
	if err := b.users.Activate(ctx, tgID); err != nil {
		b.log.Error("activate failed", "tg", tgID, "err", err)
		return
	}
	_ = b.states.Reset(ctx, chatID)

	u, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil || u == nil {
		return
	}
	home := "N/A"
	if u.HomeNodeID != nil {
		home = b.geo.ResolveName(ctx, *u.HomeNodeID)
	}
	b.send(tgbotapi.NewMessage(chatID,
		"🎉 ¡Registro completado!\n\n"+
			"Nombre: "+u.FullName+"\n"+
			"Teléfono: "+u.Phone+"\n"+
			"Rol: "+roleLabel(u.Role)+"\n"+
			"Ubicación: "+home+"\n\n"+
			b.mainMenuText(u)))
}

func roleLabel(r users.Role) string {
	switch r {
	case users.RoleRequester:
		return "Solicitante"
	case users.RoleTransporter:
		return "Transportista"
	case users.RoleBoth:
		return "Solicitante + Transportista"
	default:
		return string(r)
	}
}
