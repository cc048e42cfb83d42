package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/domain/admins"
	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
)

// deniedMsg is the fixed denial: it deliberately leaks nothing about levels
// or jurisdictions.
const deniedMsg = "Acceso denegado."

// adminEligible rejects users whose lifecycle state bars admin actions even
// when a grant row survives; a ban does not cascade into admin_grants.
func adminEligible(u *users.User) bool {
	return u != nil && u.Status != users.StatusBanned
}

// requireAdmin loads the acting user's active grant. Messages the chat and
// returns nil when there is none.
func (b *Bot) requireAdmin(ctx context.Context, tgID, chatID int64) *admins.Grant {
	u, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil || !adminEligible(u) {
		b.send(tgbotapi.NewMessage(chatID, deniedMsg))
		return nil
	}
	g, err := b.admins.GetByUser(ctx, u.ID)
	if err != nil {
		b.log.Error("grant lookup failed", "user", u.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return nil
	}
	if g == nil {
		b.send(tgbotapi.NewMessage(chatID, deniedMsg))
		return nil
	}
	return g
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	g := b.requireAdmin(ctx, msg.From.ID, chatID)
	if g == nil {
		return
	}
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "admin_panel":
		b.adminPanel(ctx, chatID, g)
	case "admin_crear_pais":
		if len(args) < 1 {
			b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_crear_pais <nombre>"))
			return
		}
		b.adminCreateNode(ctx, chatID, g, geo.LevelCountry, nil, strings.Join(args, " "))
	case "admin_crear_provincia":
		if len(args) < 2 {
			b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_crear_provincia <pais_id> <nombre>"))
			return
		}
		parentID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.send(tgbotapi.NewMessage(chatID, "El primer argumento debe ser el id numérico del país."))
			return
		}
		b.adminCreateNode(ctx, chatID, g, geo.LevelProvince, &parentID, strings.Join(args[1:], " "))
	case "admin_crear_zona":
		if len(args) < 2 {
			b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_crear_zona <provincia_id> <nombre>"))
			return
		}
		parentID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.send(tgbotapi.NewMessage(chatID, "El primer argumento debe ser el id numérico de la provincia."))
			return
		}
		b.adminCreateNode(ctx, chatID, g, geo.LevelZone, &parentID, strings.Join(args[1:], " "))
	case "admin_desactivar":
		if len(args) != 1 {
			b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_desactivar <nodo_id>"))
			return
		}
		nodeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.send(tgbotapi.NewMessage(chatID, "El argumento debe ser el id numérico del nodo."))
			return
		}
		b.adminDeactivate(ctx, chatID, g, nodeID)
	case "admin_designar":
		b.adminDesignate(ctx, chatID, g, args)
	case "admin_revocar":
		b.adminRevoke(ctx, chatID, g, args)
	case "admin_banear":
		b.adminBan(ctx, chatID, g, args)
	case "admin_export":
		b.adminExport(ctx, chatID)
	}
}

func (b *Bot) adminPanel(ctx context.Context, chatID int64, g *admins.Grant) {
	total, active, transporters, requesters, err := b.users.Counts(ctx)
	if err != nil {
		b.log.Error("user counts failed", "err", err)
	}
	byStatus, err := b.requests.CountByStatus(ctx)
	if err != nil {
		b.log.Error("request counts failed", "err", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👑 Panel de administración — nivel %s\n\n", levelLabel(g.Level)))
	sb.WriteString("📊 Estadísticas\n")
	sb.WriteString(fmt.Sprintf("Usuarios: %d (%d activos)\n", total, active))
	sb.WriteString(fmt.Sprintf("Transportistas: %d · Solicitantes: %d\n", transporters, requesters))
	sb.WriteString(fmt.Sprintf("Solicitudes: %d activas, %d pendientes, %d confirmadas, %d canceladas\n\n",
		byStatus[requests.StatusActive], byStatus[requests.StatusPending],
		byStatus[requests.StatusConfirmed], byStatus[requests.StatusCancelled]))
	sb.WriteString("Comandos:\n")
	sb.WriteString("/admin_crear_pais <nombre>\n")
	sb.WriteString("/admin_crear_provincia <pais_id> <nombre>\n")
	sb.WriteString("/admin_crear_zona <provincia_id> <nombre>\n")
	sb.WriteString("/admin_desactivar <nodo_id>\n")
	sb.WriteString("/admin_export — historial en Excel\n")
	if admins.CanDesignateAdmins(g) {
		sb.WriteString("/admin_designar <telegram_id> <supremo|pais|provincia|zona> [nodo_id]\n")
		sb.WriteString("/admin_revocar <telegram_id>\n")
		sb.WriteString("/admin_banear <telegram_id>\n")
	}
	b.send(tgbotapi.NewMessage(chatID, sb.String()))
}

func (b *Bot) adminCreateNode(ctx context.Context, chatID int64, g *admins.Grant, level geo.Level, parentID *int64, name string) {
	if err := b.perms.AuthorizeCreate(ctx, g, level, parentID); err != nil {
		if errors.Is(err, admins.ErrUnauthorized) {
			b.send(tgbotapi.NewMessage(chatID, deniedMsg))
			return
		}
		b.log.Error("authorization check failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}

	node, err := b.geo.CreateNode(ctx, level, parentID, name)
	switch {
	case errors.Is(err, geo.ErrDuplicateName):
		b.send(tgbotapi.NewMessage(chatID, "Ya existe un territorio con ese nombre en ese nivel."))
	case errors.Is(err, geo.ErrInvalidParent):
		b.send(tgbotapi.NewMessage(chatID, "El territorio padre no existe o no corresponde al nivel."))
	case err != nil:
		b.log.Error("node create failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
	default:
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
			"✅ %s «%s» creado con id %d.", levelNoun(level), node.Name, node.ID)))
	}
}

func (b *Bot) adminDeactivate(ctx context.Context, chatID int64, g *admins.Grant, nodeID int64) {
	node, err := b.geo.GetByID(ctx, nodeID)
	if err != nil {
		b.log.Error("node lookup failed", "node", nodeID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}
	if node == nil {
		b.send(tgbotapi.NewMessage(chatID, "Nodo no encontrado."))
		return
	}
	if err := b.perms.AuthorizeManage(ctx, g, node); err != nil {
		if errors.Is(err, admins.ErrUnauthorized) {
			b.send(tgbotapi.NewMessage(chatID, deniedMsg))
			return
		}
		b.log.Error("authorization check failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}
	if err := b.geo.Deactivate(ctx, nodeID); err != nil {
		b.log.Error("deactivate failed", "node", nodeID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("✅ «%s» desactivado.", node.Name)))
}

// adminDesignate creates or replaces another user's grant. Supreme only.
func (b *Bot) adminDesignate(ctx context.Context, chatID int64, g *admins.Grant, args []string) {
	if !admins.CanDesignateAdmins(g) {
		b.send(tgbotapi.NewMessage(chatID, deniedMsg))
		return
	}
	if len(args) < 2 {
		b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_designar <telegram_id> <supremo|pais|provincia|zona> [nodo_id]"))
		return
	}
	tgID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "El primer argumento debe ser el telegram_id numérico."))
		return
	}

	var level admins.Level
	switch args[1] {
	case "supremo":
		level = admins.LevelSupreme
	case "pais":
		level = admins.LevelCountry
	case "provincia":
		level = admins.LevelProvince
	case "zona":
		level = admins.LevelZone
	default:
		b.send(tgbotapi.NewMessage(chatID, "Nivel no válido: usa supremo, pais, provincia o zona."))
		return
	}

	var jurisdiction *int64
	if level != admins.LevelSupreme {
		if len(args) != 3 {
			b.send(tgbotapi.NewMessage(chatID, "Ese nivel requiere el id del territorio: /admin_designar <telegram_id> <nivel> <nodo_id>"))
			return
		}
		nodeID, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			b.send(tgbotapi.NewMessage(chatID, "El nodo_id debe ser numérico."))
			return
		}
		node, err := b.geo.GetByID(ctx, nodeID)
		if err != nil || node == nil || !node.Active {
			b.send(tgbotapi.NewMessage(chatID, "Territorio no encontrado o inactivo."))
			return
		}
		if !levelMatches(level, node.Level) {
			b.send(tgbotapi.NewMessage(chatID, "El nivel del grant no coincide con el nivel del territorio."))
			return
		}
		jurisdiction = &nodeID
	}

	target, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil || target == nil {
		b.send(tgbotapi.NewMessage(chatID, "Ese usuario no está registrado en el bot."))
		return
	}
	if _, err := b.admins.Upsert(ctx, target.ID, level, jurisdiction); err != nil {
		b.log.Error("grant upsert failed", "target", target.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ %s designado como admin de nivel %s.", displayUser(target), levelLabel(level))))
}

// adminRevoke deactivates another user's grant. Supreme only, same as
// designation.
func (b *Bot) adminRevoke(ctx context.Context, chatID int64, g *admins.Grant, args []string) {
	if !admins.CanDesignateAdmins(g) {
		b.send(tgbotapi.NewMessage(chatID, deniedMsg))
		return
	}
	if len(args) != 1 {
		b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_revocar <telegram_id>"))
		return
	}
	tgID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "El argumento debe ser el telegram_id numérico."))
		return
	}
	target, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil || target == nil {
		b.send(tgbotapi.NewMessage(chatID, "Ese usuario no está registrado en el bot."))
		return
	}
	if err := b.admins.Revoke(ctx, target.ID); err != nil {
		b.log.Error("grant revoke failed", "target", target.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("✅ Permisos de admin de %s revocados.", displayUser(target))))
}

func (b *Bot) adminBan(ctx context.Context, chatID int64, g *admins.Grant, args []string) {
	if !admins.CanDesignateAdmins(g) {
		b.send(tgbotapi.NewMessage(chatID, deniedMsg))
		return
	}
	if len(args) != 1 {
		b.send(tgbotapi.NewMessage(chatID, "Uso: /admin_banear <telegram_id>"))
		return
	}
	tgID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "El argumento debe ser el telegram_id numérico."))
		return
	}
	target, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil || target == nil {
		b.send(tgbotapi.NewMessage(chatID, "Ese usuario no está registrado en el bot."))
		return
	}
	if err := b.users.Ban(ctx, tgID); err != nil {
		b.log.Error("ban failed", "target", target.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error temporal. Inténtalo de nuevo."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("🚫 %s suspendido.", displayUser(target))))
}

func (b *Bot) adminExport(ctx context.Context, chatID int64) {
	data, err := b.reports.ClosedRequestsXLSX(ctx)
	if err != nil {
		b.log.Error("export failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Error al generar el informe."))
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "solicitudes_cerradas.xlsx",
		Bytes: data,
	})
	b.send(doc)
}

func levelMatches(grantLevel admins.Level, nodeLevel geo.Level) bool {
	switch grantLevel {
	case admins.LevelCountry:
		return nodeLevel == geo.LevelCountry
	case admins.LevelProvince:
		return nodeLevel == geo.LevelProvince
	case admins.LevelZone:
		return nodeLevel == geo.LevelZone
	default:
		return false
	}
}

func levelLabel(l admins.Level) string {
	switch l {
	case admins.LevelSupreme:
		return "Supremo"
	case admins.LevelCountry:
		return "País"
	case admins.LevelProvince:
		return "Provincia"
	case admins.LevelZone:
		return "Zona"
	default:
		return string(l)
	}
}

func levelNoun(l geo.Level) string {
	switch l {
	case geo.LevelCountry:
		return "País"
	case geo.LevelProvince:
		return "Provincia"
	case geo.LevelZone:
		return "Zona"
	default:
		return "Territorio"
	}
}

func displayUser(u *users.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("usuario %d", u.ID)
}
