package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
)

// Categorías de carga del sistema.
var cargoCategories = []string{
	"Transporte de personas",
	"Carga ligera (hasta 20kg)",
	"Carga pesada (20kg - 500kg)",
	"Mega carga (500kg+)",
}

var vehicleTypes = []string{"Camión", "Camioneta", "Auto", "Moto"}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Español 🇪🇸", "reg:lang:es"),
			tgbotapi.NewInlineKeyboardButtonData("English 🇺🇸", "reg:lang:en"),
		),
	)
}

func contactKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact("📱 Compartir mi número"),
		),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

func roleKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Solicitante", "reg:role:requester"),
			tgbotapi.NewInlineKeyboardButtonData("🚚 Transportista", "reg:role:transporter"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔁 Ambos", "reg:role:both"),
		),
	)
}

func vehicleKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(vehicleTypes)+1)
	for i, v := range vehicleTypes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(v, fmt.Sprintf("req:new:vehicle:%d", i))))
	}
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cargoKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cargoCategories)+1)
	for i, c := range cargoCategories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c, fmt.Sprintf("req:new:cargo:%d", i))))
	}
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func confirmRequestKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📨 Publicar", "req:new:send"),
		),
		cancelRow(),
	)
}

// nodesKeyboard lists geo nodes as one button per row with callback data
// "<prefix>:<id>", optionally followed by a skip button.
func nodesKeyboard(prefix string, nodes []geo.Node, skip bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(nodes)+2)
	for _, n := range nodes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(n.Name, fmt.Sprintf("%s:%d", prefix, n.ID))))
	}
	if skip {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➡️ Saltar este paso", prefix+":skip")))
	}
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// zonesToggleKeyboard marks selected zones and adds a save button.
func zonesToggleKeyboard(zones []geo.Node, selected map[int64]bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(zones)+2)
	for _, z := range zones {
		label := z.Name
		if selected[z.ID] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("zones:toggle:%d", z.ID))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💾 Guardar zonas", "zones:save")))
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancelar", "nav:cancel"))
}
