package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/i18n"
)

// renderReply translates a structured engine reply into one or more chat
// messages, with the keyboard appropriate for the next expected input.
func (b *Bot) renderReply(chatID int64, lang string, reply *engine.Reply) {
	if reply == nil {
		return
	}

	switch reply.Code {
	case engine.CodeAskName:
		b.sendPhotoThumb(chatID, lang, reply.Thumbnail)
		b.send(chatID, i18n.T(lang, "new_stone")+"\n\n"+i18n.T(lang, "ask_name"), removeKeyboard())

	case engine.CodeAskDescription:
		b.send(chatID, i18n.T(lang, "ask_description", reply.Name), skipKeyboard(lang))

	case engine.CodeAskLocation:
		b.send(chatID, i18n.T(lang, "ask_location"), locationKeyboard(lang))

	case engine.CodeStoneMatched:
		b.sendPhotoThumb(chatID, lang, reply.Thumbnail)
		b.send(chatID, matchText(lang, reply.Stone)+"\n\n"+i18n.T(lang, "ask_location"), locationKeyboard(lang))

	case engine.CodeStoneRegistered:
		text := i18n.T(lang, "stone_registered", reply.Stone.Stone.Name)
		if reply.Address != nil {
			text += "\n" + i18n.T(lang, "location_label", addressLine(reply.Address))
		}
		b.send(chatID, text, removeKeyboard())
		b.sendMap(chatID, lang, reply.MapImage)

	case engine.CodeSightingSaved:
		text := i18n.T(lang, "sighting_saved")
		if reply.Address != nil {
			text += "\n" + i18n.T(lang, "location_label", addressLine(reply.Address))
		}
		if reply.Stone != nil {
			text += "\n" + i18n.T(lang, "stone_seen", reply.Stone.SightingCount)
		}
		b.send(chatID, text, removeKeyboard())
		b.sendMap(chatID, lang, reply.MapImage)

	case engine.CodeCancelled:
		b.send(chatID, i18n.T(lang, "cancelled"), removeKeyboard())

	case engine.CodeNothingToCancel:
		b.send(chatID, i18n.T(lang, "nothing_to_cancel"), nil)

	case engine.CodeNotAStone:
		b.send(chatID, i18n.T(lang, "not_a_stone"), removeKeyboard())

	case engine.CodeNameTooShort:
		b.send(chatID, i18n.T(lang, "name_too_short"), nil)

	case engine.CodeExpectedPhoto:
		b.send(chatID, i18n.T(lang, "expected_photo"), nil)

	case engine.CodeStepFailed:
		b.send(chatID, i18n.T(lang, "step_failed"), nil)

	case engine.CodeSearchResults:
		b.send(chatID, listText(lang, "search_results", reply.Stones, true), nil)

	case engine.CodeSearchEmpty:
		b.send(chatID, i18n.T(lang, "search_empty"), nil)

	case engine.CodeStoneList:
		b.send(chatID, listText(lang, "my_stones", reply.Stones, false), nil)

	case engine.CodeStoneListEmpty:
		b.send(chatID, i18n.T(lang, "no_stones"), nil)

	default:
		slog.Warn("unhandled reply code", "code", reply.Code)
	}
}

func matchText(lang string, s *engine.StoneSummary) string {
	lines := []string{
		i18n.T(lang, "stone_found"),
		"",
		i18n.T(lang, "stone_name", s.Stone.Name),
	}
	if s.Stone.Description != "" {
		lines = append(lines, i18n.T(lang, "stone_description", s.Stone.Description))
	}
	lines = append(lines, i18n.T(lang, "stone_seen", s.SightingCount))
	return strings.Join(lines, "\n")
}

func listText(lang, headerKey string, stones []*engine.StoneSummary, withScore bool) string {
	var sb strings.Builder
	sb.WriteString(i18n.T(lang, headerKey))
	for _, s := range stones {
		sb.WriteString(fmt.Sprintf("\n• %s (%d)", s.Stone.Name, s.SightingCount))
		if withScore {
			sb.WriteString(fmt.Sprintf(" — %.0f%%", s.Similarity*100))
		}
	}
	return sb.String()
}

func addressLine(a *engine.Address) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.City, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return a.DisplayName
	}
	return strings.Join(parts, ", ")
}

func (b *Bot) send(chatID int64, text string, keyboard interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendPhotoThumb(chatID int64, lang string, thumbnail []byte) {
	if len(thumbnail) == 0 {
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "stone.jpg", Bytes: thumbnail})
	photo.Caption = i18n.T(lang, "cropped_stone")
	if _, err := b.api.Send(photo); err != nil {
		slog.Warn("failed to send thumbnail", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendMap(chatID int64, lang string, mapImage []byte) {
	if len(mapImage) == 0 {
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "route.png", Bytes: mapImage})
	photo.Caption = i18n.T(lang, "map_caption")
	if _, err := b.api.Send(photo); err != nil {
		slog.Warn("failed to send route map", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendLanguageKeyboard(chatID int64, lang string) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(i18n.Languages))
	for _, code := range i18n.LanguageCodes() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.Languages[code], "lang:"+code),
		))
	}
	msg := tgbotapi.NewMessage(chatID, i18n.T(lang, "lang_select"))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("failed to send language keyboard", "chat_id", chatID, "error", err)
	}
}

func locationKeyboard(lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation(i18n.T(lang, "btn_send_location")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(i18n.T(lang, "btn_skip")),
		),
	)
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard(lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(i18n.T(lang, "btn_skip")),
		),
	)
	kb.OneTimeKeyboard = true
	return kb
}

func removeKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(true)
}
