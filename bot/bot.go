// Package bot implements the Telegram transport: it receives updates, feeds
// them to the engine, and renders structured replies into chat messages.
package bot

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/i18n"
	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/store"
)

const maxPhotoBytes = 20 << 20 // Telegram photo size limit

// Bot wraps the Telegram Bot API around the tracking engine.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *engine.Engine
	store  *store.Store
	client *http.Client
}

// New creates the Telegram bot.
func New(p *profile.Profile, eng *engine.Engine, st *store.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(p.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Telegram bot")
	}

	return &Bot{
		api:    api,
		engine: eng,
		store:  st,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
	}, nil
}

// Start runs the long-polling loop until the context is cancelled. Updates
// are dispatched concurrently; the engine serializes events per user.
func (b *Bot) Start(ctx context.Context) error {
	slog.Info("telegram bot started", "username", b.api.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	traceID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while handling update", "trace_id", traceID, "panic", r)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID
	lang := b.language(ctx, userID)

	slog.Debug("update received",
		"trace_id", traceID,
		"user_id", userID,
		"is_command", msg.IsCommand(),
		"has_photo", len(msg.Photo) > 0,
		"has_location", msg.Location != nil)

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, lang)

	case len(msg.Photo) > 0:
		b.send(chatID, i18n.T(lang, "analyzing"), nil)
		image, fileID, err := b.downloadLargestPhoto(ctx, msg.Photo)
		if err != nil {
			slog.Error("photo download failed", "trace_id", traceID, "user_id", userID, "error", err)
			b.send(chatID, i18n.T(lang, "step_failed"), nil)
			return
		}
		reply := b.engine.HandlePhoto(ctx, userID, fileID, image)
		b.renderReply(chatID, lang, reply)

	case msg.Location != nil:
		reply := b.engine.HandleLocation(ctx, userID, engine.Coordinates{
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
		})
		b.renderReply(chatID, lang, reply)

	case msg.Text != "":
		text := strings.TrimSpace(msg.Text)
		var reply *engine.Reply
		if b.isSkipButton(text) {
			reply = b.engine.HandleSkip(ctx, userID)
		} else {
			reply = b.engine.HandleText(ctx, userID, text)
		}
		b.renderReply(chatID, lang, reply)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang string) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.send(chatID, i18n.T(lang, "start"), nil)
	case "help":
		b.send(chatID, i18n.T(lang, "help"), nil)
	case "lang":
		b.sendLanguageKeyboard(chatID, lang)
	case "mine":
		b.renderReply(chatID, lang, b.engine.ListUserStones(ctx, userID))
	case "find":
		query := strings.TrimSpace(msg.CommandArguments())
		if query == "" {
			b.send(chatID, i18n.T(lang, "search_usage"), nil)
			return
		}
		b.renderReply(chatID, lang, b.engine.HandleTextSearch(ctx, userID, query))
	case "cancel":
		b.renderReply(chatID, lang, b.engine.HandleCancel(ctx, userID))
	default:
		b.send(chatID, i18n.T(lang, "help"), nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		slog.Warn("failed to answer callback query", "error", err)
	}

	data := query.Data
	if !strings.HasPrefix(data, "lang:") {
		return
	}
	lang := strings.TrimPrefix(data, "lang:")
	if !i18n.IsSupported(lang) {
		return
	}

	userID := query.From.ID
	if _, err := b.store.UpsertUserPreference(ctx, &store.UpsertUserPreference{
		UserID:   userID,
		Language: lang,
	}); err != nil {
		slog.Error("failed to save language preference", "user_id", userID, "error", err)
		return
	}

	if query.Message != nil {
		edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, i18n.T(lang, "lang_changed"))
		if _, err := b.api.Send(edit); err != nil {
			slog.Warn("failed to edit language message", "error", err)
		}
	}
}

// language returns the user's preferred language, defaulting on any failure.
func (b *Bot) language(ctx context.Context, userID int64) string {
	pref, err := b.store.GetUserPreference(ctx, userID)
	if err != nil || pref == nil {
		return i18n.DefaultLanguage
	}
	if !i18n.IsSupported(pref.Language) {
		return i18n.DefaultLanguage
	}
	return pref.Language
}

// isSkipButton matches the skip button label in any supported language, so
// a user who switched languages mid-flow is still understood.
func (b *Bot) isSkipButton(text string) bool {
	lower := strings.ToLower(text)
	for lang := range i18n.Languages {
		if lower == strings.ToLower(i18n.T(lang, "btn_skip")) {
			return true
		}
	}
	return false
}

// downloadLargestPhoto fetches the highest-resolution size of a photo
// message and returns its bytes together with the opaque file reference.
func (b *Bot) downloadLargestPhoto(ctx context.Context, photos []tgbotapi.PhotoSize) ([]byte, string, error) {
	largest := photos[len(photos)-1]

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: largest.FileID})
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to resolve photo file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to build download request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to download photo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("photo download returned %d", resp.StatusCode)
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read photo body")
	}
	return image, largest.FileID, nil
}
