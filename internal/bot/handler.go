package bot

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
	"shelf/internal/ingest"
	"shelf/internal/storage"
	"shelf/internal/tagging"
)

const (
	welcomeMessage = "Welcome to Shelf! Send me a link, a book (\"Dune by Frank Herbert\") or a note and I'll save it for later.\n\n/list shows your latest items."
	failureMessage = "Sorry, something went wrong while saving that. Please try again."
	listLimit      = 10
)

// Ingester saves raw input as an item.
type Ingester interface {
	Ingest(ctx context.Context, text string) (*domain.Item, error)
}

// Lister reads saved items.
type Lister interface {
	ListItems(ctx context.Context, filter storage.ListFilter) ([]domain.Item, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot    *tgbot.Bot
	ingest Ingester
	items  Lister
	log    logrus.FieldLogger
}

// NewHandler creates the bot and registers its handlers.
func NewHandler(token string, ingester Ingester, items Lister, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		ingest: ingester,
		items:  items,
		log:    log,
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.saveHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/list", tgbot.MatchTypePrefix, h.listHandler)

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// Start polls for updates until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped")
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.reply(ctx, b, update.Message, welcomeMessage)
}

func (h *Handler) listHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	items, err := h.items.ListItems(ctx, storage.ListFilter{Limit: listLimit})
	if err != nil {
		h.log.WithError(err).Error("Failed to list items")
		h.reply(ctx, b, update.Message, failureMessage)
		return
	}
	h.reply(ctx, b, update.Message, FormatList(items))
}

// saveHandler ingests any message that is not a command.
func (h *Handler) saveHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	log := h.log.WithField("chat_id", msg.Chat.ID)

	item, err := h.ingest.Ingest(ctx, msg.Text)
	switch {
	case ingest.IsInputError(err):
		h.reply(ctx, b, msg, err.Error())
		return
	case err != nil:
		log.WithError(err).Error("Failed to save item")
		h.reply(ctx, b, msg, failureMessage)
		return
	}
	log.WithFields(logrus.Fields{"item_id": item.ID, "metadata_status": item.MetadataStatus}).Info("Item saved from chat")
	h.reply(ctx, b, msg, FormatSaved(*item))
}

func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", msg.Chat.ID).Error("Failed to send message")
	}
}

// FormatSaved renders the confirmation for a newly saved item.
func FormatSaved(item domain.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Saved: %s\n", item.Title)
	fmt.Fprintf(&sb, "Type: %s", item.Type)
	if item.ReadingTime != nil {
		fmt.Fprintf(&sb, " · %d min", *item.ReadingTime)
	}
	if item.MetadataStatus == domain.MetadataFailed {
		sb.WriteString("\nCould not fetch details for this one.")
	}
	if tags := tagNames(item); tags != "" {
		sb.WriteString("\nTags: " + tags)
	}
	if item.URL != "" {
		sb.WriteString("\n" + item.URL)
	}
	return sb.String()
}

// FormatList renders items one per line, topic tags as hashtags.
func FormatList(items []domain.Item) string {
	if len(items) == 0 {
		return "Nothing saved yet."
	}
	var sb strings.Builder
	sb.WriteString("Latest items:\n")
	for i, item := range items {
		fmt.Fprintf(&sb, "\n%d. %s [%s]", i+1, item.Title, item.Type)
		for _, tag := range tagging.TopicTags(item) {
			sb.WriteString(" #" + tag.Slug)
		}
	}
	return sb.String()
}

func tagNames(item domain.Item) string {
	var names []string
	for _, tag := range tagging.TopicTags(item) {
		names = append(names, tag.Name)
	}
	return strings.Join(names, ", ")
}
