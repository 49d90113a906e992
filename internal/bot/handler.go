package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sendcash-backend/internal/clients"
	"sendcash-backend/internal/services"
	"sendcash-backend/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const historyLimit = 5

const helpText = "👋 SendCash bot\n\n" +
	"/link <username> - receive payment notifications for your username\n" +
	"/whois <username|address> - look up a SendCash user\n" +
	"/history - your last 5 payments"

// Handler answers chat commands. Replies go through the injected transport.
type Handler struct {
	transport clients.Transport
	usernames *services.UsernameService
	payments  *services.PaymentService
	formatter *services.NotificationFormatter
	log       *logrus.Logger
}

// NewHandler creates a new bot command handler
func NewHandler(
	transport clients.Transport,
	usernames *services.UsernameService,
	payments *services.PaymentService,
	formatter *services.NotificationFormatter,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		transport: transport,
		usernames: usernames,
		payments:  payments,
		formatter: formatter,
		log:       log,
	}
}

// Run consumes updates until ctx is done or the channel closes
func (h *Handler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate dispatches one update; non-command messages get the help text
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		h.reply(ctx, chatID, helpText)
	case "link":
		h.handleLink(ctx, chatID, args)
	case "whois":
		h.handleWhois(ctx, chatID, args)
	case "history":
		h.handleHistory(ctx, chatID)
	default:
		if msg.Chat.IsPrivate() {
			h.reply(ctx, chatID, helpText)
		}
	}
}

func (h *Handler) handleLink(ctx context.Context, chatID int64, args string) {
	if args == "" {
		h.reply(ctx, chatID, "Usage: /link <username>")
		return
	}
	resolved, err := h.usernames.LinkTelegram(ctx, args, chatID)
	if err != nil {
		h.reply(ctx, chatID, h.describeError(err, chatID, "link"))
		return
	}
	h.log.WithFields(logrus.Fields{
		"chat_id":  chatID,
		"username": resolved.Username,
	}).Info("telegram chat linked")
	h.reply(ctx, chatID, fmt.Sprintf("✅ Linked to @%s (%s). You will be notified about incoming payments.",
		resolved.Username, utils.ShortAddress(resolved.Address)))
}

func (h *Handler) handleWhois(ctx context.Context, chatID int64, args string) {
	if args == "" {
		h.reply(ctx, chatID, "Usage: /whois <username|address>")
		return
	}
	resolved, err := h.usernames.Resolve(ctx, args)
	if err != nil {
		h.reply(ctx, chatID, h.describeError(err, chatID, "whois"))
		return
	}
	text := fmt.Sprintf("👤 @%s\n%s", resolved.Username, resolved.Address)
	if resolved.IsPremium {
		text += "\n⭐ Premium"
	}
	h.reply(ctx, chatID, text)
}

func (h *Handler) handleHistory(ctx context.Context, chatID int64) {
	user, err := h.usernames.UsernameForChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.reply(ctx, chatID, "This chat is not linked yet. Use /link <username> first.")
			return
		}
		h.reply(ctx, chatID, h.describeError(err, chatID, "history"))
		return
	}

	payments, err := h.payments.ListByAddress(ctx, user.Address)
	if err != nil {
		h.reply(ctx, chatID, h.describeError(err, chatID, "history"))
		return
	}
	if len(payments) == 0 {
		h.reply(ctx, chatID, "No payments yet.")
		return
	}
	payments = payments[:min(historyLimit, len(payments))]

	var b strings.Builder
	fmt.Fprintf(&b, "📜 Last payments for @%s:\n", user.Username)
	for _, p := range payments {
		b.WriteString("\n")
		b.WriteString(h.formatter.FormatHistoryLine(p))
	}
	h.reply(ctx, chatID, b.String())
}

func (h *Handler) describeError(err error, chatID int64, command string) string {
	switch {
	case errors.Is(err, services.ErrValidation):
		return "❌ " + strings.TrimPrefix(err.Error(), services.ErrValidation.Error()+": ")
	case errors.Is(err, services.ErrNotFound):
		return "🤷 Not found."
	default:
		h.log.WithFields(logrus.Fields{
			"chat_id": chatID,
			"command": command,
			"error":   err.Error(),
		}).Error("bot command failed")
		return "⚠️ Something went wrong, please try again later."
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.transport.Send(ctx, chatID, text); err != nil {
		h.log.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err.Error(),
		}).Warn("failed to send bot reply")
	}
}
