package bot

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/db"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/repository"
	"sendcash-backend/internal/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const (
	addrAlice = "0x1111111111111111111111111111111111111111"
	addrBob   = "0x2222222222222222222222222222222222222222"
	tokenUSDC = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (r *recordingTransport) Send(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[chatID] = append(r.sent[chatID], text)
	return nil
}

func (r *recordingTransport) last(t *testing.T, chatID int64) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.sent[chatID]
	if len(msgs) == 0 {
		t.Fatalf("no reply to chat %d", chatID)
	}
	return msgs[len(msgs)-1]
}

type botEnv struct {
	handler   *Handler
	transport *recordingTransport
	usernames *services.UsernameService
	payments  *services.PaymentService
}

func newBotEnv(t *testing.T) *botEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	database, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	transport := &recordingTransport{sent: map[int64][]string{}}
	usernames := services.NewUsernameService(repository.NewUsernameRepository(database), nil, logger)
	payments := services.NewPaymentService(
		repository.NewPaymentRepository(database),
		repository.NewReceiptRepository(database),
		usernames, nil, "https://sendcash.app/receipt", logger,
	)
	formatter := services.NewNotificationFormatter(config.NewTokenTable(nil), "https://basescan.org/tx/%s")

	return &botEnv{
		handler:   NewHandler(transport, usernames, payments, formatter, logger),
		transport: transport,
		usernames: usernames,
		payments:  payments,
	}
}

func command(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestHandler_LinkAndWhois(t *testing.T) {
	ctx := context.Background()
	env := newBotEnv(t)
	if _, err := env.usernames.Register(ctx, "alice", addrAlice); err != nil {
		t.Fatalf("register: %v", err)
	}

	env.handler.HandleUpdate(ctx, command(42, "/link"))
	if got := env.transport.last(t, 42); !strings.Contains(got, "Usage: /link") {
		t.Errorf("link without args: %q", got)
	}

	env.handler.HandleUpdate(ctx, command(42, "/link @Alice"))
	if got := env.transport.last(t, 42); !strings.Contains(got, "Linked to @alice (0x1111...1111)") {
		t.Errorf("link reply: %q", got)
	}
	chatID, err := env.usernames.ChatIDForAddress(ctx, addrAlice)
	if err != nil || chatID != 42 {
		t.Fatalf("chat not linked: %d %v", chatID, err)
	}

	// another chat cannot take the link over
	env.handler.HandleUpdate(ctx, command(43, "/link alice"))
	if got := env.transport.last(t, 43); got != "❌ @alice is already linked to another Telegram chat" {
		t.Errorf("takeover reply: %q", got)
	}
	if chatID, _ := env.usernames.ChatIDForAddress(ctx, addrAlice); chatID != 42 {
		t.Errorf("link moved to chat %d", chatID)
	}

	env.handler.HandleUpdate(ctx, command(42, "/link ghost"))
	if got := env.transport.last(t, 42); got != "🤷 Not found." {
		t.Errorf("unknown username: %q", got)
	}

	env.handler.HandleUpdate(ctx, command(7, "/whois "+addrAlice))
	if got := env.transport.last(t, 7); got != "👤 @alice\n"+addrAlice {
		t.Errorf("whois: %q", got)
	}

	env.handler.HandleUpdate(ctx, command(7, "/whois !!"))
	if got := env.transport.last(t, 7); !strings.HasPrefix(got, "❌ invalid username") {
		t.Errorf("whois invalid: %q", got)
	}
}

func TestHandler_History(t *testing.T) {
	ctx := context.Background()
	env := newBotEnv(t)

	env.handler.HandleUpdate(ctx, command(42, "/history"))
	if got := env.transport.last(t, 42); !strings.Contains(got, "not linked") {
		t.Errorf("unlinked history: %q", got)
	}

	if _, err := env.usernames.Register(ctx, "alice", addrAlice); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.usernames.LinkTelegram(ctx, "alice", 42); err != nil {
		t.Fatalf("link: %v", err)
	}

	env.handler.HandleUpdate(ctx, command(42, "/history"))
	if got := env.transport.last(t, 42); got != "No payments yet." {
		t.Errorf("empty history: %q", got)
	}

	for i := 0; i < 7; i++ {
		_, err := env.payments.Store(ctx, services.StorePaymentInput{
			TxHash:       "0x" + strings.Repeat("0", 63) + string(rune('1'+i)),
			FromAddress:  addrAlice,
			ToAddress:    addrBob,
			TokenAddress: tokenUSDC,
			Amount:       "1500000",
			Status:       models.PaymentStatusConfirmed,
			CreatedAt:    1700000000 + int64(i)*60,
		}, "test")
		if err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	env.handler.HandleUpdate(ctx, command(42, "/history"))
	got := env.transport.last(t, 42)
	if !strings.HasPrefix(got, "📜 Last payments for @alice:") {
		t.Errorf("history header: %q", got)
	}
	if n := strings.Count(got, "↗️"); n != historyLimit {
		t.Errorf("history has %d lines, want %d", n, historyLimit)
	}
	if !strings.Contains(got, "sent 1.5 USDC to 0x2222...2222") {
		t.Errorf("history line: %q", got)
	}
}

func TestHandler_HelpAndNonCommands(t *testing.T) {
	ctx := context.Background()
	env := newBotEnv(t)

	env.handler.HandleUpdate(ctx, command(1, "/start"))
	if got := env.transport.last(t, 1); got != helpText {
		t.Errorf("start: %q", got)
	}

	env.handler.HandleUpdate(ctx, command(2, "hello"))
	if got := env.transport.last(t, 2); got != helpText {
		t.Errorf("plain text in private chat: %q", got)
	}

	group := command(3, "hello")
	group.Message.Chat.Type = "group"
	env.handler.HandleUpdate(ctx, group)
	env.handler.HandleUpdate(ctx, tgbotapi.Update{})

	env.transport.mu.Lock()
	defer env.transport.mu.Unlock()
	if len(env.transport.sent[3]) != 0 {
		t.Error("group chatter should be ignored")
	}
}

func TestHandler_RunStopsWhenChannelCloses(t *testing.T) {
	env := newBotEnv(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- command(1, "/help")
	close(updates)

	env.handler.Run(context.Background(), updates)
	if got := env.transport.last(t, 1); got != helpText {
		t.Errorf("help: %q", got)
	}
}
