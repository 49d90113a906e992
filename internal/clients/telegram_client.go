package clients

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient Telegram bot transport
type TelegramClient struct {
	api *tgbotapi.BotAPI
}

// NewTelegramClient authenticates the bot token against the Bot API
func NewTelegramClient(token string, debug bool) (*TelegramClient, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot init: %w", err)
	}
	api.Debug = debug
	return &TelegramClient{api: api}, nil
}

// Send delivers plain text. The Bot API call itself is not cancellable, so
// ctx is only checked before sending.
func (c *TelegramClient) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// Updates starts long polling and returns the update channel
func (c *TelegramClient) Updates(timeout int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return c.api.GetUpdatesChan(u)
}

// StopUpdates stops long polling
func (c *TelegramClient) StopUpdates() {
	c.api.StopReceivingUpdates()
}

// BotUsername the bot's own @handle
func (c *TelegramClient) BotUsername() string {
	return c.api.Self.UserName
}
