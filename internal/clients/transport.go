package clients

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Transport delivers a rendered message to a chat. The Telegram bot is the
// production implementation; tests plug in fakes.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// LogTransport writes messages to the log instead of a chat. Used when no
// bot token is configured.
type LogTransport struct {
	Log *logrus.Logger
}

// Send implements Transport
func (t LogTransport) Send(_ context.Context, chatID int64, text string) error {
	t.Log.WithFields(logrus.Fields{
		"chat_id": chatID,
		"text":    text,
	}).Info("📨 message (telegram disabled)")
	return nil
}
