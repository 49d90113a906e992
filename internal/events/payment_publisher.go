package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sendcash-backend/internal/models"

	"github.com/google/uuid"
)

// Publisher raw subject publisher; *clients.NATSClient satisfies it
type Publisher interface {
	Publish(subject string, data []byte) error
}

// PaymentStoredEvent message published on every stored payment
type PaymentStoredEvent struct {
	ID           string               `json:"id"`
	Event        string               `json:"event"`
	TxHash       string               `json:"txHash"`
	FromAddress  string               `json:"fromAddress"`
	ToAddress    string               `json:"toAddress"`
	FromUsername *string              `json:"fromUsername,omitempty"`
	ToUsername   *string              `json:"toUsername,omitempty"`
	TokenAddress string               `json:"tokenAddress"`
	Amount       string               `json:"amount"`
	Fee          string               `json:"fee"`
	Status       models.PaymentStatus `json:"status"`
	CreatedAt    int64                `json:"createdAt"`
	PublishedAt  int64                `json:"publishedAt"`
}

// NATSPaymentPublisher publishes stored payments to <subject>.<status>
type NATSPaymentPublisher struct {
	publisher Publisher
	subject   string
}

// NewNATSPaymentPublisher subject defaults to sendcash.payments.stored
func NewNATSPaymentPublisher(publisher Publisher, subject string) *NATSPaymentPublisher {
	if subject == "" {
		subject = "sendcash.payments.stored"
	}
	return &NATSPaymentPublisher{publisher: publisher, subject: subject}
}

// Name sink label for metrics
func (p *NATSPaymentPublisher) Name() string { return "nats" }

// Subject full subject a payment with this status is published on
func (p *NATSPaymentPublisher) Subject(status models.PaymentStatus) string {
	return p.subject + "." + string(status)
}

// PublishPayment serializes and publishes; NATS publish is fire-and-forget
func (p *NATSPaymentPublisher) PublishPayment(_ context.Context, payment *models.Payment) error {
	data, err := json.Marshal(PaymentStoredEvent{
		ID:           uuid.New().String(),
		Event:        "payment.stored",
		TxHash:       payment.TxHash,
		FromAddress:  payment.FromAddress,
		ToAddress:    payment.ToAddress,
		FromUsername: payment.FromUsername,
		ToUsername:   payment.ToUsername,
		TokenAddress: payment.TokenAddress,
		Amount:       payment.Amount,
		Fee:          payment.Fee,
		Status:       payment.Status,
		CreatedAt:    payment.CreatedAt,
		PublishedAt:  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	if err := p.publisher.Publish(p.Subject(payment.Status), data); err != nil {
		return fmt.Errorf("publish payment event: %w", err)
	}
	return nil
}
