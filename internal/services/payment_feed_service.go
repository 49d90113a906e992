package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sendcash-backend/internal/metrics"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/utils"
)

// FeedMessage payload pushed to websocket subscribers
type FeedMessage struct {
	Type      string                  `json:"type"` // always "payment"
	Direction models.PaymentDirection `json:"direction"`
	Payment   *models.Payment         `json:"payment"`
	Timestamp int64                   `json:"timestamp"`
}

// FeedClient one websocket connection watching an address
type FeedClient struct {
	ID      string
	Address string
	Send    chan []byte
}

// PaymentFeed live payment fan-out keyed by address
type PaymentFeed struct {
	mu        sync.RWMutex
	clients   map[string]*FeedClient
	byAddress map[string]map[string]bool // address -> clientID set
}

// NewPaymentFeed creates an empty feed
func NewPaymentFeed() *PaymentFeed {
	return &PaymentFeed{
		clients:   make(map[string]*FeedClient),
		byAddress: make(map[string]map[string]bool),
	}
}

// Register subscribes a client to payments sent from or to address
func (f *PaymentFeed) Register(clientID, address string, buffer int) *FeedClient {
	addr := utils.NormalizeAddress(address)
	client := &FeedClient{ID: clientID, Address: addr, Send: make(chan []byte, buffer)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[clientID] = client
	if f.byAddress[addr] == nil {
		f.byAddress[addr] = make(map[string]bool)
	}
	f.byAddress[addr][clientID] = true
	metrics.WebSocketClients.Set(float64(len(f.clients)))
	return client
}

// Unregister removes the client from the feed
func (f *PaymentFeed) Unregister(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	client, ok := f.clients[clientID]
	if !ok {
		return
	}
	delete(f.clients, clientID)
	delete(f.byAddress[client.Address], clientID)
	if len(f.byAddress[client.Address]) == 0 {
		delete(f.byAddress, client.Address)
	}
	metrics.WebSocketClients.Set(float64(len(f.clients)))
}

// ClientCount number of connected clients
func (f *PaymentFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Name implements PaymentEventSink
func (f *PaymentFeed) Name() string { return "websocket" }

// PublishPayment pushes to subscribers of the sender and the receiver.
// Slow clients with a full buffer miss the message.
func (f *PaymentFeed) PublishPayment(_ context.Context, payment *models.Payment) error {
	now := time.Now().Unix()
	if payment.FromAddress == payment.ToAddress {
		return f.push(payment.FromAddress, models.DirectionSent, payment, now)
	}
	if err := f.push(payment.FromAddress, models.DirectionSent, payment, now); err != nil {
		return err
	}
	return f.push(payment.ToAddress, models.DirectionReceived, payment, now)
}

func (f *PaymentFeed) push(address string, direction models.PaymentDirection, payment *models.Payment, ts int64) error {
	f.mu.RLock()
	targets := make([]*FeedClient, 0, len(f.byAddress[address]))
	for id := range f.byAddress[address] {
		targets = append(targets, f.clients[id])
	}
	f.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	data, err := json.Marshal(FeedMessage{
		Type:      "payment",
		Direction: direction,
		Payment:   payment,
		Timestamp: ts,
	})
	if err != nil {
		return err
	}

	for _, client := range targets {
		select {
		case client.Send <- data:
		default:
		}
	}
	return nil
}
