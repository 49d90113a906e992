package services

import (
	"context"

	"sendcash-backend/internal/metrics"
	"sendcash-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// PaymentEventSink receives every stored payment (NATS, websocket feed)
type PaymentEventSink interface {
	Name() string
	PublishPayment(ctx context.Context, payment *models.Payment) error
}

// fanOut publishes to every sink; a failing sink is logged and skipped
type fanOut struct {
	sinks []PaymentEventSink
	log   *logrus.Logger
}

func (f *fanOut) publish(ctx context.Context, payment *models.Payment) {
	for _, sink := range f.sinks {
		if err := sink.PublishPayment(ctx, payment); err != nil {
			metrics.EventsPublished.WithLabelValues(sink.Name(), "failed").Inc()
			f.log.WithFields(logrus.Fields{
				"sink":    sink.Name(),
				"tx_hash": payment.TxHash,
				"error":   err.Error(),
			}).Warn("payment event publish failed")
			continue
		}
		metrics.EventsPublished.WithLabelValues(sink.Name(), "ok").Inc()
	}
}
