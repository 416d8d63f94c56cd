// Package bgcheck hands background check requests to the vendor integration
// through a Kafka topic. The vendor's result arrives through a separate callback.
package bgcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Producer is the asynchronous half of *kgo.Client.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Request is the event published for each initiated check. Contact details
// stay out of the event; the vendor integration looks them up by application id.
type Request struct {
	ApplicationID     string    `json:"application_id"`
	ExternalSubjectID string    `json:"external_subject_id"`
	LicenseNumber     string    `json:"license_number"`
	LicenseState      string    `json:"license_state"`
	RequestedAt       time.Time `json:"requested_at"`
	RequestID         string    `json:"request_id,omitempty"`
}

// KafkaInitiator publishes check requests without waiting for the broker.
type KafkaInitiator struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaInitiator(producer Producer, topic string, logger *slog.Logger) *KafkaInitiator {
	return &KafkaInitiator{producer: producer, topic: topic, logger: logger}
}

// Initiate enqueues the request and returns. Delivery failures are logged by the
// promise; the application keeps its pending marker so an operator can retry.
func (k *KafkaInitiator) Initiate(ctx context.Context, app *models.Application) error {
	payload, err := json.Marshal(Request{
		ApplicationID:     app.ID.String(),
		ExternalSubjectID: app.ExternalSubjectID,
		LicenseNumber:     app.LicenseNumber,
		LicenseState:      app.LicenseState,
		RequestedAt:       requestcontext.Now(ctx),
		RequestID:         requestcontext.RequestID(ctx),
	})
	if err != nil {
		return fmt.Errorf("encode background check request: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(app.ID.String()),
		Value: payload,
	}
	appID := app.ID.String()
	k.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Error("background check request not delivered",
				"application_id", appID, "topic", k.topic, "error", err)
		}
	})
	return nil
}
