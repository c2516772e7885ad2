package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"eventgate/internal/registration"
)

// TypeConfirmation is the message type for confirmation emails.
const TypeConfirmation = "confirmation"

type confirmationBody struct {
	RegistrationID int64 `json:"registration_id"`
}

// Notifier defers confirmation emails to a worker by publishing them to a queue.
type Notifier struct {
	Queue Queue
}

// SendConfirmation publishes a confirmation job for reg.
func (n Notifier) SendConfirmation(ctx context.Context, reg registration.Registration) error {
	msg, err := NewMessage(TypeConfirmation, confirmationBody{RegistrationID: reg.ID})
	if err != nil {
		return err
	}
	if err := n.Queue.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish confirmation: %w", err)
	}
	return nil
}

// Loader fetches the registration a job refers to.
type Loader interface {
	Get(ctx context.Context, id int64) (*registration.Registration, error)
}

// Worker consumes confirmation jobs and hands them to a notifier that sends mail.
type Worker struct {
	queue    Queue
	loader   Loader
	notifier registration.Notifier
	log      zerolog.Logger
}

// NewWorker creates a worker.
func NewWorker(q Queue, loader Loader, notifier registration.Notifier, log zerolog.Logger) *Worker {
	return &Worker{queue: q, loader: loader, notifier: notifier, log: log.With().Str("component", "mail_worker").Logger()}
}

// Run processes messages until ctx is cancelled or the queue closes.
// Failed jobs are logged and dropped.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			w.log.Error().Err(err).Str("message_id", msg.ID).Msg("job failed")
		}
	}
	w.log.Info().Msg("worker stopped")
	return nil
}

// Handle processes one message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg Message) error {
	if msg.Type != TypeConfirmation {
		w.log.Debug().Str("type", msg.Type).Msg("skipping message")
		return nil
	}
	var body confirmationBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return fmt.Errorf("decode confirmation: %w", err)
	}
	reg, err := w.loader.Get(ctx, body.RegistrationID)
	if err != nil {
		return fmt.Errorf("load registration %d: %w", body.RegistrationID, err)
	}
	if reg == nil {
		return fmt.Errorf("registration %d not found", body.RegistrationID)
	}
	return w.notifier.SendConfirmation(ctx, *reg)
}
