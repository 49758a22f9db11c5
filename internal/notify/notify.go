// Package notify carries notification intents out of the scheduling core.
// Delivery (email, SMS, in-app) belongs to whoever consumes them.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const KindCancelledDueToLeave = "appointment_cancelled_due_to_leave"

type Intent struct {
	Recipient uuid.UUID      `json:"recipient"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
}

// Publisher hands intents to the delivery collaborator. A returned error
// means none of the batch may be assumed delivered; callers re-publish the
// whole batch, so consumers must tolerate duplicates.
type Publisher interface {
	Publish(ctx context.Context, intents ...Intent) error
}

// LogPublisher writes intents to the structured log. Used when no broker is
// configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, intents ...Intent) error {
	for _, in := range intents {
		p.log.Info("notification intent",
			zap.String("kind", in.Kind),
			zap.String("recipient", in.Recipient.String()),
			zap.Any("payload", in.Payload))
	}
	return nil
}

// Recorder keeps published intents in memory.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
	failing error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, intents ...Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing != nil {
		return r.failing
	}
	r.intents = append(r.intents, intents...)
	return nil
}

// FailWith makes every Publish return err until called again with nil.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = err
}

func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Intent(nil), r.intents...)
}
