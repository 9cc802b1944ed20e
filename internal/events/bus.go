// Package events fans register events out to in-process subscribers (the
// kitchen display hub) and to optional external sinks such as Kafka.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Kind names what happened.
type Kind string

const (
	KindTicketCreated    Kind = "ticket.created"
	KindTicketReadyToPay Kind = "ticket.ready_to_pay"
	KindPaymentProcessed Kind = "payment.processed"
)

// Event is one register event.
type Event struct {
	ID          uuid.UUID        `json:"id"`
	Kind        Kind             `json:"kind"`
	RegisterID  string           `json:"register_id"`
	SaleID      *int64           `json:"sale_id,omitempty"`
	ComandaID   *int64           `json:"comanda_id,omitempty"`
	PreorderID  *int64           `json:"preorder_id,omitempty"`
	DailyNumber *int             `json:"daily_number,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	At          time.Time        `json:"at"`
}

// Sink receives every published event. Satisfied by *KafkaSink.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Bus delivers events to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]chan Event
	next       uint64
	sinks      []Sink
	registerID string
	logger     logrus.FieldLogger
}

// NewBus creates a bus stamping events with registerID.
func NewBus(registerID string, logger logrus.FieldLogger, sinks ...Sink) *Bus {
	return &Bus{
		subs:       make(map[uint64]chan Event),
		sinks:      sinks,
		registerID: registerID,
		logger:     logger.WithField("component", "events"),
	}
}

// Subscribe returns a channel of future events and a cancel func that
// closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish stamps e and hands it to every subscriber and sink. Sink failures
// are logged and never returned: events are notifications, not part of the
// checkout.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.RegisterID == "" {
		e.RegisterID = b.registerID
	}

	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.WithField("kind", e.Kind).Warn("subscriber buffer full, event dropped")
		}
	}
	b.mu.RUnlock()

	for _, s := range b.sinks {
		if err := s.Write(ctx, e); err != nil {
			b.logger.WithFields(logrus.Fields{
				"kind":     e.Kind,
				"event_id": e.ID,
				"error":    err.Error(),
			}).Error("event sink write failed")
		}
	}
}
