package jobs

import (
	"context"
	"fmt"

	"pcapi/internal/finance"
	"pcapi/internal/kafka"
	"pcapi/internal/logger"
	"pcapi/internal/models"
)

type FinanceEvents interface {
	AddEvent(ctx context.Context, motive models.FinanceEventMotive, ref finance.BookingRef) (*models.FinanceEvent, error)
	CancelEvents(ctx context.Context, motive models.FinanceEventMotive, ref finance.BookingRef) (*models.FinanceEvent, error)
}

type OfferQueue interface {
	EnqueueOffers(ctx context.Context, offerIDs ...int64) error
	EnqueueVenues(ctx context.Context, venueIDs ...int64) error
}

// Handlers turns booking events into finance events and search reindexing.
type Handlers struct {
	Finance FinanceEvents
	Search  OfferQueue
	Logger  *logger.Logger
}

func NewHandlers(fin FinanceEvents, search OfferQueue, log *logger.Logger) *Handlers {
	return &Handlers{Finance: fin, Search: search, Logger: log}
}

// Topics maps each consumed topic to its handler.
func (h *Handlers) Topics() map[string]kafka.Handler {
	return map[string]kafka.Handler{
		kafka.TopicBookingCreated:        h.OnBookingCreated,
		kafka.TopicBookingCancelled:      h.OnBookingCancelled,
		kafka.TopicBookingUsed:           h.OnBookingUsed,
		kafka.TopicBookingUnused:         h.OnBookingUnused,
		kafka.TopicCollectiveBookingUsed: h.OnCollectiveBookingUsed,
		kafka.TopicOfferUpdated:          h.OnOfferUpdated,
	}
}

// Subscribe wires the handlers on the in-process dispatcher.
func (h *Handlers) Subscribe(d *kafka.Dispatcher) {
	for topic, handler := range h.Topics() {
		d.Subscribe(topic, handler)
	}
}

func (h *Handlers) OnBookingCreated(ctx context.Context, env kafka.Envelope) error {
	var e kafka.BookingEvent
	if err := env.Decode(&e); err != nil {
		return fmt.Errorf("failed to decode booking event: %w", err)
	}
	return h.reindex(ctx, e.OfferID)
}

func (h *Handlers) OnBookingCancelled(ctx context.Context, env kafka.Envelope) error {
	var e kafka.BookingEvent
	if err := env.Decode(&e); err != nil {
		return fmt.Errorf("failed to decode booking event: %w", err)
	}
	if e.WasUsed {
		if _, err := h.Finance.CancelEvents(ctx, models.MotiveBookingCancelledAfterUse, finance.Individual(e.BookingID)); err != nil {
			return fmt.Errorf("failed to cancel finance events of booking %d: %w", e.BookingID, err)
		}
	}
	return h.reindex(ctx, e.OfferID)
}

func (h *Handlers) OnBookingUsed(ctx context.Context, env kafka.Envelope) error {
	var e kafka.BookingEvent
	if err := env.Decode(&e); err != nil {
		return fmt.Errorf("failed to decode booking event: %w", err)
	}
	motive := models.MotiveBookingUsed
	if e.AfterCancellation {
		motive = models.MotiveBookingUsedAfterCancellation
	}
	if _, err := h.Finance.AddEvent(ctx, motive, finance.Individual(e.BookingID)); err != nil {
		return fmt.Errorf("failed to add finance event for booking %d: %w", e.BookingID, err)
	}
	if e.AfterCancellation {
		return h.reindex(ctx, e.OfferID)
	}
	return nil
}

func (h *Handlers) OnBookingUnused(ctx context.Context, env kafka.Envelope) error {
	var e kafka.BookingEvent
	if err := env.Decode(&e); err != nil {
		return fmt.Errorf("failed to decode booking event: %w", err)
	}
	if _, err := h.Finance.CancelEvents(ctx, models.MotiveBookingUnused, finance.Individual(e.BookingID)); err != nil {
		return fmt.Errorf("failed to cancel finance events of booking %d: %w", e.BookingID, err)
	}
	return nil
}

func (h *Handlers) OnCollectiveBookingUsed(ctx context.Context, env kafka.Envelope) error {
	var e kafka.CollectiveBookingEvent
	if err := env.Decode(&e); err != nil {
		return fmt.Errorf("failed to decode collective booking event: %w", err)
	}
	if _, err := h.Finance.AddEvent(ctx, models.MotiveCollectiveBookingUsed, finance.Collective(e.CollectiveBookingID)); err != nil {
		return fmt.Errorf("failed to add finance event for collective booking %d: %w", e.CollectiveBookingID, err)
	}
	return nil
}

func (h *Handlers) OnOfferUpdated(ctx context.Context, env kafka.Envelope) error {
	var e kafka.OfferUpdatedEvent
	if err := env.Decode(&e); err != nil {
		return fmt.Errorf("failed to decode offer event: %w", err)
	}
	if len(e.VenueIDs) > 0 {
		if err := h.Search.EnqueueVenues(ctx, e.VenueIDs...); err != nil {
			return fmt.Errorf("failed to queue venues for indexing: %w", err)
		}
	}
	return h.reindex(ctx, e.OfferIDs...)
}

func (h *Handlers) reindex(ctx context.Context, offerIDs ...int64) error {
	if len(offerIDs) == 0 {
		return nil
	}
	if err := h.Search.EnqueueOffers(ctx, offerIDs...); err != nil {
		return fmt.Errorf("failed to queue offers for indexing: %w", err)
	}
	return nil
}
