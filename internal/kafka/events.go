package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every message written by the service.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType string, payload interface{}, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}

// ErrMalformedPayload marks a payload no retry can decode.
var ErrMalformedPayload = errors.New("malformed payload")

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

type BookingEvent struct {
	BookingID          int64      `json:"booking_id"`
	Token              string     `json:"token"`
	UserID             int64      `json:"user_id"`
	OfferID            int64      `json:"offer_id"`
	StockID            int64      `json:"stock_id"`
	VenueID            int64      `json:"venue_id"`
	Quantity           int        `json:"quantity"`
	Amount             int64      `json:"amount"`
	Status             string     `json:"status"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	WasUsed            bool       `json:"was_used,omitempty"`
	AfterCancellation  bool       `json:"after_cancellation,omitempty"`
	DateUsed           *time.Time `json:"date_used,omitempty"`
}

type CollectiveBookingEvent struct {
	CollectiveBookingID int64      `json:"collective_booking_id"`
	CollectiveStockID   int64      `json:"collective_stock_id"`
	VenueID             int64      `json:"venue_id"`
	InstitutionID       int64      `json:"institution_id"`
	Amount              int64      `json:"amount"`
	DateUsed            *time.Time `json:"date_used,omitempty"`
}

type UserActivatedEvent struct {
	UserID      int64  `json:"user_id"`
	DepositID   int64  `json:"deposit_id"`
	DepositType string `json:"deposit_type"`
	Amount      int64  `json:"amount"`
}

// OfferUpdatedEvent is produced by offer management. VenueIDs reindexes
// every offer of the venues, e.g. after a venue or offerer change.
type OfferUpdatedEvent struct {
	OfferIDs []int64 `json:"offer_ids"`
	VenueIDs []int64 `json:"venue_ids,omitempty"`
	Reason   string  `json:"reason"`
}
