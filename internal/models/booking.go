package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingUsed       BookingStatus = "USED"
	BookingCancelled  BookingStatus = "CANCELLED"
	BookingReimbursed BookingStatus = "REIMBURSED"
)

type CancellationReason string

const (
	CancelledByBeneficiary CancellationReason = "BENEFICIARY"
	CancelledByOfferer     CancellationReason = "OFFERER"
	CancelledBySupport     CancellationReason = "BACKOFFICE"
	CancelledExpired       CancellationReason = "EXPIRED"
	CancelledFraud         CancellationReason = "FRAUD"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                    int64              `bun:"id,pk,autoincrement" json:"id"`
	Token                 string             `bun:"token,unique,notnull" json:"token"`
	UserID                int64              `bun:"user_id,notnull" json:"user_id"`
	StockID               int64              `bun:"stock_id,notnull" json:"stock_id"`
	OfferID               int64              `bun:"offer_id,notnull" json:"offer_id"`
	VenueID               int64              `bun:"venue_id,notnull" json:"venue_id"`
	OffererID             int64              `bun:"offerer_id,notnull" json:"offerer_id"`
	DepositID             *int64             `bun:"deposit_id" json:"deposit_id,omitempty"`
	Quantity              int                `bun:"quantity,notnull" json:"quantity"`
	Amount                int64              `bun:"amount,notnull" json:"amount"`
	Status                BookingStatus      `bun:"status,notnull" json:"status"`
	DateCreated           time.Time          `bun:"date_created,notnull" json:"date_created"`
	DateUsed              *time.Time         `bun:"date_used" json:"date_used,omitempty"`
	CancellationDate      *time.Time         `bun:"cancellation_date" json:"cancellation_date,omitempty"`
	CancellationReason    CancellationReason `bun:"cancellation_reason,nullzero" json:"cancellation_reason,omitempty"`
	CancellationLimitDate *time.Time         `bun:"cancellation_limit_date" json:"cancellation_limit_date,omitempty"`
	ExpirationDate        *time.Time         `bun:"expiration_date" json:"expiration_date,omitempty"`
	ReimbursementDate     *time.Time         `bun:"reimbursement_date" json:"reimbursement_date,omitempty"`

	Stock *Stock `bun:"rel:belongs-to,join:stock_id=id" json:"-"`
}

// TotalAmount is the unit price times the quantity, in cents.
func (b *Booking) TotalAmount() int64 {
	return b.Amount * int64(b.Quantity)
}

func (b *Booking) IsActive() bool {
	return b.Status == BookingConfirmed || b.Status == BookingUsed || b.Status == BookingReimbursed
}
