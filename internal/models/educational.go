package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type CollectiveBookingStatus string

const (
	CollectiveBookingPending    CollectiveBookingStatus = "PENDING"
	CollectiveBookingConfirmed  CollectiveBookingStatus = "CONFIRMED"
	CollectiveBookingUsed       CollectiveBookingStatus = "USED"
	CollectiveBookingCancelled  CollectiveBookingStatus = "CANCELLED"
	CollectiveBookingReimbursed CollectiveBookingStatus = "REIMBURSED"
)

type CollectiveCancellationReason string

const (
	CollectiveCancelledByOfferer     CollectiveCancellationReason = "OFFERER"
	CollectiveCancelledByInstitution CollectiveCancellationReason = "EDUCATIONAL_INSTITUTION"
	CollectiveCancelledExpired       CollectiveCancellationReason = "EXPIRED"
	CollectiveCancelledBySupport     CollectiveCancellationReason = "BACKOFFICE"
)

type EducationalInstitution struct {
	bun.BaseModel `bun:"table:educational_institutions"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	InstitutionID string `bun:"institution_id,unique,notnull" json:"uai"`
	Name          string `bun:"name,notnull" json:"name"`
	Email         string `bun:"email,nullzero" json:"email,omitempty"`
}

type EducationalDeposit struct {
	bun.BaseModel `bun:"table:educational_deposits"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	InstitutionID     int64     `bun:"educational_institution_id,notnull" json:"institution_id"`
	EducationalYearID string    `bun:"educational_year_id,notnull" json:"educational_year_id"`
	Amount            int64     `bun:"amount,notnull" json:"amount"`
	IsFinal           bool      `bun:"is_final" json:"is_final"`
	DateCreated       time.Time `bun:"date_created,notnull" json:"date_created"`
}

type CollectiveOffer struct {
	bun.BaseModel `bun:"table:collective_offers"`

	ID         int64                 `bun:"id,pk,autoincrement" json:"id"`
	VenueID    int64                 `bun:"venue_id,notnull" json:"venue_id"`
	Name       string                `bun:"name,notnull" json:"name"`
	IsActive   bool                  `bun:"is_active" json:"is_active"`
	Validation OfferValidationStatus `bun:"validation,notnull" json:"validation"`

	Venue *Venue `bun:"rel:belongs-to,join:venue_id=id" json:"-"`
}

type CollectiveStock struct {
	bun.BaseModel `bun:"table:collective_stocks"`

	ID                   int64     `bun:"id,pk,autoincrement" json:"id"`
	CollectiveOfferID    int64     `bun:"collective_offer_id,unique,notnull" json:"collective_offer_id"`
	Price                int64     `bun:"price,notnull" json:"price"`
	NumberOfTickets      int       `bun:"number_of_tickets,notnull" json:"number_of_tickets"`
	BeginningDatetime    time.Time `bun:"beginning_datetime,notnull" json:"beginning_datetime"`
	EndDatetime          time.Time `bun:"end_datetime,notnull" json:"end_datetime"`
	BookingLimitDatetime time.Time `bun:"booking_limit_datetime,notnull" json:"booking_limit_datetime"`

	CollectiveOffer *CollectiveOffer `bun:"rel:belongs-to,join:collective_offer_id=id" json:"-"`
}

type CollectiveBooking struct {
	bun.BaseModel `bun:"table:collective_bookings"`

	ID                    int64                        `bun:"id,pk,autoincrement" json:"id"`
	CollectiveStockID     int64                        `bun:"collective_stock_id,notnull" json:"collective_stock_id"`
	VenueID               int64                        `bun:"venue_id,notnull" json:"venue_id"`
	OffererID             int64                        `bun:"offerer_id,notnull" json:"offerer_id"`
	InstitutionID         int64                        `bun:"educational_institution_id,notnull" json:"institution_id"`
	EducationalYearID     string                       `bun:"educational_year_id,notnull" json:"educational_year_id"`
	RedactorEmail         string                       `bun:"redactor_email,notnull" json:"redactor_email"`
	Status                CollectiveBookingStatus      `bun:"status,notnull" json:"status"`
	DateCreated           time.Time                    `bun:"date_created,notnull" json:"date_created"`
	ConfirmationLimitDate time.Time                    `bun:"confirmation_limit_date,notnull" json:"confirmation_limit_date"`
	ConfirmationDate      *time.Time                   `bun:"confirmation_date" json:"confirmation_date,omitempty"`
	DateUsed              *time.Time                   `bun:"date_used" json:"date_used,omitempty"`
	CancellationDate      *time.Time                   `bun:"cancellation_date" json:"cancellation_date,omitempty"`
	CancellationReason    CollectiveCancellationReason `bun:"cancellation_reason,nullzero" json:"cancellation_reason,omitempty"`
	ReimbursementDate     *time.Time                   `bun:"reimbursement_date" json:"reimbursement_date,omitempty"`

	CollectiveStock *CollectiveStock `bun:"rel:belongs-to,join:collective_stock_id=id" json:"-"`
}

// EducationalYearID returns the school year ("2024-2025") containing t.
// School years start on September 1st.
func EducationalYearID(t time.Time) string {
	year := t.Year()
	if t.Month() < time.September {
		year--
	}
	return fmt.Sprintf("%d-%d", year, year+1)
}
