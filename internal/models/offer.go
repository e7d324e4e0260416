package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OfferValidationStatus string

const (
	ValidationDraft    OfferValidationStatus = "DRAFT"
	ValidationPending  OfferValidationStatus = "PENDING"
	ValidationApproved OfferValidationStatus = "APPROVED"
	ValidationRejected OfferValidationStatus = "REJECTED"
)

type Offerer struct {
	bun.BaseModel `bun:"table:offerers"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Siren       string    `bun:"siren,unique,nullzero" json:"siren"`
	IsValidated bool      `bun:"is_validated" json:"is_validated"`
	IsActive    bool      `bun:"is_active" json:"is_active"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Venue struct {
	bun.BaseModel `bun:"table:venues"`

	ID             int64  `bun:"id,pk,autoincrement" json:"id"`
	OffererID      int64  `bun:"offerer_id,notnull" json:"offerer_id"`
	Name           string `bun:"name,notnull" json:"name"`
	Siret          string `bun:"siret,nullzero" json:"siret,omitempty"`
	IsVirtual      bool   `bun:"is_virtual" json:"is_virtual"`
	IsPermanent    bool   `bun:"is_permanent" json:"is_permanent"`
	DepartmentCode string `bun:"department_code,nullzero" json:"department_code,omitempty"`
	BookingEmail   string `bun:"booking_email,nullzero" json:"booking_email,omitempty"`

	Offerer *Offerer `bun:"rel:belongs-to,join:offerer_id=id" json:"-"`
}

type Offer struct {
	bun.BaseModel `bun:"table:offers"`

	ID            int64                 `bun:"id,pk,autoincrement" json:"id"`
	VenueID       int64                 `bun:"venue_id,notnull" json:"venue_id"`
	Name          string                `bun:"name,notnull" json:"name"`
	SubcategoryID string                `bun:"subcategory_id,notnull" json:"subcategory_id"`
	URL           string                `bun:"url,nullzero" json:"url,omitempty"`
	IsActive      bool                  `bun:"is_active" json:"is_active"`
	IsDuo         bool                  `bun:"is_duo" json:"is_duo"`
	Validation    OfferValidationStatus `bun:"validation,notnull" json:"validation"`
	CreatedAt     time.Time             `bun:"created_at,notnull" json:"created_at"`

	Venue  *Venue   `bun:"rel:belongs-to,join:venue_id=id" json:"-"`
	Stocks []*Stock `bun:"rel:has-many,join:id=offer_id" json:"-"`
}

func (o *Offer) Subcategory() Subcategory {
	return SubcategoryByID(o.SubcategoryID)
}

func (o *Offer) IsDigital() bool {
	return o.URL != ""
}

func (o *Offer) IsEvent() bool {
	return o.Subcategory().IsEvent
}

type Stock struct {
	bun.BaseModel `bun:"table:stocks"`

	ID                   int64      `bun:"id,pk,autoincrement" json:"id"`
	OfferID              int64      `bun:"offer_id,notnull" json:"offer_id"`
	Price                int64      `bun:"price,notnull" json:"price"`
	Quantity             *int       `bun:"quantity" json:"quantity,omitempty"`
	DnBookedQuantity     int        `bun:"dn_booked_quantity,notnull,default:0" json:"booked_quantity"`
	BeginningDatetime    *time.Time `bun:"beginning_datetime" json:"beginning_datetime,omitempty"`
	BookingLimitDatetime *time.Time `bun:"booking_limit_datetime" json:"booking_limit_datetime,omitempty"`
	IsSoftDeleted        bool       `bun:"is_soft_deleted" json:"is_soft_deleted"`

	Offer *Offer `bun:"rel:belongs-to,join:offer_id=id" json:"-"`
}

// RemainingQuantity returns -1 when the stock is unlimited.
func (s *Stock) RemainingQuantity() int {
	if s.Quantity == nil {
		return -1
	}
	return *s.Quantity - s.DnBookedQuantity
}

func (s *Stock) HasBookingLimitPassed(now time.Time) bool {
	return s.BookingLimitDatetime != nil && s.BookingLimitDatetime.Before(now)
}

func (s *Stock) IsEventExpired(now time.Time) bool {
	return s.BeginningDatetime != nil && s.BeginningDatetime.Before(now)
}

// IsBookable reports whether at least one item may still be booked at now.
func (s *Stock) IsBookable(now time.Time) bool {
	if s.IsSoftDeleted || s.HasBookingLimitPassed(now) || s.IsEventExpired(now) {
		return false
	}
	return s.RemainingQuantity() != 0
}
