package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type FinanceEventStatus string

const (
	FinanceEventPending       FinanceEventStatus = "pending"
	FinanceEventReady         FinanceEventStatus = "ready"
	FinanceEventPriced        FinanceEventStatus = "priced"
	FinanceEventCancelled     FinanceEventStatus = "cancelled"
	FinanceEventNotToBePriced FinanceEventStatus = "not to be priced"
)

type FinanceEventMotive string

const (
	MotiveBookingUsed                  FinanceEventMotive = "booking-used"
	MotiveBookingUsedAfterCancellation FinanceEventMotive = "booking-used-after-cancellation"
	MotiveBookingUnused                FinanceEventMotive = "booking-unused"
	MotiveBookingCancelledAfterUse     FinanceEventMotive = "booking-cancelled-after-use"
	MotiveCollectiveBookingUsed        FinanceEventMotive = "collective-booking-used"
	MotiveCollectiveBookingCancelled   FinanceEventMotive = "collective-booking-cancelled-after-use"
)

// IsReversal reports whether the motive undoes an earlier priced event.
func (m FinanceEventMotive) IsReversal() bool {
	return m == MotiveBookingUnused || m == MotiveBookingCancelledAfterUse || m == MotiveCollectiveBookingCancelled
}

type FinanceEvent struct {
	bun.BaseModel `bun:"table:finance_events"`

	ID                  int64              `bun:"id,pk,autoincrement" json:"id"`
	CreationDate        time.Time          `bun:"creation_date,notnull" json:"creation_date"`
	ValueDate           time.Time          `bun:"value_date,notnull" json:"value_date"`
	PricingOrderingDate *time.Time         `bun:"pricing_ordering_date" json:"pricing_ordering_date,omitempty"`
	Status              FinanceEventStatus `bun:"status,notnull" json:"status"`
	Motive              FinanceEventMotive `bun:"motive,notnull" json:"motive"`
	BookingID           *int64             `bun:"booking_id" json:"booking_id,omitempty"`
	CollectiveBookingID *int64             `bun:"collective_booking_id" json:"collective_booking_id,omitempty"`
	VenueID             int64              `bun:"venue_id,notnull" json:"venue_id"`
	PricingPointID      *int64             `bun:"pricing_point_id" json:"pricing_point_id,omitempty"`
}

type PricingStatus string

const (
	PricingValidated PricingStatus = "validated"
	PricingRejected  PricingStatus = "rejected"
	PricingCancelled PricingStatus = "cancelled"
	PricingProcessed PricingStatus = "processed"
	PricingInvoiced  PricingStatus = "invoiced"
)

type PricingLineCategory string

const (
	LineOffererRevenue      PricingLineCategory = "offerer revenue"
	LineOffererContribution PricingLineCategory = "offerer contribution"
)

type Pricing struct {
	bun.BaseModel `bun:"table:pricings"`

	ID                  int64         `bun:"id,pk,autoincrement" json:"id"`
	Status              PricingStatus `bun:"status,notnull" json:"status"`
	CreationDate        time.Time     `bun:"creation_date,notnull" json:"creation_date"`
	ValueDate           time.Time     `bun:"value_date,notnull" json:"value_date"`
	Amount              int64         `bun:"amount,notnull" json:"amount"`
	StandardRule        string        `bun:"standard_rule,nullzero" json:"standard_rule,omitempty"`
	CustomRuleID        *int64        `bun:"custom_rule_id" json:"custom_rule_id,omitempty"`
	Revenue             int64         `bun:"revenue,notnull" json:"revenue"`
	BookingID           *int64        `bun:"booking_id" json:"booking_id,omitempty"`
	CollectiveBookingID *int64        `bun:"collective_booking_id" json:"collective_booking_id,omitempty"`
	EventID             int64         `bun:"event_id,notnull" json:"event_id"`
	VenueID             int64         `bun:"venue_id,notnull" json:"venue_id"`
	PricingPointID      int64         `bun:"pricing_point_id,notnull" json:"pricing_point_id"`

	Lines []*PricingLine `bun:"rel:has-many,join:id=pricing_id" json:"lines,omitempty"`
}

type PricingLine struct {
	bun.BaseModel `bun:"table:pricing_lines"`

	ID        int64               `bun:"id,pk,autoincrement" json:"id"`
	PricingID int64               `bun:"pricing_id,notnull" json:"pricing_id"`
	Amount    int64               `bun:"amount,notnull" json:"amount"`
	Category  PricingLineCategory `bun:"category,notnull" json:"category"`
}

// CustomReimbursementRule overrides the standard rules for an offer, a venue
// or an offerer. Exactly one of Rate and Amount is set.
type CustomReimbursementRule struct {
	bun.BaseModel `bun:"table:custom_reimbursement_rules"`

	ID            int64               `bun:"id,pk,autoincrement" json:"id"`
	OfferID       *int64              `bun:"offer_id" json:"offer_id,omitempty"`
	VenueID       *int64              `bun:"venue_id" json:"venue_id,omitempty"`
	OffererID     *int64              `bun:"offerer_id" json:"offerer_id,omitempty"`
	Subcategories []string            `bun:"subcategories,type:jsonb" json:"subcategories,omitempty"`
	Rate          decimal.NullDecimal `bun:"rate,type:numeric(5,4)" json:"rate,omitempty"`
	Amount        *int64              `bun:"amount" json:"amount,omitempty"`
	TimespanStart time.Time           `bun:"timespan_start,notnull" json:"timespan_start"`
	TimespanEnd   *time.Time          `bun:"timespan_end" json:"timespan_end,omitempty"`
}

func (r *CustomReimbursementRule) IsActiveAt(t time.Time) bool {
	if t.Before(r.TimespanStart) {
		return false
	}
	return r.TimespanEnd == nil || t.Before(*r.TimespanEnd)
}

type VenuePricingPointLink struct {
	bun.BaseModel `bun:"table:venue_pricing_point_links"`

	ID             int64      `bun:"id,pk,autoincrement" json:"id"`
	VenueID        int64      `bun:"venue_id,notnull" json:"venue_id"`
	PricingPointID int64      `bun:"pricing_point_id,notnull" json:"pricing_point_id"`
	TimespanStart  time.Time  `bun:"timespan_start,notnull" json:"timespan_start"`
	TimespanEnd    *time.Time `bun:"timespan_end" json:"timespan_end,omitempty"`
}

type BankAccountStatus string

const (
	BankAccountAccepted BankAccountStatus = "ACCEPTED"
	BankAccountDraft    BankAccountStatus = "DRAFT"
	BankAccountRefused  BankAccountStatus = "REFUSED"
)

type BankAccount struct {
	bun.BaseModel `bun:"table:bank_accounts"`

	ID        int64             `bun:"id,pk,autoincrement" json:"id"`
	OffererID int64             `bun:"offerer_id,notnull" json:"offerer_id"`
	Label     string            `bun:"label,notnull" json:"label"`
	Iban      string            `bun:"iban,notnull" json:"iban"`
	Bic       string            `bun:"bic,notnull" json:"bic"`
	Status    BankAccountStatus `bun:"status,notnull" json:"status"`
}

type VenueBankAccountLink struct {
	bun.BaseModel `bun:"table:venue_bank_account_links"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	VenueID       int64      `bun:"venue_id,notnull" json:"venue_id"`
	BankAccountID int64      `bun:"bank_account_id,notnull" json:"bank_account_id"`
	TimespanStart time.Time  `bun:"timespan_start,notnull" json:"timespan_start"`
	TimespanEnd   *time.Time `bun:"timespan_end" json:"timespan_end,omitempty"`
}

type CashflowStatus string

const (
	CashflowPending     CashflowStatus = "pending"
	CashflowUnderReview CashflowStatus = "under review"
	CashflowAccepted    CashflowStatus = "accepted"
	CashflowRejected    CashflowStatus = "rejected"
)

type CashflowBatch struct {
	bun.BaseModel `bun:"table:cashflow_batches"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	CreationDate time.Time `bun:"creation_date,notnull" json:"creation_date"`
	Cutoff       time.Time `bun:"cutoff,unique,notnull" json:"cutoff"`
	Label        string    `bun:"label,unique,notnull" json:"label"`
}

type Cashflow struct {
	bun.BaseModel `bun:"table:cashflows"`

	ID            int64          `bun:"id,pk,autoincrement" json:"id"`
	CreationDate  time.Time      `bun:"creation_date,notnull" json:"creation_date"`
	Status        CashflowStatus `bun:"status,notnull" json:"status"`
	BankAccountID int64          `bun:"bank_account_id,notnull" json:"bank_account_id"`
	BatchID       int64          `bun:"batch_id,notnull" json:"batch_id"`
	Amount        int64          `bun:"amount,notnull" json:"amount"`
}

type CashflowPricing struct {
	bun.BaseModel `bun:"table:cashflow_pricings"`

	CashflowID int64 `bun:"cashflow_id,pk" json:"cashflow_id"`
	PricingID  int64 `bun:"pricing_id,pk" json:"pricing_id"`
}

type Invoice struct {
	bun.BaseModel `bun:"table:invoices"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Date          time.Time `bun:"date,notnull" json:"date"`
	Reference     string    `bun:"reference,unique,notnull" json:"reference"`
	BankAccountID int64     `bun:"bank_account_id,notnull" json:"bank_account_id"`
	Amount        int64     `bun:"amount,notnull" json:"amount"`

	Lines []*InvoiceLine `bun:"rel:has-many,join:id=invoice_id" json:"lines,omitempty"`
}

type InvoiceLine struct {
	bun.BaseModel `bun:"table:invoice_lines"`

	ID                 int64           `bun:"id,pk,autoincrement" json:"id"`
	InvoiceID          int64           `bun:"invoice_id,notnull" json:"invoice_id"`
	Label              string          `bun:"label,notnull" json:"label"`
	RuleGroup          string          `bun:"rule_group,notnull" json:"rule_group"`
	ContributionAmount int64           `bun:"contribution_amount,notnull" json:"contribution_amount"`
	ReimbursedAmount   int64           `bun:"reimbursed_amount,notnull" json:"reimbursed_amount"`
	Rate               decimal.Decimal `bun:"rate,type:numeric(5,4)" json:"rate"`
}

type InvoiceCashflow struct {
	bun.BaseModel `bun:"table:invoice_cashflows"`

	InvoiceID  int64 `bun:"invoice_id,pk" json:"invoice_id"`
	CashflowID int64 `bun:"cashflow_id,pk" json:"cashflow_id"`
}
