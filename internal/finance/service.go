package finance

import (
	"context"
	"errors"
	"time"

	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrBookingNotFound       = errors.New("booking not found")
	ErrBookingNotUsed        = errors.New("booking is not used")
	ErrEarlierEventNotPriced = errors.New("an earlier event of the pricing point is not priced yet")
	ErrNothingToReverse      = errors.New("no processed pricing to reverse")
	ErrBatchExists           = errors.New("a cashflow batch already exists for this cutoff")
	ErrBatchNotFound         = errors.New("cashflow batch not found")
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrGenerationInProgress  = errors.New("cashflow or invoice generation already in progress")
)

// BookingRef points at either an individual or a collective booking.
type BookingRef struct {
	BookingID           int64
	CollectiveBookingID int64
}

func Individual(bookingID int64) BookingRef { return BookingRef{BookingID: bookingID} }

func Collective(bookingID int64) BookingRef { return BookingRef{CollectiveBookingID: bookingID} }

func (r BookingRef) IsCollective() bool { return r.CollectiveBookingID != 0 }

func (r BookingRef) where(q *bun.SelectQuery) *bun.SelectQuery {
	if r.IsCollective() {
		return q.Where("collective_booking_id = ?", r.CollectiveBookingID)
	}
	return q.Where("booking_id = ?", r.BookingID)
}

func (r BookingRef) ids() (*int64, *int64) {
	if r.IsCollective() {
		id := r.CollectiveBookingID
		return nil, &id
	}
	id := r.BookingID
	return &id, nil
}

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error

	GetBooking(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetCollectiveBooking(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error)
	PricingPointLinkAt(ctx context.Context, venueID int64, t time.Time) (*models.VenuePricingPointLink, error)

	CreateEvent(ctx context.Context, e *models.FinanceEvent) error
	UpdateEvent(ctx context.Context, e *models.FinanceEvent, columns ...string) error
	ListEventsOf(ctx context.Context, ref BookingRef) ([]*models.FinanceEvent, error)
	ListPendingEvents(ctx context.Context, limit int) ([]*models.FinanceEvent, error)
	ListEventsToPrice(ctx context.Context, limit int) ([]*models.FinanceEvent, error)
	HasEarlierUnpricedEvent(ctx context.Context, e *models.FinanceEvent) (bool, error)

	ListPricingsOf(ctx context.Context, ref BookingRef) ([]*models.Pricing, error)
	YearRevenue(ctx context.Context, pricingPointID int64, from, to time.Time) (int64, error)
	ListCustomRules(ctx context.Context, offerID, venueID, offererID int64) ([]*models.CustomReimbursementRule, error)
	CreatePricing(ctx context.Context, p *models.Pricing) error
	SetPricingStatus(ctx context.Context, pricingIDs []int64, status models.PricingStatus) error

	CountBatches(ctx context.Context) (int, error)
	CreateBatch(ctx context.Context, b *models.CashflowBatch) error
	GetBatch(ctx context.Context, batchID int64) (*models.CashflowBatch, error)
	BatchExists(ctx context.Context, cutoff time.Time) (bool, error)
	ListPayablePricings(ctx context.Context, cutoff time.Time) ([]PayablePricing, error)
	CreateCashflow(ctx context.Context, c *models.Cashflow, pricingIDs []int64) error
	ListBatchCashflows(ctx context.Context, batchID int64, status models.CashflowStatus) ([]*models.Cashflow, error)
	SetCashflowStatus(ctx context.Context, cashflowIDs []int64, status models.CashflowStatus) (int, error)
	ListCashflowPricings(ctx context.Context, cashflowIDs []int64) ([]*models.Pricing, error)

	CountInvoices(ctx context.Context) (int, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice, cashflowIDs []int64) error
	MarkBookingsReimbursed(ctx context.Context, pricingIDs []int64, at time.Time) error
	GetInvoiceByReference(ctx context.Context, reference string) (*models.Invoice, error)
	ListInvoiceDetails(ctx context.Context, invoiceID int64) ([]InvoiceDetail, error)

	ListOffererRevenue(ctx context.Context, offererID int64, from, to time.Time) ([]RevenueRow, error)
}

var _ Store = (*DB)(nil)

type Options struct {
	PricingLockTTL  time.Duration
	CashflowLockTTL time.Duration
	InvoiceDir      string
	InvoiceFont     string
}

// Service runs the reimbursement pipeline: events, pricings, cashflows and invoices.
type Service struct {
	Store   Store
	Locker  lock.Locker
	Logger  *logger.Logger
	Options Options
	Now     func() time.Time
}

func NewService(store Store, locker lock.Locker, log *logger.Logger, opts Options) *Service {
	return &Service{Store: store, Locker: locker, Logger: log, Options: opts, Now: time.Now}
}
