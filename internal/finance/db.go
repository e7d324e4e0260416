package finance

import (
	"context"
	"time"

	"pcapi/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

// GetBooking loads an individual booking with its stock, offer and venue.
func (d *DB) GetBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("Stock").
		Relation("Stock.Offer").
		Relation("Stock.Offer.Venue").
		Where("booking.id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *DB) GetCollectiveBooking(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error) {
	var b models.CollectiveBooking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("CollectiveStock").
		Relation("CollectiveStock.CollectiveOffer").
		Where("collective_booking.id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// PricingPointLinkAt returns the pricing point link of a venue active at t.
func (d *DB) PricingPointLinkAt(ctx context.Context, venueID int64, t time.Time) (*models.VenuePricingPointLink, error) {
	var link models.VenuePricingPointLink
	err := d.Bun.NewSelect().
		Model(&link).
		Where("venue_id = ?", venueID).
		Where("timespan_start <= ?", t).
		Where("timespan_end IS NULL OR timespan_end > ?", t).
		OrderExpr("timespan_start DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (d *DB) CreateEvent(ctx context.Context, e *models.FinanceEvent) error {
	_, err := d.Bun.NewInsert().Model(e).Exec(ctx)
	return err
}

func (d *DB) UpdateEvent(ctx context.Context, e *models.FinanceEvent, columns ...string) error {
	_, err := d.Bun.NewUpdate().Model(e).Column(columns...).WherePK().Exec(ctx)
	return err
}

// ListEventsOf returns the events of an individual or collective booking.
func (d *DB) ListEventsOf(ctx context.Context, ref BookingRef) ([]*models.FinanceEvent, error) {
	var events []*models.FinanceEvent
	q := d.Bun.NewSelect().Model(&events).OrderExpr("id ASC")
	q = ref.where(q)
	err := q.Scan(ctx)
	return events, err
}

// ListPricingsOf returns the pricings of a booking, oldest first.
func (d *DB) ListPricingsOf(ctx context.Context, ref BookingRef) ([]*models.Pricing, error) {
	var pricings []*models.Pricing
	q := d.Bun.NewSelect().Model(&pricings).Relation("Lines").OrderExpr("pricing.id ASC")
	q = ref.where(q)
	err := q.Scan(ctx)
	return pricings, err
}

func (d *DB) ListPendingEvents(ctx context.Context, limit int) ([]*models.FinanceEvent, error) {
	var events []*models.FinanceEvent
	err := d.Bun.NewSelect().
		Model(&events).
		Where("status = ?", models.FinanceEventPending).
		OrderExpr("id ASC").
		Limit(limit).
		Scan(ctx)
	return events, err
}

// ListEventsToPrice returns READY events in pricing order.
func (d *DB) ListEventsToPrice(ctx context.Context, limit int) ([]*models.FinanceEvent, error) {
	var events []*models.FinanceEvent
	err := d.Bun.NewSelect().
		Model(&events).
		Where("status = ?", models.FinanceEventReady).
		OrderExpr("pricing_point_id ASC, pricing_ordering_date ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	return events, err
}

// HasEarlierUnpricedEvent reports whether an event of the same pricing point
// sorts before e and is still waiting to be priced.
func (d *DB) HasEarlierUnpricedEvent(ctx context.Context, e *models.FinanceEvent) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.FinanceEvent)(nil)).
		Where("pricing_point_id = ?", *e.PricingPointID).
		Where("status = ?", models.FinanceEventReady).
		Where("id != ?", e.ID).
		Where("pricing_ordering_date < ? OR (pricing_ordering_date = ? AND id < ?)",
			*e.PricingOrderingDate, *e.PricingOrderingDate, e.ID).
		Exists(ctx)
}

// YearRevenue is the individual booking revenue priced for a pricing point
// with a value date in [from, to).
func (d *DB) YearRevenue(ctx context.Context, pricingPointID int64, from, to time.Time) (int64, error) {
	var revenue int64
	err := d.Bun.NewSelect().
		TableExpr("pricing_lines AS pl").
		Join("JOIN pricings AS p ON p.id = pl.pricing_id").
		ColumnExpr("COALESCE(-SUM(pl.amount), 0)").
		Where("p.pricing_point_id = ?", pricingPointID).
		Where("p.collective_booking_id IS NULL").
		Where("p.value_date >= ?", from).
		Where("p.value_date < ?", to).
		Where("p.status NOT IN (?)", bun.In([]models.PricingStatus{models.PricingCancelled, models.PricingRejected})).
		Where("pl.category = ?", models.LineOffererRevenue).
		Scan(ctx, &revenue)
	return revenue, err
}

// ListCustomRules returns the custom rules that may apply to an offer.
func (d *DB) ListCustomRules(ctx context.Context, offerID, venueID, offererID int64) ([]*models.CustomReimbursementRule, error) {
	var rules []*models.CustomReimbursementRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Where("offer_id = ? OR venue_id = ? OR offerer_id = ?", offerID, venueID, offererID).
		OrderExpr("id ASC").
		Scan(ctx)
	return rules, err
}

// CreatePricing stores a pricing and its lines.
func (d *DB) CreatePricing(ctx context.Context, p *models.Pricing) error {
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		return err
	}
	if len(p.Lines) == 0 {
		return nil
	}
	for _, l := range p.Lines {
		l.PricingID = p.ID
	}
	_, err := d.Bun.NewInsert().Model(&p.Lines).Exec(ctx)
	return err
}

func (d *DB) SetPricingStatus(ctx context.Context, pricingIDs []int64, status models.PricingStatus) error {
	if len(pricingIDs) == 0 {
		return nil
	}
	_, err := d.Bun.NewUpdate().
		Model((*models.Pricing)(nil)).
		Set("status = ?", status).
		Where("id IN (?)", bun.In(pricingIDs)).
		Exec(ctx)
	return err
}

func (d *DB) CountBatches(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.CashflowBatch)(nil)).Count(ctx)
}

func (d *DB) CreateBatch(ctx context.Context, b *models.CashflowBatch) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	return err
}

func (d *DB) GetBatch(ctx context.Context, batchID int64) (*models.CashflowBatch, error) {
	var b models.CashflowBatch
	if err := d.Bun.NewSelect().Model(&b).Where("id = ?", batchID).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *DB) BatchExists(ctx context.Context, cutoff time.Time) (bool, error) {
	return d.Bun.NewSelect().Model((*models.CashflowBatch)(nil)).Where("cutoff = ?", cutoff).Exists(ctx)
}

// PayablePricing is a validated pricing together with the bank account
// that will receive it.
type PayablePricing struct {
	PricingID     int64 `bun:"pricing_id"`
	Amount        int64 `bun:"amount"`
	BankAccountID int64 `bun:"bank_account_id"`
}

// ListPayablePricings returns VALIDATED pricings valued before cutoff whose
// venue is linked to an accepted bank account at cutoff.
func (d *DB) ListPayablePricings(ctx context.Context, cutoff time.Time) ([]PayablePricing, error) {
	var rows []PayablePricing
	err := d.Bun.NewRaw(`
		SELECT
			p.id AS pricing_id,
			p.amount AS amount,
			l.bank_account_id AS bank_account_id
		FROM
			pricings p
		JOIN
			venue_bank_account_links l ON l.venue_id = p.venue_id
		JOIN
			bank_accounts ba ON ba.id = l.bank_account_id
		WHERE
			p.status = ?
			AND p.value_date < ?
			AND l.timespan_start <= ?
			AND (l.timespan_end IS NULL OR l.timespan_end > ?)
			AND ba.status = ?
		ORDER BY
			l.bank_account_id, p.id
	`, models.PricingValidated, cutoff, cutoff, cutoff, models.BankAccountAccepted).Scan(ctx, &rows)
	return rows, err
}

func (d *DB) CreateCashflow(ctx context.Context, c *models.Cashflow, pricingIDs []int64) error {
	if _, err := d.Bun.NewInsert().Model(c).Exec(ctx); err != nil {
		return err
	}
	links := make([]*models.CashflowPricing, 0, len(pricingIDs))
	for _, id := range pricingIDs {
		links = append(links, &models.CashflowPricing{CashflowID: c.ID, PricingID: id})
	}
	_, err := d.Bun.NewInsert().Model(&links).Exec(ctx)
	return err
}

func (d *DB) ListBatchCashflows(ctx context.Context, batchID int64, status models.CashflowStatus) ([]*models.Cashflow, error) {
	var cashflows []*models.Cashflow
	err := d.Bun.NewSelect().
		Model(&cashflows).
		Where("batch_id = ?", batchID).
		Where("status = ?", status).
		OrderExpr("bank_account_id ASC, id ASC").
		Scan(ctx)
	return cashflows, err
}

func (d *DB) SetCashflowStatus(ctx context.Context, cashflowIDs []int64, status models.CashflowStatus) (int, error) {
	if len(cashflowIDs) == 0 {
		return 0, nil
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.Cashflow)(nil)).
		Set("status = ?", status).
		Where("id IN (?)", bun.In(cashflowIDs)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListCashflowPricings returns the pricings, with their lines, paid by the cashflows.
func (d *DB) ListCashflowPricings(ctx context.Context, cashflowIDs []int64) ([]*models.Pricing, error) {
	var pricings []*models.Pricing
	err := d.Bun.NewSelect().
		Model(&pricings).
		Relation("Lines").
		Where("pricing.id IN (SELECT cp.pricing_id FROM cashflow_pricings cp WHERE cp.cashflow_id IN (?))", bun.In(cashflowIDs)).
		OrderExpr("pricing.id ASC").
		Scan(ctx)
	return pricings, err
}

func (d *DB) CountInvoices(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.Invoice)(nil)).Count(ctx)
}

// CreateInvoice stores an invoice, its lines and its cashflow links.
func (d *DB) CreateInvoice(ctx context.Context, inv *models.Invoice, cashflowIDs []int64) error {
	if _, err := d.Bun.NewInsert().Model(inv).Exec(ctx); err != nil {
		return err
	}
	if len(inv.Lines) > 0 {
		for _, l := range inv.Lines {
			l.InvoiceID = inv.ID
		}
		if _, err := d.Bun.NewInsert().Model(&inv.Lines).Exec(ctx); err != nil {
			return err
		}
	}
	links := make([]*models.InvoiceCashflow, 0, len(cashflowIDs))
	for _, id := range cashflowIDs {
		links = append(links, &models.InvoiceCashflow{InvoiceID: inv.ID, CashflowID: id})
	}
	_, err := d.Bun.NewInsert().Model(&links).Exec(ctx)
	return err
}

// MarkBookingsReimbursed flags the bookings priced by pricingIDs as reimbursed.
func (d *DB) MarkBookingsReimbursed(ctx context.Context, pricingIDs []int64, at time.Time) error {
	if len(pricingIDs) == 0 {
		return nil
	}
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingReimbursed).
		Set("reimbursement_date = ?", at).
		Where("id IN (SELECT p.booking_id FROM pricings p WHERE p.id IN (?) AND p.booking_id IS NOT NULL)", bun.In(pricingIDs)).
		Where("status = ?", models.BookingUsed).
		Exec(ctx)
	if err != nil {
		return err
	}
	_, err = d.Bun.NewUpdate().
		Model((*models.CollectiveBooking)(nil)).
		Set("status = ?", models.CollectiveBookingReimbursed).
		Set("reimbursement_date = ?", at).
		Where("id IN (SELECT p.collective_booking_id FROM pricings p WHERE p.id IN (?) AND p.collective_booking_id IS NOT NULL)", bun.In(pricingIDs)).
		Where("status = ?", models.CollectiveBookingUsed).
		Exec(ctx)
	return err
}

func (d *DB) GetInvoiceByReference(ctx context.Context, reference string) (*models.Invoice, error) {
	var inv models.Invoice
	err := d.Bun.NewSelect().
		Model(&inv).
		Relation("Lines").
		Where("invoice.reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvoiceDetail is one reimbursed booking of an invoice.
type InvoiceDetail struct {
	BankAccountLabel string     `bun:"bank_account_label"`
	Iban             string     `bun:"iban"`
	VenueName        string     `bun:"venue_name"`
	OfferName        string     `bun:"offer_name"`
	Token            string     `bun:"token"`
	DateUsed         *time.Time `bun:"date_used"`
	Quantity         int        `bun:"quantity"`
	UnitAmount       int64      `bun:"unit_amount"`
	PricingAmount    int64      `bun:"pricing_amount"`
	IsCollective     bool       `bun:"is_collective"`
}

func (d *DB) ListInvoiceDetails(ctx context.Context, invoiceID int64) ([]InvoiceDetail, error) {
	var rows []InvoiceDetail
	err := d.Bun.NewRaw(`
		SELECT
			ba.label AS bank_account_label,
			ba.iban AS iban,
			v.name AS venue_name,
			COALESCE(o.name, co.name, '') AS offer_name,
			COALESCE(b.token, '') AS token,
			COALESCE(b.date_used, cb.date_used) AS date_used,
			COALESCE(b.quantity, 1) AS quantity,
			COALESCE(b.amount, cs.price, 0) AS unit_amount,
			p.amount AS pricing_amount,
			CASE WHEN p.collective_booking_id IS NULL THEN 0 ELSE 1 END AS is_collective
		FROM
			invoice_cashflows ic
		JOIN
			cashflows c ON c.id = ic.cashflow_id
		JOIN
			bank_accounts ba ON ba.id = c.bank_account_id
		JOIN
			cashflow_pricings cp ON cp.cashflow_id = c.id
		JOIN
			pricings p ON p.id = cp.pricing_id
		JOIN
			venues v ON v.id = p.venue_id
		LEFT JOIN
			bookings b ON b.id = p.booking_id
		LEFT JOIN
			offers o ON o.id = b.offer_id
		LEFT JOIN
			collective_bookings cb ON cb.id = p.collective_booking_id
		LEFT JOIN
			collective_stocks cs ON cs.id = cb.collective_stock_id
		LEFT JOIN
			collective_offers co ON co.id = cs.collective_offer_id
		WHERE
			ic.invoice_id = ?
		ORDER BY
			v.name, p.id
	`, invoiceID).Scan(ctx, &rows)
	return rows, err
}

// RevenueRow is one priced booking of an offerer.
type RevenueRow struct {
	VenueID       int64     `bun:"venue_id"`
	VenueName     string    `bun:"venue_name"`
	ValueDate     time.Time `bun:"value_date"`
	Revenue       int64     `bun:"revenue"`
	Reimbursed    int64     `bun:"reimbursed"`
	IsCollective  bool      `bun:"is_collective"`
	PricingStatus string    `bun:"pricing_status"`
}

// ListOffererRevenue returns the non-cancelled pricings of an offerer's
// venues valued in [from, to).
func (d *DB) ListOffererRevenue(ctx context.Context, offererID int64, from, to time.Time) ([]RevenueRow, error) {
	var rows []RevenueRow
	err := d.Bun.NewRaw(`
		SELECT
			v.id AS venue_id,
			v.name AS venue_name,
			p.value_date AS value_date,
			COALESCE(-SUM(CASE WHEN pl.category = ? THEN pl.amount ELSE 0 END), 0) AS revenue,
			-p.amount AS reimbursed,
			CASE WHEN p.collective_booking_id IS NULL THEN 0 ELSE 1 END AS is_collective,
			p.status AS pricing_status
		FROM
			pricings p
		JOIN
			venues v ON v.id = p.venue_id
		LEFT JOIN
			pricing_lines pl ON pl.pricing_id = p.id
		WHERE
			v.offerer_id = ?
			AND p.value_date >= ?
			AND p.value_date < ?
			AND p.status NOT IN (?)
		GROUP BY
			v.id, v.name, p.id, p.value_date, p.amount, p.collective_booking_id, p.status
		ORDER BY
			p.value_date, p.id
	`, models.LineOffererRevenue, offererID, from, to,
		bun.In([]models.PricingStatus{models.PricingCancelled, models.PricingRejected})).Scan(ctx, &rows)
	return rows, err
}
