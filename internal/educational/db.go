package educational

import (
	"context"
	"time"

	"pcapi/internal/database"
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

func (d *DB) GetStock(ctx context.Context, stockID int64) (*models.CollectiveStock, error) {
	var stock models.CollectiveStock
	err := d.Bun.NewSelect().
		Model(&stock).
		Relation("CollectiveOffer").
		Relation("CollectiveOffer.Venue").
		Where("collective_stock.id = ?", stockID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (d *DB) GetInstitution(ctx context.Context, institutionID int64) (*models.EducationalInstitution, error) {
	var inst models.EducationalInstitution
	if err := d.Bun.NewSelect().Model(&inst).Where("id = ?", institutionID).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (d *DB) HasActiveBooking(ctx context.Context, stockID int64) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.CollectiveBooking)(nil)).
		Where("collective_stock_id = ?", stockID).
		Where("status != ?", models.CollectiveBookingCancelled).
		Exists(ctx)
}

// CreateBooking inserts b. A concurrent booking of the same stock trips the
// partial unique index and comes back as ErrStockAlreadyBooked.
func (d *DB) CreateBooking(ctx context.Context, b *models.CollectiveBooking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrStockAlreadyBooked
	}
	return err
}

func (d *DB) GetBooking(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error) {
	var b models.CollectiveBooking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("CollectiveStock").
		Relation("CollectiveStock.CollectiveOffer").
		Relation("CollectiveStock.CollectiveOffer.Venue").
		Where("collective_booking.id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *DB) UpdateBooking(ctx context.Context, b *models.CollectiveBooking, columns ...string) error {
	_, err := d.Bun.NewUpdate().Model(b).Column(columns...).WherePK().Exec(ctx)
	return err
}

func (d *DB) GetDeposit(ctx context.Context, institutionID int64, yearID string) (*models.EducationalDeposit, error) {
	var dep models.EducationalDeposit
	err := d.Bun.NewSelect().
		Model(&dep).
		Where("educational_institution_id = ?", institutionID).
		Where("educational_year_id = ?", yearID).
		OrderExpr("id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

// EngagedAmount sums the prices of the institution's confirmed, used and
// reimbursed bookings for the year.
func (d *DB) EngagedAmount(ctx context.Context, institutionID int64, yearID string) (int64, error) {
	var total int64
	err := d.Bun.NewSelect().
		TableExpr("collective_bookings AS cb").
		Join("JOIN collective_stocks AS cs ON cs.id = cb.collective_stock_id").
		ColumnExpr("COALESCE(SUM(cs.price), 0)").
		Where("cb.educational_institution_id = ?", institutionID).
		Where("cb.educational_year_id = ?", yearID).
		Where("cb.status IN (?)", bun.In([]models.CollectiveBookingStatus{
			models.CollectiveBookingConfirmed,
			models.CollectiveBookingUsed,
			models.CollectiveBookingReimbursed,
		})).
		Scan(ctx, &total)
	return total, err
}

// ListConfirmedEndedBefore returns confirmed bookings whose event ended before t.
func (d *DB) ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*models.CollectiveBooking, error) {
	var bookings []*models.CollectiveBooking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("CollectiveStock").
		Where("collective_booking.status = ?", models.CollectiveBookingConfirmed).
		Where("collective_stock.end_datetime < ?", t).
		OrderExpr("collective_booking.id ASC").
		Scan(ctx)
	return bookings, err
}

// ListPendingPastLimit returns pending bookings whose confirmation limit is before t.
func (d *DB) ListPendingPastLimit(ctx context.Context, t time.Time) ([]*models.CollectiveBooking, error) {
	var bookings []*models.CollectiveBooking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.CollectiveBookingPending).
		Where("confirmation_limit_date < ?", t).
		OrderExpr("id ASC").
		Scan(ctx)
	return bookings, err
}
