package booking

import (
	"context"
	"fmt"
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

func (d *DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	if err := d.Bun.NewSelect().Model(&user).Where("id = ?", userID).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetStock loads a stock with its offer, venue and offerer.
func (d *DB) GetStock(ctx context.Context, stockID int64) (*models.Stock, error) {
	var stock models.Stock
	err := d.Bun.NewSelect().
		Model(&stock).
		Relation("Offer").
		Relation("Offer.Venue").
		Relation("Offer.Venue.Offerer").
		Where("stock.id = ?", stockID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (d *DB) HasActiveBooking(ctx context.Context, userID, offerID int64) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("user_id = ?", userID).
		Where("offer_id = ?", offerID).
		Where("status != ?", models.BookingCancelled).
		Exists(ctx)
}

func (d *DB) TokenExists(ctx context.Context, token string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("token = ?", token).
		Exists(ctx)
}

// ReserveStock increments the booked quantity unless it would overbook the
// stock. It reports whether the row was updated.
func (d *DB) ReserveStock(ctx context.Context, stockID int64, quantity int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Stock)(nil)).
		Set("dn_booked_quantity = dn_booked_quantity + ?", quantity).
		Where("id = ?", stockID).
		Where("quantity IS NULL OR quantity - dn_booked_quantity >= ?", quantity).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) ReleaseStock(ctx context.Context, stockID int64, quantity int) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Stock)(nil)).
		Set("dn_booked_quantity = dn_booked_quantity - ?", quantity).
		Where("id = ?", stockID).
		Where("dn_booked_quantity >= ?", quantity).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("stock %d booked quantity would become negative", stockID)
	}
	return nil
}

func (d *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	return err
}

func (d *DB) GetBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return d.getBooking(ctx, "booking.id = ?", bookingID)
}

func (d *DB) GetBookingByToken(ctx context.Context, token string) (*models.Booking, error) {
	return d.getBooking(ctx, "booking.token = ?", token)
}

func (d *DB) getBooking(ctx context.Context, where string, arg interface{}) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("Stock").
		Relation("Stock.Offer").
		Relation("Stock.Offer.Venue").
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBooking writes the given columns of b if its stored status is still
// from. Otherwise it returns ErrBookingStatusChanged.
func (d *DB) UpdateBooking(ctx context.Context, b *models.Booking, from models.BookingStatus, columns ...string) error {
	res, err := d.Bun.NewUpdate().
		Model(b).
		Column(columns...).
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrBookingStatusChanged
	}
	return nil
}

// ListBookingsToExpire returns confirmed bookings whose expiration date is before now.
func (d *DB) ListBookingsToExpire(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Stock").
		Relation("Stock.Offer").
		Where("booking.status = ?", models.BookingConfirmed).
		Where("booking.expiration_date IS NOT NULL").
		Where("booking.expiration_date < ?", now).
		OrderExpr("booking.id ASC").
		Limit(limit).
		Scan(ctx)
	return bookings, err
}

// ListUserBookings returns a user's bookings, newest first.
func (d *DB) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("booking.user_id = ?", userID).
		OrderExpr("booking.date_created DESC").
		Scan(ctx)
	return bookings, err
}
