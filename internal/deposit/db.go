package deposit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pcapi/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

var _ Store = (*DB)(nil)

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

func (d *DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListDeposits returns the user's deposits, newest first, with their recredits.
func (d *DB) ListDeposits(ctx context.Context, userID int64) ([]*models.Deposit, error) {
	var deposits []*models.Deposit
	err := d.Bun.NewSelect().
		Model(&deposits).
		Relation("Recredits").
		Where("deposit.user_id = ?", userID).
		OrderExpr("deposit.date_created DESC, deposit.id DESC").
		Scan(ctx)
	return deposits, err
}

func (d *DB) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	_, err := d.Bun.NewInsert().Model(deposit).Exec(ctx)
	return err
}

func (d *DB) ExpireDeposit(ctx context.Context, depositID int64, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Deposit)(nil)).
		Set("expiration_date = ?", at).
		Where("id = ?", depositID).
		Exec(ctx)
	return err
}

// ListSpending returns the non-cancelled bookings charged on a deposit.
func (d *DB) ListSpending(ctx context.Context, depositID int64) ([]Spending, error) {
	var rows []Spending
	err := d.Bun.NewSelect().
		TableExpr("bookings AS b").
		ColumnExpr("b.amount, b.quantity, o.subcategory_id, o.url").
		Join("JOIN offers AS o ON o.id = b.offer_id").
		Where("b.deposit_id = ?", depositID).
		Where("b.status != ?", models.BookingCancelled).
		Scan(ctx, &rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rows, err
}

func (d *DB) CreateRecredit(ctx context.Context, recredit *models.Recredit) error {
	_, err := d.Bun.NewInsert().Model(recredit).Exec(ctx)
	return err
}

// ListUnderageDeposits returns GRANT_15_17 deposits still usable at now.
func (d *DB) ListUnderageDeposits(ctx context.Context, now time.Time) ([]*models.Deposit, error) {
	var deposits []*models.Deposit
	err := d.Bun.NewSelect().
		Model(&deposits).
		Relation("Recredits").
		Where("deposit.type = ?", models.DepositGrant15_17).
		Where("deposit.expiration_date IS NULL OR deposit.expiration_date > ?", now).
		OrderExpr("deposit.id ASC").
		Scan(ctx)
	return deposits, err
}
