package subscription

import (
	"context"
	"strings"
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
	var u models.User
	if err := d.Bun.NewSelect().Model(&u).Where("id = ?", userID).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) UpdateUser(ctx context.Context, u *models.User, columns ...string) error {
	_, err := d.Bun.NewUpdate().Model(u).Column(columns...).WherePK().Exec(ctx)
	return err
}

func (d *DB) CreateFraudCheck(ctx context.Context, c *models.BeneficiaryFraudCheck) error {
	_, err := d.Bun.NewInsert().Model(c).Exec(ctx)
	return err
}

func (d *DB) UpdateFraudCheck(ctx context.Context, c *models.BeneficiaryFraudCheck) error {
	_, err := d.Bun.NewUpdate().
		Model(c).
		Column("status", "reason_codes", "reason", "result_content", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) GetFraudCheckByThirdPartyID(ctx context.Context, thirdPartyID string) (*models.BeneficiaryFraudCheck, error) {
	var c models.BeneficiaryFraudCheck
	err := d.Bun.NewSelect().
		Model(&c).
		Where("third_party_id = ?", thirdPartyID).
		OrderExpr("id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListFraudChecks returns the checks of a user, oldest first.
func (d *DB) ListFraudChecks(ctx context.Context, userID int64) ([]*models.BeneficiaryFraudCheck, error) {
	var checks []*models.BeneficiaryFraudCheck
	err := d.Bun.NewSelect().
		Model(&checks).
		Where("user_id = ?", userID).
		OrderExpr("date_created ASC, id ASC").
		Scan(ctx)
	return checks, err
}

// FindUsersByIdentity returns the other users with the same names and
// validated birth date.
func (d *DB) FindUsersByIdentity(ctx context.Context, excludeUserID int64, firstName, lastName string, birth time.Time) ([]*models.User, error) {
	var users []*models.User
	err := d.Bun.NewSelect().
		Model(&users).
		Where("id != ?", excludeUserID).
		Where("LOWER(first_name) = ?", strings.ToLower(firstName)).
		Where("LOWER(last_name) = ?", strings.ToLower(lastName)).
		Where("validated_birth_date = ?", birth).
		Scan(ctx)
	return users, err
}

func (d *DB) FindUsersByIDPiece(ctx context.Context, excludeUserID int64, idPieceNumber string) ([]*models.User, error) {
	var users []*models.User
	err := d.Bun.NewSelect().
		Model(&users).
		Where("id != ?", excludeUserID).
		Where("id_piece_number = ?", idPieceNumber).
		Scan(ctx)
	return users, err
}
