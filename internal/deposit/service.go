package deposit

import (
	"context"
	"fmt"
	"time"

	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/utils"
)

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ListDeposits(ctx context.Context, userID int64) ([]*models.Deposit, error)
	CreateDeposit(ctx context.Context, deposit *models.Deposit) error
	ExpireDeposit(ctx context.Context, depositID int64, at time.Time) error
	ListSpending(ctx context.Context, depositID int64) ([]Spending, error)
	CreateRecredit(ctx context.Context, recredit *models.Recredit) error
	ListUnderageDeposits(ctx context.Context, now time.Time) ([]*models.Deposit, error)
}

type Service struct {
	Store  Store
	Logger *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{Store: store, Logger: log}
}

// GrantDeposit credits a new deposit. Granting GRANT_18 closes any
// remaining GRANT_15_17 deposit.
func (s *Service) GrantDeposit(ctx context.Context, userID int64, depositType models.DepositType, source string, now time.Time) (*models.Deposit, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	birth := user.BirthDate()
	if birth == nil {
		return nil, ErrMissingBirthDate
	}

	amount, err := InitialAmount(depositType, utils.AgeAt(*birth, now))
	if err != nil {
		return nil, err
	}

	expiration := ExpirationDate(depositType, *birth, now)
	deposit := &models.Deposit{
		UserID:         userID,
		Amount:         amount,
		Type:           depositType,
		Source:         source,
		DateCreated:    now,
		ExpirationDate: &expiration,
	}

	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		existing, err := tx.ListDeposits(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list deposits: %w", err)
		}
		for _, d := range existing {
			if d.Type == depositType {
				return ErrAlreadyGranted
			}
		}
		if depositType == models.DepositGrant18 {
			for _, d := range existing {
				if d.Type == models.DepositGrant15_17 && !d.IsExpired(now) {
					if err := tx.ExpireDeposit(ctx, d.ID, now); err != nil {
						return fmt.Errorf("failed to expire underage deposit %d: %w", d.ID, err)
					}
				}
			}
		}
		if err := tx.CreateDeposit(ctx, deposit); err != nil {
			return fmt.Errorf("failed to create deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("DEPOSIT", fmt.Sprintf("Granted %s of %d cents to user %d", depositType, amount, userID))
	return deposit, nil
}

// DepositOfType returns the user's deposit of the given type.
func (s *Service) DepositOfType(ctx context.Context, userID int64, depositType models.DepositType) (*models.Deposit, error) {
	deposits, err := s.Store.ListDeposits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	for _, d := range deposits {
		if d.Type == depositType {
			return d, nil
		}
	}
	return nil, ErrNoActiveDeposit
}

// ActiveDeposit returns the newest deposit usable at now.
func (s *Service) ActiveDeposit(ctx context.Context, userID int64, now time.Time) (*models.Deposit, error) {
	deposits, err := s.Store.ListDeposits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	for _, d := range deposits {
		if !d.IsExpired(now) {
			return d, nil
		}
	}
	return nil, ErrNoActiveDeposit
}

// Wallet returns the balance of the user's active deposit.
func (s *Service) Wallet(ctx context.Context, userID int64, now time.Time) (*models.Wallet, error) {
	d, err := s.ActiveDeposit(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	spendings, err := s.Store.ListSpending(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spending of deposit %d: %w", d.ID, err)
	}
	return ComputeWallet(d, spendings), nil
}

// RecreditUnderage adds the birthday recredits due at now and returns how
// many were created.
func (s *Service) RecreditUnderage(ctx context.Context, now time.Time) (int, error) {
	deposits, err := s.Store.ListUnderageDeposits(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list underage deposits: %w", err)
	}

	created := 0
	for _, d := range deposits {
		user, err := s.Store.GetUser(ctx, d.UserID)
		if err != nil {
			s.Logger.Error("DEPOSIT", fmt.Sprintf("Failed to load user %d for recredit: %v", d.UserID, err))
			continue
		}
		birth := user.BirthDate()
		if birth == nil {
			continue
		}
		for _, r := range DueRecredits(d, *birth, now) {
			recredit := r
			if err := s.Store.CreateRecredit(ctx, &recredit); err != nil {
				s.Logger.Error("DEPOSIT", fmt.Sprintf("Failed to recredit deposit %d: %v", d.ID, err))
				continue
			}
			created++
			s.Logger.Info("DEPOSIT", fmt.Sprintf("Recredited deposit %d with %s (%d cents)", d.ID, r.RecreditType, r.Amount))
		}
	}
	return created, nil
}
