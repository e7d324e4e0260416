package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/lock"
	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/google/uuid"
)

// GenerateCashflows creates a batch for cutoff and one PENDING cashflow per
// bank account owed money by VALIDATED pricings valued before cutoff. The
// pricings become PROCESSED. Only one generation runs at a time.
func (s *Service) GenerateCashflows(ctx context.Context, cutoff time.Time) (*models.CashflowBatch, []*models.Cashflow, error) {
	var (
		batch     *models.CashflowBatch
		cashflows []*models.Cashflow
	)
	err := s.Locker.WithLock(ctx, lock.CashflowGenerationKey, uuid.NewString(), s.Options.CashflowLockTTL, func(ctx context.Context) error {
		exists, err := s.Store.BatchExists(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to check batch: %w", err)
		}
		if exists {
			return ErrBatchExists
		}

		return s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			count, err := tx.CountBatches(ctx)
			if err != nil {
				return err
			}
			batch = &models.CashflowBatch{
				CreationDate: s.Now(),
				Cutoff:       cutoff,
				Label:        utils.GenerateBatchLabel(count + 1),
			}
			if err := tx.CreateBatch(ctx, batch); err != nil {
				return fmt.Errorf("failed to create batch: %w", err)
			}

			payable, err := tx.ListPayablePricings(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to list payable pricings: %w", err)
			}

			for _, g := range groupByBankAccount(payable) {
				if g.total >= 0 {
					s.Logger.Debug("FINANCE", fmt.Sprintf("Bank account %d has nothing to receive (%d)", g.bankAccountID, g.total))
					continue
				}
				c := &models.Cashflow{
					CreationDate:  s.Now(),
					Status:        models.CashflowPending,
					BankAccountID: g.bankAccountID,
					BatchID:       batch.ID,
					Amount:        -g.total,
				}
				if err := tx.CreateCashflow(ctx, c, g.pricingIDs); err != nil {
					return fmt.Errorf("failed to create cashflow for bank account %d: %w", g.bankAccountID, err)
				}
				if err := tx.SetPricingStatus(ctx, g.pricingIDs, models.PricingProcessed); err != nil {
					return fmt.Errorf("failed to process pricings: %w", err)
				}
				cashflows = append(cashflows, c)
			}
			return nil
		})
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, nil, ErrGenerationInProgress
	}
	if err != nil {
		return nil, nil, err
	}

	s.Logger.LogFinance("CASHFLOW", fmt.Sprintf("batch %s: %d cashflows until %s", batch.Label, len(cashflows), cutoff.Format(time.RFC3339)))
	return batch, cashflows, nil
}

type bankAccountGroup struct {
	bankAccountID int64
	total         int64
	pricingIDs    []int64
}

// groupByBankAccount keeps the input order of bank accounts.
func groupByBankAccount(rows []PayablePricing) []*bankAccountGroup {
	var groups []*bankAccountGroup
	index := map[int64]*bankAccountGroup{}
	for _, r := range rows {
		g, ok := index[r.BankAccountID]
		if !ok {
			g = &bankAccountGroup{bankAccountID: r.BankAccountID}
			index[r.BankAccountID] = g
			groups = append(groups, g)
		}
		g.total += r.Amount
		g.pricingIDs = append(g.pricingIDs, r.PricingID)
	}
	return groups
}

// AcceptBatch marks the cashflows of a batch under review as ACCEPTED, once
// the bank transfer has been made.
func (s *Service) AcceptBatch(ctx context.Context, batchID int64) (int, error) {
	if _, err := s.Store.GetBatch(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrBatchNotFound
		}
		return 0, err
	}
	cashflows, err := s.Store.ListBatchCashflows(ctx, batchID, models.CashflowUnderReview)
	if err != nil {
		return 0, fmt.Errorf("failed to list cashflows: %w", err)
	}
	ids := make([]int64, 0, len(cashflows))
	for _, c := range cashflows {
		ids = append(ids, c.ID)
	}
	n, err := s.Store.SetCashflowStatus(ctx, ids, models.CashflowAccepted)
	if err != nil {
		return 0, fmt.Errorf("failed to accept cashflows: %w", err)
	}
	s.Logger.LogFinance("ACCEPT", fmt.Sprintf("batch %d: %d cashflows accepted", batchID, n))
	return n, nil
}
