package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/lock"
	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/google/uuid"
)

// PriceEvents prices up to batchSize READY events. Events are handled per
// pricing point, in (pricing ordering date, id) order, under a Redis lock of
// the pricing point. A pricing point stops at its first event that cannot be
// priced so that later events never overtake it.
func (s *Service) PriceEvents(ctx context.Context, batchSize int) (int, error) {
	if _, err := s.ReadyPendingEvents(ctx, batchSize); err != nil {
		return 0, err
	}

	events, err := s.Store.ListEventsToPrice(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list events to price: %w", err)
	}

	var order []int64
	byPoint := map[int64][]*models.FinanceEvent{}
	for _, e := range events {
		pp := *e.PricingPointID
		if _, ok := byPoint[pp]; !ok {
			order = append(order, pp)
		}
		byPoint[pp] = append(byPoint[pp], e)
	}

	priced := 0
	for _, pp := range order {
		err := s.Locker.WithLock(ctx, lock.PricingPointKey(pp), uuid.NewString(), s.Options.PricingLockTTL, func(ctx context.Context) error {
			for _, e := range byPoint[pp] {
				if err := s.priceEvent(ctx, e); err != nil {
					return fmt.Errorf("event %d: %w", e.ID, err)
				}
				priced++
			}
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, lock.ErrNotAcquired):
			s.Logger.Warn("FINANCE", fmt.Sprintf("Pricing point %d is locked, skipping", pp))
		case errors.Is(err, ErrEarlierEventNotPriced):
			s.Logger.Warn("FINANCE", fmt.Sprintf("Pricing point %d: %v", pp, err))
		default:
			s.Logger.Error("FINANCE", fmt.Sprintf("Pricing point %d: %v", pp, err))
		}
	}

	s.Logger.LogFinance("PRICE", fmt.Sprintf("%d of %d events priced", priced, len(events)))
	return priced, nil
}

// priceEvent creates the pricing of one READY event.
func (s *Service) priceEvent(ctx context.Context, e *models.FinanceEvent) error {
	return s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		earlier, err := tx.HasEarlierUnpricedEvent(ctx, e)
		if err != nil {
			return err
		}
		if earlier {
			return ErrEarlierEventNotPriced
		}

		pricing, err := s.buildPricing(ctx, tx, e)
		if errors.Is(err, ErrNothingToReverse) {
			e.Status = models.FinanceEventNotToBePriced
			return tx.UpdateEvent(ctx, e, "status")
		}
		if err != nil {
			return err
		}
		if err := tx.CreatePricing(ctx, pricing); err != nil {
			return fmt.Errorf("failed to create pricing: %w", err)
		}
		e.Status = models.FinanceEventPriced
		return tx.UpdateEvent(ctx, e, "status")
	})
}

func (s *Service) buildPricing(ctx context.Context, store Store, e *models.FinanceEvent) (*models.Pricing, error) {
	ref := eventRef(e)
	if e.Motive.IsReversal() {
		return s.buildReversal(ctx, store, e, ref)
	}

	src, err := loadSource(ctx, store, ref)
	if err != nil {
		return nil, err
	}
	p := src.pricable

	from, to := revenueYear(e.ValueDate)
	revenue, err := store.YearRevenue(ctx, *e.PricingPointID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to compute revenue: %w", err)
	}
	if !p.IsCollective {
		revenue += p.Total
	}

	var customs []*models.CustomReimbursementRule
	if !p.IsCollective {
		customs, err = store.ListCustomRules(ctx, p.OfferID, p.VenueID, p.OffererID)
		if err != nil {
			return nil, fmt.Errorf("failed to list custom rules: %w", err)
		}
	}
	rule := SelectRule(customs, p, revenue, e.ValueDate)
	reimbursed := rule.Reimbursed(p)

	pricing := &models.Pricing{
		Status:              models.PricingValidated,
		CreationDate:        s.Now(),
		ValueDate:           e.ValueDate,
		Amount:              -reimbursed,
		Revenue:             revenue,
		BookingID:           e.BookingID,
		CollectiveBookingID: e.CollectiveBookingID,
		EventID:             e.ID,
		VenueID:             e.VenueID,
		PricingPointID:      *e.PricingPointID,
		Lines: []*models.PricingLine{
			{Amount: -p.Total, Category: models.LineOffererRevenue},
			{Amount: p.Total - reimbursed, Category: models.LineOffererContribution},
		},
	}
	if rule.Custom != nil {
		pricing.CustomRuleID = &rule.Custom.ID
	} else {
		pricing.StandardRule = rule.Standard.Name
	}
	return pricing, nil
}

// buildReversal mirrors the latest paid pricing of the booking.
func (s *Service) buildReversal(ctx context.Context, store Store, e *models.FinanceEvent, ref BookingRef) (*models.Pricing, error) {
	pricings, err := store.ListPricingsOf(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricings: %w", err)
	}

	var outstanding int64
	var last *models.Pricing
	for _, p := range pricings {
		if p.Status == models.PricingCancelled || p.Status == models.PricingRejected {
			continue
		}
		line := revenueLine(p)
		outstanding += line
		if line < 0 {
			last = p
		}
	}
	if outstanding >= 0 || last == nil {
		return nil, ErrNothingToReverse
	}

	reversal := &models.Pricing{
		Status:              models.PricingValidated,
		CreationDate:        s.Now(),
		ValueDate:           e.ValueDate,
		Amount:              -last.Amount,
		StandardRule:        last.StandardRule,
		CustomRuleID:        last.CustomRuleID,
		Revenue:             last.Revenue,
		BookingID:           e.BookingID,
		CollectiveBookingID: e.CollectiveBookingID,
		EventID:             e.ID,
		VenueID:             e.VenueID,
		PricingPointID:      *e.PricingPointID,
	}
	for _, l := range last.Lines {
		reversal.Lines = append(reversal.Lines, &models.PricingLine{Amount: -l.Amount, Category: l.Category})
	}
	return reversal, nil
}

// revenueYear returns the Paris calendar year containing t.
func revenueYear(t time.Time) (time.Time, time.Time) {
	local := t.In(utils.Paris())
	from := time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, utils.Paris())
	return from.UTC(), from.AddDate(1, 0, 0).UTC()
}
