package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/models"
	"pcapi/internal/utils"
)

// source is what an event and its pricing need to know about a booking.
type source struct {
	ref       BookingRef
	venueID   int64
	dateUsed  *time.Time
	beginning *time.Time
	pricable  Pricable
}

func loadSource(ctx context.Context, store Store, ref BookingRef) (*source, error) {
	if ref.IsCollective() {
		b, err := store.GetCollectiveBooking(ctx, ref.CollectiveBookingID)
		if err != nil {
			return nil, notFound(err)
		}
		beginning := b.CollectiveStock.BeginningDatetime
		return &source{
			ref:       ref,
			venueID:   b.VenueID,
			dateUsed:  b.DateUsed,
			beginning: &beginning,
			pricable: Pricable{
				VenueID:      b.VenueID,
				OffererID:    b.OffererID,
				IsCollective: true,
				Quantity:     1,
				Total:        b.CollectiveStock.Price,
			},
		}, nil
	}

	b, err := store.GetBooking(ctx, ref.BookingID)
	if err != nil {
		return nil, notFound(err)
	}
	src := &source{
		ref:      ref,
		venueID:  b.VenueID,
		dateUsed: b.DateUsed,
		pricable: Pricable{
			OfferID:   b.OfferID,
			VenueID:   b.VenueID,
			OffererID: b.OffererID,
			Quantity:  b.Quantity,
			Total:     b.TotalAmount(),
		},
	}
	if b.Stock != nil && b.Stock.Offer != nil {
		offer := b.Stock.Offer
		src.pricable.SubcategoryID = offer.SubcategoryID
		src.pricable.IsDigital = offer.IsDigital()
		if offer.IsEvent() {
			src.beginning = b.Stock.BeginningDatetime
		}
	}
	return src, nil
}

func eventRef(e *models.FinanceEvent) BookingRef {
	var ref BookingRef
	if e.BookingID != nil {
		ref.BookingID = *e.BookingID
	}
	if e.CollectiveBookingID != nil {
		ref.CollectiveBookingID = *e.CollectiveBookingID
	}
	return ref
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	return err
}

// attachPricingPoint makes e READY when its venue has a pricing point at the
// event value date, and leaves it PENDING otherwise.
func attachPricingPoint(ctx context.Context, store Store, e *models.FinanceEvent, src *source) error {
	link, err := store.PricingPointLinkAt(ctx, e.VenueID, e.ValueDate)
	if errors.Is(err, sql.ErrNoRows) {
		e.Status = models.FinanceEventPending
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find pricing point of venue %d: %w", e.VenueID, err)
	}

	base := e.ValueDate
	if src.beginning != nil {
		base = *src.beginning
	} else if src.dateUsed != nil {
		base = *src.dateUsed
	}
	ordering := utils.MaxTime(link.TimespanStart, base, e.ValueDate)

	e.Status = models.FinanceEventReady
	e.PricingPointID = &link.PricingPointID
	e.PricingOrderingDate = &ordering
	return nil
}

// AddEvent records that a booking has been used.
func (s *Service) AddEvent(ctx context.Context, motive models.FinanceEventMotive, ref BookingRef) (*models.FinanceEvent, error) {
	now := s.Now()
	src, err := loadSource(ctx, s.Store, ref)
	if err != nil {
		return nil, err
	}

	// redelivered messages must not price a booking twice
	events, err := s.Store.ListEventsOf(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list finance events: %w", err)
	}
	if n := len(events); n > 0 {
		last := events[n-1]
		if last.Motive == motive && last.Status != models.FinanceEventCancelled {
			s.Logger.Debug("FINANCE", fmt.Sprintf("event %d (%s) already recorded", last.ID, motive))
			return last, nil
		}
	}

	valueDate := now
	if !motive.IsReversal() {
		if src.dateUsed == nil {
			return nil, ErrBookingNotUsed
		}
		valueDate = *src.dateUsed
	}

	e := newEvent(now, valueDate, motive, src)
	if err := attachPricingPoint(ctx, s.Store, e, src); err != nil {
		return nil, err
	}
	if err := s.Store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create finance event: %w", err)
	}

	s.Logger.LogFinance("EVENT", fmt.Sprintf("event %d (%s) on venue %d is %s", e.ID, motive, e.VenueID, e.Status))
	return e, nil
}

func newEvent(now, valueDate time.Time, motive models.FinanceEventMotive, src *source) *models.FinanceEvent {
	bookingID, collectiveID := src.ref.ids()
	return &models.FinanceEvent{
		CreationDate:        now,
		ValueDate:           valueDate,
		Motive:              motive,
		BookingID:           bookingID,
		CollectiveBookingID: collectiveID,
		VenueID:             src.venueID,
	}
}

// CancelEvents undoes the finance effects of a booking that is no longer
// used. Unpriced events and pricings not yet paid are cancelled. When a
// pricing was already paid, a reversal event with the given motive is
// created and returned so that the next run prices the opposite amount.
func (s *Service) CancelEvents(ctx context.Context, motive models.FinanceEventMotive, ref BookingRef) (*models.FinanceEvent, error) {
	if !motive.IsReversal() {
		return nil, fmt.Errorf("motive %s does not reverse a booking", motive)
	}
	now := s.Now()

	var reversal *models.FinanceEvent
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		src, err := loadSource(ctx, tx, ref)
		if err != nil {
			return err
		}

		pricings, err := tx.ListPricingsOf(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to list pricings: %w", err)
		}
		var toCancel []int64
		cancelledEvents := map[int64]bool{}
		var outstanding int64
		for _, p := range pricings {
			if p.Status == models.PricingCancelled || p.Status == models.PricingRejected {
				continue
			}
			line := revenueLine(p)
			// a validated reversal stays: it offsets a pricing already paid
			if p.Status == models.PricingValidated && line < 0 {
				toCancel = append(toCancel, p.ID)
				cancelledEvents[p.EventID] = true
				continue
			}
			outstanding += line
		}
		if err := tx.SetPricingStatus(ctx, toCancel, models.PricingCancelled); err != nil {
			return fmt.Errorf("failed to cancel pricings: %w", err)
		}

		events, err := tx.ListEventsOf(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to list finance events: %w", err)
		}
		for _, e := range events {
			waiting := e.Status == models.FinanceEventPending || e.Status == models.FinanceEventReady
			if !waiting && !cancelledEvents[e.ID] {
				continue
			}
			e.Status = models.FinanceEventCancelled
			if err := tx.UpdateEvent(ctx, e, "status"); err != nil {
				return fmt.Errorf("failed to cancel finance event %d: %w", e.ID, err)
			}
		}

		// revenue lines are negative while a paid pricing is not reversed
		if outstanding >= 0 {
			return nil
		}
		reversal = newEvent(now, now, motive, src)
		if err := attachPricingPoint(ctx, tx, reversal, src); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, reversal)
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("finance events of booking %+v cancelled", ref)
	if reversal != nil {
		msg += fmt.Sprintf(", reversal event %d created", reversal.ID)
	}
	s.Logger.LogFinance("CANCEL", msg)
	return reversal, nil
}

// revenueLine returns the OFFERER_REVENUE line amount of a pricing.
func revenueLine(p *models.Pricing) int64 {
	var total int64
	for _, l := range p.Lines {
		if l.Category == models.LineOffererRevenue {
			total += l.Amount
		}
	}
	return total
}

// ReadyPendingEvents attaches a pricing point to pending events whose venue
// has gained one, and returns how many became READY.
func (s *Service) ReadyPendingEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.Store.ListPendingEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending events: %w", err)
	}
	readied := 0
	for _, e := range events {
		src, err := loadSource(ctx, s.Store, eventRef(e))
		if err != nil {
			s.Logger.Error("FINANCE", fmt.Sprintf("Failed to load booking of event %d: %v", e.ID, err))
			continue
		}
		if err := attachPricingPoint(ctx, s.Store, e, src); err != nil {
			s.Logger.Error("FINANCE", err.Error())
			continue
		}
		if e.Status != models.FinanceEventReady {
			continue
		}
		if err := s.Store.UpdateEvent(ctx, e, "status", "pricing_point_id", "pricing_ordering_date"); err != nil {
			s.Logger.Error("FINANCE", fmt.Sprintf("Failed to update event %d: %v", e.ID, err))
			continue
		}
		readied++
	}
	return readied, nil
}
