package booking

import (
	"time"

	"pcapi/internal/models"
	"pcapi/internal/utils"
)

const (
	CancellationGracePeriod = 48 * time.Hour
	BookExpirationDelay     = 10 * 24 * time.Hour
	ThingExpirationDelay    = 30 * 24 * time.Hour
	tokenAttempts           = 3
)

// CheckQuantity allows 1, or 2 on duo offers.
func CheckQuantity(offer *models.Offer, quantity int) error {
	if quantity == 1 || (quantity == 2 && offer.IsDuo) {
		return nil
	}
	return ErrQuantityNotAllowed
}

// CheckStockBookable verifies the stock can take quantity more bookings at now.
func CheckStockBookable(stock *models.Stock, now time.Time, quantity int) error {
	if stock.IsSoftDeleted {
		return ErrStockNotBookable
	}
	offer := stock.Offer
	if offer == nil || !offer.IsActive || offer.Validation != models.ValidationApproved {
		return ErrOfferInactive
	}
	if offer.Venue != nil && offer.Venue.Offerer != nil {
		if !offer.Venue.Offerer.IsValidated || !offer.Venue.Offerer.IsActive {
			return ErrOfferInactive
		}
	}
	if stock.HasBookingLimitPassed(now) {
		return ErrBookingLimitPassed
	}
	if stock.IsEventExpired(now) {
		return ErrEventExpired
	}
	if remaining := stock.RemainingQuantity(); remaining != -1 && remaining < quantity {
		return ErrNotEnoughStock
	}
	return nil
}

// CancellationLimitDate returns until when the beneficiary may cancel.
// Things have no limit.
func CancellationLimitDate(offer *models.Offer, beginning *time.Time, bookedAt time.Time) *time.Time {
	if !offer.IsEvent() || beginning == nil {
		return nil
	}
	limit := utils.MinTime(bookedAt.Add(CancellationGracePeriod), beginning.Add(-CancellationGracePeriod))
	limit = utils.MaxTime(limit, bookedAt)
	return &limit
}

// ExpirationDate returns when an unused booking is automatically cancelled.
// Events and digital offers never expire.
func ExpirationDate(offer *models.Offer, bookedAt time.Time) *time.Time {
	sub := offer.Subcategory()
	if sub.IsEvent || !sub.CanExpire || offer.IsDigital() {
		return nil
	}
	delay := ThingExpirationDelay
	if sub.IsBook {
		delay = BookExpirationDelay
	}
	expiration := bookedAt.Add(delay)
	return &expiration
}

// CheckCanBeCancelled applies the cancellation rules of reason at now.
func CheckCanBeCancelled(b *models.Booking, reason models.CancellationReason, now time.Time) error {
	switch b.Status {
	case models.BookingCancelled:
		return ErrBookingIsCancelled
	case models.BookingReimbursed:
		return ErrBookingIsReimbursed
	}

	switch reason {
	case models.CancelledByBeneficiary:
		if b.Status == models.BookingUsed {
			return ErrBookingIsUsed
		}
		if b.CancellationLimitDate != nil && now.After(*b.CancellationLimitDate) {
			return ErrCancellationLimitPassed
		}
	case models.CancelledExpired:
		if b.Status != models.BookingConfirmed {
			return ErrBookingIsUsed
		}
	}
	return nil
}

// CheckCanBeUsed refuses cancelled, reimbursed, already used or too early bookings.
func CheckCanBeUsed(b *models.Booking, now time.Time) error {
	switch b.Status {
	case models.BookingCancelled:
		return ErrBookingIsCancelled
	case models.BookingReimbursed:
		return ErrBookingIsReimbursed
	case models.BookingUsed:
		return ErrBookingIsUsed
	}
	if b.CancellationLimitDate != nil && now.Before(*b.CancellationLimitDate) {
		return ErrUseTooEarly
	}
	return nil
}

func CheckCanBeUnused(b *models.Booking) error {
	switch b.Status {
	case models.BookingUsed:
		return nil
	case models.BookingReimbursed:
		return ErrBookingIsReimbursed
	case models.BookingCancelled:
		return ErrBookingIsCancelled
	default:
		return ErrBookingNotUsed
	}
}
