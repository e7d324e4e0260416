package educational

import (
	"errors"
	"time"

	"pcapi/internal/models"
)

const (
	// AutoUseDelay is how long after the end of an event a confirmed
	// collective booking is considered used.
	AutoUseDelay = 48 * time.Hour

	provisionalEngagementPercent = 80
)

var (
	ErrStockNotFound           = errors.New("collective stock not found")
	ErrInstitutionNotFound     = errors.New("educational institution not found")
	ErrBookingNotFound         = errors.New("collective booking not found")
	ErrOfferNotBookable        = errors.New("collective offer is not bookable")
	ErrBookingLimitPassed      = errors.New("booking limit datetime has passed")
	ErrStockAlreadyBooked      = errors.New("collective stock already has an active booking")
	ErrNotPending              = errors.New("collective booking is not pending")
	ErrConfirmationLimitPassed = errors.New("confirmation limit date has passed")
	ErrNoDeposit               = errors.New("institution has no deposit for this educational year")
	ErrInsufficientFund        = errors.New("educational deposit is insufficient")
	ErrBookingIsCancelled      = errors.New("collective booking is cancelled")
	ErrBookingIsUsed           = errors.New("collective booking is used")
	ErrBookingIsReimbursed     = errors.New("collective booking is reimbursed")
	ErrStockLocked             = errors.New("deposit is being engaged by another confirmation")
)

// CheckStockBookable verifies an institution may pre-book stock at now.
func CheckStockBookable(stock *models.CollectiveStock, now time.Time) error {
	offer := stock.CollectiveOffer
	if offer == nil || !offer.IsActive || offer.Validation != models.ValidationApproved {
		return ErrOfferNotBookable
	}
	if now.After(ConfirmationLimit(stock)) {
		return ErrBookingLimitPassed
	}
	return nil
}

// ConfirmationLimit is the booking limit of the stock, or its beginning when unset.
func ConfirmationLimit(stock *models.CollectiveStock) time.Time {
	if stock.BookingLimitDatetime.IsZero() {
		return stock.BeginningDatetime
	}
	return stock.BookingLimitDatetime
}

// EngageableAmount is how much of a deposit may be committed. A deposit that
// is not final is only engageable up to 80%.
func EngageableAmount(d *models.EducationalDeposit) int64 {
	if d.IsFinal {
		return d.Amount
	}
	return d.Amount * provisionalEngagementPercent / 100
}

func CheckCanConfirm(b *models.CollectiveBooking, now time.Time) error {
	switch b.Status {
	case models.CollectiveBookingPending:
	case models.CollectiveBookingCancelled:
		return ErrBookingIsCancelled
	default:
		return ErrNotPending
	}
	if now.After(b.ConfirmationLimitDate) {
		return ErrConfirmationLimitPassed
	}
	return nil
}

// CheckDepositCovers verifies price fits in the deposit given what is already engaged.
func CheckDepositCovers(d *models.EducationalDeposit, engaged, price int64) error {
	if engaged+price > EngageableAmount(d) {
		return ErrInsufficientFund
	}
	return nil
}

func CheckCanCancel(b *models.CollectiveBooking) error {
	switch b.Status {
	case models.CollectiveBookingCancelled:
		return ErrBookingIsCancelled
	case models.CollectiveBookingUsed:
		return ErrBookingIsUsed
	case models.CollectiveBookingReimbursed:
		return ErrBookingIsReimbursed
	}
	return nil
}
