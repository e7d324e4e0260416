package booking

// Error is a booking rule violation that callers may show to users.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so a reworded error still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrBookingNotFound         = &Error{Code: "BOOKING_NOT_FOUND", Message: "booking not found"}
	ErrStockNotFound           = &Error{Code: "STOCK_NOT_FOUND", Message: "stock not found"}
	ErrUserNotFound            = &Error{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrNotBeneficiary          = &Error{Code: "NOT_BENEFICIARY", Message: "user is not a beneficiary"}
	ErrStockNotBookable        = &Error{Code: "STOCK_NOT_BOOKABLE", Message: "stock is not bookable"}
	ErrOfferInactive           = &Error{Code: "OFFER_INACTIVE", Message: "offer is not active or not validated"}
	ErrBookingLimitPassed      = &Error{Code: "BOOKING_LIMIT_DATETIME_PASSED", Message: "booking limit datetime has passed"}
	ErrEventExpired            = &Error{Code: "EVENT_EXPIRED", Message: "event has already started"}
	ErrNotEnoughStock          = &Error{Code: "STOCK_SOLD_OUT", Message: "not enough remaining quantity"}
	ErrQuantityNotAllowed      = &Error{Code: "QUANTITY_NOT_ALLOWED", Message: "quantity must be 1, or 2 for duo offers"}
	ErrAlreadyBooked           = &Error{Code: "OFFER_ALREADY_BOOKED", Message: "offer already booked by this user"}
	ErrStockLocked             = &Error{Code: "STOCK_LOCKED", Message: "another booking is in progress, retry"}
	ErrBookingIsCancelled      = &Error{Code: "BOOKING_IS_CANCELLED", Message: "booking has been cancelled"}
	ErrBookingIsUsed           = &Error{Code: "BOOKING_IS_USED", Message: "booking has already been used"}
	ErrBookingIsReimbursed     = &Error{Code: "BOOKING_IS_REIMBURSED", Message: "booking has already been reimbursed"}
	ErrBookingNotUsed          = &Error{Code: "BOOKING_NOT_USED", Message: "booking has not been used"}
	ErrBookingNotCancelled     = &Error{Code: "BOOKING_NOT_CANCELLED", Message: "booking is not cancelled"}
	ErrCancellationLimitPassed = &Error{Code: "CANCELLATION_LIMIT_PASSED", Message: "cancellation limit date has passed"}
	ErrUseTooEarly             = &Error{Code: "BOOKING_NOT_YET_USABLE", Message: "event booking cannot be validated before its cancellation limit date"}
	ErrInvalidToken            = &Error{Code: "INVALID_TOKEN", Message: "invalid booking token"}
	ErrTokenGeneration         = &Error{Code: "TOKEN_GENERATION_FAILED", Message: "could not generate a unique token"}
	ErrBookingStatusChanged    = &Error{Code: "BOOKING_STATUS_CHANGED", Message: "booking was modified meanwhile, retry"}
)
