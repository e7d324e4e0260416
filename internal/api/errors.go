package api

import (
	"errors"
	"net/http"

	"pcapi/internal/booking"
	"pcapi/internal/deposit"
	"pcapi/internal/educational"
	"pcapi/internal/finance"
	"pcapi/internal/logger"
	"pcapi/internal/subscription"
	"pcapi/internal/utils"

	"github.com/go-playground/validator/v10"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{deposit.ErrInsufficientFunds, http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
	{deposit.ErrDigitalCapExceeded, http.StatusBadRequest, "DIGITAL_CAP_EXCEEDED"},
	{deposit.ErrNoActiveDeposit, http.StatusBadRequest, "NO_ACTIVE_DEPOSIT"},
	{deposit.ErrNotEligible, http.StatusBadRequest, "NOT_ELIGIBLE"},
	{deposit.ErrAlreadyGranted, http.StatusConflict, "DEPOSIT_ALREADY_GRANTED"},
	{deposit.ErrMissingBirthDate, http.StatusBadRequest, "MISSING_BIRTH_DATE"},

	{educational.ErrStockNotFound, http.StatusNotFound, "COLLECTIVE_STOCK_NOT_FOUND"},
	{educational.ErrInstitutionNotFound, http.StatusNotFound, "INSTITUTION_NOT_FOUND"},
	{educational.ErrBookingNotFound, http.StatusNotFound, "COLLECTIVE_BOOKING_NOT_FOUND"},
	{educational.ErrOfferNotBookable, http.StatusBadRequest, "COLLECTIVE_OFFER_NOT_BOOKABLE"},
	{educational.ErrBookingLimitPassed, http.StatusBadRequest, "BOOKING_LIMIT_DATETIME_PASSED"},
	{educational.ErrStockAlreadyBooked, http.StatusConflict, "COLLECTIVE_STOCK_ALREADY_BOOKED"},
	{educational.ErrNotPending, http.StatusBadRequest, "COLLECTIVE_BOOKING_NOT_PENDING"},
	{educational.ErrConfirmationLimitPassed, http.StatusBadRequest, "CONFIRMATION_LIMIT_DATE_PASSED"},
	{educational.ErrNoDeposit, http.StatusBadRequest, "NO_EDUCATIONAL_DEPOSIT"},
	{educational.ErrInsufficientFund, http.StatusBadRequest, "INSUFFICIENT_EDUCATIONAL_FUND"},
	{educational.ErrBookingIsCancelled, http.StatusBadRequest, "COLLECTIVE_BOOKING_IS_CANCELLED"},
	{educational.ErrBookingIsUsed, http.StatusBadRequest, "COLLECTIVE_BOOKING_IS_USED"},
	{educational.ErrBookingIsReimbursed, http.StatusBadRequest, "COLLECTIVE_BOOKING_IS_REIMBURSED"},
	{educational.ErrStockLocked, http.StatusConflict, "EDUCATIONAL_DEPOSIT_LOCKED"},

	{finance.ErrBatchNotFound, http.StatusNotFound, "CASHFLOW_BATCH_NOT_FOUND"},
	{finance.ErrInvoiceNotFound, http.StatusNotFound, "INVOICE_NOT_FOUND"},
	{finance.ErrInvoicePDFDisabled, http.StatusNotImplemented, "INVOICE_PDF_DISABLED"},
	{finance.ErrBatchExists, http.StatusConflict, "CASHFLOW_BATCH_EXISTS"},
	{finance.ErrGenerationInProgress, http.StatusConflict, "GENERATION_IN_PROGRESS"},

	{subscription.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{subscription.ErrFraudCheckNotFound, http.StatusNotFound, "FRAUD_CHECK_NOT_FOUND"},
	{subscription.ErrNotEligible, http.StatusBadRequest, "NOT_ELIGIBLE"},
	{subscription.ErrAlreadyProcessed, http.StatusConflict, "FRAUD_CHECK_ALREADY_PROCESSED"},
	{subscription.ErrTooManyAttempts, http.StatusBadRequest, "TOO_MANY_ATTEMPTS"},
	{subscription.ErrCheckInProgress, http.StatusConflict, "IDENTITY_CHECK_IN_PROGRESS"},
	{subscription.ErrIdentityMaintenance, http.StatusServiceUnavailable, "IDENTITY_CHECK_MAINTENANCE"},
	{subscription.ErrIncomplete, http.StatusBadRequest, "SUBSCRIPTION_INCOMPLETE"},
	{subscription.ErrAlreadyBeneficiary, http.StatusConflict, "ALREADY_BENEFICIARY"},
	{subscription.ErrUnsupportedCheckType, http.StatusBadRequest, "UNSUPPORTED_CHECK_TYPE"},

	{errMissingClaims, http.StatusUnauthorized, "UNAUTHORIZED"},
}

var bookingStatus = map[string]int{
	booking.ErrBookingNotFound.Code:      http.StatusNotFound,
	booking.ErrStockNotFound.Code:        http.StatusNotFound,
	booking.ErrUserNotFound.Code:         http.StatusNotFound,
	booking.ErrNotBeneficiary.Code:       http.StatusForbidden,
	booking.ErrStockLocked.Code:          http.StatusConflict,
	booking.ErrAlreadyBooked.Code:        http.StatusConflict,
	booking.ErrBookingStatusChanged.Code: http.StatusConflict,
}

// WriteError maps a domain error to a status code and the JSON envelope.
// Unknown errors are logged and answered with a 500.
func WriteError(w http.ResponseWriter, log *logger.Logger, err error) {
	var bErr *booking.Error
	if errors.As(err, &bErr) {
		status, ok := bookingStatus[bErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		utils.WriteJSON(w, status, utils.CodedErrorResponse("Booking refused", bErr.Code, bErr.Message))
		return
	}

	var rErr *requestError
	if errors.As(err, &rErr) {
		utils.WriteJSON(w, http.StatusBadRequest, utils.CodedErrorResponse("Invalid request", "INVALID_REQUEST", rErr.msg))
		return
	}

	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		utils.WriteJSON(w, http.StatusBadRequest, utils.CodedErrorResponse("Invalid request", "VALIDATION_ERROR", vErrs.Error()))
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			utils.WriteJSON(w, m.status, utils.CodedErrorResponse(http.StatusText(m.status), m.code, m.err.Error()))
			return
		}
	}

	log.Error("API", err.Error())
	utils.WriteJSON(w, http.StatusInternalServerError, utils.CodedErrorResponse("Internal error", "INTERNAL_ERROR", "unexpected error"))
}
