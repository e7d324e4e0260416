package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"pcapi/internal/auth"
	"pcapi/internal/finance"
	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/subscription"
	"pcapi/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type BookingService interface {
	Book(ctx context.Context, userID, stockID int64, quantity int) (*models.Booking, error)
	Get(ctx context.Context, bookingID int64) (*models.Booking, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	GetByToken(ctx context.Context, token string) (*models.Booking, error)
	CancelByBeneficiary(ctx context.Context, userID, bookingID int64) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID int64, reason models.CancellationReason) (*models.Booking, error)
	MarkUsed(ctx context.Context, token string) (*models.Booking, error)
	MarkUnused(ctx context.Context, token string) (*models.Booking, error)
	MarkUsedAfterCancellation(ctx context.Context, bookingID int64) (*models.Booking, error)
}

type CollectiveService interface {
	PreBook(ctx context.Context, stockID, institutionID int64, redactorEmail string) (*models.CollectiveBooking, error)
	Confirm(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error)
	Cancel(ctx context.Context, bookingID int64, reason models.CollectiveCancellationReason) (*models.CollectiveBooking, error)
}

type SubscriptionService interface {
	RecordFraudCheck(ctx context.Context, userID int64, checkType models.FraudCheckType, thirdPartyID string, content *models.IdentityContent) (*models.BeneficiaryFraudCheck, error)
	ProcessIdentityResult(ctx context.Context, thirdPartyID string, result *models.IdentityContent) (*models.BeneficiaryFraudCheck, error)
	NextStep(ctx context.Context, userID int64) (subscription.Step, error)
}

type FinanceService interface {
	GetOffererRevenue(ctx context.Context, offererID int64, year int) (*finance.OffererRevenue, error)
	GenerateCashflows(ctx context.Context, cutoff time.Time) (*models.CashflowBatch, []*models.Cashflow, error)
	GenerateInvoices(ctx context.Context, batchID int64) ([]*models.Invoice, error)
	AcceptBatch(ctx context.Context, batchID int64) (int, error)
	PricingPointRevenue(ctx context.Context, pricingPointID int64, at time.Time) (int64, error)
	ExportInvoiceCSV(ctx context.Context, reference string, w io.Writer) error
	ExportInvoicePDF(ctx context.Context, reference string, w io.Writer) error
}

// QRRenderer draws a booking countermark.
type QRRenderer interface {
	PNG(token string) ([]byte, error)
}

// HealthCheck reports whether one dependency answers.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Bookings     BookingService
	Collective   CollectiveService
	Subscription SubscriptionService
	Finance      FinanceService
	QR           QRRenderer
	Checks       map[string]HealthCheck
	Logger       *logger.Logger
	Now          func() time.Time

	validate *validator.Validate
}

func NewHandler(bookings BookingService, collective CollectiveService, sub SubscriptionService, fin FinanceService, qr QRRenderer, log *logger.Logger) *Handler {
	return &Handler{
		Bookings:     bookings,
		Collective:   collective,
		Subscription: sub,
		Finance:      fin,
		QR:           qr,
		Checks:       map[string]HealthCheck{},
		Logger:       log,
		Now:          time.Now,
		validate:     validator.New(),
	}
}

var errMissingClaims = errors.New("missing credentials")

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &requestError{msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	if h.validate == nil {
		h.validate = validator.New()
	}
	return h.validate.Struct(dst)
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{msg: fmt.Sprintf("invalid %s", name)}
	}
	return id, nil
}

func claims(r *http.Request) (auth.Claims, error) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Claims{}, errMissingClaims
	}
	return c, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			h.Logger.Error("HEALTH", fmt.Sprintf("%s check failed: %v", name, err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.APIResponse{
			Success:   false,
			Message:   "Service degraded",
			Data:      status,
			Timestamp: h.Now(),
		})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("OK", status))
}
