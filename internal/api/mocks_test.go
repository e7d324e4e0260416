package api

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"pcapi/internal/auth"
	"pcapi/internal/finance"
	"pcapi/internal/models"
	"pcapi/internal/subscription"

	"github.com/stretchr/testify/mock"
)

type MockBookings struct {
	mock.Mock
}

func (m *MockBookings) booking(args mock.Arguments) (*models.Booking, error) {
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookings) Book(ctx context.Context, userID, stockID int64, quantity int) (*models.Booking, error) {
	return m.booking(m.Called(ctx, userID, stockID, quantity))
}

func (m *MockBookings) Get(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID))
}

func (m *MockBookings) ListForUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookings) GetByToken(ctx context.Context, token string) (*models.Booking, error) {
	return m.booking(m.Called(ctx, token))
}

func (m *MockBookings) CancelByBeneficiary(ctx context.Context, userID, bookingID int64) (*models.Booking, error) {
	return m.booking(m.Called(ctx, userID, bookingID))
}

func (m *MockBookings) Cancel(ctx context.Context, bookingID int64, reason models.CancellationReason) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID, reason))
}

func (m *MockBookings) MarkUsed(ctx context.Context, token string) (*models.Booking, error) {
	return m.booking(m.Called(ctx, token))
}

func (m *MockBookings) MarkUnused(ctx context.Context, token string) (*models.Booking, error) {
	return m.booking(m.Called(ctx, token))
}

func (m *MockBookings) MarkUsedAfterCancellation(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID))
}

type MockCollective struct {
	mock.Mock
}

func (m *MockCollective) booking(args mock.Arguments) (*models.CollectiveBooking, error) {
	b, _ := args.Get(0).(*models.CollectiveBooking)
	return b, args.Error(1)
}

func (m *MockCollective) PreBook(ctx context.Context, stockID, institutionID int64, redactorEmail string) (*models.CollectiveBooking, error) {
	return m.booking(m.Called(ctx, stockID, institutionID, redactorEmail))
}

func (m *MockCollective) Confirm(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error) {
	return m.booking(m.Called(ctx, bookingID))
}

func (m *MockCollective) Cancel(ctx context.Context, bookingID int64, reason models.CollectiveCancellationReason) (*models.CollectiveBooking, error) {
	return m.booking(m.Called(ctx, bookingID, reason))
}

type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) RecordFraudCheck(ctx context.Context, userID int64, checkType models.FraudCheckType, thirdPartyID string, content *models.IdentityContent) (*models.BeneficiaryFraudCheck, error) {
	args := m.Called(ctx, userID, checkType, thirdPartyID, content)
	c, _ := args.Get(0).(*models.BeneficiaryFraudCheck)
	return c, args.Error(1)
}

func (m *MockSubscription) ProcessIdentityResult(ctx context.Context, thirdPartyID string, result *models.IdentityContent) (*models.BeneficiaryFraudCheck, error) {
	args := m.Called(ctx, thirdPartyID, result)
	c, _ := args.Get(0).(*models.BeneficiaryFraudCheck)
	return c, args.Error(1)
}

func (m *MockSubscription) NextStep(ctx context.Context, userID int64) (subscription.Step, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(subscription.Step), args.Error(1)
}

type MockFinance struct {
	mock.Mock
}

func (m *MockFinance) GetOffererRevenue(ctx context.Context, offererID int64, year int) (*finance.OffererRevenue, error) {
	args := m.Called(ctx, offererID, year)
	r, _ := args.Get(0).(*finance.OffererRevenue)
	return r, args.Error(1)
}

func (m *MockFinance) GenerateCashflows(ctx context.Context, cutoff time.Time) (*models.CashflowBatch, []*models.Cashflow, error) {
	args := m.Called(ctx, cutoff)
	b, _ := args.Get(0).(*models.CashflowBatch)
	c, _ := args.Get(1).([]*models.Cashflow)
	return b, c, args.Error(2)
}

func (m *MockFinance) GenerateInvoices(ctx context.Context, batchID int64) ([]*models.Invoice, error) {
	args := m.Called(ctx, batchID)
	i, _ := args.Get(0).([]*models.Invoice)
	return i, args.Error(1)
}

func (m *MockFinance) AcceptBatch(ctx context.Context, batchID int64) (int, error) {
	args := m.Called(ctx, batchID)
	return args.Int(0), args.Error(1)
}

func (m *MockFinance) PricingPointRevenue(ctx context.Context, pricingPointID int64, at time.Time) (int64, error) {
	args := m.Called(ctx, pricingPointID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFinance) ExportInvoiceCSV(ctx context.Context, reference string, w io.Writer) error {
	args := m.Called(ctx, reference, w)
	if s, ok := args.Get(0).(string); ok {
		_, _ = io.WriteString(w, s)
		return args.Error(1)
	}
	return args.Error(1)
}

func (m *MockFinance) ExportInvoicePDF(ctx context.Context, reference string, w io.Writer) error {
	args := m.Called(ctx, reference, w)
	if s, ok := args.Get(0).(string); ok {
		_, _ = io.WriteString(w, s)
	}
	return args.Error(1)
}

type stubQR struct{}

func (stubQR) PNG(token string) ([]byte, error) {
	return []byte("png:" + token), nil
}

// tokenVerifier reads tokens shaped "<userID>[,ROLE...]".
type tokenVerifier struct{}

func (tokenVerifier) Verify(ctx context.Context, rawToken string) (auth.Claims, error) {
	parts := strings.Split(rawToken, ",")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return auth.Claims{}, errors.New("bad token")
	}
	return auth.Claims{UserID: id, Email: "user" + parts[0] + "@example.com", Roles: parts[1:]}, nil
}
