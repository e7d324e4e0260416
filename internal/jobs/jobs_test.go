package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"pcapi/internal/config"
	"pcapi/internal/finance"
	"pcapi/internal/kafka"
	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type MockFinance struct {
	mock.Mock
}

func (m *MockFinance) AddEvent(ctx context.Context, motive models.FinanceEventMotive, ref finance.BookingRef) (*models.FinanceEvent, error) {
	args := m.Called(ctx, motive, ref)
	e, _ := args.Get(0).(*models.FinanceEvent)
	return e, args.Error(1)
}

func (m *MockFinance) CancelEvents(ctx context.Context, motive models.FinanceEventMotive, ref finance.BookingRef) (*models.FinanceEvent, error) {
	args := m.Called(ctx, motive, ref)
	e, _ := args.Get(0).(*models.FinanceEvent)
	return e, args.Error(1)
}

func (m *MockFinance) PriceEvents(ctx context.Context, batchSize int) (int, error) {
	args := m.Called(ctx, batchSize)
	return args.Int(0), args.Error(1)
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

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) EnqueueOffers(ctx context.Context, offerIDs ...int64) error {
	return m.Called(ctx, offerIDs).Error(0)
}

func (m *MockQueue) EnqueueVenues(ctx context.Context, venueIDs ...int64) error {
	return m.Called(ctx, venueIDs).Error(0)
}

func envelope(t *testing.T, topic string, payload interface{}) kafka.Envelope {
	t.Helper()
	env, err := kafka.NewEnvelope(topic, payload, testNow)
	require.NoError(t, err)
	return env
}

func TestBookingUsedAddsFinanceEvent(t *testing.T) {
	fin := new(MockFinance)
	h := NewHandlers(fin, new(MockQueue), logger.Nop())
	fin.On("AddEvent", mock.Anything, models.MotiveBookingUsed, finance.Individual(3)).Return(&models.FinanceEvent{ID: 1}, nil)

	err := h.OnBookingUsed(context.Background(), envelope(t, kafka.TopicBookingUsed, kafka.BookingEvent{BookingID: 3, OfferID: 8}))
	require.NoError(t, err)
	fin.AssertExpectations(t)
}

func TestBookingUsedAfterCancellation(t *testing.T) {
	fin := new(MockFinance)
	queue := new(MockQueue)
	h := NewHandlers(fin, queue, logger.Nop())
	fin.On("AddEvent", mock.Anything, models.MotiveBookingUsedAfterCancellation, finance.Individual(3)).Return(&models.FinanceEvent{ID: 1}, nil)
	queue.On("EnqueueOffers", mock.Anything, []int64{8}).Return(nil)

	err := h.OnBookingUsed(context.Background(), envelope(t, kafka.TopicBookingUsed, kafka.BookingEvent{BookingID: 3, OfferID: 8, AfterCancellation: true}))
	require.NoError(t, err)
	fin.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestBookingUnusedCancelsFinanceEvents(t *testing.T) {
	fin := new(MockFinance)
	h := NewHandlers(fin, new(MockQueue), logger.Nop())
	fin.On("CancelEvents", mock.Anything, models.MotiveBookingUnused, finance.Individual(3)).Return(nil, errors.New("db down"))

	err := h.OnBookingUnused(context.Background(), envelope(t, kafka.TopicBookingUnused, kafka.BookingEvent{BookingID: 3, WasUsed: true}))
	assert.ErrorContains(t, err, "db down")
}

func TestBookingCancelled(t *testing.T) {
	t.Run("never used only reindexes", func(t *testing.T) {
		fin := new(MockFinance)
		queue := new(MockQueue)
		h := NewHandlers(fin, queue, logger.Nop())
		queue.On("EnqueueOffers", mock.Anything, []int64{8}).Return(nil)

		err := h.OnBookingCancelled(context.Background(), envelope(t, kafka.TopicBookingCancelled, kafka.BookingEvent{BookingID: 3, OfferID: 8}))
		require.NoError(t, err)
		fin.AssertNotCalled(t, "CancelEvents", mock.Anything, mock.Anything, mock.Anything)
		queue.AssertExpectations(t)
	})

	t.Run("used booking is reversed", func(t *testing.T) {
		fin := new(MockFinance)
		queue := new(MockQueue)
		h := NewHandlers(fin, queue, logger.Nop())
		fin.On("CancelEvents", mock.Anything, models.MotiveBookingCancelledAfterUse, finance.Individual(3)).Return(&models.FinanceEvent{ID: 2}, nil)
		queue.On("EnqueueOffers", mock.Anything, []int64{8}).Return(nil)

		err := h.OnBookingCancelled(context.Background(), envelope(t, kafka.TopicBookingCancelled, kafka.BookingEvent{BookingID: 3, OfferID: 8, WasUsed: true}))
		require.NoError(t, err)
		fin.AssertExpectations(t)
		queue.AssertExpectations(t)
	})
}

func TestCollectiveBookingUsed(t *testing.T) {
	fin := new(MockFinance)
	h := NewHandlers(fin, new(MockQueue), logger.Nop())
	fin.On("AddEvent", mock.Anything, models.MotiveCollectiveBookingUsed, finance.Collective(5)).Return(&models.FinanceEvent{ID: 1}, nil)

	err := h.OnCollectiveBookingUsed(context.Background(), envelope(t, kafka.TopicCollectiveBookingUsed, kafka.CollectiveBookingEvent{CollectiveBookingID: 5}))
	require.NoError(t, err)
	fin.AssertExpectations(t)
}

func TestHandlersRejectMalformedPayload(t *testing.T) {
	h := NewHandlers(new(MockFinance), new(MockQueue), logger.Nop())
	env := kafka.Envelope{Type: kafka.TopicBookingUsed, Payload: []byte(`"not an object"`)}
	assert.ErrorIs(t, h.OnBookingUsed(context.Background(), env), kafka.ErrMalformedPayload)
}

func TestDispatcherDeliversToHandlers(t *testing.T) {
	fin := new(MockFinance)
	queue := new(MockQueue)
	h := NewHandlers(fin, queue, logger.Nop())
	d := kafka.NewDispatcher(logger.Nop())
	h.Subscribe(d)

	queue.On("EnqueueOffers", mock.Anything, []int64{4, 5}).Return(nil)

	err := d.Publish(context.Background(), kafka.TopicOfferUpdated, "4", kafka.OfferUpdatedEvent{OfferIDs: []int64{4, 5}, Reason: "stock"})
	require.NoError(t, err)
	queue.AssertExpectations(t)
}

func TestOfferUpdatedQueuesVenues(t *testing.T) {
	queue := new(MockQueue)
	h := NewHandlers(new(MockFinance), queue, logger.Nop())
	queue.On("EnqueueVenues", mock.Anything, []int64{2}).Return(nil)

	err := h.OnOfferUpdated(context.Background(), envelope(t, kafka.TopicOfferUpdated, kafka.OfferUpdatedEvent{VenueIDs: []int64{2}, Reason: "venue"}))
	require.NoError(t, err)
	queue.AssertExpectations(t)
	queue.AssertNotCalled(t, "EnqueueOffers", mock.Anything, mock.Anything)
}

type stubJobs struct {
	expired   int
	autoUsed  int
	expiredAt time.Time
}

func (s *stubJobs) CancelExpired(ctx context.Context, now time.Time, batchSize int) (int, error) {
	s.expiredAt = now
	return s.expired, nil
}

func (s *stubJobs) AutoUse(ctx context.Context, now time.Time) (int, error) {
	return s.autoUsed, nil
}

func (s *stubJobs) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *stubJobs) RecreditUnderage(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *stubJobs) IndexQueued(ctx context.Context) (search.Report, error) {
	return search.Report{}, errors.New("search down")
}

func newWorker(fin *MockFinance, stub *stubJobs) *Worker {
	return &Worker{
		Finance:             fin,
		Bookings:            stub,
		Collective:          stub,
		Deposits:            stub,
		Search:              stub,
		Logger:              logger.Nop(),
		Now:                 func() time.Time { return testNow },
		PricingBatchSize:    50,
		ExpirationBatchSize: 10,
	}
}

func TestWorkerJobs(t *testing.T) {
	fin := new(MockFinance)
	stub := &stubJobs{expired: 2}
	w := newWorker(fin, stub)
	ctx := context.Background()

	fin.On("PriceEvents", mock.Anything, 50).Return(4, nil)
	require.NoError(t, w.PriceEvents(ctx))

	require.NoError(t, w.CancelExpiredBookings(ctx))
	assert.Equal(t, testNow, stub.expiredAt)

	require.NoError(t, w.CollectiveAutoUse(ctx))
	assert.ErrorContains(t, w.IndexQueuedOffers(ctx), "search down")
	fin.AssertExpectations(t)
}

func TestGenerateCashflowsUsesParisMidnight(t *testing.T) {
	fin := new(MockFinance)
	w := newWorker(fin, &stubJobs{})

	// 2024-06-10 12:00 UTC is 14:00 in Paris, midnight there is 22:00 UTC the day before
	cutoff := time.Date(2024, 6, 9, 22, 0, 0, 0, time.UTC)
	fin.On("GenerateCashflows", mock.Anything, cutoff).Return(&models.CashflowBatch{ID: 9, Label: "VIR3"}, []*models.Cashflow{{ID: 1}}, nil)
	fin.On("GenerateInvoices", mock.Anything, int64(9)).Return([]*models.Invoice{{ID: 1}}, nil)

	require.NoError(t, w.GenerateCashflows(context.Background()))
	fin.AssertExpectations(t)
}

func TestGenerateCashflowsStopsOnError(t *testing.T) {
	fin := new(MockFinance)
	w := newWorker(fin, &stubJobs{})
	fin.On("GenerateCashflows", mock.Anything, mock.Anything).Return(nil, nil, finance.ErrBatchExists)

	assert.ErrorIs(t, w.GenerateCashflows(context.Background()), finance.ErrBatchExists)
	fin.AssertNotCalled(t, "GenerateInvoices", mock.Anything, mock.Anything)
}

func TestRegisterSchedulesJobs(t *testing.T) {
	s := NewScheduler(logger.Nop(), time.Minute)
	w := newWorker(new(MockFinance), &stubJobs{})

	cfg := config.JobsConfig{
		PriceEvents:       "*/10 * * * *",
		CancelExpired:     "0 3 * * *",
		CollectiveAutoUse: "0 * * * *",
		CollectiveExpire:  "30 * * * *",
		RecreditUnderage:  "0 5 * * *",
		IndexQueuedOffers: "* * * * *",
	}
	require.NoError(t, w.Register(s, cfg))
	assert.Len(t, s.cron.Entries(), 6)

	cfg.GenerateCashflows = "every tuesday"
	assert.Error(t, w.Register(NewScheduler(logger.Nop(), time.Minute), cfg))
}

func TestLookup(t *testing.T) {
	fin := new(MockFinance)
	w := newWorker(fin, &stubJobs{})
	fin.On("PriceEvents", mock.Anything, 50).Return(0, nil)

	job, ok := w.Lookup("price_events")
	require.True(t, ok)
	require.NoError(t, job(context.Background()))
	fin.AssertExpectations(t)

	_, ok = w.Lookup("make_coffee")
	assert.False(t, ok)
}

func TestSchedulerRunAppliesTimeout(t *testing.T) {
	s := NewScheduler(logger.Nop(), 10*time.Millisecond)
	var deadline bool
	s.Run("slow", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, deadline)

	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}
