package booking

import (
	"context"
	"testing"
	"time"

	"pcapi/internal/database/dbtest"
	"pcapi/internal/deposit"
	"pcapi/internal/kafka"
	"pcapi/internal/kafka/kafkatest"
	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) BookingConfirmed(ctx context.Context, user *models.User, b *models.Booking, offer *models.Offer) error {
	args := m.Called(user.ID, b.Token)
	return args.Error(0)
}

func (m *MockNotifier) BookingCancelled(ctx context.Context, user *models.User, b *models.Booking, offer *models.Offer) error {
	args := m.Called(user.ID, b.Token)
	return args.Error(0)
}

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *bun.DB
	svc       *Service
	redis     *miniredis.Miniredis
	published *kafkatest.Recorder
	notifier  *MockNotifier
	user      *models.User
	offer     *models.Offer
	stock     *models.Stock
}

// newFixture stores a beneficiary with a fresh GRANT_18 deposit and a
// bookable book offer whose stock holds quantity items at price cents.
func newFixture(t *testing.T, price int64, quantity int) *fixture {
	t.Helper()
	db := dbtest.New(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	user := &models.User{Email: "jeune@example.com", Roles: []models.UserRole{models.RoleBeneficiary}, CreatedAt: testNow}
	offerer := &models.Offerer{Name: "Librairie", IsValidated: true, IsActive: true, CreatedAt: testNow}
	dbtest.Insert(t, db, user, offerer)
	venue := &models.Venue{OffererID: offerer.ID, Name: "Librairie du port"}
	dbtest.Insert(t, db, venue)
	offer := &models.Offer{VenueID: venue.ID, Name: "Roman", SubcategoryID: "LIVRE_PAPIER", IsActive: true, IsDuo: true,
		Validation: models.ValidationApproved, CreatedAt: testNow}
	dbtest.Insert(t, db, offer)
	stock := &models.Stock{OfferID: offer.ID, Price: price, Quantity: &quantity}
	expires := testNow.AddDate(2, 0, 0)
	dep := &models.Deposit{UserID: user.ID, Amount: deposit.Grant18Amount, Type: models.DepositGrant18, Source: "test",
		DateCreated: testNow.AddDate(0, -1, 0), ExpirationDate: &expires}
	dbtest.Insert(t, db, stock, dep)

	published := &kafkatest.Recorder{}
	notifier := &MockNotifier{}
	notifier.On("BookingConfirmed", mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("BookingCancelled", mock.Anything, mock.Anything).Return(nil).Maybe()

	wallets := deposit.NewService(&deposit.DB{Bun: db}, logger.Nop())
	svc := NewService(&DB{Bun: db}, wallets, lock.NewRedis(client, logger.Nop()), published, notifier, logger.Nop(), time.Second)
	svc.Now = func() time.Time { return testNow }

	return &fixture{db: db, svc: svc, redis: mr, published: published, notifier: notifier, user: user, offer: offer, stock: stock}
}

func (f *fixture) bookedQuantity(t *testing.T) int {
	t.Helper()
	var stock models.Stock
	require.NoError(t, f.db.NewSelect().Model(&stock).Where("id = ?", f.stock.ID).Scan(context.Background()))
	return stock.DnBookedQuantity
}

func TestBookCreatesBookingAndReservesStock(t *testing.T) {
	f := newFixture(t, 1200, 5)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 2)
	require.NoError(t, err)

	assert.True(t, utils.IsValidBookingToken(b.Token))
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, int64(2400), b.TotalAmount())
	require.NotNil(t, b.ExpirationDate)
	assert.Equal(t, testNow.AddDate(0, 0, 10), *b.ExpirationDate)
	assert.Nil(t, b.CancellationLimitDate)
	assert.Equal(t, 2, f.bookedQuantity(t))

	var event kafka.BookingEvent
	require.True(t, f.published.Last(kafka.TopicBookingCreated, &event))
	assert.Equal(t, b.ID, event.BookingID)
	assert.Equal(t, 2, event.Quantity)
	f.notifier.AssertCalled(t, "BookingConfirmed", f.user.ID, b.Token)

	wallet, err := f.svc.Wallets.Wallet(ctx, f.user.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, deposit.Grant18Amount-2400, wallet.Remaining)
	assert.False(t, f.redis.Exists(lock.StockKey(f.stock.ID)), "locks are released")
}

func TestBookRefusesSecondBookingOfSameOffer(t *testing.T) {
	f := newFixture(t, 1000, 5)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyBooked)
	assert.Equal(t, 1, f.bookedQuantity(t))
}

func TestBookRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("sold out", func(t *testing.T) {
		f := newFixture(t, 1000, 1)
		_, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 2)
		assert.ErrorIs(t, err, ErrNotEnoughStock)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		f := newFixture(t, 40000, 1)
		_, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
		assert.ErrorIs(t, err, deposit.ErrInsufficientFunds)
		assert.Equal(t, 0, f.bookedQuantity(t))
	})

	t.Run("stock locked", func(t *testing.T) {
		f := newFixture(t, 1000, 1)
		require.NoError(t, f.redis.Set(lock.StockKey(f.stock.ID), "someone-else"))
		_, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
		assert.ErrorIs(t, err, ErrStockLocked)
	})

	t.Run("unknown stock", func(t *testing.T) {
		f := newFixture(t, 1000, 1)
		_, err := f.svc.Book(ctx, f.user.ID, 9999, 1)
		assert.ErrorIs(t, err, ErrStockNotFound)
	})

	t.Run("not a beneficiary", func(t *testing.T) {
		f := newFixture(t, 1000, 1)
		pro := &models.User{Email: "pro@example.com", Roles: []models.UserRole{models.RolePro}, CreatedAt: testNow}
		dbtest.Insert(t, f.db, pro)
		_, err := f.svc.Book(ctx, pro.ID, f.stock.ID, 1)
		assert.ErrorIs(t, err, ErrNotBeneficiary)
	})
}

func TestCancelByBeneficiaryReleasesStock(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.CancelByBeneficiary(ctx, f.user.ID+1, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	cancelled, err := f.svc.CancelByBeneficiary(ctx, f.user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, models.CancelledByBeneficiary, cancelled.CancellationReason)
	assert.Equal(t, 0, f.bookedQuantity(t))

	var event kafka.BookingEvent
	require.True(t, f.published.Last(kafka.TopicBookingCancelled, &event))
	assert.False(t, event.WasUsed)
	f.notifier.AssertCalled(t, "BookingCancelled", f.user.ID, b.Token)

	_, err = f.svc.CancelByBeneficiary(ctx, f.user.ID, b.ID)
	assert.ErrorIs(t, err, ErrBookingIsCancelled)
}

func TestMarkUsedAndUnused(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.MarkUsed(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	used, err := f.svc.MarkUsed(ctx, b.Token)
	require.NoError(t, err)
	assert.Equal(t, models.BookingUsed, used.Status)
	require.NotNil(t, used.DateUsed)

	_, err = f.svc.MarkUsed(ctx, b.Token)
	assert.ErrorIs(t, err, ErrBookingIsUsed)

	unused, err := f.svc.MarkUnused(ctx, b.Token)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, unused.Status)
	assert.Nil(t, unused.DateUsed)

	assert.Equal(t, []string{
		kafka.TopicBookingCreated,
		kafka.TopicBookingUsed,
		kafka.TopicBookingUnused,
	}, f.published.Topics())
}

func TestCancelUsedBookingReportsWasUsed(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.MarkUsed(ctx, b.Token)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, b.ID, models.CancelledByOfferer)
	require.NoError(t, err)

	var event kafka.BookingEvent
	require.True(t, f.published.Last(kafka.TopicBookingCancelled, &event))
	assert.True(t, event.WasUsed)
	assert.NotNil(t, event.DateUsed, "date used is reported")
}

func TestMarkUsedAfterCancellation(t *testing.T) {
	f := newFixture(t, 1000, 1)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, b.ID, models.CancelledBySupport)
	require.NoError(t, err)

	_, err = f.svc.MarkUsedAfterCancellation(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.bookedQuantity(t))

	var event kafka.BookingEvent
	require.True(t, f.published.Last(kafka.TopicBookingUsed, &event))
	assert.True(t, event.AfterCancellation)

	_, err = f.svc.MarkUsedAfterCancellation(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotCancelled)
}

func TestCancelExpired(t *testing.T) {
	f := newFixture(t, 1000, 10)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	n, err := f.svc.CancelExpired(ctx, testNow.AddDate(0, 0, 9), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.CancelExpired(ctx, testNow.AddDate(0, 0, 11), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, expired.Status)
	assert.Equal(t, models.CancelledExpired, expired.CancellationReason)
	assert.Equal(t, 0, f.bookedQuantity(t))
}

// hookLocker runs before once, ahead of the first lock it is asked for.
type hookLocker struct {
	lock.Locker
	before func()
}

func (h *hookLocker) WithLock(ctx context.Context, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if before := h.before; before != nil {
		h.before = nil
		before()
	}
	return h.Locker.WithLock(ctx, key, owner, ttl, fn)
}

func TestCancelSeesValidationMadeWhileWaitingForLock(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	hooked := &hookLocker{Locker: f.svc.Locker}
	hooked.before = func() {
		_, err := f.svc.MarkUsed(ctx, b.Token)
		require.NoError(t, err)
	}
	f.svc.Locker = hooked

	cancelled, err := f.svc.Cancel(ctx, b.ID, models.CancelledByOfferer)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Nil(t, cancelled.DateUsed)

	var event kafka.BookingEvent
	require.True(t, f.published.Last(kafka.TopicBookingCancelled, &event))
	assert.True(t, event.WasUsed, "the validation made meanwhile is reversed")
	assert.Equal(t, 0, f.bookedQuantity(t))
}

func TestBeneficiaryCannotCancelBookingValidatedMeanwhile(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	hooked := &hookLocker{Locker: f.svc.Locker}
	hooked.before = func() {
		_, err := f.svc.MarkUsed(ctx, b.Token)
		require.NoError(t, err)
	}
	f.svc.Locker = hooked

	_, err = f.svc.CancelByBeneficiary(ctx, f.user.ID, b.ID)
	assert.ErrorIs(t, err, ErrBookingIsUsed)

	current, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingUsed, current.Status)
	assert.Equal(t, 1, f.bookedQuantity(t))
}

func TestMarkUsedWaitsForStockLock(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.redis.Set(lock.StockKey(f.stock.ID), "someone-else"))
	_, err = f.svc.MarkUsed(ctx, b.Token)
	assert.ErrorIs(t, err, ErrStockLocked)
	_, err = f.svc.Cancel(ctx, b.ID, models.CancelledByOfferer)
	assert.ErrorIs(t, err, ErrStockLocked)
}

func TestUpdateBookingChecksStoredStatus(t *testing.T) {
	f := newFixture(t, 1000, 3)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, f.user.ID, f.stock.ID, 1)
	require.NoError(t, err)

	store := &DB{Bun: f.db}
	b.Status = models.BookingUsed
	err = store.UpdateBooking(ctx, b, models.BookingCancelled, "status")
	assert.ErrorIs(t, err, ErrBookingStatusChanged)

	require.NoError(t, store.UpdateBooking(ctx, b, models.BookingConfirmed, "status"))
	stored, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingUsed, stored.Status)
}
