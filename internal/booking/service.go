package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pcapi/internal/deposit"
	"pcapi/internal/kafka"
	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/google/uuid"
)

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetStock(ctx context.Context, stockID int64) (*models.Stock, error)
	HasActiveBooking(ctx context.Context, userID, offerID int64) (bool, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	ReserveStock(ctx context.Context, stockID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, stockID int64, quantity int) error
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetBookingByToken(ctx context.Context, token string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking, from models.BookingStatus, columns ...string) error
	ListBookingsToExpire(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
}

// Wallets gives the spending state of beneficiaries.
type Wallets interface {
	Wallet(ctx context.Context, userID int64, now time.Time) (*models.Wallet, error)
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, user *models.User, b *models.Booking, offer *models.Offer) error
	BookingCancelled(ctx context.Context, user *models.User, b *models.Booking, offer *models.Offer) error
}

type Service struct {
	Store     Store
	Wallets   Wallets
	Locker    lock.Locker
	Publisher kafka.Publisher
	Notifier  Notifier
	Logger    *logger.Logger
	LockTTL   time.Duration
	Now       func() time.Time
}

func NewService(store Store, wallets Wallets, locker lock.Locker, publisher kafka.Publisher, notifier Notifier, log *logger.Logger, lockTTL time.Duration) *Service {
	return &Service{
		Store:     store,
		Wallets:   wallets,
		Locker:    locker,
		Publisher: publisher,
		Notifier:  notifier,
		Logger:    log,
		LockTTL:   lockTTL,
		Now:       time.Now,
	}
}

func notFound(err error, domainErr *Error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainErr
	}
	return err
}

// Book reserves quantity places of a stock for a beneficiary.
func (s *Service) Book(ctx context.Context, userID, stockID int64, quantity int) (*models.Booking, error) {
	now := s.Now()

	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	if !user.IsBeneficiary() {
		return nil, ErrNotBeneficiary
	}

	owner := uuid.NewString()
	keys := []string{lock.StockKey(stockID), lock.UserKey(userID)}
	ok, err := s.Locker.AcquireMany(ctx, keys, owner, s.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStockLocked
	}
	defer func() {
		if err := s.Locker.ReleaseMany(context.Background(), keys, owner); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release booking locks for stock %d: %v", stockID, err))
		}
	}()

	stock, err := s.Store.GetStock(ctx, stockID)
	if err != nil {
		return nil, notFound(err, ErrStockNotFound)
	}
	offer := stock.Offer
	if offer == nil {
		return nil, ErrOfferInactive
	}
	if err := CheckQuantity(offer, quantity); err != nil {
		return nil, err
	}
	if err := CheckStockBookable(stock, now, quantity); err != nil {
		return nil, err
	}

	already, err := s.Store.HasActiveBooking(ctx, userID, offer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing bookings: %w", err)
	}
	if already {
		return nil, ErrAlreadyBooked
	}

	wallet, err := s.Wallets.Wallet(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	total := stock.Price * int64(quantity)
	if err := deposit.CheckCanSpend(wallet, offer, total); err != nil {
		return nil, err
	}

	token, err := s.newToken(ctx)
	if err != nil {
		return nil, err
	}

	var offererID int64
	if offer.Venue != nil {
		offererID = offer.Venue.OffererID
	}
	b := &models.Booking{
		Token:                 token,
		UserID:                userID,
		StockID:               stock.ID,
		OfferID:               offer.ID,
		VenueID:               offer.VenueID,
		OffererID:             offererID,
		DepositID:             &wallet.Deposit.ID,
		Quantity:              quantity,
		Amount:                stock.Price,
		Status:                models.BookingConfirmed,
		DateCreated:           now,
		CancellationLimitDate: CancellationLimitDate(offer, stock.BeginningDatetime, now),
		ExpirationDate:        ExpirationDate(offer, now),
	}

	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		reserved, err := tx.ReserveStock(ctx, stock.ID, quantity)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		if !reserved {
			return ErrNotEnoughStock
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.Stock = stock

	s.Logger.LogBooking("CREATE", b.ID, fmt.Sprintf("user %d booked %d x stock %d (token %s)", userID, quantity, stockID, token))
	s.publish(ctx, kafka.TopicBookingCreated, b, nil)
	if err := s.Notifier.BookingConfirmed(ctx, user, b, offer); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to send confirmation email for booking %d: %v", b.ID, err))
	}
	return b, nil
}

func (s *Service) newToken(ctx context.Context) (string, error) {
	for i := 0; i < tokenAttempts; i++ {
		token, err := utils.GenerateBookingToken()
		if err != nil {
			return "", err
		}
		exists, err := s.Store.TokenExists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("failed to check token: %w", err)
		}
		if !exists {
			return token, nil
		}
	}
	return "", ErrTokenGeneration
}

func (s *Service) Get(ctx context.Context, bookingID int64) (*models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, ErrBookingNotFound)
	}
	return b, nil
}

func (s *Service) GetByToken(ctx context.Context, token string) (*models.Booking, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if !utils.IsValidBookingToken(token) {
		return nil, ErrInvalidToken
	}
	b, err := s.Store.GetBookingByToken(ctx, token)
	if err != nil {
		return nil, notFound(err, ErrBookingNotFound)
	}
	return b, nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.Store.ListUserBookings(ctx, userID)
}

// CancelByBeneficiary cancels one of the user's own bookings.
func (s *Service) CancelByBeneficiary(ctx context.Context, userID, bookingID int64) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrBookingNotFound
	}
	return s.cancel(ctx, b, models.CancelledByBeneficiary)
}

// Cancel cancels a booking on behalf of an offerer, support or the system.
func (s *Service) Cancel(ctx context.Context, bookingID int64, reason models.CancellationReason) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, b, reason)
}

// withStockLock runs fn while holding the lock of a stock.
func (s *Service) withStockLock(ctx context.Context, stockID int64, fn func(ctx context.Context) error) error {
	err := s.Locker.WithLock(ctx, lock.StockKey(stockID), uuid.NewString(), s.LockTTL, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return ErrStockLocked
	}
	return err
}

// cancel re-reads b under the stock lock so a concurrent validation is seen.
func (s *Service) cancel(ctx context.Context, b *models.Booking, reason models.CancellationReason) (*models.Booking, error) {
	now := s.Now()
	if err := CheckCanBeCancelled(b, reason, now); err != nil {
		return nil, err
	}

	var (
		cancelled *models.Booking
		wasUsed   bool
		dateUsed  *time.Time
	)
	err := s.withStockLock(ctx, b.StockID, func(ctx context.Context) error {
		return s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			current, err := tx.GetBooking(ctx, b.ID)
			if err != nil {
				return notFound(err, ErrBookingNotFound)
			}
			if err := CheckCanBeCancelled(current, reason, now); err != nil {
				return err
			}

			from := current.Status
			wasUsed = from == models.BookingUsed
			dateUsed = current.DateUsed
			current.Status = models.BookingCancelled
			current.CancellationDate = &now
			current.CancellationReason = reason
			current.DateUsed = nil
			if err := tx.UpdateBooking(ctx, current, from, "status", "cancellation_date", "cancellation_reason", "date_used"); err != nil {
				return fmt.Errorf("failed to cancel booking: %w", err)
			}
			if err := tx.ReleaseStock(ctx, current.StockID, current.Quantity); err != nil {
				return err
			}
			cancelled = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogBooking("CANCEL", cancelled.ID, fmt.Sprintf("reason %s (was used: %t)", reason, wasUsed))
	s.publish(ctx, kafka.TopicBookingCancelled, cancelled, func(e *kafka.BookingEvent) {
		e.WasUsed = wasUsed
		e.DateUsed = dateUsed
	})
	s.notifyCancellation(ctx, cancelled)
	return cancelled, nil
}

func (s *Service) notifyCancellation(ctx context.Context, b *models.Booking) {
	if b.Stock == nil || b.Stock.Offer == nil {
		return
	}
	user, err := s.Store.GetUser(ctx, b.UserID)
	if err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to load user %d for cancellation email: %v", b.UserID, err))
		return
	}
	if err := s.Notifier.BookingCancelled(ctx, user, b, b.Stock.Offer); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to send cancellation email for booking %d: %v", b.ID, err))
	}
}

// MarkUsed validates the countermark of a booking.
func (s *Service) MarkUsed(ctx context.Context, token string) (*models.Booking, error) {
	b, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if err := CheckCanBeUsed(b, now); err != nil {
		return nil, err
	}

	err = s.withStockLock(ctx, b.StockID, func(ctx context.Context) error {
		current, err := s.Store.GetBooking(ctx, b.ID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		if err := CheckCanBeUsed(current, now); err != nil {
			return err
		}
		current.Status = models.BookingUsed
		current.DateUsed = &now
		if err := s.Store.UpdateBooking(ctx, current, models.BookingConfirmed, "status", "date_used"); err != nil {
			return fmt.Errorf("failed to mark booking used: %w", err)
		}
		b = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogBooking("USE", b.ID, "marked as used")
	s.publish(ctx, kafka.TopicBookingUsed, b, nil)
	return b, nil
}

// MarkUnused reverts a validation that has not been reimbursed yet.
func (s *Service) MarkUnused(ctx context.Context, token string) (*models.Booking, error) {
	b, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := CheckCanBeUnused(b); err != nil {
		return nil, err
	}

	var dateUsed *time.Time
	err = s.withStockLock(ctx, b.StockID, func(ctx context.Context) error {
		current, err := s.Store.GetBooking(ctx, b.ID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		if err := CheckCanBeUnused(current); err != nil {
			return err
		}
		dateUsed = current.DateUsed
		current.Status = models.BookingConfirmed
		current.DateUsed = nil
		if err := s.Store.UpdateBooking(ctx, current, models.BookingUsed, "status", "date_used"); err != nil {
			return fmt.Errorf("failed to mark booking unused: %w", err)
		}
		b = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogBooking("UNUSE", b.ID, "marked as unused")
	s.publish(ctx, kafka.TopicBookingUnused, b, func(e *kafka.BookingEvent) {
		e.WasUsed = true
		e.DateUsed = dateUsed
	})
	return b, nil
}

// MarkUsedAfterCancellation un-cancels a booking and validates it in one go.
func (s *Service) MarkUsedAfterCancellation(ctx context.Context, bookingID int64) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingCancelled {
		return nil, ErrBookingNotCancelled
	}

	now := s.Now()
	err = s.withStockLock(ctx, b.StockID, func(ctx context.Context) error {
		return s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			current, err := tx.GetBooking(ctx, bookingID)
			if err != nil {
				return notFound(err, ErrBookingNotFound)
			}
			if current.Status != models.BookingCancelled {
				return ErrBookingNotCancelled
			}
			reserved, err := tx.ReserveStock(ctx, current.StockID, current.Quantity)
			if err != nil {
				return err
			}
			if !reserved {
				return ErrNotEnoughStock
			}
			current.Status = models.BookingUsed
			current.DateUsed = &now
			current.CancellationDate = nil
			current.CancellationReason = ""
			if err := tx.UpdateBooking(ctx, current, models.BookingCancelled, "status", "date_used", "cancellation_date", "cancellation_reason"); err != nil {
				return fmt.Errorf("failed to mark booking used: %w", err)
			}
			b = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogBooking("USE", b.ID, "uncancelled and marked as used")
	s.publish(ctx, kafka.TopicBookingUsed, b, func(e *kafka.BookingEvent) {
		e.AfterCancellation = true
	})
	return b, nil
}

// CancelExpired cancels unused confirmed bookings past their expiration date.
func (s *Service) CancelExpired(ctx context.Context, now time.Time, batchSize int) (int, error) {
	cancelled := 0
	for {
		bookings, err := s.Store.ListBookingsToExpire(ctx, now, batchSize)
		if err != nil {
			return cancelled, fmt.Errorf("failed to list bookings to expire: %w", err)
		}
		if len(bookings) == 0 {
			return cancelled, nil
		}

		progressed := 0
		for _, b := range bookings {
			if _, err := s.cancel(ctx, b, models.CancelledExpired); err != nil {
				s.Logger.Error("BOOKING", fmt.Sprintf("Failed to expire booking %d: %v", b.ID, err))
				continue
			}
			progressed++
		}
		cancelled += progressed

		if progressed == 0 || len(bookings) < batchSize {
			return cancelled, nil
		}
	}
}

func (s *Service) publish(ctx context.Context, topic string, b *models.Booking, edit func(e *kafka.BookingEvent)) {
	event := kafka.BookingEvent{
		BookingID:          b.ID,
		Token:              b.Token,
		UserID:             b.UserID,
		OfferID:            b.OfferID,
		StockID:            b.StockID,
		VenueID:            b.VenueID,
		Quantity:           b.Quantity,
		Amount:             b.Amount,
		Status:             string(b.Status),
		CancellationReason: string(b.CancellationReason),
		DateUsed:           b.DateUsed,
	}
	if edit != nil {
		edit(&event)
	}
	if err := s.Publisher.Publish(ctx, topic, strconv.FormatInt(b.ID, 10), event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for booking %d: %v", topic, b.ID, err))
	}
}
