package educational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pcapi/internal/kafka"
	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/models"

	"github.com/google/uuid"
)

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	GetStock(ctx context.Context, stockID int64) (*models.CollectiveStock, error)
	GetInstitution(ctx context.Context, institutionID int64) (*models.EducationalInstitution, error)
	HasActiveBooking(ctx context.Context, stockID int64) (bool, error)
	CreateBooking(ctx context.Context, b *models.CollectiveBooking) error
	GetBooking(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error)
	UpdateBooking(ctx context.Context, b *models.CollectiveBooking, columns ...string) error
	GetDeposit(ctx context.Context, institutionID int64, yearID string) (*models.EducationalDeposit, error)
	EngagedAmount(ctx context.Context, institutionID int64, yearID string) (int64, error)
	ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*models.CollectiveBooking, error)
	ListPendingPastLimit(ctx context.Context, t time.Time) ([]*models.CollectiveBooking, error)
}

type Notifier interface {
	CollectiveBookingConfirmed(ctx context.Context, venue *models.Venue, b *models.CollectiveBooking, offer *models.CollectiveOffer, price int64) error
}

type Service struct {
	Store     Store
	Locker    lock.Locker
	Publisher kafka.Publisher
	Notifier  Notifier
	Logger    *logger.Logger
	LockTTL   time.Duration
	Now       func() time.Time
}

func NewService(store Store, locker lock.Locker, publisher kafka.Publisher, notifier Notifier, log *logger.Logger, lockTTL time.Duration) *Service {
	return &Service{
		Store:     store,
		Locker:    locker,
		Publisher: publisher,
		Notifier:  notifier,
		Logger:    log,
		LockTTL:   lockTTL,
		Now:       time.Now,
	}
}

func orNotFound(err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// PreBook creates a pending booking of a collective stock for an institution.
func (s *Service) PreBook(ctx context.Context, stockID, institutionID int64, redactorEmail string) (*models.CollectiveBooking, error) {
	now := s.Now()

	stock, err := s.Store.GetStock(ctx, stockID)
	if err != nil {
		return nil, orNotFound(err, ErrStockNotFound)
	}
	if err := CheckStockBookable(stock, now); err != nil {
		return nil, err
	}
	if _, err := s.Store.GetInstitution(ctx, institutionID); err != nil {
		return nil, orNotFound(err, ErrInstitutionNotFound)
	}

	var offererID int64
	if venue := stock.CollectiveOffer.Venue; venue != nil {
		offererID = venue.OffererID
	}
	b := &models.CollectiveBooking{
		CollectiveStockID:     stock.ID,
		VenueID:               stock.CollectiveOffer.VenueID,
		OffererID:             offererID,
		InstitutionID:         institutionID,
		EducationalYearID:     models.EducationalYearID(stock.BeginningDatetime),
		RedactorEmail:         redactorEmail,
		Status:                models.CollectiveBookingPending,
		DateCreated:           now,
		ConfirmationLimitDate: ConfirmationLimit(stock),
	}

	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		booked, err := tx.HasActiveBooking(ctx, stock.ID)
		if err != nil {
			return err
		}
		if booked {
			return ErrStockAlreadyBooked
		}
		return tx.CreateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	b.CollectiveStock = stock

	s.Logger.Info("EDUCATIONAL", fmt.Sprintf("Collective booking %d pre-booked on stock %d by institution %d", b.ID, stockID, institutionID))
	return b, nil
}

// Confirm engages the institution's deposit for a pending booking.
func (s *Service) Confirm(ctx context.Context, bookingID int64) (*models.CollectiveBooking, error) {
	now := s.Now()

	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, orNotFound(err, ErrBookingNotFound)
	}
	if err := CheckCanConfirm(b, now); err != nil {
		return nil, err
	}

	owner := uuid.NewString()
	key := lock.EducationalDepositKey(b.InstitutionID, b.EducationalYearID)
	ok, err := s.Locker.Acquire(ctx, key, owner, s.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStockLocked
	}
	defer s.Locker.Release(context.Background(), key, owner)

	deposit, err := s.Store.GetDeposit(ctx, b.InstitutionID, b.EducationalYearID)
	if err != nil {
		return nil, orNotFound(err, ErrNoDeposit)
	}
	engaged, err := s.Store.EngagedAmount(ctx, b.InstitutionID, b.EducationalYearID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute engaged amount: %w", err)
	}
	price := b.CollectiveStock.Price
	if err := CheckDepositCovers(deposit, engaged, price); err != nil {
		return nil, err
	}

	b.Status = models.CollectiveBookingConfirmed
	b.ConfirmationDate = &now
	if err := s.Store.UpdateBooking(ctx, b, "status", "confirmation_date"); err != nil {
		return nil, fmt.Errorf("failed to confirm collective booking: %w", err)
	}

	s.Logger.Info("EDUCATIONAL", fmt.Sprintf("Collective booking %d confirmed (%d of %d engaged)", b.ID, engaged+price, EngageableAmount(deposit)))

	offer := b.CollectiveStock.CollectiveOffer
	if offer != nil && offer.Venue != nil {
		if err := s.Notifier.CollectiveBookingConfirmed(ctx, offer.Venue, b, offer, price); err != nil {
			s.Logger.Error("EDUCATIONAL", fmt.Sprintf("Failed to notify venue of booking %d: %v", b.ID, err))
		}
	}
	return b, nil
}

func (s *Service) Cancel(ctx context.Context, bookingID int64, reason models.CollectiveCancellationReason) (*models.CollectiveBooking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, orNotFound(err, ErrBookingNotFound)
	}
	if err := CheckCanCancel(b); err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, b, reason); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) cancel(ctx context.Context, b *models.CollectiveBooking, reason models.CollectiveCancellationReason) error {
	now := s.Now()
	b.Status = models.CollectiveBookingCancelled
	b.CancellationDate = &now
	b.CancellationReason = reason
	if err := s.Store.UpdateBooking(ctx, b, "status", "cancellation_date", "cancellation_reason"); err != nil {
		return fmt.Errorf("failed to cancel collective booking %d: %w", b.ID, err)
	}
	s.Logger.Info("EDUCATIONAL", fmt.Sprintf("Collective booking %d cancelled (%s)", b.ID, reason))
	return nil
}

// AutoUse marks as used the confirmed bookings whose event ended more than
// AutoUseDelay before now, and publishes one event per booking.
func (s *Service) AutoUse(ctx context.Context, now time.Time) (int, error) {
	bookings, err := s.Store.ListConfirmedEndedBefore(ctx, now.Add(-AutoUseDelay))
	if err != nil {
		return 0, fmt.Errorf("failed to list bookings to auto-use: %w", err)
	}

	used := 0
	for _, b := range bookings {
		b.Status = models.CollectiveBookingUsed
		b.DateUsed = &now
		if err := s.Store.UpdateBooking(ctx, b, "status", "date_used"); err != nil {
			s.Logger.Error("EDUCATIONAL", fmt.Sprintf("Failed to auto-use collective booking %d: %v", b.ID, err))
			continue
		}
		used++

		event := kafka.CollectiveBookingEvent{
			CollectiveBookingID: b.ID,
			CollectiveStockID:   b.CollectiveStockID,
			VenueID:             b.VenueID,
			InstitutionID:       b.InstitutionID,
			DateUsed:            b.DateUsed,
		}
		if b.CollectiveStock != nil {
			event.Amount = b.CollectiveStock.Price
		}
		if err := s.Publisher.Publish(ctx, kafka.TopicCollectiveBookingUsed, strconv.FormatInt(b.ID, 10), event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish use of collective booking %d: %v", b.ID, err))
		}
	}
	return used, nil
}

// ExpirePending cancels pending bookings whose confirmation limit has passed.
func (s *Service) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	bookings, err := s.Store.ListPendingPastLimit(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending collective bookings: %w", err)
	}
	expired := 0
	for _, b := range bookings {
		if err := s.cancel(ctx, b, models.CollectiveCancelledExpired); err != nil {
			s.Logger.Error("EDUCATIONAL", err.Error())
			continue
		}
		expired++
	}
	return expired, nil
}
