package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/models"

	"github.com/google/uuid"
)

var ErrIndexingInProgress = errors.New("offer indexing already in progress")

type Store interface {
	ListOffers(ctx context.Context, offerIDs []int64) ([]*models.Offer, error)
	ListVenueOfferIDs(ctx context.Context, venueIDs []int64) ([]int64, error)
}

var _ Store = (*DB)(nil)

type Options struct {
	BatchSize int
	LockTTL   time.Duration
}

type Service struct {
	Store   Store
	Queue   *Queue
	Backend Backend
	Locker  lock.Locker
	Logger  *logger.Logger
	Options Options
	Now     func() time.Time
}

func NewService(store Store, queue *Queue, backend Backend, locker lock.Locker, log *logger.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	return &Service{Store: store, Queue: queue, Backend: backend, Locker: locker, Logger: log, Options: opts, Now: time.Now}
}

func (s *Service) EnqueueOffers(ctx context.Context, offerIDs ...int64) error {
	return s.Queue.add(ctx, OffersQueueKey, offerIDs)
}

func (s *Service) EnqueueVenues(ctx context.Context, venueIDs ...int64) error {
	return s.Queue.add(ctx, VenuesQueueKey, venueIDs)
}

// Report sums up one indexing run.
type Report struct {
	Indexed   int
	Unindexed int
	Failed    int
}

// IndexQueued indexes one batch of queued offers. Queued venues are expanded
// to their offers first, and offers that failed last time are retried. Ids
// whose backend call fails go to the error set.
func (s *Service) IndexQueued(ctx context.Context) (Report, error) {
	var report Report
	err := s.Locker.WithLock(ctx, lock.SearchIndexingKey, uuid.NewString(), s.Options.LockTTL, func(ctx context.Context) error {
		if err := s.expandVenues(ctx); err != nil {
			return err
		}

		retried, err := s.Queue.pop(ctx, OffersErrorQueueKey, s.Options.BatchSize)
		if err != nil {
			return err
		}
		queued, err := s.Queue.pop(ctx, OffersQueueKey, s.Options.BatchSize)
		if err != nil {
			if qerr := s.Queue.add(ctx, OffersErrorQueueKey, retried); qerr != nil {
				s.Logger.Error("SEARCH", qerr.Error())
			}
			return err
		}
		ids := uniqueIDs(append(retried, queued...))
		if len(ids) == 0 {
			return nil
		}

		report, err = s.index(ctx, ids)
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return report, ErrIndexingInProgress
	}
	if err != nil {
		return report, err
	}
	if report.Indexed+report.Unindexed+report.Failed > 0 {
		s.Logger.Info("SEARCH", fmt.Sprintf("Indexed %d offers, unindexed %d, failed %d", report.Indexed, report.Unindexed, report.Failed))
	}
	return report, nil
}

func (s *Service) expandVenues(ctx context.Context) error {
	venueIDs, err := s.Queue.pop(ctx, VenuesQueueKey, s.Options.BatchSize)
	if err != nil || len(venueIDs) == 0 {
		return err
	}
	offerIDs, err := s.Store.ListVenueOfferIDs(ctx, venueIDs)
	if err != nil {
		// venues go back so the next run sees them again
		if qerr := s.Queue.add(ctx, VenuesQueueKey, venueIDs); qerr != nil {
			s.Logger.Error("SEARCH", qerr.Error())
		}
		return fmt.Errorf("failed to list offers of venues: %w", err)
	}
	return s.Queue.add(ctx, OffersQueueKey, offerIDs)
}

func (s *Service) index(ctx context.Context, ids []int64) (Report, error) {
	var report Report
	now := s.Now()

	offers, err := s.Store.ListOffers(ctx, ids)
	if err != nil {
		if qerr := s.Queue.add(ctx, OffersErrorQueueKey, ids); qerr != nil {
			s.Logger.Error("SEARCH", qerr.Error())
		}
		return report, fmt.Errorf("failed to load offers: %w", err)
	}

	found := make(map[int64]bool, len(offers))
	var docs []OfferDocument
	var toIndex, toUnindex []int64
	for _, o := range offers {
		found[o.ID] = true
		if IsIndexable(o, now) {
			docs = append(docs, BuildDocument(o, now))
			toIndex = append(toIndex, o.ID)
		} else {
			toUnindex = append(toUnindex, o.ID)
		}
	}
	for _, id := range ids {
		if !found[id] {
			toUnindex = append(toUnindex, id)
		}
	}

	if len(docs) > 0 {
		if err := s.Backend.Index(ctx, docs); err != nil {
			s.Logger.Error("SEARCH", fmt.Sprintf("Failed to index %d offers: %v", len(docs), err))
			report.Failed += len(toIndex)
			if qerr := s.Queue.add(ctx, OffersErrorQueueKey, toIndex); qerr != nil {
				s.Logger.Error("SEARCH", qerr.Error())
			}
		} else {
			report.Indexed = len(toIndex)
		}
	}
	if len(toUnindex) > 0 {
		if err := s.Backend.Unindex(ctx, toUnindex); err != nil {
			s.Logger.Error("SEARCH", fmt.Sprintf("Failed to unindex %d offers: %v", len(toUnindex), err))
			report.Failed += len(toUnindex)
			if qerr := s.Queue.add(ctx, OffersErrorQueueKey, toUnindex); qerr != nil {
				s.Logger.Error("SEARCH", qerr.Error())
			}
		} else {
			report.Unindexed = len(toUnindex)
		}
	}
	return report, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
