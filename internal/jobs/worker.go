package jobs

import (
	"context"
	"fmt"
	"time"

	"pcapi/internal/config"
	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/search"
	"pcapi/internal/utils"
)

type Finance interface {
	PriceEvents(ctx context.Context, batchSize int) (int, error)
	GenerateCashflows(ctx context.Context, cutoff time.Time) (*models.CashflowBatch, []*models.Cashflow, error)
	GenerateInvoices(ctx context.Context, batchID int64) ([]*models.Invoice, error)
}

type BookingExpirer interface {
	CancelExpired(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type Collective interface {
	AutoUse(ctx context.Context, now time.Time) (int, error)
	ExpirePending(ctx context.Context, now time.Time) (int, error)
}

type Recrediter interface {
	RecreditUnderage(ctx context.Context, now time.Time) (int, error)
}

type Indexer interface {
	IndexQueued(ctx context.Context) (search.Report, error)
}

// Worker holds the periodic jobs of the backend.
type Worker struct {
	Finance    Finance
	Bookings   BookingExpirer
	Collective Collective
	Deposits   Recrediter
	Search     Indexer
	Logger     *logger.Logger
	Now        func() time.Time

	PricingBatchSize    int
	ExpirationBatchSize int
}

func (w *Worker) PriceEvents(ctx context.Context) error {
	n, err := w.Finance.PriceEvents(ctx, w.PricingBatchSize)
	if err != nil {
		return err
	}
	w.Logger.LogJob("price_events", fmt.Sprintf("%d events priced", n))
	return nil
}

func (w *Worker) CancelExpiredBookings(ctx context.Context) error {
	n, err := w.Bookings.CancelExpired(ctx, w.Now(), w.ExpirationBatchSize)
	if err != nil {
		return err
	}
	w.Logger.LogJob("cancel_expired_bookings", fmt.Sprintf("%d bookings cancelled", n))
	return nil
}

func (w *Worker) CollectiveAutoUse(ctx context.Context) error {
	n, err := w.Collective.AutoUse(ctx, w.Now())
	if err != nil {
		return err
	}
	w.Logger.LogJob("collective_auto_use", fmt.Sprintf("%d collective bookings used", n))
	return nil
}

func (w *Worker) CollectiveExpire(ctx context.Context) error {
	n, err := w.Collective.ExpirePending(ctx, w.Now())
	if err != nil {
		return err
	}
	w.Logger.LogJob("collective_expire", fmt.Sprintf("%d pending collective bookings expired", n))
	return nil
}

func (w *Worker) RecreditUnderage(ctx context.Context) error {
	n, err := w.Deposits.RecreditUnderage(ctx, w.Now())
	if err != nil {
		return err
	}
	w.Logger.LogJob("recredit_underage", fmt.Sprintf("%d deposits recredited", n))
	return nil
}

func (w *Worker) IndexQueuedOffers(ctx context.Context) error {
	_, err := w.Search.IndexQueued(ctx)
	return err
}

// GenerateCashflows pays what was validated before today (Paris time) and
// invoices the new batch.
func (w *Worker) GenerateCashflows(ctx context.Context) error {
	cutoff := utils.StartOfDay(w.Now().In(utils.Paris())).UTC()
	batch, cashflows, err := w.Finance.GenerateCashflows(ctx, cutoff)
	if err != nil {
		return err
	}
	invoices, err := w.Finance.GenerateInvoices(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("batch %s generated but invoicing failed: %w", batch.Label, err)
	}
	w.Logger.LogJob("generate_cashflows", fmt.Sprintf("batch %s: %d cashflows, %d invoices", batch.Label, len(cashflows), len(invoices)))
	return nil
}

// NamedJob pairs a job with its cron spec.
type NamedJob struct {
	Name string
	Spec string
	Job  Job
}

// Jobs lists every job of the worker with its schedule from cfg.
func (w *Worker) Jobs(cfg config.JobsConfig) []NamedJob {
	return []NamedJob{
		{"price_events", cfg.PriceEvents, w.PriceEvents},
		{"cancel_expired_bookings", cfg.CancelExpired, w.CancelExpiredBookings},
		{"collective_auto_use", cfg.CollectiveAutoUse, w.CollectiveAutoUse},
		{"collective_expire", cfg.CollectiveExpire, w.CollectiveExpire},
		{"recredit_underage", cfg.RecreditUnderage, w.RecreditUnderage},
		{"index_queued_offers", cfg.IndexQueuedOffers, w.IndexQueuedOffers},
		{"generate_cashflows", cfg.GenerateCashflows, w.GenerateCashflows},
	}
}

// Lookup finds a job by name, schedule or not.
func (w *Worker) Lookup(name string) (Job, bool) {
	for _, j := range w.Jobs(config.JobsConfig{}) {
		if j.Name == name {
			return j.Job, true
		}
	}
	return nil, false
}

// Register schedules every job of the worker.
func (w *Worker) Register(s *Scheduler, cfg config.JobsConfig) error {
	for _, j := range w.Jobs(cfg) {
		if err := s.Add(j.Name, j.Spec, j.Job); err != nil {
			return err
		}
	}
	return nil
}
