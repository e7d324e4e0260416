package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pcapi/internal/app"
	"pcapi/internal/config"
	"pcapi/internal/jobs"
	"pcapi/internal/kafka"
	"pcapi/internal/logger"
)

func main() {
	runOnce := flag.String("run", "", "run a single job by name and exit")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{
		Dir:      cfg.LogDir,
		Prefix:   "pcapi-worker",
		MinLevel: logger.ParseLevel(cfg.LogLevel),
	})
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", err.Error())
	}
	defer a.Close()

	worker := &jobs.Worker{
		Finance:             a.Finance,
		Bookings:            a.Bookings,
		Collective:          a.Collective,
		Deposits:            a.Deposits,
		Search:              a.Search,
		Logger:              log,
		Now:                 time.Now,
		PricingBatchSize:    cfg.Finance.PricingBatchSize,
		ExpirationBatchSize: cfg.Booking.ExpirationBatchSize,
	}
	scheduler := jobs.NewScheduler(log, cfg.Jobs.Timeout)

	if *runOnce != "" {
		job, ok := worker.Lookup(*runOnce)
		if !ok {
			log.Fatal("JOB", fmt.Sprintf("unknown job %q", *runOnce))
		}
		scheduler.Run(*runOnce, job)
		return
	}

	var wg sync.WaitGroup
	var consumers []*kafka.Consumer
	if cfg.Kafka.Enabled {
		for topic, handler := range a.Handlers.Topics() {
			c := kafka.NewConsumer(cfg.Kafka.Brokers, topic, cfg.Kafka.GroupID, log)
			consumers = append(consumers, c)
			wg.Add(1)
			go func(c *kafka.Consumer, h kafka.Handler) {
				defer wg.Done()
				if err := c.Start(ctx, h); err != nil {
					log.Error("KAFKA", err.Error())
				}
			}(c, handler)
		}
	}

	if err := worker.Register(scheduler, cfg.Jobs); err != nil {
		log.Fatal("JOB", err.Error())
	}
	scheduler.Start()
	log.Info("APP", "Worker started, waiting for shutdown signal")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, stopping jobs and consumers")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := scheduler.Stop(ctxShutdown); err != nil {
		log.Error("JOB", fmt.Sprintf("Jobs still running at shutdown: %v", err))
	}

	wg.Wait()
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
		}
	}
	log.Info("APP", "Worker shutdown complete")
}
