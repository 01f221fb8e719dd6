package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/booking"
	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/notification"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/pkg/logger"
)

// ReaperConfig contains configuration for the expiration reaper
type ReaperConfig struct {
	// ScanInterval is the interval between sweeps for expired bookings
	ScanInterval time.Duration
	// BatchSize is the maximum number of bookings processed per sweep
	BatchSize int
}

// DefaultReaperConfig returns default configuration
func DefaultReaperConfig() *ReaperConfig {
	return &ReaperConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    100,
	}
}

// Reaper periodically sweeps pending bookings whose expiration has passed,
// releasing their reservations and deleting the booking record. Bookings
// are processed independently: one failure is counted and logged, and the
// sweep moves on.
type Reaper struct {
	store     repository.Store
	lifecycle booking.Service
	publisher notification.Publisher
	config    *ReaperConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// Stats
	totalProcessed int64
	totalErrors    int64
	lastSweepTime  time.Time
	lastSweepCount int
}

// NewReaper creates a new expiration reaper
func NewReaper(
	store repository.Store,
	lifecycle booking.Service,
	publisher notification.Publisher,
	config *ReaperConfig,
) *Reaper {
	if config == nil {
		config = DefaultReaperConfig()
	}
	if publisher == nil {
		publisher = notification.NewNoOpPublisher()
	}
	return &Reaper{
		store:     store,
		lifecycle: lifecycle,
		publisher: publisher,
		config:    config,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the reaper loop
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper already running")
	}
	r.running = true
	r.mu.Unlock()

	r.log.Info("Starting expiration reaper",
		zap.Duration("scan_interval", r.config.ScanInterval),
		zap.Int("batch_size", r.config.BatchSize),
	)

	r.wg.Add(1)
	go r.loop(ctx)

	return nil
}

// Stop stops the reaper and waits for the running sweep to finish
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.Info("Stopping expiration reaper")
	close(r.stopCh)
	r.wg.Wait()
	r.log.Info("Expiration reaper stopped")
}

// loop runs sweeps on the configured interval
func (r *Reaper) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	r.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// SweepResult reports one sweep's outcome
type SweepResult struct {
	Processed int
	Errors    int
}

// Sweep finds past-due pending bookings and expires each independently
func (r *Reaper) Sweep(ctx context.Context) SweepResult {
	r.mu.Lock()
	r.lastSweepTime = time.Now()
	r.mu.Unlock()

	var result SweepResult

	expired, err := r.store.Bookings().ListExpired(ctx, time.Now(), r.config.BatchSize)
	if err != nil {
		r.log.Error("failed to list expired bookings", zap.Error(err))
		result.Errors++
		return result
	}

	if len(expired) == 0 {
		return result
	}

	r.log.Info("Found expired bookings to reap", zap.Int("count", len(expired)))

	for _, b := range expired {
		if err := r.expireBooking(ctx, b); err != nil {
			r.log.Error("failed to expire booking",
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
			result.Errors++
			continue
		}
		result.Processed++
	}

	r.mu.Lock()
	r.totalProcessed += int64(result.Processed)
	r.totalErrors += int64(result.Errors)
	r.lastSweepCount = len(expired)
	r.mu.Unlock()

	return result
}

// expireBooking releases one booking's reservations and removes it
func (r *Reaper) expireBooking(ctx context.Context, b *domain.Booking) error {
	r.lifecycle.ReleaseReservations(ctx, b)

	if err := r.store.Bookings().Delete(ctx, b.ID); err != nil {
		// The expired-session webhook may have removed it concurrently
		if errors.Is(err, domain.ErrBookingNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete expired booking: %w", err)
	}

	r.publisher.PublishBookingEvent(ctx, domain.EventBookingExpired, b)

	r.log.Info("Expired booking reaped",
		zap.String("booking_id", b.ID),
		zap.Int("people", b.NumberOfPeople),
		zap.Int("sessions", len(b.SessionIDs)),
	)
	return nil
}

// Stats reports reaper counters
type Stats struct {
	IsRunning      bool      `json:"is_running"`
	TotalProcessed int64     `json:"total_processed"`
	TotalErrors    int64     `json:"total_errors"`
	LastSweepTime  time.Time `json:"last_sweep_time"`
	LastSweepCount int       `json:"last_sweep_count"`
}

// GetStats returns a snapshot of the reaper counters
func (r *Reaper) GetStats() *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &Stats{
		IsRunning:      r.running,
		TotalProcessed: r.totalProcessed,
		TotalErrors:    r.totalErrors,
		LastSweepTime:  r.lastSweepTime,
		LastSweepCount: r.lastSweepCount,
	}
}
