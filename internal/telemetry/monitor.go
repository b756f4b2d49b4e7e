package telemetry

import (
	"context"
	"fmt"
	"time"

	"backend-ollana/internal/metrics"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

const DefaultMonitorInterval = 5 * time.Minute

type pendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Monitor periodically counts dead letters that were never replayed.
type Monitor struct {
	store    pendingCounter
	interval time.Duration
	log      zerolog.Logger
}

func NewMonitor(store pendingCounter, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{store: store, interval: interval, log: log}
}

// Check runs one pass and returns the pending count.
func (m *Monitor) Check(ctx context.Context) (int, error) {
	n, err := m.store.CountPending(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("count pending dead letters")
		return 0, err
	}
	metrics.DeadLettersPending.Set(float64(n))
	if n > 0 {
		m.log.Warn().Int("pending", n).Msg("telemetry dead letters awaiting replay")
	}
	return n, nil
}

// Serve runs the schedule until ctx is done. A new scheduler is built on each
// call so the supervisor can restart the monitor.
func (m *Monitor) Serve(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			_, _ = m.Check(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule dead-letter monitor: %w", err)
	}

	sched.Start()
	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		m.log.Warn().Err(err).Msg("scheduler shutdown")
	}
	return ctx.Err()
}

func (m *Monitor) String() string {
	return "dead-letter-monitor"
}
