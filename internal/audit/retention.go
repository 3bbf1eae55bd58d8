package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
)

// ErrInvalidCron indicates a cron expression that could not be parsed.
var ErrInvalidCron = errors.New("invalid cron expression")

// cronParser accepts standard 5-field cron expressions
// (minute hour day-of-month month day-of-week).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron parses a 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCron, err)
	}
	return sched, nil
}

// ValidateCron reports whether expr is a valid 5-field cron expression.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// NextRun returns the next time the expression fires after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Sweeper prunes old audit events on a cron schedule.
type Sweeper struct {
	store     *Store
	schedule  cron.Schedule
	retention time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	next   time.Time
}

// NewSweeper creates a sweeper that deletes events older than
// retentionDays according to cronExpr.
func NewSweeper(store *Store, cronExpr string, retentionDays int) (*Sweeper, error) {
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return nil, err
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:     store,
		schedule:  sched,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		ctx:       ctx,
		cancel:    cancel,
		next:      sched.Next(time.Now()),
	}, nil
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	logger.Info("Audit retention sweeper started (next sweep: %s)", s.NextSweep().Format(time.RFC3339))
}

// Stop terminates the sweep loop and waits for it to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	logger.Info("Audit retention sweeper stopped")
}

// NextSweep returns the time of the next scheduled sweep.
func (s *Sweeper) NextSweep() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			due := !now.Before(s.next)
			if due {
				s.next = s.schedule.Next(now)
			}
			s.mu.Unlock()
			if due {
				s.sweep(now)
			}
		}
	}
}

// sweep deletes events older than the retention window.
func (s *Sweeper) sweep(now time.Time) {
	cutoff := now.Add(-s.retention)
	removed, err := s.store.Prune(cutoff)
	if err != nil {
		logger.Error("Audit retention sweep failed: %v", err)
		Log(Event{Operation: OpRetention, Success: false, Error: err.Error()})
		return
	}
	logger.Info("Audit retention sweep removed %d events older than %s", removed, cutoff.Format(time.RFC3339))
	Log(Event{
		Operation: OpRetention,
		Success:   true,
		Details:   map[string]any{"removed": removed, "cutoff": cutoff.Format(time.RFC3339)},
	})
}
