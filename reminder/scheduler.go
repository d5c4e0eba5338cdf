package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/notify"
)

const (
	// DefaultSpec evaluates reminders at second 0 of every minute
	DefaultSpec = "0 * * * * *"

	tickTimeout = 30 * time.Second
)

// Sender dispatches the notification of a due reminder
type Sender interface {
	Dispatch(ctx context.Context, r *Reminder) error
}

// SchedulerConfig for NewScheduler
type SchedulerConfig struct {
	// Spec is a cron spec with a seconds field, or a descriptor such as
	// "@every 1m"
	Spec     string
	Location *time.Location
	Now      func() time.Time
}

// Scheduler periodically evaluates the active reminders and dispatches each
// due slot at most once per calendar day. A slot whose minute passes without
// a tick, e.g. while the process is suspended, is missed rather than caught
// up.
type Scheduler struct {
	store  *Store
	sender Sender
	loc    *time.Location
	now    func() time.Time
	log    *log.Logger
	cron   *cron.Cron

	tickMu sync.Mutex

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a stopped scheduler
func NewScheduler(store *Store, sender Sender, cfg SchedulerConfig, l *log.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{
		store:  store,
		sender: sender,
		loc:    cfg.Location,
		now:    cfg.Now,
		log:    logger.Component(l, "scheduler"),
	}

	cl := logger.Cron(s.log)
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(cfg.Spec, s.scheduledTick); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}

	return s, nil
}

// Start evaluates once immediately, then on every scheduled tick. Starting
// a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.scheduledTick()
	s.cron.Start()

	s.log.Info("started")
}

// Stop cancels future ticks and waits for a running tick to finish.
// Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	s.log.Info("stopped")
}

// Running reports whether the scheduler is started
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

func (s *Scheduler) scheduledTick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	s.Tick(ctx, s.now())
}

// Tick evaluates every active reminder at now and returns how many
// notifications were dispatched successfully. Slots whose dispatch failed
// are still recorded and not counted.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now = now.In(s.loc)
	slot := Slot(now)
	day := DayKey(now)

	s.log.Debug("checking reminders", "slot", slot, "day", day)

	dispatched := 0
	for _, r := range s.store.evaluationSet() {
		dispatched += s.evaluate(ctx, r, now, slot, day)
	}

	return dispatched
}

func (s *Scheduler) evaluate(ctx context.Context, r *Reminder, now time.Time, slot string, day string) (dispatched int) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("reminder evaluation panicked", "reminder", r.ID, "panic", p)
		}
	}()

	if r.Expired(now) {
		if err := s.store.deactivate(r.ID); err != nil {
			s.log.Warn("failed to persist expired reminder", "reminder", r.ID, "err", err)
		}

		s.log.Info("reminder expired", "reminder", r.ID, "medicine", r.MedicineName)

		return 0
	}

	for _, t := range r.Times {
		if t != slot {
			continue
		}

		done, err := s.store.notified(r.ID, t, day)
		if err != nil {
			s.log.Warn("failed to read delivery record", "reminder", r.ID, "slot", t, "err", err)
			continue
		}

		if done {
			continue
		}

		s.log.Info("reminder due", "reminder", r.ID, "medicine", r.MedicineName, "slot", t)

		// The delivery record is written even when nothing could be shown, so
		// a denied permission still consumes the slot for the day.
		err = s.sender.Dispatch(ctx, r)
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, notify.ErrPermissionDenied):
			s.log.Debug("dispatch skipped", "reminder", r.ID, "slot", t, "err", err)
		default:
			s.log.Warn("dispatch failed", "reminder", r.ID, "slot", t, "err", err)
		}

		if err := s.store.markNotified(r.ID, t, day); err != nil {
			s.log.Warn("failed to record delivery", "reminder", r.ID, "slot", t, "err", err)
		}
	}

	return dispatched
}
