package reminder

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"git.0xdad.com/tblyler/lifespan/db"
	"git.0xdad.com/tblyler/lifespan/logger"
)

// Backend persists reminders and delivery records
type Backend interface {
	LoadReminders() ([]*db.Reminder, error)
	SaveReminders(reminders []*db.Reminder) error
	LastNotified(id uuid.UUID, slot string) (string, error)
	MarkNotified(id uuid.UUID, slot string, day string) error
	ClearNotified(id uuid.UUID) error
}

// Patch holds optional fields for a partial update. Nil fields are left
// unchanged.
type Patch struct {
	MedicineName *string  `json:"medicine_name,omitempty"`
	Times        []string `json:"times,omitempty"`
	DurationDays *int     `json:"duration_days,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

// Store owns the reminder collection. Every mutation is written through to
// the backend before it returns; a mutation that cannot be written is rolled
// back.
type Store struct {
	backend Backend
	now     func() time.Time
	log     *log.Logger

	mu        sync.Mutex
	reminders []*Reminder
}

// NewStore creates an empty store over backend. Call Load to read the
// persisted reminders.
func NewStore(backend Backend, now func() time.Time, l *log.Logger) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		backend: backend,
		now:     now,
		log:     logger.Component(l, "store"),
	}
}

// Load the persisted reminders, dropping those whose end date has passed and
// persisting the pruned list. Unreadable data leaves the store empty and is
// returned as an ErrPersistence error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reminders = nil

	reminders, err := s.backend.LoadReminders()
	if err != nil {
		return fmt.Errorf("failed to load reminders: %w: %w", ErrPersistence, err)
	}

	now := s.now()
	kept := reminders[:0]
	for _, r := range reminders {
		if !r.Expired(now) {
			kept = append(kept, r)
			continue
		}

		if err := s.backend.ClearNotified(r.ID); err != nil {
			s.log.Warn("failed to clear delivery records", "reminder", r.ID, "err", err)
		}
	}

	s.reminders = kept
	s.log.Info("loaded reminders", "count", len(kept), "pruned", len(reminders)-len(kept))

	return s.persist()
}

// Add a reminder for medicineName at the daily times, lasting durationDays
// from start. A zero start means now.
func (s *Store) Add(medicineName string, times []string, durationDays int, start time.Time) (*Reminder, error) {
	if err := validateName(medicineName); err != nil {
		return nil, err
	}

	if err := validateTimes(times); err != nil {
		return nil, err
	}

	if err := validateDuration(durationDays); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if start.IsZero() {
		start = now
	}

	r := &Reminder{
		ID:           uuid.New(),
		MedicineName: medicineName,
		Times:        append([]string(nil), times...),
		DurationDays: durationDays,
		StartDate:    start,
		EndDate:      EndDate(start, durationDays),
		Active:       true,
		CreatedAt:    now,
	}

	s.reminders = append(s.reminders, r)

	if err := s.persist(); err != nil {
		s.reminders = s.reminders[:len(s.reminders)-1]
		return nil, err
	}

	s.log.Info("reminder added", "reminder", r.ID, "medicine", r.MedicineName, "times", r.Times, "end", r.EndDate)

	return r.Clone(), nil
}

// Get the reminder with id
func (s *Store) Get(id uuid.UUID) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(id)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return r.Clone(), nil
}

// Update merges patch into the reminder with id. An unknown id is reported
// with ErrNotFound and changes nothing.
func (s *Store) Update(id uuid.UUID, patch Patch) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.find(id)
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := current.Clone()

	if patch.MedicineName != nil {
		if err := validateName(*patch.MedicineName); err != nil {
			return nil, err
		}

		updated.MedicineName = *patch.MedicineName
	}

	if patch.Times != nil {
		if err := validateTimes(patch.Times); err != nil {
			return nil, err
		}

		updated.Times = append([]string(nil), patch.Times...)
	}

	if patch.DurationDays != nil {
		if err := validateDuration(*patch.DurationDays); err != nil {
			return nil, err
		}

		updated.DurationDays = *patch.DurationDays
		updated.EndDate = EndDate(updated.StartDate, updated.DurationDays)
	}

	if patch.Active != nil {
		updated.Active = *patch.Active
	}

	previous := *current
	*current = *updated

	if err := s.persist(); err != nil {
		*current = previous
		return nil, err
	}

	s.log.Info("reminder updated", "reminder", id, "medicine", updated.MedicineName)

	return updated.Clone(), nil
}

// Remove the reminder with id and its delivery records. Removing an unknown
// id is not an error.
func (s *Store) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		if r.ID != id {
			kept = append(kept, r)
		}
	}

	if len(kept) == len(s.reminders) {
		return nil
	}

	previous := s.reminders
	s.reminders = kept

	if err := s.persist(); err != nil {
		s.reminders = previous
		return err
	}

	if err := s.backend.ClearNotified(id); err != nil {
		s.log.Warn("failed to clear delivery records", "reminder", id, "err", err)
	}

	s.log.Info("reminder removed", "reminder", id)

	return nil
}

// ListActive returns the reminders that are active and end after at, oldest
// first
func (s *Store) ListActive(at time.Time) []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*Reminder
	for _, r := range s.reminders {
		if r.Active && r.EndDate.After(at) {
			active = append(active, r.Clone())
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	return active
}

// All reminders in storage order, including inactive ones
func (s *Store) All() []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		all = append(all, r.Clone())
	}

	return all
}

// Stats counts active and expired reminders
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Total: len(s.reminders)}
	for _, r := range s.reminders {
		if r.Active {
			stats.Active++
		}
	}

	stats.Expired = stats.Total - stats.Active

	return stats
}

// evaluationSet returns the active reminders in storage order
func (s *Store) evaluationSet() []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*Reminder
	for _, r := range s.reminders {
		if r.Active {
			active = append(active, r.Clone())
		}
	}

	return active
}

// deactivate marks the reminder inactive and persists it
func (s *Store) deactivate(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(id)
	if r == nil || !r.Active {
		return nil
	}

	r.Active = false

	return s.persist()
}

// notified reports whether a delivery was recorded for the slot on day
func (s *Store) notified(id uuid.UUID, slot string, day string) (bool, error) {
	last, err := s.backend.LastNotified(id, slot)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return last == day, nil
}

func (s *Store) markNotified(id uuid.UUID, slot string, day string) error {
	if err := s.backend.MarkNotified(id, slot, day); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

func (s *Store) find(id uuid.UUID) *Reminder {
	for _, r := range s.reminders {
		if r.ID == id {
			return r
		}
	}

	return nil
}

// persist writes the full list. Callers hold s.mu.
func (s *Store) persist() error {
	if err := s.backend.SaveReminders(s.reminders); err != nil {
		s.log.Warn("failed to save reminders", "err", err)
		return fmt.Errorf("failed to save reminders: %w: %w", ErrPersistence, err)
	}

	return nil
}
