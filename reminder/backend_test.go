package reminder

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.0xdad.com/tblyler/lifespan/db"
)

var errBackend = errors.New("backend unavailable")

type memBackend struct {
	mu        sync.Mutex
	reminders []*db.Reminder
	markers   map[string]string
	saves     int
	loadErr   error
	saveErr   error
}

func newMemBackend() *memBackend {
	return &memBackend{markers: make(map[string]string)}
}

func markerKey(id uuid.UUID, slot string) string {
	return id.String() + "_" + slot
}

func (m *memBackend) LoadReminders() ([]*db.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}

	reminders := make([]*db.Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		reminders = append(reminders, r.Clone())
	}

	return reminders, nil
}

func (m *memBackend) SaveReminders(reminders []*db.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	m.saves++
	m.reminders = m.reminders[:0]
	for _, r := range reminders {
		m.reminders = append(m.reminders, r.Clone())
	}

	return nil
}

func (m *memBackend) LastNotified(id uuid.UUID, slot string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.markers[markerKey(id, slot)], nil
}

func (m *memBackend) MarkNotified(id uuid.UUID, slot string, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markers[markerKey(id, slot)] = day

	return nil
}

func (m *memBackend) ClearNotified(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, slot := range m.slots(id) {
		delete(m.markers, markerKey(id, slot))
	}

	return nil
}

func (m *memBackend) slots(id uuid.UUID) []string {
	var slots []string
	prefix := id.String() + "_"
	for key := range m.markers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			slots = append(slots, key[len(prefix):])
		}
	}

	return slots
}

func (m *memBackend) markerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.markers)
}

func (m *memBackend) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveErr = err
}

func (m *memBackend) saved() []*db.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*db.Reminder(nil), m.reminders...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}
