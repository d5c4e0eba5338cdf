package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	// RemindersKey holds the serialized reminder list
	RemindersKey = "medicineReminders"

	lastNotifiedPrefix = "lastNotified_"
)

// Reminder for a medication intake schedule
type Reminder struct {
	ID           uuid.UUID `json:"id"`
	MedicineName string    `json:"medicine_name"`
	Times        []string  `json:"times"`
	DurationDays int       `json:"duration_days"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a deep copy of the reminder
func (r *Reminder) Clone() *Reminder {
	c := *r
	c.Times = append([]string(nil), r.Times...)

	return &c
}

// Expired reports whether at is strictly after the end date
func (r *Reminder) Expired(at time.Time) bool {
	return at.After(r.EndDate)
}

func lastNotifiedKey(id uuid.UUID, slot string) []byte {
	return []byte(lastNotifiedPrefix + id.String() + "_" + slot)
}

func lastNotifiedPrefixForReminder(id uuid.UUID) []byte {
	return []byte(lastNotifiedPrefix + id.String() + "_")
}
