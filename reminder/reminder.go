package reminder

import (
	"strings"
	"time"

	"git.0xdad.com/tblyler/lifespan/db"
)

const (
	// SlotFormat of a daily time slot
	SlotFormat = "15:04"
	// DayFormat of the calendar day key used by delivery records
	DayFormat = "2006-01-02"

	// MaxDurationDays bounds a schedule to a century, well below the point
	// where the end date computation overflows
	MaxDurationDays = 36500

	day = 24 * time.Hour
)

// Reminder is the persisted reminder record
type Reminder = db.Reminder

// Stats about the stored reminders
type Stats struct {
	Active  int `json:"active"`
	Total   int `json:"total"`
	Expired int `json:"expired"`
}

// Slot formats t as a zero-padded 24 hour HH:MM slot
func Slot(t time.Time) string {
	return t.Format(SlotFormat)
}

// DayKey formats the calendar day of t
func DayKey(t time.Time) string {
	return t.Format(DayFormat)
}

// EndDate of a schedule starting at start and lasting durationDays
func EndDate(start time.Time, durationDays int) time.Time {
	return start.Add(time.Duration(durationDays) * day)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("medicine_name", "must not be empty")
	}

	return nil
}

func validateTimes(times []string) error {
	if len(times) == 0 {
		return invalid("times", "at least one time slot is required")
	}

	seen := make(map[string]struct{}, len(times))
	for _, slot := range times {
		t, err := time.Parse(SlotFormat, slot)
		if err != nil || t.Format(SlotFormat) != slot {
			return invalid("times", "%q is not a zero-padded 24 hour HH:MM time", slot)
		}

		if _, ok := seen[slot]; ok {
			return invalid("times", "%q is listed more than once", slot)
		}

		seen[slot] = struct{}{}
	}

	return nil
}

func validateDuration(durationDays int) error {
	if durationDays <= 0 {
		return invalid("duration_days", "must be positive, got %d", durationDays)
	}

	if durationDays > MaxDurationDays {
		return invalid("duration_days", "must be at most %d, got %d", MaxDurationDays, durationDays)
	}

	return nil
}
