package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MarkerTTL bounds how long a delivery record is kept. A record only needs to
// outlive the calendar day it was written for.
const MarkerTTL = 48 * time.Hour

var (
	// ErrCorrupt occurs when persisted data cannot be decoded
	ErrCorrupt = errors.New("persisted data is corrupt")
)

func encodeReminders(reminders []*Reminder) ([]byte, error) {
	if reminders == nil {
		reminders = []*Reminder{}
	}

	data, err := json.Marshal(reminders)
	if err != nil {
		return nil, fmt.Errorf("failed to JSON marshal reminders: %w", err)
	}

	return data, nil
}

func decodeReminders(data []byte) ([]*Reminder, error) {
	var reminders []*Reminder
	if err := json.Unmarshal(data, &reminders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %v: %w", RemindersKey, err, ErrCorrupt)
	}

	for i, r := range reminders {
		if r == nil {
			return nil, fmt.Errorf("null reminder at index %d: %w", i, ErrCorrupt)
		}
	}

	return reminders, nil
}
