package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

// Badger db implementation
type Badger struct {
	db       *badger.DB
	cancelGC func()
	wg       sync.WaitGroup
}

// NewBadger creates a new badger instance for the given path
func NewBadger(dbPath string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at path %s: %w", dbPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Badger{
		db:       db,
		cancelGC: cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for b.db.RunValueLogGC(0.5) == nil && ctx.Err() == nil {
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return b, nil
}

// Close the database
func (b *Badger) Close() error {
	b.cancelGC()
	b.wg.Wait()

	return b.db.Close()
}

// LoadReminders from the database. A missing list is an empty one.
func (b *Badger) LoadReminders() (reminders []*Reminder, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(RemindersKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to get %s: %w", RemindersKey, err)
		}

		return item.Value(func(val []byte) error {
			reminders, err = decodeReminders(val)
			return err
		})
	})

	return
}

// SaveReminders replaces the stored reminder list
func (b *Badger) SaveReminders(reminders []*Reminder) error {
	data, err := encodeReminders(reminders)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(RemindersKey), data)
	})
}

// LastNotified returns the day key of the last delivery for the slot, or an
// empty string if there is none
func (b *Badger) LastNotified(id uuid.UUID, slot string) (day string, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(lastNotifiedKey(id, slot))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to get delivery record for reminder %s slot %s: %w", id, slot, err)
		}

		return item.Value(func(val []byte) error {
			day = string(val)
			return nil
		})
	})

	return
}

// MarkNotified records a delivery for the slot on the given day
func (b *Badger) MarkNotified(id uuid.UUID, slot string, day string) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.SetEntry(badger.NewEntry(lastNotifiedKey(id, slot), []byte(day)).WithTTL(MarkerTTL))
	})
}

// ClearNotified removes every delivery record of the reminder
func (b *Badger) ClearNotified(id uuid.UUID) error {
	return b.db.Update(func(tx *badger.Txn) error {
		keys := func() (keys [][]byte) {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = lastNotifiedPrefixForReminder(id)

			it := tx.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}

			return
		}()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete delivery record %s: %w", string(key), err)
			}
		}

		return nil
	})
}
