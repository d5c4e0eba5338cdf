package reminder

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/notify"
)

// Delegate is a longer-lived delivery agent that dispatch can hand
// notifications to
type Delegate interface {
	Controlling() bool
	Deliver(ctx context.Context, reminderID string, medicineName string) error
}

// Dispatcher shows the notification for a due reminder, through the
// delegate when it is controlling and directly through the notifier
// otherwise
type Dispatcher struct {
	notifier notify.Notifier
	delegate Delegate
	log      *log.Logger

	mu             sync.Mutex
	deniedReported bool
}

// NewDispatcher creates a dispatcher. delegate may be nil.
func NewDispatcher(notifier notify.Notifier, delegate Delegate, l *log.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		delegate: delegate,
		log:      logger.Component(l, "dispatcher"),
	}
}

// Dispatch the notification for r. Without granted permission nothing is
// shown and notify.ErrPermissionDenied is returned; the denial is logged
// once until permission is granted again.
func (d *Dispatcher) Dispatch(ctx context.Context, r *Reminder) error {
	perm, err := d.notifier.Permission(ctx)
	if err != nil || perm != notify.PermissionGranted {
		d.reportDenied(perm, err)
		return fmt.Errorf("reminder %s: %w", r.ID, notify.ErrPermissionDenied)
	}

	d.mu.Lock()
	d.deniedReported = false
	d.mu.Unlock()

	id := r.ID.String()

	if d.delegate != nil && d.delegate.Controlling() {
		err := d.delegate.Deliver(ctx, id, r.MedicineName)
		if err == nil {
			d.log.Info("reminder delegated", "reminder", id, "medicine", r.MedicineName)
			return nil
		}

		d.log.Warn("delegation failed, showing directly", "reminder", id, "err", err)
	}

	if err := d.notifier.Show(ctx, notify.ForReminder(id, r.MedicineName)); err != nil {
		return fmt.Errorf("failed to show reminder %s: %w", id, err)
	}

	d.log.Info("reminder shown", "reminder", id, "medicine", r.MedicineName)

	return nil
}

func (d *Dispatcher) reportDenied(perm notify.Permission, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deniedReported {
		return
	}

	d.deniedReported = true
	d.log.Warn("notification permission not granted, reminders will not be shown", "permission", perm, "err", err)
}
