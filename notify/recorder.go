package notify

import (
	"context"
	"errors"
	"sync"
)

// Recorder is an in-process notifier. It keeps every shown notification and
// lets callers act on them as a user would.
type Recorder struct {
	mu         sync.Mutex
	permission Permission
	requested  Permission
	shown      []Notification
	handlers   []func(Event)
	showErr    error
}

// NewRecorder creates a Recorder with the given initial permission
func NewRecorder(permission Permission) *Recorder {
	return &Recorder{permission: permission, requested: permission}
}

// SetPermission changes the current permission
func (r *Recorder) SetPermission(p Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.permission = p
}

// GrantOnRequest makes the next RequestPermission call resolve to p
func (r *Recorder) GrantOnRequest(p Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requested = p
}

// FailShow makes subsequent Show calls fail with err
func (r *Recorder) FailShow(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.showErr = err
}

func (r *Recorder) Permission(context.Context) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.permission, nil
}

func (r *Recorder) RequestPermission(context.Context) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.permission == PermissionDefault {
		r.permission = r.requested
	}

	return r.permission, nil
}

func (r *Recorder) Show(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.showErr != nil {
		return r.showErr
	}

	r.shown = append(r.shown, n)

	return nil
}

func (r *Recorder) OnAction(handler func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
}

// Shown returns a copy of every notification shown so far
func (r *Recorder) Shown() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Notification(nil), r.shown...)
}

// Act simulates the user choosing action on the last notification shown
// with tag. Dismissal is reported with ActionDismissed.
func (r *Recorder) Act(tag string, action Action) error {
	r.mu.Lock()

	var (
		found bool
		data  Data
	)
	for i := len(r.shown) - 1; i >= 0; i-- {
		if r.shown[i].Tag == tag {
			found = true
			data = r.shown[i].Data
			break
		}
	}

	handlers := append(([]func(Event))(nil), r.handlers...)
	r.mu.Unlock()

	if !found {
		return errors.New("no notification shown with tag " + tag)
	}

	for _, h := range handlers {
		h(Event{Tag: tag, Action: action, Data: data})
	}

	return nil
}
