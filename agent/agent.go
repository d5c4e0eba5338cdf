// Package agent implements the background delivery agent: a goroutine that
// shows reminder notifications, interprets user actions on them and relays
// the outcome to any listening clients. It owns no reminder data and is only
// reached through messages.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/notify"
)

var (
	// ErrNotRunning occurs when messaging an agent whose loop is not running
	ErrNotRunning = errors.New("delivery agent is not running")
	// ErrRelayUnavailable occurs when a relay message has no listener
	ErrRelayUnavailable = errors.New("no listener for relay message")
)

// DefaultSnoozeDelay before a snoozed reminder is shown again
const DefaultSnoozeDelay = 10 * time.Minute

// Timer is a pending delayed call
type Timer interface {
	Stop() bool
}

// AfterFunc calls f in its own goroutine after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type entry struct {
	state State
	data  notify.Data
}

// Agent is the background delivery agent
type Agent struct {
	notifier    notify.Notifier
	log         *log.Logger
	snoozeDelay time.Duration
	afterFunc   AfterFunc
	now         func() time.Time

	inbox       chan Message
	done        chan struct{}
	started     atomic.Bool
	running     atomic.Bool
	controlling atomic.Bool

	// timers is only touched by the run loop
	timers map[string]Timer

	stateMu sync.RWMutex
	states  map[string]entry

	listenerMu sync.Mutex
	listeners  map[int]chan Message
	nextID     int
}

// Option configures an Agent
type Option func(a *Agent)

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		a.log = logger.Component(l, "agent")
	}
}

// WithSnoozeDelay sets how long a snoozed reminder waits before showing again
func WithSnoozeDelay(d time.Duration) Option {
	return func(a *Agent) {
		a.snoozeDelay = d
	}
}

// WithAfterFunc replaces time.AfterFunc for snooze timers
func WithAfterFunc(f AfterFunc) Option {
	return func(a *Agent) {
		a.afterFunc = f
	}
}

// WithClock sets the time source used to stamp messages
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New creates an agent delivering through notifier. If the notifier reports
// user actions, they are fed into the agent.
func New(notifier notify.Notifier, opts ...Option) *Agent {
	a := &Agent{
		notifier:    notifier,
		log:         logger.Discard(),
		snoozeDelay: DefaultSnoozeDelay,
		afterFunc:   realAfterFunc,
		now:         time.Now,
		inbox:       make(chan Message, 64),
		done:        make(chan struct{}),
		timers:      make(map[string]Timer),
		states:      make(map[string]entry),
		listeners:   make(map[int]chan Message),
	}

	for _, opt := range opts {
		opt(a)
	}

	if source, ok := notifier.(notify.ActionSource); ok {
		source.OnAction(func(e notify.Event) {
			m := ActionReport(e.Tag, e.Action, e.Data.ReminderID)
			m.MedicineName = e.Data.MedicineName

			if err := a.post(context.Background(), m); err != nil {
				a.log.Warn("dropping notification action", "tag", e.Tag, "action", e.Action, "err", err)
			}
		})
	}

	return a
}

// Run the agent loop until ctx is done. An agent can only be run once.
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("delivery agent already started")
	}

	a.running.Store(true)
	a.log.Info("started", "snooze_delay", a.snoozeDelay)

	defer func() {
		a.running.Store(false)
		a.controlling.Store(false)
		close(a.done)

		for tag, timer := range a.timers {
			timer.Stop()
			delete(a.timers, tag)
		}

		a.log.Info("stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case m := <-a.inbox:
			a.handle(ctx, m)
		}
	}
}

// Register performs the liveness handshake. Once it succeeds the agent is
// controlling and dispatchers delegate delivery to it.
func (a *Agent) Register(ctx context.Context) error {
	if err := a.Ping(ctx); err != nil {
		return err
	}

	a.controlling.Store(true)

	return nil
}

// Controlling reports whether the agent is registered and running
func (a *Agent) Controlling() bool {
	return a.controlling.Load() && a.running.Load()
}

// Ping waits for the agent loop to answer. Since the inbox is processed in
// order, a successful Ping also means every earlier message was handled. A
// Ping before Run waits for the loop to start or ctx to end.
func (a *Agent) Ping(ctx context.Context) error {
	reply := make(chan Message, 1)

	if err := a.post(ctx, Message{Kind: KindPing, reply: reply}); err != nil {
		return err
	}

	select {
	case <-reply:
		return nil
	case <-a.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver asks the agent to show the notification for a due reminder
func (a *Agent) Deliver(ctx context.Context, reminderID string, medicineName string) error {
	return a.post(ctx, DeliveryRequest(reminderID, medicineName))
}

// Report a user action on the notification with tag
func (a *Agent) Report(ctx context.Context, tag string, action notify.Action, reminderID string) error {
	if _, err := notify.ParseAction(string(action)); err != nil {
		return err
	}

	return a.post(ctx, ActionReport(tag, action, reminderID))
}

// State of the notification with tag, if the agent has shown it
func (a *Agent) State(tag string) (State, bool) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()

	e, ok := a.states[tag]

	return e.state, ok
}

// Subscribe to relayed messages. Messages are dropped for a subscriber whose
// buffer is full. The returned func unsubscribes and closes the channel.
func (a *Agent) Subscribe(buffer int) (<-chan Message, func()) {
	ch := make(chan Message, buffer)

	a.listenerMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = ch
	a.listenerMu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			a.listenerMu.Lock()
			delete(a.listeners, id)
			close(ch)
			a.listenerMu.Unlock()
		})
	}
}

// post queues m for the run loop. Messages are accepted from construction,
// so callers racing the start of Run are queued rather than refused; once
// the loop has exited every post fails with ErrNotRunning.
func (a *Agent) post(ctx context.Context, m Message) error {
	select {
	case <-a.done:
		return ErrNotRunning
	default:
	}

	if m.At.IsZero() {
		m.At = a.now()
	}

	select {
	case a.inbox <- m:
		return nil
	case <-a.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) handle(ctx context.Context, m Message) {
	switch m.Kind {
	case KindPing:
		m.reply <- Message{Kind: KindPong, At: a.now()}

	case KindDeliver:
		a.show(ctx, notify.ForReminder(m.ReminderID, m.MedicineName), StateShown)

	case kindFollowUp:
		delete(a.timers, m.Tag)
		a.show(ctx, notify.FollowUp(m.data()), StateShown)

	case KindAction:
		a.act(ctx, m)

	default:
		a.log.Warn("ignoring unknown message", "type", m.Kind)
	}
}

func (a *Agent) show(ctx context.Context, n notify.Notification, state State) {
	if err := a.notifier.Show(ctx, n); err != nil {
		a.log.Error("failed to show notification", "tag", n.Tag, "err", err)
		return
	}

	a.setState(n.Tag, entry{state: state, data: n.Data})
	a.log.Debug("notification shown", "tag", n.Tag, "state", state)
}

func (a *Agent) act(ctx context.Context, m Message) {
	a.stateMu.RLock()
	e, ok := a.states[m.Tag]
	a.stateMu.RUnlock()

	// Notifications shown before this agent started, or directly by a
	// dispatcher, are adopted as shown.
	if !ok {
		e = entry{state: StateShown, data: m.data()}
	}

	if e.data.ReminderID == "" {
		e.data.ReminderID = m.ReminderID
	}

	if e.data.MedicineName == "" {
		e.data.MedicineName = m.MedicineName
	}

	next, err := e.state.Next(m.Action)
	if err != nil {
		a.log.Warn("ignoring notification action", "tag", m.Tag, "err", err)
		return
	}

	a.setState(m.Tag, entry{state: next, data: e.data})

	relay := Message{
		Tag:          m.Tag,
		Action:       m.Action,
		ReminderID:   e.data.ReminderID,
		MedicineName: e.data.MedicineName,
		At:           a.now(),
	}

	switch next {
	case StateTaken:
		relay.Kind = KindTaken

	case StateDismissed:
		relay.Kind = KindDismissed

	case StateSnoozed:
		relay.Kind = KindSnoozed
		a.snooze(ctx, m.Tag, e.data)
	}

	a.relay(relay)
}

func (a *Agent) snooze(ctx context.Context, tag string, data notify.Data) {
	minutes := int(a.snoozeDelay / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	a.show(ctx, notify.SnoozeConfirmation(tag, data, minutes), StateInformational)

	followUp := notify.FollowUp(data)
	if timer, ok := a.timers[followUp.Tag]; ok {
		timer.Stop()
	}

	m := Message{
		Kind:         kindFollowUp,
		Tag:          followUp.Tag,
		ReminderID:   data.ReminderID,
		MedicineName: data.MedicineName,
	}

	a.timers[followUp.Tag] = a.afterFunc(a.snoozeDelay, func() {
		if err := a.post(context.Background(), m); err != nil {
			a.log.Warn("dropping snooze follow-up", "tag", m.Tag, "err", err)
		}
	})

	a.log.Info("reminder snoozed", "reminder", data.ReminderID, "delay", a.snoozeDelay)
}

func (a *Agent) setState(tag string, e entry) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	a.states[tag] = e
}

func (a *Agent) relay(m Message) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	if len(a.listeners) == 0 {
		a.log.Debug("relay dropped", "type", m.Kind, "reminder", m.ReminderID, "err", ErrRelayUnavailable)
		return
	}

	for id, ch := range a.listeners {
		select {
		case ch <- m:
		default:
			a.log.Debug("relay dropped for slow listener", "listener", id, "type", m.Kind)
		}
	}
}

