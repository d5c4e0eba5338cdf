package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"git.0xdad.com/tblyler/lifespan/agent"
	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/notify"
)

const (
	// DefaultHandshakeTimeout bounds the agent registration on start
	DefaultHandshakeTimeout = 5 * time.Second
	// DefaultRelayBuffer of the relay watcher subscription
	DefaultRelayBuffer = 16
)

// ServiceConfig for NewService
type ServiceConfig struct {
	Scheduler        SchedulerConfig
	HandshakeTimeout time.Duration
	RelayBuffer      int
}

// Service wires the store, scheduler and dispatcher together with an
// optional delivery agent
type Service struct {
	store      *Store
	scheduler  *Scheduler
	dispatcher *Dispatcher
	notifier   notify.Notifier
	agent      *agent.Agent
	cfg        ServiceConfig
	log        *log.Logger

	mu          sync.Mutex
	started     bool
	stopAgent   context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewService creates a stopped service. deliveryAgent may be nil, in which
// case notifications are always shown directly through notifier.
func NewService(backend Backend, notifier notify.Notifier, deliveryAgent *agent.Agent, cfg ServiceConfig, l *log.Logger) (*Service, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if cfg.RelayBuffer <= 0 {
		cfg.RelayBuffer = DefaultRelayBuffer
	}

	store := NewStore(backend, cfg.Scheduler.Now, l)

	var delegate Delegate
	if deliveryAgent != nil {
		delegate = deliveryAgent
	}

	dispatcher := NewDispatcher(notifier, delegate, l)

	scheduler, err := NewScheduler(store, dispatcher, cfg.Scheduler, l)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:      store,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		notifier:   notifier,
		agent:      deliveryAgent,
		cfg:        cfg,
		log:        logger.Component(l, "service"),
	}, nil
}

// Store of the service
func (s *Service) Store() *Store {
	return s.store
}

// Scheduler of the service
func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

// Agent of the service, nil when running without one
func (s *Service) Agent() *agent.Agent {
	return s.agent
}

// Start asks for notification permission if it was never decided, loads the
// persisted reminders, brings up the delivery agent and starts the scheduler.
// A failed load or agent handshake is logged and the service keeps going
// with what it has. Starting a started service does nothing.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.requestPermission(ctx)

	if err := s.store.Load(); err != nil {
		s.log.Error("failed to load reminders, starting empty", "err", err)
	}

	if s.agent != nil {
		s.startAgent(ctx)
	}

	s.scheduler.Start()
	s.started = true

	stats := s.store.Stats()
	s.log.Info("started", "active", stats.Active, "total", stats.Total)

	return nil
}

// Stop the scheduler, relay watcher and agent. Stopping a stopped service
// does nothing.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.started = false
	s.scheduler.Stop()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	if s.stopAgent != nil {
		s.stopAgent()
		s.stopAgent = nil
	}

	s.wg.Wait()

	s.log.Info("stopped")
}

func (s *Service) requestPermission(ctx context.Context) {
	perm, err := s.notifier.Permission(ctx)
	if err != nil {
		s.log.Warn("failed to read notification permission", "err", err)
	}

	if perm != notify.PermissionDefault {
		return
	}

	perm, err = s.notifier.RequestPermission(ctx)
	if err != nil {
		s.log.Warn("notification permission request failed", "err", err)
		return
	}

	s.log.Info("notification permission decided", "permission", perm)
}

func (s *Service) startAgent(ctx context.Context) {
	agentCtx, cancel := context.WithCancel(context.Background())
	s.stopAgent = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.agent.Run(agentCtx); err != nil {
			s.log.Error("delivery agent exited", "err", err)
		}
	}()

	relays, unsubscribe := s.agent.Subscribe(s.cfg.RelayBuffer)
	s.unsubscribe = unsubscribe

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchRelays(relays)
	}()

	if err := s.register(ctx); err != nil {
		s.log.Warn("delivery agent handshake failed, showing notifications directly", "err", err)
	}
}

// register performs the agent handshake, bounded by the handshake timeout
func (s *Service) register(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	return s.agent.Register(ctx)
}

func (s *Service) watchRelays(relays <-chan agent.Message) {
	for m := range relays {
		switch m.Kind {
		case agent.KindTaken:
			s.log.Info("medicine taken", "reminder", m.ReminderID, "medicine", m.MedicineName)
		case agent.KindSnoozed:
			s.log.Info("medicine snoozed", "reminder", m.ReminderID, "medicine", m.MedicineName)
		case agent.KindDismissed:
			s.log.Info("notification dismissed", "reminder", m.ReminderID, "tag", m.Tag)
		default:
			s.log.Debug("relay message", "type", m.Kind)
		}
	}
}
