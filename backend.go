package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"git.0xdad.com/tblyler/lifespan/agent"
	"git.0xdad.com/tblyler/lifespan/config"
	"git.0xdad.com/tblyler/lifespan/db"
	"git.0xdad.com/tblyler/lifespan/notify"
	"git.0xdad.com/tblyler/lifespan/reminder"
)

type backend interface {
	reminder.Backend
	Close() error
}

func openBackend(cfg *config.Config) (backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		b, err := db.NewBadger(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}

		return b, nil

	case config.DriverSQLite:
		s, err := db.NewSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}

		return s, nil
	}

	return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
}

func newNotifier(cfg *config.Config, l *log.Logger) (notify.Notifier, error) {
	switch cfg.Notifier.Backend {
	case config.NotifierPushover:
		token, err := cfg.PushoverAPIToken()
		if err != nil {
			return nil, err
		}

		p := cfg.Notifier.Pushover

		return notify.NewPushover(token, p.UserKey, p.Device, p.ActionURL), nil

	case config.NotifierLog:
		return notify.NewLog(l), nil
	}

	return nil, fmt.Errorf("unknown notifier backend: %s", cfg.Notifier.Backend)
}

func newAgent(cfg *config.Config, notifier notify.Notifier, l *log.Logger) *agent.Agent {
	if !cfg.Agent.Enabled {
		return nil
	}

	return agent.New(notifier,
		agent.WithLogger(l),
		agent.WithSnoozeDelay(cfg.Agent.SnoozeDelay),
	)
}

// openStore opens the configured backend and loads the reminders in it, for
// the one-shot reminder commands. Unlike run, a failed load is an error: the
// store would start empty and the command's write would replace the
// unreadable data for good.
func openStore(a *app) (*reminder.Store, func(), error) {
	b, err := openBackend(a.cfg)
	if err != nil {
		return nil, nil, err
	}

	store := reminder.NewStore(b, nil, a.log)
	if err := store.Load(); err != nil {
		b.Close()
		return nil, nil, err
	}

	return store, func() {
		if err := b.Close(); err != nil {
			a.log.Warn("failed to close storage", "err", err)
		}
	}, nil
}
