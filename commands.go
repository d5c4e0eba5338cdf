package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"git.0xdad.com/tblyler/lifespan/config"
	"git.0xdad.com/tblyler/lifespan/reminder"
	"git.0xdad.com/tblyler/lifespan/server"
)

// RunCmd runs the long-lived process
type RunCmd struct{}

func (c *RunCmd) Run(a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	b, err := openBackend(a.cfg)
	if err != nil {
		return err
	}

	defer b.Close()

	notifier, err := newNotifier(a.cfg, a.log)
	if err != nil {
		return err
	}

	deliveryAgent := newAgent(a.cfg, notifier, a.log)

	svc, err := reminder.NewService(b, notifier, deliveryAgent, reminder.ServiceConfig{
		Scheduler: reminder.SchedulerConfig{
			Spec:     a.cfg.Scheduler.Spec,
			Location: loc,
		},
		HandshakeTimeout: a.cfg.Agent.HandshakeTimeout,
		RelayBuffer:      a.cfg.Agent.RelayBuffer,
	}, a.log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	defer svc.Stop()

	if !a.cfg.Server.Enabled {
		<-ctx.Done()
		a.log.Info("shutting down")
		return nil
	}

	return server.New(svc.Store(), deliveryAgent, a.log).Run(ctx, a.cfg.Server.Addr)
}

// ReminderAddCmd adds a reminder
type ReminderAddCmd struct {
	Name  string   `help:"Medicine name. Prompted for when omitted."`
	Times []string `name:"time" help:"Daily time in 24 hour HH:MM, repeatable or comma separated." required:""`
	Days  int      `help:"Number of days the reminder lasts." required:""`
	Start string   `help:"Start date (YYYY-MM-DD) in the configured timezone. Defaults to now."`
}

func (c *ReminderAddCmd) Run(a *app) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		inputScanner := bufio.NewScanner(a.in)

		fmt.Fprint(a.out, "medicine name: ")
		inputScanner.Scan()

		name = string(bytes.TrimSpace(inputScanner.Bytes()))
		if name == "" {
			return fmt.Errorf("failed to get medicine name from STDIN prompt: %w", inputScanner.Err())
		}
	}

	var start time.Time
	if c.Start != "" {
		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}

		start, err = time.ParseInLocation(reminder.DayFormat, c.Start, loc)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", c.Start, err)
		}
	}

	store, closeStore, err := openStore(a)
	if err != nil {
		return err
	}

	defer closeStore()

	r, err := store.Add(name, c.Times, c.Days, start)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "created reminder id", r.ID)

	return nil
}

// ReminderListCmd lists reminders
type ReminderListCmd struct {
	All bool `help:"Include inactive and expired reminders."`
}

func (c *ReminderListCmd) Run(a *app) error {
	store, closeStore, err := openStore(a)
	if err != nil {
		return err
	}

	defer closeStore()

	reminders := store.ListActive(time.Now())
	if c.All {
		reminders = store.All()
	}

	for _, r := range reminders {
		fmt.Fprintln(a.out, formatReminder(r))
	}

	return nil
}

// ReminderUpdateCmd updates a reminder
type ReminderUpdateCmd struct {
	ID         string   `arg:"" help:"Reminder id."`
	Name       string   `help:"New medicine name."`
	Times      []string `name:"time" help:"Replace the daily times."`
	Days       int      `help:"New duration in days."`
	Activate   bool     `help:"Mark the reminder active." xor:"active"`
	Deactivate bool     `help:"Mark the reminder inactive." xor:"active"`
}

func (c *ReminderUpdateCmd) patch() reminder.Patch {
	var patch reminder.Patch

	if c.Name != "" {
		patch.MedicineName = &c.Name
	}

	if len(c.Times) > 0 {
		patch.Times = c.Times
	}

	if c.Days != 0 {
		patch.DurationDays = &c.Days
	}

	if c.Activate || c.Deactivate {
		active := c.Activate
		patch.Active = &active
	}

	return patch
}

func (c *ReminderUpdateCmd) Run(a *app) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("invalid reminder id %q: %w", c.ID, err)
	}

	store, closeStore, err := openStore(a)
	if err != nil {
		return err
	}

	defer closeStore()

	r, err := store.Update(id, c.patch())
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, formatReminder(r))

	return nil
}

// ReminderRemoveCmd removes a reminder
type ReminderRemoveCmd struct {
	ID string `arg:"" help:"Reminder id."`
}

func (c *ReminderRemoveCmd) Run(a *app) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("invalid reminder id %q: %w", c.ID, err)
	}

	store, closeStore, err := openStore(a)
	if err != nil {
		return err
	}

	defer closeStore()

	return store.Remove(id)
}

// ReminderStatsCmd prints reminder counts
type ReminderStatsCmd struct{}

func (c *ReminderStatsCmd) Run(a *app) error {
	store, closeStore, err := openStore(a)
	if err != nil {
		return err
	}

	defer closeStore()

	stats := store.Stats()
	fmt.Fprintf(a.out, "active: %d\ntotal: %d\nexpired: %d\n", stats.Active, stats.Total, stats.Expired)

	return nil
}

// PushoverSetTokenCmd stores the Pushover API token in the OS keyring
type PushoverSetTokenCmd struct{}

func (c *PushoverSetTokenCmd) Run(a *app) error {
	inputScanner := bufio.NewScanner(a.in)

	fmt.Fprint(a.out, "pushover API token: ")
	inputScanner.Scan()

	token := string(bytes.TrimSpace(inputScanner.Bytes()))
	if token == "" {
		return errors.Join(errors.New("no pushover API token provided"), inputScanner.Err())
	}

	if err := config.SetPushoverAPIToken(token); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "stored pushover API token in keyring")

	return nil
}

func formatReminder(r *reminder.Reminder) string {
	status := "active"
	if !r.Active {
		status = "inactive"
	}

	return fmt.Sprintf("%s\t%s\t%s\t%d days\tends %s\t%s",
		r.ID,
		r.MedicineName,
		strings.Join(r.Times, ","),
		r.DurationDays,
		r.EndDate.Format(time.RFC3339),
		status,
	)
}
