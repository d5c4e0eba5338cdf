package main

import (
	"bytes"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"git.0xdad.com/tblyler/lifespan/config"
	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/notify"
	"git.0xdad.com/tblyler/lifespan/reminder"
)

func testApp(t *testing.T, input string) (*app, *bytes.Buffer) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "lifespan.db")
	cfg.Scheduler.Spec = reminder.DefaultSpec
	cfg.Scheduler.Timezone = "UTC"
	cfg.Notifier.Backend = config.NotifierLog

	out := &bytes.Buffer{}

	return &app{cfg: cfg, log: logger.Discard(), in: strings.NewReader(input), out: out}, out
}

func TestReminderCommands(t *testing.T) {
	a, out := testApp(t, "Aspirin\n")

	add := &ReminderAddCmd{Times: []string{"08:00", "20:00"}, Days: 5, Start: "2030-03-02"}
	if err := add.Run(a); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	fields := strings.Fields(out.String())
	if len(fields) == 0 {
		t.Fatal("add printed nothing")
	}

	id := fields[len(fields)-1]

	store, closeStore, err := openStore(a)
	if err != nil {
		t.Fatal(err)
	}

	all := store.All()
	closeStore()

	if len(all) != 1 || all[0].ID.String() != id || all[0].MedicineName != "Aspirin" {
		t.Fatalf("unexpected stored reminders %+v", all)
	}

	if got := all[0].StartDate.Format(reminder.DayFormat); got != "2030-03-02" {
		t.Fatalf("unexpected start date %s", got)
	}

	out.Reset()
	if err := (&ReminderUpdateCmd{ID: id, Name: "Ibuprofen", Deactivate: true}).Run(a); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if !strings.Contains(out.String(), "Ibuprofen") || !strings.Contains(out.String(), "inactive") {
		t.Fatalf("unexpected update output %q", out.String())
	}

	out.Reset()
	if err := (&ReminderListCmd{All: true}).Run(a); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), id) {
		t.Fatalf("list --all is missing the reminder: %q", out.String())
	}

	out.Reset()
	if err := (&ReminderStatsCmd{}).Run(a); err != nil {
		t.Fatal(err)
	}

	if out.String() != "active: 0\ntotal: 1\nexpired: 1\n" {
		t.Fatalf("unexpected stats output %q", out.String())
	}

	for i := 0; i < 2; i++ {
		if err := (&ReminderRemoveCmd{ID: id}).Run(a); err != nil {
			t.Fatalf("remove #%d failed: %v", i+1, err)
		}
	}

	out.Reset()
	if err := (&ReminderListCmd{All: true}).Run(a); err != nil {
		t.Fatal(err)
	}

	if out.Len() != 0 {
		t.Fatalf("removed reminder still listed: %q", out.String())
	}
}

func TestReminderCommandErrors(t *testing.T) {
	a, _ := testApp(t, "")

	if err := (&ReminderAddCmd{Times: []string{"08:00"}, Days: 1}).Run(a); err == nil {
		t.Fatal("expected an error without a medicine name")
	}

	if err := (&ReminderAddCmd{Name: "Aspirin", Times: []string{"8"}, Days: 1}).Run(a); !errors.Is(err, reminder.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}

	if err := (&ReminderUpdateCmd{ID: "nope"}).Run(a); err == nil {
		t.Fatal("expected an invalid id error")
	}

	err := (&ReminderUpdateCmd{ID: "6f1c9c1e-5d0b-4c3f-9a57-0d7e0d9c8a11", Days: 2}).Run(a)
	if !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReminderCommandsKeepCorruptData(t *testing.T) {
	a, _ := testApp(t, "")

	b, err := openBackend(a.cfg)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()

	raw, err := sql.Open("sqlite", a.cfg.Storage.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	if _, err := raw.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", "medicineReminders", []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	err = (&ReminderAddCmd{Name: "Aspirin", Times: []string{"08:00"}, Days: 1}).Run(a)
	if !errors.Is(err, reminder.ErrPersistence) {
		t.Fatalf("expected a persistence error, got %v", err)
	}

	var value []byte
	if err := raw.QueryRow("SELECT value FROM kv WHERE key = ?", "medicineReminders").Scan(&value); err != nil {
		t.Fatal(err)
	}

	if string(value) != "{not json" {
		t.Fatalf("corrupt reminder data was overwritten with %q", value)
	}
}

func TestUpdatePatch(t *testing.T) {
	tests := []struct {
		name   string
		cmd    ReminderUpdateCmd
		active *bool
		fields int
	}{
		{name: "empty", cmd: ReminderUpdateCmd{}},
		{name: "activate", cmd: ReminderUpdateCmd{Activate: true}, active: boolPtr(true), fields: 1},
		{name: "deactivate", cmd: ReminderUpdateCmd{Deactivate: true}, active: boolPtr(false), fields: 1},
		{name: "all", cmd: ReminderUpdateCmd{Name: "x", Times: []string{"08:00"}, Days: 2, Activate: true}, active: boolPtr(true), fields: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := tt.cmd.patch()

			fields := 0
			if patch.MedicineName != nil {
				fields++
			}
			if patch.Times != nil {
				fields++
			}
			if patch.DurationDays != nil {
				fields++
			}
			if patch.Active != nil {
				fields++
				if tt.active == nil || *patch.Active != *tt.active {
					t.Fatalf("unexpected active %v", *patch.Active)
				}
			}

			if fields != tt.fields {
				t.Fatalf("expected %d patched fields, got %d", tt.fields, fields)
			}
		})
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func TestOpenBackend(t *testing.T) {
	a, _ := testApp(t, "")

	b, err := openBackend(a.cfg)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	b.Close()

	a.cfg.Storage.Driver = config.DriverBadger
	a.cfg.Storage.Path = t.TempDir()

	b, err = openBackend(a.cfg)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	b.Close()

	a.cfg.Storage.Driver = "mongo"
	if _, err := openBackend(a.cfg); err == nil {
		t.Fatal("expected an unknown driver error")
	}
}

func TestNewNotifier(t *testing.T) {
	keyring.MockInit()
	t.Setenv(config.PushoverAPITokenEnv, "")

	a, _ := testApp(t, "")

	n, err := newNotifier(a.cfg, a.log)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := n.(*notify.Log); !ok {
		t.Fatalf("expected the log notifier, got %T", n)
	}

	a.cfg.Notifier.Backend = config.NotifierPushover
	a.cfg.Notifier.Pushover.UserKey = "user"

	if _, err := newNotifier(a.cfg, a.log); !errors.Is(err, config.ErrSecretNotSet) {
		t.Fatalf("expected ErrSecretNotSet, got %v", err)
	}

	if err := config.SetPushoverAPIToken("token"); err != nil {
		t.Fatal(err)
	}

	n, err = newNotifier(a.cfg, a.log)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := n.(*notify.Pushover); !ok {
		t.Fatalf("expected the pushover notifier, got %T", n)
	}

	a.cfg.Agent.Enabled = false
	if newAgent(a.cfg, n, a.log) != nil {
		t.Fatal("agent created while disabled")
	}
}
