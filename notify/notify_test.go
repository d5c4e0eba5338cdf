package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gregdel/pushover"
)

func TestForReminder(t *testing.T) {
	n := ForReminder("abc", "Amoxicillin")

	if n.Title != "Medicine Reminder" {
		t.Errorf("unexpected title %q", n.Title)
	}
	if n.Body != "Time to take: Amoxicillin" {
		t.Errorf("unexpected body %q", n.Body)
	}
	if n.Tag != "abc" || n.Data.ReminderID != "abc" {
		t.Errorf("expected tag and data to carry the reminder id, got %+v", n)
	}
	if !n.RequireInteraction {
		t.Errorf("expected reminder notifications to require interaction")
	}
	if len(n.Buttons) != 2 || n.Buttons[0].Action != ActionTaken || n.Buttons[1].Action != ActionSnooze {
		t.Errorf("unexpected buttons %+v", n.Buttons)
	}
	if n.Buttons[1].Title != "Snooze 10 min" {
		t.Errorf("unexpected snooze title %q", n.Buttons[1].Title)
	}
}

func TestFollowUp(t *testing.T) {
	n := FollowUp(Data{ReminderID: "abc"})

	if n.Body != "Time to take: your medicine" {
		t.Errorf("expected fallback medicine name, got %q", n.Body)
	}
	if n.Tag != "abc_followup" {
		t.Errorf("unexpected follow-up tag %q", n.Tag)
	}
	if len(n.Buttons) != 2 {
		t.Errorf("follow-up should offer the same actions, got %+v", n.Buttons)
	}

	c := SnoozeConfirmation("abc", Data{ReminderID: "abc"}, 10)
	if c.Tag != "abc_snooze" || c.RequireInteraction || len(c.Buttons) != 0 {
		t.Errorf("unexpected confirmation %+v", c)
	}
	if !strings.Contains(c.Body, "10 minutes") {
		t.Errorf("unexpected confirmation body %q", c.Body)
	}
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"taken", "snooze", "dismissed"} {
		if _, err := ParseAction(s); err != nil {
			t.Errorf("ParseAction(%q) unexpected error: %v", s, err)
		}
	}

	if _, err := ParseAction("later"); err == nil {
		t.Errorf("expected error for unknown action")
	}
}

type fakePushoverClient struct {
	sent       []*pushover.Message
	detailsErr error
	sendErr    error
	validated  int
}

func (f *fakePushoverClient) SendMessage(m *pushover.Message, _ *pushover.Recipient) (*pushover.Response, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	f.sent = append(f.sent, m)

	return &pushover.Response{}, nil
}

func (f *fakePushoverClient) GetRecipientDetails(*pushover.Recipient) (*pushover.RecipientDetails, error) {
	f.validated++

	if f.detailsErr != nil {
		return nil, f.detailsErr
	}

	return &pushover.RecipientDetails{}, nil
}

func TestPushoverPermission(t *testing.T) {
	ctx := context.Background()
	client := &fakePushoverClient{detailsErr: errors.New("invalid user")}

	p := NewPushover("token", "user", "", "")
	p.client = client

	perm, err := p.Permission(ctx)
	if err == nil || perm != PermissionDenied {
		t.Errorf("expected denied permission with error, got %s (%v)", perm, err)
	}

	client.detailsErr = nil

	for i := 0; i < 3; i++ {
		perm, err = p.Permission(ctx)
		if err != nil || perm != PermissionGranted {
			t.Fatalf("expected granted permission, got %s (%v)", perm, err)
		}
	}

	if client.validated != 2 {
		t.Errorf("expected granted permission to be cached, validated %d times", client.validated)
	}
}

func TestPushoverShow(t *testing.T) {
	client := &fakePushoverClient{}

	p := NewPushover("token", "user", "phone", "http://example.test:8765/")
	p.client = client

	if err := p.Show(context.Background(), ForReminder("abc", "Amoxicillin")); err != nil {
		t.Fatal(err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(client.sent))
	}

	msg := client.sent[0]
	if msg.Title != "Medicine Reminder" || msg.Message != "Time to take: Amoxicillin" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Priority != pushover.PriorityHigh {
		t.Errorf("expected high priority, got %d", msg.Priority)
	}
	if msg.DeviceName != "phone" {
		t.Errorf("expected device phone, got %q", msg.DeviceName)
	}
	if msg.URL != "http://example.test:8765/notifications/abc/actions/taken?reminder_id=abc" {
		t.Errorf("unexpected action url %q", msg.URL)
	}
	if msg.URLTitle != "Taken" {
		t.Errorf("unexpected url title %q", msg.URLTitle)
	}

	client.sendErr = errors.New("rate limited")
	if err := p.Show(context.Background(), ForReminder("abc", "Amoxicillin")); err == nil {
		t.Errorf("expected send error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Show(ctx, ForReminder("abc", "Amoxicillin")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(log.New(&buf))

	perm, _ := n.Permission(context.Background())
	if perm != PermissionGranted {
		t.Errorf("log notifier should always be granted")
	}

	if err := n.Show(context.Background(), ForReminder("abc", "Amoxicillin")); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "Time to take: Amoxicillin") {
		t.Errorf("expected notification in log output, got %q", buf.String())
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(PermissionDefault)
	r.GrantOnRequest(PermissionGranted)

	perm, _ := r.RequestPermission(ctx)
	if perm != PermissionGranted {
		t.Fatalf("expected granted after request, got %s", perm)
	}

	var events []Event
	r.OnAction(func(e Event) { events = append(events, e) })

	if err := r.Act("missing", ActionTaken); err == nil {
		t.Errorf("expected error acting on unknown tag")
	}

	if err := r.Show(ctx, ForReminder("abc", "Amoxicillin")); err != nil {
		t.Fatal(err)
	}
	if err := r.Act("abc", ActionSnooze); err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 || events[0].Action != ActionSnooze || events[0].Data.MedicineName != "Amoxicillin" {
		t.Errorf("unexpected events %+v", events)
	}

	r.FailShow(errors.New("closed"))
	if err := r.Show(ctx, ForReminder("abc", "Amoxicillin")); err == nil {
		t.Errorf("expected configured show failure")
	}
	if len(r.Shown()) != 1 {
		t.Errorf("failed show should not be recorded")
	}
}
