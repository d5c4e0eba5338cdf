package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"

	"git.0xdad.com/tblyler/lifespan/agent"
	"git.0xdad.com/tblyler/lifespan/db"
	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/notify"
	"git.0xdad.com/tblyler/lifespan/reminder"
)

var now = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *reminder.Store {
	t.Helper()

	backend, err := db.NewSQLite(filepath.Join(t.TempDir(), "lifespan.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	t.Cleanup(func() {
		backend.Close()
	})

	store := reminder.NewStore(backend, func() time.Time { return now }, logger.Discard())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}

	return store
}

func startAgent(t *testing.T, recorder *notify.Recorder) *agent.Agent {
	t.Helper()

	a := agent.New(recorder, agent.WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		a.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	regCtx, regCancel := context.WithTimeout(ctx, 2*time.Second)
	defer regCancel()

	if err := a.Register(regCtx); err != nil {
		t.Fatalf("agent never answered: %v", err)
	}

	return a
}

func do(t *testing.T, s *Server, method string, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, target, &payload)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestReminderRoutes(t *testing.T) {
	s := New(newTestStore(t), nil, logger.Discard())
	s.now = func() time.Time { return now }

	rec := do(t, s, http.MethodPost, "/reminders", map[string]interface{}{
		"medicine_name": "Aspirin",
		"times":         []string{"08:00", "20:00"},
		"duration_days": 7,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var created reminder.Reminder
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	if created.MedicineName != "Aspirin" || !created.Active || !created.EndDate.Equal(now.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected created reminder %+v", created)
	}

	id := created.ID.String()

	rec = do(t, s, http.MethodGet, "/reminders/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPatch, "/reminders/"+id, map[string]interface{}{"active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var list []reminder.Reminder
	rec = do(t, s, http.MethodGet, "/reminders", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}

	if len(list) != 0 {
		t.Fatalf("inactive reminder listed as active: %+v", list)
	}

	rec = do(t, s, http.MethodGet, "/reminders?all=true", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}

	if len(list) != 1 {
		t.Fatalf("expected the inactive reminder with all=true, got %+v", list)
	}

	var stats reminder.Stats
	rec = do(t, s, http.MethodGet, "/reminders/stats", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}

	if stats != (reminder.Stats{Active: 0, Total: 1, Expired: 1}) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodDelete, "/reminders/"+id, nil); rec.Code != http.StatusNoContent {
			t.Fatalf("delete #%d: expected 204, got %d", i+1, rec.Code)
		}
	}

	if rec := do(t, s, http.MethodGet, "/reminders/"+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestReminderRouteErrors(t *testing.T) {
	s := New(newTestStore(t), nil, logger.Discard())

	tests := []struct {
		name   string
		method string
		target string
		body   interface{}
		code   int
	}{
		{
			name:   "missing times",
			method: http.MethodPost,
			target: "/reminders",
			body:   map[string]interface{}{"medicine_name": "Aspirin", "duration_days": 3},
			code:   http.StatusBadRequest,
		},
		{
			name:   "bad time",
			method: http.MethodPost,
			target: "/reminders",
			body:   map[string]interface{}{"medicine_name": "Aspirin", "times": []string{"8am"}, "duration_days": 3},
			code:   http.StatusBadRequest,
		},
		{
			name:   "unknown id",
			method: http.MethodPatch,
			target: "/reminders/6f1c9c1e-5d0b-4c3f-9a57-0d7e0d9c8a11",
			body:   map[string]interface{}{"active": false},
			code:   http.StatusNotFound,
		},
		{
			name:   "malformed id",
			method: http.MethodGet,
			target: "/reminders/not-a-uuid",
			code:   http.StatusBadRequest,
		},
		{
			name:   "no agent",
			method: http.MethodPost,
			target: "/notifications/abc/actions/taken",
			code:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, tt.method, tt.target, tt.body); rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := New(newTestStore(t), startAgent(t, notify.NewRecorder(notify.PermissionGranted)), logger.Discard())

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}

	if !body["received"] || !body["controlling"] {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestActionRoute(t *testing.T) {
	recorder := notify.NewRecorder(notify.PermissionGranted)
	a := startAgent(t, recorder)
	s := New(newTestStore(t), a, logger.Discard())

	ctx := context.Background()
	if err := a.Deliver(ctx, "r1", "Aspirin"); err != nil {
		t.Fatal(err)
	}

	if rec := do(t, s, http.MethodGet, "/notifications/r1/actions/bogus?reminder_id=r1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}

	if rec := do(t, s, http.MethodGet, "/notifications/r1/actions/taken?reminder_id=r1", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	if err := a.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	if state, ok := a.State("r1"); !ok || state != agent.StateTaken {
		t.Fatalf("expected the notification to be taken, got %v %v", state, ok)
	}
}

func TestWebSocketRelay(t *testing.T) {
	recorder := notify.NewRecorder(notify.PermissionGranted)
	a := startAgent(t, recorder)
	s := New(newTestStore(t), a, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relays, unsubscribe := a.Subscribe(8)
	defer unsubscribe()

	go s.Hub().Relay(ctx, relays)

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().ClientCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}

		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Deliver(ctx, "r1", "Aspirin"); err != nil {
		t.Fatal(err)
	}

	// the page reports the action over the socket
	if err := conn.WriteJSON(agent.ActionReport("r1", notify.ActionTaken, "r1")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var m agent.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("failed to read relay: %v", err)
	}

	if m.Kind != agent.KindTaken || m.ReminderID != "r1" || m.MedicineName != "Aspirin" {
		t.Fatalf("unexpected relay message %+v", m)
	}
}
