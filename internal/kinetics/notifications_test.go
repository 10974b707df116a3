package kinetics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockNotifier is a test implementation of Notifier
type mockNotifier struct {
	id         string
	notifyFunc func(context.Context, RunEvent) error
	closeFunc  func() error

	mu     sync.Mutex
	events []RunEvent
	calls  int
}

func (m *mockNotifier) ID() string   { return m.id }
func (m *mockNotifier) Type() string { return "mock" }

func (m *mockNotifier) Notify(ctx context.Context, event RunEvent) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.notifyFunc != nil {
		if err := m.notifyFunc(ctx, event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *mockNotifier) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockNotifier) received() []RunEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunEvent(nil), m.events...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestNotificationManager_RegisterNotifier(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	defer nm.Close()

	if err := nm.RegisterNotifier(&mockNotifier{id: "hook-1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := nm.RegisterNotifier(&mockNotifier{id: "hook-1"}); err == nil {
		t.Error("Expected error for duplicate registration")
	}
	if err := nm.RegisterNotifier(&mockNotifier{id: ""}); err == nil {
		t.Error("Expected error for empty ID")
	}
	if err := nm.RegisterNotifier(nil); err == nil {
		t.Error("Expected error for nil notifier")
	}
}

func TestNotificationManager_UnregisterNotifier(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	defer nm.Close()

	closed := false
	if err := nm.RegisterNotifier(&mockNotifier{id: "hook-1", closeFunc: func() error {
		closed = true
		return nil
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := nm.UnregisterNotifier("hook-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !closed {
		t.Error("Expected notifier to be closed on unregister")
	}
	if _, ok := nm.GetNotifier("hook-1"); ok {
		t.Error("Expected notifier to be gone")
	}
	if err := nm.UnregisterNotifier("hook-1"); err == nil {
		t.Error("Expected error unregistering unknown notifier")
	}
}

func TestNotificationManager_ListNotifiersSorted(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	defer nm.Close()

	for _, id := range []string{"c", "a", "b"} {
		if err := nm.RegisterNotifier(&mockNotifier{id: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	list := nm.ListNotifiers()
	if len(list) != 3 {
		t.Fatalf("Expected 3 notifiers, got %d", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want || list[i].Type != "mock" {
			t.Errorf("entry %d: got %+v, want id %s type mock", i, list[i], want)
		}
	}
}

func TestNotificationManager_EnqueueDelivers(t *testing.T) {
	nm := NewNotificationManager(2, nil)
	defer nm.Close()

	n := &mockNotifier{id: "hook-1"}
	if err := nm.RegisterNotifier(n); err != nil {
		t.Fatalf("register: %v", err)
	}
	nm.Enqueue(RunEvent{Type: EventRunStarted, RunID: "run-1"}, []string{"hook-1"})

	waitFor(t, 2*time.Second, func() bool { return len(n.received()) == 1 })
	ev := n.received()[0]
	if ev.RunID != "run-1" || ev.Type != EventRunStarted {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Timestamp == 0 {
		t.Error("Expected timestamp to be filled in")
	}
}

func TestNotificationManager_RetriesFailedDelivery(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	nm.backoff = time.Millisecond
	defer nm.Close()

	var mu sync.Mutex
	failures := 2
	n := &mockNotifier{id: "flaky", notifyFunc: func(context.Context, RunEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errors.New("temporarily unavailable")
		}
		return nil
	}}
	if err := nm.RegisterNotifier(n); err != nil {
		t.Fatalf("register: %v", err)
	}
	nm.Enqueue(RunEvent{Type: EventRunFinished, RunID: "run-1"}, []string{"flaky"})

	waitFor(t, 2*time.Second, func() bool { return len(n.received()) == 1 })
	if got := n.callCount(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestNotificationManager_GivesUpAfterMaxRetries(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	nm.backoff = time.Millisecond

	n := &mockNotifier{id: "down", notifyFunc: func(context.Context, RunEvent) error {
		return errors.New("connection refused")
	}}
	if err := nm.RegisterNotifier(n); err != nil {
		t.Fatalf("register: %v", err)
	}
	nm.Enqueue(RunEvent{Type: EventRunFinished, RunID: "run-1"}, []string{"down"})

	// Close drains the queue before returning.
	if err := nm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := n.callCount(); got != notifyMaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", notifyMaxRetries+1, got)
	}
}

func TestNotificationManager_PermanentErrorsAreNotRetried(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	nm.backoff = time.Millisecond

	n := &mockNotifier{id: "rejecting", notifyFunc: func(context.Context, RunEvent) error {
		return Permanent(errors.New("webhook returned status 404"))
	}}
	if err := nm.RegisterNotifier(n); err != nil {
		t.Fatalf("register: %v", err)
	}
	nm.Enqueue(RunEvent{Type: EventRunFinished, RunID: "run-1"}, []string{"rejecting"})

	if err := nm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := n.callCount(); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestNotificationManager_NotifyJoinsErrors(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	defer nm.Close()

	ok := &mockNotifier{id: "ok"}
	bad := &mockNotifier{id: "bad", notifyFunc: func(context.Context, RunEvent) error {
		return errors.New("boom")
	}}
	for _, n := range []*mockNotifier{ok, bad} {
		if err := nm.RegisterNotifier(n); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	err := nm.Notify(context.Background(), RunEvent{Type: EventRunStarted}, []string{"ok", "bad", "missing"})
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if len(ok.received()) != 1 {
		t.Error("Expected healthy notifier to receive the event")
	}
	if bad.callCount() != 1 {
		t.Errorf("Expected exactly one attempt without retries, got %d", bad.callCount())
	}
}

func TestNotificationManager_CloseRejectsRegistration(t *testing.T) {
	nm := NewNotificationManager(1, nil)
	if err := nm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := nm.RegisterNotifier(&mockNotifier{id: "late"}); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Expected ErrManagerClosed, got %v", err)
	}
	// Enqueue after close is silently dropped.
	nm.Enqueue(RunEvent{Type: EventRunStarted}, []string{"late"})
	if err := nm.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestRunEvent_JSON(t *testing.T) {
	ev := RunEvent{
		Type:      EventRunFinished,
		RunID:     "run-1",
		ModelID:   "decay",
		Status:    StatusTerminated,
		Time:      2.5,
		Steps:     7,
		Reason:    "total propensity is zero",
		Timestamp: 1700000000,
	}
	data, err := ev.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["status"] != "terminated" {
		t.Errorf("Expected status text, got %v", raw["status"])
	}
	if raw["type"] != EventRunFinished {
		t.Errorf("Expected type %s, got %v", EventRunFinished, raw["type"])
	}
	if _, ok := raw["error"]; ok {
		t.Error("Expected empty error to be omitted")
	}
}
