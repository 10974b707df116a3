package kinetics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Run event types.
const (
	EventRunStarted  = "run.started"
	EventRunProgress = "run.progress"
	EventRunFinished = "run.finished"
)

// RunEvent is published to notifiers as a run moves through its lifecycle.
type RunEvent struct {
	Type      string  `json:"type"`
	RunID     RunID   `json:"run_id"`
	ModelID   string  `json:"model_id"`
	Status    Status  `json:"status"`
	Time      float64 `json:"time"`
	Steps     int64   `json:"steps"`
	Fraction  float64 `json:"fraction"`
	Reason    string  `json:"reason,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

func (e RunEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier delivers run events to one channel (webhook, websocket, ...).
type Notifier interface {
	ID() string
	Type() string
	// Notify delivers one event. The context bounds the delivery attempt.
	Notify(ctx context.Context, event RunEvent) error
	Close() error
}

// PermanentError marks a delivery failure that retrying cannot fix, such as
// a webhook endpoint rejecting the request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the notification manager gives up on it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// NotifierInfo describes a registered notifier.
type NotifierInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

const (
	notificationQueueSize = 1024
	notifyMaxRetries      = 3
	notifyInitialBackoff  = 100 * time.Millisecond
	notifyJobTimeout      = 30 * time.Second
)

type notificationJob struct {
	event       RunEvent
	notifierIDs []string
}

// NotificationManager routes run events to registered notifiers through a
// bounded queue drained by worker goroutines. Delivery is best effort: a full
// queue drops events and failed deliveries are retried with exponential
// backoff before being given up.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	logger    Logger
	backoff   time.Duration
}

// NewNotificationManager starts a manager with the given number of workers
// (at least one).
func NewNotificationManager(workers int, logger Logger) *NotificationManager {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if workers < 1 {
		workers = 1
	}
	nm := &NotificationManager{
		notifiers: make(map[string]Notifier),
		jobs:      make(chan notificationJob, notificationQueueSize),
		logger:    logger,
		backoff:   notifyInitialBackoff,
	}
	for range workers {
		nm.wg.Add(1)
		go nm.worker()
	}
	return nm
}

func (nm *NotificationManager) RegisterNotifier(n Notifier) error {
	if n == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	id := n.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if nm.closed {
		return ErrManagerClosed
	}
	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}
	nm.notifiers[id] = n
	return nil
}

// UnregisterNotifier closes and removes a notifier.
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	n, exists := nm.notifiers[id]
	delete(nm.notifiers, id)
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}
	if err := n.Close(); err != nil {
		return fmt.Errorf("closing notifier %s: %w", id, err)
	}
	return nil
}

func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	n, ok := nm.notifiers[id]
	return n, ok
}

// ListNotifiers returns the registered notifiers sorted by ID.
func (nm *NotificationManager) ListNotifiers() []NotifierInfo {
	nm.mu.RLock()
	out := make([]NotifierInfo, 0, len(nm.notifiers))
	for id, n := range nm.notifiers {
		out = append(out, NotifierInfo{ID: id, Type: n.Type()})
	}
	nm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enqueue schedules asynchronous delivery of event. It never blocks.
func (nm *NotificationManager) Enqueue(event RunEvent, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.closed {
		return
	}
	select {
	case nm.jobs <- notificationJob{event: event, notifierIDs: notifierIDs}:
	default:
		nm.logger.Warnf("notification queue full, dropping event: type=%s run_id=%s", event.Type, event.RunID)
	}
}

// Notify delivers event synchronously, without retries, and joins the
// errors of every failed notifier.
func (nm *NotificationManager) Notify(ctx context.Context, event RunEvent, notifierIDs []string) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	var errs []error
	for _, id := range notifierIDs {
		n, ok := nm.GetNotifier(id)
		if !ok {
			errs = append(errs, fmt.Errorf("notifier %s not found", id))
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifier %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), notifyJobTimeout)
		for _, id := range job.notifierIDs {
			nm.notifyWithRetry(ctx, id, job.event)
		}
		cancel()
	}
}

func (nm *NotificationManager) notifyWithRetry(ctx context.Context, id string, event RunEvent) {
	n, ok := nm.GetNotifier(id)
	if !ok {
		nm.logger.Warnf("notification skipped: notifier=%s not found", id)
		return
	}

	backoff := nm.backoff
	for attempt := 0; attempt <= notifyMaxRetries; attempt++ {
		err := n.Notify(ctx, event)
		if err == nil {
			return
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			nm.logger.Errorf("notification rejected: notifier=%s run_id=%s error=%v", id, event.RunID, err)
			return
		}
		nm.logger.Warnf("notification failed: notifier=%s type=%s attempt=%d error=%v", id, event.Type, attempt+1, err)
		if attempt == notifyMaxRetries {
			nm.logger.Errorf("notification dropped after %d attempts: notifier=%s run_id=%s", notifyMaxRetries+1, id, event.RunID)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Close drains the queue, stops the workers and closes every notifier.
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.Lock()
	defer nm.mu.Unlock()
	var errs []error
	for id, n := range nm.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	return errors.Join(errs...)
}
