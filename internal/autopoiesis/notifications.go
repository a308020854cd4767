package autopoiesis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// TickEvent is the notification payload published after a tick is applied.
type TickEvent struct {
	SimID     string         `json:"sim_id,omitempty"`
	Tick      int64          `json:"tick"`
	Timestamp int64          `json:"timestamp"`
	Counts    Counts         `json:"counts"`
	Firings   map[string]int `json:"firings,omitempty"`
	Created   int            `json:"created"`
	Destroyed int            `json:"destroyed"`
	Bonded    int            `json:"bonded"`
	Unbonded  int            `json:"unbonded"`
}

func newTickEvent(simID string, stats TickStats) TickEvent {
	return TickEvent{
		SimID:     simID,
		Tick:      stats.Tick,
		Timestamp: time.Now().Unix(),
		Counts:    stats.Counts,
		Firings:   stats.Firings,
		Created:   stats.Created,
		Destroyed: stats.Destroyed,
		Bonded:    stats.Bonded,
		Unbonded:  stats.Unbonded,
	}
}

// JSON returns the event as JSON bytes.
func (e TickEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier is a delivery channel for tick events.
type Notifier interface {
	// ID returns a unique identifier for this notifier.
	ID() string

	// Type returns the notifier type (e.g. "webhook", "websocket").
	Type() string

	// Notify delivers one event. The context carries cancellation/timeout.
	Notify(ctx context.Context, event TickEvent) error

	// Close releases the notifier's resources.
	Close() error
}

type notificationJob struct {
	Event       TickEvent
	NotifierIDs []string
}

// NotificationManager routes tick events to registered notifiers through an
// asynchronous queue, so delivery latency never stalls the simulation loop.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	log       Logger
}

// NewNotificationManager creates a manager with one delivery worker.
func NewNotificationManager(log Logger) *NotificationManager {
	if log == nil {
		log = NewNoOpLogger()
	}
	nm := &NotificationManager{
		notifiers: make(map[string]Notifier),
		jobs:      make(chan notificationJob, 1024),
		log:       log,
	}
	nm.wg.Add(1)
	go nm.worker()
	return nm
}

// Register adds a notifier. IDs must be unique.
func (nm *NotificationManager) Register(n Notifier) error {
	if n == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	id := n.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier %s already registered", id)
	}
	nm.notifiers[id] = n
	return nil
}

// Unregister closes and removes a notifier by id.
func (nm *NotificationManager) Unregister(id string) error {
	nm.mu.Lock()
	n, exists := nm.notifiers[id]
	if exists {
		delete(nm.notifiers, id)
	}
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier %s: %w", id, ErrNotFound)
	}
	if err := n.Close(); err != nil {
		return fmt.Errorf("closing notifier %s: %w", id, err)
	}
	return nil
}

// Get returns a notifier by id.
func (nm *NotificationManager) Get(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	n, exists := nm.notifiers[id]
	return n, exists
}

// List returns the registered notifier ids.
func (nm *NotificationManager) List() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	return ids
}

// Enqueue queues an event for asynchronous delivery. Non-blocking: when the
// queue is full the event is dropped and logged, never stalling a tick.
func (nm *NotificationManager) Enqueue(event TickEvent, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}
	nm.mu.RLock()
	closed := nm.closed
	nm.mu.RUnlock()
	if closed {
		return
	}

	select {
	case nm.jobs <- notificationJob{Event: event, NotifierIDs: notifierIDs}:
	default:
		nm.log.Warnf("notification queue full, dropping event for tick %d", event.Tick)
	}
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, id := range job.NotifierIDs {
			nm.notifyWithRetry(ctx, id, job.Event)
		}
		cancel()
	}
}

// notifyWithRetry attempts delivery with exponential backoff.
func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, event TickEvent) {
	nm.mu.RLock()
	n, ok := nm.notifiers[notifierID]
	nm.mu.RUnlock()
	if !ok {
		nm.log.Warnf("notification skipped: notifier=%s not registered", notifierID)
		return
	}

	const maxRetries = 3
	backoff := 100 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := n.Notify(ctx, event)
		if err == nil {
			return
		}
		nm.log.Warnf("notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)
		if attempt == maxRetries {
			nm.log.Errorf("notification abandoned after %d attempts: notifier=%s", maxRetries+1, notifierID)
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

// Close drains the queue, stops the worker and closes every notifier.
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
	var firstErr error
	for id, n := range nm.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing notifier %s: %w", id, err)
		}
	}
	nm.notifiers = make(map[string]Notifier)
	return firstErr
}
