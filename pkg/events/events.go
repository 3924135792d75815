package events

import (
	"sync"
	"time"

	"github.com/catalystpanel/catalyst/pkg/types"
)

// Event type vocabulary published on the broker. Values land in
// types.Event.Type and in audit entries, so they are stable strings.
const (
	EventWorkloadCreated      = "workload.created"
	EventWorkloadUpdated      = "workload.updated"
	EventWorkloadDeleted      = "workload.deleted"
	EventWorkloadStateChanged = "workload.state_changed"
	EventWorkloadCrashed      = "workload.crashed"
	EventWorkloadCrashLimit   = "workload.crash_limit"
	EventWorkloadSuspended    = "workload.suspended"
	EventWorkloadUnsuspended  = "workload.unsuspended"
	EventNodeRegistered       = "node.registered"
	EventNodeOnline           = "node.online"
	EventNodeOffline          = "node.offline"
	EventTransferStarted      = "transfer.started"
	EventTransferCompleted    = "transfer.completed"
	EventTransferFailed       = "transfer.failed"
	EventBackupCompleted      = "backup.completed"
)

// Subscriber is a channel that receives events.
type Subscriber chan *types.Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *types.Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *types.Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// PublishWorkload is a convenience publisher for workload-scoped events.
func (b *Broker) PublishWorkload(eventType, nodeID, workloadID, message string) {
	b.Publish(&types.Event{
		Type:       eventType,
		NodeID:     nodeID,
		WorkloadID: workloadID,
		Message:    message,
	})
}

// PublishNode is a convenience publisher for node-scoped events.
func (b *Broker) PublishNode(eventType, nodeID, message string) {
	b.Publish(&types.Event{
		Type:    eventType,
		NodeID:  nodeID,
		Message: message,
	})
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
