/*
Package events provides an in-memory event broker for Catalyst's pub/sub
messaging.

The events package implements a lightweight event bus for broadcasting
control-plane events to interested subscribers. It supports asynchronous
event delivery with per-subscriber buffers, enabling loose coupling between
Catalyst components for state changes, notifications, and monitoring.

# Architecture

Catalyst's event system provides non-blocking pub/sub messaging with
buffered channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Workload Events:                           │          │
	│  │    - workload.created / updated / deleted   │          │
	│  │    - workload.state_changed                 │          │
	│  │    - workload.crashed / crash_limit         │          │
	│  │    - workload.suspended / unsuspended       │          │
	│  │                                              │          │
	│  │  Node Events:                               │          │
	│  │    - node.registered                        │          │
	│  │    - node.online / node.offline             │          │
	│  │                                              │          │
	│  │  Transfer Events:                           │          │
	│  │    - transfer.started / completed / failed  │          │
	│  │    - backup.completed                       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Subscriber:
  - Channel that receives *types.Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Usage

Creating and starting the broker:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing events:

	broker.PublishWorkload(events.EventWorkloadStateChanged,
		node.ID, workload.ID, "running → stopping")

# Delivery Semantics

Publish is fire-and-forget: a full subscriber buffer skips that subscriber
rather than blocking the broadcast loop. The broker is a monitoring and
fan-out path, not a durability path; anything that must survive a restart
goes through pkg/storage (audit entries, workload logs) instead.

# Integration Points

This package integrates with:

  - pkg/lifecycle: Publishes workload state changes and crash events
  - pkg/gateway: Publishes node online/offline transitions
  - pkg/transfer: Publishes transfer progress events
  - pkg/metrics: Counts events for Prometheus dashboards
  - pkg/server: Streams events to HTTP clients

# See Also

  - pkg/types for the Event struct
  - pkg/audit for the persistent trail (broker delivery is best-effort)
*/
package events
