/*
Package metrics provides Prometheus metrics collection and exposition for
Catalyst.

The metrics package defines and registers all Catalyst metrics using the
Prometheus client library, providing observability into workload inventory,
gateway traffic, lifecycle churn, and API performance. Metrics are exposed
via HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Inventory: workloads by state, nodes by    │          │
	│  │             connectivity, template count    │          │
	│  │  Gateway:   commands sent, events received, │          │
	│  │             send admission latency          │          │
	│  │  Lifecycle: crash exits, crash restarts     │          │
	│  │  Transfer:  transfers and backups by result │          │
	│  │  Surfaces:  API requests/duration, SFTP     │          │
	│  │             sessions                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Collection Model

Two feeds keep the registry current:

Inventory gauges are refreshed by the Collector, a 15-second ticker loop
that lists workloads, nodes, and templates from the store and resets every
label value, including states that drained to zero.

Flow counters and histograms are incremented inline at the call site: the
gateway bumps CommandsSent/EventsReceived as frames move, the lifecycle
engine bumps crash counters from exit events, and the HTTP layer wraps
handlers with APIRequestsTotal and APIRequestDuration.

# Usage

Exposing metrics (done by pkg/server):

	mux.Handle("/metrics", metrics.Handler())

Starting the inventory collector:

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

Timing an operation:

	timer := metrics.NewTimer()
	send(frame)
	timer.ObserveDuration(metrics.GatewaySendDuration)

# Health Endpoints

The package also carries the process health surface: /health aggregates
every registered component, /ready gates on the critical set (storage,
gateway, http), and /live answers whenever the process runs. Components
report in via RegisterComponent and UpdateComponent.

# Integration Points

  - pkg/server: mounts /metrics, /health, /ready, /live; wraps handlers
  - pkg/gateway: command/event counters, send latency, node gauges
  - pkg/lifecycle: crash counters
  - pkg/transfer: transfer and backup outcome counters
  - pkg/sftpd: active session gauge

# See Also

  - pkg/storage for the inventory the collector reads
  - https://prometheus.io/docs/practices/naming/ for metric naming
*/
package metrics
