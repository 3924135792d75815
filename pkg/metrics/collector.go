package metrics

import (
	"time"

	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Collector periodically refreshes inventory gauges from the store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkloadMetrics()
	c.collectNodeMetrics()
	c.collectTemplateMetrics()
}

func (c *Collector) collectWorkloadMetrics() {
	workloads, err := c.store.ListWorkloads()
	if err != nil {
		return
	}

	counts := make(map[types.WorkloadStatus]int)
	for _, w := range workloads {
		counts[w.Status]++
	}

	// Zero out states with no members so gauges fall back after drains
	for _, state := range types.AllStatuses() {
		WorkloadsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.store.ListNodes()
	if err != nil {
		return
	}

	online, offline := 0, 0
	for _, n := range nodes {
		if n.Online {
			online++
		} else {
			offline++
		}
	}

	NodesTotal.WithLabelValues("online").Set(float64(online))
	NodesTotal.WithLabelValues("offline").Set(float64(offline))
}

func (c *Collector) collectTemplateMetrics() {
	templates, err := c.store.ListTemplates()
	if err != nil {
		return
	}

	TemplatesTotal.Set(float64(len(templates)))
}
