package metrics

import (
	"time"

	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/resultstore"
)

// Collector periodically samples Queue and ResultStore into the Prometheus
// gauges declared in metrics.go.
type Collector struct {
	queue  *queue.Queue
	store  *resultstore.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(q *queue.Queue, s *resultstore.Store) *Collector {
	return &Collector{
		queue:  q,
		store:  s,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.queue != nil {
		QueuePendingChecks.Set(float64(c.queue.PendingChecksCount()))
		QueueReadyJobs.Set(float64(c.queue.ReadyLen()))
		WorkersRegistered.Set(float64(c.queue.WorkersRegistered()))
	}
	if c.store != nil {
		ResultStorePendingKeys.Set(float64(c.store.PendingCount()))
	}
}
