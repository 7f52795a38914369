package metrics

import "time"

// StatsSource is implemented by the engine handle and the session manager.
// Collector depends on this narrow interface rather than importing those
// packages directly, so the dependency runs metrics -> (nothing) instead of
// metrics <-> engine.
type StatsSource interface {
	// ActiveSessions returns the number of currently open sessions.
	ActiveSessions() int
	// ActiveConnections returns the number of currently accepted connections.
	ActiveConnections() int
	// ModuleLocks returns the number of per-module locks currently held.
	ModuleLocks() int
	// DatastoreLocks returns the number of per-datastore locks currently held.
	DatastoreLocks() int
}

// Collector polls a StatsSource on a fixed interval and republishes its
// counts as gauges, the way the teacher's collector polled the manager for
// cluster-wide totals.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
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
	SessionsActive.Set(float64(c.source.ActiveSessions()))
	ConnectionsActive.Set(float64(c.source.ActiveConnections()))
	ModuleLocksHeld.Set(float64(c.source.ModuleLocks()))
	DatastoreLocksHeld.Set(float64(c.source.DatastoreLocks()))
}
