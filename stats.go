// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Statistics surface of §6, produced by Cache.Metrics.
type Metrics struct {
	Pieces int64

	ReadBlocks     int64
	WriteBlocks    int64
	VolatileBlocks int64
	PinnedBlocks   int64

	GhostLRU1 int64
	GhostLRU2 int64

	SendBufferHolds int64

	LastCacheOp string
}

// updateStatsCounters recomputes Metrics from live cache state. It is
// called with the cache mutex held.
func (c *Cache) updateStatsCounters() Metrics {
	return Metrics{
		Pieces:          int64(c.index.m.Len()),
		ReadBlocks:      int64(c.readCacheSize),
		WriteBlocks:     int64(c.writeCacheSize),
		VolatileBlocks:  int64(c.volatileSize),
		PinnedBlocks:    int64(c.pinnedBlocks),
		GhostLRU1:       int64(c.lists[stateReadLRU1Ghost].len),
		GhostLRU2:       int64(c.lists[stateReadLRU2Ghost].len),
		SendBufferHolds: int64(c.sendBufferBlocks),
		LastCacheOp:     c.lastCacheOp.String(),
	}
}

// Collector adapts Metrics to prometheus, following the teacher's style of
// exposing cache counters as gauges for ambient scraping.
type Collector struct {
	cache *Cache

	pieces          prometheus.Gauge
	readBlocks      prometheus.Gauge
	writeBlocks     prometheus.Gauge
	volatileBlocks  prometheus.Gauge
	pinnedBlocks    prometheus.Gauge
	ghostLRU1       prometheus.Gauge
	ghostLRU2       prometheus.Gauge
	sendBufferHolds prometheus.Gauge
}

// NewCollector returns a prometheus.Collector reporting c's Metrics.
func NewCollector(c *Cache) *Collector {
	mk := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blockcache",
			Name:      name,
			Help:      help,
		})
	}
	return &Collector{
		cache:           c,
		pieces:          mk("pieces", "Number of pieces tracked by the cache."),
		readBlocks:      mk("read_blocks", "Resident read-list block count."),
		writeBlocks:     mk("write_blocks", "Resident write-list block count."),
		volatileBlocks:  mk("volatile_blocks", "Resident volatile block count."),
		pinnedBlocks:    mk("pinned_blocks", "Blocks currently pinned."),
		ghostLRU1:       mk("ghost_lru1", "Ghost entries in the recency list."),
		ghostLRU2:       mk("ghost_lru2", "Ghost entries in the frequency list."),
		sendBufferHolds: mk("send_buffer_holds", "Outstanding send-buffer holds."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges() {
		ch <- g.Desc()
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.cache.Metrics()
	c.pieces.Set(float64(m.Pieces))
	c.readBlocks.Set(float64(m.ReadBlocks))
	c.writeBlocks.Set(float64(m.WriteBlocks))
	c.volatileBlocks.Set(float64(m.VolatileBlocks))
	c.pinnedBlocks.Set(float64(m.PinnedBlocks))
	c.ghostLRU1.Set(float64(m.GhostLRU1))
	c.ghostLRU2.Set(float64(m.GhostLRU2))
	c.sendBufferHolds.Set(float64(m.SendBufferHolds))
	for _, g := range c.gauges() {
		ch <- g
	}
}

func (c *Collector) gauges() []prometheus.Gauge {
	return []prometheus.Gauge{
		c.pieces, c.readBlocks, c.writeBlocks, c.volatileBlocks,
		c.pinnedBlocks, c.ghostLRU1, c.ghostLRU2, c.sendBufferHolds,
	}
}
