// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/flowmesh/blockcache/internal/base"
)

// lastCacheOp tracks which ghost list, if any, produced the most recent
// lookup's outcome, steering the eviction engine's list preference per
// §4.2.
type lastCacheOp int8

const (
	cacheMiss lastCacheOp = iota
	ghostHitLRU1
	ghostHitLRU2
)

func (op lastCacheOp) String() string {
	switch op {
	case cacheMiss:
		return "cache_miss"
	case ghostHitLRU1:
		return "ghost_hit_lru1"
	case ghostHitLRU2:
		return "ghost_hit_lru2"
	}
	return "unknown"
}

// Cache is a block cache for a single peer-to-peer file-transfer engine
// instance. All exported methods are safe for concurrent use: every
// operation executes under a single mutex guarding the whole cache, per
// the single critical-section discipline this component requires (the
// teacher's own Cache instead partitions into independent mutex-guarded
// shards, which does not fit a policy whose list transitions are
// inherently cache-wide rather than per-key-range).
type Cache struct {
	mu sync.Mutex

	settings Settings
	layout   StorageLayout
	pool     BufferAllocator
	queue    CompletionQueue
	logger   base.Logger

	index *pieceIndex
	lists [numCacheStates]lruList

	readCacheSize    int
	writeCacheSize   int
	volatileSize     int
	pinnedBlocks     int
	sendBufferBlocks int

	lastCacheOp lastCacheOp
}

// New constructs a Cache. layout and pool are required collaborators;
// queue and logger may be nil, in which case a discard queue and the
// base.DefaultLogger are used.
func New(settings Settings, layout StorageLayout, pool BufferAllocator, queue CompletionQueue, logger base.Logger) (*Cache, error) {
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "blockcache: invalid settings")
	}
	if layout == nil {
		return nil, errors.New("blockcache: layout is required")
	}
	if pool == nil {
		return nil, errors.New("blockcache: pool is required")
	}
	if queue == nil {
		queue = discardQueue{}
	}
	if logger == nil {
		logger = base.DefaultLogger{}
	}
	c := &Cache{
		settings: settings,
		layout:   layout,
		pool:     pool,
		queue:    queue,
		logger:   logger,
		index:    newPieceIndex(1024),
	}
	for s := cacheState(0); s < numCacheStates; s++ {
		c.lists[s].state = s
	}
	return c, nil
}

type discardQueue struct{}

func (discardQueue) Post(WriteCompletion) {}

// SetSettings validates and applies new settings. Capacity changes take
// effect on the next eviction decision; no blocks are evicted synchronously
// by a lowered capacity.
func (c *Cache) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	return nil
}

// Metrics reports the current Statistics surface (§6).
func (c *Cache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateStatsCounters()
}

// findPiece looks up a piece without side effects (§4.1 find_piece).
func (c *Cache) findPiece(k pieceKey) (*pieceEntry, bool) {
	return c.index.find(k)
}

// allocatePiece returns the existing piece for k, or inserts a fresh one in
// the requested initial state (§4.1 allocate_piece).
func (c *Cache) allocatePiece(k pieceKey, initial cacheState) *pieceEntry {
	if p, ok := c.index.find(k); ok {
		return p
	}
	resident := initial != stateReadLRU1Ghost && initial != stateReadLRU2Ghost
	blocksInPiece := int(c.layout.BlocksInPiece(k.storage, k.piece))
	p := newPieceEntry(k, blocksInPiece, resident)
	c.index.insert(p)
	c.lists[initial].pushMRU(p)
	return p
}

// erasePiece removes p from the index and its list entirely. p must be
// evictable (§3.3 P3); callers must check before calling.
func (c *Cache) erasePiece(p *pieceEntry) {
	if !p.evictable() {
		panic("blockcache: erasePiece called on a piece that is not evictable")
	}
	p.freeBuffers(c.pool)
	c.lists[p.listState].remove(p)
	c.index.remove(p.key)
}

// moveToList relocates p from its current list to dst, updating dst's MRU
// position. It does not adjust the read/write/volatile block-count totals;
// callers whose move crosses a bucket boundary (see bucketPtr) must
// transfer p.numBlocks between buckets themselves, in the right order
// relative to any buffer-freeing the move also does.
func (c *Cache) moveToList(p *pieceEntry, dst cacheState) {
	c.lists[p.listState].remove(p)
	c.lists[dst].pushMRU(p)
}

// moveBucketed is moveToList plus the bucket transfer for moves where
// p.numBlocks does not otherwise change (no buffers are being freed or
// added as part of the move).
func (c *Cache) moveBucketed(p *pieceEntry, dst cacheState) {
	if ptr := c.bucketPtr(p.listState); ptr != nil {
		*ptr -= p.numBlocks
	}
	c.moveToList(p, dst)
	if ptr := c.bucketPtr(dst); ptr != nil {
		*ptr += p.numBlocks
	}
}

// bumpMRU moves p to the MRU end of its current list.
func (c *Cache) bumpMRU(p *pieceEntry) {
	c.lists[p.listState].bumpMRU(p)
}

// bucketPtr returns the cache-wide block-count total that pieces in state
// contribute to (§3.4 read_cache_size / write_cache_size / volatile_size),
// or nil for states that are not counted in any of the three (the ghost
// lists and stateNone).
func (c *Cache) bucketPtr(state cacheState) *int {
	switch state {
	case stateReadLRU1, stateReadLRU2:
		return &c.readCacheSize
	case stateWriteLRU:
		return &c.writeCacheSize
	case stateVolatileReadLRU:
		return &c.volatileSize
	default:
		return nil
	}
}
