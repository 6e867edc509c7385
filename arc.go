// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// admitMiss records the miss for a piece that allocatePiece has just placed
// at the MRU end of read_lru1, per the §4.2 transition table's first row.
func (c *Cache) admitMiss(p *pieceEntry) {
	c.lastCacheOp = cacheMiss
}

// recordCacheHit implements the per-block cache_hit bookkeeping and the
// promotion it triggers (§4.2, §4.3 cache_hit). volatile reads are routed
// to the volatile list instead and never promoted through ARC.
func (c *Cache) recordCacheHit(p *pieceEntry, block int, volatile bool) {
	if volatile {
		if p.listState != stateVolatileReadLRU {
			c.moveBucketed(p, stateVolatileReadLRU)
		} else {
			c.bumpMRU(p)
		}
		return
	}

	b := &p.blocks[block]
	alreadyHit := b.cacheHit
	b.cacheHit = true

	switch p.listState {
	case stateReadLRU1:
		if alreadyHit {
			c.moveToList(p, stateReadLRU2)
		} else {
			c.bumpMRU(p)
		}
	case stateReadLRU2:
		c.bumpMRU(p)
	}
}

// ghostHit re-admits a piece found in one of the ghost lists, per the
// §4.2 rows for read_lru1_ghost and read_lru2_ghost hits. It only moves
// the piece; the caller gives it a fresh, empty blocks array afterwards (a
// ghost hit is always followed by a disk read to repopulate it).
func (c *Cache) ghostHit(p *pieceEntry) {
	switch p.listState {
	case stateReadLRU1Ghost:
		c.lastCacheOp = ghostHitLRU1
	case stateReadLRU2Ghost:
		c.lastCacheOp = ghostHitLRU2
	default:
		panic("blockcache: ghostHit called on a non-ghost piece")
	}
	c.moveToList(p, stateReadLRU2)
}

// moveToGhost frees p's buffers and relinks it into the ghost list
// corresponding to its current resident list.
func (c *Cache) moveToGhost(p *pieceEntry) {
	var dst cacheState
	switch p.listState {
	case stateReadLRU1:
		dst = stateReadLRU1Ghost
	case stateReadLRU2:
		dst = stateReadLRU2Ghost
	default:
		panic("blockcache: moveToGhost called on a piece outside the resident read lists")
	}
	c.readCacheSize -= p.numBlocks
	p.freeBuffers(c.pool)
	c.moveToList(p, dst)
	c.trimGhostList(dst)
}

// trimGhostList discards ghost entries past the configured ghost size from
// the LRU end.
func (c *Cache) trimGhostList(state cacheState) {
	limit := c.settings.ghostSize()
	l := &c.lists[state]
	for l.len > limit {
		p := l.popLRU()
		c.index.remove(p.key)
	}
}

// disfavoredReadList returns the read list the eviction engine should
// prefer to take victims from, per last_cache_op and the recency/frequency
// tie-break of §4.2's "Tie-breaks" note.
func (c *Cache) disfavoredReadList() cacheState {
	switch c.lastCacheOp {
	case ghostHitLRU1:
		return stateReadLRU2
	case ghostHitLRU2:
		return stateReadLRU1
	default:
		if c.lists[stateReadLRU2].len > c.lists[stateReadLRU1].len {
			return stateReadLRU2
		}
		return stateReadLRU1
	}
}

// tryEvictBlocks attempts to free n buffers, preferring volatile blocks
// over budget, then the disfavored read list, then the other read list.
// It returns the number of blocks it could not free. ignore, if non-nil, is
// never chosen as a victim.
func (c *Cache) tryEvictBlocks(n int, ignore *pieceEntry) int {
	// The volatile budget is enforced unconditionally: an over-budget
	// volatile list is trimmed even if the caller asked for zero blocks,
	// since volatile entries never count toward the request n requires.
	for c.volatileSize > c.settings.maxVolatileBlocks() {
		if c.tryEvictOneVolatile(ignore) == 0 {
			break
		}
	}
	if n <= 0 {
		return max0(n)
	}

	first := c.disfavoredReadList()
	second := stateReadLRU1
	if first == stateReadLRU1 {
		second = stateReadLRU2
	}

	n = c.evictFromList(first, n, ignore)
	if n > 0 {
		n = c.evictFromList(second, n, ignore)
	}
	return max0(n)
}

// evictFromList walks list from its LRU end evicting evictable pieces'
// buffers until n blocks have been freed or the list is exhausted. It
// returns the remaining shortfall.
func (c *Cache) evictFromList(state cacheState, n int, ignore *pieceEntry) int {
	l := &c.lists[state]
	p := l.head
	for p != nil && n > 0 {
		next := p.link.next
		if p != ignore && p.evictable() && p.numBlocks > 0 {
			freed := p.numBlocks
			c.moveToGhost(p)
			n -= freed
		}
		p = next
	}
	return n
}

// tryEvictOneVolatile evicts the LRU-end evictable piece in the volatile
// list and returns the number of blocks freed.
func (c *Cache) tryEvictOneVolatile(ignore *pieceEntry) int {
	l := &c.lists[stateVolatileReadLRU]
	for p := l.head; p != nil; p = p.link.next {
		if p == ignore || !p.evictable() {
			continue
		}
		freed := p.numBlocks
		p.freeBuffers(c.pool)
		c.volatileSize -= freed
		l.remove(p)
		c.index.remove(p.key)
		return freed
	}
	return 0
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
