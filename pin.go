// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// incBlockRefcount pins blocks[block] for reason, returning false if the
// block has no buffer to pin (§4.5).
func (c *Cache) incBlockRefcount(p *pieceEntry, block int, reason RefReason) bool {
	b := &p.blocks[block]
	if !b.present() {
		return false
	}
	if b.refcount >= maxBlockRefcount {
		panic("blockcache: block refcount overflow")
	}
	if b.refcount == 0 {
		p.pinnedBlocks++
		c.pinnedBlocks++
	}
	b.refcount++
	p.refcount++
	return true
}

// decBlockRefcount releases a pin taken by incBlockRefcount. If the
// refcount drops to zero and the piece is marked for eviction and fully
// unpinned, the piece is synchronously freed.
func (c *Cache) decBlockRefcount(p *pieceEntry, block int, reason RefReason) {
	b := &p.blocks[block]
	if b.refcount <= 0 {
		panic("blockcache: decBlockRefcount on an unpinned block")
	}
	b.refcount--
	p.refcount--
	if b.refcount == 0 {
		p.pinnedBlocks--
		c.pinnedBlocks--
		c.maybeFreePiece(p)
	}
}

// incPieceRefcount takes the coarse, piece-spanning pin used by flush and
// hash jobs (§4.5).
func (c *Cache) incPieceRefcount(p *pieceEntry) {
	if p.pieceRefcount >= maxPieceRefcount {
		panic("blockcache: piece refcount overflow")
	}
	p.pieceRefcount++
}

// decPieceRefcount releases the coarse pin. If it drops to zero and the
// piece is marked for eviction and fully unpinned, the piece is
// synchronously freed.
func (c *Cache) decPieceRefcount(p *pieceEntry) {
	if p.pieceRefcount <= 0 {
		panic("blockcache: decPieceRefcount on an unpinned piece")
	}
	p.pieceRefcount--
	if p.pieceRefcount == 0 {
		c.maybeFreePiece(p)
	}
}

// markForEviction flags p for deferred removal. If p is already evictable
// it is removed immediately (§4.5).
func (c *Cache) markForEviction(p *pieceEntry, mode evictMode) {
	p.markedForEviction = true
	p.deferredEvictMode = mode
	if p.evictable() {
		c.freePiece(p, mode)
	}
}

// maybeFreePiece runs after a refcount transitions to zero, and after a
// piece falls out of write_lru with nothing dirty left. A piece explicitly
// marked for eviction is freed using the mode recorded by the
// markForEviction call that deferred it. Otherwise, a piece that needs a
// readback, or that ended up with no resident blocks at all, is erased
// outright rather than demoted to ghost: its buffers no longer reflect anything
// worth remembering a ghost hit's cheap re-admission could use. Either way,
// nothing happens until p is actually evictable; a still-pinned piece is
// picked up again the next time its refcount drains to zero.
func (c *Cache) maybeFreePiece(p *pieceEntry) {
	if !p.evictable() {
		return
	}
	switch {
	case p.markedForEviction:
		c.freePiece(p, p.deferredEvictMode)
	case p.needReadback, p.numBlocks == 0:
		c.freePiece(p, evictErase)
	}
}

// freePiece demotes p to ghost (if its current list has a ghost
// counterpart and mode allows it) or erases it outright.
func (c *Cache) freePiece(p *pieceEntry, mode evictMode) {
	if mode == evictAllowGhost && (p.listState == stateReadLRU1 || p.listState == stateReadLRU2) {
		c.moveToGhost(p)
		return
	}
	if ptr := c.bucketPtr(p.listState); ptr != nil {
		*ptr -= p.numBlocks
	}
	c.erasePiece(p)
}
