// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"time"

	"github.com/cockroachdb/errors"
)

// AddDirtyBlock implements add_dirty_block (§4.4): the cache takes
// ownership of job.Buf, installs it as a dirty block, and buffers the job
// for later completion notification once the block is flushed.
func (c *Cache) AddDirtyBlock(job WriteJob) (*pieceEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := pieceKey{storage: job.Addr.Storage, piece: job.Addr.Piece}
	p, existed := c.index.find(k)
	if !existed {
		p = c.allocatePiece(k, stateWriteLRU)
		p.priorReadList = stateReadLRU1
	} else {
		if p.listState.isGhost() {
			blocksInPiece := int(c.layout.BlocksInPiece(k.storage, k.piece))
			p.blocks = make([]blockEntry, blocksInPiece)
		}
		if p.listState != stateWriteLRU {
			p.priorReadList = p.listState
			if p.priorReadList == stateVolatileReadLRU {
				p.priorReadList = stateReadLRU1
			}
			// The blocks this piece already has move from its old bucket
			// into the write bucket along with the piece itself.
			c.moveBucketed(p, stateWriteLRU)
		} else {
			c.bumpMRU(p)
		}
	}

	block := int(job.Addr.Block)
	b := &p.blocks[block]
	if b.present() {
		if b.dirty {
			return nil, errors.Newf("blockcache: duplicate dirty write for storage=%d piece=%d block=%d",
				job.Addr.Storage, job.Addr.Piece, job.Addr.Block)
		}
		// Already counted in the write bucket above; only its contents
		// change.
		c.pool.Free(b.buf)
	} else {
		p.numBlocks++
		c.writeCacheSize++
	}
	b.buf = job.Buf
	b.dirty = true
	b.pending = false

	p.numDirty++
	p.jobs = append(p.jobs, job)
	p.expire = time.Now().Add(c.settings.MinCacheAge)

	return p, nil
}

// BeginFlush marks a piece's flush job as in flight (§3.3), taking the
// piece's coarse pin so it cannot be evicted while the flush executes. It
// returns ok=false without error if a flush is already outstanding for
// this piece; the caller must wait for that flush's BlocksFlushed/EndFlush
// before starting another, mirroring the single hash job in flight that
// BeginHash enforces.
func (c *Cache) BeginFlush(storage StorageID, piece uint32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: storage, piece: piece})
	if !ok {
		return false, errors.Newf("blockcache: beginFlush for unknown piece storage=%d piece=%d", storage, piece)
	}
	if p.outstandingFlush {
		return false, nil
	}
	p.outstandingFlush = true
	c.incPieceRefcount(p)
	return true, nil
}

// EndFlush releases the coarse pin taken by BeginFlush. Callers invoke it
// once after the flush's completions have been posted via BlocksFlushed,
// whether the flush succeeded or the piece was aborted instead.
func (c *Cache) EndFlush(storage StorageID, piece uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: storage, piece: piece})
	if !ok || !p.outstandingFlush {
		return
	}
	p.outstandingFlush = false
	c.decPieceRefcount(p)
}

// BlocksFlushed implements blocks_flushed (§4.4): the disk executor calls
// this once a batch of dirty blocks for a piece has been durably written.
// It demotes the flushed blocks to clean, posts the matching completion
// jobs in the order they were enqueued (Ordering guarantee O2), and moves
// or evicts the piece once it has no dirty blocks left.
func (c *Cache) BlocksFlushed(storage StorageID, piece uint32, flushed []uint16) (pieceFreed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := pieceKey{storage: storage, piece: piece}
	p, ok := c.index.find(k)
	if !ok {
		c.logger.Errorf("blockcache: blocksFlushed for unknown piece storage=%d piece=%d", storage, piece)
		return false, errors.Newf("blockcache: blocksFlushed for unknown piece storage=%d piece=%d", storage, piece)
	}

	isFlushed := make(map[uint16]bool, len(flushed))
	for _, idx := range flushed {
		isFlushed[idx] = true
		b := &p.blocks[idx]
		if !b.dirty || b.pending {
			panic("blockcache: blocksFlushed on a block that is not a pending-free dirty block")
		}
		b.dirty = false
		p.numDirty--

		// A block whose hash job has already consumed it, or one at or past
		// the hash job's current cursor, invalidates any hash computed for
		// this piece: the bytes the hasher saw (or will see) are no longer
		// what is now on disk, so the piece must be re-read before its hash
		// can be trusted again (§3.3 need_readback).
		blockByteStart := int64(idx) * int64(c.settings.BlockSize)
		if p.hashingDone || (p.hashing && blockByteStart >= p.hashOffset) {
			p.needReadback = true
		}
	}

	remaining := p.jobs[:0]
	for _, j := range p.jobs {
		if isFlushed[j.Addr.Block] {
			c.queue.Post(WriteCompletion{Addr: j.Addr, CompletionID: j.CompletionID})
		} else {
			remaining = append(remaining, j)
		}
	}
	p.jobs = remaining

	if p.numDirty != 0 {
		return false, nil
	}
	c.settleAfterDirtyChange(p)
	_, stillIndexed := c.index.find(k)
	return !stillIndexed, nil
}

// AbortDirty implements abort_dirty (§4.4): every dirty, unpinned block of
// the piece is freed and its dirty flag cleared. Blocks still pinned keep
// their dirty state; they are reclaimed once their last pin drops, via the
// same path eviction uses. Once the piece has no dirty blocks left it
// leaves the write list, exactly as a normal flush would.
func (c *Cache) AbortDirty(storage StorageID, piece uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := pieceKey{storage: storage, piece: piece}
	p, ok := c.index.find(k)
	if !ok {
		return
	}
	c.abortDirtyLocked(p)
	c.settleAfterDirtyChange(p)
}

// settleAfterDirtyChange moves p out of the write list once it has no dirty
// blocks remaining, back to the read list it occupied before the write that
// put it in write_lru (I4 requires it leave write_lru the moment
// num_dirty reaches zero, unconditionally). A piece left with nothing to
// hold onto, or one that needs a readback or was marked for eviction while
// still pinned, is picked up by maybeFreePiece immediately if it is already
// evictable, or deferred to the pin's final release otherwise. It is the
// shared tail of BlocksFlushed and AbortDirty.
func (c *Cache) settleAfterDirtyChange(p *pieceEntry) {
	if p.numDirty != 0 || p.listState != stateWriteLRU {
		return
	}
	dst := p.priorReadList
	if dst != stateReadLRU1 && dst != stateReadLRU2 {
		dst = stateReadLRU1
	}
	c.moveBucketed(p, dst)
	c.maybeFreePiece(p)
}

// abortDirtyLocked is AbortDirty's body, callable while c.mu is already
// held (Clear iterates many pieces under a single lock acquisition).
func (c *Cache) abortDirtyLocked(p *pieceEntry) {
	for i := range p.blocks {
		b := &p.blocks[i]
		if b.dirty && b.refcount == 0 {
			c.pool.Free(b.buf)
			b.reset()
			p.numBlocks--
			p.numDirty--
			if ptr := c.bucketPtr(p.listState); ptr != nil {
				*ptr--
			}
		}
	}
	p.jobs = nil
}
