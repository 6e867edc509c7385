// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"time"

	"github.com/cockroachdb/errors"
)

// AcquireBlock pins a single resident block for reason and returns its
// buffer. It is the entry point a hash worker (or any collaborator outside
// the read path) uses to read block contents directly; the caller must
// call ReleaseBlock exactly once when done.
func (c *Cache) AcquireBlock(addr BlockAddr, reason RefReason) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: addr.Storage, piece: addr.Piece})
	if !ok {
		return nil, false
	}
	if int(addr.Block) >= len(p.blocks) {
		return nil, false
	}
	if !c.incBlockRefcount(p, int(addr.Block), reason) {
		return nil, false
	}
	return p.blocks[addr.Block].buf, true
}

// ReleaseBlock releases a pin taken by AcquireBlock or by a Read IOVec
// whose owner prefers address-based release.
func (c *Cache) ReleaseBlock(addr BlockAddr, reason RefReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: addr.Storage, piece: addr.Piece})
	if !ok {
		panic("blockcache: releaseBlock for unknown piece")
	}
	c.decBlockRefcount(p, int(addr.Block), reason)
}

// MarkForEviction flags the given piece for deferred removal once every
// pin on it drains, or removes it immediately if it is already evictable
// (§4.5).
func (c *Cache) MarkForEviction(storage StorageID, piece uint32, allowGhost bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: storage, piece: piece})
	if !ok {
		return errors.Newf("blockcache: markForEviction for unknown piece storage=%d piece=%d", storage, piece)
	}
	mode := evictErase
	if allowGhost {
		mode = evictAllowGhost
	}
	c.markForEviction(p, mode)
	return nil
}

// PieceInfo is a read-only snapshot of a piece's externally visible state,
// returned by AllPieces.
type PieceInfo struct {
	Storage   StorageID
	Piece     uint32
	NumBlocks int
	NumDirty  int
	Pinned    int
	State     string

	// Expire is the time at which this piece's dirty blocks became eligible
	// for an age-triggered flush (§4.4 add_dirty_block, §3.3), i.e.
	// now+MinCacheAge as of the most recent AddDirtyBlock call. It is the
	// zero Time for a piece that has never held a dirty block.
	Expire time.Time
}

// AllPieces returns a snapshot of every piece currently tracked by the
// cache, resident or ghost. The snapshot is a copy; it does not hold the
// cache's mutex after returning (§5 Shared-resource policy).
func (c *Cache) AllPieces() []PieceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []PieceInfo
	c.index.all(func(k pieceKey, p *pieceEntry) bool {
		out = append(out, PieceInfo{
			Storage:   k.storage,
			Piece:     k.piece,
			NumBlocks: p.numBlocks,
			NumDirty:  p.numDirty,
			Pinned:    p.pinnedBlocks,
			State:     p.listState.String(),
			Expire:    p.expire,
		})
		return true
	})
	return out
}

// ExpiredPieces returns every piece with dirty blocks whose expire time
// (§4.4 add_dirty_block) is at or before now, i.e. those an age-triggered
// flush should target. A caller drives an actual flush by handing the
// returned addresses to whatever writes dirty blocks back to disk; this
// cache only tracks eligibility.
func (c *Cache) ExpiredPieces(now time.Time) []PieceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []PieceInfo
	c.index.all(func(k pieceKey, p *pieceEntry) bool {
		if p.numDirty > 0 && !p.expire.IsZero() && !p.expire.After(now) {
			out = append(out, PieceInfo{
				Storage:   k.storage,
				Piece:     k.piece,
				NumBlocks: p.numBlocks,
				NumDirty:  p.numDirty,
				Pinned:    p.pinnedBlocks,
				State:     p.listState.String(),
				Expire:    p.expire,
			})
		}
		return true
	})
	return out
}

// TryEvictBlocks forces the eviction engine to attempt to free n blocks,
// returning the shortfall it could not meet. It is exposed so a caller
// can proactively reclaim capacity ahead of an admission that would
// otherwise exceed it.
func (c *Cache) TryEvictBlocks(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryEvictBlocks(n, nil)
}
