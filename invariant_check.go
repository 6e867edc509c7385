// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	stderrors "errors"

	"github.com/cockroachdb/errors"
)

// CheckInvariants walks every resident and ghost piece and checks I1-I8
// from §8 in one pass; I9 is not checked here, erasePiece panics on a
// piece that is not evictable instead. It is called by tests; no mutating
// operation calls it, under any build tag.
func (c *Cache) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	check := func(cond bool, format string, args ...interface{}) {
		if !cond {
			errs = append(errs, errors.Newf(format, args...))
		}
	}

	totalPinned := 0
	totalResident := 0
	var pieceCount int

	c.index.all(func(k pieceKey, p *pieceEntry) bool {
		pieceCount++

		if p.listState.isGhost() {
			check(len(p.blocks) == 0, "I5: ghost piece %v has a non-empty blocks array", k)
			check(p.numBlocks == 0, "I5: ghost piece %v has numBlocks=%d", k, p.numBlocks)
			check(p.numDirty == 0, "I5: ghost piece %v has numDirty=%d", k, p.numDirty)
			return true
		}

		numBlocks, numDirty, pinned := 0, 0, 0
		var refcount int32
		for i := range p.blocks {
			b := &p.blocks[i]
			if b.present() {
				numBlocks++
			}
			if b.dirty {
				numDirty++
				check(b.present(), "I2: dirty block %v/%d has no buffer", k, i)
			}
			if b.pinned() {
				pinned++
			}
			refcount += b.refcount
		}
		check(numBlocks == p.numBlocks, "I1: piece %v numBlocks=%d, counted %d", k, p.numBlocks, numBlocks)
		check(numDirty == p.numDirty, "I2: piece %v numDirty=%d, counted %d", k, p.numDirty, numDirty)
		check(pinned == p.pinnedBlocks, "I3: piece %v pinnedBlocks=%d, counted %d", k, p.pinnedBlocks, pinned)
		check(refcount == p.refcount, "I3: piece %v refcount=%d, counted %d", k, p.refcount, refcount)
		check(p.listState != stateWriteLRU || p.numDirty > 0, "I4: piece %v in write_lru with numDirty=0", k)
		check(p.listState == stateWriteLRU || p.numDirty == 0, "I4: piece %v outside write_lru with numDirty=%d", k, p.numDirty)

		totalPinned += pinned
		totalResident += numBlocks
		return true
	})

	check(totalPinned == c.pinnedBlocks, "I7: pinnedBlocks=%d, counted %d", c.pinnedBlocks, totalPinned)

	listLen := 0
	for s := cacheState(0); s < numCacheStates; s++ {
		listLen += c.lists[s].len
	}
	check(listLen == pieceCount, "I8: list lengths sum to %d, index has %d pieces", listLen, pieceCount)

	check(totalResident == c.readCacheSize+c.writeCacheSize+c.volatileSize,
		"I6: counted %d resident blocks, but read+write+volatile=%d", totalResident, c.readCacheSize+c.writeCacheSize+c.volatileSize)

	if len(errs) == 0 {
		return nil
	}
	return stderrors.Join(errs...)
}
