// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// Clear tears down every piece belonging to storage. Every queued write job
// of such a piece is posted to the completion queue with ErrStorageCleared,
// whether or not its block is still pinned. Dirty blocks with no
// outstanding pin are reclaimed immediately; dirty blocks still pinned are
// freed once their last pin drops, following the same path eviction uses
// (§5 Cancellation).
func (c *Cache) Clear(storage StorageID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pieces []*pieceEntry
	c.index.all(func(k pieceKey, p *pieceEntry) bool {
		if k.storage == storage {
			pieces = append(pieces, p)
		}
		return true
	})

	for _, p := range pieces {
		if len(p.jobs) > 0 {
			c.logger.Errorf("blockcache: storage %d cleared with %d dirty block(s) outstanding on piece %d",
				storage, len(p.jobs), p.key.piece)
		}
		for _, j := range p.jobs {
			c.queue.Post(WriteCompletion{
				Addr:         j.Addr,
				CompletionID: j.CompletionID,
				Err:          addrError(j.Addr, ErrStorageCleared),
			})
		}
		c.abortDirtyLocked(p)
		c.markForEviction(p, evictErase)
	}
}
