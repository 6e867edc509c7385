// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import "github.com/cockroachdb/errors"

// BeginHash starts an incremental hash job on a piece (§3.3 hash,
// hashing). It takes the piece's coarse pin so the piece cannot be
// evicted while the job is in flight, and returns the Hasher the caller
// should feed block contents into as it reads them. EndHash must be
// called exactly once to release the pin, whether or not the job
// completed successfully.
func (c *Cache) BeginHash(storage StorageID, piece uint32) (Hasher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: storage, piece: piece})
	if !ok {
		return nil, errors.Newf("blockcache: beginHash for unknown piece storage=%d piece=%d", storage, piece)
	}
	if p.hashing {
		return nil, errors.Newf("blockcache: hash job already in flight for storage=%d piece=%d", storage, piece)
	}
	p.hash = c.settings.hasherFactory()()
	p.hashOffset = 0
	p.hashing = true
	p.hashingDone = false
	c.incPieceRefcount(p)
	return p.hash, nil
}

// AdvanceHash records that n additional bytes, starting at the piece's
// current hash cursor, have been fed into the Hasher BeginHash returned.
func (c *Cache) AdvanceHash(storage StorageID, piece uint32, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: storage, piece: piece})
	if !ok || !p.hashing {
		return errors.Newf("blockcache: advanceHash with no hash job in flight for storage=%d piece=%d", storage, piece)
	}
	p.hashOffset += n
	return nil
}

// EndHash completes a hash job started by BeginHash, releasing its coarse
// pin on the piece. If the piece was marked for eviction and this was its
// last pin, it is freed synchronously.
func (c *Cache) EndHash(storage StorageID, piece uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.index.find(pieceKey{storage: storage, piece: piece})
	if !ok || !p.hashing {
		return
	}
	p.hashing = false
	p.hashingDone = true
	p.hash = nil
	p.hashOffset = 0
	c.decPieceRefcount(p)
}
