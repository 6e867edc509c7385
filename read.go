// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import "github.com/cockroachdb/errors"

// ReadOutcome tells the caller of Read what it must do next.
type ReadOutcome int8

const (
	// ReadHit means res.IOVecs is populated and pinned; the caller owns
	// releasing each IOVec.
	ReadHit ReadOutcome = iota
	// ReadMiss means the caller must fetch the requested range from disk
	// and deliver it via InsertBlocks. The cache has recorded that a read
	// is now outstanding for this piece so concurrent requests coalesce
	// onto this one.
	ReadMiss
	// ReadCoalesced means an equivalent read was already outstanding; the
	// caller's request was queued and its result will arrive on the
	// channel it supplied to Read.
	ReadCoalesced
)

// Read implements try_read (§4.3). done is used only if the request
// coalesces behind an outstanding read (ReadCoalesced); callers that never
// expect to coalesce may pass nil, in which case a request that does
// coalesce is dropped, unanswered, when the outstanding read completes.
func (c *Cache) Read(req ReadRequest, done chan<- ReadResult) (ReadOutcome, ReadResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := pieceKey{storage: req.Storage, piece: req.Piece}
	p, ok := c.index.find(k)
	if ok && p.listState.isGhost() {
		c.admitGhostAsPending(p)
	} else if !ok {
		p = c.allocatePiece(k, stateReadLRU1)
		c.admitMiss(p)
	}

	if res, hit := c.copyFromPiece(p, req); hit {
		return ReadHit, res
	}
	return c.missOrCoalesce(p, req, done)
}

// admitGhostAsPending re-admits a ghost piece into read_lru2 and gives it a
// fresh, empty blocks array so a subsequent disk read can populate it.
func (c *Cache) admitGhostAsPending(p *pieceEntry) {
	c.ghostHit(p)
	blocksInPiece := int(c.layout.BlocksInPiece(p.key.storage, p.key.piece))
	p.blocks = make([]blockEntry, blocksInPiece)
}

func (c *Cache) missOrCoalesce(p *pieceEntry, req ReadRequest, done chan<- ReadResult) (ReadOutcome, ReadResult) {
	if p.outstandingRead {
		p.readJobs = append(p.readJobs, readJob{req: req, result: done})
		return ReadCoalesced, ReadResult{}
	}
	p.outstandingRead = true
	return ReadMiss, ReadResult{Miss: true}
}

// copyFromPiece pins every block in [req.StartBlock, req.EndBlock) and
// returns iovecs referencing them. It returns hit=false, rolling back any
// pins already taken, as soon as it finds a block with no buffer or a
// pending I/O.
func (c *Cache) copyFromPiece(p *pieceEntry, req ReadRequest) (ReadResult, bool) {
	iovecs := make([]IOVec, 0, int(req.EndBlock-req.StartBlock))
	for block := int(req.StartBlock); block < int(req.EndBlock); block++ {
		b := &p.blocks[block]
		if !b.present() || b.pending {
			c.rollbackIOVecs(p, iovecs)
			return ReadResult{}, false
		}
		c.incBlockRefcount(p, block, RefReasonReading)
		c.recordCacheHit(p, block, req.Volatile)
		addr := BlockAddr{Storage: p.key.storage, Piece: p.key.piece, Block: uint16(block)}
		iovecs = append(iovecs, c.newIOVec(p, block, addr, b.buf))
	}
	c.sendBufferBlocks += len(iovecs)
	return ReadResult{IOVecs: iovecs}, true
}

func (c *Cache) newIOVec(p *pieceEntry, block int, addr BlockAddr, buf []byte) IOVec {
	released := false
	return IOVec{
		Addr: addr,
		Buf:  buf,
		release: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if released {
				panic("blockcache: IOVec released twice")
			}
			released = true
			c.sendBufferBlocks--
			c.decBlockRefcount(p, block, RefReasonReading)
		},
	}
}

func (c *Cache) rollbackIOVecs(p *pieceEntry, iovecs []IOVec) {
	for _, v := range iovecs {
		c.decBlockRefcount(p, int(v.Addr.Block), RefReasonReading)
	}
}

// InsertBlocks implements insert_blocks: the disk executor calls this once
// a read it was driving completes, handing over ownership of bufs. It
// clears outstanding_read and drains any coalesced read_jobs in FIFO order
// (§4.3, Ordering guarantee O1).
func (c *Cache) InsertBlocks(storage StorageID, piece uint32, startBlock uint16, bufs [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := pieceKey{storage: storage, piece: piece}
	p, ok := c.index.find(k)
	if !ok {
		c.logger.Errorf("blockcache: insertBlocks for unknown piece storage=%d piece=%d", storage, piece)
		return errors.Newf("blockcache: insertBlocks for unknown piece storage=%d piece=%d", storage, piece)
	}
	for i, buf := range bufs {
		block := int(startBlock) + i
		b := &p.blocks[block]
		if b.present() {
			c.pool.Free(b.buf)
		} else {
			p.numBlocks++
			c.readCacheSize++
		}
		b.buf = buf
		b.pending = false
		b.dirty = false
	}

	p.outstandingRead = false
	jobs := p.readJobs
	p.readJobs = nil
	for _, j := range jobs {
		if j.result == nil {
			// Nobody would receive the IOVecs, so take no pins for them.
			continue
		}
		res, hit := c.copyFromPiece(p, j.req)
		if !hit {
			res = ReadResult{Miss: true}
		}
		j.result <- res
	}
	return nil
}
