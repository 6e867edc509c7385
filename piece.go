// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"fmt"
	"os"
	"time"

	"github.com/flowmesh/blockcache/internal/invariants"
)

// maxPieceRefcount bounds piece_refcount to the 7-bit range §9 calls for.
const maxPieceRefcount = 127

// evictMode controls what maybeFreePiece does once a piece becomes fully
// unpinned while marked for eviction.
type evictMode int8

const (
	evictAllowGhost evictMode = iota
	evictErase
)

// readJob is a read request queued behind a piece's outstanding read, per
// §4.3's coalescing rule. It is resumed in FIFO order once insertBlocks
// clears outstandingRead.
type readJob struct {
	req    ReadRequest
	result chan<- ReadResult
}

// pieceEntry is the per-piece record of §3.3. It owns blocks, its LRU
// membership, the coarse piece-level pin, and the bookkeeping needed to
// coalesce concurrent reads and flushes.
type pieceEntry struct {
	key pieceKey

	blocks       []blockEntry
	numBlocks    int
	numDirty     int
	pinnedBlocks int
	refcount     int32 // sum of blocks[i].refcount

	pieceRefcount int8 // coarse pin: flush or hash job in flight

	hash        Hasher
	hashOffset  int64
	hashing     bool
	hashingDone bool

	outstandingRead bool
	readJobs        []readJob

	outstandingFlush bool
	jobs             []WriteJob

	needReadback      bool
	markedForEviction bool
	deferredEvictMode evictMode

	expire time.Time

	listState cacheState
	link      lruLink

	// priorReadList records which ARC read list a piece belonged to (or
	// would have belonged to, for a brand new piece) before a dirty write
	// moved it into the write list, so blocksFlushed knows where to return
	// it once it goes fully clean again.
	priorReadList cacheState
}

func newPieceEntry(k pieceKey, blocksInPiece int, resident bool) *pieceEntry {
	p := &pieceEntry{key: k}
	if resident {
		p.blocks = make([]blockEntry, blocksInPiece)
	}
	// Note: this is a no-op unless the invariants build tag is specified.
	invariants.SetFinalizer(p, checkPieceEntryFinalizer)
	return p
}

// checkPieceEntryFinalizer catches pieces that are garbage collected while
// still holding a pool buffer, which would otherwise manifest as a silent
// buffer leak. It mirrors the leak check the teacher's entry and block-map
// types run under the same build tag.
func checkPieceEntryFinalizer(obj interface{}) {
	p := obj.(*pieceEntry)
	for i := range p.blocks {
		if p.blocks[i].present() {
			fmt.Fprintf(os.Stderr, "%p: piece %+v garbage collected with block %d still holding a buffer\n", p, p.key, i)
			os.Exit(1)
		}
	}
}

// evictable implements the predicate of §3.3 (P3): a piece may only be
// erased or demoted to ghost while nothing still references it.
func (p *pieceEntry) evictable() bool {
	return p.refcount == 0 &&
		p.pieceRefcount == 0 &&
		!p.hashing &&
		len(p.readJobs) == 0 &&
		!p.outstandingRead &&
		(!hashPresent(p) || p.hashOffset == 0)
}

func hashPresent(p *pieceEntry) bool { return p.hash != nil }

// freeBuffers releases every block buffer back to pool and clears the
// piece's resident bookkeeping, leaving it suitable for ghost or erased
// state. It is an invariant violation to call this while any block is
// pinned; callers must check evictable() first.
func (p *pieceEntry) freeBuffers(pool BufferAllocator) {
	for i := range p.blocks {
		b := &p.blocks[i]
		if b.present() {
			pool.Free(b.buf)
		}
		b.reset()
	}
	p.blocks = nil
	p.numBlocks = 0
	p.numDirty = 0
	p.pinnedBlocks = 0
}
