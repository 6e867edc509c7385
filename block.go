// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// maxBlockRefcount bounds a block's refcount, matching the 29-bit range the
// data model reserves for it.
const maxBlockRefcount = 1<<29 - 1

// RefReason names why a block is being pinned. It carries no behavior of
// its own: every reason is accounted identically by inc/dec, the reason is
// not recorded, and Metrics has no per-reason counters.
type RefReason uint8

const (
	RefReasonHashing RefReason = iota
	RefReasonReading
	RefReasonFlushing
	numRefReasons
)

// blockEntry is the per-block record described in §3.2. All fields are
// mutated only while the owning Cache's mutex is held; there is no internal
// synchronization, unlike the teacher's atomically-refcounted Value.
type blockEntry struct {
	buf []byte

	// refcount is the number of outstanding external holds on buf: hashing,
	// reading, or a pending flush. buf absent implies refcount == 0.
	refcount int32

	// dirty means buf must reach disk before it may be released.
	dirty bool
	// pending means an I/O operation is outstanding; buf contents are not
	// yet valid (read) or not yet durable (write).
	pending bool
	// cacheHit means the block has been read at least once since admission.
	// A second read promotes the owning piece to the frequent list.
	cacheHit bool
}

func (b *blockEntry) present() bool { return b.buf != nil }

func (b *blockEntry) pinned() bool { return b.refcount > 0 }

// reset clears a blockEntry back to its zero value, used when a buffer is
// released back to the pool.
func (b *blockEntry) reset() {
	b.buf = nil
	b.refcount = 0
	b.dirty = false
	b.pending = false
	b.cacheHit = false
}
