// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// BufferAllocator is the Buffer Allocator external interface of §6: the
// cache never allocates block-sized memory itself, it asks a collaborator
// for buffers and returns them when done. bufferpool.Pool is the concrete
// implementation wired in by default; callers may substitute their own.
type BufferAllocator interface {
	Allocate() (buf []byte, ok bool)
	Free(buf []byte)
	InUse() int
}

// StorageLayout is the Storage Interface collaborator of §6. The cache
// queries it once, at piece admission, to learn how many blocks a piece
// spans; it never calls back into storage for any other reason.
type StorageLayout interface {
	BlocksInPiece(storage StorageID, piece uint32) uint16
}

// IOVec references a single cached block buffer returned by Read. The
// caller must call Release exactly once when done with the buffer; holding
// an IOVec keeps the underlying block pinned.
type IOVec struct {
	Addr BlockAddr
	Buf  []byte

	release func()
}

// Release drops the pin this IOVec holds on its block. It is safe to call
// at most once; a second call is a caller bug.
func (v *IOVec) Release() {
	if v.release != nil {
		v.release()
		v.release = nil
	}
}

// ReadRequest describes a caller's interest in a contiguous block range of
// a piece, used both for a direct Read call and for a queued coalesced
// read (§4.3).
type ReadRequest struct {
	Storage      StorageID
	Piece        uint32
	StartBlock   uint16
	EndBlock     uint16 // exclusive
	Volatile     bool
	CompletionID uint64
}

// ReadResult is delivered to a queued ReadRequest once the read it was
// coalesced behind completes.
type ReadResult struct {
	IOVecs []IOVec
	Miss   bool
	Err    error
}

// WriteJob represents one dirty block handed to the cache by AddDirtyBlock.
// Buf is taken over by the cache and the caller must not touch it again;
// the WriteCompletion posted for the job does not hand it back.
type WriteJob struct {
	Addr         BlockAddr
	Buf          []byte
	CompletionID uint64
}

// WriteCompletion is posted to a CompletionQueue once the dirty block it
// describes has been durably flushed, or failed.
type WriteCompletion struct {
	Addr         BlockAddr
	CompletionID uint64
	Err          error
}

// CompletionQueue receives posted write completions, including failures
// from Clear tearing down a storage with dirty blocks still outstanding.
type CompletionQueue interface {
	Post(WriteCompletion)
}
