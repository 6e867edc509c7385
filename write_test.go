// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddDirtyBlockCoalescesIntoWriteList(t *testing.T) {
	c, pool, queue := newTestCache(64)

	p1, err := c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 0}, Buf: fillBuf(pool, 'a'), CompletionID: 1})
	require.NoError(t, err)
	require.Equal(t, stateWriteLRU, p1.listState)

	p2, err := c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 1}, Buf: fillBuf(pool, 'b'), CompletionID: 2})
	require.NoError(t, err)
	require.Same(t, p1, p2)
	require.Equal(t, 2, p2.numDirty)

	require.NoError(t, c.CheckInvariants())
	require.Empty(t, queue.completions())
}

func TestAddDirtyBlockRejectsDuplicateDirtyWrite(t *testing.T) {
	c, pool, _ := newTestCache(64)
	addr := BlockAddr{Storage: 1, Piece: 1, Block: 0}
	_, err := c.AddDirtyBlock(WriteJob{Addr: addr, Buf: fillBuf(pool, 'a'), CompletionID: 1})
	require.NoError(t, err)
	_, err = c.AddDirtyBlock(WriteJob{Addr: addr, Buf: fillBuf(pool, 'b'), CompletionID: 2})
	require.Error(t, err)
}

func TestBlocksFlushedDemotesToReadListWhenFullyClean(t *testing.T) {
	c, pool, queue := newTestCache(64)

	_, err := c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 0}, Buf: fillBuf(pool, 'a'), CompletionID: 1})
	require.NoError(t, err)
	_, err = c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 1}, Buf: fillBuf(pool, 'b'), CompletionID: 2})
	require.NoError(t, err)

	freed, err := c.BlocksFlushed(1, 1, []uint16{0, 1})
	require.NoError(t, err)
	require.False(t, freed)

	require.Equal(t, stateReadLRU1, pieceState(t, c, 1, 1))
	completions := queue.completions()
	require.Len(t, completions, 2)
	require.Equal(t, uint64(1), completions[0].CompletionID)
	require.Equal(t, uint64(2), completions[1].CompletionID)
	require.NoError(t, c.CheckInvariants())
}

func TestBlocksFlushedPostsInEnqueueOrder(t *testing.T) {
	c, pool, queue := newTestCache(64)
	addr := func(b uint16) BlockAddr { return BlockAddr{Storage: 1, Piece: 1, Block: b} }

	for i, id := range []uint64{5, 3, 9} {
		_, err := c.AddDirtyBlock(WriteJob{Addr: addr(uint16(i)), Buf: fillBuf(pool, byte(i)), CompletionID: id})
		require.NoError(t, err)
	}
	_, err := c.BlocksFlushed(1, 1, []uint16{0, 1, 2})
	require.NoError(t, err)

	var ids []uint64
	for _, c := range queue.completions() {
		ids = append(ids, c.CompletionID)
	}
	require.Equal(t, []uint64{5, 3, 9}, ids)
}

func TestAbortDirtyFreesUnpinnedDirtyBlocks(t *testing.T) {
	c, pool, _ := newTestCache(64)
	_, err := c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 0}, Buf: fillBuf(pool, 'a'), CompletionID: 1})
	require.NoError(t, err)

	c.AbortDirty(1, 1)

	c.mu.Lock()
	_, ok := c.index.find(pieceKey{storage: 1, piece: 1})
	c.mu.Unlock()
	require.False(t, ok, "piece with no remaining blocks should be erased")
	require.NoError(t, c.CheckInvariants())
}

func TestAddDirtyBlockSetsExpireFromMinCacheAge(t *testing.T) {
	c, pool, _ := newTestCache(64)
	c.settings.MinCacheAge = time.Hour

	before := time.Now()
	_, err := c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 0}, Buf: fillBuf(pool, 'a'), CompletionID: 1})
	require.NoError(t, err)
	after := time.Now()

	infos := c.AllPieces()
	require.Len(t, infos, 1)
	require.False(t, infos[0].Expire.Before(before.Add(time.Hour)))
	require.False(t, infos[0].Expire.After(after.Add(time.Hour)))

	require.Empty(t, c.ExpiredPieces(time.Now()), "not yet expired")
	require.Len(t, c.ExpiredPieces(time.Now().Add(2*time.Hour)), 1, "expired once min_cache_age has elapsed")
}

func TestBeginFlushRejectsConcurrentFlush(t *testing.T) {
	c, pool, _ := newTestCache(64)
	req := ReadRequest{Storage: 1, Piece: 1, StartBlock: 0, EndBlock: 1}
	c.Read(req, nil)
	require.NoError(t, c.InsertBlocks(1, 1, 0, [][]byte{fillBuf(pool, 1)}))

	ok, err := c.BeginFlush(1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.BeginFlush(1, 1)
	require.NoError(t, err)
	require.False(t, ok, "a second flush cannot start while one is outstanding")

	c.EndFlush(1, 1)
	ok, err = c.BeginFlush(1, 1)
	require.NoError(t, err)
	require.True(t, ok, "a new flush can start once the prior one ended")
	c.EndFlush(1, 1)
}

func TestBeginFlushUnknownPiece(t *testing.T) {
	c, _, _ := newTestCache(64)
	_, err := c.BeginFlush(9, 9)
	require.Error(t, err)
}

func TestBeginFlushPinsPieceUntilEndFlush(t *testing.T) {
	c, pool, _ := newTestCache(64)
	req := ReadRequest{Storage: 1, Piece: 1, StartBlock: 0, EndBlock: 1}
	c.Read(req, nil)
	require.NoError(t, c.InsertBlocks(1, 1, 0, [][]byte{fillBuf(pool, 1)}))

	ok, err := c.BeginFlush(1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.MarkForEviction(1, 1, true))
	require.Equal(t, stateReadLRU1, pieceState(t, c, 1, 1), "still present while a flush is in flight")

	c.EndFlush(1, 1)
	require.Equal(t, stateReadLRU1Ghost, pieceState(t, c, 1, 1), "demoted to ghost once the flush released its pin")
}

// TestBlocksFlushedPastHashCursorDefersReadbackEviction exercises the full
// need_readback lifecycle: a block flushed at or past a piece's hash
// cursor marks it for readback (§3.3); a piece that goes fully clean while
// need_readback is set but still pinned is relocated out of write_lru
// immediately (never stranded there with num_dirty == 0), and only erased
// once its last pin drops — never demoted to ghost, since a ghost entry
// would misrepresent content nothing has actually re-verified.
func TestBlocksFlushedPastHashCursorDefersReadbackEviction(t *testing.T) {
	c, pool, _ := newTestCache(64)
	req := ReadRequest{Storage: 1, Piece: 1, StartBlock: 0, EndBlock: 4}
	c.Read(req, nil)
	require.NoError(t, c.InsertBlocks(1, 1, 0, [][]byte{
		fillBuf(pool, 1), fillBuf(pool, 2), fillBuf(pool, 3), fillBuf(pool, 4),
	}))

	h, err := c.BeginHash(1, 1)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.NoError(t, c.AdvanceHash(1, 1, 32)) // consumed blocks 0 and 1 (16 bytes each)

	// Block 2 starts at byte 32, at the hash cursor: dirtying and flushing
	// it invalidates the hash the moment it lands.
	_, err = c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 1, Piece: 1, Block: 2}, Buf: fillBuf(pool, 'x'), CompletionID: 1})
	require.NoError(t, err)
	require.Equal(t, stateWriteLRU, pieceState(t, c, 1, 1))

	freed, err := c.BlocksFlushed(1, 1, []uint16{2})
	require.NoError(t, err)
	require.False(t, freed, "still pinned by the in-flight hash job")
	require.Equal(t, stateReadLRU1, pieceState(t, c, 1, 1), "relocated out of write_lru rather than stranded")
	require.NoError(t, c.CheckInvariants())

	c.EndHash(1, 1)

	c.mu.Lock()
	_, ok := c.index.find(pieceKey{storage: 1, piece: 1})
	c.mu.Unlock()
	require.False(t, ok, "erased once the hash job's pin dropped, not demoted to ghost")
}

func TestClearPostsErrStorageClearedForOutstandingDirtyBlocks(t *testing.T) {
	c, pool, queue := newTestCache(64)
	_, err := c.AddDirtyBlock(WriteJob{Addr: BlockAddr{Storage: 7, Piece: 1, Block: 0}, Buf: fillBuf(pool, 'a'), CompletionID: 42})
	require.NoError(t, err)

	c.Clear(7)

	completions := queue.completions()
	require.Len(t, completions, 1)
	require.Equal(t, uint64(42), completions[0].CompletionID)
	require.ErrorIs(t, completions[0].Err, ErrStorageCleared)
	require.NoError(t, c.CheckInvariants())
}
