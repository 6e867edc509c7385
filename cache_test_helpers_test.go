// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"sync"

	"github.com/flowmesh/blockcache/bufferpool"
)

// fixedLayout gives every piece the same number of blocks, which is all the
// tests in this package need.
type fixedLayout struct {
	blocksPerPiece uint16
}

func (l fixedLayout) BlocksInPiece(StorageID, uint32) uint16 {
	return l.blocksPerPiece
}

// recordingQueue collects every posted completion for assertions, in
// delivery order.
type recordingQueue struct {
	mu   sync.Mutex
	done []WriteCompletion
}

func (q *recordingQueue) Post(c WriteCompletion) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = append(q.done, c)
}

func (q *recordingQueue) completions() []WriteCompletion {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]WriteCompletion, len(q.done))
	copy(out, q.done)
	return out
}

func newTestCache(capacity int) (*Cache, *bufferpool.Pool, *recordingQueue) {
	pool := bufferpool.New(16, 0)
	queue := &recordingQueue{}
	settings := DefaultSettings()
	settings.CapacityBlocks = capacity
	settings.BlockSize = 16
	c, err := New(settings, fixedLayout{blocksPerPiece: 4}, pool, queue, nil)
	if err != nil {
		panic(err)
	}
	return c, pool, queue
}

func fillBuf(pool *bufferpool.Pool, b byte) []byte {
	buf, ok := pool.Allocate()
	if !ok {
		panic("test pool exhausted")
	}
	for i := range buf {
		buf[i] = b
	}
	return buf
}
