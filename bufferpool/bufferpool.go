// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bufferpool provides a fixed-size byte-slice pool for a block
// cache's buffer allocator. It is adapted from the size-classed allocCache
// used internally by a page cache, specialized to a single block size:
// there is no size-class search, and eviction of cached buffers is
// randomized rather than strictly LRU to avoid repeatedly shifting a slice.
package bufferpool

import (
	"sync"

	"golang.org/x/exp/rand"
)

// defaultCountLimit bounds how many freed buffers a Pool keeps ready for
// reuse before it starts letting the Go GC reclaim them instead.
const defaultCountLimit = 64

// Pool is a mutex-guarded allocator of fixed-size buffers that keeps freed
// buffers on a capped free list for reuse. It satisfies
// the cache's BufferAllocator interface: Allocate never panics on
// exhaustion, it reports failure via its second return value.
type Pool struct {
	blockSize  int
	countLimit int
	maxBuffers int // 0 means unbounded

	mu      sync.Mutex
	rnd     rand.PCGSource
	free    [][]byte
	inUse   int
	checked int // total buffers ever handed out
}

// New returns a Pool handing out buffers of exactly blockSize bytes.
// maxBuffers caps the number of buffers simultaneously in use; 0 means no
// cap (the caller relies on higher-level cache capacity to bound demand).
func New(blockSize, maxBuffers int) *Pool {
	p := &Pool{
		blockSize:  blockSize,
		countLimit: defaultCountLimit,
		maxBuffers: maxBuffers,
	}
	p.rnd.Seed(0xb10c6ca5e)
	return p
}

// Allocate returns a zeroed buffer of the pool's block size, or ok=false if
// the pool is at its maxBuffers cap.
func (p *Pool) Allocate() (buf []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxBuffers > 0 && p.inUse >= p.maxBuffers {
		return nil, false
	}

	n := len(p.free)
	if n == 0 {
		buf = make([]byte, p.blockSize)
	} else {
		buf = p.free[n-1]
		p.free = p.free[:n-1]
		for i := range buf {
			buf[i] = 0
		}
	}
	p.inUse++
	p.checked++
	return buf, true
}

// Free returns buf to the pool. buf must have been obtained from Allocate
// and must not be referenced by the caller afterward.
func (p *Pool) Free(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse--
	if cap(buf) != p.blockSize {
		// Not one of ours; drop it rather than corrupt the free list.
		return
	}
	for len(p.free) >= p.countLimit {
		// Evict a random existing entry rather than always the oldest, so
		// no single slot is pinned into the free list forever.
		j := (uint32(len(p.free)) * (uint32(p.rnd.Uint64()) & (1<<16 - 1))) >> 16
		last := len(p.free) - 1
		p.free[j] = p.free[last]
		p.free = p.free[:last]
	}
	p.free = append(p.free, buf)
}

// InUse reports the number of buffers currently checked out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
