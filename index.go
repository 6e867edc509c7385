// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import "github.com/cockroachdb/swiss"

var pieceIndexOptions = []swiss.Option[pieceKey, *pieceEntry]{
	swiss.WithHash[pieceKey, *pieceEntry](fibonacciHash),
}

// pieceIndex is the cache-wide lookup from (storage, piece) to pieceEntry
// (§3.4 "pieces"), adapted from the teacher's blockMap: same swiss.Map
// backing and hash scheme, without the manual-memory allocator since piece
// entries here are ordinary Go-GC'd objects.
type pieceIndex struct {
	m swiss.Map[pieceKey, *pieceEntry]
}

func newPieceIndex(initialCapacity int) *pieceIndex {
	idx := &pieceIndex{}
	idx.m.Init(initialCapacity, pieceIndexOptions...)
	return idx
}

func (idx *pieceIndex) find(k pieceKey) (*pieceEntry, bool) {
	return idx.m.Get(k)
}

func (idx *pieceIndex) insert(p *pieceEntry) {
	idx.m.Put(p.key, p)
}

func (idx *pieceIndex) remove(k pieceKey) {
	idx.m.Delete(k)
}

// all visits every indexed piece. f must not mutate the index directly;
// callers that need to remove pieces collect them first and act after
// iteration completes.
func (idx *pieceIndex) all(f func(k pieceKey, p *pieceEntry) bool) {
	idx.m.All(f)
}
