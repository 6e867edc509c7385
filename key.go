// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// StorageID identifies a storage attached to the cache. It is an opaque
// handle chosen by the caller; the cache only uses it as part of a lookup
// key and to scope a Clear call.
type StorageID uint64

// pieceKey identifies a piece within a storage. It is the key of the cache
// index (§3.4 "pieces").
type pieceKey struct {
	storage StorageID
	piece   uint32
}

// fibonacciHash hashes a pieceKey for use with swiss.Map, following the
// hashing scheme the teacher's block map uses for its own key type.
func fibonacciHash(k *pieceKey, seed uintptr) uintptr {
	const m = 11400714819323198485
	h := uint64(seed)
	h ^= uint64(k.storage) * m
	h ^= uint64(k.piece) * m
	return uintptr(h)
}

// BlockAddr is the triple (storage, piece, block) addressing a single
// cached block.
type BlockAddr struct {
	Storage StorageID
	Piece   uint32
	Block   uint16
}
