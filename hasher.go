// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import "github.com/cespare/xxhash/v2"

// Hasher accumulates a streaming checksum over a piece's block contents.
// The cache never calls Write itself; it only creates a Hasher when a hash
// job begins (§3.3 "hash"), hands it to the caller-driven hash worker via
// the piece's pinned buffers, and clears it when the job completes or the
// piece is evicted. How pieces are actually verified is outside the
// cache's concern.
type Hasher interface {
	Write(p []byte) (int, error)
	Sum64() uint64
	Reset()
}

// HasherFactory constructs a fresh Hasher for a new hash job.
type HasherFactory func() Hasher

// NewXxhashHasher is the default HasherFactory, backed by xxhash. It exists
// so that the hash field described in the data model is exercised by
// running code; real piece verification is a separate concern and may
// supply its own HasherFactory.
func NewXxhashHasher() Hasher {
	return xxhash.New()
}
