// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package blockcache implements a block cache for a peer-to-peer
// file-transfer engine. It sits between network peers and persistent
// storage: incoming blocks are write-coalesced into pieces before being
// flushed to disk, and outgoing blocks are cached using an Adaptive
// Replacement Cache (ARC) policy so that repeated reads of the same region
// avoid a disk round trip.
//
// The cache performs no I/O of its own. Callers drive it through Read,
// AddDirtyBlock, BlocksFlushed and InsertBlocks; the cache tracks piece and
// block state, enforces pinning, and makes eviction decisions.
package blockcache
