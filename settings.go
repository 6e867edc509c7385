// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Settings holds the tunables consumed on SetSettings (§6). It is validated
// before being applied; an invalid Settings leaves the cache untouched.
type Settings struct {
	// CapacityBlocks is the nominal number of resident blocks across the
	// write list and the two ARC read lists combined; the ghost and volatile
	// budgets are derived from it. The cache does not evict on its own when
	// resident blocks exceed it: blocks are reclaimed only when a caller
	// invokes TryEvictBlocks.
	CapacityBlocks int

	// GhostFraction sets each ghost list's target size as a fraction of
	// CapacityBlocks.
	GhostFraction float64

	// MaxVolatileFraction bounds the volatile read cache as a fraction of
	// CapacityBlocks.
	MaxVolatileFraction float64

	// MinCacheAge is the minimum time a dirty block is retained before it
	// becomes eligible for an age-triggered flush.
	MinCacheAge time.Duration

	// CoalesceWrites is carried with the settings but not read by the
	// cache: dirty blocks always accumulate in the write list until the
	// caller flushes them, whatever its value.
	CoalesceWrites bool

	// BlockSize is the fixed size, in bytes, of every block buffer.
	BlockSize int

	// HasherFactory constructs the Hasher used for incremental piece hash
	// jobs. Defaults to NewXxhashHasher if nil.
	HasherFactory HasherFactory
}

// DefaultSettings returns a Settings with conservative, valid defaults.
func DefaultSettings() Settings {
	return Settings{
		CapacityBlocks:      16384,
		GhostFraction:       0.5,
		MaxVolatileFraction: 0.1,
		MinCacheAge:         0,
		CoalesceWrites:      true,
		BlockSize:           16 * 1024,
		HasherFactory:       NewXxhashHasher,
	}
}

// Validate checks that s describes a usable cache configuration.
func (s Settings) Validate() error {
	if s.CapacityBlocks <= 0 {
		return errors.Newf("blockcache: capacity must be positive, got %d", s.CapacityBlocks)
	}
	if s.GhostFraction < 0 || s.GhostFraction >= 1 {
		return errors.Newf("blockcache: ghost fraction must be in [0, 1), got %f", s.GhostFraction)
	}
	if s.MaxVolatileFraction < 0 || s.MaxVolatileFraction >= 1 {
		return errors.Newf("blockcache: max volatile fraction must be in [0, 1), got %f", s.MaxVolatileFraction)
	}
	if s.MinCacheAge < 0 {
		return errors.Newf("blockcache: min cache age must be non-negative, got %s", s.MinCacheAge)
	}
	if s.BlockSize <= 0 {
		return errors.Newf("blockcache: block size must be positive, got %d", s.BlockSize)
	}
	return nil
}

func (s Settings) ghostSize() int {
	return int(float64(s.CapacityBlocks) * s.GhostFraction)
}

func (s Settings) maxVolatileBlocks() int {
	return int(float64(s.CapacityBlocks) * s.MaxVolatileFraction)
}

func (s Settings) hasherFactory() HasherFactory {
	if s.HasherFactory != nil {
		return s.HasherFactory
	}
	return NewXxhashHasher
}
