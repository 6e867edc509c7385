// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import "github.com/cockroachdb/errors"

// ErrStorageCleared is posted to a WriteJob's completion queue when Clear
// tears down a storage while that job's dirty block is still outstanding,
// pinned or not.
var ErrStorageCleared = errors.New("blockcache: storage cleared with dirty block outstanding")

// addrError wraps err with the block address it concerns, so a caller
// logging a failed completion gets an actionable message (§7).
func addrError(addr BlockAddr, err error) error {
	return errors.WithDetailf(err, "storage=%d piece=%d block=%d", addr.Storage, addr.Piece, addr.Block)
}
