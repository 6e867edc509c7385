// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentReadersAndWriters exercises the single critical section with
// many goroutines hammering the same Cache, following the fan-out-then-join
// shape the teacher's own replay package uses for driving concurrent work.
func TestConcurrentReadersAndWriters(t *testing.T) {
	c, pool, _ := newTestCache(4096)

	const pieces = 16
	const workers = 32

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 64; i++ {
				piece := uint32((w + i) % pieces)
				req := ReadRequest{Storage: 1, Piece: piece, StartBlock: 0, EndBlock: 1}
				outcome, res := c.Read(req, nil)
				switch outcome {
				case ReadHit:
					for _, v := range res.IOVecs {
						v.Release()
					}
				case ReadMiss:
					buf, ok := pool.Allocate()
					if !ok {
						continue
					}
					if err := c.InsertBlocks(1, piece, 0, [][]byte{buf}); err != nil {
						return err
					}
				case ReadCoalesced:
				}

				if i%8 == 0 {
					buf, ok := pool.Allocate()
					if !ok {
						continue
					}
					addr := BlockAddr{Storage: 2, Piece: piece, Block: 0}
					if _, err := c.AddDirtyBlock(WriteJob{Addr: addr, Buf: buf, CompletionID: uint64(i)}); err != nil {
						continue // duplicate-dirty races with a concurrent flush are expected here
					}
					if _, err := c.BlocksFlushed(2, piece, []uint16{0}); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, c.CheckInvariants())
}
