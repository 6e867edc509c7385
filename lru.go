// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcache

// cacheState is the list a piece currently belongs to, per §3.4 and the
// state machine in §4.6.
type cacheState int8

const (
	stateNone cacheState = iota
	stateWriteLRU
	stateVolatileReadLRU
	stateReadLRU1
	stateReadLRU1Ghost
	stateReadLRU2
	stateReadLRU2Ghost
	numCacheStates
)

func (s cacheState) String() string {
	switch s {
	case stateNone:
		return "none"
	case stateWriteLRU:
		return "write_lru"
	case stateVolatileReadLRU:
		return "volatile_read_lru"
	case stateReadLRU1:
		return "read_lru1"
	case stateReadLRU1Ghost:
		return "read_lru1_ghost"
	case stateReadLRU2:
		return "read_lru2"
	case stateReadLRU2Ghost:
		return "read_lru2_ghost"
	}
	return "unknown"
}

func (s cacheState) isGhost() bool {
	return s == stateReadLRU1Ghost || s == stateReadLRU2Ghost
}

// lruLink is the intrusive doubly-linked-list hook embedded in pieceEntry,
// following the shape of the teacher's entry.blockLink: O(1) link/unlink
// without a separately allocated list node. Unlike the teacher's circular
// sentinel design, lists here are nil-terminated at head and tail, which
// keeps traversal and length bookkeeping straightforward for a cache with
// several distinct lists rather than one ring per shard.
type lruLink struct {
	next *pieceEntry
	prev *pieceEntry
}

// lruList is one of the cache's named lists: a resident or ghost ARC list,
// the write-dirty list, or the volatile read list.
type lruList struct {
	state cacheState
	head  *pieceEntry // LRU end
	tail  *pieceEntry // MRU end
	len   int
}

// pushMRU links p at the MRU (tail) end of the list and sets p.listState.
func (l *lruList) pushMRU(p *pieceEntry) {
	p.listState = l.state
	p.link.prev = l.tail
	p.link.next = nil
	if l.tail != nil {
		l.tail.link.next = p
	} else {
		l.head = p
	}
	l.tail = p
	l.len++
}

// remove unlinks p from the list. p must currently belong to this list.
func (l *lruList) remove(p *pieceEntry) {
	if p.link.prev != nil {
		p.link.prev.link.next = p.link.next
	} else {
		l.head = p.link.next
	}
	if p.link.next != nil {
		p.link.next.link.prev = p.link.prev
	} else {
		l.tail = p.link.prev
	}
	p.link.prev = nil
	p.link.next = nil
	l.len--
}

// bumpMRU moves p, already a member of this list, to the MRU end.
func (l *lruList) bumpMRU(p *pieceEntry) {
	if l.tail == p {
		return
	}
	l.remove(p)
	l.pushMRU(p)
}

// popLRU removes and returns the LRU-end piece, or nil if the list is empty.
func (l *lruList) popLRU() *pieceEntry {
	p := l.head
	if p != nil {
		l.remove(p)
	}
	return p
}
