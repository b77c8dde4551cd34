// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package streamagg

import "sync"

// minChunkSize is the smallest chunk an arena will acquire; chunks
// after the first grow geometrically, the same rule of thumb the
// teacher's page allocator uses (fixed-size pages, grown by mapping
// more of them) generalized to variable-size growth since an arena
// here is not tied to a single fixed-size VMM region.
const minChunkSize = 64 * 1024

// chunk is one bump-allocated region of an arena. watermark is the
// maximum window key observed at the time the chunk was allocated
// (§3 "Arena"); FreeBefore reclaims whole chunks by watermark rather
// than tracking individual allocations.
type chunk struct {
	buf       []byte
	off       int
	watermark int64
}

func (c *chunk) free() int { return len(c.buf) - c.off }

func (c *chunk) alloc(size, align int) ([]byte, bool) {
	start := alignUp(c.off, align)
	if start+size > len(c.buf) {
		return nil, false
	}
	c.off = start + size
	return c.buf[start : start+size : start+size], true
}

func alignUp(off, align int) int {
	if align <= 1 {
		return off
	}
	if rem := off % align; rem != 0 {
		off += align - rem
	}
	return off
}

// Arena is a growable bump allocator organized as a chain of
// timestamp-tagged chunks (§3 "Arena", §4.A). It is owned
// exclusively by one Variants object, except during merge, where
// arena chunk lists are spliced onto the destination (§5).
type Arena struct {
	mu sync.Mutex

	chunks  []*chunk
	current int64 // the timestamp new chunks will be tagged with

	freeList []*chunk // reclaimed chunks, available for reuse

	totalAlloc int64

	// freeListHits/freeListMisses count acquireChunk outcomes since
	// the last FreeBefore report (§4.J "free-list hit rate").
	freeListHits   int
	freeListMisses int
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{} }

// SetTimestamp records the maximum window key observed so far; new
// chunks acquired after this call are tagged with it (§4.A step 2).
func (a *Arena) SetTimestamp(t int64) {
	a.mu.Lock()
	if t > a.current {
		a.current = t
	}
	a.mu.Unlock()
}

// Alloc returns size bytes aligned to align, acquiring a new chunk
// if the current one cannot satisfy the request.
func (a *Arena) Alloc(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, errf(KindLogicalError, "arena", "negative allocation size %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.chunks); n > 0 {
		if buf, ok := a.chunks[n-1].alloc(size, align); ok {
			a.totalAlloc += int64(len(buf))
			return buf, nil
		}
	}

	need := size + align
	if need < minChunkSize {
		need = minChunkSize
	}
	c := a.acquireChunk(need)
	c.watermark = a.current
	a.chunks = append(a.chunks, c)
	buf, ok := c.alloc(size, align)
	if !ok {
		return nil, errf(KindNotEnoughSpace, "arena", "chunk of size %d too small for alloc %d/%d", len(c.buf), size, align)
	}
	a.totalAlloc += int64(len(buf))
	return buf, nil
}

// acquireChunk draws a free-list chunk large enough for need,
// or allocates a new one, growing geometrically.
func (a *Arena) acquireChunk(need int) *chunk {
	for i, c := range a.freeList {
		if len(c.buf) >= need {
			a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
			c.off = 0
			a.freeListHits++
			return c
		}
	}
	a.freeListMisses++
	size := need
	if last := a.lastAcquiredSize(); last*2 > size {
		size = last * 2
	}
	return &chunk{buf: make([]byte, size)}
}

func (a *Arena) lastAcquiredSize() int {
	if len(a.chunks) == 0 {
		return 0
	}
	return len(a.chunks[len(a.chunks)-1].buf)
}

// Bytes reports the arena's total live allocation in bytes, used
// to decide two-level conversion and external spill thresholds.
func (a *Arena) Bytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalAlloc
}

// absorb splices src's chunk list onto a (§5 "arena ownership
// ... splicing the source's arena-refs list into the destination's").
// src is left with no chunks; callers must not use it afterward.
func (a *Arena) absorb(src *Arena) {
	if src == nil || src == a {
		return
	}
	src.mu.Lock()
	chunks := src.chunks
	src.chunks = nil
	alloc := src.totalAlloc
	src.totalAlloc = 0
	src.mu.Unlock()

	a.mu.Lock()
	a.chunks = append(a.chunks, chunks...)
	a.totalAlloc += alloc
	a.mu.Unlock()
}

// FreeBefore releases chunks whose watermark is <= t, in
// allocation order, returning stats about the reclamation (§4.A,
// §4.J). Freed chunks join the free list for reuse rather than
// being handed back to the runtime, mirroring the teacher's
// madvise-on-full-release design (see arena_linux.go).
func (a *Arena) FreeBefore(t int64) Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var st Stats
	kept := a.chunks[:0]
	for _, c := range a.chunks {
		if c.watermark <= t {
			st.ChunksFreed++
			st.BytesFreed += int64(len(c.buf))
			a.totalAlloc -= int64(c.off)
			releaseChunk(c.buf)
			a.freeList = append(a.freeList, c)
		} else {
			kept = append(kept, c)
		}
	}
	a.chunks = kept
	if len(a.chunks) > 0 {
		st.HeadChunkSize = int64(len(a.chunks[len(a.chunks)-1].buf))
	}
	for _, c := range a.freeList {
		st.BytesReused += int64(len(c.buf))
	}
	st.FreeListHits = a.freeListHits
	st.FreeListMisses = a.freeListMisses
	a.freeListHits = 0
	a.freeListMisses = 0
	return st
}
