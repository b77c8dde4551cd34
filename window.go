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

// EvictBefore destroys every group whose window key is <= watermark
// and reclaims the arena chunks backing them, honoring
// Params.StreamingWindowCount as a retention floor: the newest
// StreamingWindowCount windows are never evicted even if they fall
// at or below watermark (§4.J, §7 "the floor exists so a
// late-arriving watermark can't evict a window still being
// amended").
//
// EvictBefore only applies to window group-bys; calling it on a
// non-window aggregator is a no-op.
func (a *Aggregator) EvictBefore(watermark int64) Stats {
	if a.v == nil || !a.params.GroupBy.IsWindow() {
		return Stats{}
	}
	tb, ok := a.v.T.(*timeBucketTable)
	if !ok {
		// Not yet converted to time-bucket two-level: there is at
		// most one window's worth of state resident, nothing to
		// evict independently yet.
		return Stats{}
	}

	wins := tb.windowsBefore(watermark)
	if keep := a.params.StreamingWindowCount; keep > 0 {
		total := tb.bucketCount()
		evictable := total - keep
		if evictable < 0 {
			evictable = 0
		}
		if len(wins) > evictable {
			wins = wins[:evictable]
		}
	}

	var st Stats
	for _, w := range wins {
		sub := tb.dropWindow(w)
		if sub == nil {
			continue
		}
		n := 0
		sub.forEach(func(e *entry) {
			destroyPlace(e.Place, a.layout, a.funcs, false)
			e.Place = nil
			n++
		})
		st.Removed += n
	}
	arenaStats := a.v.Arena.FreeBefore(watermark)
	st.ChunksFreed = arenaStats.ChunksFreed
	st.BytesFreed = arenaStats.BytesFreed
	st.BytesReused = arenaStats.BytesReused
	st.FreeListHits = arenaStats.FreeListHits
	st.FreeListMisses = arenaStats.FreeListMisses
	st.HeadChunkSize = arenaStats.HeadChunkSize
	st.Remaining = a.v.Size()
	return st
}
