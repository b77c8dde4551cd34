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

import "fmt"

// Errorf is a global diagnostic function that can be set during
// init(); errorf forwards to it. It is deliberately package-global
// (rather than threaded through every call) so that it can be wired
// up once by the embedding program. No engine code path calls errorf.
var Errorf func(f string, args ...any)

func errorf(f string, args ...any) {
	if Errorf != nil {
		Errorf(f, args...)
	}
}

// Logger is the interface a caller can provide to a Params for a
// particular aggregator instance. The aggregator keeps it but writes
// nothing to it; EvictBefore returns its Stats to the caller instead.
type Logger interface {
	Printf(f string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

func logOf(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// Stats are the window-eviction and arena-reclaim counters
// reported by EvictBefore, mirroring the arena/bucket diagnostics
// logged by the aggregator this engine is modeled on.
type Stats struct {
	ChunksFreed    int
	BytesFreed     int64
	BytesReused    int64
	FreeListHits   int
	FreeListMisses int
	HeadChunkSize  int64
	Removed        int
	Remaining      int
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"removed=%d remaining=%d chunks_freed=%d bytes_freed=%d bytes_reused=%d "+
			"free_list_hits=%d free_list_misses=%d head_chunk_size=%d",
		s.Removed, s.Remaining, s.ChunksFreed, s.BytesFreed, s.BytesReused,
		s.FreeListHits, s.FreeListMisses, s.HeadChunkSize)
}
