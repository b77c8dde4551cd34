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

package funcs

import "github.com/SnellerInc/streamagg"

// EveryN counts rows like Count, but decides for itself when a
// group's count should be emitted: every N rows folded into a
// place, InsertResult becomes visible once more (§4.C "user-defined
// emit strategy"). Between thresholds the running count keeps
// accumulating untouched.
//
// Place layout: rows (8 bytes, total folded so far), lastEmitted (8
// bytes, rows already accounted for by a reported threshold), and
// pending (8 bytes, the threshold count computed by the most recent
// Flush, read back by GetEmitTimes).
type EveryN struct {
	N int64
}

func (EveryN) Name() string                    { return "every_n" }
func (EveryN) Size() int                        { return 24 }
func (EveryN) Align() int                       { return 8 }
func (EveryN) ResultType() streamagg.ColumnType { return streamagg.TypeInt64 }
func (EveryN) IsState() bool                    { return false }
func (EveryN) HasTrivialDestructor() bool       { return true }
func (EveryN) IsUserDefined() bool              { return true }

func (EveryN) Create(place []byte) error {
	setInt64(place[0:8], 0)
	setInt64(place[8:16], 0)
	setInt64(place[16:24], 0)
	return nil
}

func (EveryN) Destroy(place []byte) {}

func (e EveryN) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	setInt64(place[0:8], getInt64(place[0:8])+delta)
}

func (e EveryN) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		e.Add(places[r], args, r, delta[r])
	}
}

// Merge combines two partial counters. The merged place's pending
// count is left at zero and recomputed by the next Flush: combining
// thresholds already reported by each side has no single correct
// answer when the two sides emitted independently.
func (EveryN) Merge(dst, src []byte) {
	setInt64(dst[0:8], getInt64(dst[0:8])+getInt64(src[0:8]))
	setInt64(dst[8:16], getInt64(dst[8:16])+getInt64(src[8:16]))
	setInt64(dst[16:24], 0)
}

func (EveryN) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	out.AppendInt64(getInt64(place[0:8]))
}

func (EveryN) Serialize(dst, place []byte) []byte { return append(dst, place[:24]...) }

func (EveryN) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < 24 {
		return nil, streamagg.ErrLogical
	}
	copy(place[:24], src[:24])
	return src[24:], nil
}

// Flush folds every whole multiple of N rows accumulated since the
// last Flush into pending, and commits lastEmitted so the same rows
// are never counted twice (§4.E step 6).
func (e EveryN) Flush(place []byte) {
	rows := getInt64(place[0:8])
	lastEmitted := getInt64(place[8:16])
	n := e.N
	if n <= 0 {
		n = 1
	}
	groups := rows/n - lastEmitted/n
	setInt64(place[16:24], groups)
	if groups > 0 {
		setInt64(place[8:16], lastEmitted+groups*n)
	}
}

// GetEmitTimes returns the threshold count computed by the most
// recent Flush. A caller that observes a positive value is expected
// to convert before the next batch is executed, so the value never
// needs to be re-derived: the next Flush overwrites it regardless.
func (EveryN) GetEmitTimes(place []byte) int {
	return int(getInt64(place[16:24]))
}
