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

// Count is COUNT(*) when Arg < 0, or COUNT(x) (skipping nulls) when
// Arg names an argument column.
type Count struct {
	Arg int // -1 for COUNT(*)
}

func (Count) Name() string                     { return "count" }
func (Count) Size() int                         { return 8 }
func (Count) Align() int                        { return 8 }
func (Count) ResultType() streamagg.ColumnType  { return streamagg.TypeInt64 }
func (Count) IsState() bool                     { return false }
func (Count) HasTrivialDestructor() bool        { return true }
func (Count) IsUserDefined() bool               { return false }

func (Count) Create(place []byte) error { setInt64(place[:8], 0); return nil }
func (Count) Destroy(place []byte)      {}

func (c Count) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	if c.Arg >= 0 && args[c.Arg].Null(row) {
		return
	}
	setInt64(place[:8], getInt64(place[:8])+delta)
}

func (c Count) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		c.Add(places[r], args, r, delta[r])
	}
}

func (Count) Merge(dst, src []byte) {
	setInt64(dst[:8], getInt64(dst[:8])+getInt64(src[:8]))
}

func (Count) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	out.AppendInt64(getInt64(place[:8]))
}

func (Count) Serialize(dst, place []byte) []byte { return append(dst, place[:8]...) }

func (Count) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < 8 {
		return nil, streamagg.ErrLogical
	}
	copy(place[:8], src[:8])
	return src[8:], nil
}
