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

// minMax backs both Min and Max; wantMax selects the comparison
// direction. Retraction (a negative delta) has no well-defined
// effect on a running extremum and is ignored, matching how the
// original engine treats MIN/MAX as non-retractable.
type minMax struct {
	Arg     int
	wantMax bool
}

// Min is MIN(x).
func Min(arg int) streamagg.Func { return minMax{Arg: arg, wantMax: false} }

// Max is MAX(x).
func Max(arg int) streamagg.Func { return minMax{Arg: arg, wantMax: true} }

func (m minMax) Name() string {
	if m.wantMax {
		return "max"
	}
	return "min"
}
func (minMax) Size() int                        { return 9 } // 1 byte "has value" + float64
func (minMax) Align() int                       { return 8 }
func (minMax) ResultType() streamagg.ColumnType { return streamagg.TypeFloat64 }
func (minMax) IsState() bool                    { return false }
func (minMax) HasTrivialDestructor() bool       { return true }
func (minMax) IsUserDefined() bool              { return false }

func (minMax) Create(place []byte) error {
	place[0] = 0
	setFloat64(place[1:9], 0)
	return nil
}

func (minMax) Destroy(place []byte) {}

func (m minMax) fold(place []byte, v float64) {
	if place[0] == 0 {
		place[0] = 1
		setFloat64(place[1:9], v)
		return
	}
	cur := getFloat64(place[1:9])
	if (m.wantMax && v > cur) || (!m.wantMax && v < cur) {
		setFloat64(place[1:9], v)
	}
}

func (m minMax) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	v, ok := argFloat(args[m.Arg], row)
	if !ok || delta <= 0 {
		return
	}
	m.fold(place, v)
}

func (m minMax) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		m.Add(places[r], args, r, delta[r])
	}
}

func (m minMax) Merge(dst, src []byte) {
	if src[0] == 0 {
		return
	}
	m.fold(dst, getFloat64(src[1:9]))
}

func (minMax) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	if place[0] == 0 {
		out.AppendNull()
		return
	}
	out.AppendFloat64(getFloat64(place[1:9]))
}

func (minMax) Serialize(dst, place []byte) []byte { return append(dst, place[:9]...) }

func (minMax) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < 9 {
		return nil, streamagg.ErrLogical
	}
	copy(place[:9], src[:9])
	return src[9:], nil
}
