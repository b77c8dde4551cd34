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

// sumState lays out (compensation, sum) as two float64s, following
// the Kahan-Babushka-Neumaier scheme: sum accumulates the running
// total and compensation tracks the low-order bits lost to
// round-off on each addition.
const sumStateSize = 16

// neumaierAdd folds x into (sum, c), returning the updated pair.
func neumaierAdd(sum, c, x float64) (newSum, newC float64) {
	t := sum + x
	if absF(sum) >= absF(x) {
		c += (sum - t) + x
	} else {
		c += (x - t) + sum
	}
	return t, c
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Sum is SUM(x), computed with compensated summation to keep long
// streaming windows numerically stable.
type Sum struct {
	Arg int
}

func (Sum) Name() string                 { return "sum" }
func (Sum) Size() int                    { return sumStateSize }
func (Sum) Align() int                   { return 8 }
func (Sum) ResultType() streamagg.ColumnType { return streamagg.TypeFloat64 }
func (Sum) IsState() bool                { return false }
func (Sum) HasTrivialDestructor() bool   { return true }
func (Sum) IsUserDefined() bool          { return false }

func (Sum) Create(place []byte) error {
	setFloat64(place[0:8], 0)
	setFloat64(place[8:16], 0)
	return nil
}

func (Sum) Destroy(place []byte) {}

func (s Sum) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	v, ok := argFloat(args[s.Arg], row)
	if !ok {
		return
	}
	c := getFloat64(place[0:8])
	sum := getFloat64(place[8:16])
	sum, c = neumaierAdd(sum, c, v*float64(delta))
	setFloat64(place[0:8], c)
	setFloat64(place[8:16], sum)
}

func (s Sum) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		s.Add(places[r], args, r, delta[r])
	}
}

func (Sum) Merge(dst, src []byte) {
	dstC, dstSum := getFloat64(dst[0:8]), getFloat64(dst[8:16])
	srcC, srcSum := getFloat64(src[0:8]), getFloat64(src[8:16])
	dstSum, dstC = neumaierAdd(dstSum, dstC, srcSum)
	dstSum, dstC = neumaierAdd(dstSum, dstC, srcC)
	setFloat64(dst[0:8], dstC)
	setFloat64(dst[8:16], dstSum)
}

func (Sum) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	c := getFloat64(place[0:8])
	sum := getFloat64(place[8:16])
	out.AppendFloat64(sum + c)
}

func (Sum) Serialize(dst, place []byte) []byte {
	return append(dst, place[:sumStateSize]...)
}

func (Sum) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < sumStateSize {
		return nil, streamagg.ErrLogical
	}
	copy(place[:sumStateSize], src[:sumStateSize])
	return src[sumStateSize:], nil
}
