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

// avgStateSize is (compensation, sum, count): two float64s plus a
// uint64 running count, reusing the same compensated-summation
// layout as Sum.
const avgStateSize = 24

// Avg is AVG(x) = SUM(x)/COUNT(x), sharing Sum's compensated
// accumulator and adding a running row count.
type Avg struct {
	Arg int
}

func (Avg) Name() string                     { return "avg" }
func (Avg) Size() int                        { return avgStateSize }
func (Avg) Align() int                       { return 8 }
func (Avg) ResultType() streamagg.ColumnType { return streamagg.TypeFloat64 }
func (Avg) IsState() bool                    { return false }
func (Avg) HasTrivialDestructor() bool       { return true }
func (Avg) IsUserDefined() bool              { return false }

func (Avg) Create(place []byte) error {
	setFloat64(place[0:8], 0)
	setFloat64(place[8:16], 0)
	setInt64(place[16:24], 0)
	return nil
}

func (Avg) Destroy(place []byte) {}

func (a Avg) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	v, ok := argFloat(args[a.Arg], row)
	if !ok {
		return
	}
	c := getFloat64(place[0:8])
	sum := getFloat64(place[8:16])
	sum, c = neumaierAdd(sum, c, v*float64(delta))
	setFloat64(place[0:8], c)
	setFloat64(place[8:16], sum)
	setInt64(place[16:24], getInt64(place[16:24])+delta)
}

func (a Avg) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		a.Add(places[r], args, r, delta[r])
	}
}

func (Avg) Merge(dst, src []byte) {
	dstC, dstSum := getFloat64(dst[0:8]), getFloat64(dst[8:16])
	srcC, srcSum := getFloat64(src[0:8]), getFloat64(src[8:16])
	dstSum, dstC = neumaierAdd(dstSum, dstC, srcSum)
	dstSum, dstC = neumaierAdd(dstSum, dstC, srcC)
	setFloat64(dst[0:8], dstC)
	setFloat64(dst[8:16], dstSum)
	setInt64(dst[16:24], getInt64(dst[16:24])+getInt64(src[16:24]))
}

func (Avg) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	n := getInt64(place[16:24])
	if n == 0 {
		out.AppendNull()
		return
	}
	sum := getFloat64(place[8:16]) + getFloat64(place[0:8])
	out.AppendFloat64(sum / float64(n))
}

func (Avg) Serialize(dst, place []byte) []byte {
	return append(dst, place[:avgStateSize]...)
}

func (Avg) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < avgStateSize {
		return nil, streamagg.ErrLogical
	}
	copy(place[:avgStateSize], src[:avgStateSize])
	return src[avgStateSize:], nil
}
