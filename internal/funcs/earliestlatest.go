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

// timeValue backs EARLIEST(value, ts) and LATEST(value, ts): it
// keeps the value whose companion timestamp column is the
// smallest (earliest) or largest (latest) seen so far, useful for
// "last known reading" style streaming aggregates (§2 "data model"
// -- user-defined-style aggregates over a secondary ordering key).
type timeValue struct {
	ValueArg int
	TimeArg  int
	wantMax  bool
}

// Earliest is EARLIEST(value, ts): the value paired with the
// smallest ts observed.
func Earliest(valueArg, timeArg int) streamagg.Func {
	return timeValue{ValueArg: valueArg, TimeArg: timeArg, wantMax: false}
}

// Latest is LATEST(value, ts): the value paired with the largest ts
// observed.
func Latest(valueArg, timeArg int) streamagg.Func {
	return timeValue{ValueArg: valueArg, TimeArg: timeArg, wantMax: true}
}

// layout: 1 byte "has value" + int64 best-ts + float64 value
const timeValueStateSize = 17

func (t timeValue) Name() string {
	if t.wantMax {
		return "latest"
	}
	return "earliest"
}
func (timeValue) Size() int                        { return timeValueStateSize }
func (timeValue) Align() int                       { return 8 }
func (timeValue) ResultType() streamagg.ColumnType { return streamagg.TypeFloat64 }
func (timeValue) IsState() bool                    { return false }
func (timeValue) HasTrivialDestructor() bool        { return true }
func (timeValue) IsUserDefined() bool              { return false }

func (timeValue) Create(place []byte) error {
	place[0] = 0
	setInt64(place[1:9], 0)
	setFloat64(place[9:17], 0)
	return nil
}

func (timeValue) Destroy(place []byte) {}

func (t timeValue) fold(place []byte, ts int64, v float64) {
	if place[0] == 0 {
		place[0] = 1
		setInt64(place[1:9], ts)
		setFloat64(place[9:17], v)
		return
	}
	cur := getInt64(place[1:9])
	if (t.wantMax && ts > cur) || (!t.wantMax && ts < cur) {
		setInt64(place[1:9], ts)
		setFloat64(place[9:17], v)
	}
}

func (t timeValue) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	if delta <= 0 {
		return
	}
	ts, ok := argInt(args[t.TimeArg], row)
	if !ok {
		return
	}
	v, ok := argFloat(args[t.ValueArg], row)
	if !ok {
		return
	}
	t.fold(place, ts, v)
}

func (t timeValue) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		t.Add(places[r], args, r, delta[r])
	}
}

func (t timeValue) Merge(dst, src []byte) {
	if src[0] == 0 {
		return
	}
	t.fold(dst, getInt64(src[1:9]), getFloat64(src[9:17]))
}

func (timeValue) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	if place[0] == 0 {
		out.AppendNull()
		return
	}
	out.AppendFloat64(getFloat64(place[9:17]))
}

func (timeValue) Serialize(dst, place []byte) []byte {
	return append(dst, place[:timeValueStateSize]...)
}

func (timeValue) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < timeValueStateSize {
		return nil, streamagg.ErrLogical
	}
	copy(place[:timeValueStateSize], src[:timeValueStateSize])
	return src[timeValueStateSize:], nil
}
