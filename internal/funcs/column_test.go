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

// testColumn is a minimal streamagg.Column for exercising the
// built-in aggregate functions without pulling in a columnar store.
type testColumn struct {
	typ    streamagg.ColumnType
	f64    []float64
	i64    []int64
	isNull []bool
}

func float64Col(vals ...float64) *testColumn {
	return &testColumn{typ: streamagg.TypeFloat64, f64: vals, isNull: make([]bool, len(vals))}
}

func int64Col(vals ...int64) *testColumn {
	return &testColumn{typ: streamagg.TypeInt64, i64: vals, isNull: make([]bool, len(vals))}
}

func (c *testColumn) nullAt(i int) *testColumn {
	c.isNull[i] = true
	return c
}

func (c *testColumn) Type() streamagg.ColumnType { return c.typ }
func (c *testColumn) Len() int {
	if c.typ == streamagg.TypeFloat64 {
		return len(c.f64)
	}
	return len(c.i64)
}
func (c *testColumn) Null(i int) bool { return i < len(c.isNull) && c.isNull[i] }

func (c *testColumn) Int64(i int) int64 {
	if c.typ == streamagg.TypeInt64 {
		return c.i64[i]
	}
	return int64(c.f64[i])
}
func (c *testColumn) Float64(i int) float64 {
	if c.typ == streamagg.TypeFloat64 {
		return c.f64[i]
	}
	return float64(c.i64[i])
}
func (c *testColumn) String(i int) string { return "" }
func (c *testColumn) Bool(i int) bool     { return false }
func (c *testColumn) Bytes(i int) []byte  { return nil }

// captureBuilder is a streamagg.ColumnBuilder that records the
// single most recent appended value, for asserting InsertResult.
type captureBuilder struct {
	isNull bool
	i64    int64
	f64    float64
}

func (b *captureBuilder) AppendInt64(v int64)     { b.i64 = v; b.isNull = false }
func (b *captureBuilder) AppendFloat64(v float64) { b.f64 = v; b.isNull = false }
func (b *captureBuilder) AppendBool(v bool)       {}
func (b *captureBuilder) AppendString(v string)   {}
func (b *captureBuilder) AppendBytes(v []byte)    {}
func (b *captureBuilder) AppendNull()             { b.isNull = true }
