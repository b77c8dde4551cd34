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

// testColumn is a minimal Column implementation for tests, backing
// one typed slice plus a parallel null mask.
type testColumn struct {
	typ    ColumnType
	i64    []int64
	f64    []float64
	str    []string
	b      []bool
	isNull []bool
}

func int64Column(vals ...int64) *testColumn {
	return &testColumn{typ: TypeInt64, i64: vals, isNull: make([]bool, len(vals))}
}

func float64Column(vals ...float64) *testColumn {
	return &testColumn{typ: TypeFloat64, f64: vals, isNull: make([]bool, len(vals))}
}

func stringColumn(vals ...string) *testColumn {
	return &testColumn{typ: TypeString, str: vals, isNull: make([]bool, len(vals))}
}

func boolColumn(vals ...bool) *testColumn {
	return &testColumn{typ: TypeBool, b: vals, isNull: make([]bool, len(vals))}
}

// nullAt marks row i as null and returns c for chaining.
func (c *testColumn) nullAt(i int) *testColumn {
	c.isNull[i] = true
	return c
}

func (c *testColumn) Type() ColumnType { return c.typ }

func (c *testColumn) Len() int {
	switch c.typ {
	case TypeInt64:
		return len(c.i64)
	case TypeFloat64:
		return len(c.f64)
	case TypeString:
		return len(c.str)
	case TypeBool:
		return len(c.b)
	default:
		return 0
	}
}

func (c *testColumn) Null(i int) bool { return i < len(c.isNull) && c.isNull[i] }

func (c *testColumn) Int64(i int) int64     { return c.i64[i] }
func (c *testColumn) Float64(i int) float64 { return c.f64[i] }
func (c *testColumn) String(i int) string   { return c.str[i] }
func (c *testColumn) Bool(i int) bool       { return c.b[i] }
func (c *testColumn) Bytes(i int) []byte    { return nil }
