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

// Kind of value a Column holds. The engine only needs enough type
// information to hash, compare and fold keys/arguments; it does not
// interpret SQL types (that is the query layer's job, a non-goal).
type ColumnType int

const (
	TypeInt64 ColumnType = iota
	TypeFloat64
	TypeString
	TypeBool
	TypeBytes // used for pre-serialized composite keys and state blobs
)

// Column is one immutable column of a Batch (§3 "Record batch":
// "Columns are immutable once observed by the engine").
type Column interface {
	Type() ColumnType
	Len() int
	// Null reports whether row i is missing/null.
	Null(i int) bool

	Int64(i int) int64
	Float64(i int) float64
	String(i int) string
	Bool(i int) bool
	Bytes(i int) []byte
}

// Batch is an ordered set of typed columns plus a row count (§3).
type Batch struct {
	Columns []Column
	Rows    int
}

// ColumnBuilder accumulates output values for one result column.
// Implementations back either a final output column (InsertResult)
// or an intermediate state column (raw place pointers, see convert.go).
type ColumnBuilder interface {
	AppendInt64(v int64)
	AppendFloat64(v float64)
	AppendBool(v bool)
	AppendString(v string)
	AppendBytes(v []byte)
	AppendNull()
}

// Block is a materialized chunk of output, either final
// (one value per aggregate/key) or intermediate (raw aggregate
// state retained for a later merge), per §6.
type Block struct {
	// Name/Type/Column triples, ordered key columns first
	// then aggregate columns, matching Params.GroupKeyCols
	// followed by Params.Aggregates.
	Names   []string
	Types   []ColumnType
	Columns []ColumnBuilder

	// BucketNum is the two-level bucket this block was produced
	// from, or -1 for unbucketed (single-level or overflow) blocks.
	BucketNum int32
	// IsOverflow marks the sentinel overflow-row block produced
	// under OverflowAny mode.
	IsOverflow bool
}

// Rows reports how many result rows are present in b, determined
// by the first column's length (all columns in a Block have equal
// length by construction).
func (b *Block) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	if sc, ok := b.Columns[0].(interface{ Len() int }); ok {
		return sc.Len()
	}
	return 0
}

// sliceColumn is the concrete ColumnBuilder/Column implementation
// used internally for materialized output; it is deliberately a
// simple tagged slice rather than a columnar byte buffer (the
// teacher's ion-encoded columns are tied to the SQL engine's wire
// format, a non-goal here — see DESIGN.md).
type sliceColumn struct {
	typ     ColumnType
	i64     []int64
	f64     []float64
	str     []string
	b       []bool
	by      [][]byte
	isNull  []bool
}

func newSliceColumn(t ColumnType) *sliceColumn {
	return &sliceColumn{typ: t}
}

func (c *sliceColumn) Type() ColumnType { return c.typ }

func (c *sliceColumn) Len() int {
	switch c.typ {
	case TypeInt64:
		return len(c.i64)
	case TypeFloat64:
		return len(c.f64)
	case TypeString:
		return len(c.str)
	case TypeBool:
		return len(c.b)
	case TypeBytes:
		return len(c.by)
	default:
		return 0
	}
}

func (c *sliceColumn) Null(i int) bool {
	return i < len(c.isNull) && c.isNull[i]
}

func (c *sliceColumn) AppendInt64(v int64) {
	c.i64 = append(c.i64, v)
	c.isNull = append(c.isNull, false)
}
func (c *sliceColumn) AppendFloat64(v float64) {
	c.f64 = append(c.f64, v)
	c.isNull = append(c.isNull, false)
}
func (c *sliceColumn) AppendBool(v bool) {
	c.b = append(c.b, v)
	c.isNull = append(c.isNull, false)
}
func (c *sliceColumn) AppendString(v string) {
	c.str = append(c.str, v)
	c.isNull = append(c.isNull, false)
}
func (c *sliceColumn) AppendBytes(v []byte) {
	c.by = append(c.by, v)
	c.isNull = append(c.isNull, false)
}
func (c *sliceColumn) AppendNull() {
	switch c.typ {
	case TypeInt64:
		c.i64 = append(c.i64, 0)
	case TypeFloat64:
		c.f64 = append(c.f64, 0)
	case TypeString:
		c.str = append(c.str, "")
	case TypeBool:
		c.b = append(c.b, false)
	case TypeBytes:
		c.by = append(c.by, nil)
	}
	c.isNull = append(c.isNull, true)
}

func (c *sliceColumn) Int64(i int) int64     { return c.i64[i] }
func (c *sliceColumn) Float64(i int) float64 { return c.f64[i] }
func (c *sliceColumn) String(i int) string   { return c.str[i] }
func (c *sliceColumn) Bool(i int) bool       { return c.b[i] }
func (c *sliceColumn) Bytes(i int) []byte    { return c.by[i] }
