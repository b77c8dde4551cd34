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

import "testing"

func TestChooseMethodWithoutKey(t *testing.T) {
	if m := chooseMethod(nil, &Params{}); m != methodWithoutKey {
		t.Fatalf("got %v, want without_key", m)
	}
}

func TestChooseMethodFixedWidths(t *testing.T) {
	cases := []struct {
		size int
		want methodKind
	}{
		{1, methodFixed8},
		{2, methodFixed16},
		{4, methodFixed32},
		{8, methodFixed64},
		{16, methodFixed128},
		{32, methodFixed256},
	}
	for _, c := range cases {
		keys := []keyTypeInfo{{Type: TypeInt64, FixedSize: c.size}}
		if got := chooseMethod(keys, &Params{}); got != c.want {
			t.Errorf("fixed size %d: got %v, want %v", c.size, got, c.want)
		}
	}
}

func TestChooseMethodString(t *testing.T) {
	keys := []keyTypeInfo{{Type: TypeString}}
	if got := chooseMethod(keys, &Params{}); got != methodString {
		t.Fatalf("got %v, want string", got)
	}
}

func TestChooseMethodNullable(t *testing.T) {
	keys := []keyTypeInfo{{Type: TypeInt64, FixedSize: 8, Nullable: true}}
	if got := chooseMethod(keys, &Params{}); got != methodNullable128 {
		t.Fatalf("got %v, want nullable_keys128", got)
	}
	keys = []keyTypeInfo{
		{Type: TypeInt64, FixedSize: 8, Nullable: true},
		{Type: TypeInt64, FixedSize: 8},
		{Type: TypeInt64, FixedSize: 8},
		{Type: TypeInt64, FixedSize: 8},
	}
	if got := chooseMethod(keys, &Params{}); got != methodNullable256 {
		t.Fatalf("got %v, want nullable_keys256", got)
	}
}

func TestChooseMethodPackedMultiKey(t *testing.T) {
	keys := []keyTypeInfo{
		{Type: TypeInt64, FixedSize: 8},
		{Type: TypeInt64, FixedSize: 8},
	}
	if got := chooseMethod(keys, &Params{}); got != methodPackedKeys128 {
		t.Fatalf("got %v, want keys128", got)
	}
	keys = append(keys, keyTypeInfo{Type: TypeInt64, FixedSize: 8}, keyTypeInfo{Type: TypeInt64, FixedSize: 8})
	if got := chooseMethod(keys, &Params{}); got != methodPackedKeys256 {
		t.Fatalf("got %v, want keys256", got)
	}
}

func TestChooseMethodSerializedFallback(t *testing.T) {
	keys := []keyTypeInfo{{Type: TypeString}, {Type: TypeInt64, FixedSize: 8}}
	if got := chooseMethod(keys, &Params{}); got != methodSerialized {
		t.Fatalf("got %v, want serialized", got)
	}
}

func TestChooseMethodWindow(t *testing.T) {
	p := &Params{GroupBy: GroupByWindowStart}
	keys := []keyTypeInfo{{Type: TypeInt64, FixedSize: 8}}
	if got := chooseMethod(keys, p); got != methodFixed64 {
		t.Fatalf("got %v, want key64", got)
	}
	keys = []keyTypeInfo{{Type: TypeInt64, FixedSize: 8}, {Type: TypeString}}
	if got := chooseMethod(keys, p); got != methodSerialized {
		t.Fatalf("got %v, want serialized", got)
	}
}

// TestFixed8KeyEndToEnd covers the "8-bit key + -Array combinator"
// open question: with this design every methodKind shares the same
// map[string]*entry storage, so an 8-bit single key aggregates
// correctly via ExecuteBatch with no specialized lookup table to
// break (see DESIGN.md).
func TestFixed8KeyEndToEnd(t *testing.T) {
	p := Params{
		InputSchema:  []string{"flag", "n"},
		GroupKeyCols: []int{0},
		Aggregates:   []AggDesc{{Args: []int{1}, DeltaCol: -1, Result: "total"}},
		DeltaColPos:  -1,
	}
	f := &countingSumFunc{}
	a, err := NewAggregator(p, []Func{f})
	if err != nil {
		t.Fatal(err)
	}
	b := &Batch{
		Rows: 3,
		Columns: []Column{
			boolColumn(true, false, true),
			int64Column(10, 20, 30),
		},
	}
	if _, err := a.ExecuteBatch(b); err != nil {
		t.Fatal(err)
	}
	if a.method != methodFixed8 {
		t.Fatalf("method = %v, want key8", a.method)
	}
	if a.v.Size() != 2 {
		t.Fatalf("groups = %d, want 2", a.v.Size())
	}

	blocks, err := a.Convert(ActionStreamingEmit, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	blk := blocks[0]
	if blk.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", blk.Rows())
	}
	totals := map[bool]int64{}
	keyCol := blk.Columns[0].(interface{ Bool(int) bool })
	valCol := blk.Columns[1].(interface{ Int64(int) int64 })
	for r := 0; r < blk.Rows(); r++ {
		totals[keyCol.Bool(r)] = valCol.Int64(r)
	}
	if totals[true] != 40 || totals[false] != 20 {
		t.Fatalf("totals = %v, want true:40 false:20", totals)
	}
}

// countingSumFunc is a tiny int64-sum Func used only to exercise
// ExecuteBatch/Convert without depending on internal/funcs.
type countingSumFunc struct{}

func (*countingSumFunc) Name() string                 { return "testsum" }
func (*countingSumFunc) Size() int                    { return 8 }
func (*countingSumFunc) Align() int                   { return 8 }
func (*countingSumFunc) ResultType() ColumnType        { return TypeInt64 }
func (*countingSumFunc) IsState() bool                 { return false }
func (*countingSumFunc) HasTrivialDestructor() bool    { return true }
func (*countingSumFunc) IsUserDefined() bool           { return false }
func (*countingSumFunc) Create(place []byte) error {
	encodeInt64(place, 0)
	return nil
}
func (*countingSumFunc) Destroy(place []byte) {}
func (*countingSumFunc) Add(place []byte, args []Column, row int, delta int64) {
	encodeInt64(place, decodeInt64(place)+args[0].Int64(row)*delta)
}
func (f *countingSumFunc) AddBatch(places [][]byte, args []Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		f.Add(places[r], args, r, delta[r])
	}
}
func (*countingSumFunc) Merge(dst, src []byte) {
	encodeInt64(dst, decodeInt64(dst)+decodeInt64(src))
}
func (*countingSumFunc) InsertResult(place []byte, out ColumnBuilder) {
	out.AppendInt64(decodeInt64(place))
}
func (*countingSumFunc) Serialize(dst, place []byte) []byte { return append(dst, place[:8]...) }
func (*countingSumFunc) Deserialize(place, src []byte) ([]byte, error) {
	copy(place[:8], src[:8])
	return src[8:], nil
}

func encodeInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}
func decodeInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
