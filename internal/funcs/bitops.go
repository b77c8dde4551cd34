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

type bitOpKind int

const (
	bitAnd bitOpKind = iota
	bitOr
	bitXor
)

// bitOp backs BitAnd, BitOr and BitXor. Like MIN/MAX, bitwise
// reduction is not retractable, so a negative delta is ignored.
type bitOp struct {
	Arg  int
	kind bitOpKind
}

// BitAnd is BIT_AND(x).
func BitAnd(arg int) streamagg.Func { return bitOp{Arg: arg, kind: bitAnd} }

// BitOr is BIT_OR(x).
func BitOr(arg int) streamagg.Func { return bitOp{Arg: arg, kind: bitOr} }

// BitXor is BIT_XOR(x).
func BitXor(arg int) streamagg.Func { return bitOp{Arg: arg, kind: bitXor} }

func (b bitOp) Name() string {
	switch b.kind {
	case bitAnd:
		return "bit_and"
	case bitOr:
		return "bit_or"
	default:
		return "bit_xor"
	}
}
func (bitOp) Size() int                        { return 8 }
func (bitOp) Align() int                       { return 8 }
func (bitOp) ResultType() streamagg.ColumnType { return streamagg.TypeInt64 }
func (bitOp) IsState() bool                    { return false }
func (bitOp) HasTrivialDestructor() bool       { return true }
func (bitOp) IsUserDefined() bool              { return false }

func (b bitOp) Create(place []byte) error {
	if b.kind == bitAnd {
		setInt64(place[:8], -1) // all bits set
	} else {
		setInt64(place[:8], 0)
	}
	return nil
}

func (bitOp) Destroy(place []byte) {}

func (b bitOp) fold(place []byte, v int64) {
	cur := getInt64(place[:8])
	switch b.kind {
	case bitAnd:
		setInt64(place[:8], cur&v)
	case bitOr:
		setInt64(place[:8], cur|v)
	case bitXor:
		setInt64(place[:8], cur^v)
	}
}

func (b bitOp) Add(place []byte, args []streamagg.Column, row int, delta int64) {
	v, ok := argInt(args[b.Arg], row)
	if !ok || delta <= 0 {
		return
	}
	b.fold(place, v)
}

func (b bitOp) AddBatch(places [][]byte, args []streamagg.Column, begin, end int, delta []int64) {
	for r := begin; r < end; r++ {
		b.Add(places[r], args, r, delta[r])
	}
}

func (b bitOp) Merge(dst, src []byte) {
	b.fold(dst, getInt64(src[:8]))
}

func (bitOp) InsertResult(place []byte, out streamagg.ColumnBuilder) {
	out.AppendInt64(getInt64(place[:8]))
}

func (bitOp) Serialize(dst, place []byte) []byte { return append(dst, place[:8]...) }

func (bitOp) Deserialize(place, src []byte) ([]byte, error) {
	if len(src) < 8 {
		return nil, streamagg.ErrLogical
	}
	copy(place[:8], src[:8])
	return src[8:], nil
}
