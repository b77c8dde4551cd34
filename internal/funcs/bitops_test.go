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

import (
	"testing"

	"github.com/SnellerInc/streamagg"
)

func TestBitAndReduces(t *testing.T) {
	b := BitAnd(0)
	place := make([]byte, b.Size())
	b.Create(place)
	col := int64Col(0b1110, 0b1011)
	for r := 0; r < 2; r++ {
		b.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	b.InsertResult(place, &out)
	if out.i64 != 0b1010 {
		t.Fatalf("bit_and = %b, want %b", out.i64, 0b1010)
	}
}

func TestBitOrReduces(t *testing.T) {
	b := BitOr(0)
	place := make([]byte, b.Size())
	b.Create(place)
	col := int64Col(0b0100, 0b0010)
	for r := 0; r < 2; r++ {
		b.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	b.InsertResult(place, &out)
	if out.i64 != 0b0110 {
		t.Fatalf("bit_or = %b, want %b", out.i64, 0b0110)
	}
}

func TestBitXorReduces(t *testing.T) {
	b := BitXor(0)
	place := make([]byte, b.Size())
	b.Create(place)
	col := int64Col(0b0110, 0b0101)
	for r := 0; r < 2; r++ {
		b.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	b.InsertResult(place, &out)
	if out.i64 != 0b0011 {
		t.Fatalf("bit_xor = %b, want %b", out.i64, 0b0011)
	}
}

// TestBitOpIgnoresRetraction mirrors MIN/MAX: bitwise reduction is
// not retractable, so a negative delta must be a no-op.
func TestBitOpIgnoresRetraction(t *testing.T) {
	b := BitOr(0)
	place := make([]byte, b.Size())
	b.Create(place)
	col := int64Col(0b0001, 0b1000)
	b.Add(place, []streamagg.Column{col}, 0, 1)
	b.Add(place, []streamagg.Column{col}, 1, -1)
	var out captureBuilder
	b.InsertResult(place, &out)
	if out.i64 != 0b0001 {
		t.Fatalf("bit_or = %b, want %b (retraction ignored)", out.i64, 0b0001)
	}
}

func TestBitAndMerge(t *testing.T) {
	b := BitAnd(0)
	x := make([]byte, b.Size())
	y := make([]byte, b.Size())
	b.Create(x)
	b.Create(y)
	b.Add(x, []streamagg.Column{int64Col(0b1110)}, 0, 1)
	b.Add(y, []streamagg.Column{int64Col(0b1010)}, 0, 1)
	b.Merge(x, y)
	var out captureBuilder
	b.InsertResult(x, &out)
	if out.i64 != 0b1010 {
		t.Fatalf("merged bit_and = %b, want %b", out.i64, 0b1010)
	}
}

func TestBitOpSerializeDeserialize(t *testing.T) {
	b := BitXor(0)
	place := make([]byte, b.Size())
	b.Create(place)
	b.Add(place, []streamagg.Column{int64Col(0b1111)}, 0, 1)
	buf := b.Serialize(nil, place)
	restored := make([]byte, b.Size())
	b.Create(restored)
	if _, err := b.Deserialize(restored, buf); err != nil {
		t.Fatal(err)
	}
	var out captureBuilder
	b.InsertResult(restored, &out)
	if out.i64 != 0b1111 {
		t.Fatalf("restored bit_xor = %b, want %b", out.i64, 0b1111)
	}
}
