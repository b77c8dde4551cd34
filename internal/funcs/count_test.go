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

func TestCountStar(t *testing.T) {
	c := Count{Arg: -1}
	place := make([]byte, c.Size())
	c.Create(place)
	col := int64Col(1, 2, 3)
	for r := 0; r < 3; r++ {
		c.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	c.InsertResult(place, &out)
	if out.i64 != 3 {
		t.Fatalf("count(*) = %d, want 3", out.i64)
	}
}

func TestCountArgSkipsNull(t *testing.T) {
	c := Count{Arg: 0}
	place := make([]byte, c.Size())
	c.Create(place)
	col := int64Col(1, 0, 3).nullAt(1)
	for r := 0; r < 3; r++ {
		c.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	c.InsertResult(place, &out)
	if out.i64 != 2 {
		t.Fatalf("count(x) = %d, want 2 (null skipped)", out.i64)
	}
}

func TestCountMerge(t *testing.T) {
	c := Count{Arg: -1}
	a := make([]byte, c.Size())
	b := make([]byte, c.Size())
	c.Create(a)
	c.Create(b)
	c.Add(a, nil, 0, 5)
	c.Add(b, nil, 0, 2)
	c.Merge(a, b)
	var out captureBuilder
	c.InsertResult(a, &out)
	if out.i64 != 7 {
		t.Fatalf("merged count = %d, want 7", out.i64)
	}
}

func TestCountSerializeDeserialize(t *testing.T) {
	c := Count{Arg: -1}
	place := make([]byte, c.Size())
	c.Create(place)
	c.Add(place, nil, 0, 4)
	buf := c.Serialize(nil, place)
	restored := make([]byte, c.Size())
	c.Create(restored)
	if _, err := c.Deserialize(restored, buf); err != nil {
		t.Fatal(err)
	}
	var out captureBuilder
	c.InsertResult(restored, &out)
	if out.i64 != 4 {
		t.Fatalf("restored count = %d, want 4", out.i64)
	}
}
