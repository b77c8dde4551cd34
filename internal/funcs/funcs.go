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

// Package funcs provides the engine's built-in aggregate functions
// (sum, count, min, max, avg, bitwise and/or/xor, earliest/latest),
// one file per function family, mirroring the one-file-per-family
// layout of the aggregate kernels this package is modeled on.
package funcs

import (
	"encoding/binary"
	"math"

	"github.com/SnellerInc/streamagg"
)

func getFloat64(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
func setFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
func getInt64(b []byte) int64    { return int64(binary.LittleEndian.Uint64(b)) }
func setInt64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }

// argFloat reads c's row i as a float64 regardless of its
// underlying representation, returning ok=false for null.
func argFloat(c streamagg.Column, i int) (float64, bool) {
	if c.Null(i) {
		return 0, false
	}
	if c.Type() == streamagg.TypeFloat64 {
		return c.Float64(i), true
	}
	return float64(c.Int64(i)), true
}

func argInt(c streamagg.Column, i int) (int64, bool) {
	if c.Null(i) {
		return 0, false
	}
	if c.Type() == streamagg.TypeInt64 {
		return c.Int64(i), true
	}
	return int64(c.Float64(i)), true
}
