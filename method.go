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

import (
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"
)

// methodKind names the hash-table specialization family a Variants
// has chosen (§4.B, §9). The ~30 template instantiations the
// original engine generates are collapsed here into a small closed
// enum, per §9's instruction to prefer "enum + match" in a modern
// language; the single-level / two-level / time-bucket form is the
// table implementation in variants.go, not part of this enum.
type methodKind int

const (
	methodWithoutKey methodKind = iota
	methodFixed8
	methodFixed16
	methodFixed32
	methodFixed64
	methodFixed128
	methodFixed256
	methodString
	methodNullable128
	methodNullable256
	methodPackedKeys128
	methodPackedKeys256
	methodSerialized
)

func (m methodKind) String() string {
	switch m {
	case methodWithoutKey:
		return "without_key"
	case methodFixed8:
		return "key8"
	case methodFixed16:
		return "key16"
	case methodFixed32:
		return "key32"
	case methodFixed64:
		return "key64"
	case methodFixed128:
		return "key128"
	case methodFixed256:
		return "key256"
	case methodString:
		return "string"
	case methodNullable128:
		return "nullable_keys128"
	case methodNullable256:
		return "nullable_keys256"
	case methodPackedKeys128:
		return "keys128"
	case methodPackedKeys256:
		return "keys256"
	case methodSerialized:
		return "serialized"
	default:
		return "unknown_method"
	}
}

// keyTypeInfo is what chooseMethod needs to know about one group-by
// key column: whether it can be nullable and how wide its fixed
// encoding would be (0 if it is not fixed-width, e.g. a string).
type keyTypeInfo struct {
	Type      ColumnType
	Nullable  bool
	FixedSize int // 0 if variable-width
}

// chooseMethod implements the method chooser's 8-step decision tree
// (§4.B), generalized back out from the teacher's always-one-family
// implementation (vm/hash_aggregate.go) using the original's
// Aggregator::chooseAggregationMethod /
// chooseAggregationMethodTimeBucketTwoLevel as the ground truth for
// the step ordering.
func chooseMethod(keys []keyTypeInfo, p *Params) methodKind {
	// 1. zero keys -> without_key
	if len(keys) == 0 {
		return methodWithoutKey
	}

	// 2. window group-by picks by total fixed key bytes, falling
	// back to serialized; the two-level/time-bucket wrapping
	// itself is decided by Variants.ConvertToTwoLevel, not here.
	if p.GroupBy.IsWindow() {
		if total, ok := totalFixedBytes(keys); ok {
			return fixedMethodForBytes(total)
		}
		return methodSerialized
	}

	// 3. any nullable key -> packed nullable if all fixed and fit,
	// else serialized
	anyNullable := false
	for _, k := range keys {
		if k.Nullable {
			anyNullable = true
			break
		}
	}
	if anyNullable {
		if total, ok := totalFixedBytes(keys); ok {
			if total <= 16 {
				return methodNullable128
			}
			if total <= 32 {
				return methodNullable256
			}
		}
		return methodSerialized
	}

	// 4. single numeric key -> key{8,16,32,64,128,256} by width
	if len(keys) == 1 && keys[0].FixedSize > 0 && keys[0].Type != TypeString {
		return fixedMethodForBytes(keys[0].FixedSize)
	}

	// 5. single string/fixed-string key
	if len(keys) == 1 && keys[0].Type == TypeString {
		return methodString
	}

	// 6. all-fixed multi-key -> keys{16,32,64,128,256} by total bytes
	if total, ok := totalFixedBytes(keys); ok {
		if total <= 16 {
			return methodPackedKeys128
		}
		if total <= 32 {
			return methodPackedKeys256
		}
	}

	// 7. low-cardinality steers to a distinct family in the original
	// because its low-cardinality table interns keys into a small
	// dictionary before hashing. Every methodKind here already shares
	// one map[string]*entry (see variants.go), itself a dictionary
	// keyed by the encoded bytes, so p.LowCardinality does not change
	// methodKind selection; it is carried through Params/Preset as
	// caller-facing configuration only (see DESIGN.md's Open Question
	// decisions).

	// 8. fallback: serialized
	return methodSerialized
}

func totalFixedBytes(keys []keyTypeInfo) (int, bool) {
	total := 0
	for _, k := range keys {
		if k.FixedSize == 0 {
			return 0, false
		}
		total += k.FixedSize
	}
	return total, true
}

func fixedMethodForBytes(n int) methodKind {
	switch {
	case n <= 1:
		return methodFixed8
	case n <= 2:
		return methodFixed16
	case n <= 4:
		return methodFixed32
	case n <= 8:
		return methodFixed64
	case n <= 16:
		return methodFixed128
	case n <= 32:
		return methodFixed256
	default:
		return methodSerialized
	}
}

// siphash keys, fixed across the process the way vm/interphash.go's
// bytecode siphash uses a fixed key pair for the duration of a
// query; we don't need per-query randomization since group-by
// hashing never crosses trust boundaries.
const (
	siphashK0 = 0x9ae16a3b2f90404f
	siphashK1 = 0xc3a5c85c97cb3127
)

// hashKey hashes the serialized representation of a group-by key
// (see encodeKeys below), grounded on the teacher's use of
// github.com/dchest/siphash on the non-SIMD build path
// (vm/siphash_generic.go).
func hashKey(key []byte) uint64 {
	return siphash.Hash(siphashK0, siphashK1, key)
}

// encodeKeys serializes row i of cols into a byte string usable as
// a map key and as the hash input, in column order. This is the
// "serialized" fallback representation (§4.B step 8 / §3
// "serialized key"); fixed-width methods reuse the same encoding
// since the Go implementation stores every method's keys in a
// map[string]*entry (see DESIGN.md's variants.go entry) rather than
// the teacher's specialized in-place layouts.
func encodeKeys(cols []Column, i int, buf []byte) []byte {
	for _, c := range cols {
		buf = encodeOne(c, i, buf)
	}
	return buf
}

func encodeOne(c Column, i int, buf []byte) []byte {
	if c.Null(i) {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	switch c.Type() {
	case TypeInt64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(c.Int64(i)))
		return append(buf, tmp[:]...)
	case TypeFloat64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(c.Float64(i)))
		return append(buf, tmp[:]...)
	case TypeBool:
		if c.Bool(i) {
			return append(buf, 1)
		}
		return append(buf, 0)
	case TypeString:
		s := c.String(i)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(s)))
		buf = append(buf, tmp[:]...)
		return append(buf, s...)
	case TypeBytes:
		b := c.Bytes(i)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(b)))
		buf = append(buf, tmp[:]...)
		return append(buf, b...)
	default:
		return buf
	}
}
