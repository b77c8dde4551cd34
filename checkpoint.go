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
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/blake2b"
)

// checkpointVersion is the wire format version written by
// Checkpoint and checked by Recover (§4.I).
const checkpointVersion uint32 = 1

// Checkpoint serializes the aggregator's current state to w in the
// wire layout described by §4.I:
//
//	version:u32 | inited:u8 | num_aggregates:u16 | num_blocks:u32 | blocks... | checksum:32B
//
// States are always preserved (ActionCheckpoint never clears them,
// see Action.clearsStates), so the aggregator remains usable for
// further ExecuteBatch calls after Checkpoint returns.
func (a *Aggregator) Checkpoint(w io.Writer) error {
	blocks, err := a.convertPreserving(workersUnbounded)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writeU32(&body, checkpointVersion)
	inited := byte(0)
	if a.v != nil {
		inited = 1
	}
	body.WriteByte(inited)
	writeU16(&body, uint16(len(a.funcs)))
	writeU32(&body, uint32(len(blocks)))
	for _, blk := range blocks {
		writeBlock(&body, blk)
	}

	sum := blake2b.Sum256(body.Bytes())
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(sum[:])
	return err
}

// convertPreserving is Convert(ActionCheckpoint, ...) without
// consuming a.v, used by both Checkpoint and spill.go.
func (a *Aggregator) convertPreserving(workers int) ([]*Block, error) {
	if a.v == nil {
		return nil, nil
	}
	return a.Convert(ActionCheckpoint, workers)
}

// workersUnbounded tells Convert/MergeFrom to use GOMAXPROCS workers.
const workersUnbounded = 0

// Recover reconstructs an Aggregator from a checkpoint previously
// written by Checkpoint, verifying the trailing blake2b checksum
// and the aggregate count before restoring any state (§4.I:
// "a mismatched aggregate count ... fails the whole recovery").
func Recover(r io.Reader, p Params, funcs []Func) (*Aggregator, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 32 {
		return nil, errf(KindRecoverCheckpointFailed, "recover", "checkpoint too short (%d bytes)", len(data))
	}
	body, trailer := data[:len(data)-32], data[len(data)-32:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, errf(KindRecoverCheckpointFailed, "recover", "checksum mismatch")
	}

	buf := body
	version, buf, err := readU32(buf)
	if err != nil || version != checkpointVersion {
		return nil, errf(KindRecoverCheckpointFailed, "recover", "unsupported checkpoint version")
	}
	if len(buf) < 1 {
		return nil, errf(KindRecoverCheckpointFailed, "recover", "truncated checkpoint header")
	}
	inited := buf[0]
	buf = buf[1:]
	numAggregates, buf, err := readU16(buf)
	if err != nil {
		return nil, err
	}
	if int(numAggregates) != len(funcs) {
		return nil, errf(KindRecoverCheckpointFailed, "recover", "checkpoint has %d aggregates, caller supplied %d", numAggregates, len(funcs))
	}
	numBlocks, buf, err := readU32(buf)
	if err != nil {
		return nil, err
	}

	a, err := NewAggregator(p, funcs)
	if err != nil {
		return nil, err
	}
	if inited == 0 {
		return a, nil
	}

	blocks := make([]*Block, 0, numBlocks)
	for i := uint32(0); i < numBlocks; i++ {
		var blk *Block
		blk, buf, err = readBlock(buf)
		if err != nil {
			return nil, errf(KindRecoverCheckpointFailed, "recover", "block %d: %v", i, err)
		}
		blocks = append(blocks, blk)
	}
	if err := a.restoreBlocks(blocks); err != nil {
		return nil, errf(KindRecoverCheckpointFailed, "recover", "%v", err)
	}
	return a, nil
}

// restoreBlocks rebuilds a.v from intermediate blocks previously
// produced by Convert with a non-final Action (checkpoint, spill,
// or distributed-merge transport), deserializing each aggregate's
// state via Func.Deserialize (§4.I's three restore shapes --
// without-key, single-level, two-level -- all reduce to "replay
// every row of every block through emplace+Deserialize").
func (a *Aggregator) restoreBlocks(blocks []*Block) error {
	for _, blk := range blocks {
		if err := a.restoreBlock(blk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) restoreBlock(blk *Block) error {
	nk := len(a.params.GroupKeyCols)
	rows := blk.Rows()
	if rows == 0 {
		return nil
	}
	if a.keyInfo == nil {
		a.keyInfo = make([]keyTypeInfo, nk)
		for i := 0; i < nk; i++ {
			a.keyInfo[i] = keyTypeInfo{Type: blk.Types[i]}
			if blk.Types[i] != TypeString && blk.Types[i] != TypeBytes {
				a.keyInfo[i].FixedSize = 8
			}
		}
		a.method = chooseMethod(a.keyInfo, &a.params)
	}
	if a.v == nil {
		a.v = newVariants(a, a.method)
	}

	var keybuf []byte
	for r := 0; r < rows; r++ {
		keybuf = keybuf[:0]
		for i := 0; i < nk; i++ {
			keybuf = encodeOne(blk.Columns[i].(Column), r, keybuf)
		}
		hash := hashKey(keybuf)

		if blk.IsOverflow {
			e, err := a.v.overflowEntry()
			if err != nil {
				return err
			}
			if err := deserializeInto(e.Place, blk, r, nk, a.funcs, a.layout); err != nil {
				return err
			}
			a.v.setNoMoreKeys()
			continue
		}

		e, _, err := a.v.T.emplace(keybuf, hash, func() ([]byte, error) {
			return createPlace(a.v.Arena, a.layout, a.funcs)
		})
		if err != nil {
			return err
		}
		if err := deserializeInto(e.Place, blk, r, nk, a.funcs, a.layout); err != nil {
			return err
		}
	}
	return nil
}

// deserializeInto merges row r's serialized aggregate state columns
// (produced by appendAggregateValues in non-final mode) into place,
// via Merge rather than overwrite, so restoring the same group from
// two different blocks (two-level restore, one block per bucket)
// accumulates correctly.
func deserializeInto(place []byte, blk *Block, row int, nk int, funcs []Func, l layout) error {
	scratch := make([]byte, l.size)
	for i, f := range funcs {
		raw := blk.Columns[nk+i].(interface{ Bytes(int) []byte }).Bytes(row)
		// Deserialize expects an already-initialized state (§4.C:
		// "into a freshly Create'd place"), so Create a scratch slot,
		// deserialize into it, then Merge that slot into place --
		// this lets restoring the same group from multiple blocks
		// (one per source bucket) accumulate rather than overwrite.
		if err := f.Create(l.slot(scratch, i)); err != nil {
			return err
		}
		if _, err := f.Deserialize(l.slot(scratch, i), raw); err != nil {
			f.Destroy(l.slot(scratch, i))
			return err
		}
		f.Merge(l.slot(place, i), l.slot(scratch, i))
		f.Destroy(l.slot(scratch, i))
	}
	return nil
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}
func writeU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}
func readU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, buf, errf(KindRecoverCheckpointFailed, "recover", "truncated u32")
	}
	return binary.LittleEndian.Uint32(buf), buf[4:], nil
}
func readU16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, buf, errf(KindRecoverCheckpointFailed, "recover", "truncated u16")
	}
	return binary.LittleEndian.Uint16(buf), buf[2:], nil
}

// writeBlock appends blk's wire encoding to b: flags byte, bucket
// number, column count, each column's type and name, row count, then
// every cell in row-major order using the same tagged grammar as
// encodeOne/decodeKeyValue.
func writeBlock(b *bytes.Buffer, blk *Block) {
	b.WriteByte(blk.flagsByte())
	var bn [4]byte
	binary.LittleEndian.PutUint32(bn[:], uint32(blk.BucketNum))
	b.Write(bn[:])
	writeU16(b, uint16(len(blk.Columns)))
	for i, name := range blk.Names {
		b.WriteByte(byte(blk.Types[i]))
		writeU16(b, uint16(len(name)))
		b.WriteString(name)
	}
	rows := blk.Rows()
	writeU32(b, uint32(rows))
	for r := 0; r < rows; r++ {
		for _, col := range blk.Columns {
			b.Write(encodeOne(col.(Column), r, nil))
		}
	}
}

func readBlock(buf []byte) (*Block, []byte, error) {
	if len(buf) < 1+4+2 {
		return nil, buf, errf(KindRecoverCheckpointFailed, "recover", "truncated block header")
	}
	flags := buf[0]
	bucketNum := int32(binary.LittleEndian.Uint32(buf[1:5]))
	numCols, buf, err := readU16(buf[5:])
	if err != nil {
		return nil, buf, err
	}
	blk := &Block{BucketNum: bucketNum, IsOverflow: flags&1 != 0}
	for i := 0; i < int(numCols); i++ {
		if len(buf) < 1 {
			return nil, buf, errf(KindRecoverCheckpointFailed, "recover", "truncated column header")
		}
		typ := ColumnType(buf[0])
		buf = buf[1:]
		var nameLen uint16
		nameLen, buf, err = readU16(buf)
		if err != nil {
			return nil, buf, err
		}
		if len(buf) < int(nameLen) {
			return nil, buf, errf(KindRecoverCheckpointFailed, "recover", "truncated column name")
		}
		name := string(buf[:nameLen])
		buf = buf[nameLen:]
		blk.Names = append(blk.Names, name)
		blk.Types = append(blk.Types, typ)
		blk.Columns = append(blk.Columns, newSliceColumn(typ))
	}
	numRows, buf, err := readU32(buf)
	if err != nil {
		return nil, buf, err
	}
	for r := uint32(0); r < numRows; r++ {
		for i := range blk.Columns {
			buf = decodeKeyValue(buf, blk.Types[i], blk.Columns[i])
		}
	}
	return blk, buf, nil
}

func (b *Block) flagsByte() byte {
	if b.IsOverflow {
		return 1
	}
	return 0
}
