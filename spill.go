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
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/SnellerInc/streamagg/compr"
)

// spillMagic tags a temp file as a streamagg external group-by
// spill (§4.H).
var spillMagic = [4]byte{'s', 'a', 'g', '1'}

// Spill writes the aggregator's current state to a freshly created,
// compressed temp file under Params.TempDiskPath and clears the
// in-memory state (ActionWriteToTempFS always clears, §7). The
// returned path is the caller's responsibility to pass to Restore
// and eventually remove.
//
// Before writing, Spill checks that at least Params.MinFreeDiskSpace
// bytes are available on TempDiskPath's filesystem, returning
// ErrNotEnoughSpace otherwise (§4.H, §6).
func (a *Aggregator) Spill() (path string, err error) {
	if a.params.TempDiskPath == "" {
		return "", errf(KindLogicalError, "spill", "Params.TempDiskPath is empty")
	}
	if err := checkFreeSpace(a.params.TempDiskPath, a.params.MinFreeDiskSpace); err != nil {
		return "", err
	}

	blocks, err := a.Convert(ActionWriteToTempFS, workersUnbounded)
	if err != nil {
		return "", err
	}

	name := filepath.Join(a.params.TempDiskPath, "streamagg-spill-"+uuid.NewString()+".tmp")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := writeSpillFile(f, a.method, blocks); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// writeSpillFile writes the spill wire format: magic, method tag,
// uncompressed body length, compressed body length, then a
// zstd-compressed body holding the
// same block sequence Checkpoint writes (minus the version/inited
// header, since a spill file is always "inited").
func writeSpillFile(w io.Writer, m methodKind, blocks []*Block) error {
	var body bytes.Buffer
	writeU32(&body, uint32(len(blocks)))
	for _, blk := range blocks {
		writeBlock(&body, blk)
	}

	compressed := compr.Compression("zstd").Compress(body.Bytes(), nil)

	if _, err := w.Write(spillMagic[:]); err != nil {
		return err
	}
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(m))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(body.Len()))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(compressed)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// Restore reads a file previously written by Spill back into a
// fresh Aggregator, via the same block-replay path Recover uses.
// The caller is responsible for removing the file afterward.
func Restore(path string, p Params, funcs []Func) (*Aggregator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 16 || !bytes.Equal(data[:4], spillMagic[:]) {
		return nil, errf(KindLogicalError, "restore", "%s: not a streamagg spill file", path)
	}
	uncompressedLen := binary.LittleEndian.Uint32(data[8:12])
	compressedLen := binary.LittleEndian.Uint32(data[12:16])
	rest := data[16:]
	if uint32(len(rest)) < compressedLen {
		return nil, errf(KindLogicalError, "restore", "%s: truncated spill body", path)
	}

	body := make([]byte, uncompressedLen)
	if err := compr.Decompression("zstd").Decompress(rest[:compressedLen], body); err != nil {
		return nil, err
	}

	numBlocks, buf, err := readU32(body)
	if err != nil {
		return nil, err
	}
	a, err := NewAggregator(p, funcs)
	if err != nil {
		return nil, err
	}
	blocks := make([]*Block, 0, numBlocks)
	for i := uint32(0); i < numBlocks; i++ {
		var blk *Block
		blk, buf, err = readBlock(buf)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	if err := a.restoreBlocks(blocks); err != nil {
		return nil, err
	}
	return a, nil
}
