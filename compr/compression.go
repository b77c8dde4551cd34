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

// Package compr wraps the zstd codec spill files are written with
// (§4.H; checkpoints are not compressed): a single named algorithm rather than
// the teacher's multi-codec selector, since nothing in this engine
// writes or reads any format but zstd.
package compr

import (
	"fmt"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// Compressor appends the compressed contents of src to dst.
type Compressor interface {
	Name() string
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses src into dst, erroring if dst is not
// exactly the size of the encoded source data. It must be safe to
// call Decompress concurrently from multiple goroutines.
type Decompressor interface {
	Name() string
	Decompress(src, dst []byte) error
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (zstdCompressor) Name() string { return "zstd" }

// zstdDecoder is shared across every Decompression("zstd") caller;
// the decoder is safe for concurrent DecodeAll calls per its own
// contract, and constructing one is too expensive to do per block.
var zstdDecoder *zstd.Decoder

func init() {
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor zstd.Decoder

func (*zstdDecompressor) Name() string { return "zstd" }

func (z *zstdDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := (*zstd.Decoder)(z).DecodeAll(src, into)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("expected %d bytes decompressed; got %d", len(dst), len(ret))
	}
	if &ret[0] != &dst[0] {
		return fmt.Errorf("zstd decompress: output buffer realloc'd")
	}
	return nil
}

// Compression returns the zstd Compressor; name must be "zstd".
func Compression(name string) Compressor {
	if name != "zstd" {
		return nil
	}
	z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	return zstdCompressor{z}
}

// Decompression returns the shared zstd Decompressor; name must be
// "zstd".
func Decompression(name string) Decompressor {
	if name != "zstd" {
		return nil
	}
	return (*zstdDecompressor)(zstdDecoder)
}
