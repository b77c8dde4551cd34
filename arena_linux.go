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

import "golang.org/x/sys/unix"

// releaseChunk hints to the kernel that a reclaimed chunk's pages
// can be dropped immediately rather than paged out later, mirroring
// vm/malloc.go's MADV_FREE call on full-page release. Chunks here
// are plain heap slices rather than an mmap'd region, so a failure
// is harmless and ignored: it only affects when the pages are
// actually reclaimed, never correctness.
func releaseChunk(buf []byte) {
	if len(buf) == 0 {
		return
	}
	_ = unix.Madvise(buf, unix.MADV_FREE)
}
