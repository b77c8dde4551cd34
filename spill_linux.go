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

// checkFreeSpace returns ErrNotEnoughSpace if dir's filesystem has
// fewer than min bytes available (§4.H, §6: "the spill path must be
// checked for available space before writing").
func checkFreeSpace(dir string, min int64) error {
	if min <= 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return err
	}
	avail := int64(st.Bavail) * int64(st.Bsize)
	if avail < min {
		return errf(KindNotEnoughSpace, "spill", "%s has %d bytes free, need %d", dir, avail, min)
	}
	return nil
}
