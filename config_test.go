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
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPresetAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	doc := `
maxRowsToGroupBy: 1000
overflowMode: any
twoLevelThresholdRows: 10000
twoLevelThresholdBytes: 1048576
keepState: true
windowKeysNum: 1
streamingWindowCount: 3
lowCardinality: true
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	preset, err := LoadPreset(path)
	if err != nil {
		t.Fatal(err)
	}
	var p Params
	if err := preset.Apply(&p); err != nil {
		t.Fatal(err)
	}
	if p.MaxRowsToGroupBy != 1000 {
		t.Errorf("MaxRowsToGroupBy = %d, want 1000", p.MaxRowsToGroupBy)
	}
	if p.OverflowMode != OverflowAny {
		t.Errorf("OverflowMode = %v, want any", p.OverflowMode)
	}
	if !p.KeepState {
		t.Error("KeepState = false, want true")
	}
	if p.StreamingWindowCount != 3 {
		t.Errorf("StreamingWindowCount = %d, want 3", p.StreamingWindowCount)
	}
	if !p.LowCardinality {
		t.Error("LowCardinality = false, want true")
	}
}

func TestPresetApplyRejectsUnknownOverflowMode(t *testing.T) {
	preset := Preset{OverflowMode: "explode"}
	var p Params
	if err := preset.Apply(&p); err == nil {
		t.Fatal("want an error for an unknown overflowMode")
	}
}

func TestLoadPresetMissingFile(t *testing.T) {
	if _, err := LoadPreset("/nonexistent/path/preset.yaml"); err == nil {
		t.Fatal("want an error for a missing preset file")
	}
}
