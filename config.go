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

	"sigs.k8s.io/yaml"
)

// Preset is the YAML-serializable subset of Params: the knobs an
// operator tunes per deployment, as opposed to the per-query schema
// and aggregate list that only a program can supply (§6 "External
// Interfaces", "operational tuning lives in a config file; query
// shape does not").
type Preset struct {
	MaxRowsToGroupBy int    `json:"maxRowsToGroupBy"`
	OverflowMode     string `json:"overflowMode"` // throw | break | any

	TwoLevelThresholdRows  int `json:"twoLevelThresholdRows"`
	TwoLevelThresholdBytes int `json:"twoLevelThresholdBytes"`

	MaxBytesBeforeExternalGroupBy int64  `json:"maxBytesBeforeExternalGroupBy"`
	MinFreeDiskSpace              int64  `json:"minFreeDiskSpace"`
	TempDiskPath                  string `json:"tempDiskPath"`

	KeepState bool `json:"keepState"`

	WindowKeysNum        int `json:"windowKeysNum"`
	StreamingWindowCount int `json:"streamingWindowCount"`

	LowCardinality bool `json:"lowCardinality"`
}

// LoadPreset reads a Preset from a YAML file (§6: presets are
// deployed as plain YAML next to the binary, matching the sibling
// repos' sigs.k8s.io/yaml-based config loading).
func LoadPreset(path string) (Preset, error) {
	var p Preset
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, errf(KindLogicalError, "config", "parsing %s: %v", path, err)
	}
	return p, nil
}

// Apply copies the preset's fields onto p, leaving fields Preset
// does not cover (schema, aggregates, group-by kind, logger)
// untouched.
func (preset Preset) Apply(p *Params) error {
	p.MaxRowsToGroupBy = preset.MaxRowsToGroupBy
	switch preset.OverflowMode {
	case "", "throw":
		p.OverflowMode = OverflowThrow
	case "break":
		p.OverflowMode = OverflowBreak
	case "any":
		p.OverflowMode = OverflowAny
	default:
		return errf(KindLogicalError, "config", "unknown overflowMode %q", preset.OverflowMode)
	}
	p.TwoLevelThresholdRows = preset.TwoLevelThresholdRows
	p.TwoLevelThresholdBytes = preset.TwoLevelThresholdBytes
	p.MaxBytesBeforeExternalGroupBy = preset.MaxBytesBeforeExternalGroupBy
	p.MinFreeDiskSpace = preset.MinFreeDiskSpace
	p.TempDiskPath = preset.TempDiskPath
	p.KeepState = preset.KeepState
	p.WindowKeysNum = preset.WindowKeysNum
	p.StreamingWindowCount = preset.StreamingWindowCount
	p.LowCardinality = preset.LowCardinality
	return nil
}
