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

import "fmt"

// Kind identifies one of the engine's error categories.
type Kind int

const (
	KindUnknownVariant Kind = iota
	KindNotEnoughSpace
	KindTooManyRows
	KindEmptyData
	KindCannotMergeDifferentVariants
	KindLogicalError
	KindRecoverCheckpointFailed
	KindAggregateNotApplicable
)

func (k Kind) String() string {
	switch k {
	case KindUnknownVariant:
		return "unknown_variant"
	case KindNotEnoughSpace:
		return "not_enough_space"
	case KindTooManyRows:
		return "too_many_rows"
	case KindEmptyData:
		return "empty_data"
	case KindCannotMergeDifferentVariants:
		return "cannot_merge_different_variants"
	case KindLogicalError:
		return "logical_error"
	case KindRecoverCheckpointFailed:
		return "recover_checkpoint_failed"
	case KindAggregateNotApplicable:
		return "aggregate_not_applicable"
	default:
		return fmt.Sprintf("<Kind=%d>", int(k))
	}
}

// Error is the error type returned from engine operations.
// At carries the component where the error originated,
// for diagnostics.
type Error struct {
	Kind Kind
	At   string
	Msg  string
}

func (e *Error) Error() string {
	if e.At != "" {
		return fmt.Sprintf("%s: %s: %s", e.At, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func errf(kind Kind, at, f string, args ...any) error {
	return &Error{Kind: kind, At: at, Msg: fmt.Sprintf(f, args...)}
}

// Is allows errors.Is(err, streamagg.ErrTooManyRows) etc. to work
// against wrapped *Error values that share a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors, one per Kind, for errors.Is matching.
var (
	ErrUnknownVariant              = &Error{Kind: KindUnknownVariant, Msg: "unknown variant"}
	ErrNotEnoughSpace              = &Error{Kind: KindNotEnoughSpace, Msg: "not enough space"}
	ErrTooManyRows                 = &Error{Kind: KindTooManyRows, Msg: "too many rows"}
	ErrEmptyData                   = &Error{Kind: KindEmptyData, Msg: "empty data"}
	ErrCannotMergeDifferentVariants = &Error{Kind: KindCannotMergeDifferentVariants, Msg: "cannot merge different variants"}
	ErrLogical                     = &Error{Kind: KindLogicalError, Msg: "logical error"}
	ErrRecoverCheckpointFailed     = &Error{Kind: KindRecoverCheckpointFailed, Msg: "recover checkpoint failed"}
	ErrAggregateNotApplicable      = &Error{Kind: KindAggregateNotApplicable, Msg: "aggregate not applicable"}
)
