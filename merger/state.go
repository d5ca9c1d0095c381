package merger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/pithecene-io/seam/iox"
)

// StateExt is appended to an output path to name its state record.
const StateExt = ".vsdstate"

// StateSize is the exact length of a valid state record.
const StateSize = 16

// StateFormat names the record layout: position then flushed byte count,
// each a big-endian uint64.
const StateFormat = "u64be-position,u64be-flushed"

// ErrInvalidState is returned when decoding a record of the wrong length.
var ErrInvalidState = errors.New("invalid state record")

// State is the resume record for a file-mode merge: the write cursor and
// the number of bytes durably in the output.
//
// Encoded as two big-endian uint64 values, cursor first.
type State struct {
	Position uint64
	Flushed  uint64
}

// StatePath returns the state record path for an output file
// ("out.ts" -> "out.ts.vsdstate").
func StatePath(output string) string {
	return output + StateExt
}

// MarshalBinary encodes the record.
func (s State) MarshalBinary() ([]byte, error) {
	data := make([]byte, StateSize)
	binary.BigEndian.PutUint64(data[0:8], s.Position)
	binary.BigEndian.PutUint64(data[8:16], s.Flushed)
	return data, nil
}

// UnmarshalBinary decodes a record. Anything but exactly StateSize bytes
// is rejected.
func (s *State) UnmarshalBinary(data []byte) error {
	if len(data) != StateSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidState, len(data), StateSize)
	}
	s.Position = binary.BigEndian.Uint64(data[0:8])
	s.Flushed = binary.BigEndian.Uint64(data[8:16])
	return nil
}

// ReadState loads the record at path. A missing, unreadable or
// wrong-length record reports ok=false: there is nothing to resume.
func ReadState(path string) (state State, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, false
	}
	if err := state.UnmarshalBinary(data); err != nil {
		return State{}, false
	}
	return state, true
}

// writeState replaces the record at path atomically.
func writeState(path string, s State) error {
	data, _ := s.MarshalBinary()
	return wrapStorage("state_write", path, iox.WriteFileAtomic(path, data, 0o644))
}

// removeState deletes the record at path; a missing record is not an error.
func removeState(path string) error {
	return wrapStorage("state_remove", path, iox.RemoveIfExists(path))
}
