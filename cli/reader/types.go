// Package reader provides the read side of the seam CLI.
//
// Everything here inspects merge targets without modifying them: no
// output is opened for writing and no state record is created or removed.
package reader

// Target kinds reported by Inspect.
const (
	KindFile      = "file"
	KindDirectory = "directory"
)

// StateView describes a file-mode target and its state record.
type StateView struct {
	Target    string `json:"target" yaml:"target"`
	StatePath string `json:"state_path" yaml:"state_path"`
	// StatePresent is true when a state file exists, whatever its size.
	StatePresent bool `json:"state_present" yaml:"state_present"`
	// StateValid is true when the state file has the expected length.
	StateValid   bool   `json:"state_valid" yaml:"state_valid"`
	Position     uint64 `json:"position" yaml:"position"`
	Flushed      uint64 `json:"flushed_bytes" yaml:"flushed_bytes"`
	OutputExists bool   `json:"output_exists" yaml:"output_exists"`
	OutputSize   int64  `json:"output_size" yaml:"output_size"`
	// Resumable is true when a merger built now would resume from Position.
	Resumable bool `json:"resumable" yaml:"resumable"`
	// Total is the expected segment count, 0 when unknown.
	Total    uint64  `json:"total,omitempty" yaml:"total,omitempty"`
	Complete bool    `json:"complete" yaml:"complete"`
	Progress float64 `json:"progress" yaml:"progress"`
	Status   string  `json:"status" yaml:"status"`
}

// DirView describes a directory-mode target.
type DirView struct {
	Target    string `json:"target" yaml:"target"`
	Extension string `json:"extension" yaml:"extension"`
	Present   int    `json:"present" yaml:"present"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
	// Highest is the largest index found, -1 when none.
	Highest int64  `json:"highest" yaml:"highest"`
	Total   uint64 `json:"total,omitempty" yaml:"total,omitempty"`
	// Missing lists absent indices below Total, capped at MaxMissing.
	Missing  []uint64 `json:"missing,omitempty" yaml:"missing,omitempty"`
	Complete bool     `json:"complete" yaml:"complete"`
	Progress float64  `json:"progress" yaml:"progress"`
	Status   string   `json:"status" yaml:"status"`
}

// Status values shared by StateView and DirView.
const (
	StatusEmpty      = "empty"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusStale      = "stale"
	StatusUnknown    = "unknown"
)

// MaxMissing caps DirView.Missing.
const MaxMissing = 32
