// Package checkpoint persists model and optimizer state dictionaries in
// the .cap binary format:
//
//	[0x00] magic "CAPT"
//	[0x04] format version (uint32 LE)
//	[0x08] flags (uint32 LE)
//	[0x0C] SHA-256 checksum of the data section (32 bytes)
//	[0x2C] header size (uint64 LE)
//	[0x34] JSON header
//	       padding to a 64-byte boundary
//	       tensor data: float32 little-endian payloads at the header's
//	       offsets
package checkpoint

import "time"

const (
	// Magic identifies a .cap file.
	Magic = "CAPT"
	// FormatVersion is the current format revision.
	FormatVersion = 1
	// DataAlignment aligns the data section start.
	DataAlignment = 64

	fixedPrefixSize = 4 + 4 + 4 + 32 + 8
	maxHeaderSize   = 64 << 20
)

// Flags in the fixed header.
const (
	// FlagHasOptimizer marks a checkpoint carrying optimizer state.
	FlagHasOptimizer uint32 = 1 << 0
)

// Header is the JSON header of a .cap file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Training      *TrainingMeta     `json:"training,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TrainingMeta records the training position a checkpoint was taken at.
type TrainingMeta struct {
	Epoch              int     `json:"epoch"`
	Loss               float64 `json:"loss"`
	TeacherForcingRate float32 `json:"teacher_forcing_rate"`
	Optimizer          string  `json:"optimizer,omitempty"`
}

// TensorMeta locates one tensor inside the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}
