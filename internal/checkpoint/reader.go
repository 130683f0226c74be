package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Load reads a state dictionary written by Save. The data-section
// checksum is always verified.
func Load(path string) (map[string]*tensor.RawTensor, *Header, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(blob) < fixedPrefixSize {
		return nil, nil, fmt.Errorf("%w: file too short", ErrInvalidMagic)
	}
	if string(blob[:4]) != Magic {
		return nil, nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(blob[4:8]); v != FormatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	var stored [32]byte
	copy(stored[:], blob[12:44])

	headerSize := binary.LittleEndian.Uint64(blob[44:52])
	if headerSize > maxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	headerEnd := uint64(fixedPrefixSize) + headerSize
	if headerEnd > uint64(len(blob)) {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrOutOfBounds)
	}

	var header Header
	if err := json.Unmarshal(blob[fixedPrefixSize:headerEnd], &header); err != nil {
		return nil, nil, fmt.Errorf("decode header: %w", err)
	}

	dataStart := (headerEnd + DataAlignment - 1) / DataAlignment * DataAlignment
	if dataStart > uint64(len(blob)) {
		return nil, nil, fmt.Errorf("%w: missing data section", ErrOutOfBounds)
	}
	data := blob[dataStart:]

	if sha256.Sum256(data) != stored {
		return nil, nil, ErrChecksumMismatch
	}

	stateDict := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > int64(len(data)) {
			return nil, nil, fmt.Errorf("%w: tensor %q", ErrOutOfBounds, meta.Name)
		}
		n := int(meta.Size / 4)
		values := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[meta.Offset+int64(i)*4:])
			values[i] = math.Float32frombits(bits)
		}
		raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), values)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, &header, nil
}
