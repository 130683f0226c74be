package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Save writes a state dictionary to path. training may be nil for plain
// weight exports. The file is written atomically via a temp file rename.
func Save(path string, stateDict map[string]*tensor.RawTensor, training *TrainingMeta) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Training:      training,
	}

	// Lay out the data section and encode it.
	var offset int64
	var data []byte
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.NumElements()) * 4
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size

		buf := make([]byte, size)
		for i, v := range raw.Data() {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		data = append(data, buf...)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if len(headerJSON) > maxHeaderSize {
		return ErrHeaderTooLarge
	}

	checksum := sha256.Sum256(data)

	var flags uint32
	if training != nil && training.Optimizer != "" {
		flags |= FlagHasOptimizer
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp)

	write := func(v any) {
		if err == nil {
			err = binary.Write(f, binary.LittleEndian, v)
		}
	}
	write([]byte(Magic))
	write(uint32(FormatVersion))
	write(flags)
	write(checksum)
	write(uint64(len(headerJSON)))
	write(headerJSON)

	pos := int64(fixedPrefixSize + len(headerJSON))
	if pad := (DataAlignment - pos%DataAlignment) % DataAlignment; pad > 0 {
		write(make([]byte, pad))
	}
	write(data)

	if err != nil {
		f.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}
