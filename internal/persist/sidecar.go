package persist

import (
	"encoding/json"
	"fmt"
	"os"
)

// sidecarMeta is the JSON body of the dimension sidecar file.
type sidecarMeta struct {
	Dim int `json:"dim"`
}

// SaveDim atomically records the fixed embedding dimension at path.
func SaveDim(path string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	data, err := json.Marshal(sidecarMeta{Dim: dim})
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0644)
}

// LoadDim reads the recorded dimension. A missing file returns ok=false
// with no error. A file that exists but cannot be parsed, or that records
// a non-positive dimension, returns ok=false with the parse error so the
// caller can log it and start dimensionless.
func LoadDim(path string) (dim int, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var meta sidecarMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, false, fmt.Errorf("malformed sidecar %s: %w", path, err)
	}
	if meta.Dim <= 0 {
		return 0, false, fmt.Errorf("sidecar %s records invalid dimension %d", path, meta.Dim)
	}
	return meta.Dim, true, nil
}
