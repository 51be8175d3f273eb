package loom

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/JoshMcguigan/loom/trail"
)

// loadTrail reads a checkpointed trail from path. A missing file is not an
// error: exploration simply starts from the beginning.
func loadTrail(path string) (*trail.Trail, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loom: reading checkpoint: %w", err)
	}
	tr := trail.New()
	if err := json.Unmarshal(data, tr); err != nil {
		return nil, fmt.Errorf("loom: decoding checkpoint %v: %w", path, err)
	}
	tr.Rewind()
	return tr, nil
}

// storeTrail writes the trail to path, replacing any previous checkpoint.
func storeTrail(tr *trail.Trail, path string) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("loom: encoding checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("loom: writing checkpoint: %w", err)
	}
	return nil
}
