// Package persist implements the on-disk durability discipline shared by
// the index snapshot and the dimension sidecar: full rewrite to a temporary
// path, then an atomic rename over the canonical path. A reader never sees
// a partially written file.
package persist

import (
	"fmt"
	"os"
)

// WriteFileAtomic writes data to path via path+".tmp" and a rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
