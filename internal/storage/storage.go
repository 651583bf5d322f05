// Package storage is the metadata store: one SQLite table of chunk rows
// whose autoincrement primary keys double as vector-index ids.
package storage

import (
	"errors"
	"os"
)

// ErrNotFound is returned when a requested chunk row does not exist.
var ErrNotFound = errors.New("chunk not found")

// Remove deletes the database file and its WAL siblings. Missing files
// are not an error, so Remove is safe on a fresh data directory.
func Remove(dbPath string) error {
	for _, p := range append([]string{dbPath}, auxPaths(dbPath)...) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// auxPaths returns the -wal and -shm sibling paths SQLite creates in WAL mode.
func auxPaths(dbPath string) []string {
	return []string{dbPath + "-wal", dbPath + "-shm"}
}
