package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okibi/tansa/internal/models"
)

// SQLiteStore holds chunk rows in a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// InsertChunks inserts one document generation in a transaction and returns
// the assigned primary keys in chunk order. The shared metadata map is
// marshaled once and stored on every row.
func (s *SQLiteStore) InsertChunks(ctx context.Context, docID string, metadata map[string]interface{}, chunks []models.Chunk) ([]int64, error) {
	metadataJSON := "{}"
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (doc_id, chunk_index, text, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now()
	ids := make([]int64, 0, len(chunks))
	for _, chunk := range chunks {
		res, err := stmt.ExecContext(ctx, docID, chunk.ChunkIndex, chunk.Text, metadataJSON, now)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ChunkIDs returns the primary keys of all chunks belonging to docID,
// ascending. An unknown docID yields an empty slice, not an error.
func (s *SQLiteStore) ChunkIDs(ctx context.Context, docID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE doc_id = ? ORDER BY id`, docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunk returns a chunk row by primary key. A metadata_json value that
// fails to parse degrades to an empty map rather than failing the read.
func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*models.StoredChunk, error) {
	var chunk models.StoredChunk
	var metadataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, doc_id, chunk_index, text, metadata_json, created_at
		 FROM chunks WHERE id = ?`, id,
	).Scan(&chunk.ID, &chunk.DocID, &chunk.ChunkIndex, &chunk.Text, &metadataJSON, &chunk.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
			chunk.Metadata = nil
		}
	}
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]interface{}{}
	}
	return &chunk, nil
}

// DeleteDocument removes all chunks for docID and returns how many rows went.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountDocuments returns the number of distinct doc_ids.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT doc_id) FROM chunks`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunk rows.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
