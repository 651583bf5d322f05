package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/viant/vec/search"

	"github.com/okibi/tansa/internal/persist"
)

// Snapshot header: magic, then dim(uint32), count(uint32), then per entry
// id(int64) followed by dim float32s, all little-endian.
var snapshotMagic = [8]byte{'T', 'N', 'S', 'V', 'E', 'C', '0', '1'}

// FlatIndex is an exact (non-approximate) inner-product index. Vectors are
// scanned with SIMD-accelerated cosine scoring; magnitudes are cached at
// insert time. Entries whose magnitude is zero are unreachable by search.
type FlatIndex struct {
	dim  int
	ids  []int64
	vecs [][]float32
	mags []float32
	mu   sync.RWMutex
}

// NewFlatIndex creates an empty index with the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dim returns the fixed vector dimension.
func (f *FlatIndex) Dim() int {
	return f.dim
}

// Count returns the number of stored vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Add appends vectors under the given ids. Vectors are copied.
func (f *FlatIndex) Add(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != f.dim {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), f.dim)
		}
		vec := make([]float32, f.dim)
		copy(vec, vectors[i])
		f.ids = append(f.ids, id)
		f.vecs = append(f.vecs, vec)
		f.mags = append(f.mags, search.Float32s(vec).Magnitude())
	}
	return nil
}

// Search returns up to k hits ranked by cosine similarity, descending.
// Exactly tied scores rank in insertion order. A zero-magnitude query
// matches nothing.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dim)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}
	qv := search.Float32s(query)
	qm := qv.Magnitude()
	if qm == 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(f.ids))
	for i := range f.vecs {
		if f.mags[i] == 0 {
			continue
		}
		score := 1 - float64(cosineDistanceWithMagnitude(qv, f.vecs[i], qm, f.mags[i]))
		if math.IsNaN(score) {
			continue
		}
		hits = append(hits, Hit{ID: f.ids[i], Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Remove drops the given ids, rebuilding the backing slices. Unknown ids
// are ignored.
func (f *FlatIndex) Remove(ctx context.Context, ids []int64) error {
	removeSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	newIDs := f.ids[:0]
	newVecs := f.vecs[:0]
	newMags := f.mags[:0]
	for i, id := range f.ids {
		if !removeSet[id] {
			newIDs = append(newIDs, id)
			newVecs = append(newVecs, f.vecs[i])
			newMags = append(newMags, f.mags[i])
		}
	}
	f.ids = newIDs
	f.vecs = newVecs
	f.mags = newMags
	return nil
}

// Save writes a snapshot of the index to path, atomically. The parent
// directory is created if needed.
func (f *FlatIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f.mu.RLock()
	data := f.marshal()
	f.mu.RUnlock()
	return persist.WriteFileAtomic(path, data, 0644)
}

func (f *FlatIndex) marshal() []byte {
	out := make([]byte, 0, len(snapshotMagic)+8+len(f.ids)*(8+4*f.dim))
	out = append(out, snapshotMagic[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(f.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(f.ids)))
	for i, id := range f.ids {
		out = binary.LittleEndian.AppendUint64(out, uint64(id))
		out = append(out, float32SliceToBytes(f.vecs[i])...)
	}
	return out
}

// Load reads a snapshot written by Save. A missing file surfaces as an
// error satisfying errors.Is(err, fs.ErrNotExist) so callers can fall
// through their recovery ladder.
func Load(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return unmarshal(data)
}

func unmarshal(data []byte) (*FlatIndex, error) {
	headerLen := len(snapshotMagic) + 8
	if len(data) < headerLen {
		return nil, fmt.Errorf("snapshot truncated: %d bytes", len(data))
	}
	if string(data[:len(snapshotMagic)]) != string(snapshotMagic[:]) {
		return nil, fmt.Errorf("snapshot has wrong magic %q", data[:len(snapshotMagic)])
	}
	off := len(snapshotMagic)
	dim := int(binary.LittleEndian.Uint32(data[off : off+4]))
	n := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
	off += 8
	if dim <= 0 {
		return nil, fmt.Errorf("snapshot records invalid dimension %d", dim)
	}
	// Divide rather than multiply: header fields are untrusted and their
	// product can wrap. Passing the check bounds n by the payload size.
	entry := 8 + 4*dim
	rem := len(data) - off
	if rem%entry != 0 || rem/entry != n {
		return nil, fmt.Errorf("snapshot truncated: %d entries recorded, %d payload bytes", n, rem)
	}

	idx := &FlatIndex{
		dim:  dim,
		ids:  make([]int64, 0, n),
		vecs: make([][]float32, 0, n),
		mags: make([]float32, 0, n),
	}
	for i := 0; i < n; i++ {
		id := int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		vec := bytesToFloat32Slice(data[off : off+4*dim])
		off += 4 * dim
		idx.ids = append(idx.ids, id)
		idx.vecs = append(idx.vecs, vec)
		idx.mags = append(idx.mags, search.Float32s(vec).Magnitude())
	}
	return idx, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
