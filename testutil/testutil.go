package testutil

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Write is a single positional write in a generated workload.
type Write struct {
	Off  int64
	Data []byte
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Zipf returns a Zipfian-distributed value in [0, n).
// s=1.0 gives standard Zipf, s=1.5 gives a heavy tail.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}
	return n - 1
}

// Writes generates n writes of 1..maxLen bytes inside [0, size).
//
// Offsets are drawn from a Zipf distribution over 16 equal regions of the
// file, so a few hot regions receive most writes and overlaps are common.
func (r *RNG) Writes(n int, size int64, maxLen int) []Write {
	r.mu.Lock()
	defer r.mu.Unlock()

	const regions = 16
	regionSize := max(size/regions, 1)

	out := make([]Write, n)
	for i := range out {
		region := int64(r.zipfLocked(regions, 1.2))
		off := region*regionSize + r.rand.Int63n(regionSize)
		l := 1 + r.rand.Intn(maxLen)
		if off+int64(l) > size {
			l = int(size - off)
		}
		data := make([]byte, max(l, 1))
		_, _ = r.rand.Read(data)
		out[i] = Write{Off: min(off, size-1), Data: data}
	}
	return out
}

// Apply returns a copy of base with writes applied in order, growing it when
// a write ends past the current length.
func Apply(base []byte, writes []Write) []byte {
	out := append([]byte(nil), base...)
	for _, w := range writes {
		end := w.Off + int64(len(w.Data))
		if end > int64(len(out)) {
			out = append(out, make([]byte, end-int64(len(out)))...)
		}
		copy(out[w.Off:end], w.Data)
	}
	return out
}

// TempFile creates a file with content in a fresh temporary directory and
// returns its path.
func TempFile(t testing.TB, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}
