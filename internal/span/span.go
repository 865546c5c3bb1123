// Package span provides byte ranges over a file and the coverage bookkeeping
// used when capturing pre-images.
package span

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Range is a half-open byte interval [Off, Off+Len).
type Range struct {
	Off int64
	Len int64
}

// End returns the first offset past the range.
func (r Range) End() int64 { return r.Off + r.Len }

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	if r.Len == 0 || o.Len == 0 {
		return false
	}
	return r.Off < o.End() && o.Off < r.End()
}

// Normalize sorts ranges by offset and merges overlapping or adjacent ones.
// Empty ranges are dropped. The input slice is not modified.
func Normalize(ranges []Range) []Range {
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Len > 0 {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.SortFunc(out, func(a, b Range) int {
		switch {
		case a.Off < b.Off:
			return -1
		case a.Off > b.Off:
			return 1
		default:
			return 0
		}
	})

	merged := out[:1]
	for _, r := range out[1:] {
		last := &merged[len(merged)-1]
		if r.Off <= last.End() {
			if r.End() > last.End() {
				last.Len = r.End() - last.Off
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// AnyOverlap reports whether any range in a overlaps any range in b.
func AnyOverlap(a, b []Range) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Overlaps(y) {
				return true
			}
		}
	}
	return false
}

// Coverage tracks which bytes have been seen so far.
// It is not safe for concurrent use.
type Coverage struct {
	rb *roaring64.Bitmap
}

// NewCoverage returns an empty coverage set.
func NewCoverage() *Coverage {
	return &Coverage{rb: roaring64.New()}
}

// Add marks every byte of r as covered.
func (c *Coverage) Add(r Range) {
	if r.Len <= 0 {
		return
	}
	c.rb.AddRange(uint64(r.Off), uint64(r.End()))
}

// Uncovered returns the sub-ranges of r that are not yet covered, in
// ascending order.
func (c *Coverage) Uncovered(r Range) []Range {
	if r.Len <= 0 {
		return nil
	}
	want := roaring64.New()
	want.AddRange(uint64(r.Off), uint64(r.End()))
	want.AndNot(c.rb)

	card := want.GetCardinality()
	switch {
	case card == 0:
		return nil
	case card == uint64(r.Len):
		return []Range{r}
	}

	// Partial overlap: walk the remaining bytes and collapse them into runs.
	var out []Range
	it := want.Iterator()
	for it.HasNext() {
		v := int64(it.Next())
		if n := len(out); n > 0 && out[n-1].End() == v {
			out[n-1].Len++
			continue
		}
		out = append(out, Range{Off: v, Len: 1})
	}
	return out
}

// Claim returns the uncovered sub-ranges of r and marks all of r covered.
func (c *Coverage) Claim(r Range) []Range {
	free := c.Uncovered(r)
	c.Add(r)
	return free
}
