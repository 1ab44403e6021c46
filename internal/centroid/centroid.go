// Package centroid scores predicted spans against consensus regions built
// from overlapping gold spans.
//
// For every annotation type the gold spans vote on the offsets they cover.
// A left-to-right sweep over those votes groups each contiguous rise and
// fall into a Centroid: the rising edge is the run of plausible start
// offsets, the falling edge the run of plausible end offsets, and the size
// of each step (the diff) is the confidence of that boundary. A prediction
// is a true positive when both of its boundaries land on the same centroid
// with enough confidence.
package centroid

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Edge is one step of a centroid boundary: the offset where the vote count
// changed and the magnitude of that change.
type Edge struct {
	Offset int
	Diff   int
}

// Bounds is a pair of offsets delimiting a region. End is inclusive.
type Bounds struct {
	Start int
	End   int
}

// Centroid is the consensus region formed by one contiguous run of
// overlapping gold spans of a single type.
//
// A Centroid is immutable once its vote table has been built, except for
// its type tag which is set when a prediction matches it. The tag is
// guarded by a mutex so concurrent evaluations may share a centroid.
type Centroid struct {
	id    int
	left  []Edge
	right []Edge
	// peak is the vote count at the last left offset.
	peak int

	mu  sync.Mutex
	typ string
}

// ID returns the index of the centroid within its annotation type.
func (c *Centroid) ID() int { return c.id }

// Left returns the rising edge in ascending offset order.
func (c *Centroid) Left() []Edge { return slices.Clone(c.left) }

// Right returns the falling edge in ascending offset order.
func (c *Centroid) Right() []Edge { return slices.Clone(c.right) }

// Votes returns the number of gold spans covering the centroid's peak.
func (c *Centroid) Votes() int { return c.peak }

// Min returns the innermost boundary consistent with every gold span of the
// centroid: the last rising offset and the first falling offset.
func (c *Centroid) Min() Bounds {
	return Bounds{Start: c.left[len(c.left)-1].Offset, End: c.right[0].Offset}
}

// Max returns the outermost boundary: the first rising offset and the last
// falling offset.
func (c *Centroid) Max() Bounds {
	return Bounds{Start: c.left[0].Offset, End: c.right[len(c.right)-1].Offset}
}

// SinglePeak reports whether the rising edge ends strictly before the
// falling edge begins.
func (c *Centroid) SinglePeak() bool {
	if len(c.left) == 0 || len(c.right) == 0 {
		return false
	}
	return c.left[len(c.left)-1].Offset < c.right[0].Offset
}

// Type returns the label of the last prediction that matched the centroid,
// or "" if nothing has matched it yet.
func (c *Centroid) Type() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typ
}

func (c *Centroid) tag(typ string) {
	c.mu.Lock()
	c.typ = typ
	c.mu.Unlock()
}

// String renders the centroid as offset:diff pairs. Falling offsets are
// printed as exclusive span ends.
func (c *Centroid) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "centroid(type=%q left=[", c.Type())
	for i, e := range c.left {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%d", e.Offset, e.Diff)
	}
	b.WriteString("] right=[")
	for i, e := range c.right {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%d", e.Offset+1, e.Diff)
	}
	b.WriteString("])")
	return b.String()
}

// offsets returns the offsets of edges whose diff reaches minDiff.
func offsets(edges []Edge, minDiff int) []int {
	out := make([]int, 0, len(edges))
	for _, e := range edges {
		if e.Diff >= minDiff {
			out = append(out, e.Offset)
		}
	}
	return out
}
