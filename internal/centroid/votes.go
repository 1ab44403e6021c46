package centroid

import (
	"iter"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// noCentroid marks a vote record that is not covered by any centroid.
const noCentroid = -1

// voteRecord is the per-offset state of a vote table.
type voteRecord struct {
	offset int
	// votes is the number of gold spans covering offset.
	votes int
	// diff is |votes - votes of the previous record|.
	diff int
	// centroid indexes voteTable.centroids, or noCentroid.
	centroid int
}

// voteTable accumulates the gold votes of one annotation type and the
// centroids swept out of them.
//
// Records are kept in insertion order. The sweep relies on that order being
// ascending by offset, which holds as long as annotations are added sorted
// by start: every offset a later span introduces lies past all offsets
// already present.
type voteTable struct {
	typ       string
	index     map[int]int
	records   []voteRecord
	centroids []*Centroid
}

func newVoteTable(typ string) *voteTable {
	return &voteTable{
		typ:   typ,
		index: make(map[int]int),
	}
}

// record returns the position of the record for offset, creating it if
// needed. Positions stay valid; pointers into records do not survive a
// later call.
func (vt *voteTable) record(offset int) int {
	if i, ok := vt.index[offset]; ok {
		return i
	}
	vt.records = append(vt.records, voteRecord{offset: offset, centroid: noCentroid})
	i := len(vt.records) - 1
	vt.index[offset] = i
	return i
}

func (vt *voteTable) lookup(offset int) (voteRecord, bool) {
	i, ok := vt.index[offset]
	if !ok {
		return voteRecord{}, false
	}
	return vt.records[i], true
}

// addAnnotation casts one vote on every offset in [Start, End-1) and makes
// sure a record exists at End-1 so the fall back to zero after the span is
// visible to the sweep.
func (vt *voteTable) addAnnotation(ann domain.Annotation) {
	for off := ann.Start; off < ann.End-1; off++ {
		vt.records[vt.record(off)].votes++
	}
	vt.record(ann.End - 1)
}

// collectCentroids sweeps the records once, opening a centroid whenever the
// vote count leaves zero, extending its left edge while votes rise and its
// right edge while they fall. Every record visited while a centroid is open
// is linked back to it.
func (vt *voteTable) collectCentroids() {
	vt.centroids = vt.centroids[:0]
	current := noCentroid
	prev := 0

	for i := range vt.records {
		r := &vt.records[i]
		if prev == 0 && r.votes == 0 {
			current = noCentroid
		}
		r.diff = abs(r.votes - prev)

		switch {
		case prev == 0 && r.votes >= 1:
			current = len(vt.centroids)
			vt.centroids = append(vt.centroids, &Centroid{id: current})
			vt.rise(current, *r)
		case r.votes > prev:
			vt.rise(current, *r)
		case r.votes < prev:
			c := vt.centroids[current]
			c.right = append(c.right, Edge{Offset: r.offset, Diff: r.diff})
		}

		if current != noCentroid {
			r.centroid = current
		}
		prev = r.votes
	}
}

func (vt *voteTable) rise(id int, r voteRecord) {
	c := vt.centroids[id]
	c.left = append(c.left, Edge{Offset: r.offset, Diff: r.diff})
	c.peak = r.votes
}

// validate fails on the first centroid that rises again after falling.
func (vt *voteTable) validate() error {
	for _, c := range vt.centroids {
		if !c.SinglePeak() {
			return &domain.MultiPeakCentroidError{Type: vt.typ, Centroid: c.String()}
		}
	}
	return nil
}

// centroidsAbove yields, in offset order, the centroids whose peak is
// covered by at least minVotes gold spans.
func (vt *voteTable) centroidsAbove(minVotes int) iter.Seq[*Centroid] {
	return func(yield func(*Centroid) bool) {
		for _, c := range vt.centroids {
			if c.peak < minVotes {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// matchCentroid returns the centroid that both boundaries of ann fall on,
// provided the centroid has enough votes and each boundary step is large
// enough. The matched centroid is tagged with ann.Type. A nil result means
// no match.
func (vt *voteTable) matchCentroid(ann domain.Annotation, th Thresholds) *Centroid {
	first, ok := vt.lookup(ann.Start)
	if !ok || first.centroid == noCentroid {
		return nil
	}
	last, ok := vt.lookup(ann.End - 1)
	if !ok || last.centroid != first.centroid {
		return nil
	}

	c := vt.centroids[first.centroid]
	if c.peak < th.Votes || first.diff < th.Left || last.diff < th.Right {
		return nil
	}

	c.tag(ann.Type)
	return c
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
