package centroid

import (
	"cmp"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// Thresholds gate a match. The zero value accepts every alignment.
type Thresholds struct {
	// Votes is the minimum number of gold spans covering a centroid's peak
	// for the centroid to take part in the evaluation at all.
	Votes int `yaml:"threshold" json:"threshold" validate:"min=0"`

	// Left is the minimum diff required at a prediction's start offset.
	Left int `yaml:"left_boundary" json:"left_boundary" validate:"min=0"`

	// Right is the minimum diff required at a prediction's last offset.
	Right int `yaml:"right_boundary" json:"right_boundary" validate:"min=0"`
}

// Option configures an EvaluationContext.
type Option func(*EvaluationContext)

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(ec *EvaluationContext) {
		if l != nil {
			ec.log = l
		}
	}
}

// EvaluationContext holds the centroids of a fixed gold set, one vote table
// per annotation type, and scores predictions against them.
//
// An EvaluationContext is safe for concurrent use once New returns.
type EvaluationContext struct {
	tables map[string]*voteTable
	// types lists annotation types in the order they were first seen after
	// sorting the gold set by start offset.
	types []string
	log   *slog.Logger
}

// New builds an EvaluationContext from gold annotations.
//
// Gold spans are validated, stably sorted by start offset, grouped by type
// and swept into centroids. Construction fails as a whole on the first
// invalid annotation or on a *domain.MultiPeakCentroidError.
func New(gold []domain.Annotation, opts ...Option) (*EvaluationContext, error) {
	ec := &EvaluationContext{
		tables: make(map[string]*voteTable),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(ec)
	}

	if err := domain.ValidateAnnotations(gold); err != nil {
		return nil, fmt.Errorf("gold annotations: %w", err)
	}

	sorted := slices.Clone(gold)
	slices.SortStableFunc(sorted, func(a, b domain.Annotation) int {
		return cmp.Compare(a.Start, b.Start)
	})

	for _, ann := range sorted {
		vt, ok := ec.tables[ann.Type]
		if !ok {
			vt = newVoteTable(ann.Type)
			ec.tables[ann.Type] = vt
			ec.types = append(ec.types, ann.Type)
		}
		vt.addAnnotation(ann)
	}

	for _, typ := range ec.types {
		vt := ec.tables[typ]
		vt.collectCentroids()
		if err := vt.validate(); err != nil {
			ec.log.Error("gold annotations are multi-peaked", "type", typ, "error", err)
			return nil, err
		}
		ec.log.Debug("centroids collected",
			"type", typ,
			"offsets", len(vt.records),
			"centroids", len(vt.centroids),
		)
	}

	return ec, nil
}

// Types returns the annotation types present in the gold set.
func (ec *EvaluationContext) Types() []string { return slices.Clone(ec.types) }

// Centroids yields the centroids of typ whose peak reaches minVotes. The
// sequence is empty for unknown types and may be iterated repeatedly.
func (ec *EvaluationContext) Centroids(typ string, minVotes int) iter.Seq[*Centroid] {
	vt, ok := ec.tables[typ]
	if !ok {
		return func(func(*Centroid) bool) {}
	}
	return vt.centroidsAbove(minVotes)
}

// CentroidCount returns the number of centroids of typ whose peak reaches
// minVotes.
func (ec *EvaluationContext) CentroidCount(typ string, minVotes int) int {
	n := 0
	for range ec.Centroids(typ, minVotes) {
		n++
	}
	return n
}

// Evaluate partitions predictions into true and false positives and
// reports every eligible gold centroid that no prediction matched as a
// false negative.
//
// A prediction whose type is absent from the gold set, whose span is
// invalid, or whose boundaries do not fall on one centroid passing th is a
// false positive. False negative summaries keep only the edge offsets whose
// diff passes th.Left and th.Right respectively.
func (ec *EvaluationContext) Evaluate(predictions []domain.Annotation, th Thresholds) domain.EvalSets {
	sets := domain.EvalSets{
		TruePositives:  make([]domain.Annotation, 0, len(predictions)),
		FalsePositives: make([]domain.Annotation, 0),
		FalseNegatives: make([]domain.CentroidSummary, 0),
	}
	matched := make(matchedSet)

	for _, p := range predictions {
		vt, ok := ec.tables[p.Type]
		if !ok || p.Validate() != nil {
			sets.FalsePositives = append(sets.FalsePositives, p)
			continue
		}
		c := vt.matchCentroid(p, th)
		if c == nil {
			sets.FalsePositives = append(sets.FalsePositives, p)
			continue
		}
		matched.add(p.Type, c.id)
		sets.TruePositives = append(sets.TruePositives, p)
	}

	for _, typ := range ec.types {
		for c := range ec.tables[typ].centroidsAbove(th.Votes) {
			if matched.contains(typ, c.id) {
				continue
			}
			sets.FalseNegatives = append(sets.FalseNegatives, domain.CentroidSummary{
				Type:  typ,
				Left:  offsets(c.left, th.Left),
				Right: offsets(c.right, th.Right),
			})
		}
	}

	ec.log.Debug("predictions evaluated",
		"predictions", len(predictions),
		"tp", len(sets.TruePositives),
		"fp", len(sets.FalsePositives),
		"fn", len(sets.FalseNegatives),
		"threshold", th.Votes,
		"lb", th.Left,
		"rb", th.Right,
	)
	return sets
}

// matchedSet records, per type, the ids of centroids matched during one
// evaluation.
type matchedSet map[string]*roaring.Bitmap

func (m matchedSet) add(typ string, id int) {
	bm, ok := m[typ]
	if !ok {
		bm = roaring.New()
		m[typ] = bm
	}
	bm.Add(uint32(id))
}

func (m matchedSet) contains(typ string, id int) bool {
	bm, ok := m[typ]
	return ok && bm.Contains(uint32(id))
}
