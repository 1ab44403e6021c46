package domain

import "fmt"

// Annotation is a labelled text span. End is exclusive.
// Annotations are plain values and are never mutated once created.
type Annotation struct {
	// Type is the label of the span, e.g. "PERSON" or "gene".
	Type string `json:"type" yaml:"type"`

	// Start is the inclusive start offset of the span.
	Start int `json:"start" yaml:"start"`

	// End is the exclusive end offset of the span.
	End int `json:"end" yaml:"end"`
}

// Validate reports whether the annotation describes a usable span:
// a non-negative start and an end strictly greater than the start.
func (a Annotation) Validate() error {
	if a.Start < 0 {
		return fmt.Errorf("%w: negative start offset %d", ErrInvalidAnnotation, a.Start)
	}
	if a.End <= a.Start {
		return fmt.Errorf("%w: end %d must be greater than start %d", ErrInvalidAnnotation, a.End, a.Start)
	}
	return nil
}

// Len returns the number of offsets covered by the span.
func (a Annotation) Len() int { return a.End - a.Start }

func (a Annotation) String() string {
	return fmt.Sprintf("%s[%d,%d)", a.Type, a.Start, a.End)
}

// CentroidSummary describes a gold centroid that no prediction matched.
// Left and Right hold the boundary offsets whose confidence passed the
// left and right boundary thresholds of the evaluation that produced it.
type CentroidSummary struct {
	// Type is the annotation type the centroid was built for.
	Type string `json:"type"`

	// Left holds candidate start offsets in ascending order.
	Left []int `json:"left"`

	// Right holds candidate last offsets (inclusive) in ascending order.
	Right []int `json:"right"`
}

// EvalSets partitions one evaluation run. Every prediction lands in exactly
// one of TruePositives or FalsePositives; every eligible gold centroid that
// was not matched is reported once in FalseNegatives.
type EvalSets struct {
	// TruePositives are the predictions that aligned with a gold centroid.
	TruePositives []Annotation `json:"tp"`

	// FalsePositives are the predictions that aligned with nothing.
	FalsePositives []Annotation `json:"fp"`

	// FalseNegatives summarise the gold centroids left unmatched.
	FalseNegatives []CentroidSummary `json:"fn"`
}

// Counts returns the sizes of the three partitions.
func (s EvalSets) Counts() (tp, fp, fn int) {
	return len(s.TruePositives), len(s.FalsePositives), len(s.FalseNegatives)
}
