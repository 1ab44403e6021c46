package centroid

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// overlapGold yields three centroids of type x:
//
//	C0 left=[2:1 4:3]   right=[5:2 7:1 9:1]   peak 4
//	C1 left=[12:2 14:1] right=[16:1 17:1 18:1] peak 3
//	C2 left=[19:2 20:1] right=[21:1 22:2]      peak 3
func overlapGold() []domain.Annotation {
	return spans("x",
		[2]int{2, 6}, [2]int{4, 6}, [2]int{4, 8}, [2]int{4, 10},
		[2]int{12, 18}, [2]int{14, 17}, [2]int{12, 19},
		[2]int{20, 23}, [2]int{19, 22}, [2]int{19, 23},
	)
}

func overlapPredictions() []domain.Annotation {
	return spans("x", [2]int{2, 8}, [2]int{13, 17}, [2]int{19, 23})
}

func newOverlapContext(t *testing.T) *EvaluationContext {
	t.Helper()
	ec, err := New(overlapGold())
	require.NoError(t, err)
	return ec
}

func TestEvaluate_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		th     Thresholds
		wantTP []domain.Annotation
		wantFP []domain.Annotation
		wantFN []domain.CentroidSummary
	}{
		{
			name:   "defaults accept every aligned prediction",
			th:     Thresholds{},
			wantTP: overlapPredictions(),
			wantFP: []domain.Annotation{},
			wantFN: []domain.CentroidSummary{},
		},
		{
			name:   "flat start boundary rejected",
			th:     Thresholds{Left: 1, Right: 1},
			wantTP: spans("x", [2]int{2, 8}, [2]int{19, 23}),
			wantFP: spans("x", [2]int{13, 17}),
			wantFN: []domain.CentroidSummary{
				{Type: "x", Left: []int{12, 14}, Right: []int{16, 17, 18}},
			},
		},
		{
			name:   "strong start boundary required",
			th:     Thresholds{Left: 2, Right: 1},
			wantTP: spans("x", [2]int{19, 23}),
			wantFP: spans("x", [2]int{2, 8}, [2]int{13, 17}),
			wantFN: []domain.CentroidSummary{
				{Type: "x", Left: []int{4}, Right: []int{5, 7, 9}},
				{Type: "x", Left: []int{12}, Right: []int{16, 17, 18}},
			},
		},
		{
			name:   "vote threshold drops weak centroids",
			th:     Thresholds{Votes: 4},
			wantTP: spans("x", [2]int{2, 8}),
			wantFP: spans("x", [2]int{13, 17}, [2]int{19, 23}),
			wantFN: []domain.CentroidSummary{},
		},
		{
			name:   "vote threshold above every centroid",
			th:     Thresholds{Votes: 5},
			wantTP: []domain.Annotation{},
			wantFP: overlapPredictions(),
			wantFN: []domain.CentroidSummary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newOverlapContext(t)
			got := ec.Evaluate(overlapPredictions(), tt.th)

			want := domain.EvalSets{
				TruePositives:  tt.wantTP,
				FalsePositives: tt.wantFP,
				FalseNegatives: tt.wantFN,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	ec := newOverlapContext(t)
	th := Thresholds{Left: 1, Right: 1}

	first := ec.Evaluate(overlapPredictions(), th)
	second := ec.Evaluate(overlapPredictions(), th)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated Evaluate() differs (-first +second):\n%s", diff)
	}

	// A stricter query after a lenient one must not see the earlier matches.
	strict := ec.Evaluate(overlapPredictions(), Thresholds{Left: 2, Right: 1})
	tp, fp, fn := strict.Counts()
	assert.Equal(t, []int{1, 2, 2}, []int{tp, fp, fn})
}

func TestEvaluate_DeterministicAcrossInputOrder(t *testing.T) {
	gold := overlapGold()
	reversed := make([]domain.Annotation, len(gold))
	for i, a := range gold {
		reversed[len(gold)-1-i] = a
	}

	a, err := New(gold)
	require.NoError(t, err)
	b, err := New(reversed)
	require.NoError(t, err)

	for _, th := range []Thresholds{{}, {Left: 1, Right: 1}, {Left: 2, Right: 1}, {Votes: 4}} {
		ga := a.Evaluate(overlapPredictions(), th)
		gb := b.Evaluate(overlapPredictions(), th)
		assert.Equal(t, ga, gb, "thresholds %+v", th)
	}
}

func TestEvaluate_FalsePositiveCases(t *testing.T) {
	tests := []struct {
		name string
		pred domain.Annotation
	}{
		{name: "type missing from gold", pred: domain.Annotation{Type: "y", Start: 2, End: 8}},
		{name: "start outside any centroid", pred: domain.Annotation{Type: "x", Start: 0, End: 8}},
		{name: "end outside any centroid", pred: domain.Annotation{Type: "x", Start: 2, End: 40}},
		{name: "boundaries on different centroids", pred: domain.Annotation{Type: "x", Start: 2, End: 17}},
		{name: "gap between centroids", pred: domain.Annotation{Type: "x", Start: 10, End: 12}},
		{name: "invalid span", pred: domain.Annotation{Type: "x", Start: 8, End: 2}},
		{name: "negative start", pred: domain.Annotation{Type: "x", Start: -1, End: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newOverlapContext(t)
			got := ec.Evaluate([]domain.Annotation{tt.pred}, Thresholds{})

			assert.Empty(t, got.TruePositives)
			assert.Equal(t, []domain.Annotation{tt.pred}, got.FalsePositives)
			assert.Len(t, got.FalseNegatives, 3)
		})
	}
}

func TestEvaluate_MultipleMatchesOnOneCentroid(t *testing.T) {
	ec := newOverlapContext(t)
	preds := spans("x", [2]int{2, 8}, [2]int{4, 6}, [2]int{2, 10})

	got := ec.Evaluate(preds, Thresholds{})

	assert.Equal(t, preds, got.TruePositives)
	assert.Empty(t, got.FalsePositives)
	assert.Len(t, got.FalseNegatives, 2, "only the centroid at 2..9 was matched")
}

func TestEvaluate_TagsMatchedCentroid(t *testing.T) {
	ec := newOverlapContext(t)

	for c := range ec.Centroids("x", 0) {
		assert.Empty(t, c.Type())
	}

	ec.Evaluate(spans("x", [2]int{19, 23}), Thresholds{})

	var tags []string
	for c := range ec.Centroids("x", 0) {
		tags = append(tags, c.Type())
	}
	assert.Equal(t, []string{"", "", "x"}, tags)
}

func TestEvaluate_FalseNegativeTypeOrder(t *testing.T) {
	gold := append(
		spans("b", [2]int{10, 14}),
		spans("a", [2]int{0, 4}, [2]int{20, 24})...,
	)
	ec, err := New(gold)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ec.Types())

	got := ec.Evaluate(nil, Thresholds{})
	want := []domain.CentroidSummary{
		{Type: "a", Left: []int{0}, Right: []int{3}},
		{Type: "a", Left: []int{20}, Right: []int{23}},
		{Type: "b", Left: []int{10}, Right: []int{13}},
	}
	if diff := cmp.Diff(want, got.FalseNegatives); diff != "" {
		t.Errorf("false negatives mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_Concurrent(t *testing.T) {
	ec := newOverlapContext(t)
	ths := []Thresholds{{}, {Left: 1, Right: 1}, {Left: 2, Right: 1}, {Votes: 4}}

	want := make([]domain.EvalSets, len(ths))
	for i, th := range ths {
		want[i] = ec.Evaluate(overlapPredictions(), th)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan string, workers*len(ths))
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range ths {
				idx := (i + w) % len(ths)
				got := ec.Evaluate(overlapPredictions(), ths[idx])
				if diff := cmp.Diff(want[idx], got); diff != "" {
					errs <- diff
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for diff := range errs {
		t.Errorf("concurrent Evaluate() mismatch:\n%s", diff)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		gold      []domain.Annotation
		wantErr   error
		wantTypes []string
	}{
		{name: "empty gold", gold: nil, wantTypes: nil},
		{name: "single span", gold: spans("x", [2]int{0, 3}), wantTypes: []string{"x"}},
		{name: "single offset span", gold: spans("x", [2]int{5, 6}), wantTypes: []string{"x"}},
		{name: "end before start", gold: spans("x", [2]int{5, 3}), wantErr: domain.ErrInvalidAnnotation},
		{name: "empty span", gold: spans("x", [2]int{5, 5}), wantErr: domain.ErrInvalidAnnotation},
		{name: "negative start", gold: spans("x", [2]int{-2, 3}), wantErr: domain.ErrInvalidAnnotation},
		{
			name:    "multi peak",
			gold:    spans("x", [2]int{4, 16}, [2]int{8, 11}, [2]int{12, 16}),
			wantErr: domain.ErrMultiPeakCentroid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec, err := New(tt.gold)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, ec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTypes, ec.Types())
		})
	}
}

func TestNew_InvalidGoldIndex(t *testing.T) {
	gold := overlapGold()
	gold[3].End = gold[3].Start

	_, err := New(gold)
	require.Error(t, err)

	var annErr *domain.AnnotationError
	require.True(t, errors.As(err, &annErr))
	assert.Equal(t, 3, annErr.Index)
}

func TestNew_SingleOffsetGoldNeverMatches(t *testing.T) {
	ec, err := New(spans("x", [2]int{5, 6}))
	require.NoError(t, err)

	assert.Zero(t, ec.CentroidCount("x", 0))

	got := ec.Evaluate(spans("x", [2]int{5, 6}), Thresholds{})
	tp, fp, fn := got.Counts()
	assert.Equal(t, []int{0, 1, 0}, []int{tp, fp, fn})
}

func TestCentroids(t *testing.T) {
	ec := newOverlapContext(t)

	assert.Equal(t, 3, ec.CentroidCount("x", 0))
	assert.Equal(t, 3, ec.CentroidCount("x", 3))
	assert.Equal(t, 1, ec.CentroidCount("x", 4))
	assert.Zero(t, ec.CentroidCount("x", 5))
	assert.Zero(t, ec.CentroidCount("missing", 0))

	var bounds []Bounds
	for c := range ec.Centroids("x", 0) {
		bounds = append(bounds, c.Min(), c.Max())
	}
	want := []Bounds{
		{Start: 4, End: 5}, {Start: 2, End: 9},
		{Start: 14, End: 16}, {Start: 12, End: 18},
		{Start: 20, End: 21}, {Start: 19, End: 22},
	}
	assert.Equal(t, want, bounds)

	// Early break stops the sequence.
	n := 0
	for range ec.Centroids("x", 0) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ec, err := New(overlapGold(), WithLogger(log))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "centroids collected")

	buf.Reset()
	ec.Evaluate(overlapPredictions(), Thresholds{})
	assert.Contains(t, buf.String(), "predictions evaluated")
	assert.Contains(t, buf.String(), "tp=3")

	buf.Reset()
	_, err = New(spans("x", [2]int{4, 16}, [2]int{8, 11}, [2]int{12, 16}), WithLogger(log))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestWithLogger_Nil(t *testing.T) {
	ec, err := New(overlapGold(), WithLogger(nil))
	require.NoError(t, err)
	assert.NotPanics(t, func() { ec.Evaluate(overlapPredictions(), Thresholds{}) })
}
