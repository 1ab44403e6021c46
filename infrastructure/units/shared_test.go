package units

import (
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

// recordedMetric is one observation captured by recordingMetrics.
type recordedMetric struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

// recordingMetrics is a thread-safe MetricsCollector that keeps every call.
type recordingMetrics struct {
	mu   sync.Mutex
	seen []recordedMetric
}

var _ ports.MetricsCollector = (*recordingMetrics)(nil)

func (m *recordingMetrics) add(kind, name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, recordedMetric{kind: kind, name: name, value: v, labels: maps.Clone(labels)})
}

func (m *recordingMetrics) RecordLatency(op string, d time.Duration, labels map[string]string) {
	m.add("latency", op, d.Seconds(), labels)
}

func (m *recordingMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	m.add("counter", name, v, labels)
}

func (m *recordingMetrics) RecordGauge(name string, v float64, labels map[string]string) {
	m.add("gauge", name, v, labels)
}

func (m *recordingMetrics) RecordHistogram(name string, v float64, labels map[string]string) {
	m.add("histogram", name, v, labels)
}

// find returns the observations of the given kind and name.
func (m *recordingMetrics) find(kind, name string) []recordedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedMetric
	for _, r := range m.seen {
		if r.kind == kind && r.name == name {
			out = append(out, r)
		}
	}
	return out
}

func spans(typ string, bounds ...[2]int) []domain.Annotation {
	out := make([]domain.Annotation, len(bounds))
	for i, b := range bounds {
		out[i] = domain.Annotation{Type: typ, Start: b[0], End: b[1]}
	}
	return out
}

func spanState(gold, preds []domain.Annotation) domain.State {
	s := domain.NewState()
	if gold != nil {
		s = domain.With(s, domain.KeyGoldAnnotations, gold)
	}
	if preds != nil {
		s = domain.With(s, domain.KeyPredictions, preds)
	}
	return s
}

// overlapGold forms three single-peak centroids with peaks of 4, 3 and 3
// votes.
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

func yamlNode(t *testing.T, src string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	require.NotEmpty(t, doc.Content)
	return *doc.Content[0]
}

func TestDecodeConfig(t *testing.T) {
	t.Run("overlays defaults", func(t *testing.T) {
		cfg := DefaultCentroidMatchConfig()
		require.NoError(t, decodeConfig(map[string]any{"threshold": 2}, &cfg))
		assert.Equal(t, 2, cfg.Votes)
		assert.Equal(t, MaxAnnotations, cfg.MaxAnnotations)
	})

	t.Run("nil map keeps defaults", func(t *testing.T) {
		cfg := DefaultSpanScoreConfig()
		require.NoError(t, decodeConfig(nil, &cfg))
		assert.Equal(t, DefaultSpanScoreConfig(), cfg)
	})

	t.Run("unknown field", func(t *testing.T) {
		cfg := DefaultSpanScoreConfig()
		err := decodeConfig(map[string]any{"min_f": 0.5}, &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "check for typos")
	})

	t.Run("wrong type", func(t *testing.T) {
		cfg := DefaultCentroidMatchConfig()
		assert.Error(t, decodeConfig(map[string]any{"left_boundary": "wide"}, &cfg))
	})
}

func TestAnnotationsFrom(t *testing.T) {
	state := spanState(spans("x", [2]int{0, 1}, [2]int{2, 3}), nil)

	got, err := annotationsFrom(state, domain.KeyGoldAnnotations, "gold annotations", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = annotationsFrom(state, domain.KeyGoldAnnotations, "gold annotations", 1)
	assert.ErrorIs(t, err, ErrTooManyAnnotations)

	_, err = annotationsFrom(state, domain.KeyPredictions, "predictions", 10)
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Contains(t, err.Error(), "predictions")
}

func TestFoldLabel(t *testing.T) {
	assert.Equal(t, foldLabel("person"), foldLabel("PERSON"))
	assert.Equal(t, foldLabel("strasse"), foldLabel("STRASSE"))
	assert.NotEqual(t, foldLabel("gene"), foldLabel("protein"))
}
