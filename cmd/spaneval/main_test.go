package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-spaneval/infrastructure/units"
	"github.com/ahrav/go-spaneval/internal/domain"
)

var graphsDir = filepath.Join("..", "..", "examples", "graphs")

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeOverlapDataset(t *testing.T, predType string) string {
	t.Helper()
	ds := dataset{
		Gold: []domain.Annotation{
			{Type: "x", Start: 2, End: 6}, {Type: "x", Start: 4, End: 6},
			{Type: "x", Start: 4, End: 8}, {Type: "x", Start: 4, End: 10},
			{Type: "x", Start: 12, End: 18}, {Type: "x", Start: 14, End: 17},
			{Type: "x", Start: 12, End: 19}, {Type: "x", Start: 20, End: 23},
			{Type: "x", Start: 19, End: 22}, {Type: "x", Start: 19, End: 23},
		},
		Predictions: []domain.Annotation{
			{Type: predType, Start: 2, End: 8},
			{Type: predType, Start: 13, End: 17},
			{Type: predType, Start: 19, End: 23},
		},
	}
	data, err := json.Marshal(ds)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "spaneval dev\n", out)
}

func TestUnits(t *testing.T) {
	out, _, err := run(t, "units")
	require.NoError(t, err)
	assert.Equal(t, "centroid_match\nexact_match\nlabel_normalize\nspan_score\n", out)
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := run(t, "--log-level", "loud", "units")
	assert.ErrorContains(t, err, `invalid --log-level "loud"`)
}

func TestValidate(t *testing.T) {
	t.Run("example graphs", func(t *testing.T) {
		out, _, err := run(t, "validate",
			filepath.Join(graphsDir, "relaxed.yaml"),
			filepath.Join(graphsDir, "strict.yaml"),
			filepath.Join(graphsDir, "consensus.yaml"),
		)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasSuffix(lines[0], "relaxed.yaml: main"), lines[0])
		assert.True(t, strings.HasSuffix(lines[1], "strict.yaml: exact -> score"), lines[1])
		assert.True(t, strings.HasSuffix(lines[2], "consensus.yaml: main"), lines[2])
	})

	t.Run("invalid graph", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte(`
version: "1.0.0"
metadata:
  name: "bad"
units:
  - id: match
    type: centroid_match
graph:
  pipelines:
    - id: main
      units: ["match", "score"]
`), 0o600))

		out, _, err := run(t, "validate", filepath.Join(graphsDir, "strict.yaml"), bad)
		assert.EqualError(t, err, "1 of 2 graphs invalid")
		assert.Contains(t, out, "FAIL "+bad)
		assert.Contains(t, out, "references non-existent unit: score")
	})

	t.Run("requires a path", func(t *testing.T) {
		_, _, err := run(t, "validate")
		assert.Error(t, err)
	})
}

func TestEval(t *testing.T) {
	data := writeOverlapDataset(t, "X")

	out, _, err := run(t, "eval", "--graph", filepath.Join(graphsDir, "relaxed.yaml"), "--data", data, "--sets")
	require.NoError(t, err)

	var res evalResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Report)
	assert.InDelta(t, 2.0/3.0, res.Report.Micro.F1, 1e-9)
	assert.Equal(t, map[string]string{"X": "x"}, res.LabelMapping)

	require.NotNil(t, res.Sets)
	assert.Len(t, res.Sets.TruePositives, 2)
	assert.Equal(t, []domain.CentroidSummary{
		{Type: "x", Left: []int{12, 14}, Right: []int{16, 17, 18}},
	}, res.Sets.FalseNegatives)
}

func TestEvalOmitsSetsByDefault(t *testing.T) {
	data := writeOverlapDataset(t, "x")

	out, _, err := run(t, "eval", "--graph", filepath.Join(graphsDir, "consensus.yaml"), "--data", data)
	require.NoError(t, err)
	assert.NotContains(t, out, `"sets"`)
	assert.NotContains(t, out, `"label_mapping"`)
}

func TestEvalScoreGate(t *testing.T) {
	data := writeOverlapDataset(t, "x")

	_, stderr, err := run(t, "eval", "--graph", filepath.Join(graphsDir, "strict.yaml"), "--data", data, "--metrics")
	require.Error(t, err)
	assert.ErrorIs(t, err, units.ErrBelowMinScore)
	assert.Contains(t, stderr, "spaneval_span_outcomes_total")
}

func TestEvalErrors(t *testing.T) {
	data := writeOverlapDataset(t, "x")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing flags",
			args:    []string{"eval"},
			wantErr: `required flag(s) "data", "graph" not set`,
		},
		{
			name:    "missing dataset",
			args:    []string{"eval", "--graph", filepath.Join(graphsDir, "strict.yaml"), "--data", "nope.json"},
			wantErr: "read dataset",
		},
		{
			name:    "missing graph",
			args:    []string{"eval", "--graph", "nope.yaml", "--data", data},
			wantErr: "load graph",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCorpus(t *testing.T) {
	first, _, err := run(t, "corpus", "--seed", "7", "--types", "PER,ORG", "--clusters", "3", "--spans", "2")
	require.NoError(t, err)
	second, _, err := run(t, "corpus", "--seed", "7", "--types", "PER,ORG", "--clusters", "3", "--spans", "2")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same seed, same corpus")

	var ds dataset
	require.NoError(t, json.Unmarshal([]byte(first), &ds))
	assert.Len(t, ds.Gold, 2*3*2)

	path := filepath.Join(t.TempDir(), "corpus.json")
	_, stderr, err := run(t, "corpus", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote ")

	out, _, err := run(t, "eval", "--graph", filepath.Join(graphsDir, "relaxed.yaml"), "--data", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"micro"`)
}
