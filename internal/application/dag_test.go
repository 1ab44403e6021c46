package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

// mockExecutable is a test implementation of Executable
type mockExecutable struct {
	id          string
	executeFunc func(ctx context.Context, state domain.State) (domain.State, error)
	executed    bool
	mu          sync.Mutex
}

func (m *mockExecutable) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	m.mu.Lock()
	m.executed = true
	m.mu.Unlock()

	if m.executeFunc != nil {
		return m.executeFunc(ctx, state)
	}
	return state, nil
}

func (m *mockExecutable) ID() string { return m.id }

func (m *mockExecutable) wasExecuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed
}

func stepKey(i int) domain.Key[int] { return domain.NewKey[int](fmt.Sprintf("step%d", i)) }

// writer returns an executable that stores value under key.
func writer(id string, key domain.Key[int], value int) *mockExecutable {
	return &mockExecutable{
		id: id,
		executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
			return domain.With(state, key, value), nil
		},
	}
}

func failing(id string) *mockExecutable {
	return &mockExecutable{
		id: id,
		executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
			return state, errors.New(id + " failed")
		},
	}
}

func TestPipeline_Execute(t *testing.T) {
	t.Run("executes units in sequence", func(t *testing.T) {
		pipeline := NewPipeline("p")
		order := domain.NewKey[[]string]("order")
		for i := range 3 {
			id := fmt.Sprintf("unit%d", i)
			require.NoError(t, pipeline.Add(&mockExecutable{
				id: id,
				executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
					seen, _ := domain.Get(state, order)
					return domain.With(state, order, append(seen, id)), nil
				},
			}))
		}

		out, err := pipeline.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		got, _ := domain.Get(out, order)
		assert.Equal(t, []string{"unit0", "unit1", "unit2"}, got)
	})

	t.Run("stops on first error", func(t *testing.T) {
		pipeline := NewPipeline("p")
		first := writer("unit0", stepKey(0), 0)
		last := writer("unit2", stepKey(2), 2)
		require.NoError(t, pipeline.Add(first))
		require.NoError(t, pipeline.Add(failing("unit1")))
		require.NoError(t, pipeline.Add(last))

		out, err := pipeline.Execute(context.Background(), domain.NewState())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline p: execution failed at unit1")
		assert.False(t, last.wasExecuted())

		_, ok := domain.Get(out, stepKey(0))
		assert.True(t, ok, "state from completed members is returned")
	})

	t.Run("respects cancellation", func(t *testing.T) {
		pipeline := NewPipeline("p")
		m := writer("unit0", stepKey(0), 0)
		require.NoError(t, pipeline.Add(m))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := pipeline.Execute(ctx, domain.NewState())
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, m.wasExecuted())
	})

	t.Run("empty pipeline returns input", func(t *testing.T) {
		in := domain.With(domain.NewState(), stepKey(9), 9)
		out, err := NewPipeline("p").Execute(context.Background(), in)
		require.NoError(t, err)
		v, _ := domain.Get(out, stepKey(9))
		assert.Equal(t, 9, v)
	})
}

func TestPipeline_Add(t *testing.T) {
	pipeline := NewPipeline("p")
	require.NoError(t, pipeline.Add(&mockExecutable{id: "a"}))
	assert.Error(t, pipeline.Add(nil))
	assert.ErrorContains(t, pipeline.Add(&mockExecutable{id: "a"}), "already exists")
	require.NoError(t, pipeline.Add(&mockExecutable{id: "b"}))

	execs := pipeline.Executables()
	require.Len(t, execs, 2)
	assert.Equal(t, "a", execs[0].ID())
	assert.Equal(t, "b", execs[1].ID())
}

func TestLayer_Execute(t *testing.T) {
	t.Run("merges member outputs", func(t *testing.T) {
		layer := NewLayer("l")
		for i := range 3 {
			require.NoError(t, layer.Add(writer(fmt.Sprintf("unit%d", i), stepKey(i), i*10)))
		}

		out, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		for i := range 3 {
			v, ok := domain.Get(out, stepKey(i))
			require.True(t, ok)
			assert.Equal(t, i*10, v)
		}
	})

	t.Run("later member wins on conflict", func(t *testing.T) {
		layer := NewLayer("l")
		slow := &mockExecutable{
			id: "slow",
			executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
				time.Sleep(20 * time.Millisecond)
				return domain.With(state, stepKey(0), 2), nil
			},
		}
		require.NoError(t, layer.Add(writer("fast", stepKey(0), 1)))
		require.NoError(t, layer.Add(slow))

		for range 5 {
			out, err := layer.Execute(context.Background(), domain.NewState())
			require.NoError(t, err)
			v, _ := domain.Get(out, stepKey(0))
			assert.Equal(t, 2, v)
		}
	})

	t.Run("unchanged keys do not override", func(t *testing.T) {
		base := domain.With(domain.NewState(), stepKey(0), 0)
		layer := NewLayer("l")
		require.NoError(t, layer.Add(writer("writer", stepKey(0), 5)))
		require.NoError(t, layer.Add(&mockExecutable{id: "noop"}))

		out, err := layer.Execute(context.Background(), base)
		require.NoError(t, err)
		v, _ := domain.Get(out, stepKey(0))
		assert.Equal(t, 5, v)
	})

	t.Run("reports every failure", func(t *testing.T) {
		layer := NewLayer("l")
		ok := writer("unit0", stepKey(0), 0)
		require.NoError(t, layer.Add(ok))
		require.NoError(t, layer.Add(failing("unit1")))
		require.NoError(t, layer.Add(failing("unit2")))

		in := domain.NewState()
		out, err := layer.Execute(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "layer l failed with 2 errors")
		assert.Contains(t, err.Error(), "unit1 failed")
		assert.Contains(t, err.Error(), "unit2 failed")
		assert.True(t, ok.wasExecuted())
		_, written := domain.Get(out, stepKey(0))
		assert.False(t, written, "a failed layer returns its input")
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		layer := NewLayer("l")
		layer.SetConcurrencyLimit(2)

		var running, peak atomic.Int32
		for i := range 6 {
			require.NoError(t, layer.Add(&mockExecutable{
				id: fmt.Sprintf("unit%d", i),
				executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					running.Add(-1)
					return state, nil
				},
			}))
		}

		_, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("custom merge strategy", func(t *testing.T) {
		layer := NewLayer("l")
		require.NoError(t, layer.Add(writer("a", stepKey(0), 1)))
		require.NoError(t, layer.Add(writer("b", stepKey(1), 2)))
		layer.SetMergeStrategy(firstStateMerge{})

		out, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		_, hasA := domain.Get(out, stepKey(0))
		_, hasB := domain.Get(out, stepKey(1))
		assert.True(t, hasA)
		assert.False(t, hasB)
	})

	t.Run("cancelled context", func(t *testing.T) {
		layer := NewLayer("l")
		m := writer("a", stepKey(0), 1)
		require.NoError(t, layer.Add(m))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := layer.Execute(ctx, domain.NewState())
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, m.wasExecuted())
	})
}

// firstStateMerge keeps only the first member's output.
type firstStateMerge struct{}

func (firstStateMerge) Merge(base domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return base, nil
	}
	return states[0], nil
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(&mockExecutable{id: "a"}))
	assert.Error(t, g.AddNode(nil))
	assert.ErrorContains(t, g.AddNode(&mockExecutable{id: "a"}), "already exists")

	node, ok := g.GetNode("a")
	require.True(t, ok)
	assert.Equal(t, "a", node.ID())
	_, ok = g.GetNode("missing")
	assert.False(t, ok)
}

func TestGraph_AddEdge(t *testing.T) {
	tests := []struct {
		name    string
		edges   [][2]string
		add     [2]string
		wantErr string
	}{
		{name: "valid edge", add: [2]string{"a", "b"}},
		{name: "missing source", add: [2]string{"x", "b"}, wantErr: "source node x does not exist"},
		{name: "missing target", add: [2]string{"a", "x"}, wantErr: "target node x does not exist"},
		{name: "duplicate", edges: [][2]string{{"a", "b"}}, add: [2]string{"a", "b"}, wantErr: "already exists"},
		{name: "self loop", add: [2]string{"a", "a"}, wantErr: "would create a cycle"},
		{name: "cycle", edges: [][2]string{{"a", "b"}, {"b", "c"}}, add: [2]string{"c", "a"}, wantErr: "would create a cycle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, g.AddNode(&mockExecutable{id: id}))
			}
			for _, e := range tt.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}

			err := g.AddEdge(tt.add[0], tt.add[1])
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.False(t, g.HasCycle(), "a rejected edge is rolled back")
		})
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{
			name:  "simple chain",
			nodes: []string{"node3", "node2", "node1"},
			edges: [][2]string{{"node1", "node2"}, {"node2", "node3"}},
			want:  []string{"node1", "node2", "node3"},
		},
		{
			name:  "diamond",
			nodes: []string{"D", "C", "B", "A"},
			edges: [][2]string{{"A", "C"}, {"A", "B"}, {"B", "D"}, {"C", "D"}},
			want:  []string{"A", "B", "C", "D"},
		},
		{
			name:  "disconnected components",
			nodes: []string{"node4", "node3", "node2", "node1"},
			edges: [][2]string{{"node1", "node2"}, {"node3", "node4"}},
			want:  []string{"node1", "node2", "node3", "node4"},
		},
		{
			name:  "released node sorts among ready nodes",
			nodes: []string{"z", "b", "a"},
			edges: [][2]string{{"z", "a"}},
			want:  []string{"b", "z", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			for _, id := range tt.nodes {
				require.NoError(t, g.AddNode(&mockExecutable{id: id}))
			}
			for _, e := range tt.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}

			for range 3 {
				sorted, err := g.TopologicalSort()
				require.NoError(t, err)
				got := make([]string, len(sorted))
				for i, exec := range sorted {
					got[i] = exec.ID()
				}
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGraph_Execute(t *testing.T) {
	t.Run("threads state in dependency order", func(t *testing.T) {
		g := NewGraph()
		order := domain.NewKey[[]string]("order")
		record := func(id string) ports.Executable {
			return &mockExecutable{
				id: id,
				executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
					seen, _ := domain.Get(state, order)
					return domain.With(state, order, append(seen, id)), nil
				},
			}
		}
		for _, id := range []string{"score", "match", "normalize"} {
			require.NoError(t, g.AddNode(record(id)))
		}
		require.NoError(t, g.AddEdge("normalize", "match"))
		require.NoError(t, g.AddEdge("match", "score"))

		out, err := g.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		got, _ := domain.Get(out, order)
		assert.Equal(t, []string{"normalize", "match", "score"}, got)
	})

	t.Run("stops at failing node", func(t *testing.T) {
		g := NewGraph()
		after := writer("b", stepKey(1), 1)
		require.NoError(t, g.AddNode(failing("a")))
		require.NoError(t, g.AddNode(after))
		require.NoError(t, g.AddEdge("a", "b"))

		_, err := g.Execute(context.Background(), domain.NewState())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node a")
		assert.False(t, after.wasExecuted())
	})

	t.Run("empty graph", func(t *testing.T) {
		_, err := NewGraph().Execute(context.Background(), domain.NewState())
		assert.NoError(t, err)
	})
}

func TestKeyMergeStrategy(t *testing.T) {
	base := domain.With(domain.NewState(), stepKey(0), 0)

	out, err := KeyMergeStrategy{}.Merge(base, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, base.Keys(), out.Keys())

	a := domain.With(base, stepKey(1), 1)
	b := domain.With(base, stepKey(0), 7)
	out, err = KeyMergeStrategy{}.Merge(base, []domain.State{a, b})
	require.NoError(t, err)

	v0, _ := domain.Get(out, stepKey(0))
	v1, _ := domain.Get(out, stepKey(1))
	assert.Equal(t, 7, v0)
	assert.Equal(t, 1, v1)
}
