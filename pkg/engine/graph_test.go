package engine

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/plugin/plugintest"
)

func desc(name string, priority int, deps ...string) plugin.Descriptor {
	var ds []plugin.Dependency
	for _, d := range deps {
		ds = append(ds, plugintest.On(d, nil))
	}
	return plugintest.New(name, nil).Descriptor(priority, ds...)
}

func TestResolveOrder_PriorityBreaksTiesOnly(t *testing.T) {
	descs := []plugin.Descriptor{
		desc("a", 10),
		desc("b", 5, "a"),
		desc("c", 1),
	}

	sched, err := NewSchedule(descs)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, sched.Names())
}

func TestResolveOrder_RegistrationOrderOnEqualPriority(t *testing.T) {
	descs := []plugin.Descriptor{
		desc("zeta", 1),
		desc("alpha", 1),
		desc("mid", 1),
	}

	sched, err := NewSchedule(descs)
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha", "mid"}, sched.Names())
}

func TestResolveOrder_DependencyOverridesPriority(t *testing.T) {
	descs := []plugin.Descriptor{
		desc("slow", 100),
		desc("urgent", 0, "slow"),
		desc("other", 50),
	}

	sched, err := NewSchedule(descs)
	require.NoError(t, err)
	require.Equal(t, []string{"other", "slow", "urgent"}, sched.Names())
}

func TestResolveOrder_TopologicalAndDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 2 + rng.Intn(12)
		descs := make([]plugin.Descriptor, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps = append(deps, fmt.Sprintf("p%02d", j))
				}
			}
			descs[i] = desc(fmt.Sprintf("p%02d", i), rng.Intn(5), deps...)
		}
		// shuffle registration order; edges only point backwards by name so
		// the graph stays acyclic.
		rng.Shuffle(len(descs), func(a, b int) { descs[a], descs[b] = descs[b], descs[a] })

		first, err := NewSchedule(descs)
		require.NoError(t, err)
		require.Len(t, first.Ordered, n)

		pos := make(map[string]int, n)
		for i, d := range first.Ordered {
			pos[d.Name] = i
		}
		for _, d := range first.Ordered {
			for _, dep := range d.Dependencies {
				require.Less(t, pos[dep.Plugin], pos[d.Name], "%s must precede %s", dep.Plugin, d.Name)
			}
		}

		again, err := NewSchedule(descs)
		require.NoError(t, err)
		require.Equal(t, first.Names(), again.Names())
	}
}

func TestBuildGraph_Cycle(t *testing.T) {
	tests := []struct {
		name  string
		descs []plugin.Descriptor
		cycle []string
	}{
		{
			name:  "two nodes",
			descs: []plugin.Descriptor{desc("a", 0, "b"), desc("b", 0, "a")},
			cycle: []string{"a", "b", "a"},
		},
		{
			name:  "self",
			descs: []plugin.Descriptor{desc("solo", 0, "solo")},
			cycle: []string{"solo", "solo"},
		},
		{
			name: "longer with tail",
			descs: []plugin.Descriptor{
				desc("root", 0),
				desc("x", 0, "root", "z"),
				desc("y", 0, "x"),
				desc("z", 0, "y"),
			},
			cycle: []string{"x", "z", "y", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(tt.descs)
			require.Error(t, err)

			var cyc *CyclicDependencyError
			require.True(t, errors.As(err, &cyc))
			require.Equal(t, tt.cycle, cyc.Cycle)
			require.ErrorIs(t, err, ErrConfig)
			require.Equal(t, errorCodeCyclicDependency, ErrorCode(err))
		})
	}
}

func TestBuildGraph_Duplicate(t *testing.T) {
	_, err := BuildGraph([]plugin.Descriptor{desc("a", 0), desc("a", 1)})
	var dup *plugin.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "a", dup.Name)
}

func TestBuildGraph_MissingDependencyIsNotAnEdge(t *testing.T) {
	g, err := BuildGraph([]plugin.Descriptor{
		desc("a", 0),
		desc("b", 0, "a", "ghost"),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"a"}, g.DependenciesOf("b"))
	require.Equal(t, []string{"b"}, g.DependentsOf("a"))
	missing := g.MissingOf("b")
	require.Len(t, missing, 1)
	require.Equal(t, "ghost", missing[0].Plugin)
	require.False(t, g.Has("ghost"))
	require.Nil(t, g.DependenciesOf("ghost"))
}

func TestSchedule_Layers(t *testing.T) {
	sched, err := NewSchedule([]plugin.Descriptor{
		desc("dns", 1),
		desc("ports", 2),
		desc("http", 3, "ports"),
		desc("vulns", 4, "http", "dns"),
	})
	require.NoError(t, err)

	require.Equal(t, [][]string{{"dns", "ports"}, {"http"}, {"vulns"}}, sched.Layers())
}

func TestSchedule_PlanExport(t *testing.T) {
	d := desc("http", 3, "ports", "ghost")
	d.Timeout = 2 * time.Minute
	d.Dependencies[1].Optional = true
	sched, err := NewSchedule([]plugin.Descriptor{desc("ports", 1), d})
	require.NoError(t, err)

	plan := sched.Plan()
	require.Equal(t, []string{"ports", "http"}, plan.Order)
	require.Len(t, plan.Nodes, 2)
	http := plan.Nodes[1]
	require.Equal(t, 1, http.Layer)
	require.Equal(t, "2m0s", http.Timeout)
	require.Equal(t, []string{"http"}, plan.Nodes[0].Dependents)
	require.Empty(t, http.Dependents)
	require.Equal(t, []PlanEdge{
		{Plugin: "ports", Condition: plugin.ConditionSuccess},
		{Plugin: "ghost", Condition: plugin.ConditionSuccess, Optional: true, Missing: true},
	}, http.DependsOn)

	var buf bytes.Buffer
	require.NoError(t, WritePlan(&buf, plan, "yaml"))
	require.Contains(t, buf.String(), "missing: true")
	require.Error(t, WritePlan(&buf, plan, "xml"))

	path := filepath.Join(t.TempDir(), "nested", "plan.json")
	require.NoError(t, SavePlanToFile(plan, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"order": [`)

	require.Error(t, SavePlanToFile(plan, filepath.Join(t.TempDir(), "plan.txt")))
}
