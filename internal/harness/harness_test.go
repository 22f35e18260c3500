package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.OK())
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/window_admission.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := first.Snapshot.Marshal()
	require.NoError(t, err)
	b, err := second.Snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: B is outside the window but the scenario expects success.
window: 1
resources:
  - {id: bus-1, capacity: 5}
steps:
  - {op: join, subject: A}
  - {op: join, subject: B}
  - {op: reserve, subject: B, resource: bus-1}
assertions:
  - {type: queue_order, subjects: [B, A]}
  - {type: reserved, subject: B}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.False(t, result.OK())
	require.Len(t, result.Failures, 3)
	assert.Contains(t, result.Failures[0], "expected ok, got ADMISSION_DENIED")
	assert.Contains(t, result.Failures[1], "queue is [A, B], want [B, A]")
	assert.Contains(t, result.Failures[2], "B holds no reservation")
}

func TestRun_Rejoin(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: rejoin
description: A gives up its place and B is admitted.
window: 1
resources:
  - {id: bus-1, capacity: 5}
steps:
  - {op: join, subject: A}
  - {op: join, subject: B}
  - {op: rejoin, subject: A}
  - {op: rejoin, subject: Z, expect: NOT_IN_QUEUE}
assertions:
  - {type: queue_order, subjects: [B, A]}
  - {type: leased, subjects: [B]}
  - {type: invariants}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.OK(), "failures: %v", result.Failures)
	assert.Equal(t, 2, result.Snapshot.Trace[2].Position)
}

func TestRun_EmptyDirectory(t *testing.T) {
	scenario := &Scenario{
		Name:        "empty",
		Description: "no resources, one sweep",
		Steps:       []Step{{Op: OpSweep}},
	}
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Empty(t, result.Snapshot.Final.Resources)
	assert.Equal(t, "ok", result.Snapshot.Trace[0].Outcome)
}

func TestRun_InvalidDirectory(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: invalid_directory
description: a negative capacity cannot be installed
resources:
  - {id: bus-1, capacity: -1}
steps:
  - {op: sweep}
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
}
