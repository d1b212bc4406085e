package result

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(name string, started time.Time) types.ScenarioResult {
	return types.ScenarioResult{
		ScenarioName:    name,
		StartedAt:       started,
		TotalDuration:   6 * time.Second,
		TotalInjections: 2,
		PhaseResults: []types.PhaseResult{
			{Name: "loss", Duration: 3 * time.Second, InjectionCount: 1, Succeeded: 1},
			{Name: "cpu", Duration: 3 * time.Second, InjectionCount: 1, Failed: 1},
		},
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	stamp := time.Date(2026, 4, 5, 13, 14, 15, 0, time.UTC)
	store := &FileStore{Dir: dir, Now: func() time.Time { return stamp }}

	started := stamp.Add(-6 * time.Second)
	summary, err := store.Save(sample("Network Degradation", started))
	require.NoError(t, err)
	assert.Equal(t, "network_degradation_20260405_131415", summary.ID)
	assert.Equal(t, filepath.Join(dir, "network_degradation_20260405_131415.json"), summary.FilePath)
	assert.Equal(t, 0.5, summary.SuccessRate)
	assert.Equal(t, 6.0, summary.TotalDuration)

	again, err := store.Save(sample("Network Degradation", started))
	require.NoError(t, err)
	assert.Equal(t, "network_degradation_20260405_131415_2", again.ID)

	loaded, err := store.Load(summary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Network Degradation", loaded.ScenarioName)
	assert.True(t, loaded.StartedAt.Equal(started))
	assert.Len(t, loaded.PhaseResults, 2)

	_, err = store.Load("../escape")
	assert.Error(t, err)
	_, err = store.Load("missing")
	assert.Error(t, err)
}

func TestFileStoreList(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		stamp := base.Add(time.Duration(i) * time.Hour)
		store.Now = func() time.Time { return stamp }
		_, err := store.Save(sample(name, stamp))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "third", summaries[0].ScenarioName)
	assert.Equal(t, "first", summaries[2].ScenarioName)

	empty, err := NewFileStore(filepath.Join(dir, "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, sample("degrade", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	out := buf.String()
	assert.Contains(t, out, "Scenario:         degrade")
	assert.Contains(t, out, "Success Rate:     50.00%")
	assert.Contains(t, out, "loss - Duration: 3s, Injections: 1, Succeeded: 1, Failed: 0")

	buf.Reset()
	PrintList(&buf, nil)
	assert.Equal(t, "No results found\n", buf.String())
}
