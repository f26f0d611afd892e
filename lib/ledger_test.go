package lib

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger", "runs.db")
	ledger, err := OpenLedger(path)
	require.NoError(t, err)
	defer ledger.Close()

	summary := NewRunSummary(VariantLidar, "output/lidar")
	require.NoError(t, ledger.StartRun(ctx, summary, "/data/zod", "mini"))

	outcomes := []FrameOutcome{
		{Index: 0, FrameID: "000001", Path: "output/lidar/lidar_000001.png", Duration: 1500 * time.Millisecond},
		{Index: 1, FrameID: "000002", Path: "output/lidar/lidar_000002.png", Layers: []LayerResult{
			{Layer: LayerLaneMarkings, Status: LayerSkipped},
			{Layer: LayerEgoRoad, Status: LayerFailed, Reason: "bad json"},
			{Layer: LayerEgoMotion, Status: LayerFailed, Reason: "bad json"},
		}},
		{Index: 2, FrameID: "x", Err: "frame id \"x\": invalid syntax"},
	}
	for _, o := range outcomes {
		summary.Add(o)
		require.NoError(t, ledger.RecordFrame(ctx, summary.RunID, o))
	}
	summary.Finished = time.Now()
	summary.Cancelled = true
	require.NoError(t, ledger.FinishRun(ctx, summary))

	runs, err := ledger.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, summary.RunID, run.RunID)
	assert.Equal(t, "/data/zod", run.DatasetRoot)
	assert.Equal(t, "mini", run.DatasetVersion)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Degraded)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Cancelled)
	assert.WithinDuration(t, summary.Started, run.Started, time.Millisecond)

	records, err := ledger.FrameOutcomes(ctx, summary.RunID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 1500*time.Millisecond, records[0].Duration)
	assert.Empty(t, records[0].SkippedLayers)
	assert.Equal(t, FrameDegraded, records[1].Status)
	assert.Equal(t, []string{LayerLaneMarkings}, records[1].SkippedLayers)
	assert.Equal(t, []string{LayerEgoRoad, LayerEgoMotion}, records[1].FailedLayers)
	assert.Equal(t, FrameFailed, records[2].Status)
	assert.Empty(t, records[2].Path)
	assert.Contains(t, records[2].Err, "invalid syntax")
}

func TestLedgerFinishUnknownRun(t *testing.T) {
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer ledger.Close()

	summary := NewRunSummary(VariantCamera, "out")
	assert.Error(t, ledger.FinishRun(context.Background(), summary))
}

func TestLedgerReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	ledger, err := OpenLedger(path)
	require.NoError(t, err)
	require.NoError(t, ledger.StartRun(ctx, NewRunSummary(VariantCamera, "out"), "root", "mini"))
	require.NoError(t, ledger.Close())

	ledger, err = OpenLedger(path)
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.True(t, runs[0].Finished.IsZero())
}
