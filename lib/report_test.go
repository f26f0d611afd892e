package lib

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary(t *testing.T) *RunSummary {
	s := NewRunSummary(VariantCamera, t.TempDir())
	s.Add(FrameOutcome{Path: "a.png", Layers: []LayerResult{{Layer: LayerObjects, Status: LayerApplied}}})
	s.Add(FrameOutcome{Path: "b.png", Layers: []LayerResult{{Layer: LayerObjects, Status: LayerSkipped}}})
	s.Add(FrameOutcome{Err: "boom"})
	s.Finished = s.Started.Add(2 * time.Second)
	return s
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	s := testSummary(t)
	PrintSummary(&buf, s)
	out := buf.String()
	assert.Contains(t, out, s.RunID)
	assert.Contains(t, out, "Frames: 3")
	assert.Contains(t, out, LayerObjects)
	assert.Contains(t, out, s.OutputDir)
	assert.NotContains(t, out, "cancelled")
}

func TestSaveSummaryJSON(t *testing.T) {
	s := testSummary(t)
	path, err := SaveSummaryJSON(s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.OutputDir, SummaryFilename), path)

	var loaded RunSummary
	require.NoError(t, ReadJsonFile(path, &loaded))
	assert.Equal(t, s.RunID, loaded.RunID)
	assert.Equal(t, 1, loaded.Frames[FrameFailed])
	assert.Equal(t, 1, loaded.Layers[LayerObjects][LayerSkipped])
}

func TestSaveSummaryPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "outcomes.png")
	require.NoError(t, SaveSummaryPlot(testSummary(t), path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
