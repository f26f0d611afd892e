package lib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCameraOverlay(t *testing.T) Visualizer {
	t.Helper()
	vis, err := NewVisualizer(DefaultConfig())
	require.NoError(t, err)
	return vis
}

func layerStatuses(layers []LayerResult) map[string]LayerStatus {
	out := make(map[string]LayerStatus, len(layers))
	for _, l := range layers {
		out[l.Layer] = l.Status
	}
	return out
}

func TestNewVisualizerVariants(t *testing.T) {
	for _, variant := range Variants {
		cfg := DefaultConfig()
		cfg.RenderBase.Variant = variant
		vis, err := NewVisualizer(cfg)
		require.NoError(t, err)
		assert.Equal(t, variant, vis.Prefix())
	}
	cfg := DefaultConfig()
	cfg.RenderBase.Variant = "sketch"
	_, err := NewVisualizer(cfg)
	assert.Error(t, err)
}

func TestCameraOverlayAllLayers(t *testing.T) {
	frame := newFakeFrame("1")
	im, layers, err := testCameraOverlay(t).Render(frame)
	require.NoError(t, err)
	assert.Equal(t, map[string]LayerStatus{
		LayerObjects:      LayerApplied,
		LayerLaneMarkings: LayerApplied,
		LayerEgoRoad:      LayerApplied,
		LayerEgoMotion:    LayerApplied,
	}, layerStatuses(layers))

	assert.Equal(t, 100, im.Width)
	assert.Equal(t, 300*100, len(im.Bytes))
	// lane (100,100,0) then ego road (100,0,100), each blended at 0.5 over black
	lane := im.GetRGB(20, 80)
	assert.InDelta(t, 75, int(lane[0]), 2)
	assert.InDelta(t, 25, int(lane[1]), 2)
	assert.InDelta(t, 50, int(lane[2]), 2)
	// ego trajectory disc
	assert.Equal(t, [3]uint8{255, 0, 0}, im.GetRGB(50, 50))
}

func TestCameraOverlayUnavailableLayersAreSkipped(t *testing.T) {
	frame := newFakeFrame("1")
	frame.polyErr[LaneMarkings] = fmt.Errorf("frame 1: %w", ErrAnnotationUnavailable)
	frame.egoErr = fmt.Errorf("frame 1: %w", ErrEgoMotionUnavailable)

	im, layers, err := testCameraOverlay(t).Render(frame)
	require.NoError(t, err)
	statuses := layerStatuses(layers)
	assert.Equal(t, LayerSkipped, statuses[LayerLaneMarkings])
	assert.Equal(t, LayerSkipped, statuses[LayerEgoMotion])
	assert.Equal(t, LayerApplied, statuses[LayerObjects])
	assert.Equal(t, LayerApplied, statuses[LayerEgoRoad])
	assert.NotEqual(t, [3]uint8{255, 0, 0}, im.GetRGB(50, 50))
}

func TestCameraOverlayLayerFailureIsIsolated(t *testing.T) {
	frame := newFakeFrame("1")
	frame.polyErr[LaneMarkings] = errors.New("lane json truncated")

	im, layers, err := testCameraOverlay(t).Render(frame)
	require.NoError(t, err)
	statuses := layerStatuses(layers)
	assert.Equal(t, LayerFailed, statuses[LayerLaneMarkings])
	assert.Equal(t, LayerApplied, statuses[LayerObjects])
	assert.Equal(t, LayerApplied, statuses[LayerEgoRoad])
	assert.Equal(t, LayerApplied, statuses[LayerEgoMotion])

	// only the ego-road fill is present
	road := im.GetRGB(20, 80)
	assert.InDelta(t, 50, int(road[0]), 2)
	assert.Equal(t, uint8(0), road[1])
	assert.InDelta(t, 50, int(road[2]), 2)

	for _, l := range layers {
		if l.Layer == LayerLaneMarkings {
			assert.Contains(t, l.Reason, "truncated")
		}
	}
}

func TestCameraOverlayImageFailureFailsFrame(t *testing.T) {
	frame := newFakeFrame("1")
	frame.imageErr = errors.New("corrupt jpeg")
	_, _, err := testCameraOverlay(t).Render(frame)
	assert.ErrorContains(t, err, "corrupt jpeg")
}

func TestCameraOverlayIsDeterministic(t *testing.T) {
	vis := testCameraOverlay(t)
	a, _, err := vis.Render(newFakeFrame("1"))
	require.NoError(t, err)
	b, _, err := vis.Render(newFakeFrame("1"))
	require.NoError(t, err)
	assert.Equal(t, a.Bytes, b.Bytes)
}

func TestLidarOnCamera(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RenderBase.Variant = VariantLidarCompensated
	vis, err := NewVisualizer(cfg)
	require.NoError(t, err)

	im, layers, err := vis.Render(newFakeFrame("1"))
	require.NoError(t, err)
	assert.Equal(t, []LayerResult{{Layer: LayerLidar, Status: LayerApplied}}, layers)
	assert.NotEqual(t, [3]uint8{}, im.GetRGB(50, 50))
	assert.Equal(t, [3]uint8{}, im.GetRGB(5, 5))

	frame := newFakeFrame("1")
	frame.lidarErr = errors.New("sweep missing")
	_, _, err = vis.Render(frame)
	assert.Error(t, err)
}

func TestLidarOnWhite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RenderBase.Variant = VariantLidar
	vis, err := NewVisualizer(cfg)
	require.NoError(t, err)

	im, _, err := vis.Render(newFakeFrame("1"))
	require.NoError(t, err)
	assert.Equal(t, 100, im.Width)
	assert.Equal(t, [3]uint8{255, 255, 255}, im.GetRGB(5, 5))
	assert.NotEqual(t, [3]uint8{255, 255, 255}, im.GetRGB(50, 50))
}

func TestCameraOverlayOnDataset(t *testing.T) {
	ds, err := NewDataset(writeTestDataset(t), "mini")
	require.NoError(t, err)
	frame, err := ds.Frame("000002")
	require.NoError(t, err)

	_, layers, err := testCameraOverlay(t).Render(frame)
	require.NoError(t, err)
	assert.Equal(t, map[string]LayerStatus{
		LayerObjects:      LayerApplied,
		LayerLaneMarkings: LayerSkipped,
		LayerEgoRoad:      LayerSkipped,
		LayerEgoMotion:    LayerSkipped,
	}, layerStatuses(layers))
}
