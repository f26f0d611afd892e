package lib

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mitchellh/colorstring"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	SummaryFilename = "run_summary.json"
	ConfigFilename  = "run_config.yaml"
)

var layerStatusColors = map[LayerStatus]string{
	LayerApplied: "green",
	LayerSkipped: "yellow",
	LayerFailed:  "red",
}

// PrintSummary writes a coloured, human readable run summary.
func PrintSummary(w io.Writer, s *RunSummary) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "\nRun %s (%s)\n", s.RunID, s.Variant)
	colorstring.Fprintf(w, "Frames: %d, succeeded: [green]%d[reset], degraded: [yellow]%d[reset], failed: [red]%d[reset]\n",
		s.Total(), s.Frames[FrameSucceeded], s.Frames[FrameDegraded], s.Frames[FrameFailed])

	layers := make([]string, 0, len(s.Layers))
	for name := range s.Layers {
		layers = append(layers, name)
	}
	sort.Strings(layers)
	for _, name := range layers {
		counts := s.Layers[name]
		fmt.Fprintf(w, "  %-14s", name)
		for _, status := range []LayerStatus{LayerApplied, LayerSkipped, LayerFailed} {
			colorstring.Fprint(w, fmt.Sprintf(" %s: [%s]%d[reset]", status, layerStatusColors[status], counts[status]))
		}
		fmt.Fprintln(w)
	}
	if s.Cancelled {
		colorstring.Fprintln(w, "[red]cancelled before all frames were processed")
	}
	fmt.Fprintf(w, "Output: %s (%s)\n", s.OutputDir, s.Finished.Sub(s.Started).Round(time.Millisecond))
}

func SaveSummaryJSON(s *RunSummary) (string, error) {
	path := filepath.Join(s.OutputDir, SummaryFilename)
	if err := SaveJsonFile(path, s); err != nil {
		return "", fmt.Errorf("write run summary: %w", err)
	}
	return path, nil
}

// SaveSummaryPlot draws frame counts per status as a bar chart.
func SaveSummaryPlot(s *RunSummary, savePath string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame outcomes for %s", s.Variant)
	p.Y.Label.Text = "Frames"

	values := make(plotter.Values, len(FrameStatuses))
	names := make([]string, len(FrameStatuses))
	for i, status := range FrameStatuses {
		values[i] = float64(s.Frames[status])
		names[i] = string(status)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, savePath); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
