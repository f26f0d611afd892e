package lib

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

// Batch renders frames one after another with a single visualizer. A frame
// that fails is logged and counted; the batch moves on to the next one.
type Batch struct {
	Source        FrameSource
	Visualizer    Visualizer
	OutputDir     string
	ProgressEvery int
	ShowProgress  bool

	// Ledger is optional.
	Ledger         *Ledger
	DatasetRoot    string
	DatasetVersion string
}

func NewBatch(cfg Config, source FrameSource, vis Visualizer) *Batch {
	return &Batch{
		Source:         source,
		Visualizer:     vis,
		OutputDir:      cfg.OutputDir(vis.Prefix()),
		ProgressEvery:  cfg.RenderBase.ProgressEvery,
		ShowProgress:   cfg.RenderBase.ShowProgress,
		DatasetRoot:    cfg.DataBase.DataRoot,
		DatasetVersion: cfg.DataBase.Version,
	}
}

func newRenderBar(total int, prefix string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][%s][reset] Render frames", prefix)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// Run processes ids in order. It stops between frames once ctx is done and
// returns the partial summary together with ctx.Err().
func (b *Batch) Run(ctx context.Context, ids []string) (*RunSummary, error) {
	if err := os.MkdirAll(b.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	summary := NewRunSummary(b.Visualizer.Prefix(), b.OutputDir)
	if b.Ledger != nil {
		if err := b.Ledger.StartRun(ctx, summary, b.DatasetRoot, b.DatasetVersion); err != nil {
			return nil, err
		}
	}
	every := b.ProgressEvery
	if every < 1 {
		every = 10
	}

	var bar *progressbar.ProgressBar
	if b.ShowProgress {
		bar = newRenderBar(len(ids), b.Visualizer.Prefix())
	}

	var runErr error
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			runErr = err
			log.Printf("[Batch] stopping after %d of %d frames: %v", i, len(ids), err)
			break
		}

		outcome := b.renderFrame(i, id)
		summary.Add(outcome)
		if outcome.Err != "" {
			log.Printf("[Batch] Error processing frame %s: %s", id, outcome.Err)
		} else {
			for _, l := range outcome.Layers {
				if l.Status == LayerFailed {
					log.Printf("[Batch] frame %s: layer %s failed: %s", id, l.Layer, l.Reason)
				}
			}
			if i%every == 0 {
				log.Printf("[Batch] Saved: %s", outcome.Path)
			}
		}
		if b.Ledger != nil {
			// the frame is on disk; record it even if the run was just cancelled
			if err := b.Ledger.RecordFrame(context.WithoutCancel(ctx), summary.RunID, outcome); err != nil {
				log.Printf("[Batch] ledger: %v", err)
			}
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	summary.Finished = time.Now()
	if b.Ledger != nil {
		if err := b.Ledger.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			log.Printf("[Batch] ledger: %v", err)
		}
	}
	return summary, runErr
}

func (b *Batch) renderFrame(index int, id string) (outcome FrameOutcome) {
	start := time.Now()
	outcome = FrameOutcome{Index: index, FrameID: id}
	defer func() {
		if r := recover(); r != nil {
			outcome.Path = ""
			outcome.Err = fmt.Sprintf("panic: %v", r)
			outcome.Duration = time.Since(start)
		}
	}()
	path, layers, err := b.writeFrame(id)
	outcome.Layers = layers
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Err = err.Error()
		return outcome
	}
	outcome.Path = path
	return outcome
}

func (b *Batch) writeFrame(id string) (string, []LayerResult, error) {
	name, err := FrameFilename(b.Visualizer.Prefix(), id)
	if err != nil {
		return "", nil, err
	}
	frame, err := b.Source.Frame(id)
	if err != nil {
		return "", nil, err
	}
	im, layers, err := b.Visualizer.Render(frame)
	if err != nil {
		return "", layers, err
	}
	path := filepath.Join(b.OutputDir, name)
	if err := imaging.Save(im.AsImage(), path, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return "", layers, fmt.Errorf("write %s: %w", path, err)
	}
	return path, layers, nil
}
