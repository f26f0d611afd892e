package lib

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type LayerStatus string

const (
	LayerApplied LayerStatus = "applied"
	LayerSkipped LayerStatus = "skipped"
	LayerFailed  LayerStatus = "failed"
)

const (
	LayerObjects      = "objects"
	LayerLaneMarkings = "lane_markings"
	LayerEgoRoad      = "ego_road"
	LayerEgoMotion    = "ego_motion"
)

type LayerResult struct {
	Layer  string      `json:"layer"`
	Status LayerStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// layerResult classifies err: nil is applied, an expected absence is
// skipped, anything else is failed.
func layerResult(layer string, err error) LayerResult {
	switch {
	case err == nil:
		return LayerResult{Layer: layer, Status: LayerApplied}
	case errors.Is(err, ErrAnnotationUnavailable), errors.Is(err, ErrEgoMotionUnavailable):
		return LayerResult{Layer: layer, Status: LayerSkipped, Reason: err.Error()}
	}
	return LayerResult{Layer: layer, Status: LayerFailed, Reason: err.Error()}
}

type FrameStatus string

const (
	FrameSucceeded FrameStatus = "succeeded"
	FrameDegraded  FrameStatus = "degraded"
	FrameFailed    FrameStatus = "failed"
)

var FrameStatuses = []FrameStatus{FrameSucceeded, FrameDegraded, FrameFailed}

type FrameOutcome struct {
	Index    int           `json:"index"`
	FrameID  string        `json:"frame_id"`
	Path     string        `json:"path,omitempty"`
	Layers   []LayerResult `json:"layers,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (o FrameOutcome) Status() FrameStatus {
	if o.Err != "" || o.Path == "" {
		return FrameFailed
	}
	for _, l := range o.Layers {
		if l.Status != LayerApplied {
			return FrameDegraded
		}
	}
	return FrameSucceeded
}

// LayersWith lists the names of layers that ended in status.
func (o FrameOutcome) LayersWith(status LayerStatus) []string {
	var names []string
	for _, l := range o.Layers {
		if l.Status == status {
			names = append(names, l.Layer)
		}
	}
	return names
}

type RunSummary struct {
	RunID     string                         `json:"run_id"`
	Variant   string                         `json:"variant"`
	OutputDir string                         `json:"output_dir"`
	Started   time.Time                      `json:"started"`
	Finished  time.Time                      `json:"finished"`
	Frames    map[FrameStatus]int            `json:"frames"`
	Layers    map[string]map[LayerStatus]int `json:"layers"`
	Cancelled bool                           `json:"cancelled,omitempty"`
}

func NewRunSummary(variant string, outputDir string) *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		Variant:   variant,
		OutputDir: outputDir,
		Started:   time.Now(),
		Frames:    make(map[FrameStatus]int),
		Layers:    make(map[string]map[LayerStatus]int),
	}
}

func (s *RunSummary) Add(o FrameOutcome) {
	s.Frames[o.Status()]++
	for _, l := range o.Layers {
		counts, ok := s.Layers[l.Layer]
		if !ok {
			counts = make(map[LayerStatus]int)
			s.Layers[l.Layer] = counts
		}
		counts[l.Status]++
	}
}

func (s *RunSummary) Total() int {
	n := 0
	for _, c := range s.Frames {
		n += c
	}
	return n
}

// Written counts frames that produced an output file.
func (s *RunSummary) Written() int {
	return s.Frames[FrameSucceeded] + s.Frames[FrameDegraded]
}
