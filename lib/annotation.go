package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mitroadmaps/gomapinfer/common"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrAnnotationUnavailable marks an annotation project that was never run
// on a frame. It is an expected absence, not a failure.
var ErrAnnotationUnavailable = errors.New("annotation project not available for frame")

type AnnotationProject string

const (
	ObjectDetection AnnotationProject = "object_detection"
	LaneMarkings    AnnotationProject = "lane_markings"
	EgoRoad         AnnotationProject = "ego_road"
)

type Box2D struct {
	XYXY [4]float64 `json:"xyxy"`
}

func (b Box2D) Rectangle() common.Rectangle {
	return common.Rectangle{
		Min: common.Point{X: b.XYXY[0], Y: b.XYXY[1]},
		Max: common.Point{X: b.XYXY[2], Y: b.XYXY[3]},
	}
}

// Box3D is an oriented box in front-camera coordinates. Size is
// (length, width, height) along the box's local x, y, z axes.
type Box3D struct {
	Center      [3]float64 `json:"center"`
	Size        [3]float64 `json:"size"`
	Orientation [4]float64 `json:"orientation"` // qw, qx, qy, qz
}

func (b Box3D) rotation() quat.Number {
	return quat.Number{Real: b.Orientation[0], Imag: b.Orientation[1], Jmag: b.Orientation[2], Kmag: b.Orientation[3]}
}

// Corners returns the eight box corners: the first four on the -z face, the
// last four on the +z face, each face in the same winding.
func (b Box3D) Corners() [8]r3.Vec {
	l, w, h := b.Size[0]/2, b.Size[1]/2, b.Size[2]/2
	local := [8]r3.Vec{
		{X: l, Y: w, Z: -h}, {X: l, Y: -w, Z: -h}, {X: -l, Y: -w, Z: -h}, {X: -l, Y: w, Z: -h},
		{X: l, Y: w, Z: h}, {X: l, Y: -w, Z: h}, {X: -l, Y: -w, Z: h}, {X: -l, Y: w, Z: h},
	}
	center := r3.Vec{X: b.Center[0], Y: b.Center[1], Z: b.Center[2]}
	q := b.rotation()
	var corners [8]r3.Vec
	for i, c := range local {
		corners[i] = r3.Add(center, RotateVec(q, c))
	}
	return corners
}

// boxEdges indexes Corners() pairs.
var boxEdges = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

type ObjectAnnotation struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Box2D *Box2D `json:"box2d,omitempty"`
	Box3D *Box3D `json:"box3d,omitempty"`
}

type PolygonGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// PolygonAnnotation covers both lane markings and ego road, in image pixels.
type PolygonAnnotation struct {
	UUID     string          `json:"uuid"`
	Geometry PolygonGeometry `json:"geometry"`
}

func (a PolygonAnnotation) Polygon() common.Polygon {
	poly := make(common.Polygon, 0, len(a.Geometry.Coordinates))
	for _, c := range a.Geometry.Coordinates {
		poly = append(poly, common.Point{X: c[0], Y: c[1]})
	}
	return poly
}

func ReadObjectAnnotations(fname string) ([]ObjectAnnotation, error) {
	var annotations []ObjectAnnotation
	if err := ReadJsonFile(fname, &annotations); err != nil {
		return nil, fmt.Errorf("object annotations: %w", err)
	}
	return annotations, nil
}

func ReadPolygonAnnotations(fname string) ([]PolygonAnnotation, error) {
	var annotations []PolygonAnnotation
	if err := ReadJsonFile(fname, &annotations); err != nil {
		return nil, fmt.Errorf("polygon annotations: %w", err)
	}
	for i, a := range annotations {
		if a.Geometry.Type != "" && a.Geometry.Type != "Polygon" {
			return nil, fmt.Errorf("polygon annotation %d: unsupported geometry %q", i, a.Geometry.Type)
		}
	}
	return annotations, nil
}

// ErrEgoMotionUnavailable marks a frame without ego-motion records.
var ErrEgoMotionUnavailable = errors.New("ego motion not available for frame")

// EgoMotion holds ego poses (ego -> local world) with their unix timestamps.
type EgoMotion struct {
	Timestamps []float64   `json:"timestamps"`
	Poses      []Transform `json:"poses"`
}

func (em *EgoMotion) Track() PoseTrack {
	return PoseTrack{Timestamps: em.Timestamps, Poses: em.Poses}
}

func ReadEgoMotion(fname string) (*EgoMotion, error) {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("read ego motion: %w", err)
	}
	var em EgoMotion
	if err := json.Unmarshal(bytes, &em); err != nil {
		return nil, fmt.Errorf("parse ego motion %s: %w", fname, err)
	}
	if len(em.Timestamps) != len(em.Poses) {
		return nil, fmt.Errorf("ego motion %s: %d timestamps for %d poses", fname, len(em.Timestamps), len(em.Poses))
	}
	for i := 1; i < len(em.Timestamps); i++ {
		if em.Timestamps[i] <= em.Timestamps[i-1] {
			return nil, fmt.Errorf("ego motion %s: timestamps not increasing at %d", fname, i)
		}
	}
	return &em, nil
}
