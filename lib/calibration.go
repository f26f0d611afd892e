package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/mitroadmaps/gomapinfer/common"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrBehindCamera = errors.New("point behind camera")

type Camera string

const (
	CameraFront Camera = "front"
)

const calibKeyFrontCamera = "FC"

type CameraCalibration struct {
	// Extrinsics maps camera coordinates to the ego frame.
	Extrinsics      Transform     `json:"extrinsics"`
	Intrinsics      [3][3]float64 `json:"intrinsics"`
	Distortion      []float64     `json:"distortion,omitempty"`
	ImageDimensions [2]int        `json:"image_dimensions"`
}

type LidarCalibration struct {
	// Extrinsics maps LiDAR coordinates to the ego frame.
	Extrinsics Transform `json:"extrinsics"`
}

type Calibration struct {
	Cameras map[Camera]CameraCalibration
	Lidars  map[string]LidarCalibration
}

type calibrationFile struct {
	FrontCamera   *CameraCalibration `json:"FC"`
	LidarVelodyne *LidarCalibration  `json:"lidar_velodyne"`
}

func ReadCalibration(fname string) (*Calibration, error) {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	var raw calibrationFile
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", fname, err)
	}
	if raw.FrontCamera == nil {
		return nil, fmt.Errorf("calibration %s: missing %q", fname, calibKeyFrontCamera)
	}
	calib := &Calibration{
		Cameras: map[Camera]CameraCalibration{CameraFront: *raw.FrontCamera},
		Lidars:  map[string]LidarCalibration{},
	}
	if raw.LidarVelodyne != nil {
		calib.Lidars[LidarVelodyne] = *raw.LidarVelodyne
	}
	return calib, nil
}

func (c *Calibration) Camera(cam Camera) (CameraCalibration, error) {
	cc, ok := c.Cameras[cam]
	if !ok {
		return CameraCalibration{}, fmt.Errorf("no calibration for camera %q", cam)
	}
	return cc, nil
}

func (c *Calibration) Lidar(name string) (LidarCalibration, error) {
	lc, ok := c.Lidars[name]
	if !ok {
		return LidarCalibration{}, fmt.Errorf("no calibration for lidar %q", name)
	}
	return lc, nil
}

func (cc CameraCalibration) fisheye() bool {
	for _, k := range cc.Distortion {
		if k != 0 {
			return true
		}
	}
	return false
}

// Project maps a point in camera coordinates (z forward) to pixels. Cameras
// with non-zero distortion use the Kannala-Brandt fisheye model, others a
// plain pinhole.
func (cc CameraCalibration) Project(p r3.Vec) (common.Point, error) {
	if p.Z <= 0 {
		return common.Point{}, ErrBehindCamera
	}
	var xd, yd float64
	if cc.fisheye() {
		r := math.Hypot(p.X, p.Y)
		theta := math.Atan2(r, p.Z)
		var k [4]float64
		copy(k[:], cc.Distortion)
		t2 := theta * theta
		thetaD := theta * (1 + k[0]*t2 + k[1]*t2*t2 + k[2]*t2*t2*t2 + k[3]*t2*t2*t2*t2)
		if r > 0 {
			xd = thetaD * p.X / r
			yd = thetaD * p.Y / r
		}
	} else {
		xd = p.X / p.Z
		yd = p.Y / p.Z
	}
	K := cc.Intrinsics
	return common.Point{
		X: K[0][0]*xd + K[0][1]*yd + K[0][2],
		Y: K[1][1]*yd + K[1][2],
	}, nil
}

// EgoToCamera returns the transform from ego coordinates into this camera.
func (cc CameraCalibration) EgoToCamera() (Transform, error) {
	return cc.Extrinsics.Inverse()
}
