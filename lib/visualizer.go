package lib

import (
	"errors"
	"fmt"

	"github.com/mitroadmaps/gomapinfer/common"
)

const LayerLidar = "lidar"

// Visualizer renders one frame into an output image. Prefix names both the
// output files and the variant.
type Visualizer interface {
	Prefix() string
	Render(frame Frame) (Image, []LayerResult, error)
}

func NewVisualizer(cfg Config) (Visualizer, error) {
	mode, err := ParseAnonymization(cfg.RenderBase.Anonymization)
	if err != nil {
		return nil, err
	}
	style := LidarStyle{
		PointRadius: cfg.LidarBase.PointRadius,
		MaxDepth:    cfg.LidarBase.MaxDepth,
	}
	switch cfg.RenderBase.Variant {
	case VariantCamera:
		return &CameraOverlay{
			Anonymization:   mode,
			Colors:          ColorTable{Colors: cfg.RenderBase.CategoryColors, Default: cfg.RenderBase.DefaultColor},
			LineThickness:   cfg.RenderBase.BoxLineThickness,
			MaskAlpha:       cfg.RenderBase.MaskAlpha,
			LaneColor:       cfg.RenderBase.LaneColor,
			EgoRoadColor:    cfg.RenderBase.EgoRoadColor,
			EgoMotionColor:  cfg.RenderBase.EgoMotionColor,
			EgoMotionRadius: cfg.RenderBase.EgoMotionRadius,
		}, nil
	case VariantLidarCompensated:
		return &LidarOnCamera{Style: style}, nil
	case VariantLidar:
		return &LidarOnWhite{
			Style:     style,
			NumBefore: cfg.LidarBase.NumBefore,
			NumAfter:  cfg.LidarBase.NumAfter,
		}, nil
	}
	return nil, fmt.Errorf("unknown variant %q", cfg.RenderBase.Variant)
}

func frontCamera(frame Frame) (*Calibration, CameraCalibration, error) {
	calib, err := frame.Calibration()
	if err != nil {
		return nil, CameraCalibration{}, err
	}
	cam, err := calib.Camera(CameraFront)
	if err != nil {
		return nil, CameraCalibration{}, err
	}
	return calib, cam, nil
}

func keyframeTimestamp(frame Frame) float64 {
	return unixSeconds(frame.KeyframeTime())
}

// CameraOverlay draws object boxes, lane and ego-road masks and the ego
// trajectory on the front camera image. Each layer is best effort.
type CameraOverlay struct {
	Anonymization   Anonymization
	Colors          ColorTable
	LineThickness   int
	MaskAlpha       float64
	LaneColor       [3]uint8
	EgoRoadColor    [3]uint8
	EgoMotionColor  [3]uint8
	EgoMotionRadius int
}

func (v *CameraOverlay) Prefix() string {
	return VariantCamera
}

func (v *CameraOverlay) Render(frame Frame) (Image, []LayerResult, error) {
	mode := v.Anonymization
	if mode == "" {
		mode = AnonymizationDNAT
	}
	im, err := frame.Image(mode)
	if err != nil {
		return Image{}, nil, err
	}

	layers := make([]LayerResult, 0, 4)
	layers = append(layers, layerResult(LayerObjects, v.drawObjects(im, frame)))

	lanes, err := v.drawPolygons(im, frame, LaneMarkings, v.LaneColor)
	if err == nil {
		im = lanes
	}
	layers = append(layers, layerResult(LayerLaneMarkings, err))

	road, err := v.drawPolygons(im, frame, EgoRoad, v.EgoRoadColor)
	if err == nil {
		im = road
	}
	layers = append(layers, layerResult(LayerEgoRoad, err))

	layers = append(layers, layerResult(LayerEgoMotion, v.drawEgoMotion(im, frame)))
	return im, layers, nil
}

func (v *CameraOverlay) drawObjects(im Image, frame Frame) error {
	annotations, err := frame.ObjectAnnotations()
	if err != nil {
		return err
	}
	_, cam, err := frontCamera(frame)
	if err != nil {
		return err
	}
	for _, a := range annotations {
		if a.Box3D == nil {
			continue
		}
		err := OverlayBox3D(im, *a.Box3D, cam, v.Colors.ColorFor(a.Name), v.LineThickness)
		if err != nil && !errors.Is(err, ErrBehindCamera) {
			return fmt.Errorf("object %s: %w", a.UUID, err)
		}
	}
	return nil
}

// drawPolygons returns a new image; on error im is untouched.
func (v *CameraOverlay) drawPolygons(im Image, frame Frame, project AnnotationProject, fill [3]uint8) (Image, error) {
	annotations, err := frame.PolygonAnnotations(project)
	if err != nil {
		return im, err
	}
	polygons := make([]common.Polygon, 0, len(annotations))
	for _, a := range annotations {
		polygons = append(polygons, a.Polygon())
	}
	mask := PolygonsToMask(polygons, im.Width, im.Height)
	return OverlayMask(im, mask, fill, v.MaskAlpha), nil
}

func (v *CameraOverlay) drawEgoMotion(im Image, frame Frame) error {
	ego, err := frame.EgoMotion()
	if err != nil {
		return err
	}
	_, cam, err := frontCamera(frame)
	if err != nil {
		return err
	}
	_, err = OverlayEgoMotion(im, ego, keyframeTimestamp(frame), cam, v.EgoMotionColor, v.EgoMotionRadius)
	return err
}

// LidarOnCamera projects the core sweep, compensated to the keyframe time,
// onto the default-anonymized camera image.
type LidarOnCamera struct {
	Style LidarStyle
}

func (v *LidarOnCamera) Prefix() string {
	return VariantLidarCompensated
}

func (v *LidarOnCamera) Render(frame Frame) (Image, []LayerResult, error) {
	im, err := frame.Image(AnonymizationDefault)
	if err != nil {
		return Image{}, nil, err
	}
	calib, cam, err := frontCamera(frame)
	if err != nil {
		return Image{}, nil, err
	}
	lidarCalib, err := calib.Lidar(LidarVelodyne)
	if err != nil {
		return Image{}, nil, err
	}
	pc, err := frame.CoreLidar()
	if err != nil {
		return Image{}, nil, err
	}
	compensated, err := frame.CompensateLidar(pc, keyframeTimestamp(frame))
	if err != nil {
		return Image{}, nil, err
	}
	if _, err := OverlayLidar(im, compensated, lidarCalib, cam, v.Style); err != nil {
		return Image{}, nil, err
	}
	return im, []LayerResult{{Layer: LayerLidar, Status: LayerApplied}}, nil
}

// LidarOnWhite projects an aggregated, compensated cloud onto a white canvas
// the size of the camera image.
type LidarOnWhite struct {
	Style     LidarStyle
	NumBefore int
	NumAfter  int
}

func (v *LidarOnWhite) Prefix() string {
	return VariantLidar
}

func (v *LidarOnWhite) Render(frame Frame) (Image, []LayerResult, error) {
	camera, err := frame.Image(AnonymizationDefault)
	if err != nil {
		return Image{}, nil, err
	}
	im := NewWhiteImage(camera.Width, camera.Height)
	calib, cam, err := frontCamera(frame)
	if err != nil {
		return Image{}, nil, err
	}
	lidarCalib, err := calib.Lidar(LidarVelodyne)
	if err != nil {
		return Image{}, nil, err
	}
	pc, err := frame.AggregatedLidar(v.NumBefore, v.NumAfter, keyframeTimestamp(frame))
	if err != nil {
		return Image{}, nil, err
	}
	if _, err := OverlayLidar(im, pc, lidarCalib, cam, v.Style); err != nil {
		return Image{}, nil, err
	}
	return im, []LayerResult{{Layer: LayerLidar, Status: LayerApplied}}, nil
}
