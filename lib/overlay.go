package lib

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	"github.com/anthonynsimon/bild/blend"
	"github.com/mitroadmaps/gomapinfer/common"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/palette/moreland"
)

func DefaultCategoryColors() map[string][3]uint8 {
	return map[string][3]uint8{
		"Vehicle":           {100, 0, 0},
		"Pedestrian":        {0, 100, 0},
		"TrafficSign":       {0, 0, 100},
		"VulnerableVehicle": {0, 100, 100},
	}
}

// ColorTable maps an object category to its box colour.
type ColorTable struct {
	Colors  map[string][3]uint8
	Default [3]uint8
}

func (t ColorTable) ColorFor(category string) [3]uint8 {
	if c, ok := t.Colors[category]; ok {
		return c
	}
	return t.Default
}

// OverlayBox3D draws the twelve projected edges of a camera-frame box.
// Boxes with a corner behind the image plane are left out and reported with
// ErrBehindCamera.
func OverlayBox3D(im Image, box Box3D, cam CameraCalibration, color [3]uint8, thickness int) error {
	var pixels [8]common.Point
	for i, corner := range box.Corners() {
		p, err := cam.Project(corner)
		if err != nil {
			return err
		}
		pixels[i] = p
	}
	for _, edge := range boxEdges {
		im.DrawLine(pixels[edge[0]], pixels[edge[1]], thickness, color)
	}
	return nil
}

// PolygonsToMask rasterizes filled polygons into a width x height alpha mask.
// Overlapping polygons merge into their union.
func PolygonsToMask(polygons []common.Polygon, width, height int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	z := vector.NewRasterizer(width, height)
	z.DrawOp = draw.Src
	drawn := 0
	for _, poly := range polygons {
		if len(poly) < 3 {
			continue
		}
		// coverage is |winding| clamped to 1, so opposite windings would cancel
		if signedArea(poly) < 0 {
			poly = reversed(poly)
		}
		z.MoveTo(float32(poly[0].X), float32(poly[0].Y))
		for _, p := range poly[1:] {
			z.LineTo(float32(p.X), float32(p.Y))
		}
		z.ClosePath()
		drawn++
	}
	if drawn > 0 {
		z.Draw(mask, mask.Rect, image.Opaque, image.Point{})
	}
	return mask
}

func signedArea(poly common.Polygon) float64 {
	var area float64
	for i, p := range poly {
		q := poly[(i+1)%len(poly)]
		area += p.X*q.Y - q.X*p.Y
	}
	return area / 2
}

func reversed(poly common.Polygon) common.Polygon {
	out := make(common.Polygon, len(poly))
	for i, p := range poly {
		out[len(poly)-1-i] = p
	}
	return out
}

func maskCovers(mask *image.Alpha, x, y int) bool {
	return mask.AlphaAt(x, y).A >= 128
}

// OverlayMask alpha-blends fill onto the pixels covered by mask; every other
// pixel is left as it was.
func OverlayMask(im Image, mask *image.Alpha, fill [3]uint8, alpha float64) Image {
	if mask.Rect.Dx() != im.Width || mask.Rect.Dy() != im.Height {
		return im
	}
	fg := im.Copy()
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			if maskCovers(mask, x, y) {
				fg.SetRGB(x, y, fill)
			}
		}
	}
	blended := blend.Opacity(im, fg, alpha)
	out := im.Copy()
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			if !maskCovers(mask, x, y) {
				continue
			}
			off := blended.PixOffset(x, y)
			out.SetRGB(x, y, [3]uint8{blended.Pix[off], blended.Pix[off+1], blended.Pix[off+2]})
		}
	}
	return out
}

type LidarStyle struct {
	PointRadius int
	MaxDepth    float64
}

type projectedPoint struct {
	pixel common.Point
	depth float64
}

// OverlayLidar projects a LiDAR-frame cloud onto the camera image, coloured by
// distance (near red, far blue). Far points are drawn first. It returns the
// number of points that landed on the image.
func OverlayLidar(im Image, pc *PointCloud, lidar LidarCalibration, cam CameraCalibration, style LidarStyle) (int, error) {
	egoToCam, err := cam.EgoToCamera()
	if err != nil {
		return 0, err
	}
	lidarToCam := egoToCam.Mul(lidar.Extrinsics)

	var visible []projectedPoint
	for _, p := range pc.Points {
		pCam := lidarToCam.Apply(p)
		pixel, err := cam.Project(pCam)
		if err != nil {
			continue
		}
		if pixel.X < 0 || pixel.Y < 0 || pixel.X >= float64(im.Width) || pixel.Y >= float64(im.Height) {
			continue
		}
		visible = append(visible, projectedPoint{pixel: pixel, depth: r3.Norm(pCam)})
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].depth > visible[j].depth
	})

	maxDepth := style.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 100
	}
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(maxDepth)
	for _, pt := range visible {
		v := maxDepth - pt.depth
		if v < 0 {
			v = 0
		}
		c, err := cmap.At(v)
		if err != nil {
			return 0, fmt.Errorf("depth colour: %w", err)
		}
		r, g, b, _ := c.RGBA()
		im.FillCircle(int(pt.pixel.X), int(pt.pixel.Y), style.PointRadius, [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)})
	}
	return len(visible), nil
}

// OverlayEgoMotion draws the ego trajectory from keyTimestamp onwards, in the
// ego frame at keyTimestamp, as discs on the camera image. It returns how
// many trajectory samples were drawn.
func OverlayEgoMotion(im Image, ego *EgoMotion, keyTimestamp float64, cam CameraCalibration, color [3]uint8, radius int) (int, error) {
	track := ego.Track()
	current, err := track.PoseAt(keyTimestamp)
	if err != nil {
		return 0, err
	}
	worldToEgo, err := current.Inverse()
	if err != nil {
		return 0, err
	}
	egoToCam, err := cam.EgoToCamera()
	if err != nil {
		return 0, err
	}
	worldToCam := egoToCam.Mul(worldToEgo)

	drawn := 0
	for i, ts := range ego.Timestamps {
		if ts < keyTimestamp {
			continue
		}
		pos := worldToCam.Apply(ego.Poses[i].Translation())
		pixel, err := cam.Project(pos)
		if err != nil {
			continue
		}
		if pixel.X < 0 || pixel.Y < 0 || pixel.X >= float64(im.Width) || pixel.Y >= float64(im.Height) {
			continue
		}
		im.FillCircle(int(pixel.X), int(pixel.Y), radius, color)
		drawn++
	}
	return drawn, nil
}
