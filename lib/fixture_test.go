package lib

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type npyPoint struct {
	ts        float64
	x, y, z   float32
	intensity uint8
	diode     uint8
}

const npyLidarDescr = "[('timestamp', '<f8'), ('x', '<f4'), ('y', '<f4'), ('z', '<f4'), ('intensity', '|u1'), ('diode_index', '|u1')]"

// encodeNpyHeader returns a version 1.0 preamble and header for a 1-D
// structured array of count records.
func encodeNpyHeader(t *testing.T, descr string, count int) []byte {
	t.Helper()
	header := fmt.Sprintf("{'descr': %s, 'fortran_order': False, 'shape': (%d,), }", descr, count)
	// pad so that magic + version + len + header is a multiple of 64, ending in \n
	total := 10 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += string(bytes.Repeat([]byte(" "), 64-rem))
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	return buf.Bytes()
}

func encodeLidarNpy(t *testing.T, points []npyPoint) []byte {
	t.Helper()
	buf := bytes.NewBuffer(encodeNpyHeader(t, npyLidarDescr, len(points)))
	for _, p := range points {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, math.Float64bits(p.ts)))
		for _, v := range []float32{p.x, p.y, p.z} {
			require.NoError(t, binary.Write(buf, binary.LittleEndian, math.Float32bits(v)))
		}
		buf.WriteByte(p.intensity)
		buf.WriteByte(p.diode)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	writeFile(t, path, data)
}

func writeImage(t *testing.T, path string, width, height int, color [3]uint8) {
	t.Helper()
	im := NewImage(width, height)
	im.FillRectangle(0, 0, width, height, color)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, imaging.Save(im.AsImage(), path))
}

// testCamera looks down +z with identity extrinsics, so camera, ego and
// lidar frames coincide.
func testCamera() CameraCalibration {
	return CameraCalibration{
		Extrinsics:      IdentityTransform(),
		Intrinsics:      [3][3]float64{{100, 0, 50}, {0, 100, 50}, {0, 0, 1}},
		ImageDimensions: [2]int{100, 100},
	}
}

func testCalibration() *Calibration {
	return &Calibration{
		Cameras: map[Camera]CameraCalibration{CameraFront: testCamera()},
		Lidars:  map[string]LidarCalibration{LidarVelodyne: {Extrinsics: IdentityTransform()}},
	}
}

var testKeyframe = time.Unix(1000, 0).UTC()

func translation(x, y, z float64) Transform {
	return NewTransform(IdentityTransform().Rotation(), r3.Vec{X: x, Y: y, Z: z})
}

// testEgoMotion moves the ego 5m along +z per second, so the pose one second
// after the keyframe lands in the middle of the test image.
func testEgoMotion() *EgoMotion {
	return &EgoMotion{
		Timestamps: []float64{999, 1000, 1001, 1002},
		Poses:      []Transform{translation(0, 0, -5), translation(0, 0, 0), translation(0, 0, 5), translation(0, 0, 10)},
	}
}

// writeTestDataset lays out a small dataset: frames 000001 and 000002 in
// train, 000003 in val. Frame 000002 has no lane or ego-road annotations and
// no ego motion.
func writeTestDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	calib := map[string]interface{}{
		"FC":             testCamera(),
		"lidar_velodyne": LidarCalibration{Extrinsics: IdentityTransform()},
	}
	writeJSON(t, filepath.Join(root, "calibration.json"), calib)
	writeJSON(t, filepath.Join(root, "ego_motion.json"), testEgoMotion())

	objects := []ObjectAnnotation{{
		UUID: "car-1",
		Name: "Vehicle",
		Box3D: &Box3D{
			Center:      [3]float64{0, 0, 10},
			Size:        [3]float64{2, 2, 2},
			Orientation: [4]float64{1, 0, 0, 0},
		},
	}}
	writeJSON(t, filepath.Join(root, "annotations", "objects.json"), objects)
	lanes := []PolygonAnnotation{{
		UUID: "lane-1",
		Geometry: PolygonGeometry{
			Type:        "Polygon",
			Coordinates: [][2]float64{{10, 60}, {90, 60}, {90, 90}, {10, 90}},
		},
	}}
	writeJSON(t, filepath.Join(root, "annotations", "lanes.json"), lanes)
	writeJSON(t, filepath.Join(root, "annotations", "road.json"), lanes)

	sweeps := []float64{999.9, 1000.0, 1000.1, 1000.2}
	lidarRefs := make([]LidarRef, len(sweeps))
	for i, ts := range sweeps {
		name := fmt.Sprintf("lidar/sweep_%d.npy", i)
		points := []npyPoint{
			{ts: ts, x: float32(i), y: 0, z: 10, intensity: 10, diode: 1},
			{ts: ts, x: 0, y: float32(i), z: 20, intensity: 20, diode: 2},
		}
		writeFile(t, filepath.Join(root, name), encodeLidarNpy(t, points))
		lidarRefs[i] = LidarRef{
			Filepath: name,
			Time:     time.Unix(0, int64(ts*1e9)).UTC(),
			IsCore:   i == 1,
		}
	}

	frame := func(id string, full bool) FrameInfo {
		img := fmt.Sprintf("images/%s_dnat.jpg", id)
		blur := fmt.Sprintf("images/%s_blur.png", id)
		writeImage(t, filepath.Join(root, img), 100, 100, [3]uint8{0, 0, 0})
		writeImage(t, filepath.Join(root, blur), 100, 100, [3]uint8{0, 0, 0})
		info := FrameInfo{
			ID:              id,
			KeyframeTime:    testKeyframe,
			CalibrationPath: "calibration.json",
			CameraFrames: map[string]FileRef{
				"front_dnat": {Filepath: img},
				"front_blur": {Filepath: blur},
			},
			LidarFrames: map[string][]LidarRef{LidarVelodyne: lidarRefs},
			Annotations: map[AnnotationProject]FileRef{
				ObjectDetection: {Filepath: "annotations/objects.json"},
			},
		}
		if full {
			info.EgoMotionPath = "ego_motion.json"
			info.Annotations[LaneMarkings] = FileRef{Filepath: "annotations/lanes.json"}
			info.Annotations[EgoRoad] = FileRef{Filepath: "annotations/road.json"}
		}
		return info
	}
	index := frameIndex{
		Train: []FrameInfo{frame("000001", true), frame("000002", false)},
		Val:   []FrameInfo{frame("000003", true)},
	}
	writeJSON(t, IndexPath(root, "mini"), index)
	return root
}

// fakeFrame is an in-memory Frame; each err field forces that accessor to
// fail.
type fakeFrame struct {
	id    string
	image Image
	calib *Calibration
	ego   *EgoMotion
	cloud *PointCloud

	objects []ObjectAnnotation
	polys   map[AnnotationProject][]PolygonAnnotation

	imageErr   error
	objectsErr error
	polyErr    map[AnnotationProject]error
	egoErr     error
	lidarErr   error
}

func newFakeFrame(id string) *fakeFrame {
	lane := []PolygonAnnotation{{Geometry: PolygonGeometry{
		Type:        "Polygon",
		Coordinates: [][2]float64{{10, 60}, {90, 60}, {90, 90}, {10, 90}},
	}}}
	return &fakeFrame{
		id:    id,
		image: NewImage(100, 100),
		calib: testCalibration(),
		ego:   testEgoMotion(),
		cloud: &PointCloud{
			Points:     []r3.Vec{{X: 0, Y: 0, Z: 10}, {X: 0, Y: 0, Z: -10}},
			Timestamps: []float64{1000, 1000},
			Intensity:  []uint8{0, 0},
			DiodeIndex: []uint8{0, 0},
		},
		objects: []ObjectAnnotation{{
			UUID:  "car-1",
			Name:  "Vehicle",
			Box3D: &Box3D{Center: [3]float64{0, 0, 10}, Size: [3]float64{2, 2, 2}, Orientation: [4]float64{1, 0, 0, 0}},
		}},
		polys:   map[AnnotationProject][]PolygonAnnotation{LaneMarkings: lane, EgoRoad: lane},
		polyErr: map[AnnotationProject]error{},
	}
}

func (f *fakeFrame) ID() string              { return f.id }
func (f *fakeFrame) KeyframeTime() time.Time { return testKeyframe }

func (f *fakeFrame) Image(mode Anonymization) (Image, error) {
	if f.imageErr != nil {
		return Image{}, f.imageErr
	}
	return f.image.Copy(), nil
}

func (f *fakeFrame) Calibration() (*Calibration, error) { return f.calib, nil }

func (f *fakeFrame) CoreLidar() (*PointCloud, error) {
	if f.lidarErr != nil {
		return nil, f.lidarErr
	}
	return f.cloud, nil
}

func (f *fakeFrame) AggregatedLidar(numBefore, numAfter int, timestamp float64) (*PointCloud, error) {
	return f.CoreLidar()
}

func (f *fakeFrame) CompensateLidar(pc *PointCloud, timestamp float64) (*PointCloud, error) {
	return pc, nil
}

func (f *fakeFrame) EgoMotion() (*EgoMotion, error) {
	if f.egoErr != nil {
		return nil, f.egoErr
	}
	return f.ego, nil
}

func (f *fakeFrame) ObjectAnnotations() ([]ObjectAnnotation, error) {
	if f.objectsErr != nil {
		return nil, f.objectsErr
	}
	return f.objects, nil
}

func (f *fakeFrame) PolygonAnnotations(project AnnotationProject) ([]PolygonAnnotation, error) {
	if err := f.polyErr[project]; err != nil {
		return nil, err
	}
	return f.polys[project], nil
}
