package lib

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrFrameNotFound = errors.New("frame not found")
	ErrUnknownSplit  = errors.New("unknown split")
)

const (
	SplitTrain = "train"
	SplitVal   = "val"
)

type Anonymization string

const (
	AnonymizationBlur     Anonymization = "blur"
	AnonymizationDNAT     Anonymization = "dnat"
	AnonymizationOriginal Anonymization = "original"

	// AnonymizationDefault is what frames are decoded with when no mode is
	// requested.
	AnonymizationDefault = AnonymizationBlur
)

func ParseAnonymization(s string) (Anonymization, error) {
	switch a := Anonymization(s); a {
	case AnonymizationBlur, AnonymizationDNAT, AnonymizationOriginal:
		return a, nil
	case "":
		return AnonymizationDefault, nil
	}
	return "", fmt.Errorf("unknown anonymization mode %q", s)
}

// SplitSource lists the frame identifiers of a named split.
type SplitSource interface {
	Split(name string) ([]string, error)
}

// FrameSource looks up a frame record by identifier.
type FrameSource interface {
	Frame(id string) (Frame, error)
}

// Frame is the read-only record of one capture.
type Frame interface {
	ID() string
	KeyframeTime() time.Time
	Image(mode Anonymization) (Image, error)
	Calibration() (*Calibration, error)
	CoreLidar() (*PointCloud, error)
	AggregatedLidar(numBefore, numAfter int, timestamp float64) (*PointCloud, error)
	CompensateLidar(pc *PointCloud, timestamp float64) (*PointCloud, error)
	EgoMotion() (*EgoMotion, error)
	ObjectAnnotations() ([]ObjectAnnotation, error)
	PolygonAnnotations(project AnnotationProject) ([]PolygonAnnotation, error)
}

type FileRef struct {
	Filepath string    `json:"filepath"`
	Time     time.Time `json:"time"`
}

type LidarRef struct {
	Filepath string    `json:"filepath"`
	Time     time.Time `json:"time"`
	IsCore   bool      `json:"is_core"`
}

type FrameInfo struct {
	ID              string                        `json:"id"`
	KeyframeTime    time.Time                     `json:"keyframe_time"`
	CalibrationPath string                        `json:"calibration_path"`
	EgoMotionPath   string                        `json:"ego_motion_path,omitempty"`
	CameraFrames    map[string]FileRef            `json:"camera_frames"`
	LidarFrames     map[string][]LidarRef         `json:"lidar_frames"`
	Annotations     map[AnnotationProject]FileRef `json:"annotations"`
}

type frameIndex struct {
	Train []FrameInfo `json:"train"`
	Val   []FrameInfo `json:"val"`
}

// Dataset is a handle over {root}/trainval-frames-{version}.json.
type Dataset struct {
	Root    string
	Version string

	splits map[string][]string
	frames map[string]*FrameInfo
}

func IndexPath(root string, version string) string {
	return filepath.Join(root, fmt.Sprintf("trainval-frames-%s.json", version))
}

func NewDataset(root string, version string) (*Dataset, error) {
	if !IsContain(DatasetVersions, version) {
		return nil, fmt.Errorf("dataset version %q not in %v", version, DatasetVersions)
	}
	var index frameIndex
	if err := ReadJsonFile(IndexPath(root, version), &index); err != nil {
		return nil, fmt.Errorf("load frame index: %w", err)
	}
	ds := &Dataset{
		Root:    root,
		Version: version,
		splits:  make(map[string][]string),
		frames:  make(map[string]*FrameInfo),
	}
	splits := []struct {
		name  string
		infos []FrameInfo
	}{{SplitTrain, index.Train}, {SplitVal, index.Val}}
	for _, split := range splits {
		infos := split.infos
		ids := make([]string, 0, len(infos))
		for i := range infos {
			info := infos[i]
			if info.ID == "" {
				return nil, fmt.Errorf("frame index: %s entry %d has no id", split.name, i)
			}
			if _, dup := ds.frames[info.ID]; dup {
				log.Printf("[Dataset] frame %s listed more than once, keeping first entry", info.ID)
			} else {
				ds.frames[info.ID] = &info
			}
			ids = append(ids, info.ID)
		}
		ds.splits[split.name] = ids
	}
	return ds, nil
}

func (ds *Dataset) Len() int {
	return len(ds.frames)
}

func (ds *Dataset) Split(name string) ([]string, error) {
	ids, ok := ds.splits[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, name)
	}
	return append([]string(nil), ids...), nil
}

func (ds *Dataset) Frame(id string) (Frame, error) {
	info, ok := ds.frames[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFrameNotFound, id)
	}
	return &zodFrame{root: ds.Root, info: info}, nil
}

type zodFrame struct {
	root  string
	info  *FrameInfo
	calib *Calibration
	ego   *EgoMotion
}

func (f *zodFrame) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(f.root, rel)
}

func (f *zodFrame) ID() string {
	return f.info.ID
}

func (f *zodFrame) KeyframeTime() time.Time {
	return f.info.KeyframeTime
}

func (f *zodFrame) Image(mode Anonymization) (Image, error) {
	if mode == "" {
		mode = AnonymizationDefault
	}
	key := fmt.Sprintf("%s_%s", CameraFront, mode)
	ref, ok := f.info.CameraFrames[key]
	if !ok {
		return Image{}, fmt.Errorf("frame %s: no %s camera frame", f.info.ID, key)
	}
	return ImageFromFile(f.path(ref.Filepath))
}

func (f *zodFrame) Calibration() (*Calibration, error) {
	if f.calib != nil {
		return f.calib, nil
	}
	if f.info.CalibrationPath == "" {
		return nil, fmt.Errorf("frame %s: no calibration path", f.info.ID)
	}
	calib, err := ReadCalibration(f.path(f.info.CalibrationPath))
	if err != nil {
		return nil, err
	}
	f.calib = calib
	return calib, nil
}

func (f *zodFrame) lidarRefs() ([]LidarRef, error) {
	refs := f.info.LidarFrames[LidarVelodyne]
	if len(refs) == 0 {
		return nil, fmt.Errorf("frame %s: no %s sweeps", f.info.ID, LidarVelodyne)
	}
	return refs, nil
}

func (f *zodFrame) readSweep(ref LidarRef) (*PointCloud, error) {
	pc, err := ReadLidarNpy(f.path(ref.Filepath))
	if err != nil {
		return nil, err
	}
	pc.CoreTimestamp = unixSeconds(ref.Time)
	return pc, nil
}

// CoreLidar returns the sweep flagged as core, or the first listed sweep.
func (f *zodFrame) CoreLidar() (*PointCloud, error) {
	refs, err := f.lidarRefs()
	if err != nil {
		return nil, err
	}
	core := refs[0]
	for _, ref := range refs {
		if ref.IsCore {
			core = ref
			break
		}
	}
	return f.readSweep(core)
}

func (f *zodFrame) AggregatedLidar(numBefore, numAfter int, timestamp float64) (*PointCloud, error) {
	refs, err := f.lidarRefs()
	if err != nil {
		return nil, err
	}
	times := make([]float64, len(refs))
	for i, ref := range refs {
		times[i] = unixSeconds(ref.Time)
	}
	lo, hi := sweepWindow(times, timestamp, numBefore, numAfter)
	aggregated := &PointCloud{CoreTimestamp: timestamp}
	for _, ref := range refs[lo:hi] {
		sweep, err := f.readSweep(ref)
		if err != nil {
			return nil, err
		}
		compensated, err := f.CompensateLidar(sweep, timestamp)
		if err != nil {
			return nil, err
		}
		aggregated.Append(compensated)
	}
	return aggregated, nil
}

func (f *zodFrame) CompensateLidar(pc *PointCloud, timestamp float64) (*PointCloud, error) {
	ego, err := f.EgoMotion()
	if err != nil {
		return nil, fmt.Errorf("compensate lidar: %w", err)
	}
	calib, err := f.Calibration()
	if err != nil {
		return nil, err
	}
	lidarCalib, err := calib.Lidar(LidarVelodyne)
	if err != nil {
		return nil, err
	}
	return CompensateLidar(pc, ego.Track(), lidarCalib, timestamp)
}

func (f *zodFrame) EgoMotion() (*EgoMotion, error) {
	if f.ego != nil {
		return f.ego, nil
	}
	if f.info.EgoMotionPath == "" {
		return nil, fmt.Errorf("frame %s: %w", f.info.ID, ErrEgoMotionUnavailable)
	}
	fname := f.path(f.info.EgoMotionPath)
	if _, err := os.Stat(fname); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("frame %s: %w", f.info.ID, ErrEgoMotionUnavailable)
	}
	ego, err := ReadEgoMotion(fname)
	if err != nil {
		return nil, err
	}
	f.ego = ego
	return ego, nil
}

func (f *zodFrame) annotationPath(project AnnotationProject) (string, error) {
	ref, ok := f.info.Annotations[project]
	if !ok || ref.Filepath == "" {
		return "", fmt.Errorf("frame %s: %s: %w", f.info.ID, project, ErrAnnotationUnavailable)
	}
	fname := f.path(ref.Filepath)
	if _, err := os.Stat(fname); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("frame %s: %s: %w", f.info.ID, project, ErrAnnotationUnavailable)
	}
	return fname, nil
}

func (f *zodFrame) ObjectAnnotations() ([]ObjectAnnotation, error) {
	fname, err := f.annotationPath(ObjectDetection)
	if err != nil {
		return nil, err
	}
	return ReadObjectAnnotations(fname)
}

func (f *zodFrame) PolygonAnnotations(project AnnotationProject) ([]PolygonAnnotation, error) {
	if project != LaneMarkings && project != EgoRoad {
		return nil, fmt.Errorf("project %s has no polygon annotations", project)
	}
	fname, err := f.annotationPath(project)
	if err != nil {
		return nil, err
	}
	return ReadPolygonAnnotations(fname)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
