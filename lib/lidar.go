package lib

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

const LidarVelodyne = "velodyne"

type PointCloud struct {
	Points     []r3.Vec
	Timestamps []float64 // unix seconds, one per point
	Intensity  []uint8
	DiodeIndex []uint8
	// CoreTimestamp is the reference time of the sweep (or the compensation
	// target once compensated).
	CoreTimestamp float64
}

func (pc *PointCloud) Len() int {
	return len(pc.Points)
}

func (pc *PointCloud) Append(other *PointCloud) {
	pc.Points = append(pc.Points, other.Points...)
	pc.Timestamps = append(pc.Timestamps, other.Timestamps...)
	pc.Intensity = append(pc.Intensity, other.Intensity...)
	pc.DiodeIndex = append(pc.DiodeIndex, other.DiodeIndex...)
}

// npy decoding

var (
	npyMagic      = []byte("\x93NUMPY")
	npyFieldRe    = regexp.MustCompile(`\(\s*'([^']+)'\s*,\s*'([<>|=]?)([a-zA-Z])(\d+)'\s*\)`)
	npyShapeRe    = regexp.MustCompile(`'shape'\s*:\s*\(\s*(\d+)\s*,?\s*\)`)
	npyFortranRe  = regexp.MustCompile(`'fortran_order'\s*:\s*True`)
	errNpyFormat  = errors.New("npy: unsupported layout")
	requiredLidar = []string{"timestamp", "x", "y", "z"}

	// dict descrs carry explicit offsets and itemsize; only packed lists
	// are read
	npyListDescrRe = regexp.MustCompile(`'descr'\s*:\s*\[`)
	npySubarrayRe  = regexp.MustCompile(`'[<>|=]?[a-zA-Z]\d*'\s*,\s*\(`)

	// bytes per unit of the dtype size; U counts UCS-4 characters
	npyKindUnits = map[byte]int{
		'b': 1, 'i': 1, 'u': 1, 'f': 1, 'c': 1,
		'm': 1, 'M': 1, 'S': 1, 'a': 1, 'V': 1,
		'U': 4,
	}
)

const (
	npyMaxHeader      = 1 << 20
	npyMaxFieldSize   = 1 << 16
	npyPreallocPoints = 1 << 16
)

type npyField struct {
	name   string
	kind   byte
	size   int
	offset int
}

func ReadLidarNpy(fname string) (*PointCloud, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("open lidar sweep: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat lidar sweep: %w", err)
	}
	pc, err := decodeLidarNpy(bufio.NewReader(file), info.Size())
	if err != nil {
		return nil, fmt.Errorf("decode lidar sweep %s: %w", fname, err)
	}
	return pc, nil
}

// DecodeLidarNpy reads a 1-D structured .npy array holding at least the
// timestamp, x, y and z fields. intensity and diode_index are optional and
// any other field is skipped.
func DecodeLidarNpy(rd io.Reader) (*PointCloud, error) {
	return decodeLidarNpy(rd, -1)
}

// decodeLidarNpy checks the record count against size, the total length of
// the input in bytes, when size is not negative.
func decodeLidarNpy(rd io.Reader, size int64) (*PointCloud, error) {
	preamble := make([]byte, 8)
	if _, err := io.ReadFull(rd, preamble); err != nil {
		return nil, fmt.Errorf("npy: read preamble: %w", err)
	}
	if !bytes.Equal(preamble[:6], npyMagic) {
		return nil, fmt.Errorf("npy: bad magic")
	}
	var headerLen, prefixLen int
	switch preamble[6] {
	case 1:
		var n uint16
		if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("npy: read header length: %w", err)
		}
		headerLen, prefixLen = int(n), 10
	case 2, 3:
		var n uint32
		if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("npy: read header length: %w", err)
		}
		headerLen, prefixLen = int(n), 12
	default:
		return nil, fmt.Errorf("npy: version %d.%d: %w", preamble[6], preamble[7], errNpyFormat)
	}
	if headerLen > npyMaxHeader || (size >= 0 && int64(prefixLen+headerLen) > size) {
		return nil, fmt.Errorf("npy: header length %d: %w", headerLen, errNpyFormat)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(rd, header); err != nil {
		return nil, fmt.Errorf("npy: read header: %w", err)
	}

	fields, recordSize, err := parseNpyFields(string(header))
	if err != nil {
		return nil, err
	}
	if npyFortranRe.Match(header) {
		return nil, fmt.Errorf("npy: fortran order: %w", errNpyFormat)
	}
	shape := npyShapeRe.FindStringSubmatch(string(header))
	if shape == nil {
		return nil, fmt.Errorf("npy: expected 1-D shape: %w", errNpyFormat)
	}
	count, err := strconv.Atoi(shape[1])
	if err != nil {
		return nil, fmt.Errorf("npy: shape %s: %w", shape[1], errNpyFormat)
	}
	if count > math.MaxInt/recordSize {
		return nil, fmt.Errorf("npy: shape %d: %w", count, errNpyFormat)
	}
	if size >= 0 {
		if body := size - int64(prefixLen+headerLen); int64(count*recordSize) > body {
			return nil, fmt.Errorf("npy: %d records of %d bytes need more than the %d byte body: %w",
				count, recordSize, body, errNpyFormat)
		}
	}

	byName := make(map[string]npyField, len(fields))
	for _, f := range fields {
		byName[f.name] = f
	}
	for _, name := range requiredLidar {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("npy: missing field %q", name)
		}
	}
	intensity, hasIntensity := byName["intensity"]
	diode, hasDiode := byName["diode_index"]

	// without a known size the count is untrusted; grow as records arrive
	capacity := count
	if size < 0 {
		capacity = MinInt(count, npyPreallocPoints)
	}
	pc := &PointCloud{
		Points:     make([]r3.Vec, 0, capacity),
		Timestamps: make([]float64, 0, capacity),
		Intensity:  make([]uint8, 0, capacity),
		DiodeIndex: make([]uint8, 0, capacity),
	}
	record := make([]byte, recordSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(rd, record); err != nil {
			return nil, fmt.Errorf("npy: record %d/%d: %w", i, count, err)
		}
		pc.Timestamps = append(pc.Timestamps, readNpyField(record, byName["timestamp"]))
		pc.Points = append(pc.Points, r3.Vec{
			X: readNpyField(record, byName["x"]),
			Y: readNpyField(record, byName["y"]),
			Z: readNpyField(record, byName["z"]),
		})
		var in, di uint8
		if hasIntensity {
			in = uint8(clamp(int(readNpyField(record, intensity)), 0, 255))
		}
		if hasDiode {
			di = uint8(clamp(int(readNpyField(record, diode)), 0, 255))
		}
		pc.Intensity = append(pc.Intensity, in)
		pc.DiodeIndex = append(pc.DiodeIndex, di)
	}
	return pc, nil
}

func parseNpyFields(header string) ([]npyField, int, error) {
	if !npyListDescrRe.MatchString(header) {
		return nil, 0, fmt.Errorf("npy: descr is not a field list: %w", errNpyFormat)
	}
	if npySubarrayRe.MatchString(header) {
		return nil, 0, fmt.Errorf("npy: sub-array fields: %w", errNpyFormat)
	}
	matches := npyFieldRe.FindAllStringSubmatch(header, -1)
	if len(matches) == 0 {
		return nil, 0, fmt.Errorf("npy: no structured fields in header: %w", errNpyFormat)
	}
	var fields []npyField
	offset := 0
	for _, m := range matches {
		if m[2] == ">" {
			return nil, 0, fmt.Errorf("npy: big-endian field %q: %w", m[1], errNpyFormat)
		}
		kind := m[3][0]
		count, err := strconv.Atoi(m[4])
		if err != nil || count < 1 || count > npyMaxFieldSize {
			return nil, 0, fmt.Errorf("npy: field %q has size %s: %w", m[1], m[4], errNpyFormat)
		}
		unit, ok := npyKindUnits[kind]
		if !ok {
			return nil, 0, fmt.Errorf("npy: field %q has unknown kind %q: %w", m[1], kind, errNpyFormat)
		}
		size := count * unit
		switch {
		case kind == 'f' && (size == 4 || size == 8):
		case (kind == 'u' || kind == 'i') && (size == 1 || size == 2 || size == 4 || size == 8):
		case kind == 'b' && size == 1:
		default:
			if IsContain(requiredLidar, m[1]) {
				return nil, 0, fmt.Errorf("npy: field %q has dtype %s%d: %w", m[1], m[3], count, errNpyFormat)
			}
		}
		fields = append(fields, npyField{name: m[1], kind: kind, size: size, offset: offset})
		offset += size
	}
	return fields, offset, nil
}

func readNpyField(record []byte, f npyField) float64 {
	b := record[f.offset : f.offset+f.size]
	le := binary.LittleEndian
	switch f.kind {
	case 'f':
		if f.size == 4 {
			return float64(math.Float32frombits(le.Uint32(b)))
		}
		return math.Float64frombits(le.Uint64(b))
	case 'u', 'b':
		switch f.size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(le.Uint16(b))
		case 4:
			return float64(le.Uint32(b))
		case 8:
			return float64(le.Uint64(b))
		}
	case 'i':
		switch f.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(le.Uint16(b)))
		case 4:
			return float64(int32(le.Uint32(b)))
		case 8:
			return float64(int64(le.Uint64(b)))
		}
	}
	return 0
}

// CompensateLidar moves every point from the ego pose at its own timestamp to
// the ego pose at target, using the LiDAR extrinsics to go through the ego
// frame. The result stays in LiDAR coordinates.
func CompensateLidar(pc *PointCloud, track PoseTrack, calib LidarCalibration, target float64) (*PointCloud, error) {
	lidarToEgo := calib.Extrinsics
	egoToLidar, err := lidarToEgo.Inverse()
	if err != nil {
		return nil, err
	}
	targetPose, err := track.PoseAt(target)
	if err != nil {
		return nil, fmt.Errorf("pose at target: %w", err)
	}
	worldToTarget, err := targetPose.Inverse()
	if err != nil {
		return nil, err
	}
	prefix := egoToLidar.Mul(worldToTarget)

	out := &PointCloud{
		Points:        make([]r3.Vec, pc.Len()),
		Timestamps:    append([]float64(nil), pc.Timestamps...),
		Intensity:     append([]uint8(nil), pc.Intensity...),
		DiodeIndex:    append([]uint8(nil), pc.DiodeIndex...),
		CoreTimestamp: target,
	}
	cache := make(map[float64]Transform)
	for i, p := range pc.Points {
		ts := pc.Timestamps[i]
		tf, ok := cache[ts]
		if !ok {
			pose, err := track.PoseAt(ts)
			if err != nil {
				return nil, fmt.Errorf("pose at point %d: %w", i, err)
			}
			tf = prefix.Mul(pose).Mul(lidarToEgo)
			cache[ts] = tf
		}
		out.Points[i] = tf.Apply(p)
	}
	return out, nil
}

// sweepWindow returns the half-open index range [lo, hi) of sweeps to
// aggregate: the sweep closest to ts plus up to before/after neighbours.
func sweepWindow(times []float64, ts float64, before, after int) (int, int) {
	if len(times) == 0 {
		return 0, 0
	}
	core := 0
	for i, t := range times {
		if math.Abs(t-ts) < math.Abs(times[core]-ts) {
			core = i
		}
	}
	lo := MaxInt(core-before, 0)
	hi := MinInt(core+after+1, len(times))
	return lo, hi
}
