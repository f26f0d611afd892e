package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrTimestampOutOfRange = errors.New("timestamp outside pose range")

// Transform is a rigid 4x4 transform, row-major (m00..m03, m10..m13, ...).
type Transform [16]float64

func IdentityTransform() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// NewTransform builds a transform from a rotation and translation.
func NewTransform(rot [3][3]float64, t r3.Vec) Transform {
	return Transform{
		rot[0][0], rot[0][1], rot[0][2], t.X,
		rot[1][0], rot[1][1], rot[1][2], t.Y,
		rot[2][0], rot[2][1], rot[2][2], t.Z,
		0, 0, 0, 1,
	}
}

func (t Transform) dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, t[:])
	return mat.NewDense(4, 4, data)
}

func transformFromDense(m mat.Matrix) Transform {
	var t Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t[i*4+j] = m.At(i, j)
		}
	}
	return t
}

// Mul returns t * o, i.e. o is applied first.
func (t Transform) Mul(o Transform) Transform {
	var out mat.Dense
	out.Mul(t.dense(), o.dense())
	return transformFromDense(&out)
}

func (t Transform) Inverse() (Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.dense()); err != nil {
		return Transform{}, fmt.Errorf("invert transform: %w", err)
	}
	return transformFromDense(&inv), nil
}

func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

func (t Transform) Translation() r3.Vec {
	return r3.Vec{X: t[3], Y: t[7], Z: t[11]}
}

func (t Transform) Rotation() [3][3]float64 {
	return [3][3]float64{
		{t[0], t[1], t[2]},
		{t[4], t[5], t[6]},
		{t[8], t[9], t[10]},
	}
}

func (t Transform) MarshalJSON() ([]byte, error) {
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = append([]float64(nil), t[i*4:i*4+4]...)
	}
	return json.Marshal(rows)
}

// UnmarshalJSON accepts a 4x4 nested array.
func (t *Transform) UnmarshalJSON(data []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) != 4 {
		return fmt.Errorf("transform: expected 4 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 4 {
			return fmt.Errorf("transform: row %d has %d columns", i, len(row))
		}
		copy(t[i*4:i*4+4], row)
	}
	return nil
}

// Quaternion conversions. Quaternions are stored as gonum quat.Number with
// Real=w, Imag=x, Jmag=y, Kmag=z.

func normalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotateVec rotates v by the (normalized) quaternion q.
func RotateVec(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(normalizeQuat(q)).Rotate(v)
}

func quatToMatrix(q quat.Number) [3][3]float64 {
	q = normalizeQuat(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

func matrixToQuat(m [3][3]float64) quat.Number {
	trace := m[0][0] + m[1][1] + m[2][2]
	var q quat.Number
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{
			Real: 0.25 * s,
			Imag: (m[2][1] - m[1][2]) / s,
			Jmag: (m[0][2] - m[2][0]) / s,
			Kmag: (m[1][0] - m[0][1]) / s,
		}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := math.Sqrt(1+m[0][0]-m[1][1]-m[2][2]) * 2
		q = quat.Number{
			Real: (m[2][1] - m[1][2]) / s,
			Imag: 0.25 * s,
			Jmag: (m[0][1] + m[1][0]) / s,
			Kmag: (m[0][2] + m[2][0]) / s,
		}
	case m[1][1] > m[2][2]:
		s := math.Sqrt(1+m[1][1]-m[0][0]-m[2][2]) * 2
		q = quat.Number{
			Real: (m[0][2] - m[2][0]) / s,
			Imag: (m[0][1] + m[1][0]) / s,
			Jmag: 0.25 * s,
			Kmag: (m[1][2] + m[2][1]) / s,
		}
	default:
		s := math.Sqrt(1+m[2][2]-m[0][0]-m[1][1]) * 2
		q = quat.Number{
			Real: (m[1][0] - m[0][1]) / s,
			Imag: (m[0][2] + m[2][0]) / s,
			Jmag: (m[1][2] + m[2][1]) / s,
			Kmag: 0.25 * s,
		}
	}
	return normalizeQuat(q)
}

func slerp(a, b quat.Number, t float64) quat.Number {
	a, b = normalizeQuat(a), normalizeQuat(b)
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return normalizeQuat(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}
	theta := math.Acos(dot)
	sin := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sin
	wb := math.Sin(t*theta) / sin
	return quat.Add(quat.Scale(wa, a), quat.Scale(wb, b))
}

// InterpolateTransform blends two rigid transforms: translation linearly,
// rotation by slerp.
func InterpolateTransform(a, b Transform, alpha float64) Transform {
	ta, tb := a.Translation(), b.Translation()
	trans := r3.Add(ta, r3.Scale(alpha, r3.Sub(tb, ta)))
	q := slerp(matrixToQuat(a.Rotation()), matrixToQuat(b.Rotation()), alpha)
	return NewTransform(quatToMatrix(q), trans)
}

// PoseTrack is a time-ordered sequence of poses keyed by unix seconds.
type PoseTrack struct {
	Timestamps []float64
	Poses      []Transform
}

// PoseAt interpolates the pose at ts. Timestamps outside the track are an
// error rather than an extrapolation.
func (pt PoseTrack) PoseAt(ts float64) (Transform, error) {
	n := len(pt.Timestamps)
	if n == 0 || n != len(pt.Poses) {
		return Transform{}, fmt.Errorf("pose track has %d timestamps and %d poses", n, len(pt.Poses))
	}
	if ts < pt.Timestamps[0] || ts > pt.Timestamps[n-1] {
		return Transform{}, fmt.Errorf("%w: %.6f not in [%.6f, %.6f]", ErrTimestampOutOfRange, ts, pt.Timestamps[0], pt.Timestamps[n-1])
	}
	i := sort.SearchFloat64s(pt.Timestamps, ts)
	if pt.Timestamps[i] == ts {
		return pt.Poses[i], nil
	}
	t0, t1 := pt.Timestamps[i-1], pt.Timestamps[i]
	alpha := (ts - t0) / (t1 - t0)
	return InterpolateTransform(pt.Poses[i-1], pt.Poses[i], alpha), nil
}
