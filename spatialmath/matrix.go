package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// orthonormalTolerance bounds how far RᵀR may stray from the identity (and det(R) from 1) for a
// matrix to still be accepted as a rotation.
const orthonormalTolerance = 1e-6

// QuatToRotationMatrix returns the 3x3 rotation matrix described by a unit quaternion.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// PoseToMatrix returns the 4x4 homogeneous matrix of p.
func PoseToMatrix(p Pose) *mat.Dense {
	rot := QuatToRotationMatrix(p.Orientation().Quaternion())
	pt := p.Point()
	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, rot.At(r, c))
		}
	}
	m.Set(0, 3, pt.X)
	m.Set(1, 3, pt.Y)
	m.Set(2, 3, pt.Z)
	m.Set(3, 3, 1)
	return m
}

// NewPoseFromMatrix converts a 4x4 homogeneous matrix into a Pose. It errors if the matrix is not
// a member of SE(3): the rotation block must be orthonormal with determinant +1 and the bottom row
// must be (0, 0, 0, 1).
func NewPoseFromMatrix(m mat.Matrix) (Pose, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return nil, errors.Errorf("pose matrix must be 4x4, got %dx%d", r, c)
	}
	for c, want := range []float64{0, 0, 0, 1} {
		if math.Abs(m.At(3, c)-want) > orthonormalTolerance {
			return nil, errors.Errorf("pose matrix bottom row must be (0, 0, 0, 1), got %v at column %d", m.At(3, c), c)
		}
	}

	rot := mat.DenseCopyOf(m).Slice(0, 3, 0, 3)
	var rtr mat.Dense
	rtr.Mul(rot.T(), rot)
	if !mat.EqualApprox(&rtr, identity3(), orthonormalTolerance) {
		return nil, errors.New("pose matrix rotation block is not orthonormal")
	}
	if det := mat.Det(rot); math.Abs(det-1) > orthonormalTolerance {
		return nil, errors.Errorf("pose matrix rotation block has determinant %v, expected 1", det)
	}

	glMat := mgl64.Ident4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			glMat.Set(r, c, rot.At(r, c))
		}
	}
	glQuat := mgl64.Mat4ToQuat(glMat)
	o := Quaternion{glQuat.W, glQuat.X(), glQuat.Y(), glQuat.Z()}
	return NewPose(r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}, &o), nil
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
