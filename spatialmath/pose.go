package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const (
	defaultLinearEpsilon  = 1e-8
	defaultAngularEpsilon = 1e-5
)

// Pose represents a rigid 6-DoF transform: a translation and an orientation. Poses map points in
// a camera frame into the frame of the agent's map. Poses are immutable once constructed.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return newDualQuaternion()
}

// NewPose creates a pose from a translation and an orientation. The orientation is normalised so the
// result is always a valid member of SE(3).
func NewPose(point r3.Vector, o Orientation) Pose {
	q := newDualQuaternion()
	if o != nil {
		q.Real = Normalize(o.Quaternion())
	}
	q.setTranslation(point)
	return q
}

// NewPoseFromPoint creates a pose with a translation and no rotation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return NewPose(point, nil)
}

// NewPoseFromOrientation creates a pose with a rotation and no translation.
func NewPoseFromOrientation(o Orientation) Pose {
	return NewPose(r3.Vector{}, o)
}

// Compose returns a∘b: the transform that first applies b, then a.
func Compose(a, b Pose) Pose {
	result := &dualQuaternion{newDualQuaternionFromPose(a).transformation(newDualQuaternionFromPose(b).Number)}
	// Keep the real part exactly unit length so repeated composition cannot drift out of SE(3).
	if length := quat.Abs(result.Real); length != 1 && length != 0 {
		result.Real = quat.Scale(1/length, result.Real)
		result.Dual = quat.Scale(1/length, result.Dual)
	}
	return result
}

// PoseInverse returns the inverse of p, so that Compose(p, PoseInverse(p)) is the identity.
func PoseInverse(p Pose) Pose {
	return newDualQuaternionFromPose(p).inverse()
}

// PoseBetween returns the pose that takes a to b, i.e. Compose(a, PoseBetween(a, b)) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// TransformPoint applies p to a point.
func TransformPoint(p Pose, pt r3.Vector) r3.Vector {
	return Compose(p, NewPoseFromPoint(pt)).Point()
}

// PoseDelta returns the translation distance and rotation angle (radians) separating two poses.
func PoseDelta(a, b Pose) (translation, rotation float64) {
	translation = a.Point().Sub(b.Point()).Norm()
	rotation = RotationAngle(OrientationBetween(a.Orientation(), b.Orientation()))
	return translation, rotation
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, defaultLinearEpsilon, defaultAngularEpsilon)
}

// PoseAlmostEqualEps will return a bool describing whether 2 poses are within the given linear
// distance and rotation angle of one another.
func PoseAlmostEqualEps(a, b Pose, linearEpsilon, angularEpsilon float64) bool {
	translation, rotation := PoseDelta(a, b)
	return translation <= linearEpsilon && rotation <= angularEpsilon
}

// PoseIsValid reports whether the pose's rotation is a finite unit quaternion.
func PoseIsValid(p Pose) bool {
	q := p.Orientation().Quaternion()
	pt := p.Point()
	for _, v := range []float64{q.Real, q.Imag, q.Jmag, q.Kmag, pt.X, pt.Y, pt.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(quat.Abs(q)-1) < 1e-6
}
