package spatialmath

import (
	"math/rand"

	"github.com/golang/geo/r3"
)

// PerturbPose returns p with additive Gaussian noise applied in p's parent frame: each translation
// component gets N(0, translationStdDev) and the rotation is composed with a rotation about a
// uniformly random axis by an angle drawn from N(0, rotationStdDev). Zero deviations return p.
func PerturbPose(rng *rand.Rand, p Pose, translationStdDev, rotationStdDev float64) Pose {
	if translationStdDev == 0 && rotationStdDev == 0 {
		return p
	}
	var noise r3.Vector
	if translationStdDev > 0 {
		noise = r3.Vector{
			X: rng.NormFloat64() * translationStdDev,
			Y: rng.NormFloat64() * translationStdDev,
			Z: rng.NormFloat64() * translationStdDev,
		}
	}
	rotation := NewZeroOrientation()
	if rotationStdDev > 0 {
		axis := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		if axis.Norm() == 0 {
			axis = r3.Vector{Z: 1}
		}
		axis = axis.Normalize()
		rotation = &R4AA{Theta: rng.NormFloat64() * rotationStdDev, RX: axis.X, RY: axis.Y, RZ: axis.Z}
	}
	return Compose(NewPose(noise, rotation), p)
}
