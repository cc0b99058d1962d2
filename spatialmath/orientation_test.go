package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// represent a 45 degree rotation around the x axis in both representations
var (
	th    = math.Pi / 4.
	q45x  = quat.Number{Real: math.Cos(th / 2.), Imag: math.Sin(th / 2.)}
	aa45x = &R4AA{th, 1., 0., 0.}
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.AxisAngles(), test.ShouldResemble, NewR4AA())
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, RotationAngle(zero), test.ShouldEqual, 0)
}

func TestAxisAngles(t *testing.T) {
	q := aa45x.Quaternion()
	test.That(t, q.Real, test.ShouldAlmostEqual, q45x.Real)
	test.That(t, q.Imag, test.ShouldAlmostEqual, q45x.Imag)
	test.That(t, q.Jmag, test.ShouldAlmostEqual, 0)
	test.That(t, q.Kmag, test.ShouldAlmostEqual, 0)

	qq := Quaternion(q45x)
	back := qq.AxisAngles()
	test.That(t, back.Theta, test.ShouldAlmostEqual, th)
	test.That(t, back.RX, test.ShouldAlmostEqual, 1)

	r3aa := aa45x.ToR3()
	test.That(t, R3ToR4(r3aa).Theta, test.ShouldAlmostEqual, th)
	test.That(t, R3ToR4(r3aa.Mul(0)), test.ShouldResemble, NewR4AA())
}

func TestQuaternionAlmostEqual(t *testing.T) {
	test.That(t, QuaternionAlmostEqual(q45x, Flip(q45x), 1e-9), test.ShouldBeTrue)
	test.That(t, QuaternionAlmostEqual(q45x, quat.Number{Real: 1}, 1e-3), test.ShouldBeFalse)
}

func TestOrientationBetween(t *testing.T) {
	a := &R4AA{Theta: 0.2, RZ: 1}
	b := &R4AA{Theta: 0.7, RZ: 1}
	between := OrientationBetween(a, b)
	test.That(t, RotationAngle(between), test.ShouldAlmostEqual, 0.5)
	test.That(t, OrientationAlmostEqual(between, &R4AA{Theta: 0.5, RZ: 1}), test.ShouldBeTrue)
}
