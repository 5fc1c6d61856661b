package problem

import (
	"math"
	"math/rand"
)

// L1Target is the minimum of L1Distance.
var L1Target = Point2{X: 2, Y: 8}

// L1Distance is |x-2| + |y-8|.
func L1Distance(p Point2) float64 {
	return math.Abs(p.X-L1Target.X) + math.Abs(p.Y-L1Target.Y)
}

// Sphere is sum(x_i^2), minimum 0 at the origin.
func Sphere(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}

// Rosenbrock is the banana function, minimum 0 at (1, ..., 1).
func Rosenbrock(v Vector) float64 {
	var sum float64
	for i := 0; i+1 < len(v); i++ {
		a := v[i+1] - v[i]*v[i]
		b := 1 - v[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Rastrigin is highly multimodal, minimum 0 at the origin.
func Rastrigin(v Vector) float64 {
	sum := 10 * float64(len(v))
	for _, x := range v {
		sum += x*x - 10*math.Cos(2*math.Pi*x)
	}
	return sum
}

// CircleCloud is a deterministic noisy sample of the circle circleTruth.
type CircleCloud []Point2

var circleTruth = Circle{X: 1.5, Y: -0.5, R: 2}

// NewCircleCloud samples n points around truth with radial noise of the given
// amplitude.
func NewCircleCloud(truth Circle, n int, noise float64, seed int64) CircleCloud {
	rng := rand.New(rand.NewSource(seed))
	pts := make(CircleCloud, n)
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / float64(n)
		r := truth.R + noise*(2*rng.Float64()-1)
		pts[i] = Point2{X: truth.X + r*math.Cos(theta), Y: truth.Y + r*math.Sin(theta)}
	}
	return pts
}

// Residual is the mean squared distance of the cloud's points to c's rim.
// A negative radius is read as its absolute value.
func (cloud CircleCloud) Residual(c Circle) float64 {
	if len(cloud) == 0 {
		return 0
	}
	r := math.Abs(c.R)
	var sum float64
	for _, p := range cloud {
		d := math.Hypot(p.X-c.X, p.Y-c.Y) - r
		sum += d * d
	}
	return sum / float64(len(cloud))
}
