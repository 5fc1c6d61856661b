// Package problem holds benchmark domain types and the named problems built
// on them. Every type implements opt.Vectorizable.
package problem

import (
	"fmt"
	"strings"

	"github.com/cwbudde/portfolioopt/internal/opt"
)

// Point2 is a point in the plane.
type Point2 struct {
	X, Y float64
}

func (p Point2) ToVec() ([]float64, opt.Context) {
	return []float64{p.X, p.Y}, nil
}

func (Point2) FromVec(x []float64, _ opt.Context) Point2 {
	return Point2{X: x[0], Y: x[1]}
}

func (p Point2) String() string {
	return fmt.Sprintf("x=%.6f y=%.6f", p.X, p.Y)
}

// Vector is a point in n-dimensional space. Its context is the dimension.
type Vector []float64

func (v Vector) ToVec() ([]float64, opt.Context) {
	return append([]float64(nil), v...), len(v)
}

func (Vector) FromVec(x []float64, ctx opt.Context) Vector {
	return Vector(x[:ctx.(int)])
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Circle is a circle given by center and radius.
type Circle struct {
	X, Y, R float64
}

func (c Circle) ToVec() ([]float64, opt.Context) {
	return []float64{c.X, c.Y, c.R}, nil
}

func (Circle) FromVec(x []float64, _ opt.Context) Circle {
	return Circle{X: x[0], Y: x[1], R: x[2]}
}

func (c Circle) String() string {
	return fmt.Sprintf("center=(%.6f, %.6f) r=%.6f", c.X, c.Y, c.R)
}
