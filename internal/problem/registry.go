package problem

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/cwbudde/portfolioopt/internal/engine"
	"github.com/cwbudde/portfolioopt/internal/opt"
)

// Observer receives every improvement of a run's best score together with
// the improving candidate in vector form.
type Observer func(score float64, x []float64)

// Outcome is the type-erased result of solving a problem.
type Outcome struct {
	Vector         []float64
	Score          float64
	ArchetypeScore float64
	Evaluations    int
	Improvements   int
	Copies         int
	Elapsed        time.Duration
	Summary        string
}

// Problem is a named benchmark that can be solved without knowing its
// domain type.
type Problem struct {
	Name        string
	Description string

	// DefaultDim is used when no dimension is requested. Fixed problems
	// reject any other dimension.
	DefaultDim int
	Fixed      bool

	// LowerBound and UpperBound are suggested search bounds.
	LowerBound float64
	UpperBound float64

	solve func(eng engine.Engine, params opt.Params, dim int, start []float64, observe Observer, logger *slog.Logger) (*Outcome, error)
}

// Dim resolves the dimension to use for a requested one.
func (p Problem) Dim(requested int) (int, error) {
	switch {
	case requested == 0:
		return p.DefaultDim, nil
	case requested < 0:
		return 0, fmt.Errorf("problem %s: dimension must be positive, got %d", p.Name, requested)
	case p.Fixed && requested != p.DefaultDim:
		return 0, fmt.Errorf("problem %s: dimension is fixed at %d, got %d", p.Name, p.DefaultDim, requested)
	}
	return requested, nil
}

// Solve runs the portfolio on the problem. start, when not nil, replaces the
// default archetype and must have the resolved dimension. observe may be nil.
func (p Problem) Solve(eng engine.Engine, params opt.Params, dim int, start []float64, observe Observer) (*Outcome, error) {
	return p.SolveWithLogger(eng, params, dim, start, observe, slog.Default())
}

// SolveWithLogger is Solve with an explicit logger for run progress.
func (p Problem) SolveWithLogger(eng engine.Engine, params opt.Params, dim int, start []float64, observe Observer, logger *slog.Logger) (*Outcome, error) {
	d, err := p.Dim(dim)
	if err != nil {
		return nil, err
	}
	if start != nil && len(start) != d {
		return nil, fmt.Errorf("problem %s: start vector has %d values, want %d", p.Name, len(start), d)
	}
	return p.solve(eng, params, d, start, observe, logger)
}

var registry = map[string]Problem{}

func register(p Problem) {
	registry[p.Name] = p
}

// Lookup returns the problem registered under name.
func Lookup(name string) (Problem, bool) {
	p, ok := registry[name]
	return p, ok
}

// Names returns all registered problem names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(Problem{
		Name:        "l1-2d",
		Description: "|x-2| + |y-8| from (5, 6)",
		DefaultDim:  2,
		Fixed:       true,
		LowerBound:  -10,
		UpperBound:  10,
		solve: func(eng engine.Engine, params opt.Params, _ int, start []float64, observe Observer, logger *slog.Logger) (*Outcome, error) {
			archetype := Point2{X: 5, Y: 6}
			if start != nil {
				archetype = Point2{}.FromVec(start, nil)
			}
			return solve(eng, archetype, params, L1Distance, observe, logger)
		},
	})

	vectorProblem := func(name, desc string, fill, lo, hi float64, score func(Vector) float64) Problem {
		return Problem{
			Name:        name,
			Description: desc,
			DefaultDim:  4,
			LowerBound:  lo,
			UpperBound:  hi,
			solve: func(eng engine.Engine, params opt.Params, dim int, start []float64, observe Observer, logger *slog.Logger) (*Outcome, error) {
				archetype := make(Vector, dim)
				for i := range archetype {
					archetype[i] = fill
				}
				if start != nil {
					archetype = Vector(slices.Clone(start))
				}
				return solve(eng, archetype, params, score, observe, logger)
			},
		}
	}
	register(vectorProblem("sphere", "sum of squares, minimum at the origin", 3, -5, 5, Sphere))
	register(vectorProblem("rosenbrock", "banana valley, minimum at (1, ..., 1)", -1.2, -2, 2, Rosenbrock))
	register(vectorProblem("rastrigin", "multimodal, minimum at the origin", 2.5, -5.12, 5.12, Rastrigin))

	cloud := NewCircleCloud(circleTruth, 64, 0.05, 1)
	register(Problem{
		Name:        "circle",
		Description: "least-squares circle through a noisy point cloud",
		DefaultDim:  3,
		Fixed:       true,
		LowerBound:  -5,
		UpperBound:  5,
		solve: func(eng engine.Engine, params opt.Params, _ int, start []float64, observe Observer, logger *slog.Logger) (*Outcome, error) {
			archetype := Circle{R: 1}
			if start != nil {
				archetype = Circle{}.FromVec(start, nil)
			}
			return solve(eng, archetype, params, cloud.Residual, observe, logger)
		},
	})
}

func solve[T interface {
	opt.Vectorizable[T]
	fmt.Stringer
}](eng engine.Engine, archetype T, params opt.Params, score func(T) float64, observe Observer, logger *slog.Logger) (*Outcome, error) {
	opts := []opt.Option[T]{opt.WithLogger[T](logger)}
	if observe != nil {
		opts = append(opts, opt.WithObserver(func(imp opt.Improvement[T]) {
			x, _ := imp.Candidate.ToVec()
			observe(imp.Score, x)
		}))
	}

	res, err := opt.Run(eng, archetype, params, score, opts...)
	if err != nil {
		return nil, err
	}

	x, _ := res.Best.ToVec()
	return &Outcome{
		Vector:         x,
		Score:          res.Score,
		ArchetypeScore: res.ArchetypeScore,
		Evaluations:    res.Evaluations,
		Improvements:   res.Improvements,
		Copies:         res.Copies,
		Elapsed:        res.Elapsed,
		Summary:        res.Best.String(),
	}, nil
}
