package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/portfolioopt/internal/engine"
)

var (
	// ErrNilEngine is returned when Run is called without an engine.
	ErrNilEngine = errors.New("engine is nil")

	// ErrWorkerFailed wraps a panic raised inside a portfolio copy, either by
	// the engine or by the scoring function.
	ErrWorkerFailed = errors.New("portfolio copy failed")
)

// Result holds the output of a portfolio run.
type Result[T any] struct {
	Best           T
	Score          float64
	ArchetypeScore float64
	Evaluations    int
	Improvements   int
	Copies         int
	Elapsed        time.Duration
}

// Option customizes a portfolio run.
type Option[T any] func(*runOptions[T])

type runOptions[T any] struct {
	observe func(Improvement[T])
	logger  *slog.Logger
}

// WithObserver reports every improvement of the shared best register. fn is
// called from a single goroutine in improvement order, outside the register
// lock, so a slow observer does not stall the copies. Run returns after the
// last call. A panic in fn fails the run with ErrWorkerFailed.
func WithObserver[T any](fn func(Improvement[T])) Option[T] {
	return func(o *runOptions[T]) {
		o.observe = fn
	}
}

// WithLogger sets the logger used for run progress. Defaults to slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *runOptions[T]) {
		o.logger = logger
	}
}

// Optimize races params.PortfolioCopies engine runs and returns the best
// candidate seen by any of them, or the archetype if nothing beat it.
func Optimize[T Vectorizable[T]](eng engine.Engine, archetype T, params Params, score func(T) float64, opts ...Option[T]) (T, error) {
	res, err := Run(eng, archetype, params, score, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return res.Best, nil
}

// Run is Optimize with run statistics.
//
// The archetype is scored first on the calling goroutine and seeds the shared
// register, so the result is never worse than the archetype. An archetype
// scoring NaN is replaced by the first candidate with a numeric score. With one copy the
// engine runs on the calling goroutine; otherwise each copy gets its own
// goroutine, output buffer and bridge, and Run blocks until all of them are
// done. score must be safe for concurrent use when PortfolioCopies > 1.
//
// Precondition failures are reported before anything is evaluated. A panic in
// any copy fails the whole run with ErrWorkerFailed.
func Run[T Vectorizable[T]](eng engine.Engine, archetype T, params Params, score func(T) float64, opts ...Option[T]) (*Result[T], error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, ErrNilEngine
	}

	o := runOptions[T]{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	vec, ctx := archetype.ToVec()
	dim := len(vec)

	archetypeScore := score(archetype)
	reg := NewRegister(archetypeScore, archetype)
	var queue *observerQueue[T]
	if o.observe != nil {
		queue = startObserver(o.observe)
		reg.Observe(queue.send)
	}

	n := params.PortfolioCopies
	bridges := make([]*bridge[T], n)
	for i := range bridges {
		bridges[i] = &bridge[T]{
			archetype: archetype,
			ctx:       ctx,
			score:     score,
			best:      reg,
			copyIdx:   i,
		}
	}

	o.logger.Debug("Starting portfolio", "copies", n, "dimension", dim, "archetype_score", archetypeScore)
	start := time.Now()

	var err error
	if n == 1 {
		err = runCopy(eng, bridges[0], dim, params)
	} else {
		var g errgroup.Group
		for _, b := range bridges {
			g.Go(func() error {
				return runCopy(eng, b, dim, params)
			})
		}
		err = g.Wait()
	}
	if queue != nil {
		if qerr := queue.wait(); err == nil {
			err = qerr
		}
	}
	if err != nil {
		o.logger.Error("Portfolio failed", "copies", n, "error", err)
		return nil, err
	}

	best, bestScore := reg.Best()
	res := &Result[T]{
		Best:           best,
		Score:          bestScore,
		ArchetypeScore: archetypeScore,
		Improvements:   reg.Improvements(),
		Copies:         n,
		Elapsed:        time.Since(start),
	}
	for _, b := range bridges {
		res.Evaluations += b.evals
	}

	o.logger.Info("Portfolio complete",
		"copies", n,
		"evaluations", res.Evaluations,
		"improvements", res.Improvements,
		"archetype_score", archetypeScore,
		"best_score", bestScore,
		"elapsed", res.Elapsed,
	)

	return res, nil
}

// runCopy performs one full engine invocation for a portfolio copy. The
// engine's own answer is discarded: the shared register already saw every
// point the engine evaluated.
func runCopy[T Vectorizable[T]](eng engine.Engine, b *bridge[T], dim int, params Params) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: copy %d: %v", ErrWorkerFailed, b.copyIdx, r)
		}
	}()

	invoke(eng, b, dim, params)
	return nil
}

// observerBuffer is how many improvements may wait for the observer before
// improving copies block.
const observerBuffer = 256

// observerQueue hands register improvements to an observer goroutine. send
// runs under the register lock, so the queue keeps improvement order.
type observerQueue[T any] struct {
	ch   chan Improvement[T]
	done chan struct{}
	err  error
}

func startObserver[T any](fn func(Improvement[T])) *observerQueue[T] {
	q := &observerQueue[T]{
		ch:   make(chan Improvement[T], observerBuffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for imp := range q.ch {
			// After a panic the rest is drained so senders never block.
			if q.err == nil {
				q.err = deliver(fn, imp)
			}
		}
	}()
	return q
}

func (q *observerQueue[T]) send(imp Improvement[T]) {
	q.ch <- imp
}

// wait closes the queue and blocks until the observer has seen everything.
func (q *observerQueue[T]) wait() error {
	close(q.ch)
	<-q.done
	return q.err
}

func deliver[T any](fn func(Improvement[T]), imp Improvement[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: observer: %v", ErrWorkerFailed, r)
		}
	}()
	fn(imp)
	return nil
}
