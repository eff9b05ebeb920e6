// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sip

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only a summary at termination
	LogLast LogLevel = 0
	// LogCycle print also bounds and set sizes after every outer cycle
	LogCycle LogLevel = 1
	// LogTrace print also the outcome of every subproblem solve
	LogTrace LogLevel = 2
)

// Logger handles logging output for the optimizer.
// Note the writer must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// BoundResult is the outcome of a bounding subproblem.
type BoundResult struct {
	// Objective value attained at Point.
	Objective float64
	// Whether the finitely constrained program has a feasible point.
	// A false result from the lower-bounding problem is terminal:
	// the original semi-infinite program is infeasible.
	Feasible bool
	// The minimizer in the decision domain.
	Point Point
}

// InnerResult is the outcome of an inner maximization: the constraint
// violation maximized over the infinite index domain at a fixed candidate
// decision point.
//   - Objective > 0 certifies a real violation at Point.
//   - Bound ≤ 0 certifies no violation exists anywhere in the index domain.
type InnerResult struct {
	// Best violation value found.
	Objective float64
	// Valid upper bound on the violation over the whole index domain.
	Bound float64
	// The index point attaining Objective.
	Point Point
}

// RestoreResult is the outcome of a restoration subproblem: whether a
// feasible point exists at a target objective level between the bounds.
//   - Bound < 0 certifies the target level is infeasible, Objective is a
//     valid tighter lower bound.
//   - Objective > 0 reports a genuine violation at the candidate Point.
type RestoreResult struct {
	Objective float64
	Bound     float64
	Point     Point
}

// Subproblems supplies the four external solving capabilities consumed by
// the driver. Implementations receive the current discretization sets and a
// tolerance resolved from the SolveTol table; they must not mutate the sets.
//
// A non-nil error (or a NaN objective/bound) reports numeric non-convergence.
// The driver classifies such a result as undecided: the corresponding
// discretization/tolerance update is skipped and iteration continues, bounded
// only by the outer iteration limit.
type Subproblems interface {
	// LowerBound solves the discretized master problem,
	// a valid relaxation of the semi-infinite program.
	LowerBound(d *Discretization, tol float64) (BoundResult, error)
	// UpperBound evaluates the objective at a candidate point subject to
	// the finitely many discretized constraints.
	UpperBound(d *Discretization, tol float64) (BoundResult, error)
	// InnerMax maximizes the violation of semi-infinite constraint i over
	// the index domain, at the candidate decision point selected by level.
	InnerMax(level Level, d *Discretization, tol float64, i int) (InnerResult, error)
	// Restoration determines whether a feasible point exists
	// at the target objective level.
	Restoration(target, tol float64) (RestoreResult, error)
}

// Termination specifies the stopping criteria for the SIP iteration.
type Termination struct {
	// The iteration will stop when U - L ≤ 𝚊𝚝𝚘𝚕.
	AbsTolerance float64
	// Optional relative widening of the gap criterion:
	// converged when U - L ≤ 𝚖𝚊𝚡(𝚊𝚝𝚘𝚕, 𝚛𝚝𝚘𝚕×|U|). Zero disables.
	RelTolerance float64
	// The iteration stop when the number of outer cycles exceeds limit.
	MaxIterations int
	// The restoration phase falls back to the main phase after
	// this many consecutive retries.
	MaxRestoration int
}

// SolveTol maps each subproblem kind to the tolerance handed to its solver.
// Zero entries are resolved to defaults derived from the absolute tolerance.
type SolveTol struct {
	LowerBound   float64
	UpperBound   float64
	InnerLower   float64
	InnerUpper   float64
	InnerRestore float64
	Restoration  float64
}

// Refinement controls the per-constraint tolerance adaptation.
type Refinement struct {
	// Initial tolerances 𝛆ₗ, 𝛆ᵤ, 𝛆₉ broadcast to every constraint.
	// Zero entries default to 1.
	EpsLower, EpsUpper, EpsRestore float64
	// Contraction ratio rₗ > 1: an inconclusive inner maximization with
	// violation bound 𝑣̄ > 0 ≥ 𝑣 tightens the tolerance to (𝑣̄ - 𝑣)/rₗ.
	ShrinkRatio float64
	// Relaxation ratio r₉ > 1: a certified nonpositive inner maximization
	// on the upper/restoration side relaxes the tolerance by dividing it.
	RelaxRatio float64
}

// Snapshot carries the observable driver state after one subproblem solve.
// All slices are copies and may be retained.
type Snapshot struct {
	Phase      Phase
	Kind       Kind
	Constraint int // Constraint index for inner maximizations, -1 otherwise.
	Iter       int
	Restores   int
	LowerBound float64
	UpperBound float64
	Objective  float64
	Bound      float64
	Feasible   bool
	EpsLower   []float64
	EpsUpper   []float64
	EpsRestore []float64
}

// Progress observes the driver after each subproblem solve.
// Purely observational, no effect on control flow.
type Progress func(Snapshot)

// Problem specifies the problem for the SIP optimizer.
type Problem struct {
	NSIP   int         // The number of semi-infinite constraints
	Solve  Subproblems // Subproblem collaborators
	Stop   Termination // Stop condition
	Tol    *SolveTol   // Optional subproblem tolerance table
	Refine Refinement  // Tolerance adaptation option
	Init   [][]Point   // Optional initial discretization sets
	Hook   Progress    // Optional progress observer
}

// New creates a new SIP optimizer for given problem.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}

	stop, ref := p.Stop, p.Refine

	if stop.MaxRestoration == 0 {
		stop.MaxRestoration = 10
	}
	if ref.ShrinkRatio == zero {
		ref.ShrinkRatio = two
	}
	if ref.RelaxRatio == zero {
		ref.RelaxRatio = two
	}
	if ref.EpsLower == zero {
		ref.EpsLower = one
	}
	if ref.EpsUpper == zero {
		ref.EpsUpper = one
	}
	if ref.EpsRestore == zero {
		ref.EpsRestore = one
	}

	tol := SolveTol{}
	if p.Tol != nil {
		tol = *p.Tol
	}
	def := stop.AbsTolerance / ten
	for _, t := range []*float64{
		&tol.LowerBound, &tol.UpperBound,
		&tol.InnerLower, &tol.InnerUpper, &tol.InnerRestore,
	} {
		if *t == zero {
			*t = def
		}
	}
	if tol.Restoration == zero {
		tol.Restoration = stop.AbsTolerance
	}

	switch {
	case p.NSIP <= 0:
		err = errors.New("semi-infinite constraints number must greater than 0")
	case p.Solve == nil:
		err = errors.New("subproblem collaborators are required")
	case stop.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 1")
	case stop.MaxRestoration < 0:
		err = errors.New("restoration retry limit must not less than 0")
	case math.IsNaN(stop.AbsTolerance) || stop.AbsTolerance <= zero:
		err = errors.New("absolute tolerance must greater than 0")
	case math.IsNaN(stop.RelTolerance) || stop.RelTolerance < zero:
		err = errors.New("relative tolerance must not less than 0")
	case ref.ShrinkRatio <= one || ref.RelaxRatio <= one:
		err = errors.New("contraction ratio must greater than 1")
	case ref.EpsLower < zero || ref.EpsUpper < zero || ref.EpsRestore < zero:
		err = errors.New("initial tolerance must not less than 0")
	case len(p.Init) > p.NSIP:
		err = errors.New("initial discretization size must not exceed constraints number")
	}

	if err != nil {
		return
	}

	init := make([][]Point, len(p.Init))
	for i, set := range p.Init {
		init[i] = make([]Point, len(set))
		for k, pt := range set {
			init[i][k] = slices.Clone(pt)
		}
	}

	optimizer = &Optimizer{
		sipSpec{
			nsip:   p.NSIP,
			stop:   stop,
			tol:    tol,
			ref:    ref,
			init:   init,
			solve:  p.Solve,
			hook:   p.Hook,
			logger: *logger,
		},
	}
	return
}

// Optimizer implemented using the adaptive discretization SIP algorithm.
type Optimizer struct {
	sipSpec
}

// Workspace contains the state and context of one SIP run: the per-constraint
// tolerances, the scratch subproblem results and the discretization sets.
// To avoid race conditions, separate workspaces need to be created for each
// goroutine. But multiple workspaces could share one optimizer.
type Workspace struct {
	nsip int
	sipBuf
}

// Init allocate the workspace for the SIP optimizer.
// The discretization sets are seeded from the problem's initial sets.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.nsip = o.nsip
	w.epsL = broadcast(o.ref.EpsLower, o.nsip)
	w.epsU = broadcast(o.ref.EpsUpper, o.nsip)
	w.epsG = broadcast(o.ref.EpsRestore, o.nsip)
	w.disc = newDiscretization(o.init, o.nsip)
	return w
}

func broadcast(v float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// Result contains the final result of the SIP run.
type Result struct {
	// Whether the reported solution is certified feasible for the
	// original semi-infinite program.
	Feasible bool
	// Valid bounds on the optimal value. LowerBound is -Inf and
	// UpperBound is +Inf while undefined.
	LowerBound, UpperBound float64
	// Best certified feasible solution, nil until an upper bound is recorded.
	X Point
	// Run summary.
	Summary
}

// Summary contains a summary of the SIP run.
type Summary struct {
	Status  Status // Final status after the run.
	NumIter int    // Number of iteration steps counted toward MaxIterations.
	NumRes  int    // Number of restoration solves performed.
}

// Solve runs the SIP iteration using workspace w.
// A workspace may be reused to warm start a subsequent run:
// the accumulated discretization sets and tolerances are kept.
func (o *Optimizer) Solve(w *Workspace) *Result {

	if w.nsip != o.nsip || w.disc == nil {
		panic("workspace dimension not match spec")
	}

	w.iter, w.nres, w.totalRes = 0, 0, 0

	r := &Result{
		LowerBound: math.Inf(-1),
		UpperBound: math.Inf(1),
	}

	driver := sipDriver{
		optimizer: o,
		workspace: w,
		result:    r,
	}

	driver.mainLoop()
	r.NumIter = w.iter
	r.NumRes = w.totalRes
	return r
}

func (r *Result) tightenLower(v float64) {
	if v > r.LowerBound {
		r.LowerBound = math.Min(v, r.UpperBound)
	}
}

func (r *Result) acceptUpper(v float64, x Point) {
	if v <= r.UpperBound {
		r.UpperBound = math.Max(v, r.LowerBound)
		r.X = append(r.X[:0], x...)
		r.Feasible = true
	}
}
