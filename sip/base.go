// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sip

const (
	zero = 0.0
	half = 0.5
	one  = 1.0
	two  = 2.0
	ten  = 10.0
)

// Point is a sample in the index parameter domain or a decision vector.
type Point = []float64

// Status is the termination state of a SIP run.
type Status int

const (
	// Unsolved the run has not terminated yet.
	Unsolved Status = iota
	// Converged the bound gap met the tolerance and
	// the reported solution is certified feasible.
	Converged
	// Infeasible the discretized lower-bounding problem has no feasible point,
	// hence neither has the original semi-infinite program.
	Infeasible
	// OverIterLimit more than max outer iterations before convergence.
	OverIterLimit
)

// Phase identifies a state of the driver state machine.
type Phase int

const (
	// PhaseMain solve the discretized lower-bounding problem and
	// check its solution against every semi-infinite constraint.
	PhaseMain Phase = iota
	// PhaseUpper solve the upper-bounding problem at a candidate point.
	PhaseUpper
	// PhaseRestore bisect between the bounds to certify feasibility.
	PhaseRestore
	// PhaseDone terminal.
	PhaseDone
)

// Level selects which candidate decision point
// an inner maximization is evaluated at.
type Level int

const (
	// LevelLower the solution of the lower-bounding problem.
	LevelLower Level = iota + 1
	// LevelUpper the solution of the upper-bounding problem.
	LevelUpper
	// LevelRestore the solution of the restoration problem.
	LevelRestore
)

// Kind tags the subproblem a progress snapshot refers to.
type Kind int

const (
	KindLowerBound Kind = iota
	KindUpperBound
	KindInnerLower
	KindInnerUpper
	KindInnerRestore
	KindRestoration
)

type sipSpec struct {
	// the number of semi-infinite constraints
	nsip int
	// stop condition and limits
	stop Termination
	// per-kind subproblem tolerance table, resolved once at setup
	tol SolveTol
	// tolerance adaptation parameters
	ref Refinement
	// initial discretization sets, one per constraint
	init [][]Point
	// the external subproblem collaborators
	solve Subproblems
	// optional per-solve observer
	hook Progress
	// verbosity
	logger Logger
}

type sipBuf struct {
	// per-constraint tolerance for the lower inner problem.
	epsL []float64
	// per-constraint tolerance for the upper inner problem.
	epsU []float64
	// per-constraint tolerance for the restoration inner problem.
	epsG []float64
	// the last index point applied to a discretization set.
	pbar Point
	// staging slot for the latest inner-maximization point.
	pnew Point
	// scratch result of the latest subproblem of each kind.
	lbd, ubd BoundResult
	llp      [3]InnerResult
	res      RestoreResult
	// consecutive restoration retry counter.
	nres int
	// total restoration solves over the run.
	totalRes int
	// outer iteration counter.
	iter int
	// per-run discretization sets, append-only.
	disc *Discretization
}
