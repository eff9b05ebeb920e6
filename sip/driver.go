// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sip

import (
	"math"
	"slices"
)

// sipDriver iterates the SIP phase state machine, responsible for consuming
// subproblem results, growing the discretization sets and adapting the
// per-constraint tolerances.
//
// The algorithm alternates three phases until terminal:
//
//   - MAIN : solve the discretized lower-bounding relaxation, then run one
//     inner maximization per semi-infinite constraint at its solution. A
//     strict violation grows the discretization set, an inconclusive result
//     tightens 𝛆ₗ. When every constraint is certified nonpositive the
//     relaxed solution solves the original program and the run terminates.
//   - UPPER : solve the upper-bounding problem and repeat the per-constraint
//     check at its solution, this time adapting 𝛆ᵤ/𝛆₉. A candidate whose
//     constraints are all certified nonpositive yields a valid upper bound.
//     Terminates the run once U - L meets the gap criterion.
//   - RESTORE : bisect between the bounds, asking the restoration problem
//     whether a feasible point exists at the midpoint objective level. A
//     certified-infeasible level tightens the lower bound and halves the
//     bracket again; a violated candidate harvests new discretization points
//     for a bounded number of retries before the main phase restarts with
//     the enlarged sets.
//
// Undecided subproblem results (numeric non-convergence, NaN bounds) skip
// their update and keep iterating, so a persistently undecided collaborator
// surfaces as an iteration-limit termination rather than an error.
//
// # Reference
//
// Hatim Djelassi, Alexander Mitsos: "A hybrid discretization algorithm with
// guaranteed feasibility for the global solution of semi-infinite programs".
// Journal of Global Optimization 68, 2017
type sipDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	result    *Result
}

// mainLoop dispatches phases until terminal, bounding the total number of
// subproblem calls by the outer iteration limit. The outer counter advances
// on every UPPER→RESTORE transition, every RESTORE→MAIN fallback and every
// undecided main-phase retry; each non-terminating cycle crosses one of
// those edges.
func (d *sipDriver) mainLoop() {

	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf

	d.printInit()

	phase := PhaseMain
	for phase != PhaseDone {
		if w.iter >= s.stop.MaxIterations {
			d.result.Status = OverIterLimit
			break
		}
		switch phase {
		case PhaseMain:
			phase = d.runMain()
		case PhaseUpper:
			phase = d.runUpper()
		case PhaseRestore:
			phase = d.runRestore()
		}
	}

	d.printExit()
}

// runMain solves the lower-bounding problem at the current discretization and
// certifies its solution against every semi-infinite constraint.
func (d *sipDriver) runMain() Phase {

	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf
	r := d.result

	lbd, err := s.solve.LowerBound(w.disc, s.tol.LowerBound)
	w.lbd = lbd
	d.report(PhaseMain, KindLowerBound, -1, lbd.Objective, math.NaN(), lbd.Feasible)

	if undecided(err, lbd.Objective) {
		// No candidate point to check: burn a cycle and retry.
		w.iter++
		return PhaseMain
	}
	if !lbd.Feasible {
		r.Status = Infeasible
		return PhaseDone
	}
	r.tightenLower(lbd.Objective)

	allNonpos := true
	for i := 0; i < s.nsip; i++ {
		in, err := s.solve.InnerMax(LevelLower, w.disc, s.tol.InnerLower, i)
		w.llp[0] = in
		d.report(PhaseMain, KindInnerLower, i, in.Objective, in.Bound, false)
		if undecided(err, in.Objective, in.Bound) {
			allNonpos = false
			continue
		}
		switch {
		case in.Bound <= zero:
			// constraint certified satisfied over the whole index domain
		case in.Objective > zero:
			w.harvest(i, in.Point)
			allNonpos = false
		default:
			w.epsL[i] = (in.Bound - in.Objective) / s.ref.ShrinkRatio
			allNonpos = false
		}
	}

	if allNonpos {
		// The relaxed solution is feasible for the infinite constraint set,
		// hence optimal for the original program.
		r.acceptUpper(lbd.Objective, lbd.Point)
		r.Status = Converged
		return PhaseDone
	}
	return PhaseUpper
}

// runUpper solves the upper-bounding problem, certifies its solution, and
// checks the gap criterion. Ends the outer cycle.
func (d *sipDriver) runUpper() Phase {

	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf
	r := d.result

	ubd, err := s.solve.UpperBound(w.disc, s.tol.UpperBound)
	w.ubd = ubd
	d.report(PhaseUpper, KindUpperBound, -1, ubd.Objective, math.NaN(), ubd.Feasible)

	switch {
	case undecided(err, ubd.Objective):
		// forgo any update this cycle
	case !ubd.Feasible:
		for i := range w.epsG {
			w.epsG[i] /= s.ref.RelaxRatio
		}
	default:
		allNonpos := true
		for i := 0; i < s.nsip; i++ {
			in, err := s.solve.InnerMax(LevelUpper, w.disc, s.tol.InnerUpper, i)
			w.llp[1] = in
			d.report(PhaseUpper, KindInnerUpper, i, in.Objective, in.Bound, false)
			if undecided(err, in.Objective, in.Bound) {
				allNonpos = false
				continue
			}
			switch {
			case in.Bound <= zero:
				// no refinement of this constraint is currently necessary
				w.epsG[i] /= s.ref.RelaxRatio
			case in.Objective > zero:
				w.harvest(i, in.Point)
				allNonpos = false
			default:
				w.epsU[i] = (in.Bound - in.Objective) / s.ref.ShrinkRatio
				allNonpos = false
			}
		}
		if allNonpos {
			r.acceptUpper(ubd.Objective, ubd.Point)
		}
	}

	if d.converged() {
		r.Status = Converged
		return PhaseDone
	}

	w.iter++
	d.printIter()
	return PhaseRestore
}

// runRestore bisects between the bounds and certifies whether a feasible
// point exists at the midpoint objective level. The per-constraint scan
// short-circuits on the first certified violation, consistent with the
// lower/upper phases; the restoration objective becomes the new upper bound
// only when the scan completes with every constraint certified nonpositive.
func (d *sipDriver) runRestore() Phase {

	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf
	r := d.result

	if w.nres >= s.stop.MaxRestoration {
		// Retry budget exhausted: restart the main phase
		// with the discretization sets accumulated so far.
		w.nres = 0
		w.iter++
		return PhaseMain
	}

	if math.IsInf(r.LowerBound, -1) || math.IsInf(r.UpperBound, 1) {
		// No finite bracket to bisect yet:
		// restart the main phase until both bounds are defined.
		w.nres = 0
		w.iter++
		return PhaseMain
	}

	target := half * (r.LowerBound + r.UpperBound)
	res, err := s.solve.Restoration(target, s.tol.Restoration)
	w.res = res
	w.totalRes++
	d.report(PhaseRestore, KindRestoration, -1, res.Objective, res.Bound, false)

	if undecided(err, res.Objective, res.Bound) {
		w.nres = 0
		w.iter++
		return PhaseMain
	}

	switch {
	case res.Bound < zero:
		// No feasible point at or below the target level:
		// the lower bound tightens and the bracket halves again.
		r.tightenLower(res.Objective)
		w.nres++
		return PhaseRestore

	case res.Objective > zero:
		// A genuine violation at the restoration candidate.
		certified := true
		for i := 0; i < s.nsip; i++ {
			in, err := s.solve.InnerMax(LevelRestore, w.disc, s.tol.InnerRestore, i)
			w.llp[2] = in
			d.report(PhaseRestore, KindInnerRestore, i, in.Objective, in.Bound, false)
			if undecided(err, in.Objective, in.Bound) {
				certified = false
				continue
			}
			if in.Bound <= zero {
				w.epsG[i] = math.Min(w.epsG[i], in.Bound/s.ref.RelaxRatio)
				continue
			}
			w.harvest(i, in.Point)
			w.nres++
			return PhaseRestore
		}
		if certified {
			r.acceptUpper(res.Objective, res.Point)
			return PhaseUpper
		}
		// Undecided constraints left no certificate either way.
		w.nres = 0
		w.iter++
		return PhaseMain

	default:
		// No violation and no deeper bound.
		w.nres = 0
		w.iter++
		return PhaseMain
	}
}

// converged reports whether the gap criterion U - L ≤ 𝚖𝚊𝚡(𝚊𝚝𝚘𝚕, 𝚛𝚝𝚘𝚕×|U|)
// holds with both bounds defined.
func (d *sipDriver) converged() bool {
	r, stop := d.result, &d.optimizer.stop
	if math.IsInf(r.LowerBound, -1) || math.IsInf(r.UpperBound, 1) {
		return false
	}
	tol := stop.AbsTolerance
	if t := stop.RelTolerance * math.Abs(r.UpperBound); t > tol {
		tol = t
	}
	return r.UpperBound-r.LowerBound <= tol
}

// harvest stages an inner-maximization point and
// appends it to the discretization set of constraint i.
func (b *sipBuf) harvest(i int, p Point) {
	b.pnew = append(b.pnew[:0], p...)
	b.disc.Append(i, b.pnew)
	b.pbar = append(b.pbar[:0], b.pnew...)
}

// undecided classifies a collaborator failure or NaN outcome as a
// non-converged subproblem whose update must be skipped.
func undecided(err error, vals ...float64) bool {
	if err != nil {
		return true
	}
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func (d *sipDriver) report(phase Phase, kind Kind, i int, obj, bnd float64, feas bool) {

	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf
	r := d.result

	if log := &s.logger; log.enable(LogTrace) {
		log.log("%-7s %-12s i=%2d  obj= %12.5e  bound= %12.5e  L= %12.5e  U= %12.5e\n",
			formatPhase(phase), formatKind(kind), i, obj, bnd, r.LowerBound, r.UpperBound)
	}

	if s.hook == nil {
		return
	}
	s.hook(Snapshot{
		Phase:      phase,
		Kind:       kind,
		Constraint: i,
		Iter:       w.iter,
		Restores:   w.nres,
		LowerBound: r.LowerBound,
		UpperBound: r.UpperBound,
		Objective:  obj,
		Bound:      bnd,
		Feasible:   feas,
		EpsLower:   slices.Clone(w.epsL),
		EpsUpper:   slices.Clone(w.epsU),
		EpsRestore: slices.Clone(w.epsG),
	})
}

// printInit logs the setup of the SIP run.
func (d *sipDriver) printInit() {
	s := &d.optimizer.sipSpec
	if log := &s.logger; log.enable(LogLast) {
		log.log("RUNNING THE SIP HYBRID CODE\n")
		log.log("           * * *\n")
		log.log("NSIP = %d    ATOL = %10.3e    MAXITER = %d\n",
			s.nsip, s.stop.AbsTolerance, s.stop.MaxIterations)
	}
}

// printIter logs the bounds and set sizes at the end of an outer cycle.
func (d *sipDriver) printIter() {
	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf
	r := d.result

	log := &s.logger
	if !log.enable(LogCycle) {
		return
	}
	log.log("At cycle %5d    L= %12.5e    U= %12.5e    gap= %10.3e    sets=",
		w.iter, r.LowerBound, r.UpperBound, r.UpperBound-r.LowerBound)
	for i := 0; i < s.nsip; i++ {
		log.log(" %d", w.disc.Size(i))
	}
	log.log("\n")
}

// printExit logs the final bounds and exit condition of the SIP run.
func (d *sipDriver) printExit() {
	s := &d.optimizer.sipSpec
	w := &d.workspace.sipBuf
	r := d.result

	log := &s.logger
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("Tit  = total number of outer cycles\n")
	log.log("Tres = total number of restoration solves\n")
	log.log("L    = final lower bound\n")
	log.log("U    = final upper bound\n")
	log.log("\n   Tit   Tres            L            U\n")
	log.log("%6d %6d %12.5e %12.5e\n", w.iter, w.totalRes, r.LowerBound, r.UpperBound)

	var msg string
	switch r.Status {
	case Converged:
		msg = "CONVERGENCE: UPPER_BOUND - LOWER_BOUND <= TOLERANCE"
	case Infeasible:
		msg = "STOP: DISCRETIZED LOWER BOUNDING PROBLEM INFEASIBLE"
	case OverIterLimit:
		msg = "STOP: TOTAL NO. of OUTER CYCLES REACHED LIMIT"
	default:
		msg = "UNKNOWN STATUS"
	}
	log.log("\n%s\n", msg)
}

func formatPhase(phase Phase) string {
	switch phase {
	case PhaseMain:
		return "MAIN"
	case PhaseUpper:
		return "UPPER"
	case PhaseRestore:
		return "RESTORE"
	case PhaseDone:
		return "DONE"
	default:
		return "---"
	}
}

func formatKind(kind Kind) string {
	switch kind {
	case KindLowerBound:
		return "LBD"
	case KindUpperBound:
		return "UBD"
	case KindInnerLower:
		return "LLP1"
	case KindInnerUpper:
		return "LLP2"
	case KindInnerRestore:
		return "LLP3"
	case KindRestoration:
		return "RES"
	default:
		return "---"
	}
}
