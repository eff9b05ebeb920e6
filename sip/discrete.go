// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sip

import "slices"

// Discretization holds one ordered sample set per semi-infinite constraint.
// The sets finitely approximate the infinite index domain: growing them is
// the sole mechanism by which the approximation is tightened, so points are
// appended in insertion order and never removed or reordered.
// Duplicate points are permitted, redundancy only costs solver runtime.
type Discretization struct {
	sets [][]Point
}

func newDiscretization(init [][]Point, nsip int) *Discretization {
	d := &Discretization{sets: make([][]Point, nsip)}
	for i := range d.sets {
		if i >= len(init) {
			continue
		}
		d.sets[i] = make([]Point, 0, len(init[i]))
		for _, p := range init[i] {
			d.sets[i] = append(d.sets[i], slices.Clone(p))
		}
	}
	return d
}

// NumConstraints returns the number of semi-infinite constraints.
func (d *Discretization) NumConstraints() int {
	return len(d.sets)
}

// Size returns the number of sample points held for constraint i.
func (d *Discretization) Size(i int) int {
	return len(d.set(i))
}

// Points returns the sample set of constraint i in insertion order.
// The returned slice and its points must not be modified.
func (d *Discretization) Points(i int) []Point {
	return d.set(i)
}

// Append adds a copy of sample point p to the set of constraint i.
func (d *Discretization) Append(i int, p Point) {
	d.set(i)
	d.sets[i] = append(d.sets[i], slices.Clone(p))
}

func (d *Discretization) set(i int) []Point {
	if i < 0 || i >= len(d.sets) {
		panic("constraint index not match spec")
	}
	return d.sets[i]
}
