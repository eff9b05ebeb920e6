// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sip

import "testing"

func TestDiscretizationGrowth(t *testing.T) {

	d := newDiscretization([][]Point{{{0, 0}}}, 2)

	switch {
	case d.NumConstraints() != 2:
		t.Fatal("TestDiscretizationGrowth: constraint number")
	case d.Size(0) != 1 || d.Size(1) != 0:
		t.Fatal("TestDiscretizationGrowth: seed sizes")
	}

	p := Point{1, 2}
	d.Append(0, p)
	d.Append(1, p)
	p[0] = -1 // appended points are copies

	switch pts := d.Points(0); {
	case d.Size(0) != 2 || d.Size(1) != 1:
		t.Fatal("TestDiscretizationGrowth: sizes after append")
	case pts[0][0] != 0 || pts[1][0] != 1:
		t.Fatal("TestDiscretizationGrowth: insertion order")
	case d.Points(1)[0][0] != 1:
		t.Fatal("TestDiscretizationGrowth: appended point aliased")
	}

	// duplicates are permitted
	d.Append(1, Point{1, 2})
	if d.Size(1) != 2 {
		t.Fatal("TestDiscretizationGrowth: duplicate rejected")
	}
}

func TestDiscretizationIndex(t *testing.T) {

	d := newDiscretization(nil, 1)

	for _, i := range []int{-1, 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("TestDiscretizationIndex: bad index accepted", i)
				}
			}()
			d.Append(i, Point{0})
		}()
	}
}
