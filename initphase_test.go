// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type initPhaseSuite struct{}

var _ = check.Suite(&initPhaseSuite{})

func (s *initPhaseSuite) TestPartitionSubWindowsCoversRange(c *check.C) {
	genPos := linspaceCM(500, 0.001)
	wins := PartitionSubWindows(genPos, 0.1)
	c.Assert(len(wins) > 0, check.Equals, true)
	c.Check(wins[0].Start, check.Equals, 0)
	c.Check(wins[len(wins)-1].End, check.Equals, len(genPos))
}

func (s *initPhaseSuite) TestSingleSampleAllHetPhasesWithoutPanic(c *check.C) {
	n := 30
	markers := make([]Marker, n)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	store := NewHaplotypeStore(ml, 4) // sample 0 target, sample 1 reference
	for m := 0; m < n; m++ {
		store.SetAllele(0, m, 0)
		store.SetAllele(1, m, 1)
		store.SetAllele(2, m, m%2)
		store.SetAllele(3, m, (m+1)%2)
	}
	genPos := linspaceCM(n, 0.001)
	sw := subWindow{Start: 0, End: n, OverlapEnd: 0}
	rng := rand.New(rand.NewSource(1))
	greedyPBWTPhase(store, ml, sw, 0, Forward, genPos, rng)
	for m := 0; m < n; m++ {
		c.Check(store.Allele(0, m) != store.Allele(1, m), check.Equals, true)
	}
}

func (s *initPhaseSuite) TestDrawMissingAlleleRespectsZeroTotal(c *check.C) {
	rng := rand.New(rand.NewSource(2))
	a := DrawMissingAllele([]int{0, 0, 0}, rng)
	c.Check(a, check.Equals, 0)
}
