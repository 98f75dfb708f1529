// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type compositeSuite struct{}

var _ = check.Suite(&compositeSuite{})

func (s *compositeSuite) TestCoverage(c *check.C) {
	markers := make([]Marker, 100)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	steps, err := PartitionSteps(ml, linspaceCM(ml.Len(), 0.002), 0.05)
	c.Assert(err, check.IsNil)

	candidates := make([][]int, steps.Len())
	for t := range candidates {
		candidates[t] = []int{2, 4, 6}
	}
	rng := rand.New(rand.NewSource(7))
	comps := BuildComposites(0, candidates, steps, 3, 0.05, 0, 10, rng)
	c.Assert(len(comps) > 0, check.Equals, true)
	for _, comp := range comps {
		covered := 0
		for _, seg := range comp.Segments {
			c.Check(seg.End > seg.Start, check.Equals, true)
			covered += seg.End - seg.Start
		}
		c.Check(covered, check.Equals, ml.Len())
	}
}

func (s *compositeSuite) TestFallbackWhenNoCandidates(c *check.C) {
	markers := make([]Marker, 20)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	steps, err := PartitionSteps(ml, linspaceCM(ml.Len(), 0.01), 0.05)
	c.Assert(err, check.IsNil)
	candidates := make([][]int, steps.Len())
	rng := rand.New(rand.NewSource(3))
	comps := BuildComposites(0, candidates, steps, 4, 0.05, 0, 12, rng)
	c.Assert(len(comps), check.Equals, 4)
	for _, comp := range comps {
		c.Check(comp.Segments[0].Anchor/2 == 0, check.Equals, false)
	}
}
