// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "gopkg.in/check.v1"

type hmmSuite struct{}

var _ = check.Suite(&hmmSuite{})

func (s *hmmSuite) TestForwardRowSumsToOne(c *check.C) {
	k := 5
	prev := make([]float64, k)
	for i := range prev {
		prev[i] = 1.0 / float64(k)
	}
	em := make([]float64, k)
	for i := range em {
		em[i] = 0.9
	}
	em[2] = 0.01
	row, sum := stepForward(prev, 1.0, 0.2, em)
	total := 0.0
	for _, v := range row {
		total += v
	}
	c.Check(closeTo(total, 1.0, 1e-9), check.Equals, true)
	c.Check(sum > 0, check.Equals, true)
}

func (s *hmmSuite) TestBackwardRowSumsToOne(c *check.C) {
	k := 4
	next := make([]float64, k)
	for i := range next {
		next[i] = 0.25
	}
	em := make([]float64, k)
	for i := range em {
		em[i] = 0.8
	}
	row, _ := stepBackward(next, 1.0, 0.1, em)
	total := 0.0
	for _, v := range row {
		total += v
	}
	c.Check(closeTo(total, 1.0, 1e-9), check.Equals, true)
}

func (s *hmmSuite) TestDecideSwapPrefersStrongerMatch(c *check.C) {
	// Track 1 aligns with bwd1, track 2 aligns with bwd2: no switch.
	fwd1 := []float64{1, 0}
	fwd2 := []float64{0, 1}
	bwd1 := []float64{1, 0}
	bwd2 := []float64{0, 1}
	d := decideSwap(fwd1, fwd2, bwd1, bwd2)
	c.Check(d.Swap, check.Equals, false)

	// Track 1 aligns with bwd2 and vice versa: switch.
	d2 := decideSwap(fwd1, fwd2, bwd2, bwd1)
	c.Check(d2.Swap, check.Equals, true)
}

func (s *hmmSuite) TestImputeAllelePicksDominantPosterior(c *check.C) {
	fwd := []float64{0.1, 0.9}
	bwd := []float64{1, 1}
	stateAllele := func(i int) int { return i } // state i realizes allele i
	a := imputeAllele(fwd, bwd, stateAllele, 2)
	c.Check(a, check.Equals, 1)
}

func (s *hmmSuite) TestForwardBackwardRowsSumToOneAndFavorMatchingState(c *check.C) {
	sc := &SampleClusters{}
	sc.clusters = []GenotypeCluster{
		{Start: 0, Size: 1, Type: Homozygous},
		{Start: 1, Size: 1, Type: Homozygous},
		{Start: 2, Size: 1, Type: MissingGT},
	}
	genPos := []float64{0, 0.01, 0.02}
	// Two composite states; state 0 carries allele 0 at every cluster,
	// state 1 carries allele 1. The observed haplotype matches state 0
	// at clusters 0 and 1, so state 0 should dominate the posterior at
	// the missing cluster too.
	stateAllele := func(ci, i int) int { return i }
	observed := func(ci int) int {
		if ci == 2 {
			return MissingAllele
		}
		return 0
	}
	fwd, bwd := ForwardBackward(sc, genPos, stateAllele, observed, 0.01, 1.0, 2)
	for ci := 0; ci < sc.Len(); ci++ {
		total := 0.0
		for _, v := range fwd.fwd[ci] {
			total += v
		}
		c.Check(closeTo(total, 1.0, 1e-9), check.Equals, true)
		total = 0.0
		for _, v := range bwd.bwd[ci] {
			total += v
		}
		c.Check(closeTo(total, 1.0, 1e-9), check.Equals, true)
	}
	sAllele := func(i int) int { return stateAllele(2, i) }
	a := imputeAllele(fwd.fwd[2], bwd.bwd[2], sAllele, 2)
	c.Check(a, check.Equals, 0)
}

func closeTo(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}
