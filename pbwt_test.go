// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type pbwtSuite struct{}

var _ = check.Suite(&pbwtSuite{})

func (s *pbwtSuite) TestIdenticalHaplotypesAdjacent(c *check.C) {
	markers := make([]Marker, 40)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	store := NewHaplotypeStore(ml, 6)
	for m := 0; m < ml.Len(); m++ {
		store.SetAllele(0, m, m%2)
		store.SetAllele(1, m, m%2) // identical to 0
		store.SetAllele(2, m, (m+1)%2)
		store.SetAllele(3, m, m%2)     // identical to 0 and 1
		store.SetAllele(4, m, (m)%2)   // identical too, to stress bucket sizes
		store.SetAllele(5, m, (m+1)%2) // identical to 2
	}
	steps, err := PartitionSteps(ml, linspaceCM(ml.Len(), 0.01), 0.05)
	c.Assert(err, check.IsNil)
	coded := CodeSteps(store, steps, 1)
	states := RunPBWT(coded, 6, Forward)
	last := states[len(states)-1]
	i0, i1 := last.positionOf(0), last.positionOf(1)
	c.Check(abs(i0-i1) <= 3, check.Equals, true)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func linspaceCM(n int, step float64) []float64 {
	g := make([]float64, n)
	for i := range g {
		g[i] = float64(i) * step
	}
	return g
}

func (s *pbwtSuite) TestCandidatesExcludeIbs2(c *check.C) {
	markers := make([]Marker, 30)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	store := NewHaplotypeStore(ml, 4)
	for m := 0; m < ml.Len(); m++ {
		store.SetAllele(0, m, m%2)
		store.SetAllele(1, m, m%2)
		store.SetAllele(2, m, m%2)
		store.SetAllele(3, m, (m+1)%2)
	}
	steps, err := PartitionSteps(ml, linspaceCM(ml.Len(), 0.01), 0.1)
	c.Assert(err, check.IsNil)
	coded := CodeSteps(store, steps, 1)
	states := RunPBWT(coded, 4, Forward)
	last := states[len(states)-1]

	ibs2 := &IBS2Store{nSamples: 2, segs: map[int64][]IBS2Segment{
		pairKey(0, 0): {{Start: 0, End: ml.Len() - 1}},
	}}
	sampleOf := func(hap int) int { return hap / 2 }
	rng := rand.New(rand.NewSource(1))
	elig := last.Candidates(0, 4, 0, ml.Len()-1, ibs2, sampleOf, rng)
	for _, hap := range elig {
		c.Check(sampleOf(hap) == 0, check.Equals, false)
	}
}

func (s *pbwtSuite) TestPickCandidateReturnsMinusOneWhenEmpty(c *check.C) {
	rng := rand.New(rand.NewSource(1))
	c.Check(PickCandidate(nil, rng), check.Equals, -1)
}

func (s *pbwtSuite) TestPickCandidateChoosesFromEligible(c *check.C) {
	rng := rand.New(rand.NewSource(1))
	eligible := []int{7, 9, 11}
	for i := 0; i < 20; i++ {
		p := PickCandidate(eligible, rng)
		found := false
		for _, e := range eligible {
			if e == p {
				found = true
			}
		}
		c.Check(found, check.Equals, true)
	}
}

func (s *pbwtSuite) TestDivergenceBetweenIsSymmetricAndMonotone(c *check.C) {
	st := &PBWTState{a: []int32{0, 1, 2, 3}, d: []int32{0, 2, 5, 1, 0}}
	c.Check(st.divergenceBetween(0, 2), check.Equals, st.divergenceBetween(2, 0))
	// widening the span can only add candidate d[] values, never drop one.
	c.Check(st.divergenceBetween(0, 3) >= st.divergenceBetween(0, 2), check.Equals, true)
}

func (s *pbwtSuite) TestLowFreqCandidatesPicksNearerNeighborAndRespectsBackoff(c *check.C) {
	// Positions in PBWT order: hap 5 at 0, hap 0 (target) at 2, hap 1 at
	// 3, hap 2 at 8. hap 1 is a much closer co-carrier than hap 2.
	st := &PBWTState{
		a: []int32{5, 9, 0, 1, 10, 11, 12, 13, 2},
		d: []int32{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	groups := []RareCarrierGroup{
		{Marker: 4, Allele: 1, Haps: []int32{0, 1, 2}},
	}
	sampleOf := func(hap int) int { return hap }
	got := st.LowFreqCandidates(0, groups, 50, 0, 9, nil, sampleOf)
	c.Assert(len(got), check.Equals, 1)
	c.Check(got[0], check.Equals, 1)

	// A backoff bound of 0 excludes every member (all strictly farther
	// than 0 positions away), leaving nothing eligible.
	tight := st.LowFreqCandidates(0, groups, 0, 0, 9, nil, sampleOf)
	c.Check(tight, check.IsNil)
}

func (s *pbwtSuite) TestLowFreqCandidatesNilWhenNoRareGroupMembership(c *check.C) {
	st := &PBWTState{a: []int32{0, 1, 2}, d: []int32{0, 0, 0, 0}}
	groups := []RareCarrierGroup{
		{Marker: 1, Allele: 1, Haps: []int32{1, 2}},
	}
	sampleOf := func(hap int) int { return hap }
	got := st.LowFreqCandidates(0, groups, 50, 0, 2, nil, sampleOf)
	c.Check(got, check.IsNil)
}
