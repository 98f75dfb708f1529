// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "gopkg.in/check.v1"

type ibs2Suite struct{}

var _ = check.Suite(&ibs2Suite{})

// identicalTwinCalls builds nMarkers diagnostic-eligible markers where
// samples 0 and 1 carry the same heterozygous genotype at every marker
// (an "identical twin" scenario, spec §8), while every other sample
// alternates between 0/0 and 0/1 with the parity of sample+marker.
func identicalTwinCalls(nMarkers, nSamples int) ([][]GenotypeCall, []float64) {
	calls := make([][]GenotypeCall, nMarkers)
	genPos := make([]float64, nMarkers)
	for m := 0; m < nMarkers; m++ {
		genPos[m] = float64(m) * 0.03
		row := make([]GenotypeCall, nSamples)
		for s := 0; s < nSamples; s++ {
			switch {
			case s == 0 || s == 1:
				row[s] = GenotypeCall{A1: 0, A2: 1}
			default:
				row[s] = GenotypeCall{A1: 0, A2: (s + m) % 2}
			}
		}
		calls[m] = row
	}
	return calls, genPos
}

func (s *ibs2Suite) TestSymmetry(c *check.C) {
	calls, genPos := identicalTwinCalls(120, 8)
	st := DetectIBS2(calls, genPos, 8)
	for s1 := 0; s1 < 8; s1++ {
		for s2 := 0; s2 < 8; s2++ {
			c.Check(st.areIbs2At(s1, s2, 10), check.Equals, st.areIbs2At(s2, s1, 10))
		}
	}
}

func (s *ibs2Suite) TestIdenticalTwinsDetected(c *check.C) {
	calls, genPos := identicalTwinCalls(120, 8)
	st := DetectIBS2(calls, genPos, 8)
	c.Check(st.areIbs2At(0, 1, 60), check.Equals, true)
}

func (s *ibs2Suite) TestSelfAlwaysIbs2(c *check.C) {
	calls, genPos := identicalTwinCalls(60, 4)
	st := DetectIBS2(calls, genPos, 4)
	c.Check(st.areIbs2At(2, 2, 0), check.Equals, true)
	c.Check(st.areIbs2Range(2, 2, 0, 59), check.Equals, true)
}

func (s *ibs2Suite) TestNoDiagnosticMarkersYieldsEmptyStore(c *check.C) {
	nMarkers, nSamples := 10, 4
	calls := make([][]GenotypeCall, nMarkers)
	genPos := make([]float64, nMarkers)
	for m := range calls {
		genPos[m] = float64(m)
		row := make([]GenotypeCall, nSamples)
		for sp := range row {
			row[sp] = GenotypeCall{A1: 0, A2: 0} // monomorphic: MAF 0
		}
		calls[m] = row
	}
	st := DetectIBS2(calls, genPos, nSamples)
	c.Check(st.areIbs2At(0, 1, 5), check.Equals, false)
}
