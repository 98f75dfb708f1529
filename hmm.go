// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// HMMParams holds the Li-Stephens model's two free parameters: the
// recombination intensity r and the allele-mismatch probability mu
// (spec §4.F).
type HMMParams struct {
	R  float64
	Mu float64
}

// clustEm returns the cluster-level emission-mismatch probability
// used for a homozygous cluster spanning L>1 markers, approximating
// the joint emission of the whole cluster (spec §4.F).
func clustEm(mu float64, l int) float64 {
	if l <= 1 {
		return mu
	}
	v := float64(l) * mu
	if v > 0.5 {
		v = 0.5
	}
	return v
}

// track is one forward/backward scan run per sample during phasing
// (spec §4.F): stage 1 runs two tracks, one for each of the sample's
// haplotypes. No track over an imaginary homozygous haplotype (the
// "track 0" of the three-track variant) is run.
type track struct {
	fwd     [][]float64 // fwd[c][k], one row per cluster
	bwd     [][]float64
	fwdSum  []float64
	bwdSum  []float64
}

func newTrack(nClusters, k int) *track {
	t := &track{
		fwd:    make([][]float64, nClusters),
		bwd:    make([][]float64, nClusters),
		fwdSum: make([]float64, nClusters),
		bwdSum: make([]float64, nClusters),
	}
	for c := 0; c < nClusters; c++ {
		t.fwd[c] = make([]float64, k)
		t.bwd[c] = make([]float64, k)
	}
	return t
}

// stepForward applies one forward update at cluster c given the
// previous cluster's (rescaled) forward row, the jump probability p,
// and per-state emission probabilities em (spec §4.F recursion):
//
//	fwd[k] <- em(k) * (fwd[k]*(1-p)/lastSum + p/K); newSum = sum(fwd)
func stepForward(prev []float64, lastSum, p float64, em []float64) (row []float64, sum float64) {
	k := len(prev)
	row = make([]float64, k)
	uniform := p / float64(k)
	for i := 0; i < k; i++ {
		row[i] = em[i] * (prev[i]*(1-p)/lastSum + uniform)
	}
	sum = floats.Sum(row)
	if sum > 0 {
		floats.Scale(1/sum, row)
		sum = 1
	}
	return row, sum
}

// stepBackward applies one backward update symmetric to stepForward:
// it first mixes in emission probabilities at the NEXT cluster, then
// rescales and blends with the uniform jump term (spec §4.F).
func stepBackward(next []float64, nextSum, p float64, emNext []float64) (row []float64, sum float64) {
	k := len(next)
	mixed := make([]float64, k)
	for i := 0; i < k; i++ {
		mixed[i] = next[i] * emNext[i]
	}
	mSum := floats.Sum(mixed)
	if mSum == 0 {
		mSum = 1
	}
	uniform := p / float64(k)
	row = make([]float64, k)
	for i := 0; i < k; i++ {
		row[i] = mixed[i]*(1-p)/mSum + uniform
	}
	sum = floats.Sum(row)
	if sum > 0 {
		floats.Scale(1/sum, row)
	}
	return row, sum
}

// jumpProb returns p_t = 1 - exp(-r*d_t) for genetic distance d_t.
func jumpProb(r, d float64) float64 {
	return 1 - math.Exp(-r*d)
}

// emissionRow computes, for every state k, the emission probability
// of observing allele `obs` given state k realizes allele stateAllele(k),
// at the cluster's mismatch level (mu for singleton clusters, clustEm
// for coalesced homozygous runs).
func emissionRow(k int, stateAllele func(int) int, obs int, mu float64, clusterLen int) []float64 {
	row := make([]float64, k)
	if obs == MissingAllele {
		for i := range row {
			row[i] = 1
		}
		return row
	}
	mismatch := clustEm(mu, clusterLen)
	match := 1 - mismatch
	for i := 0; i < k; i++ {
		if stateAllele(i) == obs {
			row[i] = match
		} else {
			row[i] = mismatch
		}
	}
	return row
}

// ForwardBackward runs a single track's scaled forward and backward
// recursions over a sample's full cluster sequence against a composite
// state panel (spec §4.F). genPos[cl.Start] gives each cluster's
// genetic position; stateAllele(ci,i) and observed(ci) feed emissionRow.
// Used directly by stage 2 (§4.I), where each haplotype gets its own
// composite layout and runs independently rather than sharing one
// three-track scan.
func ForwardBackward(sc *SampleClusters, genPos []float64, stateAllele func(ci, i int) int, observed func(ci int) int, mu, r float64, nStates int) (*track, *track) {
	n := sc.Len()
	fwd := newTrack(n, nStates)
	for ci := 0; ci < n; ci++ {
		cl := sc.At(ci)
		sAllele := func(i int) int { return stateAllele(ci, i) }
		em := emissionRow(nStates, sAllele, observed(ci), mu, int(cl.Size))
		if ci == 0 {
			fwd.fwd[0] = uniformRow(nStates)
			fwd.fwdSum[0] = 1
			for i := 0; i < nStates; i++ {
				fwd.fwd[0][i] *= em[i]
			}
			if sum := floats.Sum(fwd.fwd[0]); sum > 0 {
				floats.Scale(1/sum, fwd.fwd[0])
			}
			continue
		}
		d := genPos[cl.Start] - genPos[sc.At(ci-1).Start]
		p := jumpProb(r, d)
		fwd.fwd[ci], fwd.fwdSum[ci] = stepForward(fwd.fwd[ci-1], fwd.fwdSum[ci-1], p, em)
	}

	bwd := newTrack(n, nStates)
	for ci := n - 1; ci >= 0; ci-- {
		if ci == n-1 {
			bwd.bwd[ci] = uniformRow(nStates)
			bwd.bwdSum[ci] = 1
			continue
		}
		cl := sc.At(ci + 1)
		sAllele := func(i int) int { return stateAllele(ci+1, i) }
		em := emissionRow(nStates, sAllele, observed(ci+1), mu, int(cl.Size))
		d := genPos[cl.Start] - genPos[sc.At(ci).Start]
		p := jumpProb(r, d)
		bwd.bwd[ci], bwd.bwdSum[ci] = stepBackward(bwd.bwd[ci+1], bwd.bwdSum[ci+1], p, em)
	}
	return fwd, bwd
}

// PhaseDecision is the outcome of the two-track flip test at one
// unphased-heterozygote cluster (spec §4.F).
type PhaseDecision struct {
	Swap      bool
	LikelihoodRatio float64
}

// decideSwap computes p11,p12,p21,p22 from tracks 1 and 2's cached
// forward/backward rows at cluster c and returns whether to swap the
// two haplotypes' phase from this cluster forward, along with the
// winning/losing likelihood ratio (spec §4.F).
func decideSwap(fwd1, fwd2, bwd1, bwd2 []float64) PhaseDecision {
	var p11, p12, p21, p22 float64
	for i := range fwd1 {
		p11 += fwd1[i] * bwd1[i]
		p12 += fwd1[i] * bwd2[i]
		p21 += fwd2[i] * bwd1[i]
		p22 += fwd2[i] * bwd2[i]
	}
	noSwitch := p11 * p22
	swtch := p12 * p21
	swap := swtch > noSwitch
	lo, hi := swtch, noSwitch
	if swap {
		lo, hi = noSwitch, swtch
	}
	ratio := math.Inf(1)
	if lo > 0 {
		ratio = hi / lo
	}
	return PhaseDecision{Swap: swap, LikelihoodRatio: ratio}
}

// imputeAllele chooses the most probable allele for a missing or
// masked cluster from a track's forward*backward marginal posterior
// over states, mapped through stateAllele (spec §4.F, final
// sentence).
func imputeAllele(fwd, bwd []float64, stateAllele func(int) int, nAlleles int) int {
	post := make([]float64, nAlleles)
	for i := range fwd {
		post[stateAllele(i)] += fwd[i] * bwd[i]
	}
	best, bestP := 0, -1.0
	for a, p := range post {
		if p > bestP {
			best, bestP = a, p
		}
	}
	return best
}
