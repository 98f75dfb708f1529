// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "golang.org/x/exp/rand"

// PBWTDirection selects which way a window's steps are traversed
// when building the positional BWT (spec §4.D).
type PBWTDirection int

const (
	Forward PBWTDirection = iota
	Reverse
)

// PBWTState is the per-window PBWT state (a,d) at some step boundary:
// a is the permutation of haplotypes by positional-reverse lexicographic
// prefix, d is the divergence array (spec §4.D).
type PBWTState struct {
	a []int32
	d []int32
}

// NewPBWTState returns the identity-permutation starting state for
// nHaps haplotypes.
func NewPBWTState(nHaps int) *PBWTState {
	a := make([]int32, nHaps)
	d := make([]int32, nHaps+1)
	for i := range a {
		a[i] = int32(i)
	}
	return &PBWTState{a: a, d: d}
}

// positionOf returns the index i such that a[i]==hap.
func (s *PBWTState) positionOf(hap int) int {
	for i, h := range s.a {
		if int(h) == hap {
			return i
		}
	}
	return -1
}

// Update advances the PBWT state by one step, given the step's dense
// per-haplotype symbol assignment (hapToSeq) and alphabet size
// (valueSize). stepIndex is the current step's ordinal along the
// traversal direction, used as the divergence sentinel value. Update
// is O(nHaps) (spec §4.D).
func (s *PBWTState) Update(hapToSeq []int32, valueSize int, stepIndex int) {
	n := len(s.a)
	buckets := make([][]int32, valueSize)
	bucketDiv := make([][]int32, valueSize)
	// maxDiv[v] is the largest divergence value seen since the last
	// haplotype appended to bucket v (stepIndex+1, "no shared match",
	// before bucket v has any member); the next haplotype appended to
	// bucket v takes it as its new divergence (Durbin 2014's
	// algorithm 2).
	maxDiv := make([]int32, valueSize)
	for v := range maxDiv {
		maxDiv[v] = int32(stepIndex + 1)
	}
	for i := 0; i < n; i++ {
		hap := s.a[i]
		div := s.d[i]
		sym := hapToSeq[hap]
		for v := range maxDiv {
			if v != int(sym) && div > maxDiv[v] {
				maxDiv[v] = div
			}
		}
		myDiv := maxDiv[sym]
		if div > myDiv {
			myDiv = div
		}
		buckets[sym] = append(buckets[sym], hap)
		bucketDiv[sym] = append(bucketDiv[sym], myDiv)
		maxDiv[sym] = 0
	}
	idx := 0
	for v := 0; v < valueSize; v++ {
		for j, hap := range buckets[v] {
			s.a[idx] = hap
			if j == 0 {
				s.d[idx] = int32(stepIndex + 1)
			} else {
				s.d[idx] = bucketDiv[v][j]
			}
			idx++
		}
	}
	s.d[0] = int32(stepIndex + 1)
	s.d[n] = int32(stepIndex + 1)
}

// Candidates selects, for target haplotype h, up to cap symmetric
// PBWT neighbors whose sample is not IBS2 with h's sample over
// [stepStart,stepEnd] (spec §4.D, "Candidate selection"). Returns nil
// if no eligible neighbor exists.
func (s *PBWTState) Candidates(h int, capN int, stepStart, stepEnd int, ibs2 *IBS2Store, sampleOf func(hap int) int, rng *rand.Rand) []int {
	i := s.positionOf(h)
	if i < 0 {
		return nil
	}
	n := len(s.a)
	u, v := i, i+1
	hSample := sampleOf(h)
	var eligible []int
	for v-u < capN && (u > 0 || v < n) {
		expandLeft := false
		if u == 0 {
			expandLeft = false
		} else if v == n {
			expandLeft = true
		} else if s.d[u] > s.d[v] {
			expandLeft = true
		} else {
			expandLeft = false
		}
		if expandLeft {
			u--
		} else {
			v++
		}
	}
	for k := u; k < v; k++ {
		hap := int(s.a[k])
		if hap == h {
			continue
		}
		other := sampleOf(hap)
		if ibs2 != nil && ibs2.areIbs2Range(hSample, other, stepStart, stepEnd) {
			continue
		}
		eligible = append(eligible, hap)
	}
	return eligible
}

// PickCandidate uniformly selects one of the eligible candidates
// returned by Candidates, or -1 if none are eligible (spec §4.D).
func PickCandidate(eligible []int, rng *rand.Rand) int {
	if len(eligible) == 0 {
		return -1
	}
	return eligible[rng.Intn(len(eligible))]
}

// divergenceBetween returns the largest d[] value strictly between
// positions lo and hi (exclusive of the lower bound), the step at
// which the PBWT run spanning [lo,hi] last disagreed. A smaller value
// means a longer shared match between the two positions.
func (s *PBWTState) divergenceBetween(lo, hi int) int32 {
	if lo > hi {
		lo, hi = hi, lo
	}
	var maxD int32 = -1
	for k := lo + 1; k <= hi; k++ {
		if s.d[k] > maxD {
			maxD = s.d[k]
		}
	}
	return maxD
}

// RareCarrierGroup is the set of haplotypes that co-carry a single
// rare allele at one marker within a step's span (spec §4.D,
// "Low-frequency-aware variant").
type RareCarrierGroup struct {
	Marker int
	Allele int
	Haps   []int32
}

// LowFreqCandidates implements the stage-2 low-frequency-aware
// candidate selector (spec §4.D): among the haplotypes that co-carry a
// rare variant with h within this step, find the nearest prior and
// next neighbor in PBWT order that is not IBS2-masked with h's sample,
// within maxBackoff positions, and return whichever extends the match
// farther. Returns nil if h carries no rare variant in this step, or
// neither neighbor is eligible within the backoff bound — signalling
// the caller to fall back to the symmetric expansion (Candidates).
func (s *PBWTState) LowFreqCandidates(h int, groups []RareCarrierGroup, maxBackoff int, stepStart, stepEnd int, ibs2 *IBS2Store, sampleOf func(int) int) []int {
	i := s.positionOf(h)
	if i < 0 {
		return nil
	}
	var members []int32
	for _, g := range groups {
		for _, m := range g.Haps {
			if int(m) == h {
				members = g.Haps
				break
			}
		}
		if members != nil {
			break
		}
	}
	if len(members) < 2 {
		return nil
	}
	hSample := sampleOf(h)
	eligible := func(hap int) bool {
		if hap < 0 || hap == h {
			return false
		}
		other := sampleOf(hap)
		return ibs2 == nil || !ibs2.areIbs2Range(hSample, other, stepStart, stepEnd)
	}
	priorHap, priorPos := -1, -1
	nextHap, nextPos := -1, -1
	for _, m := range members {
		hap := int(m)
		if !eligible(hap) {
			continue
		}
		pos := s.positionOf(hap)
		if pos < 0 {
			continue
		}
		if pos < i && i-pos <= maxBackoff {
			if priorPos < 0 || pos > priorPos {
				priorHap, priorPos = hap, pos
			}
		} else if pos > i && pos-i <= maxBackoff {
			if nextPos < 0 || pos < nextPos {
				nextHap, nextPos = hap, pos
			}
		}
	}
	switch {
	case priorHap >= 0 && nextHap >= 0:
		if s.divergenceBetween(priorPos, i) <= s.divergenceBetween(i, nextPos) {
			return []int{priorHap}
		}
		return []int{nextHap}
	case priorHap >= 0:
		return []int{priorHap}
	case nextHap >= 0:
		return []int{nextHap}
	default:
		return nil
	}
}

// RunPBWT builds the sequence of PBWT states across a window's steps
// in the given direction, returning one state per step boundary
// (state[t] is the permutation after processing step t). coded is
// indexed by step in forward order regardless of traversal direction.
func RunPBWT(coded []CodedStep, nHaps int, dir PBWTDirection) []*PBWTState {
	n := len(coded)
	states := make([]*PBWTState, n)
	cur := NewPBWTState(nHaps)
	if dir == Forward {
		for t := 0; t < n; t++ {
			cur.Update(coded[t].HapToSeq, coded[t].ValueSize, t)
			snap := &PBWTState{a: append([]int32(nil), cur.a...), d: append([]int32(nil), cur.d...)}
			states[t] = snap
		}
	} else {
		for t := n - 1; t >= 0; t-- {
			cur.Update(coded[t].HapToSeq, coded[t].ValueSize, n-1-t)
			snap := &PBWTState{a: append([]int32(nil), cur.a...), d: append([]int32(nil), cur.d...)}
			states[t] = snap
		}
	}
	return states
}
