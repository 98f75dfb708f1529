// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"math"

	"golang.org/x/exp/rand"
)

// CompositeSegment is one (start,end) marker range of a composite
// reference haplotype, attributed to a single real haplotype id
// (spec §3, "Composite reference haplotype").
type CompositeSegment struct {
	Start, End int // [Start,End) marker coordinates
	Anchor     int
}

// Composite is a sequence of segments covering every marker of the
// window, realized lazily (spec §4.E, "Realized composite").
type Composite struct {
	Segments []CompositeSegment
}

// Allele returns the allele composite would contribute at marker m,
// by locating the covering segment's anchor haplotype.
func (comp *Composite) Allele(store *HaplotypeStore, m int) int {
	for _, seg := range comp.Segments {
		if m >= seg.Start && m < seg.End {
			return store.Allele(seg.Anchor, m)
		}
	}
	panic(contractViolation("Composite.Allele", "marker %d not covered by any segment", m))
}

// minSteps is the eviction threshold from spec §4.E:
// max(200, ceil(1/stepSize_cM)).
func minSteps(stepSizeCM float64) int {
	v := 200
	alt := int(math.Ceil(1 / stepSizeCM))
	if alt > v {
		v = alt
	}
	return v
}

// BuildComposites runs the greedy priority-queue assembly of up to K
// composite reference haplotypes for one target haplotype, given the
// per-step candidate list (candidates[t] is the set of candidate
// haplotype ids produced for this target at step t, possibly empty)
// and the step boundaries (spec §4.E).
func BuildComposites(target int, candidates [][]int, steps *Steps, K int, stepSizeCM float64, excludeSample int, nHapsTotal int, rng *rand.Rand) []*Composite {
	q := newRefQueue()
	byAnchor := map[int]*compositeRef{}
	minS := minSteps(stepSizeCM)

	for t := 0; t < len(candidates); t++ {
		for _, cand := range candidates[t] {
			if cand == target {
				continue
			}
			if r, ok := byAnchor[cand]; ok {
				q.touch(r, t)
				continue
			}
			if q.Len() < K {
				r := &compositeRef{anchor: cand, segStart: 0, lastStep: t}
				q.add(r)
				byAnchor[cand] = r
				continue
			}
			least := q.least()
			if t-least.lastStep >= minS {
				mid := steps.Start((least.lastStep + t) / 2)
				delete(byAnchor, least.anchor)
				least.closedSegs = append(least.closedSegs, CompositeSegment{Start: least.segStart, End: mid, Anchor: least.anchor})
				least.anchor = cand
				least.segStart = mid
				least.lastStep = t
				byAnchor[cand] = least
				q.touch(least, t)
			}
		}
	}

	lastMarker := 0
	if steps.Len() > 0 {
		lastMarker = steps.End(steps.Len() - 1)
	}
	refs := q.all()
	if len(refs) == 0 {
		return fallbackComposites(target, excludeSample, nHapsTotal, K, lastMarker, rng)
	}
	comps := make([]*Composite, 0, len(refs))
	for _, r := range refs {
		segs := append([]CompositeSegment(nil), r.closedSegs...)
		segs = append(segs, CompositeSegment{Start: r.segStart, End: lastMarker, Anchor: r.anchor})
		comps = append(comps, &Composite{Segments: segs})
	}
	return comps
}

// fallbackComposites fills K composites with random distinct
// haplotypes, excluding the target's own sample, when no candidates
// were produced for any step (spec §4.E).
func fallbackComposites(target, excludeSample, nHapsTotal, K, lastMarker int, rng *rand.Rand) []*Composite {
	var pool []int
	for h := 0; h < nHapsTotal; h++ {
		if h/2 == excludeSample {
			continue
		}
		pool = append(pool, h)
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if K > len(pool) {
		K = len(pool)
	}
	comps := make([]*Composite, K)
	for i := 0; i < K; i++ {
		comps[i] = &Composite{Segments: []CompositeSegment{{Start: 0, End: lastMarker, Anchor: pool[i]}}}
	}
	return comps
}
