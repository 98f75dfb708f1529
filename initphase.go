// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// initPhaseOverlapCM is the fixed overlap between consecutive
// sub-windows used by the greedy initial phaser (spec §4.G).
const initPhaseOverlapCM = 0.5

// subWindowWidthCM returns the sub-window width used to partition a
// window for the initial phaser: max(4*overlap, totalCM/nThreads)
// (spec §4.G).
func subWindowWidthCM(totalCM float64, nThreads int, overlap float64) float64 {
	w := 4 * overlap
	if nThreads > 0 {
		if alt := totalCM / float64(nThreads); alt > w {
			w = alt
		}
	}
	return w
}

// subWindow is a contiguous marker range of the window used by the
// initial phaser, with its preceding overlap region marked.
type subWindow struct {
	Start, End     int // [Start,End) marker coordinates
	OverlapEnd     int // markers [Start,OverlapEnd) are shared with the previous sub-window
}

// PartitionSubWindows tiles [0,nMarkers) into overlapping cM-sized
// sub-windows (spec §4.G).
func PartitionSubWindows(genPos []float64, widthCM float64) []subWindow {
	n := len(genPos)
	if n == 0 {
		return nil
	}
	var wins []subWindow
	start := 0
	for start < n {
		end := start
		for end < n && genPos[end]-genPos[start] < widthCM {
			end++
		}
		if end <= start {
			end = start + 1
		}
		overlapEnd := start
		if len(wins) > 0 {
			for overlapEnd < end && genPos[overlapEnd]-genPos[start] < initPhaseOverlapCM {
				overlapEnd++
			}
		}
		wins = append(wins, subWindow{Start: start, End: end, OverlapEnd: overlapEnd})
		if end >= n {
			break
		}
		// next sub-window begins initPhaseOverlapCM before this one ends,
		// but always at least one marker after this one's start
		back := end
		for back > start+1 && genPos[end-1]-genPos[back-1] < initPhaseOverlapCM {
			back--
		}
		start = back
	}
	return wins
}

// greedyPBWTPhase phases one sub-window's heterozygotes in one
// direction using a single-pass greedy PBWT match heuristic: at each
// heterozygote, the haplotype is assigned the allele that extends the
// longest current match against the rest of the panel, approximated
// here via the divergence array of a PBWT state built from a single
// update over the whole sub-window (spec §4.G).
func greedyPBWTPhase(store *HaplotypeStore, ml *MarkerList, sw subWindow, targetSample int, dir PBWTDirection, genPos []float64, rng *rand.Rand) {
	h0, h1 := 2*targetSample, 2*targetSample+1
	markers := sw.End - sw.Start
	if markers <= 0 {
		return
	}
	steps := &Steps{steps: []Step{{Start: sw.Start, End: sw.End}}}
	coded := CodeSteps(store, steps, 1)
	state := NewPBWTState(store.NHaps())
	state.Update(coded[0].HapToSeq, coded[0].ValueSize, 0)

	order := make([]int, markers)
	for i := range order {
		if dir == Forward {
			order[i] = sw.Start + i
		} else {
			order[i] = sw.End - 1 - i
		}
	}
	for _, m := range order {
		a0, a1 := store.Allele(h0, m), store.Allele(h1, m)
		if a0 == a1 {
			continue
		}
		i0 := state.positionOf(h0)
		i1 := state.positionOf(h1)
		if i0 < 0 || i1 < 0 {
			continue
		}
		// If h1's divergence value is smaller than h0's (h1 has the
		// longer match to its PBWT neighbor), the two alleles at m are
		// exchanged; otherwise they are left as they are.
		d0, d1 := state.d[i0], state.d[i1]
		if d1 < d0 {
			store.SetAllele(h0, m, a1)
			store.SetAllele(h1, m, a0)
		}
	}
}

// ReconcileSubWindows scans the overlap region shared by prev and cur
// for its first heterozygote and stops there without changing the
// store: no haplotype labels are swapped, so the later sub-window
// keeps the orientation greedyPBWTPhase gave it (spec §4.G).
func ReconcileSubWindows(store *HaplotypeStore, sample int, prev, cur subWindow) {
	h0, h1 := 2*sample, 2*sample+1
	for m := cur.Start; m < cur.OverlapEnd && m < prev.End; m++ {
		a0, a1 := store.Allele(h0, m), store.Allele(h1, m)
		if a0 == a1 {
			continue
		}
		// the first het in the overlap ends the scan; both
		// haplotypes are left as they are.
		return
	}
}

// DrawMissingAllele samples a missing call from the marker's observed
// allele-count CDF (spec §4.G, "Missing alleles ... are drawn from
// the allele-count CDF").
func DrawMissingAllele(alleleCounts []int, rng *rand.Rand) int {
	total := 0
	for _, ct := range alleleCounts {
		total += ct
	}
	if total == 0 {
		return 0
	}
	weights := make([]float64, len(alleleCounts))
	for i, ct := range alleleCounts {
		weights[i] = float64(ct)
	}
	dist := distuv.NewCategorical(weights, rng)
	return int(dist.Rand())
}
