// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "sort"

// diagnosticWindowSize is the minimum number of diagnostic markers
// grouped into one IBS detection window (spec §4.C step 1).
const diagnosticWindowSize = 50

// diagnosticMinSpacingCM is the minimum genetic-map spacing required
// between consecutive diagnostic markers.
const diagnosticMinSpacingCM = 0.02

// diagnosticMinMAF and diagnosticMaxMissing are the per-marker
// eligibility thresholds for diagnostic markers.
const (
	diagnosticMinMAF     = 0.1
	diagnosticMaxMissing = 0.1
)

// ibs2MergeGapCM is the gap within which adjacent per-pair segments
// are merged, and ibs2MinSpanCM is the minimum span a merged segment
// must reach to survive (spec §4.C step 3).
const (
	ibs2MergeGapCM = 4.0
	ibs2MinSpanCM  = 2.0
)

// IBS2Segment is an inclusive marker interval over which a sample
// pair is diploid-IBS2 (spec §3, "IBS2 segment").
type IBS2Segment struct {
	Start, End int
}

// IBS2Store holds, per unordered sample pair, a sorted disjoint list
// of IBS2 segments. Built once per window and read-only thereafter;
// queries are a linear scan over the (expected few) segments for a
// pair, per spec §4.C.
type IBS2Store struct {
	nSamples int
	segs     map[int64][]IBS2Segment
}

func pairKey(s1, s2 int) int64 {
	if s1 > s2 {
		s1, s2 = s2, s1
	}
	return int64(s1)<<32 | int64(uint32(s2))
}

// areIbs2At reports whether s1 and s2 have an IBS2 segment covering
// marker m.
func (st *IBS2Store) areIbs2At(s1, s2, m int) bool {
	if s1 == s2 {
		return true
	}
	for _, seg := range st.segs[pairKey(s1, s2)] {
		if m >= seg.Start && m <= seg.End {
			return true
		}
	}
	return false
}

// areIbs2Range reports whether s1 and s2 have a single IBS2 segment
// covering the entire inclusive range [startM,endM].
func (st *IBS2Store) areIbs2Range(s1, s2, startM, endM int) bool {
	if s1 == s2 {
		return true
	}
	for _, seg := range st.segs[pairKey(s1, s2)] {
		if seg.Start <= startM && seg.End >= endM {
			return true
		}
	}
	return false
}

// ibs2Input is the per-marker, per-sample diploid call used for IBS2
// detection, supplied independently of the packed haplotype store
// since missingness and allele frequency are input-side concepts
// (spec §3: -1 denotes missing "at input").
type ibs2Input struct {
	calls    [][]GenotypeCall // calls[m][s]
	genPos   []float64
	alleles  []int // Alleles per marker, for MAF denominator sanity
	nSamples int
}

func (in *ibs2Input) nMarkers() int { return len(in.calls) }

// markerStats returns the minor-allele frequency and missing rate at
// marker m across all samples' two alleles.
func (in *ibs2Input) markerStats(m int) (maf, missingRate float64) {
	counts := map[int]int{}
	total := 0
	missing := 0
	row := in.calls[m]
	for _, g := range row {
		for _, a := range [2]int{g.A1, g.A2} {
			if a == MissingAllele {
				missing++
				continue
			}
			counts[a]++
			total++
		}
	}
	n := 2 * len(row)
	if n == 0 {
		return 0, 1
	}
	missingRate = float64(missing) / float64(n)
	if total == 0 {
		return 0, missingRate
	}
	major := 0
	for _, ct := range counts {
		if ct > major {
			major = ct
		}
	}
	minor := total - major
	maf = float64(minor) / float64(total)
	return maf, missingRate
}

// selectDiagnosticMarkers returns marker indices eligible as
// diagnostic markers, in increasing order (spec §4.C step 1).
func selectDiagnosticMarkers(in *ibs2Input) []int {
	var picked []int
	lastCM := negInf
	for m := 0; m < in.nMarkers(); m++ {
		maf, missRate := in.markerStats(m)
		if maf < diagnosticMinMAF || missRate > diagnosticMaxMissing {
			continue
		}
		if lastCM != negInf && in.genPos[m]-lastCM < diagnosticMinSpacingCM {
			continue
		}
		picked = append(picked, m)
		lastCM = in.genPos[m]
	}
	return picked
}

const negInf = -1e18

func canonicalPair(g GenotypeCall) (int, int, bool) {
	if g.A1 == MissingAllele || g.A2 == MissingAllele {
		return 0, 0, false
	}
	a, b := g.A1, g.A2
	if a > b {
		a, b = b, a
	}
	return a, b, true
}

// ibs2group is a set of samples sharing identical joint genotypes
// across every diagnostic marker processed so far in a window.
type ibs2group struct {
	members     []int
	allHomozyg  bool
	anyMarkers  bool
}

// detectIBS2Windows runs step 2 of spec §4.C over every diagnostic
// window and returns, for each discovered cluster, the sample set
// plus the window's first/last original marker index.
func detectIBS2Windows(in *ibs2Input, diag []int) []struct {
	samples    []int
	start, end int
} {
	var out []struct {
		samples    []int
		start, end int
	}
	for w := 0; w < len(diag); w += diagnosticWindowSize {
		hi := w + diagnosticWindowSize
		if hi > len(diag) {
			hi = len(diag)
		}
		win := diag[w:hi]
		groups := []*ibs2group{{members: rangeInts(in.nSamples), allHomozyg: true}}
		present := make([]bool, in.nSamples)
		for i := range present {
			present[i] = true
		}
		for _, m := range win {
			var next []*ibs2group
			for _, g := range groups {
				byKey := map[[2]int][]int{}
				for _, s := range g.members {
					if !present[s] {
						continue
					}
					a, b, ok := canonicalPair(in.calls[m][s])
					if !ok {
						present[s] = false
						continue
					}
					key := [2]int{a, b}
					byKey[key] = append(byKey[key], s)
				}
				for key, members := range byKey {
					if len(members) == 0 {
						continue
					}
					next = append(next, &ibs2group{
						members:    members,
						allHomozyg: g.allHomozyg && key[0] == key[1],
						anyMarkers: true,
					})
				}
			}
			groups = next
		}
		startM, endM := win[0], win[len(win)-1]
		for _, g := range groups {
			if len(g.members) > 1 && g.anyMarkers && !g.allHomozyg {
				samples := append([]int(nil), g.members...)
				sort.Ints(samples)
				out = append(out, struct {
					samples    []int
					start, end int
				}{samples, startM, endM})
			}
		}
	}
	return out
}

func rangeInts(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// DetectIBS2 builds the IBS2Store for a window (spec §4.C).
func DetectIBS2(calls [][]GenotypeCall, genPos []float64, nSamples int) *IBS2Store {
	in := &ibs2Input{calls: calls, genPos: genPos, nSamples: nSamples}
	diag := selectDiagnosticMarkers(in)
	st := &IBS2Store{nSamples: nSamples, segs: map[int64][]IBS2Segment{}}
	if len(diag) == 0 {
		return st
	}
	clusters := detectIBS2Windows(in, diag)
	for _, cl := range clusters {
		for i := 0; i < len(cl.samples); i++ {
			for j := i + 1; j < len(cl.samples); j++ {
				k := pairKey(cl.samples[i], cl.samples[j])
				st.segs[k] = append(st.segs[k], IBS2Segment{Start: cl.start, End: cl.end})
			}
		}
	}
	for k, segs := range st.segs {
		st.segs[k] = mergeAndFilterSegments(segs, genPos)
	}
	return st
}

// mergeAndFilterSegments merges segments within ibs2MergeGapCM cM of
// each other, then discards any whose genetic span is below
// ibs2MinSpanCM (spec §4.C step 3). Segments are not extended across
// homozygous-compatible sites, here or by DetectIBS2, so no re-merge
// follows the merge above.
func mergeAndFilterSegments(segs []IBS2Segment, genPos []float64) []IBS2Segment {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	var merged []IBS2Segment
	for _, s := range segs {
		if len(merged) == 0 {
			merged = append(merged, s)
			continue
		}
		last := &merged[len(merged)-1]
		gap := genPos[s.Start] - genPos[last.End]
		if s.Start <= last.End || gap <= ibs2MergeGapCM {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	var kept []IBS2Segment
	for _, s := range merged {
		if genPos[s.End]-genPos[s.Start] >= ibs2MinSpanCM {
			kept = append(kept, s)
		}
	}
	return kept
}
