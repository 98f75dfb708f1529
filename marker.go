// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "math/bits"

// MissingAllele is the sentinel allele index used for unobserved
// genotype calls (spec §3, "Marker").
const MissingAllele = -1

// Marker identifies a single genomic position and its allele count.
type Marker struct {
	Chrom   int32
	Pos     int64
	Alleles int // A >= 1
}

// bitWidth returns b = ceil(log2(A)), with a floor of 1 bit even for
// monomorphic (A==1) markers, per spec §3.
func (m Marker) bitWidth() int {
	if m.Alleles <= 1 {
		return 1
	}
	return bits.Len(uint(m.Alleles - 1))
}

// MarkerList is an ordered, chrom-then-position list of markers with
// an O(1) prefix-sum query for packed-bit indexing (spec §3, "Marker
// list").
type MarkerList struct {
	markers    []Marker
	prefixBits []int // len == len(markers)+1; prefixBits[i] == sumHapBits(i)
}

// NewMarkerList validates that markers is strictly increasing by
// (chrom, pos) and that every allele count is >= 1, then builds the
// prefix-sum table. A malformed list is a WindowError: it is an
// input-data inconsistency discoverable only once the caller's
// markers are in hand, not a programmer-contract violation.
func NewMarkerList(markers []Marker) (*MarkerList, error) {
	if len(markers) == 0 {
		return nil, windowError("empty marker list")
	}
	prefix := make([]int, len(markers)+1)
	for i, mk := range markers {
		if mk.Alleles < 1 {
			return nil, windowError("marker %d: Alleles %d < 1", i, mk.Alleles)
		}
		if i > 0 {
			prev := markers[i-1]
			if mk.Chrom < prev.Chrom || (mk.Chrom == prev.Chrom && mk.Pos <= prev.Pos) {
				return nil, windowError("marker %d (chrom=%d,pos=%d) does not strictly follow marker %d (chrom=%d,pos=%d)",
					i, mk.Chrom, mk.Pos, i-1, prev.Chrom, prev.Pos)
			}
		}
		prefix[i+1] = prefix[i] + mk.bitWidth()
	}
	return &MarkerList{markers: append([]Marker(nil), markers...), prefixBits: prefix}, nil
}

// Len returns the number of markers.
func (ml *MarkerList) Len() int { return len(ml.markers) }

// At returns the marker at index i.
func (ml *MarkerList) At(i int) Marker { return ml.markers[i] }

// SumHapBits returns the packed-bit offset of marker m, i.e.
// sum of bit widths of markers [0,m). SumHapBits(Len()) is the total
// number of packed bits per haplotype.
func (ml *MarkerList) SumHapBits(m int) int {
	return ml.prefixBits[m]
}

// BitWidth returns the number of bits used to pack alleles at marker m.
func (ml *MarkerList) BitWidth(m int) int {
	return ml.markers[m].bitWidth()
}

// TotalBits returns the packed length, in bits, of one haplotype's
// allele sequence.
func (ml *MarkerList) TotalBits() int {
	return ml.prefixBits[len(ml.prefixBits)-1]
}

// Sample identifies one individual in the cohort. Ploidy is 1 or 2;
// every sample, haploid or not, occupies two haplotype slots. The core
// does not read Ploidy: the two slots hold the call's A1 and A2 as
// given, with no haploid normalization (supplemented feature, see
// SPEC_FULL.md).
type Sample struct {
	ID     string
	Ploidy int
}

// Haplotypes returns the pair of haplotype indices belonging to
// sample s (spec §3, "Haplotype").
func Haplotypes(s int) (h0, h1 int) {
	return 2 * s, 2*s + 1
}
