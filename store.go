// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

const wordBits = 64

// HaplotypeStore is a bit-packed array of per-haplotype allele
// sequences (spec §4.A). Each haplotype occupies a fixed-stride run
// of uint64 words; allele m of haplotype h is stored little-endian at
// bit offset markers.SumHapBits(m) within haplotype h's run.
//
// A HaplotypeStore is immutable after the window's fixed data is
// built, except for the owning thread's writes to SamplePhase bits
// during phasing (spec §3, "Lifecycle").
type HaplotypeStore struct {
	markers *MarkerList
	nHaps   int
	stride  int // words per haplotype
	bits    []uint64
}

// NewHaplotypeStore allocates storage for nHaps haplotypes over the
// markers in ml, with every allele initialized to 0.
func NewHaplotypeStore(ml *MarkerList, nHaps int) *HaplotypeStore {
	// +1 word of padding so a field that straddles the final word
	// boundary never reads or writes past the end of the slice.
	stride := (ml.TotalBits()+wordBits-1)/wordBits + 1
	s := &HaplotypeStore{
		markers: ml,
		nHaps:   nHaps,
		stride:  stride,
		bits:    make([]uint64, nHaps*stride),
	}
	for h := 0; h < nHaps; h++ {
		for m := 0; m < ml.Len(); m++ {
			s.SetAllele(h, m, 0)
		}
	}
	return s
}

func (s *HaplotypeStore) checkHap(ctx string, hap int) {
	if hap < 0 || hap >= s.nHaps {
		panic(contractViolation(ctx, "haplotype index %d out of range [0,%d)", hap, s.nHaps))
	}
}

func (s *HaplotypeStore) checkMarker(ctx string, m int) {
	if m < 0 || m >= s.markers.Len() {
		panic(contractViolation(ctx, "marker index %d out of range [0,%d)", m, s.markers.Len()))
	}
}

// Allele extracts the allele index stored for (hap, m). Per spec §3
// the packed store only ever holds values in [0,A): missingness at
// input is tracked by the sample's GenotypeCluster typing (§4.B), not
// by a reserved bit pattern here, since a missing call is imputed to
// a concrete allele before the window's output is assembled.
func (s *HaplotypeStore) Allele(hap, m int) int {
	s.checkHap("HaplotypeStore.Allele", hap)
	s.checkMarker("HaplotypeStore.Allele", m)
	width := s.markers.BitWidth(m)
	off := s.markers.SumHapBits(m)
	return int(getBits(s.hapWords(hap), off, width))
}

// SetAllele writes allele a little-endian into the packed slot for
// (hap, m). a must satisfy 0 <= a < A_m.
func (s *HaplotypeStore) SetAllele(hap, m, a int) {
	s.checkHap("HaplotypeStore.SetAllele", hap)
	s.checkMarker("HaplotypeStore.SetAllele", m)
	if a < 0 || a >= s.markers.At(m).Alleles {
		panic(contractViolation("HaplotypeStore.SetAllele", "allele %d out of range [0,%d) at marker %d", a, s.markers.At(m).Alleles, m))
	}
	width := s.markers.BitWidth(m)
	off := s.markers.SumHapBits(m)
	setBits(s.hapWords(hap), off, width, uint64(a))
}

func (s *HaplotypeStore) hapWords(hap int) []uint64 {
	return s.bits[hap*s.stride : (hap+1)*s.stride]
}

// Hash returns a deterministic digest of the packed bit range
// [start,end) of haplotype hap, used as the step coder's intern key
// (spec §4.B).
func (s *HaplotypeStore) Hash(hap, start, end int) [blake2b.Size256]byte {
	s.checkHap("HaplotypeStore.Hash", hap)
	if start < 0 || end > s.markers.Len() || start > end {
		panic(contractViolation("HaplotypeStore.Hash", "range [%d,%d) invalid for %d markers", start, end, s.markers.Len()))
	}
	bitOff := s.markers.SumHapBits(start)
	nbits := s.markers.SumHapBits(end) - bitOff
	nwords := (nbits+wordBits-1)/wordBits + 1
	buf := make([]uint64, nwords)
	copyBits(buf, 0, s.hapWords(hap), bitOff, nbits)
	raw := make([]byte, nwords*8)
	for i, w := range buf {
		binary.LittleEndian.PutUint64(raw[i*8:], w)
	}
	return blake2b.Sum256(raw)
}

// CopyRange bulk-copies the allele calls of [startMarker,endMarker)
// from srcHap to dstHap.
func (s *HaplotypeStore) CopyRange(srcHap, dstHap, startMarker, endMarker int) {
	s.checkHap("HaplotypeStore.CopyRange", srcHap)
	s.checkHap("HaplotypeStore.CopyRange", dstHap)
	if startMarker < 0 || endMarker > s.markers.Len() || startMarker > endMarker {
		panic(contractViolation("HaplotypeStore.CopyRange", "range [%d,%d) invalid for %d markers", startMarker, endMarker, s.markers.Len()))
	}
	bitOff := s.markers.SumHapBits(startMarker)
	nbits := s.markers.SumHapBits(endMarker) - bitOff
	copyBits(s.hapWords(dstHap), bitOff, s.hapWords(srcHap), bitOff, nbits)
}

// NMarkers returns the number of markers backing this store.
func (s *HaplotypeStore) NMarkers() int { return s.markers.Len() }

// NHaps returns the number of haplotype slots.
func (s *HaplotypeStore) NHaps() int { return s.nHaps }

// getBits reads a little-endian field of width bits starting at bit
// offset off from words, where width <= 64.
func getBits(words []uint64, off, width int) uint64 {
	wordIdx := off / wordBits
	bitIdx := uint(off % wordBits)
	v := words[wordIdx] >> bitIdx
	if remaining := wordBits - int(bitIdx); remaining < width {
		v |= words[wordIdx+1] << uint(remaining)
	}
	if width < 64 {
		v &= uint64(1)<<uint(width) - 1
	}
	return v
}

// setBits writes the low width bits of value little-endian at bit
// offset off within words.
func setBits(words []uint64, off, width int, value uint64) {
	wordIdx := off / wordBits
	bitIdx := uint(off % wordBits)
	var mask uint64
	if width < 64 {
		mask = uint64(1)<<uint(width) - 1
	} else {
		mask = ^uint64(0)
	}
	value &= mask
	words[wordIdx] = (words[wordIdx] &^ (mask << bitIdx)) | (value << bitIdx)
	if remaining := wordBits - int(bitIdx); remaining < width {
		hiMask := mask >> uint(remaining)
		words[wordIdx+1] = (words[wordIdx+1] &^ hiMask) | (value >> uint(remaining))
	}
}

// copyBits copies nbits bits from src (starting at bit srcOff) to dst
// (starting at bit dstOff), 32 bits at a time so the shift arithmetic
// in getBits/setBits stays within a single word pair on each side.
func copyBits(dst []uint64, dstOff int, src []uint64, srcOff int, nbits int) {
	const chunk = 32
	for done := 0; done < nbits; done += chunk {
		n := chunk
		if nbits-done < n {
			n = nbits - done
		}
		v := getBits(src, srcOff+done, n)
		setBits(dst, dstOff+done, n, v)
	}
}
