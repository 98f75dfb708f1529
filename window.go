// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "sync"

// Window is one unit of work handed to the core by the I/O subsystem
// (spec §6, "Input to the core"). The core never parses VCF/BCF/bref3
// itself; it consumes an already-decoded Window.
type Window struct {
	Markers []Marker
	Samples []Sample

	// Calls[m][s] is sample s's diploid call at marker m, target
	// genotypes (possibly unphased, possibly missing).
	Calls [][]GenotypeCall

	// RefCalls[m][r] is an optional reference panel's phased, complete
	// call at marker m for reference haplotype-pair r. len(RefCalls)
	// is 0 when no reference panel is supplied.
	RefCalls [][]GenotypeCall

	// GenPos[m] is the genetic position of marker m in cM, as given by
	// the genetic map (GeneticMap.Pos below).
	GenPos []float64

	// OverlapMarkers is the number of leading markers already phased
	// by the previous window; their calls arrive with Phased=true.
	OverlapMarkers int
}

// GeneticMap converts chromosome/base-pair coordinates to genetic
// position and back (spec §6). Implemented by the I/O subsystem; the
// core calls neither method and reads Window.GenPos instead.
type GeneticMap interface {
	Pos(chrom int32, basePos int64) float64
	Inverse(chrom int32, cm float64) int64
}

// Pedigree supplies each sample's ploidy (spec §6). The core does not
// call it; packing takes each call's A1/A2 as given.
type Pedigree interface {
	Ploidy(sampleID string) int
}

// PhasedRecord is one marker's row-major phased output: for every
// haplotype, the realized allele (spec §4.J, §6 "Output from the
// core"). Immutable and safe for concurrent reads once returned.
type PhasedRecord struct {
	Marker  Marker
	Alleles []int // Alleles[2*s] / Alleles[2*s+1] for target sample s; reference haplotypes, if any, follow
}

// rareCarrierList is one (marker,allele) pair's carrier list, guarded
// by its own mutex so concurrent updates to different pairs never
// contend (spec §5, "Rare-allele carrier lists are individually
// mutex-guarded").
type rareCarrierList struct {
	mu   sync.Mutex
	haps []int32
}

// RareAlleleIndex sparsely records, per (marker,allele) pair below the
// rare-variant threshold, the list of carrier haplotype ids (spec
// §4.J, §6).
type RareAlleleIndex struct {
	lists sync.Map // rareKey -> *rareCarrierList
}

type rareKey struct {
	Marker, Allele int
}

// NewRareAlleleIndex returns an empty index.
func NewRareAlleleIndex() *RareAlleleIndex {
	return &RareAlleleIndex{}
}

// AddCarrier records hap as a carrier of allele at marker.
func (idx *RareAlleleIndex) AddCarrier(marker, allele int, hap int32) {
	k := rareKey{marker, allele}
	v, _ := idx.lists.LoadOrStore(k, &rareCarrierList{})
	l := v.(*rareCarrierList)
	l.mu.Lock()
	l.haps = append(l.haps, hap)
	l.mu.Unlock()
}

// Carriers returns the carrier list for (marker,allele), or nil.
func (idx *RareAlleleIndex) Carriers(marker, allele int) []int32 {
	v, ok := idx.lists.Load(rareKey{marker, allele})
	if !ok {
		return nil
	}
	l := v.(*rareCarrierList)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int32(nil), l.haps...)
}
