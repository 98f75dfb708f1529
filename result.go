// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

// resultTileSize is the number of markers handled per rotation task
// (spec §9 design notes, "Fixed tiles of ~4096 markers per task").
const resultTileSize = 4096

// rareCarrierCap bounds the rare-carrier threshold at a minimum of 3
// regardless of how small nSamples·rare rounds to (spec §6,
// "max 3..").
const rareCarrierCap = 3

// rareThreshold returns the maximum carrier count (inclusive) for an
// allele to be classified rare under Options.Rare (spec §6).
func rareThreshold(nSamples int, rare float64) int {
	t := int(float64(nSamples) * rare)
	if t < rareCarrierCap {
		t = rareCarrierCap
	}
	return t
}

// AssembleResult rotates the column-major (per-haplotype) phased
// store into row-major PhasedRecords, one per marker, tiling the
// rotation across nthreads workers (spec §4.J, §9). It also populates
// rare an RareAlleleIndex for alleles whose carrier count does not
// exceed rareThreshold(nSamples, rare); a single "major allele" is
// assumed for any allele exceeding the threshold.
func AssembleResult(store *HaplotypeStore, ml *MarkerList, markers []Marker, nthreads int, rare float64, rareIdx *RareAlleleIndex) []PhasedRecord {
	n := ml.Len()
	nHaps := store.NHaps()
	nSamples := nHaps / 2
	records := make([]PhasedRecord, n)
	threshold := rareThreshold(nSamples, rare)

	th := throttle{Max: nthreads}
	if th.Max < 1 {
		th.Max = 1
	}
	for tileStart := 0; tileStart < n; tileStart += resultTileSize {
		tileStart := tileStart
		tileEnd := tileStart + resultTileSize
		if tileEnd > n {
			tileEnd = n
		}
		th.Go(func() error {
			counts := make(map[int]int)
			for m := tileStart; m < tileEnd; m++ {
				alleles := make([]int, nHaps)
				for k := range counts {
					delete(counts, k)
				}
				for h := 0; h < nHaps; h++ {
					a := store.Allele(h, m)
					alleles[h] = a
					counts[a]++
				}
				records[m] = PhasedRecord{Marker: markers[m], Alleles: alleles}
				if rareIdx != nil {
					for a, ct := range counts {
						if ct > 0 && ct <= threshold {
							for h := 0; h < nHaps; h++ {
								if alleles[h] == a {
									rareIdx.AddCarrier(m, a, int32(h))
								}
							}
						}
					}
				}
			}
			return nil
		})
	}
	th.Wait()
	return records
}
