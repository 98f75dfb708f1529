// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"runtime"

	"golang.org/x/crypto/blake2b"
)

// Step is a contiguous marker sub-range, in [Start,End) marker
// coordinates, whose genetic-map span is at least the configured
// minimum (spec §3, "Step").
type Step struct {
	Start, End int
}

// Steps tiles a window's markers disjointly into Step ranges.
type Steps struct {
	steps []Step
}

// Len returns the number of steps.
func (s *Steps) Len() int { return len(s.steps) }

// At returns step i.
func (s *Steps) At(i int) Step { return s.steps[i] }

// Start returns the first marker of step t.
func (s *Steps) Start(t int) int { return s.steps[t].Start }

// End returns the marker one past the last marker of step t.
func (s *Steps) End(t int) int { return s.steps[t].End }

// StepOf returns the index of the step containing marker m.
func (s *Steps) StepOf(m int) int {
	lo, hi := 0, len(s.steps)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.steps[mid].Start <= m {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// PartitionSteps greedily grows each step until its genetic-map span
// reaches deltaCM, then merges the final two (possibly short) steps
// into one, per spec §4.B. genPos[i] is the genetic position (cM) of
// marker i and must be non-decreasing and the same length as ml.
func PartitionSteps(ml *MarkerList, genPos []float64, deltaCM float64) (*Steps, error) {
	n := ml.Len()
	if len(genPos) != n {
		return nil, windowError("PartitionSteps: len(genPos)=%d != nMarkers=%d", len(genPos), n)
	}
	if deltaCM <= 0 {
		return nil, windowError("PartitionSteps: deltaCM %f <= 0", deltaCM)
	}
	var steps []Step
	start := 0
	for start < n {
		end := start + 1
		for end < n && genPos[end-1]-genPos[start] < deltaCM {
			end++
		}
		steps = append(steps, Step{Start: start, End: end})
		start = end
	}
	if len(steps) >= 2 {
		last := steps[len(steps)-1]
		prev := steps[len(steps)-2]
		steps = steps[:len(steps)-2]
		steps = append(steps, Step{Start: prev.Start, End: last.End})
	}
	return &Steps{steps: steps}, nil
}

// CodedStep is the per-step, per-haplotype alphabet produced by
// interning the hash of each haplotype's allele calls across the
// step's marker range (spec §4.B, "Coded steps"). HapToSeq[h] is a
// dense symbol index in [0,ValueSize); two haplotypes with identical
// calls across the step share a symbol.
type CodedStep struct {
	HapToSeq  []int32
	ValueSize int
}

// CodeStep interns the hashes of every haplotype's calls across step,
// assigning dense symbol indices in order of first appearance by
// haplotype index (so two runs over the same store produce identical
// codings).
func CodeStep(store *HaplotypeStore, step Step) CodedStep {
	nHaps := store.NHaps()
	seen := make(map[[blake2b.Size256]byte]int32, nHaps)
	hapToSeq := make([]int32, nHaps)
	var next int32
	for h := 0; h < nHaps; h++ {
		key := store.Hash(h, step.Start, step.End)
		if idx, ok := seen[key]; ok {
			hapToSeq[h] = idx
		} else {
			seen[key] = next
			hapToSeq[h] = next
			next++
		}
	}
	return CodedStep{HapToSeq: hapToSeq, ValueSize: int(next)}
}

// CodeSteps codes every step, in parallel by step batches (spec
// §4.B: "Parallelizable by step batches").
func CodeSteps(store *HaplotypeStore, steps *Steps, nthreads int) []CodedStep {
	if nthreads < 1 {
		nthreads = runtime.GOMAXPROCS(0)
	}
	coded := make([]CodedStep, steps.Len())
	th := throttle{Max: nthreads}
	for t := 0; t < steps.Len(); t++ {
		t := t
		th.Go(func() error {
			coded[t] = CodeStep(store, steps.At(t))
			return nil
		})
	}
	th.Wait()
	return coded
}
