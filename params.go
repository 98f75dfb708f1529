// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// muSample is one thread's contribution to the mismatch-rate
// accumulator: a marker count and the summed mismatch posterior over
// those markers (spec §4.H).
type muSample struct {
	Markers int
	Numer   float64
}

// rSample is one thread's contribution to the recombination-rate
// accumulator: summed genetic distance and summed switch posterior,
// weighted by h/(h-1) (spec §4.H).
type rSample struct {
	Dist   float64
	Switch float64
}

// ParamEstimator holds the two append-only concurrent accumulator
// queues used during burn-in re-estimation (spec §4.H). Appends are
// guarded by a single mutex, matching the teacher's
// concurrent-accumulator style used for tile-library statistics.
type ParamEstimator struct {
	mu sync.Mutex

	muSamples []muSample
	rSamples  []rSample

	Mu float64
	R  float64
}

// NewParamEstimator returns an estimator seeded with the window's
// initial mu/r values.
func NewParamEstimator(initMu, initR float64) *ParamEstimator {
	return &ParamEstimator{Mu: initMu, R: initR}
}

// AddMuSample appends one thread's mismatch accumulation.
func (e *ParamEstimator) AddMuSample(markers int, numer float64) {
	e.mu.Lock()
	e.muSamples = append(e.muSamples, muSample{Markers: markers, Numer: numer})
	e.mu.Unlock()
}

// AddRSample appends one thread's recombination accumulation.
func (e *ParamEstimator) AddRSample(dist, switchSum float64) {
	e.mu.Lock()
	e.rSamples = append(e.rSamples, rSample{Dist: dist, Switch: switchSum})
	e.mu.Unlock()
}

// Aggregate sorts both accumulator queues by value before summing, so
// the aggregate is bit-reproducible for a given thread-set regardless
// of arrival order (spec §4.H), then updates Mu (monotonic-up only)
// and R (accepted only if finite and positive).
func (e *ParamEstimator) Aggregate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	sort.Slice(e.muSamples, func(i, j int) bool { return e.muSamples[i].Numer < e.muSamples[j].Numer })
	var numer float64
	var markers int
	for _, s := range e.muSamples {
		numer += s.Numer
		markers += s.Markers
	}
	if markers > 0 {
		mu := numer / float64(markers)
		if mu > e.Mu {
			e.Mu = mu
		}
	}

	sort.Slice(e.rSamples, func(i, j int) bool { return e.rSamples[i].Switch < e.rSamples[j].Switch })
	var dist, switchSum float64
	for _, s := range e.rSamples {
		dist += s.Dist
		switchSum += s.Switch
	}
	if dist > 0 {
		r := switchSum / dist
		if !isFiniteAndPositive(r) {
			// reject: keep previous R
		} else {
			e.R = r
		}
	}

	e.muSamples = e.muSamples[:0]
	e.rSamples = e.rSamples[:0]
}

func isFiniteAndPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// MeanOf reports the sample mean of a slice of observations using
// gonum/stat. Neither Aggregate nor Driver.Stats calls it.
func MeanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// emConverged reports whether EM should stop iterating: relative
// change of r is <=0.1 (spec §4.H).
func emConverged(prevR, newR float64) bool {
	if prevR == 0 {
		return newR == 0
	}
	rel := (newR - prevR) / prevR
	if rel < 0 {
		rel = -rel
	}
	return rel <= 0.1
}
