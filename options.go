// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"math"
	"runtime"
)

// Options holds the explicit, enumerated configuration surface of the
// phasing core (spec §6). There is no flag.FlagSet here: parsing
// command-line arguments is the embedding tool's job.
type Options struct {
	// NThreads is the size of the worker pool. 0 means
	// runtime.GOMAXPROCS(0).
	NThreads int

	// Burnin is the number of initial stage-1 iterations during
	// which heterozygote phase is flipped but never committed
	// (lrThreshold == +Inf).
	Burnin int

	// Iterations is the number of post-burn-in stage-1 iterations.
	Iterations int

	// InitialLR is the likelihood-ratio threshold used on the
	// first post-burn-in iteration; it decays geometrically to
	// 1.0 by the final iteration.
	InitialLR float64

	// PhaseStates is K, the number of composite reference
	// haplotypes built per target sample in stage 1. Stage 2
	// builds K/2 per haplotype.
	PhaseStates int

	// StepScale multiplies the median inter-marker genetic
	// distance to obtain the step size delta, in centiMorgans.
	StepScale float64

	// Rare is the fraction-of-samples threshold at or below which a
	// marker allele is treated as rare; the absolute carrier
	// threshold is max(3, floor(nSamples*Rare)).
	Rare float64

	// Ne is the effective population size, used to seed the
	// initial recombination intensity r.
	Ne float64

	// EM turns on posterior re-estimation of mu and r during
	// burn-in.
	EM bool

	// Seed is the base RNG seed. Per-iteration seed is
	// Seed+iter; per-sample seed is Seed+iter+sample.
	Seed int64

	// Overlap is the width, in centiMorgans, of phased overlap
	// carried from the previous window. The core does not read it:
	// candidate pools are not sized from it, and the initial
	// phaser uses its own fixed initPhaseOverlapCM.
	Overlap float64

	// Buffer is the candidate-pool margin around window boundaries.
	// The core does not read it.
	Buffer int
}

// DefaultOptions returns a complete set of option values, mirroring
// the numeric defaults named in spec §4 and §6. Zero-valued fields of
// an Options handed to NewDriver are not filled in from it.
func DefaultOptions() Options {
	return Options{
		NThreads:    runtime.GOMAXPROCS(0),
		Burnin:      5,
		Iterations:  5,
		InitialLR:   100,
		PhaseStates: 280,
		StepScale:   2,
		Rare:        0.001,
		Ne:          1000000,
		EM:          true,
		Seed:        1,
		Overlap:     2,
		Buffer:      10,
	}
}

// Validate rejects option combinations that cannot correspond to a
// well defined run. It never mutates o.
func (o Options) Validate() error {
	switch {
	case o.Burnin < 0:
		return contractViolation("Options.Validate", "Burnin %d < 0", o.Burnin)
	case o.Iterations < 0:
		return contractViolation("Options.Validate", "Iterations %d < 0", o.Iterations)
	case o.PhaseStates < 2:
		return contractViolation("Options.Validate", "PhaseStates %d < 2", o.PhaseStates)
	case o.StepScale <= 0:
		return contractViolation("Options.Validate", "StepScale %f <= 0", o.StepScale)
	case o.Rare <= 0:
		return contractViolation("Options.Validate", "Rare %f <= 0", o.Rare)
	case o.Ne <= 0:
		return contractViolation("Options.Validate", "Ne %f <= 0", o.Ne)
	case o.InitialLR < 1:
		return contractViolation("Options.Validate", "InitialLR %f < 1", o.InitialLR)
	}
	return nil
}

// candidateCap implements the burn-in-to-stage-1 schedule described
// in spec §4.D: starts near 100, decays linearly with iteration index
// toward 5.
func candidateCap(o Options, iter int) int {
	totalBurnAndIter := o.Burnin + o.Iterations
	if totalBurnAndIter <= 1 {
		return 100
	}
	const hi, lo = 100, 5
	frac := float64(iter) / float64(totalBurnAndIter-1)
	c := hi - int(frac*float64(hi-lo))
	if c < lo {
		c = lo
	}
	return c
}

// stage2CandidateCap is the fixed small cap used by stage 2's
// symmetric-expansion fallback (spec §4.D, "Candidate-cap schedule").
const stage2CandidateCap = 10

// lowFreqMaxBackoff bounds how far the low-frequency-aware candidate
// selector (spec §4.D, "Low-frequency-aware variant") will scan past a
// rare-variant co-carrier in PBWT order before giving up on that side.
const lowFreqMaxBackoff = 50

// lrThresholdAt implements the likelihood-ratio schedule of spec
// §4.I: +Inf during burn-in, geometric decay from InitialLR to 1.0 by
// the final iteration afterward.
func lrThresholdAt(o Options, iter int) float64 {
	if iter < o.Burnin {
		return math.Inf(1)
	}
	post := iter - o.Burnin
	if o.Iterations <= 1 {
		return 1.0
	}
	frac := float64(post) / float64(o.Iterations-1)
	if frac > 1 {
		frac = 1
	}
	// geometric interpolation in log space from InitialLR down to 1.0
	logLR := (1 - frac) * math.Log(o.InitialLR)
	return math.Exp(logLR)
}
