// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"runtime"
	"sort"

	"golang.org/x/exp/rand"
)

// maxTrailingRunBP is the base-pair span cap for the "mask trailing
// unphased hets" rule (spec §4.I, §9 open question 3).
const maxTrailingRunBP = 3000

// FixedWindowData is everything built once per window and read-only
// thereafter (spec §3 "Lifecycle", §5 "Fixed per-window data").
type FixedWindowData struct {
	ml       *MarkerList
	store    *HaplotypeStore
	steps    *Steps
	coded    []CodedStep
	ibs2     *IBS2Store
	clusters []*SampleClusters
	genPos   []float64
	nSamples int
	nHaps    int
	stepCM   float64
	lowFreq  [][]RareCarrierGroup // per-step rare-variant co-carrier groups
}

// buildLowFreqCarriers groups, per step, the haplotypes that co-carry a
// rare allele within that step's marker span (spec §4.D "Low-frequency-
// aware variant", §4.I "build fixed data ... low-freq carriers"). Allele
// keys are visited in sorted order so the grouping is independent of Go's
// randomized map iteration, keeping stage 2 deterministic for a given seed.
func buildLowFreqCarriers(store *HaplotypeStore, steps *Steps, nHaps, nSamples int, rare float64) [][]RareCarrierGroup {
	threshold := rareThreshold(nSamples, rare)
	groups := make([][]RareCarrierGroup, steps.Len())
	for t := 0; t < steps.Len(); t++ {
		var stepGroups []RareCarrierGroup
		for m := steps.Start(t); m < steps.End(t); m++ {
			carriers := make(map[int][]int32)
			for h := 0; h < nHaps; h++ {
				a := store.Allele(h, m)
				carriers[a] = append(carriers[a], int32(h))
			}
			alleles := make([]int, 0, len(carriers))
			for a := range carriers {
				alleles = append(alleles, a)
			}
			sort.Ints(alleles)
			for _, a := range alleles {
				haps := carriers[a]
				if len(haps) >= 2 && len(haps) <= threshold {
					stepGroups = append(stepGroups, RareCarrierGroup{Marker: m, Allele: a, Haps: haps})
				}
			}
		}
		groups[t] = stepGroups
	}
	return groups
}

// medianStep returns the median consecutive-marker genetic distance,
// used as the basis of the step size delta (spec §6, "step_scale").
func medianStep(genPos []float64) float64 {
	n := len(genPos)
	if n < 2 {
		return 0.01
	}
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = genPos[i] - genPos[i-1]
	}
	sort.Float64s(diffs)
	return diffs[len(diffs)/2]
}

// BuildFixedData constructs a window's immutable fixed data: the
// packed store seeded with unphased target (and optional reference)
// calls, per-sample cluster partitions, the step/coded-step tiling,
// and the IBS2 store (spec §4.I, "build fixed data").
func BuildFixedData(w *Window, o Options) (*FixedWindowData, error) {
	ml, err := NewMarkerList(w.Markers)
	if err != nil {
		return nil, err
	}
	nSamples := len(w.Samples)
	nRefHaps := 0
	if len(w.RefCalls) > 0 {
		nRefHaps = 2 * len(w.RefCalls[0])
	}
	nHaps := 2*nSamples + nRefHaps
	store := NewHaplotypeStore(ml, nHaps)

	for m := 0; m < ml.Len(); m++ {
		for s := 0; s < nSamples; s++ {
			g := w.Calls[m][s]
			a1, a2 := g.A1, g.A2
			if a1 == MissingAllele {
				a1 = 0
			}
			if a2 == MissingAllele {
				a2 = 0
			}
			store.SetAllele(2*s, m, a1)
			store.SetAllele(2*s+1, m, a2)
		}
		for r := 0; r < nRefHaps/2; r++ {
			g := w.RefCalls[m][r]
			store.SetAllele(2*nSamples+2*r, m, g.A1)
			store.SetAllele(2*nSamples+2*r+1, m, g.A2)
		}
	}

	clusters := make([]*SampleClusters, nSamples)
	for s := 0; s < nSamples; s++ {
		calls := make([]GenotypeCall, ml.Len())
		for m := 0; m < ml.Len(); m++ {
			calls[m] = w.Calls[m][s]
		}
		sc, err := PartitionClusters(w.GenPos, calls)
		if err != nil {
			return nil, err
		}
		clusters[s] = sc
	}

	stepCM := o.StepScale * medianStep(w.GenPos)
	if stepCM <= 0 {
		stepCM = 0.01
	}
	steps, err := PartitionSteps(ml, w.GenPos, stepCM)
	if err != nil {
		return nil, err
	}
	nthreads := o.NThreads
	coded := CodeSteps(store, steps, nthreads)
	ibs2 := DetectIBS2(w.Calls, w.GenPos, nSamples)
	lowFreq := buildLowFreqCarriers(store, steps, nHaps, nSamples, o.Rare)

	return &FixedWindowData{
		ml: ml, store: store, steps: steps, coded: coded, ibs2: ibs2,
		clusters: clusters, genPos: w.GenPos, nSamples: nSamples, nHaps: nHaps, stepCM: stepCM,
		lowFreq: lowFreq,
	}, nil
}

// Driver runs the burn-in/iteration/stage-2 pipeline over one
// window's fixed data (spec §4.I).
type Driver struct {
	Options Options
	swap    SwapRateCounters
	stats   DriverStats
}

// NewDriver validates o and returns a ready Driver.
func NewDriver(o Options) (*Driver, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &Driver{Options: o}, nil
}

// DriverStats is a supplemented diagnostic snapshot exposed via
// Driver.Stats(), not part of the original distilled spec but useful
// for monitoring long-running phasing jobs the way the teacher's
// tileStats reports tiling progress.
type DriverStats struct {
	Iterations   int
	LastSwapRate float64
	FinalMu      float64
	FinalR       float64
}

// Stats returns the most recent snapshot recorded by Run.
func (d *Driver) Stats() DriverStats { return d.stats }

// WindowResult is the output of a completed window (spec §4.J, §6).
type WindowResult struct {
	Records  []PhasedRecord
	RareVars *RareAlleleIndex
}

// Run phases every target sample in the window: seeds an initial
// phase (§4.G), then iterates burn-in+iterations stage-1 passes
// (§4.I) alternating PBWT direction, then a single stage-2 pass, then
// assembles the row-major result (§4.J).
func (d *Driver) Run(w *Window) (*WindowResult, error) {
	o := d.Options
	if o.NThreads < 1 {
		o.NThreads = runtime.GOMAXPROCS(0)
	}
	fd, err := BuildFixedData(w, o)
	if err != nil {
		return nil, err
	}

	d.seedInitialPhase(fd, o)

	params := NewParamEstimator(1.0/float64(len(w.Markers)+1), 1.0/o.Ne)
	total := o.Burnin + o.Iterations
	emSubIter := 0
	for iter := 0; iter < total; iter++ {
		dir := Reverse
		if iter%2 == 1 {
			dir = Forward
		}
		states := RunPBWT(fd.coded, fd.nHaps, dir)
		capN := candidateCap(o, iter)
		lr := lrThresholdAt(o, iter)

		th := throttle{Max: o.NThreads}
		for s := 0; s < fd.nSamples; s++ {
			s := s
			th.Go(func() error {
				rng := rand.New(rand.NewSource(uint64(o.Seed + int64(iter) + int64(s))))
				d.phaseSample(fd, states, s, capN, lr, iter >= o.Burnin, o, rng, params)
				return nil
			})
		}
		if err := th.Wait(); err != nil {
			return nil, err
		}

		if o.EM && iter < o.Burnin {
			params.Aggregate()
			emSubIter++
		}
		d.stats.Iterations = iter + 1
		d.stats.LastSwapRate = d.swap.RateAndReset()
	}

	d.stats.FinalMu = params.Mu
	d.stats.FinalR = params.R
	d.runStage2(fd, o)

	rareIdx := NewRareAlleleIndex()
	records := AssembleResult(fd.store, fd.ml, w.Markers, o.NThreads, o.Rare, rareIdx)
	return &WindowResult{Records: records, RareVars: rareIdx}, nil
}

// seedInitialPhase runs the PBWT initial phaser over every sample's
// overlapping sub-windows (spec §4.G).
func (d *Driver) seedInitialPhase(fd *FixedWindowData, o Options) {
	totalCM := 0.0
	if len(fd.genPos) > 0 {
		totalCM = fd.genPos[len(fd.genPos)-1] - fd.genPos[0]
	}
	width := subWindowWidthCM(totalCM, o.NThreads, initPhaseOverlapCM)
	subWins := PartitionSubWindows(fd.genPos, width)

	th := throttle{Max: o.NThreads}
	for s := 0; s < fd.nSamples; s++ {
		s := s
		th.Go(func() error {
			rng := rand.New(rand.NewSource(uint64(o.Seed + int64(s))))
			var prev *subWindow
			for i := range subWins {
				sw := subWins[i]
				greedyPBWTPhase(fd.store, fd.ml, sw, s, Forward, fd.genPos, rng)
				greedyPBWTPhase(fd.store, fd.ml, sw, s, Reverse, fd.genPos, rng)
				if prev != nil {
					ReconcileSubWindows(fd.store, s, *prev, sw)
				}
				prev = &subWins[i]
			}
			return nil
		})
	}
	th.Wait()
}

// phaseSample runs the two-track Li-Stephens HMM over sample s's
// full cluster sequence for one iteration (no homozygous "track 0"
// is run): tracks 1 and 2 (the
// sample's two haplotypes) forward/backward-scan a shared composite
// reference panel built from this iteration's PBWT candidates, and at
// every unphased-heterozygote cluster the cached track posteriors
// drive the flip-test swap decision (spec §4.E, §4.F, §4.I). Per step,
// each haplotype's symmetric-expansion eligible set is reduced to a
// single uniformly-chosen candidate via PickCandidate, matching the
// "pick one... return -1 if none" contract of spec §4.D; the composite
// builder of §4.E then sees at most two candidates (one per haplotype)
// per step rather than the full eligible set.
func (d *Driver) phaseSample(fd *FixedWindowData, states []*PBWTState, s int, capN int, lr float64, postBurnin bool, o Options, rng *rand.Rand, params *ParamEstimator) {
	h0, h1 := Haplotypes(s)
	sc := fd.clusters[s]
	k := o.PhaseStates
	sampleOf := func(hap int) int { return hap / 2 }

	candByStep := make([][]int, fd.steps.Len())
	for t := 0; t < fd.steps.Len(); t++ {
		stepStart, stepEnd := fd.steps.Start(t), fd.steps.End(t)-1
		c0 := states[t].Candidates(h0, capN, stepStart, stepEnd, fd.ibs2, sampleOf, rng)
		c1 := states[t].Candidates(h1, capN, stepStart, stepEnd, fd.ibs2, sampleOf, rng)
		var picks []int
		if p := PickCandidate(c0, rng); p >= 0 {
			picks = append(picks, p)
		}
		if p := PickCandidate(c1, rng); p >= 0 {
			picks = append(picks, p)
		}
		candByStep[t] = picks
	}
	comps := BuildComposites(h0, candByStep, fd.steps, k, fd.stepCM, s, fd.nHaps, rng)
	nStates := len(comps)
	if nStates < 2 {
		markTrailingUnphasedHets(sc, fd.ml, o)
		return
	}
	stateAllele := func(ci, i int) int { return comps[i].Allele(fd.store, sc.At(ci).Start) }

	n := sc.Len()
	fwd1 := newTrack(n, nStates)
	fwd2 := newTrack(n, nStates)
	for ci := 0; ci < n; ci++ {
		cl := sc.At(ci)
		sAllele := func(i int) int { return stateAllele(ci, i) }
		a1, a2 := fd.store.Allele(h0, cl.Start), fd.store.Allele(h1, cl.Start)
		em1 := emissionRow(nStates, sAllele, a1, params.Mu, int(cl.Size))
		em2 := emissionRow(nStates, sAllele, a2, params.Mu, int(cl.Size))
		if ci == 0 {
			fwd1.fwd[0] = uniformRow(nStates)
			fwd2.fwd[0] = uniformRow(nStates)
			var s1, s2 float64
			for i := 0; i < nStates; i++ {
				fwd1.fwd[0][i] *= em1[i]
				fwd2.fwd[0][i] *= em2[i]
				s1 += fwd1.fwd[0][i]
				s2 += fwd2.fwd[0][i]
			}
			fwd1.fwdSum[0], fwd2.fwdSum[0] = s1, s2
			continue
		}
		d1 := fd.genPos[cl.Start] - fd.genPos[sc.At(ci-1).Start]
		p := jumpProb(params.R, d1)
		fwd1.fwd[ci], fwd1.fwdSum[ci] = stepForward(fwd1.fwd[ci-1], fwd1.fwdSum[ci-1], p, em1)
		fwd2.fwd[ci], fwd2.fwdSum[ci] = stepForward(fwd2.fwd[ci-1], fwd2.fwdSum[ci-1], p, em2)
	}

	bwd1 := newTrack(n, nStates)
	bwd2 := newTrack(n, nStates)
	for ci := n - 1; ci >= 0; ci-- {
		if ci == n-1 {
			bwd1.bwd[ci] = uniformRow(nStates)
			bwd2.bwd[ci] = uniformRow(nStates)
			bwd1.bwdSum[ci], bwd2.bwdSum[ci] = 1, 1
			continue
		}
		cl := sc.At(ci + 1)
		sAllele := func(i int) int { return stateAllele(ci+1, i) }
		a1, a2 := fd.store.Allele(h0, cl.Start), fd.store.Allele(h1, cl.Start)
		em1 := emissionRow(nStates, sAllele, a1, params.Mu, int(cl.Size))
		em2 := emissionRow(nStates, sAllele, a2, params.Mu, int(cl.Size))
		d1 := fd.genPos[cl.Start] - fd.genPos[sc.At(ci).Start]
		p := jumpProb(params.R, d1)
		bwd1.bwd[ci], bwd1.bwdSum[ci] = stepBackward(bwd1.bwd[ci+1], bwd1.bwdSum[ci+1], p, em1)
		bwd2.bwd[ci], bwd2.bwdSum[ci] = stepBackward(bwd2.bwd[ci+1], bwd2.bwdSum[ci+1], p, em2)
	}

	var muNumer, rDist, rSwitch float64
	var muMarkers int
	for ci := 0; ci < n; ci++ {
		cl := sc.At(ci)

		mismatchPost, wsum := 0.0, 0.0
		for i := 0; i < nStates; i++ {
			w := fwd1.fwd[ci][i] * bwd1.bwd[ci][i]
			wsum += w
			if stateAllele(ci, i) != fd.store.Allele(h0, cl.Start) {
				mismatchPost += w
			}
		}
		if wsum > 0 {
			muNumer += (mismatchPost / wsum) * float64(cl.Size)
		}
		muMarkers += int(cl.Size)

		switch cl.Type {
		case UnphasedHet:
			decision := decideSwap(fwd1.fwd[ci], fwd2.fwd[ci], bwd1.bwd[ci], bwd2.bwd[ci])
			d.swap.RecordDecision(decision.Swap)
			if !postBurnin && ci > 0 {
				d1 := fd.genPos[cl.Start] - fd.genPos[sc.At(ci-1).Start]
				rDist += d1
				if decision.Swap {
					rSwitch += float64(nStates) / float64(nStates-1)
				}
			}
			if postBurnin && decision.LikelihoodRatio >= lr {
				if decision.Swap {
					a1 := fd.store.Allele(h0, cl.Start)
					a2 := fd.store.Allele(h1, cl.Start)
					fd.store.SetAllele(h0, cl.Start, a2)
					fd.store.SetAllele(h1, cl.Start, a1)
				}
				sc.Retype(ci, PhasedHet)
			}
		case MissingGT, MaskedHet:
			sAllele := func(i int) int { return stateAllele(ci, i) }
			a1 := imputeAllele(fwd1.fwd[ci], bwd1.bwd[ci], sAllele, fd.ml.At(cl.Start).Alleles)
			a2 := imputeAllele(fwd2.fwd[ci], bwd2.bwd[ci], sAllele, fd.ml.At(cl.Start).Alleles)
			fd.store.SetAllele(h0, cl.Start, a1)
			fd.store.SetAllele(h1, cl.Start, a2)
		}
	}

	if o.EM && !postBurnin {
		params.AddMuSample(muMarkers, muNumer)
		if rDist > 0 {
			params.AddRSample(rDist, rSwitch)
		}
	}

	if postBurnin {
		markTrailingUnphasedHets(sc, fd.ml, o)
	}
}

func uniformRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = 1.0 / float64(n)
	}
	return row
}

// markTrailingUnphasedHets implements the asymmetric rule of spec
// §4.I and §9 open question 3: in a maximal run of 2 unphased
// heterozygote clusters spanning <=3000bp, mask the trailing cluster;
// in a run of exactly 3, mask all but the last.
func markTrailingUnphasedHets(sc *SampleClusters, ml *MarkerList, o Options) {
	n := sc.Len()
	i := 0
	for i < n {
		if sc.At(i).Type != UnphasedHet {
			i++
			continue
		}
		j := i
		for j < n && sc.At(j).Type == UnphasedHet {
			j++
		}
		runLen := j - i
		if runLen == 2 || runLen == 3 {
			startPos := ml.At(sc.At(i).Start).Pos
			endPos := ml.At(sc.At(j - 1).Start).Pos
			if endPos-startPos <= maxTrailingRunBP {
				switch runLen {
				case 2:
					sc.Retype(j-1, MaskedHet)
				case 3:
					sc.Retype(i, MaskedHet)
					sc.Retype(i+1, MaskedHet)
				}
			}
		}
		i = j
	}
}

// stage2Candidates builds one haplotype's per-step candidate list for
// stage 2: the low-frequency-aware selector first (spec §4.D), falling
// back to the ordinary symmetric expansion reduced to a single pick via
// PickCandidate when the haplotype carries no rare variant in that step
// or neither neighbor is eligible within the backoff bound.
func stage2Candidates(states []*PBWTState, fd *FixedWindowData, hap int, sampleOf func(int) int, rng *rand.Rand) [][]int {
	candByStep := make([][]int, fd.steps.Len())
	for t := 0; t < fd.steps.Len(); t++ {
		stepStart, stepEnd := fd.steps.Start(t), fd.steps.End(t)-1
		elig := states[t].LowFreqCandidates(hap, fd.lowFreq[t], lowFreqMaxBackoff, stepStart, stepEnd, fd.ibs2, sampleOf)
		if len(elig) == 0 {
			full := states[t].Candidates(hap, stage2CandidateCap, stepStart, stepEnd, fd.ibs2, sampleOf, rng)
			if p := PickCandidate(full, rng); p >= 0 {
				elig = []int{p}
			}
		}
		candByStep[t] = elig
	}
	return candByStep
}

// runStage2 re-derives alleles at missing and masked clusters using the
// low-frequency-aware candidate selector (spec §4.D), a K/2-per-
// haplotype composite layout built independently for each of the
// sample's two haplotypes (spec §4.E, §6 "phase_states"), and a real
// two-track forward/backward HMM pass over the composite panel (spec
// §4.F, §4.I). Rare-allele carriers are indexed afterward, from the
// resulting alleles, by AssembleResult.
func (d *Driver) runStage2(fd *FixedWindowData, o Options) {
	states := RunPBWT(fd.coded, fd.nHaps, Forward)
	sampleOf := func(hap int) int { return hap / 2 }
	halfK := o.PhaseStates / 2
	if halfK < 1 {
		halfK = 1
	}
	th := throttle{Max: o.NThreads}
	for s := 0; s < fd.nSamples; s++ {
		s := s
		th.Go(func() error {
			rng := rand.New(rand.NewSource(uint64(o.Seed + int64(o.Burnin+o.Iterations) + int64(s))))
			sc := fd.clusters[s]
			for _, hap := range [2]int{2 * s, 2*s + 1} {
				candByStep := stage2Candidates(states, fd, hap, sampleOf, rng)
				comps := BuildComposites(hap, candByStep, fd.steps, halfK, fd.stepCM, s, fd.nHaps, rng)
				nStates := len(comps)
				if nStates == 0 {
					continue
				}
				stateAllele := func(ci, i int) int { return comps[i].Allele(fd.store, sc.At(ci).Start) }
				observed := func(ci int) int { return fd.store.Allele(hap, sc.At(ci).Start) }
				fwd, bwd := ForwardBackward(sc, fd.genPos, stateAllele, observed, d.stats.FinalMu, d.stats.FinalR, nStates)

				for ci := 0; ci < sc.Len(); ci++ {
					cl := sc.At(ci)
					if cl.Type != MissingGT && cl.Type != MaskedHet {
						continue
					}
					sAllele := func(i int) int { return stateAllele(ci, i) }
					a := imputeAllele(fwd.fwd[ci], bwd.bwd[ci], sAllele, fd.ml.At(cl.Start).Alleles)
					fd.store.SetAllele(hap, cl.Start, a)
				}
			}
			return nil
		})
	}
	th.Wait()
}
