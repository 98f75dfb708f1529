// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import log "github.com/sirupsen/logrus"

// DebugSummary is a per-window diagnostic snapshot (supplemented
// feature, see SPEC_FULL.md): cluster-type counts across the cohort,
// the final parameter estimates, and swap-rate telemetry. It exists
// to let an embedding tool log a window's phasing run the way the
// teacher's tile-library reports summarize a merge or import.
type DebugSummary struct {
	NSamples      int
	NMarkers      int
	ClusterCounts [nClustTypes]int
	FinalMu       float64
	FinalR        float64
	SwapRate      float64
	Iterations    int
}

// Summarize builds a DebugSummary from a driver's fixed data and
// final stats, after Run has completed.
func Summarize(fd *FixedWindowData, stats DriverStats) DebugSummary {
	var ds DebugSummary
	ds.NSamples = fd.nSamples
	ds.NMarkers = fd.ml.Len()
	ds.FinalMu = stats.FinalMu
	ds.FinalR = stats.FinalR
	ds.SwapRate = stats.LastSwapRate
	ds.Iterations = stats.Iterations
	for _, sc := range fd.clusters {
		for t := ClustType(0); t < nClustTypes; t++ {
			ds.ClusterCounts[t] += sc.Count(t)
		}
	}
	return ds
}

// Log emits the summary as a single structured logrus entry at Info
// level.
func (ds DebugSummary) Log() {
	log.WithFields(log.Fields{
		"samples":     ds.NSamples,
		"markers":     ds.NMarkers,
		"homozygous":  ds.ClusterCounts[Homozygous],
		"phasedHet":   ds.ClusterCounts[PhasedHet],
		"unphasedHet": ds.ClusterCounts[UnphasedHet],
		"missing":     ds.ClusterCounts[MissingGT],
		"maskedHet":   ds.ClusterCounts[MaskedHet],
		"mu":          ds.FinalMu,
		"r":           ds.FinalR,
		"swapRate":    ds.SwapRate,
		"iterations":  ds.Iterations,
	}).Info("window phased")
}
