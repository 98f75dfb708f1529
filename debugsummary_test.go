// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "gopkg.in/check.v1"

type debugSummarySuite struct{}

var _ = check.Suite(&debugSummarySuite{})

func (s *debugSummarySuite) TestSummarizeCountsClusters(c *check.C) {
	sc := &SampleClusters{}
	sc.clusters = []GenotypeCluster{
		{Start: 0, Size: 3, Type: Homozygous},
		{Start: 3, Size: 1, Type: UnphasedHet},
	}
	sc.counts[Homozygous] = 1
	sc.counts[UnphasedHet] = 1

	markers := make([]Marker, 4)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i * 100), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)

	fd := &FixedWindowData{
		ml:       ml,
		nSamples: 1,
		clusters: []*SampleClusters{sc},
	}
	stats := DriverStats{Iterations: 2, LastSwapRate: 0.5, FinalMu: 0.01, FinalR: 0.02}

	ds := Summarize(fd, stats)
	c.Check(ds.ClusterCounts[Homozygous], check.Equals, 1)
	c.Check(ds.ClusterCounts[UnphasedHet], check.Equals, 1)
	c.Check(ds.Iterations, check.Equals, 2)
	c.Check(ds.FinalMu, check.Equals, 0.01)
	c.Check(ds.FinalR, check.Equals, 0.02)
}
