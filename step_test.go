// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "gopkg.in/check.v1"

type stepSuite struct{}

var _ = check.Suite(&stepSuite{})

func (s *stepSuite) TestPartitionCoversAllMarkers(c *check.C) {
	n := 1000
	genPos := make([]float64, n)
	for i := range genPos {
		genPos[i] = float64(i) * 0.001
	}
	markers := make([]Marker, n)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	steps, err := PartitionSteps(ml, genPos, 0.05)
	c.Assert(err, check.IsNil)
	c.Assert(steps.Len() > 0, check.Equals, true)
	c.Check(steps.At(0).Start, check.Equals, 0)
	c.Check(steps.At(steps.Len()-1).End, check.Equals, n)
	for i := 1; i < steps.Len(); i++ {
		c.Check(steps.At(i).Start, check.Equals, steps.At(i-1).End)
	}
	for i := 0; i < steps.Len(); i++ {
		c.Check(steps.At(i).End > steps.At(i).Start, check.Equals, true)
	}
}

func (s *stepSuite) TestCodeStepInterns(c *check.C) {
	markers := make([]Marker, 10)
	for i := range markers {
		markers[i] = Marker{Chrom: 1, Pos: int64(i), Alleles: 2}
	}
	ml, err := NewMarkerList(markers)
	c.Assert(err, check.IsNil)
	store := NewHaplotypeStore(ml, 4)
	// haps 0 and 2 identical, 1 and 3 differ
	for m := 0; m < ml.Len(); m++ {
		store.SetAllele(0, m, m%2)
		store.SetAllele(2, m, m%2)
		store.SetAllele(1, m, 0)
		store.SetAllele(3, m, 1)
	}
	coded := CodeStep(store, Step{Start: 0, End: ml.Len()})
	c.Check(coded.HapToSeq[0], check.Equals, coded.HapToSeq[2])
	c.Check(coded.HapToSeq[0] == coded.HapToSeq[1], check.Equals, false)
	c.Check(coded.ValueSize, check.Equals, 3)
}
