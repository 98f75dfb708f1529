// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "gopkg.in/check.v1"

type paramsSuite struct{}

var _ = check.Suite(&paramsSuite{})

func (s *paramsSuite) TestMuIsMonotonicUp(c *check.C) {
	e := NewParamEstimator(0.01, 0.001)
	e.AddMuSample(100, 20) // mu = 0.2, grows
	e.Aggregate()
	c.Check(e.Mu, check.Equals, 0.2)

	e.AddMuSample(100, 5) // mu = 0.05, should NOT shrink the estimate
	e.Aggregate()
	c.Check(e.Mu, check.Equals, 0.2)
}

func (s *paramsSuite) TestRRejectsNonPositive(c *check.C) {
	e := NewParamEstimator(0.01, 0.001)
	e.AddRSample(10, -5) // r = -0.5, rejected
	e.Aggregate()
	c.Check(e.R, check.Equals, 0.001)

	e.AddRSample(10, 2) // r = 0.2, accepted
	e.Aggregate()
	c.Check(e.R, check.Equals, 0.2)
}

func (s *paramsSuite) TestEMConverged(c *check.C) {
	c.Check(emConverged(1.0, 1.05), check.Equals, true)
	c.Check(emConverged(1.0, 1.5), check.Equals, false)
}
