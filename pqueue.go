// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import "container/heap"

// compositeRef is one active composite reference tracked by the
// composite builder (spec §4.E): current anchor haplotype, the start
// marker of its current segment, and the last step at which the
// anchor matched the target.
type compositeRef struct {
	anchor     int
	segStart   int
	lastStep   int
	closedSegs []CompositeSegment // segments evicted by a prior rebind
	index      int                // heap.Interface bookkeeping
}

// refQueue is a min-heap of *compositeRef ordered by lastStep, so the
// least-recently-matched composite is always at the top. Design note
// (spec §4.E): a composite's key (lastStep) can change after it is
// already in the queue; touch updates the key and restores heap order
// at once with heap.Fix, so least can return the top item directly.
type refQueue struct {
	items []*compositeRef
}

func (q *refQueue) Len() int { return len(q.items) }
func (q *refQueue) Less(i, j int) bool {
	return q.items[i].lastStep < q.items[j].lastStep
}
func (q *refQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}
func (q *refQueue) Push(x interface{}) {
	r := x.(*compositeRef)
	r.index = len(q.items)
	q.items = append(q.items, r)
}
func (q *refQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// newRefQueue returns an empty composite-reference queue.
func newRefQueue() *refQueue {
	q := &refQueue{}
	heap.Init(q)
	return q
}

// add inserts a new composite ref into the queue.
func (q *refQueue) add(r *compositeRef) {
	heap.Push(q, r)
}

// touch records that ref's anchor matched at step, updating its key
// and restoring heap order.
func (q *refQueue) touch(r *compositeRef, step int) {
	r.lastStep = step
	heap.Fix(q, r.index)
}

// least returns the composite with the smallest lastStep, or nil if
// the queue is empty.
func (q *refQueue) least() *compositeRef {
	if q.Len() == 0 {
		return nil
	}
	return q.items[0]
}

// all returns every tracked composite ref, in no particular order.
func (q *refQueue) all() []*compositeRef {
	return q.items
}
