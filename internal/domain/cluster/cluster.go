// Package cluster partitions normalized timestamps into groups that are
// plausibly copies of the same physical transmission.
//
// The input is one "component": a set of receivers whose timestamps have been
// mapped onto a common timebase by the clock normalization stage. Receivers in
// different components cannot be compared at all and must be partitioned
// independently.
package cluster

import (
	"math"
	"sort"

	"github.com/skysieve/mlatd/internal/domain/model"
)

const (
	// coarseGap is the consecutive-timestamp gap that starts a new rough
	// group. A rough group may still span far more than this in total.
	coarseGap = 2e-3

	// exactWindow is the hard scan cutoff inside a group: a candidate more
	// than this much earlier than the most recently accepted member cannot
	// belong to the cluster.
	exactWindow = 2e-3

	// rangeSlack and rangeSlop widen the propagation-delay bound to absorb
	// normalization error.
	rangeSlack = 1.05
	rangeSlop  = 1e3 // metres

	// colocatedRange is the receiver separation below which two receivers
	// cannot contribute independent geometry and count as one for quorum.
	colocatedRange = 1e3 // metres
)

// Entry is one normalized observation: a receiver, its comparable timestamp
// in seconds, and the variance of its clock estimate.
type Entry struct {
	Receiver  *model.Receiver
	Timestamp float64
	Variance  float64
}

// ComponentEntry is one receiver's contribution to a normalized component.
type ComponentEntry struct {
	Variance   float64
	Timestamps []float64
}

// Component maps each receiver in one mutually-comparable timebase to its
// normalized timestamps.
type Component map[*model.Receiver]ComponentEntry

// Cluster is a set of entries believed to be copies of one transmission,
// ordered by ascending timestamp. Distinct counts receivers far enough apart
// to contribute independent geometric information.
type Cluster struct {
	Distinct int
	Entries  []Entry
}

// Partitioner runs the clustering pass. The propagation speed is the only
// tunable; everything else is a fixed property of the algorithm.
type Partitioner struct {
	speed float64 // metres/second
}

// Option applies a configuration option to the Partitioner.
type Option func(*Partitioner)

// DefaultPropagationSpeed is the speed of light in air.
const DefaultPropagationSpeed = 299792458.0 / 1.0003

// WithPropagationSpeed overrides the propagation speed used in the pairwise
// feasibility bound.
func WithPropagationSpeed(speed float64) Option {
	return func(p *Partitioner) {
		if speed > 0 {
			p.speed = speed
		}
	}
}

// NewPartitioner creates a Partitioner with the given options.
func NewPartitioner(opts ...Option) *Partitioner {
	p := &Partitioner{speed: DefaultPropagationSpeed}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Partition splits one component into candidate clusters of at least
// minReceivers distinct receivers each.
//
// A cheap linear pre-partition on consecutive gaps bounds the cost of the
// exact quadratic pass that follows: pairwise feasibility is only checked
// inside rough groups, which are small in practice.
func (p *Partitioner) Partition(component Component, minReceivers int) []Cluster {
	flat := flatten(component)
	if len(flat) == 0 {
		return nil
	}

	var clusters []Cluster
	for _, group := range roughGroups(flat) {
		clusters = append(clusters, p.clusterGroup(group, minReceivers)...)
	}
	return clusters
}

// flatten turns a component into a single timestamp-sorted slice. Ties are
// broken on receiver ID so the order never depends on map iteration.
func flatten(component Component) []Entry {
	n := 0
	for _, ce := range component {
		n += len(ce.Timestamps)
	}
	flat := make([]Entry, 0, n)
	for rx, ce := range component {
		for _, t := range ce.Timestamps {
			flat = append(flat, Entry{Receiver: rx, Timestamp: t, Variance: ce.Variance})
		}
	}
	sort.Slice(flat, func(i, j int) bool {
		if flat[i].Timestamp != flat[j].Timestamp {
			return flat[i].Timestamp < flat[j].Timestamp
		}
		return flat[i].Receiver.ID < flat[j].Receiver.ID
	})
	return flat
}

// roughGroups splits a sorted slice wherever consecutive entries are more
// than coarseGap apart.
func roughGroups(flat []Entry) [][]Entry {
	groups := make([][]Entry, 0, 1)
	group := []Entry{flat[0]}
	for _, e := range flat[1:] {
		if e.Timestamp-group[len(group)-1].Timestamp > coarseGap {
			groups = append(groups, group)
			group = []Entry{e}
		} else {
			group = append(group, e)
		}
	}
	return append(groups, group)
}

// clusterGroup repeatedly seeds a cluster from the latest remaining entry and
// scans backwards for compatible members. Accepted members are consumed so a
// later seed cannot reuse them; a group may yield several disjoint clusters.
func (p *Partitioner) clusterGroup(group []Entry, minReceivers int) []Cluster {
	var clusters []Cluster

	for len(group) >= 3 {
		seed := group[len(group)-1]
		group = group[:len(group)-1]

		members := []Entry{seed}
		lastAccepted := seed.Timestamp
		distinct := 1

		for i := len(group) - 1; i >= 0; i-- {
			cand := group[i]
			if lastAccepted-cand.Timestamp > exactWindow {
				// Unlike the rough grouping above, this cutoff is
				// relative to the accepted members, not to the
				// consecutive neighbour.
				break
			}

			isDistinct, canCluster := true, true
			for _, m := range members {
				if m.Receiver == cand.Receiver {
					canCluster = false
					break
				}
				d := cand.Receiver.DistanceTo(m.Receiver)
				if math.Abs(m.Timestamp-cand.Timestamp) > (d*rangeSlack+rangeSlop)/p.speed {
					canCluster = false
					break
				}
				if d < colocatedRange {
					isDistinct = false
				}
			}

			if canCluster {
				members = append(members, cand)
				group = append(group[:i], group[i+1:]...)
				lastAccepted = cand.Timestamp
				if isDistinct {
					distinct++
				}
			}
		}

		if distinct >= minReceivers {
			// members were collected in descending timestamp order
			for l, r := 0, len(members)-1; l < r; l, r = l+1, r-1 {
				members[l], members[r] = members[r], members[l]
			}
			clusters = append(clusters, Cluster{Distinct: distinct, Entries: members})
		}
	}

	return clusters
}
