/*
 * Copyright 2024 Embedded LLM.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package inventory

import (
	"sort"
	"sync"

	"github.com/embeddedllm/mipod/pkg/resource"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"github.com/embeddedllm/mipod/pkg/util"
	"github.com/go-logr/logr"
)

type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthUnreachable Health = "unreachable"
	HealthDraining    Health = "draining"
)

// Node is a GPU node of the fleet together with its allocation state.
// Invariant: Allocated never exceeds Capacity on any dimension.
type Node struct {
	ID        string
	Address   string
	Labels    map[string]string
	Capacity  resource.Resource
	Allocated resource.Resource
	Health    Health
}

func (n Node) Free() resource.Resource {
	return resource.Subtract(n.Capacity, n.Allocated)
}

func (n Node) IsSchedulable() bool {
	return n.Health == HealthHealthy
}

func (n Node) Clone() Node {
	cloned := n
	cloned.Labels = util.CopyMap(n.Labels)
	return cloned
}

// Inventory is the ledger of node capacity and allocations. It is the only
// shared mutable state of the scheduler and serializes all reservations.
type Inventory struct {
	nodes  map[string]*Node
	logger logr.Logger

	mtx sync.RWMutex
}

func New(logger logr.Logger, nodes ...Node) *Inventory {
	inv := Inventory{
		nodes:  make(map[string]*Node, len(nodes)),
		logger: logger,
	}
	for _, n := range nodes {
		node := n.Clone()
		if node.Health == "" {
			node.Health = HealthHealthy
		}
		inv.nodes[node.ID] = &node
	}
	return &inv
}

// Reserve atomically adds amount to the node's allocation. It either fully
// succeeds or leaves the allocation unchanged.
func (i *Inventory) Reserve(nodeID string, amount resource.Resource) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()
	return i.reserve(nodeID, amount)
}

func (i *Inventory) reserve(nodeID string, amount resource.Resource) error {
	node, found := i.nodes[nodeID]
	if !found {
		return scheduling.NotFoundErr.Errorf("node %s not found", nodeID)
	}
	if amount.AnyNegative() {
		return scheduling.InconsistentStateErr.Errorf(
			"refusing negative reservation on node %s: %s",
			nodeID,
			amount,
		)
	}
	if !amount.Fits(node.Free()) {
		return scheduling.InsufficientCapacityErr.Errorf(
			"node %s cannot fit %s (free %s)",
			nodeID,
			amount,
			node.Free(),
		)
	}
	node.Allocated = resource.Sum(node.Allocated, amount)
	return nil
}

// Release subtracts amount from the node's allocation. Releasing below zero
// is an invariant violation: the allocation is left untouched, the node is
// marked unreachable and InconsistentState is returned.
func (i *Inventory) Release(nodeID string, amount resource.Resource) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	node, found := i.nodes[nodeID]
	if !found {
		return scheduling.NotFoundErr.Errorf("node %s not found", nodeID)
	}
	remaining := resource.Subtract(node.Allocated, amount)
	if remaining.AnyNegative() {
		node.Health = HealthUnreachable
		err := scheduling.InconsistentStateErr.Errorf(
			"release of %s on node %s would drive allocation below zero (allocated %s)",
			amount,
			nodeID,
			node.Allocated,
		)
		i.logger.Error(err, "node marked unreachable pending operator intervention", "node", nodeID)
		return err
	}
	node.Allocated = remaining
	return nil
}

// Commit applies a set of per-node reservations as a single transaction.
// Capacity is re-validated under the lock; a failure on any node rolls back
// every reservation applied before it.
func (i *Inventory) Commit(reservations map[string]resource.Resource) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	applied := make([]string, 0, len(reservations))
	for _, nodeID := range sortedKeys(reservations) {
		if err := i.reserve(nodeID, reservations[nodeID]); err != nil {
			for _, appliedID := range applied {
				i.nodes[appliedID].Allocated = resource.Subtract(
					i.nodes[appliedID].Allocated,
					reservations[appliedID],
				)
			}
			return err
		}
		applied = append(applied, nodeID)
	}
	return nil
}

// Snapshot returns a consistent deep copy of all nodes, ordered by id.
func (i *Inventory) Snapshot() []Node {
	i.mtx.RLock()
	defer i.mtx.RUnlock()

	res := make([]Node, 0, len(i.nodes))
	for _, n := range i.nodes {
		res = append(res, n.Clone())
	}
	sort.Slice(res, func(a, b int) bool {
		return res[a].ID < res[b].ID
	})
	return res
}

func (i *Inventory) GetNode(nodeID string) (Node, bool) {
	i.mtx.RLock()
	defer i.mtx.RUnlock()

	node, found := i.nodes[nodeID]
	if !found {
		return Node{}, false
	}
	return node.Clone(), true
}

func (i *Inventory) SetHealth(nodeID string, health Health) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	node, found := i.nodes[nodeID]
	if !found {
		return scheduling.NotFoundErr.Errorf("node %s not found", nodeID)
	}
	node.Health = health
	return nil
}

func sortedKeys(m map[string]resource.Resource) []string {
	keys := util.GetKeys(m)
	sort.Strings(keys)
	return keys
}
