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

package planning

import (
	"fmt"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/pkg/resource"
	"github.com/embeddedllm/mipod/pkg/scheduling"
)

type snapshotData struct {
	nodes map[string]inventory.Node
}

func (d snapshotData) clone() *snapshotData {
	res := snapshotData{
		nodes: make(map[string]inventory.Node, len(d.nodes)),
	}
	for k, v := range d.nodes {
		res.nodes[k] = v.Clone()
	}
	return &res
}

// Snapshot is a working copy of the inventory the planner assigns replicas
// against. Fork opens a tentative view, Commit keeps it, Revert drops it.
// Nothing a Snapshot does touches the real inventory.
type Snapshot struct {
	data       *snapshotData
	forkedData *snapshotData
}

func NewSnapshot(nodes []inventory.Node) *Snapshot {
	data := snapshotData{
		nodes: make(map[string]inventory.Node, len(nodes)),
	}
	for _, n := range nodes {
		data.nodes[n.ID] = n.Clone()
	}
	return &Snapshot{data: &data}
}

func (s *Snapshot) getData() *snapshotData {
	if s.forkedData != nil {
		return s.forkedData
	}
	return s.data
}

func (s *Snapshot) Fork() error {
	if s.forkedData != nil {
		return fmt.Errorf("snapshot already forked")
	}
	s.forkedData = s.getData().clone()
	return nil
}

func (s *Snapshot) Commit() {
	if s.forkedData != nil {
		s.data = s.forkedData
		s.forkedData = nil
	}
}

func (s *Snapshot) Revert() {
	s.forkedData = nil
}

func (s *Snapshot) GetNodes() map[string]inventory.Node {
	return s.getData().nodes
}

func (s *Snapshot) GetNode(nodeID string) (inventory.Node, bool) {
	node, found := s.getData().nodes[nodeID]
	return node, found
}

// AddReplica reserves one replica's request on the node within the snapshot.
func (s *Snapshot) AddReplica(nodeID string, request resource.Resource) error {
	node, found := s.getData().nodes[nodeID]
	if !found {
		return scheduling.NotFoundErr.Errorf("node %s not found in snapshot", nodeID)
	}
	if !request.Fits(node.Free()) {
		return scheduling.InsufficientCapacityErr.Errorf(
			"node %s cannot fit %s (free %s)",
			nodeID,
			request,
			node.Free(),
		)
	}
	node.Allocated = resource.Sum(node.Allocated, request)
	s.getData().nodes[nodeID] = node
	return nil
}
