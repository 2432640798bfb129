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
	"github.com/embeddedllm/mipod/pkg/resource"
)

// Placement maps every replica of a deployment to the node hosting it.
// One Placement exists per accepted deployment.
type Placement struct {
	DeploymentID string
	// Nodes maps replica index to node id
	Nodes map[int]string
	// PerReplica is the resource request of a single replica
	PerReplica resource.Resource
}

// Reservations aggregates the placement into the per-node amounts to commit
// to the inventory.
func (p Placement) Reservations() map[string]resource.Resource {
	res := make(map[string]resource.Resource)
	for _, nodeID := range p.Nodes {
		res[nodeID] = resource.Sum(res[nodeID], p.PerReplica)
	}
	return res
}

// NodeOf returns the node hosting the given replica.
func (p Placement) NodeOf(replica int) (string, bool) {
	nodeID, found := p.Nodes[replica]
	return nodeID, found
}
