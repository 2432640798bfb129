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
	"sort"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/resource"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Planner assigns the replicas of a validated deployment to nodes using
// best-fit-descending on free capacity. A plan is all-or-nothing: if any
// replica cannot be placed the whole plan is rejected and the snapshot is
// left untouched.
type Planner struct {
	logger logr.Logger
}

func NewPlanner(logger logr.Logger) Planner {
	return Planner{logger: logger}
}

func (p Planner) Plan(spec api.DeploymentSpec, deploymentID string, snapshot *Snapshot) (Placement, error) {
	perReplica, err := spec.Resources.PerReplica()
	if err != nil {
		return Placement{}, scheduling.ValidationErr.Errorf("invalid resource request: %v", err)
	}

	candidates := p.candidateNodes(spec, snapshot)
	p.logger.V(1).Info(
		"planning placement",
		"deployment", deploymentID,
		"replicas", spec.Replicas,
		"candidateNodes", len(candidates),
	)
	if len(candidates) == 0 {
		return Placement{}, scheduling.UnschedulableErr.Errorf(
			"no healthy node matches the deployment constraints",
		)
	}

	if err = snapshot.Fork(); err != nil {
		return Placement{}, err
	}

	placement := Placement{
		DeploymentID: deploymentID,
		Nodes:        make(map[int]string, spec.Replicas),
		PerReplica:   perReplica,
	}
	used := sets.NewString()
	for replica := 0; replica < spec.Replicas; replica++ {
		nodeID, found := p.pickNode(snapshot, candidates, perReplica, used, spec.AntiAffinity())
		if !found {
			snapshot.Revert()
			return Placement{}, scheduling.UnschedulableErr.Errorf(
				"replica %d of %d does not fit any candidate node",
				replica+1,
				spec.Replicas,
			)
		}
		if err = snapshot.AddReplica(nodeID, perReplica); err != nil {
			snapshot.Revert()
			return Placement{}, err
		}
		placement.Nodes[replica] = nodeID
		used.Insert(nodeID)
		p.logger.V(3).Info("replica assigned", "deployment", deploymentID, "replica", replica, "node", nodeID)
	}

	snapshot.Commit()
	return placement, nil
}

// candidateNodes filters the snapshot by health, accelerator class and
// constraint labels.
func (p Planner) candidateNodes(spec api.DeploymentSpec, snapshot *Snapshot) []string {
	class, _, err := spec.Resources.AcceleratorClass()
	if err != nil {
		return nil
	}
	selector := labels.SelectorFromSet(spec.NodeLabels())

	res := make([]string, 0, len(snapshot.GetNodes()))
	for id, node := range snapshot.GetNodes() {
		if !node.IsSchedulable() {
			continue
		}
		if node.Labels[constant.LabelAccelerator] != class {
			continue
		}
		if !selector.Matches(labels.Set(node.Labels)) {
			continue
		}
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// pickNode returns the feasible candidate with the most free capacity,
// honoring anti-affinity against nodes already holding a replica.
func (p Planner) pickNode(
	snapshot *Snapshot,
	candidates []string,
	request resource.Resource,
	used sets.String,
	antiAffinity bool,
) (string, bool) {
	feasible := make([]inventory.Node, 0, len(candidates))
	for _, id := range candidates {
		if antiAffinity && used.Has(id) {
			continue
		}
		node, found := snapshot.GetNode(id)
		if !found {
			continue
		}
		if request.Fits(node.Free()) {
			feasible = append(feasible, node)
		}
	}
	if len(feasible) == 0 {
		return "", false
	}
	sort.SliceStable(feasible, func(i, j int) bool {
		return moreFree(feasible[i], feasible[j])
	})
	return feasible[0].ID, true
}

// moreFree orders nodes by descending free capacity, dimension by dimension,
// with the node id as a deterministic tie-breaker.
func moreFree(n1 inventory.Node, n2 inventory.Node) bool {
	f1, f2 := n1.Free(), n2.Free()
	if f1.GPUs != f2.GPUs {
		return f1.GPUs > f2.GPUs
	}
	if f1.GPUMemory != f2.GPUMemory {
		return f1.GPUMemory > f2.GPUMemory
	}
	if f1.MilliCPU != f2.MilliCPU {
		return f1.MilliCPU > f2.MilliCPU
	}
	if f1.Memory != f2.Memory {
		return f1.Memory > f2.Memory
	}
	return n1.ID < n2.ID
}
