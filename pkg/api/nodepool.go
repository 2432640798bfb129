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

package api

import (
	"fmt"
	"os"

	"github.com/embeddedllm/mipod/pkg/resource"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"sigs.k8s.io/yaml"
)

// NodePool is the initial inventory loaded at scheduler init.
type NodePool struct {
	Nodes []NodeConfig `json:"nodes"`
}

// NodeConfig describes a single GPU node of the fleet.
type NodeConfig struct {
	ID string `json:"id"`
	// Address is the host:port of the node's runtime agent
	Address  string            `json:"address"`
	Labels   map[string]string `json:"labels,omitempty"`
	Capacity CapacityConfig    `json:"capacity"`
}

type CapacityConfig struct {
	GPUs      int64  `json:"gpus"`
	GPUMemory string `json:"gpuMemory"`
	CPUs      string `json:"cpus"`
	Memory    string `json:"memory"`
}

func (c CapacityConfig) ToResource() (resource.Resource, error) {
	var res resource.Resource
	gpuMemory, err := resource.ParseQuantity(c.GPUMemory)
	if err != nil {
		return res, fmt.Errorf("invalid gpuMemory %q: %v", c.GPUMemory, err)
	}
	milliCPU, err := resource.ParseCPUQuantity(c.CPUs)
	if err != nil {
		return res, fmt.Errorf("invalid cpus %q: %v", c.CPUs, err)
	}
	memory, err := resource.ParseQuantity(c.Memory)
	if err != nil {
		return res, fmt.Errorf("invalid memory %q: %v", c.Memory, err)
	}
	return resource.Resource{
		GPUs:      c.GPUs,
		GPUMemory: gpuMemory,
		MilliCPU:  milliCPU,
		Memory:    memory,
	}, nil
}

// ParseNodePool decodes a node pool file, rejecting unknown fields.
func ParseNodePool(data []byte) (*NodePool, error) {
	var pool NodePool
	if err := yaml.UnmarshalStrict(data, &pool); err != nil {
		return nil, scheduling.ValidationErr.Errorf("invalid node pool: %v", err)
	}
	if len(pool.Nodes) == 0 {
		return nil, scheduling.ValidationErr.Errorf("node pool defines no nodes")
	}
	seen := make(map[string]struct{}, len(pool.Nodes))
	for i, n := range pool.Nodes {
		if n.ID == "" {
			return nil, scheduling.ValidationErr.Errorf("node at index %d has no id", i)
		}
		if n.Address == "" {
			return nil, scheduling.ValidationErr.Errorf("node %s has no agent address", n.ID)
		}
		if _, duplicate := seen[n.ID]; duplicate {
			return nil, scheduling.ValidationErr.Errorf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = struct{}{}
		if _, err := n.Capacity.ToResource(); err != nil {
			return nil, scheduling.ValidationErr.Errorf("node %s: %v", n.ID, err)
		}
	}
	return &pool, nil
}

// LoadNodePool reads and decodes a node pool file.
func LoadNodePool(path string) (*NodePool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scheduling.ValidationErr.Errorf("cannot read node pool: %v", err)
	}
	return ParseNodePool(data)
}
