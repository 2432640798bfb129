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
	"strconv"
	"strings"

	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/resource"
)

// DeploymentSpec describes an LLM serving workload to place on the fleet.
// A spec is immutable once accepted by the scheduler.
type DeploymentSpec struct {
	Model         ModelSpec         `json:"model"`
	Replicas      int               `json:"replicas"`
	Resources     ResourceSpec      `json:"resources"`
	Service       ServiceSpec       `json:"service"`
	Constraints   *Constraints      `json:"constraints,omitempty"`
	RestartPolicy *RestartPolicy    `json:"restartPolicy,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

type ModelSpec struct {
	// Name is the model identifier, e.g. "meta-llama/Llama-3.1-8B-Instruct"
	Name string `json:"name"`
	// Image is the serving image, e.g. "docker:rocm/vllm:latest"
	Image string `json:"image"`
	// HFToken is an optional HuggingFace access token for gated models
	HFToken string `json:"hfToken,omitempty"`
	// Args are extra arguments appended to the serving command line
	Args string `json:"args,omitempty"`
}

// ResourceSpec is the per-replica resource request. Accelerators uses the
// "<class>:<count>" form, e.g. "MI300X:2".
type ResourceSpec struct {
	Accelerators string `json:"accelerators"`
	GPUMemory    string `json:"gpuMemory"`
	CPUs         string `json:"cpus"`
	Memory       string `json:"memory"`
}

type ServiceSpec struct {
	Port           int    `json:"port"`
	ReadinessProbe string `json:"readinessProbe"`
}

type Constraints struct {
	// NodeLabels restricts placement to nodes carrying all the given labels
	NodeLabels map[string]string `json:"nodeLabels,omitempty"`
	// AntiAffinity forbids two replicas of the same deployment on one node
	AntiAffinity bool `json:"antiAffinity,omitempty"`
}

type RestartPolicy struct {
	MaxRestarts    *int `json:"maxRestarts,omitempty"`
	MaxProbeMisses *int `json:"maxProbeMisses,omitempty"`
}

// AcceleratorClass splits the Accelerators field into class and count.
func (r ResourceSpec) AcceleratorClass() (string, int64, error) {
	class, count, found := strings.Cut(r.Accelerators, ":")
	if !found {
		return "", 0, fmt.Errorf(
			"accelerators must use the <class>:<count> format, e.g. %q, got %q",
			constant.AcceleratorMI300X+":2",
			r.Accelerators,
		)
	}
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("accelerator count %q is not an integer", count)
	}
	return class, n, nil
}

// PerReplica converts the spec's resource request into the internal
// capacity vector.
func (r ResourceSpec) PerReplica() (resource.Resource, error) {
	var res resource.Resource
	_, gpus, err := r.AcceleratorClass()
	if err != nil {
		return res, err
	}
	gpuMemory, err := resource.ParseQuantity(r.GPUMemory)
	if err != nil {
		return res, fmt.Errorf("invalid gpuMemory %q: %v", r.GPUMemory, err)
	}
	milliCPU, err := resource.ParseCPUQuantity(r.CPUs)
	if err != nil {
		return res, fmt.Errorf("invalid cpus %q: %v", r.CPUs, err)
	}
	memory, err := resource.ParseQuantity(r.Memory)
	if err != nil {
		return res, fmt.Errorf("invalid memory %q: %v", r.Memory, err)
	}
	return resource.Resource{
		GPUs:      gpus,
		GPUMemory: gpuMemory,
		MilliCPU:  milliCPU,
		Memory:    memory,
	}, nil
}

func (s DeploymentSpec) MaxRestarts() int {
	if s.RestartPolicy != nil && s.RestartPolicy.MaxRestarts != nil {
		return *s.RestartPolicy.MaxRestarts
	}
	return constant.DefaultMaxRestarts
}

func (s DeploymentSpec) MaxProbeMisses() int {
	if s.RestartPolicy != nil && s.RestartPolicy.MaxProbeMisses != nil {
		return *s.RestartPolicy.MaxProbeMisses
	}
	return constant.DefaultMaxProbeMisses
}

func (s DeploymentSpec) AntiAffinity() bool {
	return s.Constraints != nil && s.Constraints.AntiAffinity
}

func (s DeploymentSpec) NodeLabels() map[string]string {
	if s.Constraints == nil {
		return nil
	}
	return s.Constraints.NodeLabels
}
