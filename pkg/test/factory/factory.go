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

package factory

import (
	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/resource"
)

type nodeBuilder struct {
	inventory.Node
}

func BuildNode(id string) *nodeBuilder {
	return &nodeBuilder{
		inventory.Node{
			ID:      id,
			Address: id + ".fleet.local:7070",
			Labels: map[string]string{
				constant.LabelAccelerator: constant.AcceleratorMI300X,
			},
			Health: inventory.HealthHealthy,
		},
	}
}

func (b *nodeBuilder) WithAddress(address string) *nodeBuilder {
	b.Node.Address = address
	return b
}

func (b *nodeBuilder) WithLabel(label, value string) *nodeBuilder {
	if b.Labels == nil {
		b.Labels = make(map[string]string)
	}
	b.Labels[label] = value
	return b
}

func (b *nodeBuilder) WithAccelerator(class string) *nodeBuilder {
	return b.WithLabel(constant.LabelAccelerator, class)
}

func (b *nodeBuilder) WithCapacity(capacity resource.Resource) *nodeBuilder {
	b.Node.Capacity = capacity
	return b
}

func (b *nodeBuilder) WithGPUCapacity(gpus int64, gpuMemory int64) *nodeBuilder {
	b.Node.Capacity = resource.Resource{
		GPUs:      gpus,
		GPUMemory: gpuMemory,
		MilliCPU:  64000,
		Memory:    512 * 1024 * 1024 * 1024,
	}
	return b
}

func (b *nodeBuilder) WithAllocated(allocated resource.Resource) *nodeBuilder {
	b.Node.Allocated = allocated
	return b
}

func (b *nodeBuilder) WithHealth(health inventory.Health) *nodeBuilder {
	b.Node.Health = health
	return b
}

func (b *nodeBuilder) Get() inventory.Node {
	return b.Node
}

type specBuilder struct {
	api.DeploymentSpec
}

func BuildSpec(modelName string) *specBuilder {
	return &specBuilder{
		api.DeploymentSpec{
			Model: api.ModelSpec{
				Name:  modelName,
				Image: "docker:rocm/vllm:latest",
			},
			Replicas: 1,
			Resources: api.ResourceSpec{
				Accelerators: constant.AcceleratorMI300X + ":1",
				GPUMemory:    "64Gi",
				CPUs:         "8",
				Memory:       "32Gi",
			},
			Service: api.ServiceSpec{
				Port:           constant.DefaultServicePort,
				ReadinessProbe: constant.DefaultReadinessPath,
			},
		},
	}
}

func (b *specBuilder) WithReplicas(replicas int) *specBuilder {
	b.Replicas = replicas
	return b
}

func (b *specBuilder) WithImage(image string) *specBuilder {
	b.Model.Image = image
	return b
}

func (b *specBuilder) WithAccelerators(accelerators string) *specBuilder {
	b.Resources.Accelerators = accelerators
	return b
}

func (b *specBuilder) WithResources(resources api.ResourceSpec) *specBuilder {
	b.Resources = resources
	return b
}

func (b *specBuilder) WithAntiAffinity() *specBuilder {
	if b.Constraints == nil {
		b.Constraints = &api.Constraints{}
	}
	b.Constraints.AntiAffinity = true
	return b
}

func (b *specBuilder) WithNodeLabel(label, value string) *specBuilder {
	if b.Constraints == nil {
		b.Constraints = &api.Constraints{}
	}
	if b.Constraints.NodeLabels == nil {
		b.Constraints.NodeLabels = make(map[string]string)
	}
	b.Constraints.NodeLabels[label] = value
	return b
}

func (b *specBuilder) WithMaxRestarts(maxRestarts int) *specBuilder {
	if b.RestartPolicy == nil {
		b.RestartPolicy = &api.RestartPolicy{}
	}
	b.RestartPolicy.MaxRestarts = &maxRestarts
	return b
}

func (b *specBuilder) WithMaxProbeMisses(maxProbeMisses int) *specBuilder {
	if b.RestartPolicy == nil {
		b.RestartPolicy = &api.RestartPolicy{}
	}
	b.RestartPolicy.MaxProbeMisses = &maxProbeMisses
	return b
}

func (b *specBuilder) Get() api.DeploymentSpec {
	return b.DeploymentSpec
}
