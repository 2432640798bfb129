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

package resource

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Resource is the capacity vector tracked for every node and requested by
// every replica: GPU devices, GPU memory, CPU and system memory.
// GPUMemory and Memory are bytes, MilliCPU is millicores.
type Resource struct {
	GPUs      int64
	GPUMemory int64
	MilliCPU  int64
	Memory    int64
}

func Sum(r1 Resource, r2 Resource) Resource {
	return Resource{
		GPUs:      r1.GPUs + r2.GPUs,
		GPUMemory: r1.GPUMemory + r2.GPUMemory,
		MilliCPU:  r1.MilliCPU + r2.MilliCPU,
		Memory:    r1.Memory + r2.Memory,
	}
}

func Subtract(r1 Resource, r2 Resource) Resource {
	return Resource{
		GPUs:      r1.GPUs - r2.GPUs,
		GPUMemory: r1.GPUMemory - r2.GPUMemory,
		MilliCPU:  r1.MilliCPU - r2.MilliCPU,
		Memory:    r1.Memory - r2.Memory,
	}
}

// SubtractNonNegative subtracts r2 from r1, flooring each dimension at zero.
func SubtractNonNegative(r1 Resource, r2 Resource) Resource {
	res := Subtract(r1, r2)
	if res.GPUs < 0 {
		res.GPUs = 0
	}
	if res.GPUMemory < 0 {
		res.GPUMemory = 0
	}
	if res.MilliCPU < 0 {
		res.MilliCPU = 0
	}
	if res.Memory < 0 {
		res.Memory = 0
	}
	return res
}

func Mul(r Resource, factor int64) Resource {
	return Resource{
		GPUs:      r.GPUs * factor,
		GPUMemory: r.GPUMemory * factor,
		MilliCPU:  r.MilliCPU * factor,
		Memory:    r.Memory * factor,
	}
}

// Fits returns true if r does not exceed available on any dimension.
func (r Resource) Fits(available Resource) bool {
	if r.GPUs > available.GPUs {
		return false
	}
	if r.GPUMemory > available.GPUMemory {
		return false
	}
	if r.MilliCPU > available.MilliCPU {
		return false
	}
	return r.Memory <= available.Memory
}

func (r Resource) IsZero() bool {
	return r == Resource{}
}

// AnyNegative returns true if any dimension went below zero. A negative
// dimension is always an accounting bug, never a valid state.
func (r Resource) AnyNegative() bool {
	return r.GPUs < 0 || r.GPUMemory < 0 || r.MilliCPU < 0 || r.Memory < 0
}

func (r Resource) String() string {
	return fmt.Sprintf(
		"gpus=%d gpuMemory=%s cpu=%dm memory=%s",
		r.GPUs,
		resource.NewQuantity(r.GPUMemory, resource.BinarySI).String(),
		r.MilliCPU,
		resource.NewQuantity(r.Memory, resource.BinarySI).String(),
	)
}

// ParseQuantity parses a Kubernetes-style quantity string (e.g. "64Gi", "8")
// into its integer value.
func ParseQuantity(value string) (int64, error) {
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, err
	}
	return q.Value(), nil
}

// ParseCPUQuantity parses a CPU quantity string (e.g. "8", "500m") into
// millicores.
func ParseCPUQuantity(value string) (int64, error) {
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, err
	}
	return q.MilliValue(), nil
}
