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

package resource_test

import (
	"testing"

	"github.com/embeddedllm/mipod/pkg/resource"
	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	testCases := []struct {
		name     string
		r1       resource.Resource
		r2       resource.Resource
		expected resource.Resource
	}{
		{
			name:     "Both empty",
			r1:       resource.Resource{},
			r2:       resource.Resource{},
			expected: resource.Resource{},
		},
		{
			name:     "All dimensions add up",
			r1:       resource.Resource{GPUs: 2, GPUMemory: 100, MilliCPU: 4000, Memory: 1000},
			r2:       resource.Resource{GPUs: 1, GPUMemory: 50, MilliCPU: 1000, Memory: 500},
			expected: resource.Resource{GPUs: 3, GPUMemory: 150, MilliCPU: 5000, Memory: 1500},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resource.Sum(tt.r1, tt.r2))
		})
	}
}

func TestSubtractNonNegative(t *testing.T) {
	testCases := []struct {
		name     string
		r1       resource.Resource
		r2       resource.Resource
		expected resource.Resource
	}{
		{
			name:     "Plain subtraction",
			r1:       resource.Resource{GPUs: 4, GPUMemory: 200, MilliCPU: 8000, Memory: 2000},
			r2:       resource.Resource{GPUs: 1, GPUMemory: 50, MilliCPU: 1000, Memory: 500},
			expected: resource.Resource{GPUs: 3, GPUMemory: 150, MilliCPU: 7000, Memory: 1500},
		},
		{
			name:     "Negative dimensions floored at zero",
			r1:       resource.Resource{GPUs: 1, GPUMemory: 10, MilliCPU: 100, Memory: 100},
			r2:       resource.Resource{GPUs: 2, GPUMemory: 50, MilliCPU: 50, Memory: 500},
			expected: resource.Resource{GPUs: 0, GPUMemory: 0, MilliCPU: 50, Memory: 0},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resource.SubtractNonNegative(tt.r1, tt.r2))
		})
	}
}

func TestFits(t *testing.T) {
	testCases := []struct {
		name      string
		request   resource.Resource
		available resource.Resource
		expected  bool
	}{
		{
			name:      "Empty request always fits",
			request:   resource.Resource{},
			available: resource.Resource{},
			expected:  true,
		},
		{
			name:      "Exact fit",
			request:   resource.Resource{GPUs: 4, GPUMemory: 100, MilliCPU: 1000, Memory: 100},
			available: resource.Resource{GPUs: 4, GPUMemory: 100, MilliCPU: 1000, Memory: 100},
			expected:  true,
		},
		{
			name:      "A single exceeding dimension rejects the fit",
			request:   resource.Resource{GPUs: 1, GPUMemory: 101, MilliCPU: 10, Memory: 10},
			available: resource.Resource{GPUs: 4, GPUMemory: 100, MilliCPU: 1000, Memory: 100},
			expected:  false,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.request.Fits(tt.available))
		})
	}
}

func TestMul(t *testing.T) {
	r := resource.Resource{GPUs: 2, GPUMemory: 10, MilliCPU: 500, Memory: 100}
	assert.Equal(t, resource.Resource{GPUs: 6, GPUMemory: 30, MilliCPU: 1500, Memory: 300}, resource.Mul(r, 3))
	assert.Equal(t, resource.Resource{}, resource.Mul(r, 0))
}

func TestAnyNegative(t *testing.T) {
	assert.False(t, resource.Resource{}.AnyNegative())
	assert.False(t, resource.Resource{GPUs: 1}.AnyNegative())
	assert.True(t, resource.Resource{Memory: -1}.AnyNegative())
	assert.True(t, resource.Subtract(resource.Resource{}, resource.Resource{GPUs: 1}).AnyNegative())
}

func TestParseQuantity(t *testing.T) {
	v, err := resource.ParseQuantity("64Gi")
	assert.NoError(t, err)
	assert.Equal(t, int64(64*1024*1024*1024), v)

	_, err = resource.ParseQuantity("not-a-quantity")
	assert.Error(t, err)
}

func TestParseCPUQuantity(t *testing.T) {
	v, err := resource.ParseCPUQuantity("8")
	assert.NoError(t, err)
	assert.Equal(t, int64(8000), v)

	v, err = resource.ParseCPUQuantity("500m")
	assert.NoError(t, err)
	assert.Equal(t, int64(500), v)
}
