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

package validation_test

import (
	"testing"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/validation"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"github.com/embeddedllm/mipod/pkg/test/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	fleet := []inventory.Node{
		factory.BuildNode("node-1").WithGPUCapacity(8, 1536*1024*1024*1024).Get(),
	}

	testCases := []struct {
		name        string
		spec        api.DeploymentSpec
		errContains string
	}{
		{
			name: "Valid spec",
			spec: factory.BuildSpec("llama").Get(),
		},
		{
			name:        "Missing model name",
			spec:        factory.BuildSpec(" ").Get(),
			errContains: "model.name",
		},
		{
			name:        "Image without docker prefix",
			spec:        factory.BuildSpec("llama").WithImage("rocm/vllm:latest").Get(),
			errContains: "docker:",
		},
		{
			name:        "Image without tag",
			spec:        factory.BuildSpec("llama").WithImage("docker:rocm/vllm").Get(),
			errContains: "missing a tag",
		},
		{
			name:        "Zero replicas",
			spec:        factory.BuildSpec("llama").WithReplicas(0).Get(),
			errContains: "replicas",
		},
		{
			name: "Unparsable resource quantity",
			spec: factory.BuildSpec("llama").WithResources(api.ResourceSpec{
				Accelerators: "MI300X:1",
				GPUMemory:    "sixty-four",
				CPUs:         "8",
				Memory:       "32Gi",
			}).Get(),
			errContains: "resources",
		},
		{
			name: "Per-replica request larger than any node",
			spec: factory.BuildSpec("llama").
				WithAccelerators("MI300X:16").
				Get(),
			errContains: "exceeds the total capacity",
		},
		{
			name: "Unknown accelerator class",
			spec: factory.BuildSpec("llama").
				WithAccelerators("H100:1").
				Get(),
			errContains: "unknown accelerator class",
		},
		{
			name: "Unknown constraint label",
			spec: factory.BuildSpec("llama").
				WithNodeLabel("mipod.ai/rack", "r12").
				Get(),
			errContains: "unknown constraint label",
		},
		{
			name: "Negative max restarts",
			spec: factory.BuildSpec("llama").
				WithMaxRestarts(-1).
				Get(),
			errContains: "maxRestarts",
		},
		{
			name: "Zero max probe misses",
			spec: factory.BuildSpec("llama").
				WithMaxProbeMisses(0).
				Get(),
			errContains: "maxProbeMisses",
		},
	}

	validator := validation.NewValidator()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.spec, fleet)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, scheduling.IsValidation(err))
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateInvalidPortAndProbe(t *testing.T) {
	fleet := []inventory.Node{
		factory.BuildNode("node-1").WithGPUCapacity(8, 1536*1024*1024*1024).Get(),
	}
	validator := validation.NewValidator()

	spec := factory.BuildSpec("llama").Get()
	spec.Service.Port = 0
	err := validator.Validate(spec, fleet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.port")

	spec = factory.BuildSpec("llama").Get()
	spec.Service.ReadinessProbe = "health"
	err = validator.Validate(spec, fleet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readinessProbe")
}

func TestValidateFeasibilityIgnoresAllocations(t *testing.T) {
	// a fully allocated fleet is still feasible: feasibility is about
	// capacity, free space is the planner's concern
	node := factory.BuildNode("node-1").WithGPUCapacity(8, 1536*1024*1024*1024).Get()
	node.Allocated = node.Capacity
	fleet := []inventory.Node{node}
	spec := factory.BuildSpec("llama").Get()
	assert.NoError(t, validation.NewValidator().Validate(spec, fleet))
}

func TestValidatorKnowsLabelTaxonomy(t *testing.T) {
	fleet := []inventory.Node{
		factory.BuildNode("node-1").
			WithLabel(constant.LabelRegion, "us-east").
			WithLabel(constant.LabelZone, "us-east-1a").
			WithLabel(constant.LabelNodePool, "inference").
			WithGPUCapacity(8, 1536*1024*1024*1024).
			Get(),
	}
	spec := factory.BuildSpec("llama").
		WithNodeLabel(constant.LabelRegion, "us-east").
		WithNodeLabel(constant.LabelZone, "us-east-1a").
		WithNodeLabel(constant.LabelNodePool, "inference").
		Get()
	assert.NoError(t, validation.NewValidator().Validate(spec, fleet))
}
