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
	"os"

	"github.com/embeddedllm/mipod/pkg/scheduling"
	"sigs.k8s.io/yaml"
)

// ParseDeploymentSpec decodes a deployment spec from YAML (or JSON).
// Unknown fields are rejected rather than silently ignored.
func ParseDeploymentSpec(data []byte) (*DeploymentSpec, error) {
	if len(data) == 0 {
		return nil, scheduling.ValidationErr.Errorf("deployment spec is empty")
	}
	var spec DeploymentSpec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return nil, scheduling.ValidationErr.Errorf("invalid deployment spec: %v", err)
	}
	return &spec, nil
}

// LoadDeploymentSpec reads and decodes a deployment spec file.
func LoadDeploymentSpec(path string) (*DeploymentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scheduling.ValidationErr.Errorf("cannot read deployment spec: %v", err)
	}
	return ParseDeploymentSpec(data)
}
