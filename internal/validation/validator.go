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

package validation

import (
	"strings"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Validator checks a deployment spec for internal consistency and
// feasibility against the fleet. Validation is pure: it never reserves
// resources and stops at the first failing check.
type Validator struct {
	labelTaxonomy      sets.String
	acceleratorClasses sets.String
}

func NewValidator() Validator {
	return Validator{
		labelTaxonomy: sets.NewString(
			constant.LabelAccelerator,
			constant.LabelRegion,
			constant.LabelZone,
			constant.LabelNodePool,
		),
		acceleratorClasses: sets.NewString(
			constant.AcceleratorMI200,
			constant.AcceleratorMI210,
			constant.AcceleratorMI250,
			constant.AcceleratorMI300X,
		),
	}
}

func (v Validator) Validate(spec api.DeploymentSpec, nodes []inventory.Node) error {
	if err := v.validateRequiredFields(spec); err != nil {
		return err
	}
	if spec.Replicas < 1 {
		return scheduling.ValidationErr.Errorf("replicas must be >= 1, got %d", spec.Replicas)
	}
	if err := v.validateFeasibility(spec, nodes); err != nil {
		return err
	}
	return v.validateConstraints(spec)
}

func (v Validator) validateRequiredFields(spec api.DeploymentSpec) error {
	if strings.TrimSpace(spec.Model.Name) == "" {
		return scheduling.ValidationErr.Errorf("model.name is required")
	}
	if strings.TrimSpace(spec.Model.Image) == "" {
		return scheduling.ValidationErr.Errorf("model.image is required")
	}
	if !strings.HasPrefix(spec.Model.Image, "docker:") {
		return scheduling.ValidationErr.Errorf(
			"model.image must use the docker:<repository>/<image>:<tag> format, got %q",
			spec.Model.Image,
		)
	}
	if !strings.Contains(strings.TrimPrefix(spec.Model.Image, "docker:"), ":") {
		return scheduling.ValidationErr.Errorf("model.image %q is missing a tag", spec.Model.Image)
	}
	if _, err := spec.Resources.PerReplica(); err != nil {
		return scheduling.ValidationErr.Errorf("resources: %v", err)
	}
	if spec.Service.Port <= 0 || spec.Service.Port > 65535 {
		return scheduling.ValidationErr.Errorf("service.port must be in (0, 65535], got %d", spec.Service.Port)
	}
	if !strings.HasPrefix(spec.Service.ReadinessProbe, "/") {
		return scheduling.ValidationErr.Errorf(
			"service.readinessProbe must be an absolute path, got %q",
			spec.Service.ReadinessProbe,
		)
	}
	if spec.RestartPolicy != nil {
		if spec.RestartPolicy.MaxRestarts != nil && *spec.RestartPolicy.MaxRestarts < 0 {
			return scheduling.ValidationErr.Errorf("restartPolicy.maxRestarts must be >= 0")
		}
		if spec.RestartPolicy.MaxProbeMisses != nil && *spec.RestartPolicy.MaxProbeMisses < 1 {
			return scheduling.ValidationErr.Errorf("restartPolicy.maxProbeMisses must be >= 1")
		}
	}
	return nil
}

// validateFeasibility rejects requests no single node of the fleet could
// ever hold, regardless of current allocations.
func (v Validator) validateFeasibility(spec api.DeploymentSpec, nodes []inventory.Node) error {
	perReplica, err := spec.Resources.PerReplica()
	if err != nil {
		return scheduling.ValidationErr.Errorf("resources: %v", err)
	}
	for _, n := range nodes {
		if perReplica.Fits(n.Capacity) {
			return nil
		}
	}
	return scheduling.ValidationErr.Errorf(
		"per-replica request %s exceeds the total capacity of every node in the fleet",
		perReplica,
	)
}

func (v Validator) validateConstraints(spec api.DeploymentSpec) error {
	class, _, err := spec.Resources.AcceleratorClass()
	if err != nil {
		return scheduling.ValidationErr.Errorf("resources: %v", err)
	}
	if !v.acceleratorClasses.Has(class) {
		return scheduling.ValidationErr.Errorf(
			"unknown accelerator class %q, known classes: %s",
			class,
			strings.Join(v.acceleratorClasses.List(), ", "),
		)
	}
	for key := range spec.NodeLabels() {
		if !v.labelTaxonomy.Has(key) {
			return scheduling.ValidationErr.Errorf(
				"unknown constraint label %q, known labels: %s",
				key,
				strings.Join(v.labelTaxonomy.List(), ", "),
			)
		}
	}
	return nil
}
