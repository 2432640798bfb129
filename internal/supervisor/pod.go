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

package supervisor

import (
	"time"

	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/util"
)

type PodState string

const (
	PodPending    PodState = "pending"
	PodStarting   PodState = "starting"
	PodReady      PodState = "ready"
	PodDegraded   PodState = "degraded"
	PodFailed     PodState = "failed"
	PodTerminated PodState = "terminated"
)

// Pod is one replica instance of a deployment bound to a node. Pods are
// owned exclusively by the Supervisor and mutated only through state-machine
// transitions.
type Pod struct {
	DeploymentID string
	Replica      int
	NodeID       string
	State        PodState
	StartedAt    time.Time
	Retries      int
	ProbeMisses  int
	LastError    string
}

// PodStatus is the externally observable view of a pod.
type PodStatus struct {
	Replica      int                 `json:"replica"`
	NodeID       string              `json:"nodeId"`
	State        PodState            `json:"state"`
	StartedAt    time.Time           `json:"startedAt,omitempty"`
	Retries      int                 `json:"retries"`
	LastError    string              `json:"lastError,omitempty"`
	ProbeLatency util.LatencySummary `json:"probeLatency"`
}

// StartSpec is the payload handed to a node's runtime agent to start one
// serving replica.
type StartSpec struct {
	DeploymentID  string            `json:"deploymentId"`
	Replica       int               `json:"replica"`
	ModelName     string            `json:"modelName"`
	Image         string            `json:"image"`
	Args          string            `json:"args,omitempty"`
	HFToken       string            `json:"hfToken,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Port          int               `json:"port"`
	ReadinessPath string            `json:"readinessPath"`
}

func NewStartSpec(deploymentID string, replica int, spec api.DeploymentSpec) StartSpec {
	return StartSpec{
		DeploymentID:  deploymentID,
		Replica:       replica,
		ModelName:     spec.Model.Name,
		Image:         spec.Model.Image,
		Args:          spec.Model.Args,
		HFToken:       spec.Model.HFToken,
		Env:           util.MergeMaps(api.DefaultServingEnv(), spec.Env),
		Port:          spec.Service.Port,
		ReadinessPath: spec.Service.ReadinessProbe,
	}
}
