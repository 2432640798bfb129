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

package scheduler

import (
	"time"

	"github.com/embeddedllm/mipod/internal/planning"
	"github.com/embeddedllm/mipod/internal/supervisor"
	"github.com/embeddedllm/mipod/pkg/api"
)

// Deployment aggregates an accepted spec, its placement and the pods the
// supervisor runs for it. Its lifecycle spans from acceptance to explicit
// termination.
type Deployment struct {
	ID        string
	Spec      api.DeploymentSpec
	Placement planning.Placement
	CreatedAt time.Time
}

type DeploymentPhase string

const (
	PhasePending    DeploymentPhase = "pending"
	PhaseStarting   DeploymentPhase = "starting"
	PhaseReady      DeploymentPhase = "ready"
	PhaseDegraded   DeploymentPhase = "degraded"
	PhaseFailed     DeploymentPhase = "failed"
	PhaseTerminated DeploymentPhase = "terminated"
)

type DeploymentStatus struct {
	ID    string                 `json:"id"`
	Phase DeploymentPhase        `json:"phase"`
	Pods  []supervisor.PodStatus `json:"pods"`
}

// aggregatePhase folds the pod states into a single deployment phase:
// failures dominate degradation, degradation dominates readiness.
func aggregatePhase(pods []supervisor.PodStatus) DeploymentPhase {
	if len(pods) == 0 {
		return PhasePending
	}
	var terminated, ready, starting, degraded, failed int
	for _, p := range pods {
		switch p.State {
		case supervisor.PodTerminated:
			terminated++
		case supervisor.PodReady:
			ready++
		case supervisor.PodStarting:
			starting++
		case supervisor.PodDegraded:
			degraded++
		case supervisor.PodFailed:
			failed++
		}
	}
	switch {
	case terminated == len(pods):
		return PhaseTerminated
	case failed > 0:
		return PhaseFailed
	case degraded > 0:
		return PhaseDegraded
	case ready == len(pods):
		return PhaseReady
	case starting > 0:
		return PhaseStarting
	default:
		return PhasePending
	}
}
