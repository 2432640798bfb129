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

package constant

import "time"

// Accelerator classes of the AMD Instinct fleet. The class advertised by a
// node (LabelAccelerator) must match the class requested by a deployment.
const (
	AcceleratorMI200  = "MI200"
	AcceleratorMI210  = "MI210"
	AcceleratorMI250  = "MI250"
	AcceleratorMI300X = "MI300X"
)

const (
	// LabelAccelerator is the node label carrying the accelerator class
	LabelAccelerator = "mipod.ai/accelerator"
	// LabelRegion is the node label carrying the region name
	LabelRegion = "mipod.ai/region"
	// LabelZone is the node label carrying the availability zone
	LabelZone = "mipod.ai/zone"
	// LabelNodePool is the node label carrying the pool a node belongs to
	LabelNodePool = "mipod.ai/pool"
)

const (
	// DefaultMaxRestarts bounds failed -> starting transitions per pod
	DefaultMaxRestarts = 3
	// DefaultMaxProbeMisses is the number of consecutive missed liveness
	// probes after which a degraded pod is declared failed
	DefaultMaxProbeMisses = 3
	// DefaultPlanAttempts bounds re-planning after a reservation commit
	// loses a race to a concurrent deployment
	DefaultPlanAttempts = 3

	DefaultProbeInterval  = 10 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultStartTimeout   = 2 * time.Minute
	DefaultRestartBackoff = 2 * time.Second

	DefaultServicePort   = 8000
	DefaultReadinessPath = "/health"
)
