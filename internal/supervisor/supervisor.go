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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/planning"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/resource"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"github.com/embeddedllm/mipod/pkg/util"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

type Config struct {
	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	StartTimeout   time.Duration
	StopTimeout    time.Duration
	RestartBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = constant.DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = constant.DefaultProbeTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = constant.DefaultStartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = constant.DefaultProbeTimeout
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = constant.DefaultRestartBackoff
	}
	return c
}

type podHandle struct {
	pod            Pod
	spec           StartSpec
	node           inventory.Node
	perReplica     resource.Resource
	maxRestarts    int
	maxProbeMisses int
	latency        *util.LatencyTracker

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor drives every placed pod through its lifecycle state machine,
// one independent loop per pod. It is the only writer of pod state.
// Termination is cooperative: a terminate request cancels the pod's context,
// which the loop observes at its next suspension point.
type Supervisor struct {
	runtime   NodeRuntime
	inventory *inventory.Inventory
	config    Config
	logger    logr.Logger

	pods map[string][]*podHandle
	mtx  sync.RWMutex
}

func New(runtime NodeRuntime, inv *inventory.Inventory, logger logr.Logger, config Config) *Supervisor {
	return &Supervisor{
		runtime:   runtime,
		inventory: inv,
		config:    config.withDefaults(),
		logger:    logger,
		pods:      make(map[string][]*podHandle),
	}
}

// Manage creates one pending pod per replica of the placement and starts
// their lifecycle loops. The pods' reservations must already be committed.
func (s *Supervisor) Manage(
	ctx context.Context,
	deploymentID string,
	spec api.DeploymentSpec,
	placement planning.Placement,
) error {
	handles := make([]*podHandle, 0, spec.Replicas)
	for replica := 0; replica < spec.Replicas; replica++ {
		nodeID, found := placement.NodeOf(replica)
		if !found {
			return scheduling.InconsistentStateErr.Errorf(
				"placement of deployment %s does not cover replica %d",
				deploymentID,
				replica,
			)
		}
		node, found := s.inventory.GetNode(nodeID)
		if !found {
			return scheduling.InconsistentStateErr.Errorf(
				"placement of deployment %s references unknown node %s",
				deploymentID,
				nodeID,
			)
		}
		podCtx, cancel := context.WithCancel(ctx)
		handles = append(handles, &podHandle{
			pod: Pod{
				DeploymentID: deploymentID,
				Replica:      replica,
				NodeID:       nodeID,
				State:        PodPending,
			},
			spec:           NewStartSpec(deploymentID, replica, spec),
			node:           node,
			perReplica:     placement.PerReplica,
			maxRestarts:    spec.MaxRestarts(),
			maxProbeMisses: spec.MaxProbeMisses(),
			latency:        util.NewLatencyTracker(100),
			ctx:            podCtx,
			cancel:         cancel,
			done:           make(chan struct{}),
		})
	}

	s.mtx.Lock()
	if _, exists := s.pods[deploymentID]; exists {
		s.mtx.Unlock()
		for _, h := range handles {
			h.cancel()
		}
		return scheduling.InconsistentStateErr.Errorf(
			"deployment %s is already supervised",
			deploymentID,
		)
	}
	s.pods[deploymentID] = handles
	s.mtx.Unlock()

	for _, h := range handles {
		go s.run(h.ctx, h)
	}
	return nil
}

// Status returns the current view of all pods of a deployment.
func (s *Supervisor) Status(deploymentID string) ([]PodStatus, bool) {
	s.mtx.RLock()
	handles, found := s.pods[deploymentID]
	s.mtx.RUnlock()
	if !found {
		return nil, false
	}
	res := make([]PodStatus, 0, len(handles))
	for _, h := range handles {
		pod := s.podView(h)
		res = append(res, PodStatus{
			Replica:      pod.Replica,
			NodeID:       pod.NodeID,
			State:        pod.State,
			StartedAt:    pod.StartedAt,
			Retries:      pod.Retries,
			LastError:    pod.LastError,
			ProbeLatency: h.latency.Summary(),
		})
	}
	return res, true
}

// Terminate requests cooperative shutdown of all pods of a deployment.
// Each loop observes the cancellation at its next check interval, stops the
// pod and releases its reservation.
func (s *Supervisor) Terminate(deploymentID string) error {
	s.mtx.RLock()
	handles, found := s.pods[deploymentID]
	s.mtx.RUnlock()
	if !found {
		return scheduling.NotFoundErr.Errorf("deployment %s is not supervised", deploymentID)
	}
	for _, h := range handles {
		h.cancel()
	}
	return nil
}

// Drop forgets a deployment whose pod loops have all exited, so the same id
// can be supervised again with a fresh placement.
func (s *Supervisor) Drop(deploymentID string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	handles, found := s.pods[deploymentID]
	if !found {
		return scheduling.NotFoundErr.Errorf("deployment %s is not supervised", deploymentID)
	}
	for _, h := range handles {
		select {
		case <-h.done:
		default:
			return scheduling.InconsistentStateErr.Errorf(
				"pod %d of deployment %s is still running",
				h.pod.Replica,
				deploymentID,
			)
		}
	}
	delete(s.pods, deploymentID)
	return nil
}

// Wait blocks until every pod loop of the deployment has exited.
func (s *Supervisor) Wait(deploymentID string) {
	s.mtx.RLock()
	handles := s.pods[deploymentID]
	s.mtx.RUnlock()
	for _, h := range handles {
		<-h.done
	}
}

// Shutdown terminates all supervised pods and waits for their loops to
// drain, bounded by the provided context.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mtx.RLock()
	all := make([]*podHandle, 0)
	for _, handles := range s.pods {
		all = append(all, handles...)
	}
	s.mtx.RUnlock()

	for _, h := range all {
		h.cancel()
	}
	for _, h := range all {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Supervisor) run(ctx context.Context, h *podHandle) {
	defer close(h.done)
	logger := s.logger.WithValues(
		"deployment", h.pod.DeploymentID,
		"replica", h.pod.Replica,
		"node", h.pod.NodeID,
	)
	backoff := wait.Backoff{
		Duration: s.config.RestartBackoff,
		Factor:   2,
		Steps:    util.Max(h.maxRestarts, 1),
	}

	for {
		switch s.podView(h).State {
		case PodPending:
			s.transition(h, PodStarting, "")

		case PodStarting:
			startCtx, cancel := context.WithTimeout(ctx, s.config.StartTimeout)
			err := s.runtime.StartPod(startCtx, h.node, h.spec)
			cancel()
			if ctx.Err() != nil {
				s.finalize(h, logger)
				return
			}
			if err != nil {
				logger.V(1).Info("pod start failed", "error", err.Error())
				s.transition(h, PodFailed, fmt.Sprintf("start failed: %v", err))
				continue
			}
			s.markStarted(h)
			logger.V(1).Info("pod started")

		case PodReady, PodDegraded:
			if !s.sleep(ctx, s.config.ProbeInterval) {
				s.finalize(h, logger)
				return
			}
			probeCtx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
			begin := time.Now()
			err := s.runtime.ProbeLiveness(probeCtx, h.node, h.spec)
			cancel()
			if ctx.Err() != nil {
				s.finalize(h, logger)
				return
			}
			if err == nil {
				h.latency.Observe(time.Since(begin))
				s.markProbeSuccess(h)
				continue
			}
			missed := s.markProbeMiss(h)
			logger.V(1).Info("liveness probe missed", "consecutiveMisses", missed, "error", err.Error())

		case PodFailed:
			// Probe-budget exhaustion is terminal: restarting a pod the
			// node keeps reporting dead only causes a restart storm.
			// The retry budget covers start failures.
			pod := s.podView(h)
			if pod.Retries >= h.maxRestarts || pod.ProbeMisses >= h.maxProbeMisses {
				// Terminal: the reservation is held until explicit
				// termination by the operator.
				logger.V(1).Info("pod failed with no retries left")
				<-ctx.Done()
				s.finalize(h, logger)
				return
			}
			if !s.sleep(ctx, backoff.Step()) {
				s.finalize(h, logger)
				return
			}
			s.markRetry(h)
			logger.V(1).Info("restarting pod", "retries", s.podView(h).Retries)

		case PodTerminated:
			return
		}
	}
}

// finalize stops the pod, releases its reservation and marks it terminated.
// Runs exactly once per pod, right before the loop exits.
func (s *Supervisor) finalize(h *podHandle, logger logr.Logger) {
	stopCtx, cancel := context.WithTimeout(context.Background(), s.config.StopTimeout)
	defer cancel()
	if err := s.runtime.StopPod(stopCtx, h.node, h.spec); err != nil {
		logger.V(1).Info("stop pod failed", "error", err.Error())
	}
	if err := s.inventory.Release(h.node.ID, h.perReplica); err != nil {
		logger.Error(err, "failed to release pod reservation")
	}
	s.transition(h, PodTerminated, "")
	logger.V(1).Info("pod terminated")
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Supervisor) podView(h *podHandle) Pod {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return h.pod
}

func (s *Supervisor) transition(h *podHandle, state PodState, lastError string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	h.pod.State = state
	if lastError != "" {
		h.pod.LastError = lastError
	}
}

func (s *Supervisor) markStarted(h *podHandle) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	h.pod.State = PodReady
	h.pod.StartedAt = time.Now()
	h.pod.ProbeMisses = 0
}

func (s *Supervisor) markProbeSuccess(h *podHandle) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	h.pod.State = PodReady
	h.pod.ProbeMisses = 0
}

func (s *Supervisor) markProbeMiss(h *podHandle) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	h.pod.ProbeMisses++
	if h.pod.ProbeMisses >= h.maxProbeMisses {
		h.pod.State = PodFailed
		h.pod.LastError = fmt.Sprintf(
			"liveness probe missed %d consecutive times",
			h.pod.ProbeMisses,
		)
	} else {
		h.pod.State = PodDegraded
	}
	return h.pod.ProbeMisses
}

func (s *Supervisor) markRetry(h *podHandle) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	h.pod.Retries++
	h.pod.State = PodStarting
	h.pod.ProbeMisses = 0
}
