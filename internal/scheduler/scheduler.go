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
	"context"
	"sync"
	"time"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/planning"
	"github.com/embeddedllm/mipod/internal/supervisor"
	"github.com/embeddedllm/mipod/internal/validation"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"github.com/embeddedllm/mipod/pkg/util"
	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
)

// Scheduler is the single entry point for external callers: it validates
// specs, plans placements against the inventory and hands accepted
// deployments to the supervisor. Deploy is idempotent on the deployment id.
type Scheduler struct {
	inventory    *inventory.Inventory
	validator    validation.Validator
	planner      planning.Planner
	supervisor   *supervisor.Supervisor
	logger       logr.Logger
	planAttempts int

	deployments map[string]*Deployment
	mtx         sync.RWMutex

	// ctx bounds the lifetime of every pod loop; Shutdown cancels it
	ctx    context.Context
	cancel context.CancelFunc
}

func New(
	logger logr.Logger,
	inv *inventory.Inventory,
	runtime supervisor.NodeRuntime,
	supervisorConfig supervisor.Config,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		inventory:    inv,
		validator:    validation.NewValidator(),
		planner:      planning.NewPlanner(logger.WithName("Planner")),
		supervisor:   supervisor.New(runtime, inv, logger.WithName("Supervisor"), supervisorConfig),
		logger:       logger,
		planAttempts: constant.DefaultPlanAttempts,
		deployments:  make(map[string]*Deployment),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Validate checks the spec without reserving anything.
func (s *Scheduler) Validate(spec api.DeploymentSpec) error {
	return s.validator.Validate(spec, s.inventory.Snapshot())
}

// Deploy validates the spec, plans and commits a placement and starts
// supervising one pod per replica. It returns as soon as the pods exist in
// pending; readiness is observed asynchronously via Status. Re-issuing
// Deploy with the same id and an identical spec returns the existing
// deployment.
func (s *Scheduler) Deploy(ctx context.Context, deploymentID string, spec api.DeploymentSpec) (*Deployment, error) {
	if deploymentID == "" {
		deploymentID = generateID(spec.Model.Name)
	}
	logger := s.logger.WithValues("deployment", deploymentID)

	if existing, err, done := s.checkExisting(deploymentID, spec); done {
		return existing, err
	}
	if err := s.Validate(spec); err != nil {
		return nil, err
	}

	placement, err := s.plan(spec, deploymentID)
	if err != nil {
		return nil, err
	}

	deployment := &Deployment{
		ID:        deploymentID,
		Spec:      spec,
		Placement: placement,
		CreatedAt: time.Now(),
	}
	s.mtx.Lock()
	if existing, found := s.deployments[deploymentID]; found {
		// a concurrent Deploy with the same id won the registration
		s.mtx.Unlock()
		s.rollback(placement)
		if cmp.Equal(existing.Spec, spec) {
			return existing, nil
		}
		return nil, scheduling.ValidationErr.Errorf(
			"deployment %s already exists with a different spec",
			deploymentID,
		)
	}
	s.deployments[deploymentID] = deployment
	s.mtx.Unlock()

	if err = s.supervisor.Manage(s.ctx, deploymentID, spec, placement); err != nil {
		s.mtx.Lock()
		delete(s.deployments, deploymentID)
		s.mtx.Unlock()
		s.rollback(placement)
		return nil, err
	}

	logger.Info(
		"deployment accepted",
		"model", spec.Model.Name,
		"replicas", spec.Replicas,
		"placement", placement.Nodes,
	)
	return deployment, nil
}

// Status reports the aggregate state of all pods of a deployment.
func (s *Scheduler) Status(deploymentID string) (DeploymentStatus, error) {
	s.mtx.RLock()
	_, found := s.deployments[deploymentID]
	s.mtx.RUnlock()
	if !found {
		return DeploymentStatus{}, scheduling.NotFoundErr.Errorf(
			"deployment %s not found",
			deploymentID,
		)
	}
	pods, found := s.supervisor.Status(deploymentID)
	if !found {
		return DeploymentStatus{}, scheduling.InconsistentStateErr.Errorf(
			"deployment %s has no supervised pods",
			deploymentID,
		)
	}
	return DeploymentStatus{
		ID:    deploymentID,
		Phase: aggregatePhase(pods),
		Pods:  pods,
	}, nil
}

// Terminate requests cooperative shutdown of a deployment. Pods observe the
// request at their next check interval and release their reservations as
// they stop.
func (s *Scheduler) Terminate(deploymentID string) error {
	s.mtx.RLock()
	_, found := s.deployments[deploymentID]
	s.mtx.RUnlock()
	if !found {
		return scheduling.NotFoundErr.Errorf("deployment %s not found", deploymentID)
	}
	s.logger.Info("terminating deployment", "deployment", deploymentID)
	return s.supervisor.Terminate(deploymentID)
}

// WaitTerminated blocks until every pod loop of the deployment has exited.
func (s *Scheduler) WaitTerminated(deploymentID string) {
	s.supervisor.Wait(deploymentID)
}

// Shutdown drains the scheduler: every pod is terminated and every
// reservation released, bounded by the provided context.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.supervisor.Shutdown(ctx)
}

// SetNodeHealth updates a node's health. When the node leaves healthy, every
// placement touching it is invalidated: the affected deployments are stopped
// and recomputed over the remaining healthy nodes. A deployment whose
// recomputation finds no room stays terminated with its reservations
// released, ready for an explicit re-deploy.
func (s *Scheduler) SetNodeHealth(nodeID string, health inventory.Health) error {
	if err := s.inventory.SetHealth(nodeID, health); err != nil {
		return err
	}
	s.logger.Info("node health updated", "node", nodeID, "health", health)
	if health == inventory.HealthHealthy {
		return nil
	}
	for _, deployment := range s.deploymentsOnNode(nodeID) {
		s.reschedule(deployment, nodeID)
	}
	return nil
}

func (s *Scheduler) deploymentsOnNode(nodeID string) []*Deployment {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	res := make([]*Deployment, 0)
	for _, d := range s.deployments {
		for _, placed := range d.Placement.Nodes {
			if placed == nodeID {
				res = append(res, d)
				break
			}
		}
	}
	return res
}

// reschedule stops every pod of the deployment, then recomputes and commits
// a fresh placement without the lost node. The stop releases the old
// reservations, so planning sees the freed capacity.
func (s *Scheduler) reschedule(deployment *Deployment, lostNode string) {
	logger := s.logger.WithValues("deployment", deployment.ID, "node", lostNode)
	logger.Info("placement invalidated, rescheduling")

	if err := s.supervisor.Terminate(deployment.ID); err != nil {
		logger.Error(err, "unable to stop deployment for rescheduling")
		return
	}
	s.supervisor.Wait(deployment.ID)

	placement, err := s.plan(deployment.Spec, deployment.ID)
	if err != nil {
		logger.Error(err, "no new placement found, deployment stays terminated")
		return
	}
	if err = s.supervisor.Drop(deployment.ID); err != nil {
		logger.Error(err, "unable to recycle deployment supervision")
		s.rollback(placement)
		return
	}
	if err = s.supervisor.Manage(s.ctx, deployment.ID, deployment.Spec, placement); err != nil {
		logger.Error(err, "unable to supervise rescheduled deployment")
		s.rollback(placement)
		return
	}

	s.mtx.Lock()
	deployment.Placement = placement
	s.mtx.Unlock()
	logger.Info("deployment rescheduled", "placement", placement.Nodes)
}

func (s *Scheduler) checkExisting(deploymentID string, spec api.DeploymentSpec) (*Deployment, error, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	existing, found := s.deployments[deploymentID]
	if !found {
		return nil, nil, false
	}
	if cmp.Equal(existing.Spec, spec) {
		return existing, nil, true
	}
	return nil, scheduling.ValidationErr.Errorf(
		"deployment %s already exists with a different spec",
		deploymentID,
	), true
}

// plan produces a placement over a consistent inventory snapshot and commits
// its reservations atomically. Losing the commit race to a concurrent
// deployment triggers a bounded re-plan before surfacing Unschedulable.
func (s *Scheduler) plan(spec api.DeploymentSpec, deploymentID string) (planning.Placement, error) {
	var lastErr error
	for attempt := 1; attempt <= s.planAttempts; attempt++ {
		snapshot := planning.NewSnapshot(s.inventory.Snapshot())
		placement, err := s.planner.Plan(spec, deploymentID, snapshot)
		if err != nil {
			return planning.Placement{}, err
		}
		err = s.inventory.Commit(placement.Reservations())
		if err == nil {
			return placement, nil
		}
		if !scheduling.IsInsufficientCapacity(err) {
			return planning.Placement{}, err
		}
		lastErr = err
		s.logger.V(1).Info(
			"reservation commit lost a race, re-planning",
			"deployment", deploymentID,
			"attempt", attempt,
		)
	}
	return planning.Placement{}, scheduling.UnschedulableErr.Errorf(
		"no placement could be committed after %d attempts: %v",
		s.planAttempts,
		lastErr,
	)
}

func (s *Scheduler) rollback(placement planning.Placement) {
	for nodeID, amount := range placement.Reservations() {
		if err := s.inventory.Release(nodeID, amount); err != nil {
			s.logger.Error(err, "failed to roll back reservation", "node", nodeID)
		}
	}
}

func generateID(modelName string) string {
	slug := util.Slugify(modelName)
	if slug == "" {
		slug = "deployment"
	}
	return slug + "-" + util.RandomStringLowercase(5)
}
