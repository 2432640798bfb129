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

package scheduler_test

import (
	"context"
	"errors"
	"time"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/scheduler"
	"github.com/embeddedllm/mipod/pkg/test/factory"
	"github.com/embeddedllm/mipod/pkg/test/mocks"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Deployment lifecycle", func() {
	var (
		sched   *scheduler.Scheduler
		inv     *inventory.Inventory
		runtime *mocks.MockedNodeRuntime
	)

	BeforeEach(func() {
		inv = inventory.New(
			logr.Discard(),
			factory.BuildNode("node-1").WithGPUCapacity(4, 512*gib).Get(),
		)
		runtime = &mocks.MockedNodeRuntime{}
		sched = scheduler.New(logr.Discard(), inv, runtime, testSupervisorConfig)
	})

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(sched.Shutdown(ctx)).To(Succeed())
	})

	When("a deployment is accepted", func() {
		It("walks its pods from pending to ready", func() {
			spec := factory.BuildSpec("llama").WithAccelerators("MI300X:2").Get()
			deployment, err := sched.Deploy(context.Background(), "dep-1", spec)
			Expect(err).ToNot(HaveOccurred())
			Expect(deployment.Placement.Nodes).To(HaveLen(1))

			Eventually(func() scheduler.DeploymentPhase {
				status, err := sched.Status("dep-1")
				if err != nil {
					return ""
				}
				return status.Phase
			}, time.Second, time.Millisecond).Should(Equal(scheduler.PhaseReady))

			node, _ := inv.GetNode("node-1")
			Expect(node.Allocated.GPUs).To(Equal(int64(2)))
		})
	})

	When("the node stops answering liveness probes", func() {
		It("degrades the deployment and fails it after the probe budget, holding the reservation", func() {
			spec := factory.BuildSpec("llama").
				WithAccelerators("MI300X:2").
				WithMaxProbeMisses(3).
				Get()
			_, err := sched.Deploy(context.Background(), "dep-1", spec)
			Expect(err).ToNot(HaveOccurred())

			Eventually(func() scheduler.DeploymentPhase {
				status, _ := sched.Status("dep-1")
				return status.Phase
			}, time.Second, time.Millisecond).Should(Equal(scheduler.PhaseReady))

			runtime.SetProbeError(errors.New("connection refused"))
			Eventually(func() scheduler.DeploymentPhase {
				status, _ := sched.Status("dep-1")
				return status.Phase
			}, time.Second, time.Millisecond).Should(Equal(scheduler.PhaseFailed))

			// failed pods keep their reservation until terminated
			node, _ := inv.GetNode("node-1")
			Expect(node.Allocated.GPUs).To(Equal(int64(2)))

			Expect(sched.Terminate("dep-1")).To(Succeed())
			sched.WaitTerminated("dep-1")
			node, _ = inv.GetNode("node-1")
			Expect(node.Allocated.GPUs).To(BeZero())
		})
	})

	When("the fleet has no room left", func() {
		It("rejects the deployment without touching existing ones", func() {
			spec := factory.BuildSpec("llama").
				WithReplicas(2).
				WithAccelerators("MI300X:2").
				Get()
			_, err := sched.Deploy(context.Background(), "dep-1", spec)
			Expect(err).ToNot(HaveOccurred())

			_, err = sched.Deploy(context.Background(), "dep-2", factory.BuildSpec("mistral").Get())
			Expect(err).To(HaveOccurred())

			status, err := sched.Status("dep-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Pods).To(HaveLen(2))
		})
	})
})
