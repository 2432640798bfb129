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

package mocks

import (
	"context"
	"sync"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/supervisor"
)

// MockedNodeRuntime counts calls and returns configurable errors. Errors can
// be flipped mid-test to drive the lifecycle state machine.
type MockedNodeRuntime struct {
	NumCallsStartPod      uint
	NumCallsProbeLiveness uint
	NumCallsStopPod       uint

	startError error
	probeError error
	stopError  error

	// FailFirstStarts makes StartPod fail only for the first N calls when a
	// start error is set; zero means every call fails.
	FailFirstStarts uint

	lock sync.Mutex
}

func (m *MockedNodeRuntime) SetStartError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.startError = err
}

func (m *MockedNodeRuntime) SetProbeError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.probeError = err
}

func (m *MockedNodeRuntime) SetStopError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stopError = err
}

func (m *MockedNodeRuntime) StartPodCalls() uint {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.NumCallsStartPod
}

func (m *MockedNodeRuntime) ProbeCalls() uint {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.NumCallsProbeLiveness
}

func (m *MockedNodeRuntime) StopPodCalls() uint {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.NumCallsStopPod
}

func (m *MockedNodeRuntime) StartPod(_ context.Context, _ inventory.Node, _ supervisor.StartSpec) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.NumCallsStartPod++
	if m.startError != nil && (m.FailFirstStarts == 0 || m.NumCallsStartPod <= m.FailFirstStarts) {
		return m.startError
	}
	return nil
}

func (m *MockedNodeRuntime) ProbeLiveness(_ context.Context, _ inventory.Node, _ supervisor.StartSpec) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.NumCallsProbeLiveness++
	return m.probeError
}

func (m *MockedNodeRuntime) StopPod(_ context.Context, _ inventory.Node, _ supervisor.StartSpec) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.NumCallsStopPod++
	return m.stopError
}
