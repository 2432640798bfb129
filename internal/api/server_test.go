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

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	server "github.com/embeddedllm/mipod/internal/api"
	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/scheduler"
	"github.com/embeddedllm/mipod/internal/supervisor"
	"github.com/embeddedllm/mipod/pkg/test/factory"
	"github.com/embeddedllm/mipod/pkg/test/mocks"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specYaml = `
model:
  name: meta-llama/Llama-3.1-8B-Instruct
  image: docker:rocm/vllm:latest
replicas: 1
resources:
  accelerators: MI300X:2
  gpuMemory: 128Gi
  cpus: "16"
  memory: 64Gi
service:
  port: 8000
  readinessProbe: /health
`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	inv := inventory.New(
		logr.Discard(),
		factory.BuildNode("node-1").WithGPUCapacity(8, 1536*1024*1024*1024).Get(),
	)
	sched := scheduler.New(logr.Discard(), inv, &mocks.MockedNodeRuntime{}, supervisor.Config{
		ProbeInterval:  5 * time.Millisecond,
		RestartBackoff: time.Millisecond,
	})
	t.Cleanup(func() {
		_ = sched.Shutdown(context.Background())
	})
	return server.NewServer(sched, logr.Discard()).Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)
	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestValidateEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/validate", specYaml)
	assert.Equal(t, http.StatusOK, rec.Code)

	invalid := strings.Replace(specYaml, "docker:rocm/vllm:latest", "rocm/vllm:latest", 1)
	rec = doRequest(t, handler, http.MethodPost, "/validate", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "docker:")

	rec = doRequest(t, handler, http.MethodGet, "/validate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeployAndStatusFlow(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/deploy?id=dep-1", specYaml)
	require.Equal(t, http.StatusOK, rec.Code)

	var deployResp struct {
		ID        string         `json:"id"`
		Placement map[int]string `json:"placement"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployResp))
	assert.Equal(t, "dep-1", deployResp.ID)
	assert.Equal(t, "node-1", deployResp.Placement[0])

	require.Eventually(t, func() bool {
		rec := doRequest(t, handler, http.MethodGet, "/status?id=dep-1", "")
		if rec.Code != http.StatusOK {
			return false
		}
		var status scheduler.DeploymentStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Phase == scheduler.PhaseReady
	}, time.Second, time.Millisecond)

	rec = doRequest(t, handler, http.MethodDelete, "/terminate?id=dep-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeployErrorStatusCodes(t *testing.T) {
	handler := newTestServer(t)

	// malformed body
	rec := doRequest(t, handler, http.MethodPost, "/deploy", "replicas: [")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// more GPUs than the fleet can ever hold
	huge := strings.Replace(specYaml, "MI300X:2", "MI300X:64", 1)
	rec = doRequest(t, handler, http.MethodPost, "/deploy", huge)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// replicas that do not fit the fleet
	many := strings.Replace(specYaml, "replicas: 1", "replicas: 9", 1)
	rec = doRequest(t, handler, http.MethodPost, "/deploy", many)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusAndTerminateNotFound(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/status?id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodDelete, "/terminate?id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNodeHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/node-health?id=node-1&health=draining", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/node-health?id=node-1&health=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/node-health?id=ghost&health=draining", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/node-health?id=node-1&health=healthy", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeployIdempotentOverHTTP(t *testing.T) {
	handler := newTestServer(t)

	first := doRequest(t, handler, http.MethodPost, "/deploy?id=dep-1", specYaml)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, handler, http.MethodPost, "/deploy?id=dep-1", specYaml)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	changed := strings.Replace(specYaml, "replicas: 1", "replicas: 2", 1)
	third := doRequest(t, handler, http.MethodPost, "/deploy?id=dep-1", changed)
	assert.Equal(t, http.StatusBadRequest, third.Code)
}
