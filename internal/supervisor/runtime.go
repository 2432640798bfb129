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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/go-logr/logr"
)

// NodeRuntime is the collaborator interface towards the cluster runtime
// agent running on every node. Any transport failure is treated by the
// Supervisor as a missed or failed signal, never retried inline.
type NodeRuntime interface {
	StartPod(ctx context.Context, node inventory.Node, spec StartSpec) error
	ProbeLiveness(ctx context.Context, node inventory.Node, spec StartSpec) error
	StopPod(ctx context.Context, node inventory.Node, spec StartSpec) error
}

// httpRuntime talks to node agents over plain HTTP: pods are started and
// stopped through the agent API, liveness is the serving process's own
// readiness endpoint.
type httpRuntime struct {
	client *http.Client
	logger logr.Logger
}

func NewHTTPRuntime(logger logr.Logger) NodeRuntime {
	return &httpRuntime{
		client: &http.Client{},
		logger: logger,
	}
}

func (r *httpRuntime) StartPod(ctx context.Context, node inventory.Node, spec StartSpec) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/v1/pods", node.Address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req)
}

func (r *httpRuntime) ProbeLiveness(ctx context.Context, node inventory.Node, spec StartSpec) error {
	host := node.Address
	if h, _, err := net.SplitHostPort(node.Address); err == nil {
		host = h
	}
	url := fmt.Sprintf("http://%s:%d%s", host, spec.Port, spec.ReadinessPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return r.do(req)
}

func (r *httpRuntime) StopPod(ctx context.Context, node inventory.Node, spec StartSpec) error {
	url := fmt.Sprintf(
		"http://%s/v1/pods/%s/%d",
		node.Address,
		spec.DeploymentID,
		spec.Replica,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	return r.do(req)
}

func (r *httpRuntime) do(req *http.Request) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL, resp.StatusCode)
	}
	return nil
}
