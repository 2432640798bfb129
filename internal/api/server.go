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

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/scheduler"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/scheduling"
	"github.com/go-logr/logr"
)

// Server exposes the scheduler facade over the HTTP API the mipod CLI
// talks to: POST /validate, POST /deploy, GET /status, DELETE /terminate,
// POST /node-health and GET /health.
type Server struct {
	scheduler *scheduler.Scheduler
	logger    logr.Logger
}

func NewServer(s *scheduler.Scheduler, logger logr.Logger) *Server {
	return &Server{
		scheduler: s,
		logger:    logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/validate", s.handleValidate)
	mux.HandleFunc("/deploy", s.handleDeploy)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/terminate", s.handleTerminate)
	mux.HandleFunc("/node-health", s.handleNodeHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w)
		return
	}
	spec, ok := s.readSpec(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.Validate(*spec); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w)
		return
	}
	spec, ok := s.readSpec(w, r)
	if !ok {
		return
	}
	deployment, err := s.scheduler.Deploy(r.Context(), r.URL.Query().Get("id"), *spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":        deployment.ID,
		"placement": deployment.Placement.Nodes,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w)
		return
	}
	status, err := s.scheduler.Status(r.URL.Query().Get("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeMethodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("id")
	if err := s.scheduler.Terminate(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "terminating"})
}

func (s *Server) handleNodeHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w)
		return
	}
	nodeID := r.URL.Query().Get("id")
	health := inventory.Health(r.URL.Query().Get("health"))
	switch health {
	case inventory.HealthHealthy, inventory.HealthUnreachable, inventory.HealthDraining:
	default:
		s.writeError(w, scheduling.ValidationErr.Errorf("unknown health value %q", health))
		return
	}
	if err := s.scheduler.SetNodeHealth(nodeID, health); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": nodeID, "health": string(health)})
}

func (s *Server) readSpec(w http.ResponseWriter, r *http.Request) (*api.DeploymentSpec, bool) {
	defer func() {
		_ = r.Body.Close()
	}()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, scheduling.ValidationErr.Errorf("cannot read request body: %v", err))
		return nil, false
	}
	spec, err := api.ParseDeploymentSpec(data)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return spec, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case scheduling.IsValidation(err):
		status = http.StatusBadRequest
	case scheduling.IsNotFound(err):
		status = http.StatusNotFound
	case scheduling.IsUnschedulable(err), scheduling.IsInsufficientCapacity(err):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeMethodNotAllowed(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(err, "failed to write response")
	}
}
