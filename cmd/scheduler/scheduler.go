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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	serverapi "github.com/embeddedllm/mipod/internal/api"
	"github.com/embeddedllm/mipod/internal/inventory"
	"github.com/embeddedllm/mipod/internal/scheduler"
	"github.com/embeddedllm/mipod/internal/supervisor"
	"github.com/embeddedllm/mipod/pkg/api"
	"github.com/embeddedllm/mipod/pkg/constant"
	"k8s.io/klog/v2"
)

func main() {
	var (
		nodePoolPath  string
		listenAddress string
		probeInterval time.Duration
	)
	flag.StringVar(&nodePoolPath, "node-pool", "", "Path to the node pool YAML file")
	flag.StringVar(&listenAddress, "listen", ":8080", "Address the API server listens on")
	flag.DurationVar(&probeInterval, "probe-interval", constant.DefaultProbeInterval, "Liveness probe interval")
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	logger := klog.NewKlogr()
	setupLog := logger.WithName("setup")

	if nodePoolPath == "" {
		setupLog.Error(errors.New("missing flag"), "--node-pool is required")
		os.Exit(1)
	}
	pool, err := api.LoadNodePool(nodePoolPath)
	if err != nil {
		setupLog.Error(err, "unable to load node pool", "path", nodePoolPath)
		os.Exit(1)
	}
	nodes := make([]inventory.Node, 0, len(pool.Nodes))
	for _, n := range pool.Nodes {
		capacity, err := n.Capacity.ToResource()
		if err != nil {
			setupLog.Error(err, "invalid node capacity", "node", n.ID)
			os.Exit(1)
		}
		nodes = append(nodes, inventory.Node{
			ID:       n.ID,
			Address:  n.Address,
			Labels:   n.Labels,
			Capacity: capacity,
		})
	}
	setupLog.Info("node pool loaded", "nodes", len(nodes))

	inv := inventory.New(logger.WithName("Inventory"), nodes...)
	runtime := supervisor.NewHTTPRuntime(logger.WithName("NodeRuntime"))
	sched := scheduler.New(logger.WithName("Scheduler"), inv, runtime, supervisor.Config{
		ProbeInterval: probeInterval,
	})

	server := &http.Server{
		Addr:    listenAddress,
		Handler: serverapi.NewServer(sched, logger.WithName("Server")).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "scheduler drain did not complete")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "server shutdown did not complete")
		}
	}()

	setupLog.Info("starting API server", "address", listenAddress)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		setupLog.Error(err, "API server failed")
		os.Exit(1)
	}
}
