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

package util

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencySummary aggregates a window of observed probe round-trip times.
type LatencySummary struct {
	Samples int
	Mean    time.Duration
	P95     time.Duration
}

// LatencyTracker keeps a bounded window of duration samples and summarizes
// them. Safe for concurrent use.
type LatencyTracker struct {
	window  int
	samples []float64
	mtx     sync.Mutex
}

func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = 100
	}
	return &LatencyTracker{
		window:  window,
		samples: make([]float64, 0, window),
	}
}

func (t *LatencyTracker) Observe(d time.Duration) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if len(t.samples) == t.window {
		t.samples = t.samples[1:]
	}
	t.samples = append(t.samples, float64(d))
}

func (t *LatencyTracker) Summary() LatencySummary {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if len(t.samples) == 0 {
		return LatencySummary{}
	}
	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	sort.Float64s(sorted)
	return LatencySummary{
		Samples: len(sorted),
		Mean:    time.Duration(stat.Mean(sorted, nil)),
		P95:     time.Duration(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
	}
}
