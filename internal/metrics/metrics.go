// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the Prometheus instrumentation for the cache and
// backend layers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handle bundles the metrics hierfs records. Construct with New and pass
// around by value; every field is already a pointer/interface into the
// shared prometheus registry.
type Handle struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	BackendOpLatency *prometheus.HistogramVec
	BackendOpErrors  *prometheus.CounterVec
}

// New registers hierfs's metrics on reg and returns a Handle for recording
// them. Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for a real process.
func New(reg prometheus.Registerer) Handle {
	h := Handle{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hierfs",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of cache lookups that found an entry (positive or tombstone).",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hierfs",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of cache lookups with no entry at all (positive or tombstone).",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hierfs",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of entries evicted to make room for a new one.",
		}),
		BackendOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hierfs",
			Subsystem: "backend",
			Name:      "op_latency_seconds",
			Help:      "Latency of backend RPCs, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		BackendOpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hierfs",
			Subsystem: "backend",
			Name:      "op_errors_total",
			Help:      "Number of backend RPCs that returned an error, by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(h.CacheHits, h.CacheMisses, h.CacheEvictions, h.BackendOpLatency, h.BackendOpErrors)
	return h
}

// Handler returns the HTTP handler to serve metrics from, backed by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
