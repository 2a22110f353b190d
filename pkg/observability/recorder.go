// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the generation pipeline and librarian scheduler
// call at their completion points. Calls never block on these and never
// propagate an error; a Recorder records what it can and moves on.
type Recorder interface {
	RecordGeneration(mode, providerID, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordToolExecution(toolName string, duration time.Duration, err error)
	RecordLibrarianRun(storyID string, duration time.Duration, chainLength int, err error)
	RecordFragmentWrite(storyID, fragmentType string)
}

// PrometheusRecorder is a Recorder backed by client_golang counters and
// histograms, narrowed to the four call sites this domain actually has.
type PrometheusRecorder struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	generationCalls    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationErrors   *prometheus.CounterVec
	generationTokens   *prometheus.CounterVec

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec

	librarianRuns     *prometheus.CounterVec
	librarianDuration *prometheus.HistogramVec
	librarianErrors   *prometheus.CounterVec
	librarianChainLen *prometheus.HistogramVec

	fragmentWrites *prometheus.CounterVec
}

// NewPrometheusRecorder builds a PrometheusRecorder from configuration. It
// returns (nil, nil) when metrics are disabled, mirroring the rest of the
// package's nil-safe-pointer-receiver convention.
func NewPrometheusRecorder(cfg *MetricsConfig) (*PrometheusRecorder, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	r := &PrometheusRecorder{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	var toRegister []prometheus.Collector

	if !cfg.SubsystemDisabled("generation") {
		r.generationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "generation", Name: "calls_total",
			Help: "Total number of generation pipeline runs",
		}, []string{"mode", "provider", "model"})

		r.generationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "generation", Name: "duration_seconds",
			Help: "Generation pipeline run duration in seconds", Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"mode", "provider", "model"})

		r.generationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "generation", Name: "errors_total",
			Help: "Total number of generation pipeline errors",
		}, []string{"mode", "provider", "model"})

		r.generationTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "generation", Name: "tokens_total",
			Help: "Total generation tokens by direction",
		}, []string{"model", "direction"})

		toRegister = append(toRegister, r.generationCalls, r.generationDuration, r.generationErrors, r.generationTokens)
	}

	if !cfg.SubsystemDisabled("tool") {
		r.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "tool", Name: "calls_total",
			Help: "Total number of fragment-tool dispatches",
		}, []string{"tool"})

		r.toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "tool", Name: "duration_seconds",
			Help: "Fragment-tool dispatch duration in seconds", Buckets: prometheus.DefBuckets,
		}, []string{"tool"})

		r.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "tool", Name: "errors_total",
			Help: "Total number of fragment-tool dispatch errors",
		}, []string{"tool"})

		toRegister = append(toRegister, r.toolCalls, r.toolDuration, r.toolErrors)
	}

	if !cfg.SubsystemDisabled("librarian") {
		r.librarianRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "librarian", Name: "runs_total",
			Help: "Total number of librarian analysis passes",
		}, []string{"story_id"})

		r.librarianDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "librarian", Name: "duration_seconds",
			Help: "Librarian analysis pass duration in seconds", Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"story_id"})

		r.librarianErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "librarian", Name: "errors_total",
			Help: "Total number of librarian analysis errors",
		}, []string{"story_id"})

		r.librarianChainLen = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "librarian", Name: "chain_length",
			Help: "Prose chain length observed at the start of an analysis pass", Buckets: prometheus.LinearBuckets(0, 10, 10),
		}, []string{"story_id"})

		toRegister = append(toRegister, r.librarianRuns, r.librarianDuration, r.librarianErrors, r.librarianChainLen)
	}

	if !cfg.SubsystemDisabled("fragment") {
		r.fragmentWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "fragment", Name: "writes_total",
			Help: "Total number of fragment store writes",
		}, []string{"story_id", "type"})

		toRegister = append(toRegister, r.fragmentWrites)
	}

	r.registry.MustRegister(toRegister...)

	return r, nil
}

// RecordGeneration records one pipeline.Generate run.
func (r *PrometheusRecorder) RecordGeneration(mode, providerID, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if r == nil || r.generationCalls == nil {
		return
	}
	r.generationCalls.WithLabelValues(mode, providerID, model).Inc()
	r.generationDuration.WithLabelValues(mode, providerID, model).Observe(duration.Seconds())
	if inputTokens > 0 {
		r.generationTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.generationTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
	if err != nil {
		r.generationErrors.WithLabelValues(mode, providerID, model).Inc()
	}
}

// RecordToolExecution records one fragment-tool dispatch.
func (r *PrometheusRecorder) RecordToolExecution(toolName string, duration time.Duration, err error) {
	if r == nil || r.toolCalls == nil {
		return
	}
	r.toolCalls.WithLabelValues(toolName).Inc()
	r.toolDuration.WithLabelValues(toolName).Observe(duration.Seconds())
	if err != nil {
		r.toolErrors.WithLabelValues(toolName).Inc()
	}
}

// RecordLibrarianRun records one librarian analysis pass.
func (r *PrometheusRecorder) RecordLibrarianRun(storyID string, duration time.Duration, chainLength int, err error) {
	if r == nil || r.librarianRuns == nil {
		return
	}
	r.librarianRuns.WithLabelValues(storyID).Inc()
	r.librarianDuration.WithLabelValues(storyID).Observe(duration.Seconds())
	r.librarianChainLen.WithLabelValues(storyID).Observe(float64(chainLength))
	if err != nil {
		r.librarianErrors.WithLabelValues(storyID).Inc()
	}
}

// RecordFragmentWrite records a fragment store mutation.
func (r *PrometheusRecorder) RecordFragmentWrite(storyID, fragmentType string) {
	if r == nil || r.fragmentWrites == nil {
		return
	}
	r.fragmentWrites.WithLabelValues(storyID, fragmentType).Inc()
}

// Handler returns an HTTP handler serving this recorder's Prometheus registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

var _ Recorder = (*PrometheusRecorder)(nil)
