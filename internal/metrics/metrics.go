// Copyright 2025 Tom Barlow
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

// Package metrics exports launch metrics in the Prometheus text format.
//
// javactl exits right after starting the JVM, so there is nothing to
// scrape. Instead the metrics of each launch are written to a file that
// the node_exporter textfile collector picks up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LaunchMetrics holds the metrics of a single launch.
type LaunchMetrics struct {
	registry *prometheus.Registry

	launchTimestamp prometheus.Gauge
	launchDuration  prometheus.Gauge
	pid             prometheus.Gauge
	staged          prometheus.Gauge
	exitCode        prometheus.Gauge
	failures        *prometheus.CounterVec

	// exitCode is only exported once an exit was recorded.
	exitRegistered bool
}

// NewLaunchMetrics creates metrics labelled with app on a private registry.
func NewLaunchMetrics(app string) *LaunchMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"app": app}

	return &LaunchMetrics{
		registry: reg,
		launchTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "javactl_last_launch_timestamp_seconds",
			Help:        "Unix time of the last launch",
			ConstLabels: labels,
		}),
		launchDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "javactl_launch_duration_seconds",
			Help:        "Time from launcher start until the JVM was spawned",
			ConstLabels: labels,
		}),
		pid: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "javactl_process_pid",
			Help:        "PID of the launched JVM",
			ConstLabels: labels,
		}),
		staged: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "javactl_artifact_staged",
			Help:        "1 if the last launch installed a staged artifact",
			ConstLabels: labels,
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "javactl_process_exit_code",
			Help:        "Exit code of the JVM when the launcher waited for it",
			ConstLabels: labels,
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "javactl_launch_failures_total",
			Help:        "Launch failures by error type",
			ConstLabels: labels,
		}, []string{"error_type"}),
	}
}

// Registry returns the registry holding the launch metrics.
func (m *LaunchMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordLaunch records a started JVM.
func (m *LaunchMetrics) RecordLaunch(pid int, startedAt time.Time, took time.Duration, staged bool) {
	m.launchTimestamp.Set(float64(startedAt.UnixNano()) / float64(time.Second))
	m.launchDuration.Set(took.Seconds())
	m.pid.Set(float64(pid))
	if staged {
		m.staged.Set(1)
	} else {
		m.staged.Set(0)
	}
}

// RecordExit records the exit code of a waited-on JVM.
func (m *LaunchMetrics) RecordExit(code int) {
	if !m.exitRegistered {
		m.registry.MustRegister(m.exitCode)
		m.exitRegistered = true
	}
	m.exitCode.Set(float64(code))
}

// RecordFailure counts a failed launch.
func (m *LaunchMetrics) RecordFailure(errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	m.failures.WithLabelValues(errorType).Inc()
}

// WriteTextfile writes the metrics to path. The file is replaced
// atomically so the collector never reads a partial file.
func (m *LaunchMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
