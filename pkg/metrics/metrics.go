// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus instruments of the control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the control plane's instruments. All fields are
// registered on construction and safe for concurrent use.
type Metrics struct {
	// OperationResults counts finished operation attempts by type and
	// outcome ("succeeded", "retried", "failed", "cancelled").
	OperationResults *prometheus.CounterVec
	// OperationDuration observes wall time of operation attempts.
	OperationDuration *prometheus.HistogramVec
	// QueueDepth is the number of operations per status, refreshed by the
	// worker's poll loop.
	QueueDepth *prometheus.GaugeVec
	// InstancesByStatus is the number of instances per lifecycle status,
	// refreshed by the state machine poller.
	InstancesByStatus *prometheus.GaugeVec
}

// New builds and registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meridian",
			Subsystem: "operations",
			Name:      "results_total",
			Help:      "Finished operation attempts by type and outcome.",
		}, []string{"op_type", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meridian",
			Subsystem: "operations",
			Name:      "duration_seconds",
			Help:      "Wall time of operation attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"op_type"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Subsystem: "operations",
			Name:      "queue_depth",
			Help:      "Operations per status.",
		}, []string{"status"}),
		InstancesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Subsystem: "instances",
			Name:      "by_status",
			Help:      "Instances per lifecycle status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.OperationResults, m.OperationDuration, m.QueueDepth, m.InstancesByStatus)
	return m
}
