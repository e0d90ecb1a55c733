// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for harness runs.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	readinessWait  prometheus.Histogram
	activeJobs     prometheus.Gauge
	artifactsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the harness metric set.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ci_harness_runs_total",
		Help: "Workflow runs by final status.",
	}, []string{"status"})

	m.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ci_harness_jobs_total",
		Help: "Matrix jobs by final status.",
	}, []string{"status"})

	m.stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ci_harness_steps_total",
		Help: "Executed steps by kind and status.",
	}, []string{"uses", "status"})

	m.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ci_harness_step_duration_seconds",
		Help:    "Step execution duration by kind.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"uses"})

	m.readinessWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ci_harness_server_readiness_seconds",
		Help:    "Time spent waiting for managed servers to become ready.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	m.activeJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ci_harness_active_jobs",
		Help: "Currently executing matrix jobs.",
	})

	m.artifactsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ci_harness_artifact_fetches_total",
		Help: "Artifact fetches by cache outcome.",
	}, []string{"outcome"})

	m.registry.MustRegister(
		m.runsTotal, m.jobsTotal, m.stepsTotal,
		m.stepDuration, m.readinessWait, m.activeJobs, m.artifactsTotal,
	)
	return m
}

// RecordRun records a completed run.
func (m *Metrics) RecordRun(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// RecordJob records a completed job.
func (m *Metrics) RecordJob(status string) {
	m.jobsTotal.WithLabelValues(status).Inc()
}

// RecordStep records a completed step.
func (m *Metrics) RecordStep(uses, status string, duration time.Duration) {
	m.stepsTotal.WithLabelValues(uses, status).Inc()
	m.stepDuration.WithLabelValues(uses).Observe(duration.Seconds())
}

// RecordReadinessWait records how long a server took to become ready.
func (m *Metrics) RecordReadinessWait(duration time.Duration) {
	m.readinessWait.Observe(duration.Seconds())
}

// RecordArtifactFetch records an artifact fetch outcome ("hit", "miss", "error").
func (m *Metrics) RecordArtifactFetch(outcome string) {
	m.artifactsTotal.WithLabelValues(outcome).Inc()
}

// JobStarted increments the active job gauge.
func (m *Metrics) JobStarted() { m.activeJobs.Inc() }

// JobFinished decrements the active job gauge.
func (m *Metrics) JobFinished() { m.activeJobs.Dec() }

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr. The returned
// server must be shut down by the caller; listen errors are reported on
// the returned channel.
func (m *Metrics) Serve(addr string) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return srv, errCh
}
