/*
 * Metrics - OpenMetrics implementation.
 *
 * Copyright 2023 Marco Confalonieri.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics instance
var (
	metrics   *OpenMetrics
	metricsMu sync.Mutex
)

type OpenMetrics struct {
	registry *prometheus.Registry

	successfulApiCallsTotal *prometheus.CounterVec
	failedApiCallsTotal     *prometheus.CounterVec
	apiDelayHist            *prometheus.HistogramVec

	recordsCreatedTotal *prometheus.CounterVec
	recordsUpdatedTotal *prometheus.CounterVec
	recordsFailedTotal  *prometheus.CounterVec
	recordOK            *prometheus.GaugeVec

	domainExpiry *prometheus.GaugeVec
	lastUpdate   *prometheus.GaugeVec
}

// GetOpenMetricsInstance returns the current OpenMetrics instance or creates a
// new one if required.
func GetOpenMetricsInstance() *OpenMetrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metrics == nil {
		reg := prometheus.NewRegistry()
		metrics = &OpenMetrics{
			registry: reg,
			successfulApiCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "successful_api_calls_total",
					Help: "The number of successful Porkbun API calls",
				},
				[]string{"action"},
			),
			failedApiCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "failed_api_calls_total",
					Help: "The number of Porkbun API calls that returned an error",
				},
				[]string{"action"},
			),
			apiDelayHist: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "api_delay_hist",
					Help:    "Histogram of the delay in milliseconds when calling the Porkbun API",
					Buckets: []float64{10, 100, 250, 500, 1000, 1500, 2000, 5000},
				},
				[]string{"action"},
			),
			recordsCreatedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "records_created_total",
					Help: "The number of DNS records created",
				},
				[]string{"domain"},
			),
			recordsUpdatedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "records_updated_total",
					Help: "The number of DNS records updated with a new address",
				},
				[]string{"domain"},
			),
			recordsFailedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "records_failed_total",
					Help: "The number of record reconciliations that failed",
				},
				[]string{"domain"},
			),
			recordOK: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "record_ok",
					Help: "1 if the last reconciliation of the record succeeded, 0 otherwise",
				},
				[]string{"domain", "record"},
			),
			domainExpiry: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "domain_expiry_timestamp_seconds",
					Help: "Registration expiry of the domain as a Unix timestamp",
				},
				[]string{"domain"},
			),
			lastUpdate: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "last_update_timestamp_seconds",
					Help: "Time of the last completed update cycle as a Unix timestamp",
				},
				[]string{"domain"},
			),
		}
		reg.MustRegister(metrics.successfulApiCallsTotal)
		reg.MustRegister(metrics.failedApiCallsTotal)
		reg.MustRegister(metrics.apiDelayHist)
		reg.MustRegister(metrics.recordsCreatedTotal)
		reg.MustRegister(metrics.recordsUpdatedTotal)
		reg.MustRegister(metrics.recordsFailedTotal)
		reg.MustRegister(metrics.recordOK)
		reg.MustRegister(metrics.domainExpiry)
		reg.MustRegister(metrics.lastUpdate)
	}
	return metrics
}

// getLabels builds the label map.
func getLabels(action string) prometheus.Labels {
	return prometheus.Labels{"action": action}
}

func getDomainLabels(domain string) prometheus.Labels {
	return prometheus.Labels{"domain": domain}
}

func (m *OpenMetrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// IncSuccessfulApiCallsTotal increments the successful_api_calls_total counter.
func (m *OpenMetrics) IncSuccessfulApiCallsTotal(action string) {
	m.successfulApiCallsTotal.With(getLabels(action)).Inc()
}

// IncFailedApiCallsTotal increments the failed_api_calls_total counter.
func (m *OpenMetrics) IncFailedApiCallsTotal(action string) {
	m.failedApiCallsTotal.With(getLabels(action)).Inc()
}

// AddApiDelayHist records the delay of an API call in milliseconds.
func (m *OpenMetrics) AddApiDelayHist(action string, delay int64) {
	m.apiDelayHist.With(getLabels(action)).Observe(float64(delay))
}

// IncRecordsCreatedTotal increments the records_created_total counter.
func (m *OpenMetrics) IncRecordsCreatedTotal(domain string) {
	m.recordsCreatedTotal.With(getDomainLabels(domain)).Inc()
}

// IncRecordsUpdatedTotal increments the records_updated_total counter.
func (m *OpenMetrics) IncRecordsUpdatedTotal(domain string) {
	m.recordsUpdatedTotal.With(getDomainLabels(domain)).Inc()
}

// IncRecordsFailedTotal increments the records_failed_total counter.
func (m *OpenMetrics) IncRecordsFailedTotal(domain string) {
	m.recordsFailedTotal.With(getDomainLabels(domain)).Inc()
}

// SetRecordOK sets the record_ok gauge for a record.
func (m *OpenMetrics) SetRecordOK(domain, record string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	m.recordOK.With(prometheus.Labels{"domain": domain, "record": record}).Set(v)
}

// DeleteRecord removes the record_ok series of a record no longer managed.
func (m *OpenMetrics) DeleteRecord(domain, record string) {
	m.recordOK.Delete(prometheus.Labels{"domain": domain, "record": record})
}

// SetDomainExpiry sets the expiry gauge. A zero time removes the series.
func (m *OpenMetrics) SetDomainExpiry(domain string, expiry time.Time) {
	if expiry.IsZero() {
		m.domainExpiry.Delete(getDomainLabels(domain))
		return
	}
	m.domainExpiry.With(getDomainLabels(domain)).Set(float64(expiry.Unix()))
}

// SetLastUpdate sets the last_update_timestamp_seconds gauge.
func (m *OpenMetrics) SetLastUpdate(domain string, t time.Time) {
	m.lastUpdate.With(getDomainLabels(domain)).Set(float64(t.Unix()))
}
