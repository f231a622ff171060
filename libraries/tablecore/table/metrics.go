// Copyright 2026 Dolthub, Inc.
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

package table

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opLabel     = "op"
	metricsName = "verdb"
)

// Metrics are the counters shared by every table of a database.
type Metrics struct {
	cntCommits       *prometheus.CounterVec
	cntCheckouts     prometheus.Counter
	cntStorageErrors prometheus.Counter
	cntConflicts     prometheus.Counter
	histCommitDur    prometheus.Histogram
}

// NewMetrics creates the table metrics and registers them with |reg|, which may be nil.
func NewMetrics(reg prometheus.Registerer, labels prometheus.Labels) (*Metrics, error) {
	m := &Metrics{
		cntCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsName,
			Name:        "commits_total",
			Help:        "Count of committed table versions by operation",
			ConstLabels: labels,
		}, []string{opLabel}),
		cntCheckouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsName,
			Name:        "checkouts_total",
			Help:        "Count of successful checkouts of historical versions",
			ConstLabels: labels,
		}),
		cntStorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsName,
			Name:        "storage_errors_total",
			Help:        "Count of operations that failed in the storage layer",
			ConstLabels: labels,
		}),
		cntConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsName,
			Name:        "write_conflicts_total",
			Help:        "Count of writes rejected because another writer moved the version log",
			ConstLabels: labels,
		}),
		histCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsName,
			Name:        "commit_duration_seconds",
			Help:        "Histogram of the time taken to commit a table version",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.01, 0.1, 1.0, 10.0}, // 1 ms to 10 s
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.cntCommits, m.cntCheckouts, m.cntStorageErrors, m.cntConflicts, m.histCommitDur} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) commit(op string, start time.Time) {
	if m == nil {
		return
	}
	m.cntCommits.WithLabelValues(op).Inc()
	m.histCommitDur.Observe(time.Since(start).Seconds())
}

func (m *Metrics) checkout() {
	if m == nil {
		return
	}
	m.cntCheckouts.Inc()
}

func (m *Metrics) failure(storage, conflict bool) {
	if m == nil {
		return
	}
	if storage {
		m.cntStorageErrors.Inc()
	}
	if conflict {
		m.cntConflicts.Inc()
	}
}
