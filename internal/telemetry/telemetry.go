// Package telemetry exports solve outcomes as Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "settlement"

// Recorder holds the solve metrics. A nil *Recorder records nothing.
type Recorder struct {
	solves     *prometheus.CounterVec
	duration   prometheus.Histogram
	nodes      prometheus.Histogram
	settleRate prometheus.Histogram
	settled    prometheus.Counter
	submitted  prometheus.Counter
	cashflow   prometheus.Counter
	loan       prometheus.Counter
}

// NewRecorder creates the metrics and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Completed solves by terminal status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall-clock time of compile and solve.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		nodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_nodes",
			Help:      "Branch-and-bound nodes explored per solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		settleRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settle_rate",
			Help:      "Share of submitted transactions settled per batch.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		settled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_settled_total",
			Help:      "Transactions settled.",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_submitted_total",
			Help:      "Transactions submitted for settlement.",
		}),
		cashflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cashflow_total",
			Help:      "Cash moved by settled transactions.",
		}),
		loan: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collateral_lots_quantity_total",
			Help:      "Security quantity pledged as collateral.",
		}),
	}
	for _, c := range []prometheus.Collector{r.solves, r.duration, r.nodes, r.settleRate, r.settled, r.submitted, r.cashflow, r.loan} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveSolve records one terminal solve outcome.
func (r *Recorder) ObserveSolve(status string, elapsed time.Duration, nodes int) {
	if r == nil {
		return
	}
	r.solves.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
	r.nodes.Observe(float64(nodes))
}

// ObserveSettlement records the metrics of a successful solve.
func (r *Recorder) ObserveSettlement(settled, submitted int, cashflow, totalLoan float64) {
	if r == nil {
		return
	}
	r.settled.Add(float64(settled))
	r.submitted.Add(float64(submitted))
	if submitted > 0 {
		r.settleRate.Observe(float64(settled) / float64(submitted))
	}
	r.cashflow.Add(cashflow)
	r.loan.Add(totalLoan)
}
