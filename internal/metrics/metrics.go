// Package metrics holds the process-wide Prometheus collectors shared
// across the registry and channel fabric, registered against the default
// registry so /metrics (promhttp.Handler) serves them without extra
// wiring, following the teacher's prometheus/client_golang usage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

var (
	componentState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drasi_component_state",
		Help: "Current lifecycle state of a component, encoded 0=Stopped 1=Starting 2=Running 3=Stopping 4=Failed.",
	}, []string{"kind", "id"})

	querySequence = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drasi_query_result_deltas_total",
		Help: "Total result deltas emitted per query.",
	}, []string{"query_id"})
)

func init() {
	prometheus.MustRegister(componentState, querySequence)
}

var stateCode = map[model.ComponentState]float64{
	model.StateStopped:  0,
	model.StateStarting: 1,
	model.StateRunning:  2,
	model.StateStopping: 3,
	model.StateFailed:   4,
}

// SetComponentState records a component's current lifecycle state.
func SetComponentState(kind model.ComponentKind, id string, state model.ComponentState) {
	componentState.WithLabelValues(string(kind), id).Set(stateCode[state])
}

// IncQuerySequence records one emitted result delta for a query.
func IncQuerySequence(queryID string) {
	querySequence.WithLabelValues(queryID).Inc()
}
