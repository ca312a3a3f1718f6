package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type promCollector struct {
	Collector
	backups   *prometheus.CounterVec
	sweeps    *prometheus.CounterVec
	maxChange *prometheus.GaugeVec
	states    *prometheus.GaugeVec
	operator  string
}

// NewPrometheusCollector records everything a counting collector does and also exports
// it through reg, labelled by backup operator.
func NewPrometheusCollector(reg prometheus.Registerer) Collector {
	factory := promauto.With(reg)
	return &promCollector{
		Collector: NewCollector(),
		backups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sgplan_backups_total",
			Help: "Total state backups performed",
		}, []string{"operator"}),
		sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sgplan_sweeps_total",
			Help: "Total value iteration sweeps completed",
		}, []string{"operator"}),
		maxChange: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sgplan_sweep_max_change",
			Help: "Largest Q-value change of the last completed sweep",
		}, []string{"operator"}),
		states: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sgplan_states",
			Help: "Number of states swept by the current run",
		}, []string{"operator"}),
	}
}

func (m *promCollector) Start(operator string, agents, states int) {
	m.operator = operator
	m.states.WithLabelValues(operator).Set(float64(states))
	m.Collector.Start(operator, agents, states)
}

func (m *promCollector) AddBackup() {
	m.backups.WithLabelValues(m.operator).Inc()
	m.Collector.AddBackup()
}

func (m *promCollector) AddSweep(maxChange float64) {
	m.sweeps.WithLabelValues(m.operator).Inc()
	m.maxChange.WithLabelValues(m.operator).Set(maxChange)
	m.Collector.AddSweep(maxChange)
}
