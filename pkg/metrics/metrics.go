package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder exposes counters and a latency histogram for call turns.
type Recorder struct {
	turnsTotal     *prometheus.CounterVec
	retrievalTotal *prometheus.CounterVec
	leadsTotal     *prometheus.CounterVec
	endCallTotal   prometheus.Counter
	turnDuration   *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	m := &Recorder{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "turns_total",
			Help:      "Conversation turns handled, by resulting state and intent",
		}, []string{"state", "intent"}),
		retrievalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "retrieval_total",
			Help:      "Policy retrieval outcomes (hit, empty, error)",
		}, []string{"outcome"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "leads_total",
			Help:      "Lead save outcomes (saved, failed)",
		}, []string{"outcome"}),
		endCallTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "end_call_total",
			Help:      "End-call signals emitted",
		}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Name:      "turn_duration_seconds",
			Help:      "Latency of a full controller turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.retrievalTotal, m.leadsTotal, m.endCallTotal, m.turnDuration)
	return m
}

func (m *Recorder) ObserveTurn(state, intent string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state, intent).Inc()
	m.turnDuration.WithLabelValues(state).Observe(seconds)
}

func (m *Recorder) ObserveRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievalTotal.WithLabelValues(outcome).Inc()
}

func (m *Recorder) ObserveLead(outcome string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(outcome).Inc()
}

func (m *Recorder) ObserveEndCall() {
	if m == nil {
		return
	}
	m.endCallTotal.Inc()
}
