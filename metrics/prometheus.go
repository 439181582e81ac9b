package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "canv"

// Prometheus exports registration metrics as Prometheus collectors.
// A nil *Prometheus discards every update.
type Prometheus struct {
	frames   *prometheus.CounterVec
	timeouts prometheus.Counter
	unknown  prometheus.Counter
	inFlight prometheus.Gauge
	window   prometheus.Gauge
	merit    prometheus.Histogram
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registration",
				Name:      "frames_total",
				Help:      "Frames by registration outcome.",
			},
			[]string{"outcome"},
		),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "receive_timeouts_total",
			Help:      "Result polls that timed out.",
		}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "unknown_replies_total",
			Help:      "Replies that matched no in-flight frame.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "in_flight",
			Help:      "Frames submitted and not yet written.",
		}),
		window: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "window",
			Help:      "Maximum frames in flight.",
		}),
		merit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "figure_of_merit",
			Help:      "Figure of merit of registered frames.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	for _, c := range []prometheus.Collector{p.frames, p.timeouts, p.unknown, p.inFlight, p.window, p.merit} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) incSubmitted() {
	if p != nil {
		p.frames.WithLabelValues("submitted").Inc()
	}
}

func (p *Prometheus) incRegistered(fom float64) {
	if p != nil {
		p.frames.WithLabelValues("registered").Inc()
		p.merit.Observe(fom)
	}
}

func (p *Prometheus) incFailed() {
	if p != nil {
		p.frames.WithLabelValues("failed").Inc()
	}
}

func (p *Prometheus) incEncodingFailure() {
	if p != nil {
		p.frames.WithLabelValues("unsubmitted").Inc()
	}
}

func (p *Prometheus) incWritten() {
	if p != nil {
		p.frames.WithLabelValues("written").Inc()
	}
}

func (p *Prometheus) incTimeout() {
	if p != nil {
		p.timeouts.Inc()
	}
}

func (p *Prometheus) incUnknown() {
	if p != nil {
		p.unknown.Inc()
	}
}

func (p *Prometheus) setInFlight(n int) {
	if p != nil {
		p.inFlight.Set(float64(n))
	}
}

func (p *Prometheus) setWindow(n int64) {
	if p != nil {
		p.window.Set(float64(n))
	}
}
