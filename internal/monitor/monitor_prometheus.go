package monitor

import (
	"time"

	"github.com/gridwatch/pmugate/pkg/pmuhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prometheus struct {
	registry *prometheus.Registry

	connGauge            prometheus.Gauge
	upstreamCounter      prometheus.Counter
	frameCounter         *prometheus.CounterVec
	faultCounter         *prometheus.CounterVec
	cellFaultCounter     *prometheus.CounterVec
	stallResetCounter    prometheus.Counter
	configurationsGauge  prometheus.Gauge
	frameHandleHistogram *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on a registry owned by the returned monitor.
func NewPrometheus() *Prometheus {
	namespace := "pmugate"
	subsystem := "ingest"

	connGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "conn_count",
		Help:      "Connected devices and concentrators",
	})

	upstreamCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "upstream_traffic_bytes",
		Help:      "Bytes received from all connections",
	})

	frameCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frame_count",
		Help:      "Frames decoded",
	}, []string{"protocol", "type"})

	faultCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fault_count",
		Help:      "Parse faults by kind",
	}, []string{"protocol", "kind"})

	cellFaultCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cell_fault_count",
		Help:      "Configuration cells discarded from otherwise valid frames",
	}, []string{"protocol"})

	stallResetCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stall_reset_count",
		Help:      "Partial frames dropped after the stall timeout",
	})

	configurationsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "configurations",
		Help:      "Configuration frames held by the store",
	})

	frameHandleHistogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frame_handle_seconds",
		Help:      "Time spent handling a decoded frame",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"type"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		connGauge,
		upstreamCounter,
		frameCounter,
		faultCounter,
		cellFaultCounter,
		stallResetCounter,
		configurationsGauge,
		frameHandleHistogram,
	)

	return &Prometheus{
		registry:             registry,
		connGauge:            connGauge,
		upstreamCounter:      upstreamCounter,
		frameCounter:         frameCounter,
		faultCounter:         faultCounter,
		cellFaultCounter:     cellFaultCounter,
		stallResetCounter:    stallResetCounter,
		configurationsGauge:  configurationsGauge,
		frameHandleHistogram: frameHandleHistogram,
	}
}

func (p *Prometheus) Start() {
}

func (p *Prometheus) Stop() {
}

// Registry Registry
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Monitor(c *pmuhttp.Context) {
	promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (p *Prometheus) ConnInc() {
	p.connGauge.Inc()
}

func (p *Prometheus) ConnDec() {
	p.connGauge.Dec()
}

func (p *Prometheus) UpstreamTrafficAdd(v int) {
	p.upstreamCounter.Add(float64(v))
}

func (p *Prometheus) FrameInc(protocol, frameType string) {
	p.frameCounter.With(prometheus.Labels{"protocol": protocol, "type": frameType}).Inc()
}

func (p *Prometheus) FaultInc(protocol, kind string) {
	p.faultCounter.With(prometheus.Labels{"protocol": protocol, "kind": kind}).Inc()
}

func (p *Prometheus) CellFaultInc(protocol string) {
	p.cellFaultCounter.With(prometheus.Labels{"protocol": protocol}).Inc()
}

func (p *Prometheus) StallResetInc() {
	p.stallResetCounter.Inc()
}

func (p *Prometheus) ConfigurationsSet(v int) {
	p.configurationsGauge.Set(float64(v))
}

func (p *Prometheus) FrameHandleObserve(frameType string, v time.Duration) {
	p.frameHandleHistogram.With(prometheus.Labels{"type": frameType}).Observe(v.Seconds())
}
