package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sisu-network/lib/log"
)

type MetricName string

const (
	TotalBlockScanned MetricName = `total_block_scanned`
	TotalForks        MetricName = `total_forks`
	TxDiscovered      MetricName = `tx_discovered`
	TxConfirmed       MetricName = `tx_confirmed`
	TxDiscarded       MetricName = `tx_discarded`
	TxBroadcast       MetricName = `tx_broadcast`
	TxResent          MetricName = `tx_resent`
	TaskError         MetricName = `task_error`

	ScanHeight   MetricName = `scan_height`
	RpcAvailable MetricName = `rpc_available`
	QueueSize    MetricName = `queue_size`
)

// Metrics holds the prometheus collectors of the bridge. Every instance has its own registry.
type Metrics struct {
	registry    *prometheus.Registry
	counterVecs map[MetricName]*prometheus.CounterVec
	gaugeVecs   map[MetricName]*prometheus.GaugeVec
	s           *http.Server
}

func NewMetrics(port int) *Metrics {
	counterVecs := map[MetricName]*prometheus.CounterVec{
		TotalBlockScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "scanner",
			Name:      "total_block_scanned",
			Help:      "Total number of blocks scanned",
		}, []string{"chain"}),
		TotalForks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "scanner",
			Name:      "total_forks",
			Help:      "Number of forks detected at the scan cursor",
		}, []string{"chain"}),
		TxDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "scanner",
			Name:      "tx_discovered",
			Help:      "Bridge transactions found in scanned blocks",
		}, []string{"chain", "type"}),
		TxConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "confirmer",
			Name:      "tx_confirmed",
			Help:      "Transactions acknowledged by the home chain",
		}, []string{"chain", "type"}),
		TxDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "confirmer",
			Name:      "tx_discarded",
			Help:      "Transactions dropped without confirmation",
		}, []string{"chain", "reason"}),
		TxBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "orchestrator",
			Name:      "tx_broadcast",
			Help:      "Multisig transactions broadcast by this node",
		}, []string{"chain", "type"}),
		TxResent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "resender",
			Name:      "tx_resent",
			Help:      "Multisig transactions resent by this node",
		}, []string{"chain", "kind"}),
		TaskError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbridge",
			Subsystem: "processor",
			Name:      "task_error",
			Help:      "Errors and panics caught at a task boundary",
		}, []string{"chain", "task"}),
	}

	gaugeVecs := map[MetricName]*prometheus.GaugeVec{
		ScanHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hbridge",
			Subsystem: "scanner",
			Name:      "scan_height",
			Help:      "Height of the last scanned block",
		}, []string{"chain"}),
		RpcAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hbridge",
			Subsystem: "rpc_monitor",
			Name:      "rpc_available",
			Help:      "1 when the chain height is advancing",
		}, []string{"chain"}),
		QueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hbridge",
			Subsystem: "queue",
			Name:      "size",
			Help:      "Number of items in a work queue",
		}, []string{"chain", "queue"}),
	}

	registry := prometheus.NewRegistry()
	for _, item := range counterVecs {
		registry.MustRegister(item)
	}
	for _, item := range gaugeVecs {
		registry.MustRegister(item)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Metrics{
		registry:    registry,
		counterVecs: counterVecs,
		gaugeVecs:   gaugeVecs,
		s: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (m *Metrics) GetCounterVec(name MetricName) *prometheus.CounterVec {
	if c, ok := m.counterVecs[name]; ok {
		return c
	}
	return nil
}

func (m *Metrics) GetGaugeVec(name MetricName) *prometheus.GaugeVec {
	if g, ok := m.gaugeVecs[name]; ok {
		return g
	}
	return nil
}

// Inc increases a counter. Labels are in the order the counter declares them.
func (m *Metrics) Inc(name MetricName, labels ...string) {
	if c := m.GetCounterVec(name); c != nil {
		c.WithLabelValues(labels...).Inc()
	}
}

func (m *Metrics) Set(name MetricName, value float64, labels ...string) {
	if g := m.GetGaugeVec(name); g != nil {
		g.WithLabelValues(labels...).Set(value)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Start() {
	go func() {
		log.Info("Starting metrics server at ", m.s.Addr)
		if err := m.s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server stopped, err = ", err)
		}
	}()
}

func (m *Metrics) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()
	return m.s.Shutdown(ctx)
}
