package metrics

import (
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-content/types"
)

type NopMetrics struct {
	running int32
}

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) Start() error {
	atomic.StoreInt32(&n.running, 1)
	return nil
}

func (n *NopMetrics) Stop() error {
	atomic.StoreInt32(&n.running, 0)
	return nil
}

func (n *NopMetrics) IsRunning() bool {
	return atomic.LoadInt32(&n.running) == 1
}

func (n *NopMetrics) Counter(string, map[string]string) types.Counter { return emptyCounter{} }

func (n *NopMetrics) Gauge(string, map[string]string) types.Gauge { return emptyGauge{} }

func (n *NopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return emptyHistogram{}
}

type emptyCounter struct{}

func (emptyCounter) Inc()          {}
func (emptyCounter) Add(_ float64) {}
func (emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (emptyGauge) Set(_ float64) {}
func (emptyGauge) Inc()          {}
func (emptyGauge) Dec()          {}
func (emptyGauge) Get() float64  { return 0 }

type emptyHistogram struct{}

func (emptyHistogram) Observe(_ float64)           {}
func (emptyHistogram) ObserveDuration(_ time.Time) {}
