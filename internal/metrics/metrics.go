package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "postcode_etl_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultCached  = "cached"
	ResultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	rowsRead     *prometheus.CounterVec
	rowsRetained *prometheus.CounterVec
	rowsRejected *prometheus.CounterVec

	filesTotal   *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec

	sinkWrites *prometheus.CounterVec
	aggregates prometheus.Gauge
)

// Init registers the pipeline metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		rowsRead = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_read_total",
				Help: "Source rows read by stage and year",
			},
			[]string{"stage", "year"},
		)
		rowsRetained = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_retained_total",
				Help: "Source rows kept by the region filter",
			},
			[]string{"stage", "year"},
		)
		rowsRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_rejected_total",
				Help: "Source rows dropped by the region filter by reason",
			},
			[]string{"stage", "reason"},
		)
		filesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "files_total",
				Help: "Yearly source files processed by stage and result",
			},
			[]string{"stage", "result"},
		)
		stageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stage_latency_seconds",
				Help:    "Stage duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage", "result"},
		)
		sinkWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_writes_total",
				Help: "Aggregate publish attempts by sink and result",
			},
			[]string{"sink", "result"},
		)
		aggregates = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "aggregates",
				Help: "Rows in the last written long aggregate table",
			},
		)

		prometheus.MustRegister(
			rowsRead,
			rowsRetained,
			rowsRejected,
			filesTotal,
			stageLatency,
			sinkWrites,
			aggregates,
		)
	})
}

// ObserveRows records the filter outcome of one source file. rejected is
// keyed by reason.
func ObserveRows[R ~string](stage string, year, read, retained int, rejected map[R]int) {
	y := fmt.Sprint(year)
	if rowsRead != nil {
		rowsRead.WithLabelValues(stage, y).Add(float64(read))
	}
	if rowsRetained != nil {
		rowsRetained.WithLabelValues(stage, y).Add(float64(retained))
	}
	if rowsRejected != nil {
		for reason, n := range rejected {
			rowsRejected.WithLabelValues(stage, string(reason)).Add(float64(n))
		}
	}
}

// IncFile counts one yearly file outcome.
func IncFile(stage, result string) {
	if result == "" {
		result = ResultSuccess
	}
	if filesTotal != nil {
		filesTotal.WithLabelValues(stage, result).Inc()
	}
}

// ObserveStage records stage duration and result.
func ObserveStage(stage, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if stageLatency != nil {
		stageLatency.WithLabelValues(stage, result).Observe(duration.Seconds())
	}
}

// IncSinkWrite counts one publish attempt.
func IncSinkWrite(sink, result string) {
	if result == "" {
		result = ResultSuccess
	}
	if sinkWrites != nil {
		sinkWrites.WithLabelValues(sink, result).Inc()
	}
}

// SetAggregates records the size of the long table.
func SetAggregates(n int) {
	if aggregates != nil {
		aggregates.Set(float64(n))
	}
}

// WriteTextfile dumps the default registry in text exposition format, for
// a node exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
