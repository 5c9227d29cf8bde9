package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopegrab",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Commands written to the instrument.",
		},
		[]string{"mnemonic"},
	)
	linesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopegrab",
			Subsystem: "session",
			Name:      "lines_read_total",
			Help:      "Text reply lines read from the instrument.",
		},
	)
	blockBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopegrab",
			Subsystem: "session",
			Name:      "block_bytes_total",
			Help:      "Block data payload bytes read from the instrument.",
		},
	)
	blockDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scopegrab",
			Subsystem: "session",
			Name:      "block_read_duration_seconds",
			Help:      "Time to read one block data reply.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	sessionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopegrab",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Session operation failures by operation and error kind.",
		},
		[]string{"op", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(commandsSent, linesRead, blockBytes, blockDuration, sessionErrors)
	})
}

func RecordCommand(mnemonic string) {
	RegisterMetrics()
	commandsSent.WithLabelValues(mnemonic).Inc()
}

func RecordLine() {
	RegisterMetrics()
	linesRead.Inc()
}

func RecordBlock(size int, duration time.Duration) {
	RegisterMetrics()
	blockBytes.Add(float64(size))
	blockDuration.Observe(duration.Seconds())
}

func RecordError(op, kind string) {
	RegisterMetrics()
	sessionErrors.WithLabelValues(op, kind).Inc()
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// collector format.
func WriteTextfile(path string) error {
	RegisterMetrics()
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
