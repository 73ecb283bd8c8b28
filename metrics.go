package uetsim

//
// Metrics/analyzer: periodic counter snapshot, latency distributions
//

import (
	"fmt"
	"io"
	"time"

	"github.com/montanaflynn/stats"
)

// MetricsSnapshot is one periodic sample of spec.md §4.9's named signals.
type MetricsSnapshot struct {
	At time.Duration

	MessagesSent     int64
	MessagesReceived int64

	TransportRetransmissions int64
	CongestionWindow         int

	FECCorrections     int64
	UncorrectableDrops int64
	LLRRetransmissions int64
	CompressionRatio   float64
	LinkUtilization    float64

	INCOperationsProcessed int64
	INCOperationsDropped   int64
	BufferUtilization      float64

	PacketsForwarded int64
	PacketsDropped   int64
	RoutingTableSize int
}

// MetricsCSVHeader is the header for the CSV records returned by
// [MetricsSnapshot.CSVRecord].
const MetricsCSVHeader = "elapsed (s),msg sent,msg recv,retransmissions,cwnd,fec corrections,uncorrectable drops,llr retransmissions,compression ratio,link util,inc processed,inc dropped,buffer util,pkt forwarded,pkt dropped,routing table size"

// CSVRecord returns a CSV representation of the snapshot.
func (s *MetricsSnapshot) CSVRecord() string {
	return fmt.Sprintf(
		"%.3f,%d,%d,%d,%d,%d,%d,%d,%.4f,%.4f,%d,%d,%.4f,%d,%d,%d",
		s.At.Seconds(),
		s.MessagesSent,
		s.MessagesReceived,
		s.TransportRetransmissions,
		s.CongestionWindow,
		s.FECCorrections,
		s.UncorrectableDrops,
		s.LLRRetransmissions,
		s.CompressionRatio,
		s.LinkUtilization,
		s.INCOperationsProcessed,
		s.INCOperationsDropped,
		s.BufferUtilization,
		s.PacketsForwarded,
		s.PacketsDropped,
		s.RoutingTableSize,
	)
}

// MetricsSource is implemented by whatever object the [Metrics] observer
// samples from at each measurement tick. A simulation harness (see
// topology.go) implements this by reading its component counters.
type MetricsSource interface {
	Sample(at time.Duration) MetricsSnapshot
}

// LatencyPercentiles summarizes a distribution of end-to-end latency
// samples.
type LatencyPercentiles struct {
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Mean time.Duration
}

// MetricsConfig configures a [Metrics] observer.
type MetricsConfig struct {
	// MeasurementInterval is the periodic sampling period.
	MeasurementInterval time.Duration
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *MetricsConfig) Validate() error {
	var errs []error
	if c.MeasurementInterval <= 0 {
		errs = append(errs, errInvalidField("MetricsConfig.MeasurementInterval", "must be > 0"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

// Metrics implements spec.md §4.9: a global periodic observer sampling
// per-component counters and accumulating an end-to-end latency
// distribution. The zero value is invalid; use [NewMetrics].
type Metrics struct {
	config MetricsConfig
	sched  *Scheduler
	logger Logger
	source MetricsSource

	snapshots       []MetricsSnapshot
	latencySamplesNs []float64
}

// NewMetrics creates a new [Metrics] observer sampling source every
// config.MeasurementInterval and arms its first tick immediately.
func NewMetrics(sched *Scheduler, logger Logger, source MetricsSource, config MetricsConfig) *Metrics {
	if logger == nil {
		logger = &NullLogger{}
	}
	m := &Metrics{config: config, sched: sched, logger: logger, source: source}
	m.sched.Schedule(config.MeasurementInterval, m.onTick)
	return m
}

func (m *Metrics) onTick() {
	snap := m.source.Sample(m.sched.Now())
	m.snapshots = append(m.snapshots, snap)
	m.sched.Schedule(m.config.MeasurementInterval, m.onTick)
}

// RecordLatency adds an end-to-end latency sample to the distribution.
func (m *Metrics) RecordLatency(rtt time.Duration) {
	m.latencySamplesNs = append(m.latencySamplesNs, float64(rtt.Nanoseconds()))
}

// Snapshots returns all counter snapshots collected so far.
func (m *Metrics) Snapshots() []MetricsSnapshot {
	return m.snapshots
}

// LatencySnapshot computes percentile statistics over the latency
// samples recorded so far.
func (m *Metrics) LatencySnapshot() (LatencyPercentiles, error) {
	if len(m.latencySamplesNs) == 0 {
		return LatencyPercentiles{}, nil
	}
	p50, err := stats.Percentile(m.latencySamplesNs, 50)
	if err != nil {
		return LatencyPercentiles{}, err
	}
	p95, err := stats.Percentile(m.latencySamplesNs, 95)
	if err != nil {
		return LatencyPercentiles{}, err
	}
	p99, err := stats.Percentile(m.latencySamplesNs, 99)
	if err != nil {
		return LatencyPercentiles{}, err
	}
	mean, err := stats.Mean(m.latencySamplesNs)
	if err != nil {
		return LatencyPercentiles{}, err
	}
	return LatencyPercentiles{
		P50:  time.Duration(p50),
		P95:  time.Duration(p95),
		P99:  time.Duration(p99),
		Mean: time.Duration(mean),
	}, nil
}

// WriteCSV writes every collected snapshot to w in CSV form, preceded by
// [MetricsCSVHeader].
func (m *Metrics) WriteCSV(w io.Writer) error {
	if _, err := fmt.Fprintln(w, MetricsCSVHeader); err != nil {
		return err
	}
	for i := range m.snapshots {
		if _, err := fmt.Fprintln(w, m.snapshots[i].CSVRecord()); err != nil {
			return err
		}
	}
	return nil
}
