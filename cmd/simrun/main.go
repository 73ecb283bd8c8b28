// Command simrun runs a linear-chain UET fabric simulation and prints
// periodic metrics as CSV.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/apex/log"

	"github.com/ultrafabric/uetsim"
)

func main() {
	nodes := flag.Int("nodes", 4, "number of nodes in the chain")
	duration := flag.Duration("duration", 2*time.Second, "virtual simulation duration")
	linkSpeed := flag.Float64("link-speed", 100e9, "link speed in bits/s")
	errorRate := flag.Float64("error-rate", 1e-9, "PHY base bit error rate")
	llrEnabled := flag.Bool("llr", true, "enable link-level retransmission")
	profile := flag.String("profile", "AI_FULL", "transport profile: AI_BASE, AI_FULL, HPC")
	jobSize := flag.Int("job-size", 4, "workload job size (should match -nodes)")
	intensity := flag.Float64("intensity", 0.3, "per-tick communication intensity")
	measurementInterval := flag.Duration("measurement-interval", 100*time.Millisecond, "metrics sampling interval")
	tracePath := flag.String("trace", "", "optional pcap trace output path")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	logger := uetsim.NewApexLogger(log.Log)

	sched := uetsim.NewScheduler(logger)

	addresses := make([]string, *nodes)
	for i := range addresses {
		addresses[i] = strconv.Itoa(i)
	}

	phyConfig := uetsim.PHYConfig{
		LinkSpeed:         *linkSpeed,
		FECEnabled:        true,
		FECOverhead:       0.02,
		ErrorRate:         *errorRate,
		FECCorrectionBits: 4,
	}
	linkConfig := uetsim.LinkConfig{
		LLREnabled:         *llrEnabled,
		LLRTimeout:         2 * time.Millisecond,
		MaxRetransmissions: 5,
	}

	profileValue := uetsim.ProfileAIFull
	switch *profile {
	case "AI_BASE":
		profileValue = uetsim.ProfileAIBase
	case "HPC":
		profileValue = uetsim.ProfileHPC
	}

	topo := uetsim.NewLinearTopology(sched, logger, addresses, phyConfig, linkConfig, time.Microsecond,
		func(index int, address string) (uetsim.RouterConfig, uetsim.TransportConfig, *uetsim.WorkloadConfig) {
			rc := uetsim.RouterConfig{AgingInterval: time.Second}
			tc := uetsim.TransportConfig{
				Profile:                 profileValue,
				ParentIndex:             index,
				ReorderingEnabled:       true,
				PacketSprayingEnabled:   true,
				MaxReorderBuffer:        64,
				InitialCongestionWindow: 10,
				RdmaTimeout:             5 * time.Millisecond,
				MaxRetransmissions:      5,
			}
			wc := &uetsim.WorkloadConfig{
				Type:                   uetsim.AITraining,
				Pattern:                uetsim.AllReduce,
				SelfIndex:              index,
				JobSize:                *jobSize,
				MessageSize:            512,
				CommunicationIntensity: *intensity,
			}
			return rc, tc, wc
		},
	)

	metricsConfig := uetsim.MetricsConfig{MeasurementInterval: *measurementInterval}
	metrics := uetsim.NewMetrics(sched, logger, &chainMetricsSource{topo: topo}, metricsConfig)

	var tracer *uetsim.TraceWriter
	if *tracePath != "" {
		// Trace file setup is a fatal, setup-time error: there is no
		// sensible way to keep running a simulation whose trace output
		// can't be created, so panic rather than thread the error back
		// through the run loop.
		tracer = uetsim.Must1(uetsim.NewTraceWriter(*tracePath, logger))
		defer func() { uetsim.Must0(tracer.Close()) }()
	}

	for _, node := range topo.Nodes {
		node.Transport.OnLatencySample = metrics.RecordLatency
		if tracer != nil {
			prev := node.Transport.OnSendDown
			node.Transport.OnSendDown = func(pkt *uetsim.Packet) {
				if err := tracer.WritePacket(pkt, sched.Now()); err != nil {
					logger.Warnf("simrun: trace: %s", err)
				}
				if prev != nil {
					prev(pkt)
				}
			}
		}
	}

	sched.RunUntil(*duration)

	if err := metrics.WriteCSV(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simrun: %s\n", err)
		os.Exit(1)
	}

	if p, err := metrics.LatencySnapshot(); err == nil {
		fmt.Fprintf(os.Stderr, "latency: p50=%s p95=%s p99=%s mean=%s\n", p.P50, p.P95, p.P99, p.Mean)
	}
}

// chainMetricsSource adapts a [uetsim.LinearTopology] to
// [uetsim.MetricsSource] by aggregating per-node transport counters.
type chainMetricsSource struct {
	topo *uetsim.LinearTopology
}

func (s *chainMetricsSource) Sample(at time.Duration) uetsim.MetricsSnapshot {
	snap := uetsim.MetricsSnapshot{At: at}
	for _, node := range s.topo.Nodes {
		snap.MessagesSent += node.Transport.PacketsTransmitted
		snap.MessagesReceived += node.Transport.PacketsReceived
		snap.TransportRetransmissions += node.Transport.Retransmissions
		snap.CongestionWindow += node.Transport.CongestionWindow()
		snap.RoutingTableSize += node.Router.RoutingTableSize()
		snap.PacketsForwarded += node.Router.PacketsForwarded
		snap.PacketsDropped += node.Router.PacketsDropped
	}
	if len(s.topo.Nodes) > 0 {
		snap.CongestionWindow /= len(s.topo.Nodes)
	}
	return snap
}
