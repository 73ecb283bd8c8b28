// Package uetsim is a discrete-event simulator for an "Ultra
// Ethernet"-style lossy datacenter fabric tuned for AI and HPC
// workloads.
//
// The simulator is built around a single [Scheduler]: a time-ordered
// event queue that drives every layer in the stack with no goroutines
// or channels, so a run with a fixed seed is fully reproducible. Layers
// are plain Go values wired together with callback fields rather than
// an interface hierarchy:
//
//   - [Workload] generates AI/HPC traffic patterns and collectives.
//   - [Transport] implements end-to-end sequencing, retransmission,
//     reordering, and congestion control across three profiles
//     (AI-Base, AI-Full, HPC).
//   - [IPRouter] performs static routing with flow-hash ECMP.
//   - [SwitchFabric] and [SwitchPort] move packets between fabric and
//     wire, diverting collective traffic to an [INCProcessor].
//   - [Link] implements per-hop link-level retransmission (LLR) and
//     header compression.
//   - [PHY] models serialization delay and stochastic, FEC-correctable
//     channel errors.
//
// [NewLinearTopology] and [NewFatTreeStub] wire these layers into
// runnable multi-node harnesses; [Metrics] periodically samples
// per-layer counters from any [MetricsSource] and summarizes the latency
// samples recorded into it as percentiles, and [TraceWriter] can render
// the packets that cross
// the fabric as a PCAP trace for inspection with ordinary capture
// tooling.
package uetsim
