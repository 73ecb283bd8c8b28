package uetsim

//
// Switch fabric and port: ingress/egress forwarding with latency
//

import (
	"hash/fnv"
	"strconv"
	"time"
)

// SwitchPortConfig configures a [SwitchPort].
type SwitchPortConfig struct {
	// ProcessingLatency is the per-packet delay applied when moving a
	// packet between the fabric and the wire side of a port.
	ProcessingLatency time.Duration
}

// SwitchPort is spec.md §4.5's "thin latency stage" bridging the fabric
// and a wire-facing [Link]. The zero value is invalid; use
// [NewSwitchPort].
type SwitchPort struct {
	config SwitchPortConfig
	sched  *Scheduler
	index  int

	// OnToWire is called, after ProcessingLatency, with a packet moving
	// from the fabric toward the wire.
	OnToWire func(pkt *Packet)

	// OnToFabric is called, after ProcessingLatency, with a packet
	// moving from the wire toward the fabric.
	OnToFabric func(pkt *Packet)
}

// NewSwitchPort creates a new [SwitchPort] at the given fabric index.
func NewSwitchPort(sched *Scheduler, index int, config SwitchPortConfig) *SwitchPort {
	return &SwitchPort{config: config, sched: sched, index: index}
}

// FromFabric implements the "fabricIn -> ethOut" direction.
func (p *SwitchPort) FromFabric(pkt *Packet) {
	p.sched.Schedule(p.config.ProcessingLatency, func() {
		if p.OnToWire != nil {
			p.OnToWire(pkt)
		}
	})
}

// FromWire implements the "ethIn -> fabricOut" direction.
func (p *SwitchPort) FromWire(pkt *Packet) {
	p.sched.Schedule(p.config.ProcessingLatency, func() {
		if p.OnToFabric != nil {
			p.OnToFabric(pkt)
		}
	})
}

// SwitchFabricConfig configures a [SwitchFabric].
type SwitchFabricConfig struct {
	// NumPorts is the number of egress ports.
	NumPorts int

	// SwitchingLatency is the delay applied before handing a packet to
	// an egress port or the INC processor.
	SwitchingLatency time.Duration
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *SwitchFabricConfig) Validate() error {
	var errs []error
	if c.NumPorts <= 0 {
		errs = append(errs, errInvalidField("SwitchFabricConfig.NumPorts", "must be > 0"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

// SwitchFabric implements spec.md §4.5: decide egress by hashing the
// destination address modulo the port count, diverting INC packets to
// the INC processor instead. The zero value is invalid; use
// [NewSwitchFabric].
type SwitchFabric struct {
	config SwitchFabricConfig
	sched  *Scheduler
	logger Logger
	ports  []*SwitchPort

	// OnToINC is called, after SwitchingLatency, with an INC packet
	// diverted to the INC processor.
	OnToINC func(pkt *Packet)
}

// NewSwitchFabric creates a new [SwitchFabric] with config.NumPorts
// [SwitchPort]s, each built with portConfig.
func NewSwitchFabric(sched *Scheduler, logger Logger, config SwitchFabricConfig, portConfig SwitchPortConfig) *SwitchFabric {
	if logger == nil {
		logger = &NullLogger{}
	}
	f := &SwitchFabric{config: config, sched: sched, logger: logger}
	for i := 0; i < config.NumPorts; i++ {
		f.ports = append(f.ports, NewSwitchPort(sched, i, portConfig))
	}
	return f
}

// Port returns the egress [SwitchPort] at the given index.
func (f *SwitchFabric) Port(index int) *SwitchPort {
	return f.ports[index]
}

// Forward implements spec.md §4.5's egress decision: INC requests go to
// the INC processor, everything else — including an already-computed INC
// result flowing back from the processor (INC.Intermediate == true) — is
// hashed to `destAddr mod numPorts` like ordinary traffic.
func (f *SwitchFabric) Forward(pkt *Packet) {
	if pkt.Kind == KindINC && !pkt.INC.Intermediate {
		f.sched.Schedule(f.config.SwitchingLatency, func() {
			if f.OnToINC != nil {
				f.OnToINC(pkt)
			}
		})
		return
	}

	destPort := addrHash(pkt.Destination) % f.config.NumPorts
	f.sched.Schedule(f.config.SwitchingLatency, func() {
		f.ports[destPort].FromFabric(pkt)
	})
}

// addrHash maps a destination address to a non-negative integer,
// preferring a direct numeric interpretation (the common case when
// addresses are assigned as decimal node indices) and falling back to a
// stable string hash otherwise.
func addrHash(addr string) int {
	if n, err := strconv.Atoi(addr); err == nil {
		if n < 0 {
			n = -n
		}
		return n
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return int(h.Sum32() & 0x7fffffff)
}
