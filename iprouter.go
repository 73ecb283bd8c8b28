package uetsim

//
// IP routing layer: static table, flow-hash ECMP, idle aging
//

import (
	"time"
)

// RoutingEntry is spec.md §3's "Routing entry": a destination's ordered
// list of next-hop path ids, plus the bookkeeping needed to age it out.
type RoutingEntry struct {
	// Destination is the routed address.
	Destination string

	// NextHops is the ordered, non-empty list of next-hop path ids.
	NextHops []string

	// Metric is an opaque routing metric, carried but not interpreted.
	Metric int

	// Forwarded counts packets forwarded via this entry.
	Forwarded int64

	// LastUsed is the virtual time this entry was last selected.
	LastUsed time.Duration
}

// RouterConfig configures an [IPRouter].
type RouterConfig struct {
	// LocalAddress is this router's own address, used to decide
	// deliver-upward vs forward on the receive path.
	LocalAddress string

	// LoadBalancing enables flow-hash ECMP across multiple next hops.
	LoadBalancing bool

	// RoutingLatency is the delay applied before handing a packet to
	// the link layer.
	RoutingLatency time.Duration

	// AgingInterval is the period of the idle-entry sweep. Entries idle
	// longer than AgingTimeout are dropped. Zero disables aging.
	AgingInterval time.Duration

	// AgingTimeout is the idle threshold past which a routing entry is
	// dropped, per spec.md's fixed 10s default.
	AgingTimeout time.Duration
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *RouterConfig) Validate() error {
	var errs []error
	if c.LocalAddress == "" {
		errs = append(errs, errInvalidField("RouterConfig.LocalAddress", "must be non-empty"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

// defaultAgingTimeout is spec.md §4.4's fixed idle threshold.
const defaultAgingTimeout = 10 * time.Second

// IPRouter implements spec.md §4.4: a static routing table with
// flow-hash ECMP and periodic idle aging. It sits between the transport
// (below the workload layer) and a set of per-next-hop [Link]s. The zero
// value is invalid; use [NewIPRouter].
type IPRouter struct {
	config RouterConfig
	sched  *Scheduler
	logger Logger

	table map[string]*RoutingEntry
	links map[string]*Link

	// OnDeliverLocal is called with a packet whose destination is this
	// router's LocalAddress.
	OnDeliverLocal func(pkt *Packet)

	PacketsForwarded int64
	PacketsDropped   int64
}

// NewIPRouter creates a new [IPRouter] and, if config.AgingInterval > 0,
// arms the periodic aging sweep.
func NewIPRouter(sched *Scheduler, logger Logger, config RouterConfig) *IPRouter {
	if logger == nil {
		logger = &NullLogger{}
	}
	if config.AgingTimeout == 0 {
		config.AgingTimeout = defaultAgingTimeout
	}
	r := &IPRouter{
		config: config,
		sched:  sched,
		logger: logger,
		table:  map[string]*RoutingEntry{},
		links:  map[string]*Link{},
	}
	if config.AgingInterval > 0 {
		r.armAgingTimer()
	}
	return r
}

// AddRoute installs a static route to destAddr via the given ordered
// next-hop path ids, each of which must have a corresponding [Link]
// registered via [IPRouter.BindLink].
func (r *IPRouter) AddRoute(destAddr string, nextHops []string) {
	r.logger.Infof("uetsim: router: route add %s via %v", destAddr, nextHops)
	r.table[destAddr] = &RoutingEntry{
		Destination: destAddr,
		NextHops:    append([]string(nil), nextHops...),
		LastUsed:    r.sched.Now(),
	}
}

// BindLink associates a next-hop path id with the [Link] used to reach
// it.
func (r *IPRouter) BindLink(pathID string, link *Link) {
	r.links[pathID] = link
}

// Send implements spec.md §4.4's "On packet from transport" path: stamp
// the source address, look up the destination, choose a next hop (via
// flow-hash ECMP when enabled and multiple hops exist), and forward to
// the corresponding link after RoutingLatency.
func (r *IPRouter) Send(pkt *Packet) {
	pkt.Source = r.config.LocalAddress

	entry, ok := r.table[pkt.Destination]
	if !ok || len(entry.NextHops) == 0 {
		r.logger.Warnf("uetsim: router: %s: %s", pkt.Destination, ErrNoRoute)
		r.PacketsDropped++
		return
	}

	hop := entry.NextHops[0]
	if r.config.LoadBalancing && len(entry.NextHops) > 1 {
		hop = entry.NextHops[pkt.FlowID%len(entry.NextHops)]
	}
	entry.Forwarded++
	entry.LastUsed = r.sched.Now()
	r.PacketsForwarded++

	link, ok := r.links[hop]
	if !ok {
		r.logger.Warnf("uetsim: router: no link bound for next hop %s", hop)
		r.PacketsDropped++
		return
	}

	if r.config.RoutingLatency > 0 {
		r.sched.Schedule(r.config.RoutingLatency, func() { link.Send(pkt) })
		return
	}
	link.Send(pkt)
}

// ReceiveFromLink implements spec.md §4.4's "On packet from link" path:
// deliver upward if the packet has reached its destination, else
// forward it onward.
func (r *IPRouter) ReceiveFromLink(pkt *Packet) {
	if pkt.Destination == r.config.LocalAddress {
		if r.OnDeliverLocal != nil {
			r.OnDeliverLocal(pkt)
		}
		return
	}
	r.Send(pkt)
}

func (r *IPRouter) armAgingTimer() {
	r.sched.Schedule(r.config.AgingInterval, r.onAgingTimer)
}

// onAgingTimer implements spec.md §4.4's aging sweep: drop entries idle
// longer than AgingTimeout.
func (r *IPRouter) onAgingTimer() {
	now := r.sched.Now()
	for dest, entry := range r.table {
		if now-entry.LastUsed > r.config.AgingTimeout {
			delete(r.table, dest)
			r.logger.Debugf("uetsim: router: aged out route to %s", dest)
		}
	}
	r.armAgingTimer()
}

// RoutingTableSize reports the number of live routing entries, used by
// the metrics layer.
func (r *IPRouter) RoutingTableSize() int {
	return len(r.table)
}
