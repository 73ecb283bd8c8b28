package uetsim

//
// Simulation topologies: wiring components into runnable node stacks
//

import "time"

// NodeStack bundles one node's full stack — workload, transport, IP
// router, and link/PHY — wired together the way spec.md §2's data-flow
// diagram describes. The zero value is invalid; build one with
// [NewNodeStack] or via a topology helper.
type NodeStack struct {
	Address   string
	Workload  *Workload
	Transport *Transport
	Router    *IPRouter
}

// NewNodeStack creates a [NodeStack] with the given address, wiring
// Workload -> Transport -> Router and Router -> Transport -> Workload
// for the local send/receive paths. It does not create any [Link]s or
// [PHY]s: callers attach those via [IPRouter.BindLink] and
// [IPRouter.AddRoute].
func NewNodeStack(sched *Scheduler, logger Logger, address string, routerConfig RouterConfig, transportConfig TransportConfig, workloadConfig *WorkloadConfig) *NodeStack {
	routerConfig.LocalAddress = address
	router := NewIPRouter(sched, logger, routerConfig)
	transport := NewTransport(sched, logger, transportConfig)

	transport.OnSendDown = router.Send
	router.OnDeliverLocal = transport.ReceiveFromNetwork

	ns := &NodeStack{Address: address, Transport: transport, Router: router}

	if workloadConfig != nil {
		workload := NewWorkload(sched, logger, *workloadConfig)
		workload.OnSend = transport.Send
		transport.OnDeliverUp = workload.ReceiveFromTransport
		ns.Workload = workload
	}

	return ns
}

// connectPointToPoint wires two [PHY]/[Link] pairs back to back so that
// frames emitted by one side's PHY are delivered to the other side's
// PHY, and vice versa, and binds the resulting [Link]s into each
// node's [IPRouter] keyed by the peer's address.
func connectPointToPoint(sched *Scheduler, logger Logger, a, b *NodeStack, phyConfigAtoB, phyConfigBtoA PHYConfig, linkConfig LinkConfig) {
	phyA := NewPHY(sched, logger, phyConfigAtoB)
	phyB := NewPHY(sched, logger, phyConfigBtoA)
	phyA.OnEmit = phyB.Receive
	phyB.OnEmit = phyA.Receive

	linkA := NewLink(sched, logger, phyA, a.Address+"->"+b.Address, linkConfig)
	linkB := NewLink(sched, logger, phyB, b.Address+"->"+a.Address, linkConfig)

	linkA.OnDeliverUp = a.Router.ReceiveFromLink
	linkB.OnDeliverUp = b.Router.ReceiveFromLink

	a.Router.BindLink(b.Address, linkA)
	b.Router.BindLink(a.Address, linkB)
}

// LinearTopology is spec.md §10's supplemented "linear chain" harness: N
// nodes connected end to end, each forwarding non-local traffic toward
// the appropriate neighbor.
type LinearTopology struct {
	Nodes []*NodeStack
}

// NewLinearTopology builds a chain of len(addresses) nodes. nodeConfig
// is called once per node index to obtain that node's router, transport,
// and (optional) workload configuration. Every node gets a static route
// to every other node via whichever neighbor is on the path.
func NewLinearTopology(sched *Scheduler, logger Logger, addresses []string, phyConfig PHYConfig, linkConfig LinkConfig, routingLatency time.Duration, nodeConfig func(index int, address string) (RouterConfig, TransportConfig, *WorkloadConfig)) *LinearTopology {
	topo := &LinearTopology{}
	for i, addr := range addresses {
		rc, tc, wc := nodeConfig(i, addr)
		rc.RoutingLatency = routingLatency
		topo.Nodes = append(topo.Nodes, NewNodeStack(sched, logger, addr, rc, tc, wc))
	}

	for i := range addresses {
		if i+1 < len(addresses) {
			connectPointToPoint(sched, logger, topo.Nodes[i], topo.Nodes[i+1], phyConfig, phyConfig, linkConfig)
		}
	}

	for i, node := range topo.Nodes {
		for j, dest := range addresses {
			if i == j {
				continue
			}
			var hop string
			if j < i {
				hop = addresses[i-1]
			} else {
				hop = addresses[i+1]
			}
			node.Router.AddRoute(dest, []string{hop})
		}
	}

	return topo
}

// FatTreeStub is a minimal two-tier fabric: a single [SwitchFabric]
// acting as the spine, with each leaf [NodeStack] attached to one
// switch port. It is deliberately a stub — a full k-ary fat tree with
// multiple spine switches and ECMP across pods is out of scope here —
// and exists so that a workload can be exercised against a switch
// fabric (and, optionally, an [INCProcessor]) rather than only
// point-to-point links.
type FatTreeStub struct {
	Nodes  []*NodeStack
	Fabric *SwitchFabric
	INC    *INCProcessor
}

// NewFatTreeStub builds a [FatTreeStub] with one leaf per address,
// each connected to fabric port `index` via a dedicated PHY/Link pair,
// and the fabric's INC-diverted traffic routed to an [INCProcessor]
// whose results re-enter the fabric.
func NewFatTreeStub(sched *Scheduler, logger Logger, addresses []string, phyConfig PHYConfig, linkConfig LinkConfig, fabricConfig SwitchFabricConfig, portConfig SwitchPortConfig, incConfig INCConfig, nodeConfig func(index int, address string) (RouterConfig, TransportConfig, *WorkloadConfig)) *FatTreeStub {
	fabricConfig.NumPorts = len(addresses)
	fabric := NewSwitchFabric(sched, logger, fabricConfig, portConfig)
	inc := NewINCProcessor(sched, logger, incConfig)

	stub := &FatTreeStub{Fabric: fabric, INC: inc}

	for i, addr := range addresses {
		rc, tc, wc := nodeConfig(i, addr)
		node := NewNodeStack(sched, logger, addr, rc, tc, wc)
		stub.Nodes = append(stub.Nodes, node)

		phyToFabric := NewPHY(sched, logger, phyConfig)
		phyToLeaf := NewPHY(sched, logger, phyConfig)
		phyToFabric.OnEmit = phyToLeaf.Receive
		phyToLeaf.OnEmit = phyToFabric.Receive

		leafLink := NewLink(sched, logger, phyToFabric, addr+"->fabric", linkConfig)
		fabricLink := NewLink(sched, logger, phyToLeaf, "fabric->"+addr, linkConfig)

		fabricLink.OnDeliverUp = fabric.Forward
		leafLink.OnDeliverUp = node.Router.ReceiveFromLink
		node.Router.BindLink("fabric", leafLink)

		port := fabric.Port(i)
		port.OnToWire = fabricLink.Send
	}

	inc.OnResult = fabric.Forward
	fabric.OnToINC = inc.Admit

	for i, node := range stub.Nodes {
		for j, dest := range addresses {
			if i == j {
				continue
			}
			node.Router.AddRoute(dest, []string{"fabric"})
		}
	}

	return stub
}
