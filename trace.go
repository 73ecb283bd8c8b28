package uetsim

//
// Simulation trace export: packets rendered as synthetic Ethernet/IPv4/UDP
// frames for inspection in ordinary packet-capture tooling. This is a
// visualizer only; the simulator has no real on-the-wire byte layout
// (spec.md §6).
//

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// TraceWriter renders [Packet]s traversing the simulator as a PCAP trace,
// timestamped at scheduler virtual time. The zero value is invalid; use
// [NewTraceWriter].
type TraceWriter struct {
	w      *pcapgo.Writer
	closer io.Closer
	logger Logger

	addrs    map[string]net.IP
	nextHost byte
}

// traceEpoch anchors virtual time zero to a fixed wall-clock instant so
// that emitted timestamps are monotonic and readable by ordinary
// capture tooling, without depending on [time.Now] (forbidden inside
// the deterministic simulation core).
var traceEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTraceWriter creates a [TraceWriter] writing to the file at path.
func NewTraceWriter(path string, logger Logger) (*TraceWriter, error) {
	if logger == nil {
		logger = &NullLogger{}
	}
	filep, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(filep)
	const snapLen = 65536
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		filep.Close()
		return nil, err
	}
	return &TraceWriter{
		w:      w,
		closer: filep,
		logger: logger,
		addrs:  map[string]net.IP{},
	}, nil
}

// allocAddr deterministically maps a simulator address to a 10.0.0.0/8
// IPv4 address, assigning in first-seen order.
func (tw *TraceWriter) allocAddr(addr string) net.IP {
	if ip, ok := tw.addrs[addr]; ok {
		return ip
	}
	tw.nextHost++
	ip := net.IPv4(10, 0, 0, tw.nextHost)
	tw.addrs[addr] = ip
	return ip
}

// WritePacket renders pkt as a synthetic Ethernet+IPv4+UDP frame
// timestamped at the scheduler's virtual time "at".
func (tw *TraceWriter) WritePacket(pkt *Packet, at time.Duration) error {
	eth := &layers.Ethernet{
		SrcMAC:       macFor(pkt.Source),
		DstMAC:       macFor(pkt.Destination),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    tw.allocAddr(pkt.Source),
		DstIP:    tw.allocAddr(pkt.Destination),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(1024 + pkt.FlowID%1000),
		DstPort: layers.UDPPort(2000 + int(pkt.Kind)),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	payload := gopacket.Payload(make([]byte, maxInt(pkt.ByteLength, 0)))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload); err != nil {
		return err
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     traceEpoch.Add(at),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	return tw.w.WritePacket(ci, buf.Bytes())
}

// macFor derives a stable, locally-administered MAC address from a
// simulator address string, purely for trace readability.
func macFor(addr string) net.HardwareAddr {
	h := addrHash(addr)
	return net.HardwareAddr{0x02, 0x00, 0x00, byte(h >> 16), byte(h >> 8), byte(h)}
}

// Close flushes and closes the underlying trace file.
func (tw *TraceWriter) Close() error {
	return tw.closer.Close()
}
