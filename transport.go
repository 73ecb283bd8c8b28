package uetsim

//
// UET transport: end-to-end sequencing, retransmission, spraying, cwnd
//

import (
	"math/rand"
	"sort"
	"time"
)

// TransportProfile names a transport configuration bundle, per spec.md's
// glossary.
type TransportProfile int

const (
	// ProfileAIBase is best effort: no retransmission.
	ProfileAIBase TransportProfile = iota

	// ProfileAIFull adds reliability, reordering, and packet spraying.
	ProfileAIFull

	// ProfileHPC adds reliability without spraying, to preserve
	// ordering at the transport.
	ProfileHPC
)

// String implements fmt.Stringer.
func (p TransportProfile) String() string {
	switch p {
	case ProfileAIBase:
		return "AI_BASE"
	case ProfileAIFull:
		return "AI_FULL"
	case ProfileHPC:
		return "HPC"
	default:
		return "UNKNOWN"
	}
}

// TransportRNG is a [Transport]'s view of the randomness it needs for
// flow-id generation and spray-path selection.
type TransportRNG interface {
	Intn(n int) int
}

var _ TransportRNG = &rand.Rand{}

// transportRetransmissionEntry is spec.md §3's "Transport retransmission
// entry".
type transportRetransmissionEntry struct {
	packet    *Packet
	timestamp time.Duration
	retries   int
}

// TransportConfig configures a [Transport].
type TransportConfig struct {
	// Profile selects the reliability/reordering/spraying bundle.
	Profile TransportProfile

	// ParentIndex feeds flow-id generation, mirroring a vector module's
	// index in the original design.
	ParentIndex int

	// PacketSprayingEnabled additionally gates spraying on top of
	// Profile == ProfileAIFull.
	PacketSprayingEnabled bool

	// ReorderingEnabled additionally gates reordering on top of
	// Profile == ProfileAIFull.
	ReorderingEnabled bool

	// MaxReorderBuffer bounds the reorder buffer.
	MaxReorderBuffer int

	// InitialCongestionWindow seeds cwnd.
	InitialCongestionWindow int

	// RdmaTimeout is the retransmission timer period.
	RdmaTimeout time.Duration

	// MaxRetransmissions is the retry budget for a send.
	MaxRetransmissions int

	// NewRNG is an OPTIONAL factory for the [TransportRNG] used for
	// flow-id generation and spray-path selection, overridable for
	// deterministic tests.
	NewRNG func() TransportRNG
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *TransportConfig) Validate() error {
	var errs []error
	if c.InitialCongestionWindow < 1 {
		errs = append(errs, errInvalidField("TransportConfig.InitialCongestionWindow", "must be >= 1"))
	}
	if c.MaxReorderBuffer < 0 {
		errs = append(errs, errInvalidField("TransportConfig.MaxReorderBuffer", "must be >= 0"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

func (c *TransportConfig) newRNG() TransportRNG {
	if c.NewRNG != nil {
		return c.NewRNG()
	}
	return rand.New(rand.NewSource(1))
}

// baseRTT is spec.md §4.7's nominal base RTT used by the congestion
// window update law.
const baseRTT = time.Millisecond

const (
	minCongestionWindow = 1
	maxCongestionWindow = 64
)

// Transport implements spec.md §4.7's end-to-end state machine: per-send
// sequencing, an optional retransmission buffer, an optional reorder
// buffer, spraying, and a congestion window. The zero value is invalid;
// use [NewTransport].
type Transport struct {
	config TransportConfig
	sched  *Scheduler
	logger Logger
	rng    TransportRNG

	nextTxSeq     int
	expectedRxSeq int

	reorderBuf map[int]*Packet
	rtxBuf     map[int]*transportRetransmissionEntry
	rtxTimer   *Event

	cwnd int

	// OnSendDown is called with a DATA/ACK packet ready for the IP
	// layer.
	OnSendDown func(pkt *Packet)

	// OnDeliverUp is called with a packet delivered to the application:
	// in sequence order when reordering is active (ProfileAIFull with
	// ReorderingEnabled), otherwise in arrival order.
	OnDeliverUp func(pkt *Packet)

	// OnLatencySample is called with an end-to-end RTT sample whenever
	// one is produced, for the metrics layer.
	OnLatencySample func(rtt time.Duration)

	PacketsTransmitted int64
	PacketsReceived    int64
	Retransmissions    int64
}

// NewTransport creates a new [Transport].
func NewTransport(sched *Scheduler, logger Logger, config TransportConfig) *Transport {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &Transport{
		config:     config,
		sched:      sched,
		logger:     logger,
		rng:        config.newRNG(),
		reorderBuf: map[int]*Packet{},
		rtxBuf:     map[int]*transportRetransmissionEntry{},
		cwnd:       config.InitialCongestionWindow,
	}
}

// Send implements spec.md §4.7's "Send (from application)" path.
func (t *Transport) Send(pkt *Packet) {
	pkt.Seq = t.nextTxSeq
	t.nextTxSeq++
	pkt.Transport = TransportData
	pkt.FlowID = t.generateFlowID()
	pkt.Timestamp = t.sched.Now()

	if t.config.PacketSprayingEnabled && t.config.Profile == ProfileAIFull {
		pkt.SprayPath = t.rng.Intn(4)
	}

	if t.config.Profile != ProfileAIBase {
		t.rtxBuf[pkt.Seq] = &transportRetransmissionEntry{
			packet:    pkt.Clone(),
			timestamp: t.sched.Now(),
			retries:   0,
		}
		t.armRtxTimer()
	}

	t.emitDown(pkt)
}

// generateFlowID mirrors spec.md §4.7's `parentIndex*10000 +
// rand(0..9999)` scheme.
func (t *Transport) generateFlowID() int {
	return t.config.ParentIndex*10000 + t.rng.Intn(10000)
}

func (t *Transport) emitDown(pkt *Packet) {
	if t.OnSendDown != nil {
		t.OnSendDown(pkt)
	}
	t.PacketsTransmitted++
}

// ReceiveFromNetwork implements spec.md §4.7's "Receive (from network)"
// path.
func (t *Transport) ReceiveFromNetwork(pkt *Packet) {
	t.PacketsReceived++

	if pkt.Transport == TransportAck {
		t.processAcknowledgment(pkt)
		return
	}

	peer := pkt.Source

	if t.config.ReorderingEnabled && t.config.Profile == ProfileAIFull {
		switch {
		case pkt.Seq == t.expectedRxSeq:
			t.processInOrderPacket(pkt)
			t.expectedRxSeq++
			t.drainReorderBuffer()
		case pkt.Seq > t.expectedRxSeq:
			if len(t.reorderBuf) < t.config.MaxReorderBuffer {
				t.reorderBuf[pkt.Seq] = pkt
			} else {
				t.logger.Debugf("uetsim: transport: %s", ErrReorderBufferFull)
			}
		default:
			// duplicate, drop
		}
	} else {
		t.processInOrderPacket(pkt)
	}

	t.sendAcknowledgment(pkt.Seq, peer)
}

// processInOrderPacket delivers pkt upward and, per spec.md §9's pinned
// "RTT update also fires on a non-ACK match" behaviour, samples RTT
// whenever pkt.Seq happens to match an entry in OUR OWN retransmission
// buffer (keyed by our own sent sequence numbers, not the peer's).
func (t *Transport) processInOrderPacket(pkt *Packet) {
	if entry, ok := t.rtxBuf[pkt.Seq]; ok {
		t.sampleRTT(entry)
		delete(t.rtxBuf, pkt.Seq)
	}
	if t.OnDeliverUp != nil {
		t.OnDeliverUp(pkt)
	}
}

func (t *Transport) drainReorderBuffer() {
	for {
		pkt, ok := t.reorderBuf[t.expectedRxSeq]
		if !ok {
			return
		}
		delete(t.reorderBuf, t.expectedRxSeq)
		t.processInOrderPacket(pkt)
		t.expectedRxSeq++
	}
}

func (t *Transport) processAcknowledgment(ack *Packet) {
	entry, ok := t.rtxBuf[ack.Seq]
	if !ok {
		return
	}
	t.sampleRTT(entry)
	delete(t.rtxBuf, ack.Seq)
}

func (t *Transport) sampleRTT(entry *transportRetransmissionEntry) {
	rtt := t.sched.Now() - entry.timestamp
	t.updateCongestionWindow(rtt)
	if t.OnLatencySample != nil {
		t.OnLatencySample(rtt)
	}
}

// updateCongestionWindow implements spec.md §4.7's cwnd update law.
func (t *Transport) updateCongestionWindow(rtt time.Duration) {
	switch {
	case rtt < baseRTT*3/2:
		t.cwnd = clampInt(t.cwnd+1, minCongestionWindow, maxCongestionWindow)
	case rtt > baseRTT*2:
		t.cwnd = clampInt(t.cwnd-1, minCongestionWindow, maxCongestionWindow)
	}
}

func (t *Transport) sendAcknowledgment(seq int, dest string) {
	ack := &Packet{
		Transport:   TransportAck,
		Destination: dest,
		Seq:         seq,
		Timestamp:   t.sched.Now(),
	}
	t.emitDown(ack)
}

func (t *Transport) armRtxTimer() {
	if t.rtxTimer != nil {
		return
	}
	t.rtxTimer = t.sched.Schedule(t.config.RdmaTimeout, t.onRdmaTimeout)
}

// onRdmaTimeout implements spec.md §4.7's retransmission timer sweep.
func (t *Transport) onRdmaTimeout() {
	t.rtxTimer = nil
	// Sweep in sequence order so retransmissions are emitted
	// deterministically rather than in map iteration order.
	seqs := make([]int, 0, len(t.rtxBuf))
	for seq := range t.rtxBuf {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		entry := t.rtxBuf[seq]
		if t.sched.Now()-entry.timestamp <= t.config.RdmaTimeout {
			continue
		}
		if entry.retries < t.config.MaxRetransmissions {
			entry.retries++
			entry.timestamp = t.sched.Now()
			t.emitDown(entry.packet.Clone())
			t.Retransmissions++
			t.cwnd = clampInt(t.cwnd/2, minCongestionWindow, maxCongestionWindow)
		} else {
			delete(t.rtxBuf, seq)
		}
	}
	if len(t.rtxBuf) > 0 {
		t.armRtxTimer()
	}
}

// CongestionWindow reports the current cwnd, used by the metrics layer.
func (t *Transport) CongestionWindow() int {
	return t.cwnd
}

// ReorderBufferLen reports the current reorder buffer occupancy.
func (t *Transport) ReorderBufferLen() int {
	return len(t.reorderBuf)
}
