package uetsim

//
// Link layer: local link-level retransmission (LLR) and PRI compression
//

import (
	"sort"
	"time"
)

// LinkConfig configures a [Link].
type LinkConfig struct {
	// LLREnabled toggles link-level retransmission.
	LLREnabled bool

	// LLRTimeout is the LLR retransmission timer period.
	LLRTimeout time.Duration

	// MaxRetransmissions is the retry budget for LLR entries.
	MaxRetransmissions int

	// PRICompressionRatio is the header/payload compression ratio in
	// [0,1). Zero disables PRI compression.
	PRICompressionRatio float64

	// LinkLatency is the extra propagation delay applied before handing
	// a frame to the PHY.
	LinkLatency time.Duration
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *LinkConfig) Validate() error {
	var errs []error
	if c.PRICompressionRatio < 0 || c.PRICompressionRatio >= 1 {
		errs = append(errs, errInvalidField("LinkConfig.PRICompressionRatio", "must be in [0,1)"))
	}
	if c.MaxRetransmissions < 0 {
		errs = append(errs, errInvalidField("LinkConfig.MaxRetransmissions", "must be >= 0"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

// llrRetransmissionEntry is spec.md §3's "LLR retransmission entry",
// keyed by the link-level sequence number assigned at send time.
type llrRetransmissionEntry struct {
	frame     *Frame
	timestamp time.Duration
	retries   int
}

// Link implements one endpoint of a point-to-point link: assigning LLR
// sequence numbers on send, tracking outstanding frames for local
// retransmission, emitting POSITIVE/NEGATIVE acks on receive, and
// applying PRI compression/decompression. A Link is bound to exactly one
// [PHY], which it uses both to transmit and, via OnDeliver, to receive.
// The zero value is invalid; use [NewLink].
type Link struct {
	config LinkConfig
	sched  *Scheduler
	logger Logger
	phy    *PHY
	name   string

	nextTxLlrSeq     int
	expectedRxLlrSeq int

	// nakSent pins spec.md §9's single-shot NAK behaviour: at most one NEG
	// ack is emitted for the current gap at expectedRxLlrSeq; it resets
	// only when expectedRxLlrSeq itself advances.
	nakSent bool

	rtxBuf   map[int]*llrRetransmissionEntry
	rtxTimer *Event

	// OnDeliverUp is called with a data packet that is in-order (or
	// passed through unchanged with LLR disabled) and ready for the IP
	// layer.
	OnDeliverUp func(pkt *Packet)

	// Counters, named after spec.md §4.9.
	PacketsTransmitted   int64
	PacketsReceived      int64
	LLRRetransmissions   int64
	CompressionRatioLast float64
}

// NewLink creates a new [Link] bound to phy for both transmission and
// channel-error-filtered reception.
func NewLink(sched *Scheduler, logger Logger, phy *PHY, name string, config LinkConfig) *Link {
	if logger == nil {
		logger = &NullLogger{}
	}
	l := &Link{
		config: config,
		sched:  sched,
		logger: logger,
		phy:    phy,
		name:   name,
		rtxBuf: map[int]*llrRetransmissionEntry{},
	}
	phy.OnDeliver = l.receiveFromPHY
	return l
}

// Send implements spec.md §4.3's send path: assign an LLR sequence,
// apply PRI compression, optionally buffer for LLR retransmission, and
// forward to the PHY after the configured link latency.
func (l *Link) Send(pkt *Packet) {
	pkt.LLRAckSeq = l.nextTxLlrSeq
	l.nextTxLlrSeq++

	if l.config.PRICompressionRatio > 0 {
		l.applyCompression(pkt)
	}

	if l.config.LLREnabled {
		entry := &llrRetransmissionEntry{
			frame:     newDataFrame(pkt.Clone(), l.sched.Now()),
			timestamp: l.sched.Now(),
			retries:   0,
		}
		l.rtxBuf[pkt.LLRAckSeq] = entry
		l.armRtxTimer()
	}

	l.forwardToPHY(newDataFrame(pkt, l.sched.Now()))
	l.PacketsTransmitted++
}

// forwardToPHY hands fr to the PHY, optionally delayed by LinkLatency.
func (l *Link) forwardToPHY(fr *Frame) {
	if l.config.LinkLatency > 0 {
		l.sched.Schedule(l.config.LinkLatency, func() { l.phy.Transmit(fr) })
		return
	}
	l.phy.Transmit(fr)
}

// applyCompression scales pkt's byte length by (1-ratio) and records the
// achieved ratio, per spec.md §4.3.
func (l *Link) applyCompression(pkt *Packet) {
	original := pkt.ByteLength
	compressed := int(float64(original) * (1 - l.config.PRICompressionRatio))
	pkt.ByteLength = compressed
	if original > 0 {
		l.CompressionRatioLast = float64(original-compressed) / float64(original)
	}
}

// applyDecompression reverses [Link.applyCompression] on the receive side.
func (l *Link) applyDecompression(pkt *Packet) {
	if l.config.PRICompressionRatio <= 0 {
		return
	}
	pkt.ByteLength = int(float64(pkt.ByteLength) / (1 - l.config.PRICompressionRatio))
}

// receiveFromPHY is wired as the local PHY's OnDeliver callback; it
// demultiplexes control frames (LLR acks) from data frames, per spec.md
// §4.3's receive path table.
func (l *Link) receiveFromPHY(fr *Frame) {
	l.PacketsReceived++
	if fr.Ack != nil {
		l.handleLLRAck(fr.Ack)
		return
	}
	l.handleDataFrame(fr.Packet)
}

func (l *Link) handleDataFrame(pkt *Packet) {
	if !l.config.LLREnabled {
		l.applyDecompression(pkt)
		l.deliverUp(pkt)
		return
	}

	switch {
	case pkt.LLRAckSeq == l.expectedRxLlrSeq:
		l.expectedRxLlrSeq++
		l.nakSent = false
		l.sendAck(LLRPositive, pkt.LLRAckSeq)
		l.applyDecompression(pkt)
		l.deliverUp(pkt)
	case pkt.LLRAckSeq > l.expectedRxLlrSeq:
		// Gap: NACK the single expected sequence and drop, but only once
		// per gap. Per spec.md §9 this is a pinned single-shot NAK: later
		// gap-fillers above the same hole are silently dropped with no
		// further NEG ack, until expectedRxLlrSeq itself advances.
		if !l.nakSent {
			l.nakSent = true
			l.sendAck(LLRNegative, l.expectedRxLlrSeq)
		}
	default:
		// Duplicate: ack positively but drop.
		l.sendAck(LLRPositive, pkt.LLRAckSeq)
	}
}

func (l *Link) deliverUp(pkt *Packet) {
	if l.OnDeliverUp != nil {
		l.OnDeliverUp(pkt)
	}
}

func (l *Link) sendAck(t LLRAckType, seq int) {
	ack := &LLRAck{Seq: seq, Type: t, PathID: 0}
	l.forwardToPHY(newAckFrame(ack, l.sched.Now()))
	l.PacketsTransmitted++
}

// handleLLRAck implements spec.md §4.3's "LLR ack handling".
func (l *Link) handleLLRAck(ack *LLRAck) {
	entry, ok := l.rtxBuf[ack.Seq]
	if !ok {
		return
	}
	switch ack.Type {
	case LLRPositive:
		delete(l.rtxBuf, ack.Seq)
	case LLRNegative:
		l.retransmit(ack.Seq, entry)
	}
}

func (l *Link) retransmit(seq int, entry *llrRetransmissionEntry) {
	entry.retries++
	entry.timestamp = l.sched.Now()
	l.forwardToPHY(newDataFrame(entry.frame.Packet.Clone(), l.sched.Now()))
	l.PacketsTransmitted++
	l.LLRRetransmissions++
}

// armRtxTimer schedules the LLR timeout sweep if not already pending.
func (l *Link) armRtxTimer() {
	if l.rtxTimer != nil {
		return
	}
	l.rtxTimer = l.sched.Schedule(l.config.LLRTimeout, l.onLLRTimeout)
}

// onLLRTimeout implements spec.md §4.3's timeout behaviour: sweep the
// retransmission buffer, retransmit anything that has aged past
// LLRTimeout and still has retry budget, drop what doesn't, and rearm if
// anything remains outstanding.
func (l *Link) onLLRTimeout() {
	l.rtxTimer = nil
	// Sweep in sequence order so retransmissions are scheduled
	// deterministically rather than in map iteration order.
	seqs := make([]int, 0, len(l.rtxBuf))
	for seq := range l.rtxBuf {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		entry := l.rtxBuf[seq]
		if l.sched.Now()-entry.timestamp <= l.config.LLRTimeout {
			continue
		}
		if entry.retries < l.config.MaxRetransmissions {
			l.retransmit(seq, entry)
		} else {
			delete(l.rtxBuf, seq)
		}
	}
	if len(l.rtxBuf) > 0 {
		l.armRtxTimer()
	}
}

// RetransmissionBufferLen reports the current LLR retransmission buffer
// occupancy, used by the metrics layer.
func (l *Link) RetransmissionBufferLen() int {
	return len(l.rtxBuf)
}

// ExpectedRxLlrSeq reports the next in-order LLR sequence this link
// expects to receive, used by tests and the metrics layer to observe the
// monotonic-non-decreasing invariant directly.
func (l *Link) ExpectedRxLlrSeq() int {
	return l.expectedRxLlrSeq
}
