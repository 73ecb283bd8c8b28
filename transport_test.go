package uetsim

import (
	"testing"
	"time"
)

// fakeTransportRNG returns a fixed value, enough to make flow-id and
// spray-path assignment deterministic in tests.
type fakeTransportRNG struct{ n int }

func (r *fakeTransportRNG) Intn(n int) int { return r.n % n }

func TestTransportSendAssignsSeqAndBuffersForReliableProfiles(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, InitialCongestionWindow: 10, RdmaTimeout: time.Second,
		NewRNG: func() TransportRNG { return &fakeTransportRNG{} },
	})

	var sent []*Packet
	tr.OnSendDown = func(pkt *Packet) { sent = append(sent, pkt) }

	tr.Send(&Packet{})
	tr.Send(&Packet{})

	if len(sent) != 2 || sent[0].Seq != 0 || sent[1].Seq != 1 {
		t.Fatalf("expected monotonically assigned sequence numbers, got %+v", sent)
	}
	if tr.ReorderBufferLen() != 0 {
		t.Fatalf("nothing received yet, expected empty reorder buffer")
	}
	if len(tr.rtxBuf) != 2 {
		t.Fatalf("got %d retransmission entries, want 2 (AI_FULL buffers every send)", len(tr.rtxBuf))
	}
}

func TestTransportAIBaseDoesNotBuffer(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIBase, InitialCongestionWindow: 10, RdmaTimeout: time.Second,
	})
	tr.OnSendDown = func(pkt *Packet) {}

	tr.Send(&Packet{})

	// AI_BASE never buffers for retransmission: an ACK for seq 0 should be
	// a no-op, not observable directly, but we confirm no retransmission
	// can fire by checking that the scheduler has nothing pending.
	if !sched.Empty() {
		t.Fatal("AI_BASE should not arm a retransmission timer")
	}
}

func TestTransportACKClearsRetransmissionEntry(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, InitialCongestionWindow: 10, RdmaTimeout: time.Hour,
	})

	var sampled time.Duration
	tr.OnLatencySample = func(rtt time.Duration) { sampled = rtt }
	tr.OnSendDown = func(pkt *Packet) {}

	tr.Send(&Packet{})
	sched.Schedule(5*time.Millisecond, func() {
		tr.ReceiveFromNetwork(&Packet{Transport: TransportAck, Seq: 0})
	})
	sched.Run()

	if sampled != 5*time.Millisecond {
		t.Fatalf("got RTT sample=%s, want 5ms", sampled)
	}
	if len(tr.rtxBuf) != 0 {
		t.Fatalf("got %d retransmission entries, want 0 after the ACK", len(tr.rtxBuf))
	}
}

// TestTransportRTTNonACKPath pins the open-question behaviour: a non-ACK
// packet whose Seq matches a LOCAL retransmission-buffer entry also
// triggers an RTT sample, the same as a real ACK would.
func TestTransportRTTNonACKPath(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, InitialCongestionWindow: 10, RdmaTimeout: time.Hour,
	})

	var sampled time.Duration
	var delivered bool
	tr.OnLatencySample = func(rtt time.Duration) { sampled = rtt }
	tr.OnDeliverUp = func(pkt *Packet) { delivered = true }
	tr.OnSendDown = func(pkt *Packet) {}

	tr.Send(&Packet{}) // assigns Seq=0, buffers into rtxBuf[0]

	sched.Schedule(3*time.Millisecond, func() {
		// A DATA packet from the peer happening to carry Seq 0 (the
		// peer's own independent sequence space) still matches our
		// local rtxBuf key and triggers a sample.
		tr.ReceiveFromNetwork(&Packet{Transport: TransportData, Source: "peer", Seq: 0})
	})
	sched.Run()

	if !delivered {
		t.Fatal("expected the packet delivered upward regardless")
	}
	if sampled != 3*time.Millisecond {
		t.Fatalf("got RTT sample=%s, want 3ms via the pinned non-ACK path", sampled)
	}
	if tr.ReorderBufferLen() != 0 {
		t.Fatalf("got reorder buffer len %d, want 0", tr.ReorderBufferLen())
	}
}

func TestTransportReorderBufferDrainsInOrder(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, ReorderingEnabled: true, MaxReorderBuffer: 8,
		InitialCongestionWindow: 10, RdmaTimeout: time.Hour,
	})
	tr.OnSendDown = func(pkt *Packet) {}

	var order []int
	tr.OnDeliverUp = func(pkt *Packet) { order = append(order, pkt.Seq) }

	tr.ReceiveFromNetwork(&Packet{Transport: TransportData, Source: "peer", Seq: 2})
	tr.ReceiveFromNetwork(&Packet{Transport: TransportData, Source: "peer", Seq: 1})
	tr.ReceiveFromNetwork(&Packet{Transport: TransportData, Source: "peer", Seq: 0})

	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestTransportCongestionWindowDecreasesOnSlowRTT(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, InitialCongestionWindow: 10, RdmaTimeout: time.Hour,
	})
	tr.OnSendDown = func(pkt *Packet) {}

	tr.Send(&Packet{})
	sched.Schedule(3*time.Millisecond, func() { // > baseRTT*2 (2ms)
		tr.ReceiveFromNetwork(&Packet{Transport: TransportAck, Seq: 0})
	})
	sched.Run()

	if tr.CongestionWindow() != 9 {
		t.Fatalf("got cwnd=%d, want 9 after a slow RTT", tr.CongestionWindow())
	}
}

func TestTransportCongestionWindowIncreasesOnFastRTT(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, InitialCongestionWindow: 10, RdmaTimeout: time.Hour,
	})
	tr.OnSendDown = func(pkt *Packet) {}

	tr.Send(&Packet{})
	sched.Schedule(100*time.Microsecond, func() { // < baseRTT*1.5 (1.5ms)
		tr.ReceiveFromNetwork(&Packet{Transport: TransportAck, Seq: 0})
	})
	sched.Run()

	if tr.CongestionWindow() != 11 {
		t.Fatalf("got cwnd=%d, want 11 after a fast RTT", tr.CongestionWindow())
	}
}

func TestTransportRetransmitsOnTimeoutAndHalvesCwnd(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileAIFull, InitialCongestionWindow: 10,
		RdmaTimeout: time.Millisecond, MaxRetransmissions: 3,
	})

	var sends int
	tr.OnSendDown = func(pkt *Packet) { sends++ }

	tr.Send(&Packet{})
	sched.RunUntil(2 * time.Millisecond)

	if tr.Retransmissions == 0 {
		t.Fatal("expected at least one retransmission")
	}
	if tr.CongestionWindow() >= 10 {
		t.Fatalf("got cwnd=%d, want < 10 after timeout-triggered halving", tr.CongestionWindow())
	}
	if sends < 2 {
		t.Fatalf("got %d sends, want at least 2 (original + retransmit)", sends)
	}
}

func TestTransportSprayPathOnlyForAIFullWithSprayingEnabled(t *testing.T) {
	sched := NewScheduler(&NullLogger{})
	tr := NewTransport(sched, &NullLogger{}, TransportConfig{
		Profile: ProfileHPC, PacketSprayingEnabled: true, InitialCongestionWindow: 10,
		NewRNG: func() TransportRNG { return &fakeTransportRNG{n: 2} },
	})
	tr.OnSendDown = func(pkt *Packet) {}

	pkt := &Packet{}
	tr.Send(pkt)

	if pkt.SprayPath != 0 {
		t.Fatalf("got SprayPath=%d, want 0 (spraying only applies to AI_FULL)", pkt.SprayPath)
	}
}

func TestTransportConfigValidate(t *testing.T) {
	cfg := TransportConfig{InitialCongestionWindow: 0, MaxReorderBuffer: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
