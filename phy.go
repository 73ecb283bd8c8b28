package uetsim

//
// Physical layer: serialization, FEC, stochastic channel errors
//

import (
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// PHYRNG is a [PHY]'s view of a random number generator, abstracted for
// testability the same way the teacher package abstracts its link-forwarding
// RNG.
type PHYRNG interface {
	// Float64 is like [rand.Rand.Float64].
	Float64() float64

	// ExpFloat64 is like [rand.Rand.ExpFloat64], used to draw the number of
	// simulated error bits from a geometric-like distribution.
	ExpFloat64() float64
}

var _ PHYRNG = &rand.Rand{}

// PHYConfig configures a [PHY]. The zero value disables FEC and assumes
// an error-free, infinitely fast link, which is rarely what you want.
type PHYConfig struct {
	// LinkSpeed is the link speed in bits/s. MANDATORY for a meaningful
	// transmission delay.
	LinkSpeed float64

	// FECOverhead is the FEC overhead fraction in [0,1).
	FECOverhead float64

	// ErrorRate is the base per-bit error rate.
	ErrorRate float64

	// FECCorrectionBits is the number of bit errors FEC can correct.
	FECCorrectionBits int

	// FECEnabled toggles FEC inflation and correction.
	FECEnabled bool

	// NewRNG is an OPTIONAL factory for the [PHYRNG] used to draw
	// stochastic errors, overridable for deterministic tests.
	NewRNG func() PHYRNG
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *PHYConfig) Validate() error {
	var errs []error
	if c.LinkSpeed < 0 {
		errs = append(errs, errInvalidField("PHYConfig.LinkSpeed", "must be >= 0"))
	}
	if c.FECOverhead < 0 || c.FECOverhead >= 1 {
		errs = append(errs, errInvalidField("PHYConfig.FECOverhead", "must be in [0,1)"))
	}
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		errs = append(errs, errInvalidField("PHYConfig.ErrorRate", "must be in [0,1]"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

func (c *PHYConfig) newRNG() PHYRNG {
	if c.NewRNG != nil {
		return c.NewRNG()
	}
	return rand.New(rand.NewSource(1))
}

// PHY models the physical layer of a single link endpoint: a serial
// transmit queue with FEC-inflated transmission delay, and a stochastic
// channel-error model applied to frames arriving from the wire. The zero
// value is invalid; use [NewPHY].
type PHY struct {
	config PHYConfig
	sched  *Scheduler
	logger Logger
	rng    PHYRNG

	// txQueue is the FIFO of frames awaiting serialization. Reordering
	// inside a single PHY is impossible by construction.
	txQueue []*Frame

	// txTimer is the single reused self-event driving the tx queue.
	txTimer *Event

	// limiter is a token bucket refilled at LinkSpeed tokens/s. txDelay
	// takes one token from it per frame at the current virtual time and
	// discards the result, so it neither gates nor reorders transmissions;
	// pacing comes solely from the serial queue and the per-frame
	// bits/linkSpeed delay.
	limiter *rate.Limiter

	// OnEmit is called with a frame leaving this PHY onto the wire
	// (egress port 0). A nil OnEmit drops the frame, matching the
	// original "no external connections" behaviour.
	OnEmit func(fr *Frame)

	// OnDeliver is called with a frame that survived the channel-error
	// model and should be handed up to the link layer.
	OnDeliver func(fr *Frame)

	// Counters.
	FECCorrections     int64
	UncorrectableDrops int64
}

// NewPHY creates a new [PHY].
func NewPHY(sched *Scheduler, logger Logger, config PHYConfig) *PHY {
	if logger == nil {
		logger = &NullLogger{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.LinkSpeed > 0 {
		// One "token" per bit/s of link speed, burst large enough that a
		// single frame's bits never gets throttled mid-frame.
		limiter = rate.NewLimiter(rate.Limit(config.LinkSpeed), 1<<20)
	}
	return &PHY{
		config:  config,
		sched:   sched,
		logger:  logger,
		rng:     config.newRNG(),
		limiter: limiter,
	}
}

// Transmit enqueues fr for serialization onto the wire. This is spec.md
// §4.2's "transmit(pkt)" operation, generalized to also carry LLR acks.
func (p *PHY) Transmit(fr *Frame) {
	if p.config.FECEnabled {
		fr.BitLength = int(float64(fr.BitLength) * (1 + p.config.FECOverhead))
	}
	p.txQueue = append(p.txQueue, fr)
	if p.txTimer == nil {
		p.armTxTimer()
	}
}

// armTxTimer schedules the next drain of the tx queue based on the
// bit length of the frame currently at its head.
func (p *PHY) armTxTimer() {
	if len(p.txQueue) == 0 {
		p.txTimer = nil
		return
	}
	delay := p.txDelay(p.txQueue[0])
	p.txTimer = p.sched.Schedule(delay, p.onTxTimer)
}

// txDelay computes the serialization delay for fr given the configured
// link speed. It also takes one token from the limiter at the current
// virtual time; that result does not affect the returned delay.
func (p *PHY) txDelay(fr *Frame) time.Duration {
	if p.config.LinkSpeed <= 0 {
		return 0
	}
	seconds := float64(fr.BitLength) / p.config.LinkSpeed
	_ = p.limiter.AllowN(virtualTime(p.sched.Now()), 1) // pacing bookkeeping only, never blocks
	return time.Duration(seconds * float64(time.Second))
}

// onTxTimer fires when the head-of-line frame's serialization delay has
// elapsed: pop it, emit on egress port 0, and rearm for the new head.
func (p *PHY) onTxTimer() {
	if len(p.txQueue) == 0 {
		p.txTimer = nil
		return
	}
	fr := p.txQueue[0]
	p.txQueue = p.txQueue[1:]
	if p.OnEmit != nil {
		p.OnEmit(fr)
	} else {
		p.logger.Debugf("uetsim: phy: dropping frame, no egress port configured")
	}
	p.armTxTimer()
}

// Receive processes a frame arriving from the wire: a packet-error
// probability is computed from bit length and base error rate; on error,
// a geometric-like number of error bits is drawn and compared against the
// FEC correction capacity. This is spec.md §4.2's "receive(pkt)" operation.
func (p *PHY) Receive(fr *Frame) {
	if !p.config.FECEnabled || p.config.ErrorRate <= 0 {
		p.deliver(fr)
		return
	}
	packetErrorProb := 1 - math.Pow(1-p.config.ErrorRate, float64(fr.BitLength))
	if p.rng.Float64() >= packetErrorProb {
		p.deliver(fr)
		return
	}
	// draw a geometric number of error bits: mean 1/errorRate, modeled via
	// an exponential draw as the continuous analog used for determinism.
	errorBits := int(p.rng.ExpFloat64() / p.config.ErrorRate)
	if errorBits <= p.config.FECCorrectionBits {
		p.FECCorrections++
		p.deliver(fr)
		return
	}
	p.UncorrectableDrops++
	p.logger.Debugf("uetsim: phy: dropping uncorrectable frame (errorBits=%d)", errorBits)
}

func (p *PHY) deliver(fr *Frame) {
	if p.OnDeliver != nil {
		p.OnDeliver(fr)
	}
}

// QueueLength returns the number of frames currently queued for
// transmission, used by the metrics layer to derive link utilisation.
func (p *PHY) QueueLength() int {
	return len(p.txQueue)
}
