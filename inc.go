package uetsim

//
// In-network computing processor: admission, queueing, reduction
//

import "time"

// incOperation is spec.md §3's "INC operation record".
type incOperation struct {
	packet      *Packet
	startTime   time.Duration
	collective  CollectiveType
	participant int
	reduction   ReductionOp
}

// INCConfig configures an [INCProcessor].
type INCConfig struct {
	// MaxConcurrentOperations bounds the number of operations processed
	// simultaneously. Processing is serial and an operation counts as
	// active only inside the processing-timer callback, so at admission
	// time the active count is always zero: this bound rejects requests
	// only when it is zero or less, and the queued backlog is bounded by
	// BufferSize alone.
	MaxConcurrentOperations int

	// BufferSize bounds the total bytes of admitted, not-yet-processed
	// requests.
	BufferSize int

	// ProcessingLatency is the per-operation processing delay.
	ProcessingLatency time.Duration
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *INCConfig) Validate() error {
	var errs []error
	if c.MaxConcurrentOperations <= 0 {
		errs = append(errs, errInvalidField("INCConfig.MaxConcurrentOperations", "must be > 0"))
	}
	if c.BufferSize < 0 {
		errs = append(errs, errInvalidField("INCConfig.BufferSize", "must be >= 0"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

// INCProcessor implements spec.md §4.6: bounded admission control, a
// FIFO queue drained by a single reused processing timer, and the
// per-collective size-transform table. The zero value is invalid; use
// [NewINCProcessor].
type INCProcessor struct {
	config INCConfig
	sched  *Scheduler
	logger Logger

	queue          []*incOperation
	currentBuffered int
	activeOps       int
	timer           *Event

	// OnResult is called with the result packet produced by a completed
	// operation, addressed back to the original requester.
	OnResult func(pkt *Packet)

	OperationsProcessed int64
	OperationsDropped   int64
}

// NewINCProcessor creates a new [INCProcessor].
func NewINCProcessor(sched *Scheduler, logger Logger, config INCConfig) *INCProcessor {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &INCProcessor{config: config, sched: sched, logger: logger}
}

// Admit implements spec.md §4.6's admission control and enqueue step.
// Rejected requests are counted as dropped; the packet is not retained.
func (p *INCProcessor) Admit(pkt *Packet) {
	if p.activeOps >= p.config.MaxConcurrentOperations ||
		p.currentBuffered+pkt.ByteLength > p.config.BufferSize {
		p.logger.Debugf("uetsim: inc: %s", ErrINCBufferFull)
		p.OperationsDropped++
		return
	}

	op := &incOperation{
		packet:      pkt,
		startTime:   p.sched.Now(),
		collective:  pkt.INC.Collective,
		participant: pkt.INC.Participants,
		reduction:   pkt.INC.Reduction,
	}
	p.queue = append(p.queue, op)
	p.currentBuffered += pkt.ByteLength

	if p.timer == nil {
		p.armTimer()
	}
}

func (p *INCProcessor) armTimer() {
	p.timer = p.sched.Schedule(p.config.ProcessingLatency, p.onProcessingTimer)
}

// onProcessingTimer implements spec.md §4.6's serial processing step.
func (p *INCProcessor) onProcessingTimer() {
	p.timer = nil
	if len(p.queue) == 0 {
		return
	}

	op := p.queue[0]
	p.queue = p.queue[1:]
	p.activeOps++
	p.currentBuffered -= op.packet.ByteLength

	result := p.buildResult(op)
	p.activeOps--

	if result == nil {
		p.OperationsDropped++
	} else {
		p.OperationsProcessed++
		if p.OnResult != nil {
			p.OnResult(result)
		}
	}

	if len(p.queue) > 0 && p.activeOps < p.config.MaxConcurrentOperations {
		p.armTimer()
	}
}

// buildResult implements spec.md §4.6's result-construction table and
// the source/destination swap. Per spec.md §7, an unknown collective
// type releases the allocation and returns nil rather than a result, so
// the caller counts it as dropped instead of processed.
func (p *INCProcessor) buildResult(op *incOperation) *Packet {
	switch op.collective {
	case AllReduce, Broadcast, AllGather, ReduceScatter:
	default:
		p.logger.Warnf("uetsim: inc: %s: %s", ErrUnknownCollective, op.collective)
		return nil
	}

	result := op.packet.Clone()
	result.Source, result.Destination = op.packet.Destination, op.packet.Source
	result.Timestamp = p.sched.Now()
	result.INC.Intermediate = true
	result.INC.Reduction = op.reduction
	result.INC.Participants = op.participant

	switch op.collective {
	case AllGather:
		result.ByteLength = op.packet.ByteLength * op.participant
	case ReduceScatter:
		if op.participant > 0 {
			result.ByteLength = op.packet.ByteLength / op.participant
		}
	}
	result.BitLength = result.ByteLength * 8
	return result
}

// QueueLength reports the number of admitted, not-yet-processed
// operations, used by the metrics layer.
func (p *INCProcessor) QueueLength() int {
	return len(p.queue)
}

// BufferUtilization reports currentBuffered/BufferSize as a fraction in
// [0,1], used by the metrics layer.
func (p *INCProcessor) BufferUtilization() float64 {
	if p.config.BufferSize == 0 {
		return 0
	}
	return float64(p.currentBuffered) / float64(p.config.BufferSize)
}
