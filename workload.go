package uetsim

//
// Workload generator: AI/HPC traffic patterns and collectives
//

import (
	"math/rand"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// WorkloadType names the traffic pattern a [Workload] generates.
type WorkloadType int

const (
	// AITraining periodically invokes a collective across the job.
	AITraining WorkloadType = iota

	// AIInference sends one request per firing tick to a uniformly
	// chosen peer.
	AIInference

	// HPCSimulation mixes occasional collectives with point-to-point
	// traffic.
	HPCSimulation
)

// String implements fmt.Stringer.
func (w WorkloadType) String() string {
	switch w {
	case AITraining:
		return "AI_TRAINING"
	case AIInference:
		return "AI_INFERENCE"
	case HPCSimulation:
		return "HPC_SIMULATION"
	default:
		return "UNKNOWN"
	}
}

// WorkloadRNG is a [Workload]'s view of the randomness it needs to
// decide whether to fire, which peer to target, and which collective to
// invoke for the 30/70 HPC split.
type WorkloadRNG interface {
	Float64() float64
	Intn(n int) int
}

var _ WorkloadRNG = &rand.Rand{}

// trafficTickInterval is spec.md §4.8's fixed self-timer period.
const trafficTickInterval = 100 * time.Millisecond

// ActiveJob is spec.md §3's "Active-job record": the bookkeeping for one
// in-flight collective invocation.
type ActiveJob struct {
	JobID               int
	Start               time.Duration
	Deadline            time.Duration
	Participants        int
	OperationsCompleted int
	OperationsTotal     int
}

// WorkloadConfig configures a [Workload].
type WorkloadConfig struct {
	// Type selects the traffic pattern.
	Type WorkloadType

	// Pattern selects the collective AITraining invokes (AllReduce,
	// AllGather, or Broadcast).
	Pattern CollectiveType

	// SelfIndex is this node's own index within JobSize.
	SelfIndex int

	// JobSize is the number of participants in the simulated job.
	JobSize int

	// MessageSize is the byte length of a generated message.
	MessageSize int

	// CommunicationIntensity is the per-tick firing probability.
	CommunicationIntensity float64

	// TrafficStartTime delays the first tick.
	TrafficStartTime time.Duration

	// TrafficRate bounds sends per second; zero disables pacing.
	TrafficRate float64

	// NewRNG is an OPTIONAL factory for the [WorkloadRNG], overridable
	// for deterministic tests.
	NewRNG func() WorkloadRNG
}

// Validate returns a [*ConfigError] if the configuration is invalid.
func (c *WorkloadConfig) Validate() error {
	var errs []error
	if c.JobSize <= 0 {
		errs = append(errs, errInvalidField("WorkloadConfig.JobSize", "must be > 0"))
	}
	if c.CommunicationIntensity < 0 || c.CommunicationIntensity > 1 {
		errs = append(errs, errInvalidField("WorkloadConfig.CommunicationIntensity", "must be in [0,1]"))
	}
	if len(errs) > 0 {
		return &ConfigError{Errors: errs}
	}
	return nil
}

func (c *WorkloadConfig) newRNG() WorkloadRNG {
	if c.NewRNG != nil {
		return c.NewRNG()
	}
	return rand.New(rand.NewSource(1))
}

// sentRecord tracks an outstanding send awaiting its end-to-end response
// for latency measurement, optionally attributed to an [ActiveJob].
type sentRecord struct {
	timestamp time.Duration
	jobID     int // -1 when not part of a tracked job
}

// Workload implements spec.md §4.8: a periodic self-timer dispatching
// AI/HPC traffic patterns. The zero value is invalid; use [NewWorkload].
type Workload struct {
	config WorkloadConfig
	sched  *Scheduler
	logger Logger
	rng    WorkloadRNG
	limiter *rate.Limiter

	nextSeq    int
	sentTimes  map[int]*sentRecord
	activeJobs map[int]*ActiveJob
	nextJobID  int

	// OnSend is called with a generated message ready for the
	// transport layer.
	OnSend func(pkt *Packet)

	MessagesSent     int64
	MessagesReceived int64
}

// NewWorkload creates a new [Workload] and arms its first traffic tick
// at config.TrafficStartTime.
func NewWorkload(sched *Scheduler, logger Logger, config WorkloadConfig) *Workload {
	if logger == nil {
		logger = &NullLogger{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.TrafficRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.TrafficRate), 1)
	}
	w := &Workload{
		config:     config,
		sched:      sched,
		logger:     logger,
		rng:        config.newRNG(),
		limiter:    limiter,
		sentTimes:  map[int]*sentRecord{},
		activeJobs: map[int]*ActiveJob{},
	}
	w.sched.Schedule(config.TrafficStartTime, w.onTrafficTimer)
	return w
}

// onTrafficTimer implements spec.md §4.8's periodic dispatch.
func (w *Workload) onTrafficTimer() {
	switch w.config.Type {
	case AITraining:
		w.generateAITraining()
	case AIInference:
		w.generateAIInference()
	case HPCSimulation:
		w.generateHPCSimulation()
	}
	w.sched.Schedule(trafficTickInterval, w.onTrafficTimer)
}

func (w *Workload) generateAITraining() {
	if w.rng.Float64() >= w.config.CommunicationIntensity {
		return
	}
	w.initiateCollective(w.config.Pattern)
}

func (w *Workload) generateAIInference() {
	if w.rng.Float64() >= w.config.CommunicationIntensity {
		return
	}
	if w.config.JobSize < 2 {
		return
	}
	dest := w.rng.Intn(w.config.JobSize - 1)
	if dest == w.config.SelfIndex {
		dest = w.config.JobSize - 1
	}
	w.sendMessage(dest, w.config.MessageSize, -1)
}

func (w *Workload) generateHPCSimulation() {
	if w.rng.Float64() >= w.config.CommunicationIntensity {
		return
	}
	if w.rng.Float64() < 0.3 {
		w.initiateCollective(AllReduce)
		return
	}
	if w.config.JobSize < 2 {
		return
	}
	dest := w.rng.Intn(w.config.JobSize - 1)
	if dest == w.config.SelfIndex {
		dest = w.config.JobSize - 1
	}
	w.sendMessage(dest, w.config.MessageSize, -1)
}

// initiateCollective implements spec.md §4.8 and §9's pinned behaviour:
// every collective, including BROADCAST, is realized as one individual
// send per peer rather than via the INC broadcast primitive.
func (w *Workload) initiateCollective(pattern CollectiveType) {
	job := &ActiveJob{
		JobID:           w.nextJobID,
		Start:           w.sched.Now(),
		Participants:    w.config.JobSize,
		OperationsTotal: w.config.JobSize - 1,
	}
	w.nextJobID++
	if job.OperationsTotal <= 0 {
		return
	}
	w.activeJobs[job.JobID] = job

	for i := 0; i < w.config.JobSize; i++ {
		if i == w.config.SelfIndex {
			continue
		}
		w.sendMessage(i, w.config.MessageSize, job.JobID)
	}
}

// sendMessage implements spec.md §4.8's per-send path, subject to the
// configured trafficRate pacing.
func (w *Workload) sendMessage(dest, size, jobID int) {
	if !w.limiter.AllowN(virtualTime(w.sched.Now()), 1) {
		return
	}

	pkt := &Packet{
		Kind:        KindUET,
		Source:      addrString(w.config.SelfIndex),
		Destination: addrString(dest),
		ByteLength:  size,
		BitLength:   size * 8,
		Timestamp:   w.sched.Now(),
		Seq:         w.nextSeq,
	}
	w.sentTimes[w.nextSeq] = &sentRecord{timestamp: w.sched.Now(), jobID: jobID}
	w.nextSeq++

	if w.OnSend != nil {
		w.OnSend(pkt)
	}
	w.MessagesSent++
}

// ReceiveFromTransport implements spec.md §4.8's receive path: emit a
// latency sample when the sequence matches a recorded send, then
// forget the entry; retire the owning job once all its operations have
// completed.
func (w *Workload) ReceiveFromTransport(pkt *Packet) {
	w.MessagesReceived++

	record, ok := w.sentTimes[pkt.Seq]
	if !ok {
		return
	}
	delete(w.sentTimes, pkt.Seq)
	latency := w.sched.Now() - record.timestamp
	w.logger.Debugf("uetsim: workload: latency sample seq=%d rtt=%s", pkt.Seq, latency)

	if record.jobID < 0 {
		return
	}
	job, ok := w.activeJobs[record.jobID]
	if !ok {
		return
	}
	job.OperationsCompleted++
	if job.OperationsCompleted >= job.OperationsTotal {
		delete(w.activeJobs, record.jobID)
	}
}

// JobReport returns a snapshot of the currently active jobs.
func (w *Workload) JobReport() []ActiveJob {
	report := make([]ActiveJob, 0, len(w.activeJobs))
	for _, job := range w.activeJobs {
		report = append(report, *job)
	}
	return report
}

// Throughput reports bits/simTime as spec.md §4.8 defines it, using the
// scheduler's current virtual time as simTime.
func (w *Workload) Throughput(bits int) float64 {
	now := w.sched.Now()
	if now <= 0 {
		return 0
	}
	return float64(bits) / now.Seconds()
}

func addrString(index int) string {
	return strconv.Itoa(index)
}
