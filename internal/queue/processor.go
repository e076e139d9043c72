package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Persister is the subset of C1 the processor needs. Satisfied by
// *store.FileStore without queue importing internal/store (which itself
// imports queue for *State).
type Persister interface {
	LoadQueueState() (*State, error)
	SaveQueueState(*State) error
}

// Executor is the subset of C2 the processor drives.
type Executor interface {
	TestConnection(ctx context.Context) (bool, string)
	Execute(ctx context.Context, workingDir, submission string, cancel <-chan struct{}) ExecutionResult
}

// PublishFunc notifies C7 of a state transition. eventType is one of the
// broadcast package's MessageType constants, passed as a plain string so
// this package need not import broadcast.
type PublishFunc func(eventType, promptID string)

// MetricsHook records the outcome and wall-clock duration of one executor
// invocation, for C6's /metrics endpoint. status is always one of
// StatusCompleted, StatusFailed, or StatusRateLimited — the three outcomes
// ApplyResult ever produces. Optional; nil disables metrics recording.
type MetricsHook func(status Status, duration time.Duration)

// ProcessorConfig configures a Processor's tick and retry behavior, per
// spec §6's configuration table.
type ProcessorConfig struct {
	CheckInterval        time.Duration
	ExecutionTimeout     time.Duration
	MaxRetriesDefault    int
	RateLimitBackoff     time.Duration
	ShutdownGrace        time.Duration

	// WorkingDir is the daemon's configured storage root, surfaced
	// verbatim in get_stats/queue-status results per spec §4.6/§6.
	WorkingDir string
}

// Processor is C4: the long-running loop that picks, executes, resolves,
// and persists prompts, one at a time, under a single exclusive lock
// shared with the control plane. Structurally modeled on the teacher's
// cycle-based supervisor loop (tick, configurable backoff) but retargeted
// at the prompt lifecycle instead of a build-cycle lease.
type Processor struct {
	cfg       ProcessorConfig
	store     Persister
	executor  Executor
	publish   PublishFunc
	metrics   MetricsHook
	log       *slog.Logger

	mu    sync.Mutex
	state *State

	stopCh chan struct{}
	doneCh chan struct{}

	// cancelExecution, when non-nil, closes to interrupt the in-flight
	// execution. Guarded by mu.
	cancelExecution chan struct{}
	executingID     string

	// shuttingDown, once set, tells tick to leave a cancelled execution's
	// prompt as EXECUTING rather than applying its result: shutdown's own
	// DemoteExecuting takes precedence over whatever the interrupted
	// executor call happened to return.
	shuttingDown bool
}

// NewProcessor constructs a Processor, loading its initial state from store
// synchronously so Enqueue/Cancel/ListPrompts/GetStats are safe to call
// immediately, before Run starts — the control plane and the processor's
// own loop are started concurrently by cmd/queued, and a lazily-loaded
// state would either nil-panic on an early Enqueue or silently stomp one
// with whatever Run loaded after the fact.
func NewProcessor(cfg ProcessorConfig, store Persister, exec Executor, publish PublishFunc, metrics MetricsHook, log *slog.Logger) (*Processor, error) {
	if log == nil {
		log = slog.Default()
	}
	state, err := store.LoadQueueState()
	if err != nil {
		return nil, fmt.Errorf("queue processor: load initial state: %w", err)
	}
	return &Processor{
		cfg:      cfg,
		store:    store,
		executor: exec,
		publish:  publish,
		metrics:  metrics,
		log:      log,
		state:    state,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run starts the processor loop and blocks until Stop is called. Callers
// should run it in its own goroutine.
func (p *Processor) Run(ctx context.Context) error {
	defer close(p.doneCh)

	if ok, msg := p.executor.TestConnection(ctx); !ok {
		return fmt.Errorf("queue processor: executor unavailable: %s", msg)
	}

	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()

	go func() {
		select {
		case <-ctx.Done():
			p.requestShutdown()
		case <-p.stopCh:
		}
	}()

	for {
		select {
		case <-p.stopCh:
			return p.shutdown()
		default:
		}
		select {
		case <-p.stopCh:
			return p.shutdown()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// requestShutdown marks the processor as shutting down and interrupts any
// in-flight execution, without waiting for the loop to notice. Safe to call
// from a goroutine other than Run's.
func (p *Processor) requestShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shuttingDown = true
	if p.cancelExecution != nil {
		close(p.cancelExecution)
		p.cancelExecution = nil
	}
}

// Stop signals the processor to stop picking new work, cancel any
// in-flight execution, demote it, persist once, and return. Blocks until
// the loop has exited or ShutdownGrace elapses.
func (p *Processor) Stop() {
	p.requestShutdown()
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}

	grace := p.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-p.doneCh:
	case <-time.After(grace):
		p.log.Warn("queue processor: shutdown grace period exceeded")
	}
}

func (p *Processor) shutdown() error {
	p.mu.Lock()
	DemoteExecuting(p.state)
	state := p.state
	p.mu.Unlock()

	if err := p.store.SaveQueueState(state); err != nil {
		return fmt.Errorf("queue processor: persist on shutdown: %w", err)
	}
	return nil
}

// tick runs one iteration of the loop described in spec §4.4.
func (p *Processor) tick(ctx context.Context) {
	now := time.Now()

	p.mu.Lock()
	p.reloadMergingCounters()
	PromoteExpiredRateLimits(p.state, now)

	next := Next(p.state)
	if next == nil {
		p.mu.Unlock()
		p.publishEvent(IdleTick, "")
		return
	}

	submission := Submission(next)

	if err := BeginExecution(next); err != nil {
		p.mu.Unlock()
		p.log.Error("queue processor: invalid transition", "prompt_id", next.ID, "err", err)
		return
	}
	p.executingID = next.ID
	cancel := make(chan struct{})
	p.cancelExecution = cancel
	workingDir := next.WorkingDir
	promptID := next.ID
	p.mu.Unlock()

	if err := p.store.SaveQueueState(p.snapshotLocked()); err != nil {
		p.log.Error("queue processor: persist after transition to executing", "err", err)
	}
	p.publishEvent(ExecutionStarted, promptID)

	execCtx, cancelTimeout := context.WithTimeout(ctx, p.cfg.ExecutionTimeout)
	result := p.executor.Execute(execCtx, workingDir, submission, cancel)
	cancelTimeout()

	p.mu.Lock()
	p.cancelExecution = nil
	p.executingID = ""
	shuttingDown := p.shuttingDown
	prompt := p.state.Find(promptID)
	if prompt == nil {
		p.mu.Unlock()
		return
	}
	if result.RateLimit == nil {
		prompt.RateLimitReset = nil
	}
	applied := false
	if !shuttingDown && prompt.Status == StatusExecuting {
		if err := ApplyResult(p.state, prompt, result, time.Now()); err != nil {
			p.log.Error("queue processor: apply result", "prompt_id", promptID, "err", err)
		} else {
			applied = true
		}
	}
	outcome := prompt.Status
	state := p.state
	p.mu.Unlock()

	if applied && p.metrics != nil {
		p.metrics(outcome, result.Duration)
	}

	if shuttingDown {
		return
	}
	if err := p.store.SaveQueueState(state); err != nil {
		p.log.Error("queue processor: persist after result", "err", err)
	}
	p.publishEvent(ExecutionCompleted, promptID)
}

// reloadMergingCounters reloads the persisted state and merges counters by
// per-field maximum, per spec §4.4 step 1. Must be called with mu held.
func (p *Processor) reloadMergingCounters() {
	onDisk, err := p.store.LoadQueueState()
	if err != nil {
		p.log.Warn("queue processor: heartbeat reload failed", "err", err)
		return
	}
	p.state.Counters = p.state.Counters.Max(onDisk.Counters)
}

func (p *Processor) snapshotLocked() *State {
	return p.state
}

func (p *Processor) publishEvent(eventType MessageType, promptID string) {
	if p.publish != nil {
		p.publish(string(eventType), promptID)
	}
}

// MessageType mirrors broadcast.MessageType's values without importing
// the broadcast package, keeping C4 decoupled from C7's transport.
type MessageType string

const (
	IdleTick           MessageType = "idle_tick"
	ExecutionStarted   MessageType = "execution_started"
	ExecutionCompleted MessageType = "execution_completed"
	StatusUpdateEvent  MessageType = "status_update"
)

// Enqueue adds a new prompt to the state under the processor's lock and
// persists. Used by the control plane (C6) via the shared lock discipline.
func (p *Processor) Enqueue(content string, priority int, workingDir string, contextFiles []string, maxRetries int, estTokens int) (*Prompt, error) {
	p.mu.Lock()
	prompt := &Prompt{
		ID:              uuid.NewString(),
		Content:         content,
		Priority:        priority,
		WorkingDir:      workingDir,
		ContextFiles:    contextFiles,
		CreatedAt:       time.Now(),
		MaxRetries:      maxRetries,
		Status:          StatusQueued,
		EstimatedTokens: estTokens,
	}
	p.state.Prompts = append(p.state.Prompts, prompt)
	state := p.state
	p.mu.Unlock()

	if err := p.store.SaveQueueState(state); err != nil {
		p.mu.Lock()
		p.state.Remove(prompt.ID)
		p.mu.Unlock()
		return nil, fmt.Errorf("persist enqueue: %w", err)
	}
	p.publishEvent(StatusUpdateEvent, prompt.ID)
	return prompt, nil
}

// ErrNotFound is returned by operations on an unknown prompt ID.
var ErrNotFound = fmt.Errorf("queue: prompt not found")

// Cancel transitions a prompt to CANCELLED, interrupting it first if it is
// the one currently executing.
func (p *Processor) Cancel(id string) error {
	p.mu.Lock()
	prompt := p.state.Find(id)
	if prompt == nil {
		p.mu.Unlock()
		return ErrNotFound
	}
	if prompt.Status == StatusExecuting && p.executingID == id && p.cancelExecution != nil {
		close(p.cancelExecution)
		p.cancelExecution = nil
	}
	err := Cancel(prompt)
	state := p.state
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if serr := p.store.SaveQueueState(state); serr != nil {
		return fmt.Errorf("persist cancel: %w", serr)
	}
	p.publishEvent(StatusUpdateEvent, id)
	return nil
}

// ListPrompts returns a snapshot of prompts, optionally filtered by status.
func (p *Processor) ListPrompts(status Status) []*Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Prompt
	for _, prompt := range p.state.Prompts {
		if status != "" && prompt.Status != status {
			continue
		}
		cp := *prompt
		out = append(out, &cp)
	}
	return out
}

// Stats is the §4.6 get_stats result shape.
type Stats struct {
	TotalPrompts     int            `json:"total_prompts"`
	TotalProcessed   int            `json:"total_processed"`
	FailedCount      int            `json:"failed_count"`
	RateLimitedCount int            `json:"rate_limited_count"`
	StatusCounts     map[Status]int `json:"status_counts"`
	LastProcessed    *time.Time     `json:"last_processed,omitempty"`
	WorkingDir       string         `json:"working_directory"`
}

// TestExecutor probes the underlying executor's availability, for use by
// the control plane's health endpoint.
func (p *Processor) TestExecutor(ctx context.Context) (bool, string) {
	return p.executor.TestConnection(ctx)
}

// GetStats returns the current counters and per-status breakdown.
func (p *Processor) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		TotalPrompts:     len(p.state.Prompts),
		TotalProcessed:   p.state.Counters.TotalProcessed,
		FailedCount:      p.state.Counters.FailedCount,
		RateLimitedCount: p.state.Counters.RateLimitedCount,
		StatusCounts:     p.state.StatusCounts(),
		LastProcessed:    p.state.Counters.LastProcessed,
		WorkingDir:       p.cfg.WorkingDir,
	}
}
