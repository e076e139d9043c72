// Package queue implements the durable prompt lifecycle: the data model,
// the pure state-machine rules, and the supervising processor loop.
package queue

import "time"

// Status is a prompt's position in its lifecycle.
type Status string

const (
	StatusQueued      Status = "QUEUED"
	StatusExecuting   Status = "EXECUTING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusCancelled   Status = "CANCELLED"
	StatusRateLimited Status = "RATE_LIMITED"
)

// LogLine is one timestamped line of captured executor output.
type LogLine struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Prompt is a unit of work submitted by a client.
type Prompt struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	Priority        int        `json:"priority"`
	WorkingDir      string     `json:"working_dir"`
	ContextFiles    []string   `json:"context_files,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	Status          Status     `json:"status"`
	Log             []LogLine  `json:"log,omitempty"`
	RateLimitReset  *time.Time `json:"rate_limit_reset,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	EstimatedTokens int        `json:"estimated_tokens,omitempty"`

	// OriginalContent preserves Content across a rate-limited retry, which
	// submits the literal resumption token "continue" instead. Restored if
	// that retry itself fails.
	OriginalContent string `json:"original_content,omitempty"`
}

// MaxLogLines bounds the per-prompt execution log kept in memory/on disk.
const MaxLogLines = 200

// AppendLog appends a line to the prompt's execution log, trimming to
// MaxLogLines from the front.
func (p *Prompt) AppendLog(text string, at time.Time) {
	p.Log = append(p.Log, LogLine{Time: at, Text: text})
	if len(p.Log) > MaxLogLines {
		p.Log = p.Log[len(p.Log)-MaxLogLines:]
	}
}

// CanRetry reports whether the prompt may be re-queued.
func (p *Prompt) CanRetry() bool {
	return (p.Status == StatusFailed || p.Status == StatusRateLimited) && p.RetryCount < p.MaxRetries
}

// IsTerminal reports whether the prompt will never be scheduled again.
func (p *Prompt) IsTerminal() bool {
	switch p.Status {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusFailed:
		return p.RetryCount >= p.MaxRetries
	default:
		return false
	}
}

// RateLimitInfo describes a detected rate-limit condition on an execution.
type RateLimitInfo struct {
	Limited bool       `json:"limited"`
	ResetAt *time.Time `json:"reset_at,omitempty"`
	Message string     `json:"message,omitempty"`
}

// ExecutionResult is the outcome of a single executor invocation.
type ExecutionResult struct {
	Success   bool           `json:"success"`
	Output    string         `json:"output"`
	ErrorText string         `json:"error_text,omitempty"`
	Duration  time.Duration  `json:"duration"`
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
	ExitCode  *int           `json:"exit_code,omitempty"`
}

// Counters are the queue's process-lifetime monotonic tallies.
type Counters struct {
	TotalProcessed  int        `json:"total_processed"`
	FailedCount     int        `json:"failed_count"`
	RateLimitedCount int       `json:"rate_limited_count"`
	LastProcessed   *time.Time `json:"last_processed,omitempty"`
}

// Max returns the per-field maximum of c and other, per spec §4.4's
// heartbeat merge rule — counters must never regress.
func (c Counters) Max(other Counters) Counters {
	merged := Counters{
		TotalProcessed:   maxInt(c.TotalProcessed, other.TotalProcessed),
		FailedCount:      maxInt(c.FailedCount, other.FailedCount),
		RateLimitedCount: maxInt(c.RateLimitedCount, other.RateLimitedCount),
		LastProcessed:    c.LastProcessed,
	}
	if other.LastProcessed != nil && (merged.LastProcessed == nil || other.LastProcessed.After(*merged.LastProcessed)) {
		merged.LastProcessed = other.LastProcessed
	}
	return merged
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// State is the full durable queue: all prompts plus global counters.
type State struct {
	Prompts  []*Prompt `json:"prompts"`
	Counters Counters  `json:"-"`

	// The counters are flattened into the top level on the wire, per
	// spec §6's on-disk schema; see MarshalJSON/UnmarshalJSON.
}

// NewState returns an empty queue state.
func NewState() *State {
	return &State{Prompts: []*Prompt{}}
}

// Find returns the prompt with the given ID, or nil.
func (s *State) Find(id string) *Prompt {
	for _, p := range s.Prompts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Remove deletes the prompt with the given ID. Reports whether it existed.
func (s *State) Remove(id string) bool {
	for i, p := range s.Prompts {
		if p.ID == id {
			s.Prompts = append(s.Prompts[:i], s.Prompts[i+1:]...)
			return true
		}
	}
	return false
}

// StatusCounts tallies prompts by status, for the /queue/status endpoint.
func (s *State) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, p := range s.Prompts {
		counts[p.Status]++
	}
	return counts
}
