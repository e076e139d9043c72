package queue

import "time"

// ResumptionToken is submitted in place of a prompt's original content when
// retrying a prompt that was rate-limited, per spec §4.2/§4.4.
const ResumptionToken = "continue"

// Next selects the prompt to execute: among QUEUED prompts, the lowest
// priority value, tie-broken by earliest creation time. Pure and
// deterministic over a given snapshot.
func Next(s *State) *Prompt {
	var best *Prompt
	for _, p := range s.Prompts {
		if p.Status != StatusQueued {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		if p.Priority < best.Priority {
			best = p
			continue
		}
		if p.Priority == best.Priority && p.CreatedAt.Before(best.CreatedAt) {
			best = p
		}
	}
	return best
}

// PromoteExpiredRateLimits transitions every RATE_LIMITED prompt whose
// reset time has passed back to QUEUED.
func PromoteExpiredRateLimits(s *State, now time.Time) {
	for _, p := range s.Prompts {
		if p.Status == StatusRateLimited && p.RateLimitReset != nil && !p.RateLimitReset.After(now) {
			p.Status = StatusQueued
		}
	}
}

// BeginExecution transitions a QUEUED prompt to EXECUTING. It is the
// caller's responsibility to have selected p via Next.
func BeginExecution(p *Prompt) error {
	if p.Status != StatusQueued {
		return &TransitionError{Prompt: p.ID, From: p.Status, Event: "picked_for_execution"}
	}
	p.Status = StatusExecuting
	return nil
}

// ApplyResult applies an execution result to an EXECUTING prompt per the
// transition table of spec §4.3, mutating both the prompt and the state's
// counters. now is injected for testability.
func ApplyResult(s *State, p *Prompt, result ExecutionResult, now time.Time) error {
	if p.Status != StatusExecuting {
		return &TransitionError{Prompt: p.ID, From: p.Status, Event: "execution_result"}
	}

	switch {
	case result.Success:
		p.Status = StatusCompleted
		p.LastError = ""
		p.OriginalContent = ""
		s.Counters.TotalProcessed++
		s.Counters.LastProcessed = &now

	case result.RateLimit != nil && result.RateLimit.Limited:
		p.Status = StatusRateLimited
		p.RateLimitReset = result.RateLimit.ResetAt
		if p.RateLimitReset == nil {
			reset := now.Add(defaultRateLimitBackoff)
			p.RateLimitReset = &reset
		}
		p.LastError = result.RateLimit.Message
		p.RetryCount++
		s.Counters.RateLimitedCount++
		// Retain the pre-resumption content so a later retry can submit
		// the resumption token while the scheduler still sees the
		// original on failure; see Submission.
		if p.OriginalContent == "" {
			p.OriginalContent = p.Content
		}

	default:
		p.Status = StatusFailed
		p.LastError = result.ErrorText
		p.RetryCount++
		s.Counters.FailedCount++
		// A resumed rate-limited retry that then fails outright falls
		// back to the original content on its next scheduled attempt.
		p.OriginalContent = ""
	}
	return nil
}

// Submission returns the string C2 should submit for this prompt: the
// resumption token if it is being retried after a rate limit, otherwise
// its own content. Pure; does not mutate the prompt.
func Submission(p *Prompt) string {
	if p.OriginalContent != "" {
		return ResumptionToken
	}
	return p.Content
}

// defaultRateLimitBackoff is used only when ApplyResult receives a
// rate-limited result with no reset time. The executor adapter fills in a
// reset time from its own configured backoff, so this fallback applies to
// other Executor implementations and direct callers/tests.
const defaultRateLimitBackoff = 60 * time.Second

// Cancel transitions any non-terminal prompt to CANCELLED.
func Cancel(p *Prompt) error {
	if p.IsTerminal() || p.Status == StatusCancelled {
		return &TransitionError{Prompt: p.ID, From: p.Status, Event: "cancel"}
	}
	p.Status = StatusCancelled
	return nil
}

// Requeue transitions a retryable FAILED or RATE_LIMITED prompt back to
// QUEUED. Returns false if the prompt cannot be retried.
func Requeue(p *Prompt) bool {
	if !p.CanRetry() {
		return false
	}
	p.Status = StatusQueued
	return true
}

// DemoteExecuting demotes any EXECUTING prompt back to QUEUED without
// touching its retry count, per spec §3's shutdown invariant.
func DemoteExecuting(s *State) {
	for _, p := range s.Prompts {
		if p.Status == StatusExecuting {
			p.Status = StatusQueued
		}
	}
}

// TransitionError reports an invalid state-machine transition attempt.
type TransitionError struct {
	Prompt string
	From   Status
	Event  string
}

func (e *TransitionError) Error() string {
	return "queue: prompt " + e.Prompt + " cannot handle event " + e.Event + " from status " + string(e.From)
}
