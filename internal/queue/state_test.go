package queue

import (
	"testing"
	"time"
)

func newQueuedPrompt(id string, priority int, createdAt time.Time, maxRetries int) *Prompt {
	return &Prompt{
		ID:         id,
		Priority:   priority,
		CreatedAt:  createdAt,
		MaxRetries: maxRetries,
		Status:     StatusQueued,
	}
}

func TestNext_PriorityOrdering(t *testing.T) {
	base := time.Unix(0, 0)
	a := newQueuedPrompt("A", 5, base, 3)
	b := newQueuedPrompt("B", 1, base.Add(1*time.Second), 3)
	c := newQueuedPrompt("C", 1, base.Add(2*time.Second), 3)

	s := &State{Prompts: []*Prompt{a, b, c}}

	first := Next(s)
	if first.ID != "B" {
		t.Fatalf("expected B first, got %s", first.ID)
	}
	first.Status = StatusExecuting

	second := Next(s)
	if second.ID != "C" {
		t.Fatalf("expected C second, got %s", second.ID)
	}
	second.Status = StatusExecuting

	third := Next(s)
	if third.ID != "A" {
		t.Fatalf("expected A third, got %s", third.ID)
	}
}

func TestNext_NoneQueued(t *testing.T) {
	s := &State{Prompts: []*Prompt{{ID: "x", Status: StatusCompleted}}}
	if got := Next(s); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestApplyResult_HappyPath(t *testing.T) {
	s := NewState()
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	p.Status = StatusExecuting
	s.Prompts = append(s.Prompts, p)

	now := time.Now()
	if err := ApplyResult(s, p, ExecutionResult{Success: true, Output: "hi"}, now); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}

	if p.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", p.Status)
	}
	if s.Counters.TotalProcessed != 1 {
		t.Errorf("total_processed = %d, want 1", s.Counters.TotalProcessed)
	}
}

func TestApplyResult_FirstFailureNotRequeued(t *testing.T) {
	s := NewState()
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	p.Status = StatusExecuting
	s.Prompts = append(s.Prompts, p)

	if err := ApplyResult(s, p, ExecutionResult{Success: false, ErrorText: "boom"}, time.Now()); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}

	if p.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", p.Status)
	}
	if p.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", p.RetryCount)
	}
	if s.Counters.FailedCount != 1 {
		t.Errorf("failed_count = %d, want 1", s.Counters.FailedCount)
	}
	if p.CanRetry() != true {
		t.Errorf("CanRetry() = false, want true (1 < 3)")
	}
}

func TestApplyResult_MaxRetriesExhausted(t *testing.T) {
	s := NewState()
	p := newQueuedPrompt("P", 0, time.Now(), 2)
	p.RetryCount = 2
	p.Status = StatusExecuting
	s.Prompts = append(s.Prompts, p)

	if err := ApplyResult(s, p, ExecutionResult{Success: false, ErrorText: "boom"}, time.Now()); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}

	if p.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", p.Status)
	}
	if p.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", p.RetryCount)
	}
	if p.CanRetry() {
		t.Errorf("CanRetry() = true, want false")
	}
	if s.Counters.FailedCount != 1 {
		t.Errorf("failed_count = %d, want 1", s.Counters.FailedCount)
	}
}

func TestApplyResult_RateLimitedThenResume(t *testing.T) {
	s := NewState()
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	p.Content = "original"
	p.Status = StatusExecuting
	s.Prompts = append(s.Prompts, p)

	reset := time.Now().Add(1 * time.Second)
	err := ApplyResult(s, p, ExecutionResult{
		Success:   false,
		RateLimit: &RateLimitInfo{Limited: true, ResetAt: &reset},
	}, time.Now())
	if err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}

	if p.Status != StatusRateLimited {
		t.Fatalf("status = %s, want RATE_LIMITED", p.Status)
	}
	if p.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", p.RetryCount)
	}
	if p.RateLimitReset == nil || !p.RateLimitReset.Equal(reset) {
		t.Errorf("reset_time = %v, want %v", p.RateLimitReset, reset)
	}

	PromoteExpiredRateLimits(s, reset.Add(1*time.Millisecond))
	if p.Status != StatusQueued {
		t.Fatalf("status after expiry = %s, want QUEUED", p.Status)
	}
	if Submission(p) != ResumptionToken {
		t.Fatalf("Submission() = %q, want resumption token", Submission(p))
	}

	p.Status = StatusExecuting
	if err := ApplyResult(s, p, ExecutionResult{Success: true, Output: "ok"}, time.Now()); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	if p.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", p.Status)
	}
	if p.Content != "original" {
		t.Errorf("content = %q, want original preserved", p.Content)
	}
	if p.OriginalContent != "" {
		t.Errorf("original_content = %q, want cleared after success", p.OriginalContent)
	}
	if s.Counters.TotalProcessed != 1 {
		t.Errorf("total_processed = %d, want 1", s.Counters.TotalProcessed)
	}
}

func TestApplyResult_FailedResumptionFallsBackToOriginal(t *testing.T) {
	s := NewState()
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	p.Content = "original"
	p.OriginalContent = "original"
	p.RetryCount = 1
	p.Status = StatusExecuting
	s.Prompts = append(s.Prompts, p)

	if err := ApplyResult(s, p, ExecutionResult{Success: false, ErrorText: "boom"}, time.Now()); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	if p.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", p.Status)
	}
	if p.OriginalContent != "" {
		t.Errorf("original_content = %q, want cleared after failed resumption", p.OriginalContent)
	}
	if Submission(p) != "original" {
		t.Errorf("Submission() = %q, want original content on next attempt", Submission(p))
	}
}

func TestDemoteExecuting_PreservesRetryCount(t *testing.T) {
	s := NewState()
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	p.Status = StatusExecuting
	p.RetryCount = 2
	s.Prompts = append(s.Prompts, p)

	DemoteExecuting(s)

	if p.Status != StatusQueued {
		t.Fatalf("status = %s, want QUEUED", p.Status)
	}
	if p.RetryCount != 2 {
		t.Errorf("retry_count = %d, want unchanged 2", p.RetryCount)
	}
}

func TestCounters_Max_Monotonic(t *testing.T) {
	a := Counters{TotalProcessed: 5, FailedCount: 2, RateLimitedCount: 1}
	b := Counters{TotalProcessed: 0, FailedCount: 0, RateLimitedCount: 0}

	merged := a.Max(b)
	if merged.TotalProcessed != 5 || merged.FailedCount != 2 || merged.RateLimitedCount != 1 {
		t.Errorf("Max() = %+v, want unchanged from a", merged)
	}
}

func TestCancel_NonTerminal(t *testing.T) {
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	if err := Cancel(p); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if p.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", p.Status)
	}
}

func TestCancel_AlreadyTerminal(t *testing.T) {
	p := newQueuedPrompt("P", 0, time.Now(), 3)
	p.Status = StatusCompleted
	if err := Cancel(p); err == nil {
		t.Fatal("expected error cancelling a completed prompt")
	}
}
