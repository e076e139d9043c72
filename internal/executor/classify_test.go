package executor

import (
	"testing"
	"time"
)

func TestClassify_NoSignal(t *testing.T) {
	limited, _, _ := Classify("all good, done.", nil)
	if limited {
		t.Fatal("expected not rate-limited")
	}
}

func TestClassify_SignalNoResetTime(t *testing.T) {
	limited, reset, msg := Classify("Error: rate limit exceeded, try later", nil)
	if !limited {
		t.Fatal("expected rate-limited")
	}
	if !reset.IsZero() {
		t.Errorf("expected no parseable reset time, got %v", reset)
	}
	if msg != "rate limit" {
		t.Errorf("matched signal = %q, want 'rate limit'", msg)
	}
}

func TestClassify_ISO8601ResetTime(t *testing.T) {
	output := "quota exceeded, resets at 2026-08-01T12:00:00Z"
	limited, reset, _ := Classify(output, nil)
	if !limited {
		t.Fatal("expected rate-limited")
	}
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !reset.Equal(want) {
		t.Errorf("reset = %v, want %v", reset, want)
	}
}

func TestClassify_RetryAfterSeconds(t *testing.T) {
	before := time.Now()
	output := "Too Many Requests. retry-after: 30"
	limited, reset, _ := Classify(output, nil)
	if !limited {
		t.Fatal("expected rate-limited")
	}
	if reset.Before(before.Add(29 * time.Second)) {
		t.Errorf("reset = %v, expected roughly 30s from now", reset)
	}
}

func TestClassify_CustomSignals(t *testing.T) {
	limited, _, msg := Classify("custom-throttle-signal observed", []string{"custom-throttle-signal"})
	if !limited || msg != "custom-throttle-signal" {
		t.Fatalf("Classify() = (%v, %q), want matched custom signal", limited, msg)
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	limited, _, _ := Classify("RATE LIMIT hit", nil)
	if !limited {
		t.Fatal("expected case-insensitive match")
	}
}
