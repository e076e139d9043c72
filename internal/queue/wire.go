package queue

import (
	"bytes"
	"encoding/json"
	"time"
)

// stateWire is the on-disk/wire shape of State: counters flattened to the
// top level, per spec §6 (`queue_state.json`).
type stateWire struct {
	Prompts          []*Prompt  `json:"prompts"`
	TotalProcessed   int        `json:"total_processed"`
	FailedCount      int        `json:"failed_count"`
	RateLimitedCount int        `json:"rate_limited_count"`
	LastProcessed    *time.Time `json:"last_processed,omitempty"`
}

// MarshalJSON flattens Counters onto the top level.
func (s *State) MarshalJSON() ([]byte, error) {
	prompts := s.Prompts
	if prompts == nil {
		prompts = []*Prompt{}
	}
	return json.Marshal(stateWire{
		Prompts:          prompts,
		TotalProcessed:   s.Counters.TotalProcessed,
		FailedCount:      s.Counters.FailedCount,
		RateLimitedCount: s.Counters.RateLimitedCount,
		LastProcessed:    s.Counters.LastProcessed,
	})
}

// UnmarshalJSON rejects unknown fields, per DESIGN NOTE "refuse unknown
// fields on deserialization".
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w stateWire
	if err := dec.Decode(&w); err != nil {
		return err
	}

	s.Prompts = w.Prompts
	if s.Prompts == nil {
		s.Prompts = []*Prompt{}
	}
	s.Counters = Counters{
		TotalProcessed:   w.TotalProcessed,
		FailedCount:      w.FailedCount,
		RateLimitedCount: w.RateLimitedCount,
		LastProcessed:    w.LastProcessed,
	}
	return nil
}
