package state

import (
	"go.uber.org/atomic"
	"gopkg.in/guregu/null.v3"
)

type SampleView struct {
	Found        bool    `json:"found"`
	VirtualMb    float64 `json:"virtual_mb"`
	ResidentMb   float64 `json:"resident_mb"`
	UsagePercent float64 `json:"usage_percent"`
}

// Snapshot is a read-only copy of the worker's monitoring state. It is replaced as
// a whole after every tick and never mutated once stored.
type Snapshot struct {
	Running          bool        `json:"running"`
	SessionId        string      `json:"session_id,omitempty"`
	Process          string      `json:"process"`
	ThresholdPercent float64     `json:"threshold_percent"`
	Present          bool        `json:"present"`
	LastSample       *SampleView `json:"last_sample,omitempty"`
	Watermark        null.Float  `json:"watermark"`
	LastEvent        string      `json:"last_event,omitempty"`
	StartedAt        null.Time   `json:"started_at"`
	LastTickAt       null.Time   `json:"last_tick_at"`
}

type Store struct {
	value atomic.Value
}

func NewStore() *Store {
	store := &Store{}
	store.value.Store(Snapshot{})
	return store
}

func (s *Store) Publish(snapshot Snapshot) {
	s.value.Store(snapshot)
}

func (s *Store) Load() Snapshot {
	snapshot, ok := s.value.Load().(Snapshot)
	if !ok {
		return Snapshot{}
	}
	return snapshot
}
