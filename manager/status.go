package manager

import (
	"sort"
	"time"
)

// Status is a read-only view of the loop, safe to read from any goroutine.
type Status struct {
	State        string     `json:"state"`
	Trigger      string     `json:"trigger,omitempty"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	Flattening   []int64    `json:"flattening,omitempty"`
	AccountID    int64      `json:"account_id"`
	Balance      float64    `json:"balance"`
	Equity       float64    `json:"equity"`
	Tracked      []int64    `json:"tracked"`
	Iterations   uint64     `json:"iterations"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
	ConfigError  string     `json:"config_error,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (m *Manager) Status() Status {
	if s := m.status.Load(); s != nil {
		return *s
	}
	return Status{}
}

func (m *Manager) publishStatus() {
	s := &Status{
		State:       m.governor.State().String(),
		Flattening:  m.governor.Pending(),
		AccountID:   m.account.ID,
		Balance:     m.account.Balance,
		Equity:      m.account.Equity,
		Tracked:     make([]int64, 0, len(m.tracked)),
		Iterations:  m.iterations,
		ConfigError: m.lastCfgErr,
		UpdatedAt:   m.now(),
	}
	if m.governor.Locked() {
		s.Trigger = m.governor.Trigger().String()
		at := m.governor.LockedAt()
		s.LockedAt = &at
	}
	if len(s.Flattening) == 0 {
		s.Flattening = nil
	}
	if !m.lastSnapshot.IsZero() {
		ls := m.lastSnapshot
		s.LastSnapshot = &ls
	}
	for t := range m.tracked {
		s.Tracked = append(s.Tracked, t)
	}
	sort.Slice(s.Tracked, func(i, j int) bool { return s.Tracked[i] < s.Tracked[j] })
	m.status.Store(s)
}
