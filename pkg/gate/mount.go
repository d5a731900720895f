package gate

import (
	"sync"

	"github.com/xzegga/ait-saas-sso/pkg/session"
)

// Source publishes session snapshots. *session.Store satisfies it.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
}

// Mounted is a gate bound to a source. It re-evaluates on every published
// snapshot and reports decision changes.
type Mounted struct {
	gate     Gate
	onChange func(Decision)

	mu        sync.Mutex
	decision  Decision
	version   uint64
	seen      bool
	unmounted bool

	// notifyMu keeps callbacks in evaluation order. It is taken before mu
	// is released so callbacks may call Decision or Unmount.
	notifyMu sync.Mutex

	unsubscribe func()
}

// Mount subscribes g to src and evaluates the current snapshot. onChange,
// which may be nil, is called whenever the decision changes.
func Mount(src Source, g Gate, onChange func(Decision)) *Mounted {
	m := &Mounted{gate: g, onChange: onChange, decision: Loading}
	// subscribe before reading so no publication falls between the two
	unsubscribe := src.Subscribe(m.update)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	m.update(src.Snapshot())
	return m
}

func (m *Mounted) update(snap session.Snapshot) {
	m.mu.Lock()
	if m.unmounted || (m.seen && snap.Version <= m.version) {
		m.mu.Unlock()
		return
	}
	m.seen = true
	m.version = snap.Version

	prev := m.decision
	next := m.gate.Evaluate(snap)
	m.decision = next

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	if next == prev {
		return
	}
	if m.onChange != nil {
		m.onChange(next)
	}
	if next == Denied {
		if h, ok := m.gate.(DeniedHandler); ok {
			h.OnDenied()
		}
	}
}

// Decision returns the latest decision.
func (m *Mounted) Decision() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}

// Unmount stops re-evaluation. It is idempotent.
func (m *Mounted) Unmount() {
	m.mu.Lock()
	if m.unmounted {
		m.mu.Unlock()
		return
	}
	m.unmounted = true
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
