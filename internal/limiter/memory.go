package limiter

import (
	"sync"
	"time"
)

// window is the trailing interval every count is evaluated against.
const window = time.Minute

type tokenEvent struct {
	at   time.Time
	cost int
}

type clientState struct {
	classes map[string][]time.Time
	tokens  []tokenEvent
}

// Memory is an in-process sliding-window limiter backed by per-client
// timestamp sequences. State lives for the process lifetime; when the service
// is scaled horizontally each instance enforces its own independent windows.
type Memory struct {
	mu      sync.Mutex
	limits  map[string]int // class -> max requests per window
	budget  int            // shared token budget per window
	now     func() time.Time
	clients map[string]*clientState
}

// Option customizes a Memory limiter.
type Option func(*Memory)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory constructs a limiter with per-class request limits and a shared
// token budget, all per trailing 60 seconds. Classes absent from limits are
// not request-metered, but their token cost still counts against the budget.
func NewMemory(limits map[string]int, tokenBudget int, opts ...Option) *Memory {
	m := &Memory{
		limits:  make(map[string]int, len(limits)),
		budget:  tokenBudget,
		now:     time.Now,
		clients: make(map[string]*clientState),
	}
	for class, n := range limits {
		m.limits[class] = n
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Check implements Limiter. A request that lands exactly on the limit is
// admitted; denial starts one past it. Zero-cost requests never touch the
// token sequence.
func (m *Memory) Check(clientID, class string, cost int) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One snapshot per call so pruning and the admit decision agree.
	now := m.now()
	cutoff := now.Add(-window)

	st := m.clients[clientID]
	if st == nil {
		st = &clientState{classes: make(map[string][]time.Time)}
		m.clients[clientID] = st
	}

	reqs := pruneTimes(st.classes[class], cutoff)
	st.classes[class] = reqs
	st.tokens = pruneTokens(st.tokens, cutoff)

	used := 0
	for _, ev := range st.tokens {
		used += ev.cost
	}

	limit, metered := m.limits[class]
	if metered && len(reqs) >= limit {
		return Decision{
			LimitRequests:     limit,
			RemainingRequests: 0,
			LimitTokens:       m.budget,
			RemainingTokens:   m.budget - used,
			ResetIn:           window - now.Sub(reqs[0]),
		}
	}

	if cost > 0 && used+cost > m.budget {
		d := Decision{
			LimitTokens:     m.budget,
			RemainingTokens: m.budget - used,
			ResetIn:         window,
		}
		if metered {
			d.LimitRequests = limit
			d.RemainingRequests = limit - len(reqs)
		}
		if len(st.tokens) > 0 {
			d.ResetIn = window - now.Sub(st.tokens[0].at)
		}
		return d
	}

	st.classes[class] = append(reqs, now)
	if cost > 0 {
		st.tokens = append(st.tokens, tokenEvent{at: now, cost: cost})
		used += cost
	}
	d := Decision{
		Allowed:         true,
		LimitTokens:     m.budget,
		RemainingTokens: m.budget - used,
		ResetIn:         window,
	}
	if metered {
		d.LimitRequests = limit
		d.RemainingRequests = limit - len(st.classes[class])
	}
	return d
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func pruneTokens(evs []tokenEvent, cutoff time.Time) []tokenEvent {
	i := 0
	for i < len(evs) && !evs[i].at.After(cutoff) {
		i++
	}
	return evs[i:]
}
