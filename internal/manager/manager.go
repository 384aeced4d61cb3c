// Package manager implements the model slot lifecycle: loading, memory
// budget enforcement, idle eviction, and single-flight coordination for
// concurrent acquires of the same named slot.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fastsearch/fastsearch/internal/fserr"
)

// Policy governs whether and how a slot is loaded and evicted.
type Policy string

const (
	// PolicyAlways loads the slot at startup, never evicts it, and
	// disables its idle timeout.
	PolicyAlways Policy = "always"
	// PolicyOnDemand loads on first acquire and is eligible for idle
	// timeout and LRU/FIFO eviction under memory pressure.
	PolicyOnDemand Policy = "on_demand"
	// PolicyDisabled refuses every acquire with fserr.ModelDisabled.
	PolicyDisabled Policy = "disabled"
)

// State is a slot's position in the UNLOADED -> LOADING -> LOADED ->
// UNLOADING -> UNLOADED lifecycle.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateUnloading State = "unloading"
)

// EvictionPolicy selects which on_demand slot to evict first under
// memory pressure.
type EvictionPolicy string

const (
	EvictionLRU  EvictionPolicy = "lru"
	EvictionFIFO EvictionPolicy = "fifo"
)

// Loadable is the minimum surface the manager needs from anything it
// loads into a slot: a memory estimate for budget accounting and a way
// to release resources on unload. embedder.Embedder and
// reranker.Reranker both satisfy this.
type Loadable interface {
	EstimatedMemoryMB() int
	Close() error
}

// Loader constructs the resource for a slot. It is called at most once
// per load, with concurrent Acquire calls during loading collapsed into
// the single in-flight call via singleflight.
type Loader func(ctx context.Context) (Loadable, error)

// SlotConfig describes one named slot.
type SlotConfig struct {
	Name string
	Policy
	IdleTimeout time.Duration
	// MemoryEstimateMB is used for budget accounting before the slot has
	// ever been loaded (i.e. while picking whether a load would fit).
	// Once loaded, the resource's own EstimatedMemoryMB is authoritative.
	MemoryEstimateMB int
	Load             Loader
}

type slot struct {
	cfg      SlotConfig
	state    State
	resource Loadable
	lastUsed time.Time
	loadedAt time.Time
	loadSeq  int64
	refCount int
}

func (s *slot) memoryMB() int {
	if s.resource != nil {
		return s.resource.EstimatedMemoryMB()
	}
	return s.cfg.MemoryEstimateMB
}

// Status is a snapshot of one slot's state, as returned by Status().
type Status struct {
	Name      string
	Policy    Policy
	State     State
	MemoryMB  int
	LastUsed  time.Time
	LoadedAt  time.Time
	InUse     int
}

// Manager owns a fixed set of named slots, enforces a total memory
// budget across loaded slots, and evicts idle on_demand slots.
type Manager struct {
	mu             sync.Mutex
	slots          map[string]*slot
	maxRAMMB       int
	evictionPolicy EvictionPolicy
	sf             singleflight.Group
	loadCounter    int64

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// New creates a Manager over the given slot configs. Slots with
// PolicyAlways are loaded synchronously before New returns; a failure to
// load an always slot is returned as an error.
func New(ctx context.Context, configs []SlotConfig, maxRAMMB int, eviction EvictionPolicy) (*Manager, error) {
	if eviction == "" {
		eviction = EvictionLRU
	}
	m := &Manager{
		slots:          make(map[string]*slot, len(configs)),
		maxRAMMB:       maxRAMMB,
		evictionPolicy: eviction,
		sweepInterval:  10 * time.Second,
		stopSweep:      make(chan struct{}),
		sweepDone:      make(chan struct{}),
	}
	for _, cfg := range configs {
		m.slots[cfg.Name] = &slot{cfg: cfg, state: StateUnloaded}
	}

	for _, cfg := range configs {
		if cfg.Policy == PolicyAlways {
			if _, err := m.Acquire(ctx, cfg.Name); err != nil {
				return nil, fmt.Errorf("manager: load always-on slot %q: %w", cfg.Name, err)
			}
			m.Release(cfg.Name)
		}
	}

	go m.sweepLoop()
	return m, nil
}

// Acquire loads the named slot if necessary and returns its resource,
// incrementing its in-use count. Callers must call Release when done.
func (m *Manager) Acquire(ctx context.Context, name string) (Loadable, error) {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		m.mu.Unlock()
		return nil, fserr.Newf(fserr.InvalidArgument, "manager: unknown slot %q", name)
	}
	if s.cfg.Policy == PolicyDisabled {
		m.mu.Unlock()
		return nil, fserr.Newf(fserr.ModelDisabled, "manager: slot %q is disabled", name)
	}
	if s.state == StateLoaded {
		s.lastUsed = time.Now()
		s.refCount++
		res := s.resource
		m.mu.Unlock()
		return res, nil
	}
	m.mu.Unlock()

	v, err, _ := m.sf.Do(name, func() (any, error) {
		return m.load(ctx, name)
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	s = m.slots[name]
	s.lastUsed = time.Now()
	s.refCount++
	m.mu.Unlock()
	return v.(Loadable), nil
}

// Release decrements a slot's in-use count. It is safe to call even if
// the slot has since been evicted.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[name]; ok && s.refCount > 0 {
		s.refCount--
	}
}

func (m *Manager) load(ctx context.Context, name string) (Loadable, error) {
	m.mu.Lock()
	s := m.slots[name]
	if s.state == StateLoaded {
		res := s.resource
		m.mu.Unlock()
		return res, nil
	}
	s.state = StateLoading
	m.mu.Unlock()

	if err := m.ensureBudget(ctx, s); err != nil {
		m.mu.Lock()
		s.state = StateUnloaded
		m.mu.Unlock()
		return nil, err
	}

	res, err := s.cfg.Load(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		s.state = StateUnloaded
		return nil, fserr.Wrap(fserr.ModelLoadFailed, err)
	}
	s.resource = res
	s.state = StateLoaded
	s.loadedAt = time.Now()
	m.loadCounter++
	s.loadSeq = m.loadCounter
	return res, nil
}

// ensureBudget evicts on_demand slots, LRU or FIFO first, until loading
// target would fit under maxRAMMB, or returns MemoryBudgetExceeded if no
// further eviction is possible. The eviction decision is made under the
// manager lock; the actual unload runs with the lock released.
func (m *Manager) ensureBudget(ctx context.Context, target *slot) error {
	if m.maxRAMMB <= 0 {
		return nil
	}
	for {
		m.mu.Lock()
		total := target.cfg.MemoryEstimateMB
		var victim *slot
		for name, s := range m.slots {
			if name == target.cfg.Name || s.state != StateLoaded {
				continue
			}
			total += s.memoryMB()
			if s.cfg.Policy != PolicyOnDemand || s.refCount > 0 {
				continue
			}
			if victim == nil || m.isBetterVictim(s, victim) {
				victim = s
			}
		}
		if total <= m.maxRAMMB {
			m.mu.Unlock()
			return nil
		}
		if victim == nil {
			m.mu.Unlock()
			return fserr.Newf(fserr.MemoryBudgetExceeded,
				"manager: loading %q needs %dMB, budget is %dMB, no evictable slot free", target.cfg.Name, total, m.maxRAMMB)
		}
		victim.state = StateUnloading
		m.mu.Unlock()

		m.finishUnload(victim)
	}
}

func (m *Manager) isBetterVictim(candidate, current *slot) bool {
	if m.evictionPolicy == EvictionFIFO {
		return candidate.loadSeq < current.loadSeq
	}
	return candidate.lastUsed.Before(current.lastUsed)
}

// Unload unloads a named slot, if loaded and not in use.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		m.mu.Unlock()
		return fserr.Newf(fserr.InvalidArgument, "manager: unknown slot %q", name)
	}
	if s.cfg.Policy == PolicyAlways {
		m.mu.Unlock()
		return fserr.Newf(fserr.InvalidArgument, "manager: slot %q is always-loaded and cannot be unloaded", name)
	}
	if s.state != StateLoaded {
		m.mu.Unlock()
		return nil
	}
	if s.refCount > 0 {
		m.mu.Unlock()
		return fserr.Newf(fserr.DaemonBusy, "manager: slot %q is in use", name)
	}
	s.state = StateUnloading
	m.mu.Unlock()

	m.finishUnload(s)
	return nil
}

func (m *Manager) finishUnload(s *slot) {
	m.mu.Lock()
	res := s.resource
	s.resource = nil
	s.state = StateUnloaded
	m.mu.Unlock()

	if res != nil {
		res.Close()
	}
}

// Status returns a snapshot of every slot.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, Status{
			Name:     s.cfg.Name,
			Policy:   s.cfg.Policy,
			State:    s.state,
			MemoryMB: s.memoryMB(),
			LastUsed: s.lastUsed,
			LoadedAt: s.loadedAt,
			InUse:    s.refCount,
		})
	}
	return out
}

// Reload updates a slot's policy and idle timeout in place. It does not
// force an immediate idle re-check; the next sweeper tick evaluates the
// new timeout.
func (m *Manager) Reload(name string, policy Policy, idleTimeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[name]
	if !ok {
		return fserr.Newf(fserr.InvalidArgument, "manager: unknown slot %q", name)
	}
	s.cfg.Policy = policy
	s.cfg.IdleTimeout = idleTimeout
	return nil
}

func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	m.mu.Lock()
	var victims []*slot
	now := time.Now()
	for _, s := range m.slots {
		if s.cfg.Policy != PolicyOnDemand || s.state != StateLoaded || s.refCount > 0 {
			continue
		}
		if s.cfg.IdleTimeout <= 0 {
			continue
		}
		if now.Sub(s.lastUsed) >= s.cfg.IdleTimeout {
			s.state = StateUnloading
			victims = append(victims, s)
		}
	}
	m.mu.Unlock()

	for _, s := range victims {
		m.finishUnload(s)
	}
}

// Close stops the idle sweeper and unloads every loaded slot. Calling it
// again after the first call is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	select {
	case <-m.stopSweep:
		m.mu.Unlock()
		return nil
	default:
		close(m.stopSweep)
	}
	m.mu.Unlock()
	<-m.sweepDone

	m.mu.Lock()
	var loaded []*slot
	for _, s := range m.slots {
		if s.state == StateLoaded {
			loaded = append(loaded, s)
		}
	}
	m.mu.Unlock()

	for _, s := range loaded {
		m.finishUnload(s)
	}
	return nil
}
