// Package manager coordinates the lifecycle of heavyweight, swappable
// resources — embedding and reranking models — behind named slots.
//
// Each slot has a Policy: always (loaded at startup, never evicted),
// on_demand (loaded lazily, evicted on idle timeout or memory pressure),
// or disabled (never loaded). Concurrent Acquire calls for a slot that
// is mid-load collapse into the single in-flight load via
// golang.org/x/sync/singleflight, so a burst of requests for a cold
// model triggers exactly one Load call.
//
// When loading a slot would push total estimated memory over maxRAMMB,
// ensureBudget evicts on_demand slots with no outstanding references,
// LRU or FIFO depending on EvictionPolicy, until the new slot fits or no
// further eviction is possible, in which case Acquire returns
// fserr.MemoryBudgetExceeded.
//
//	m, err := manager.New(ctx, []manager.SlotConfig{
//		{Name: "embedder", Policy: manager.PolicyAlways, MemoryEstimateMB: 440, Load: loadEmbedder},
//		{Name: "reranker", Policy: manager.PolicyOnDemand, IdleTimeout: 5 * time.Minute, MemoryEstimateMB: 120, Load: loadReranker},
//	}, 1024, manager.EvictionLRU)
//	res, err := m.Acquire(ctx, "reranker")
//	defer m.Release("reranker")
package manager
