package app

import (
	"sort"
	"sync"
)

// JoinResult outcome of PresenceRegistry.Join
type JoinResult struct {
	// CameOnline identity had no handle before this join
	CameOnline bool
	// Others online identities excluding the joiner, taken in the same critical section
	Others []int64
}

// LeaveResult outcome of PresenceRegistry.Leave
type LeaveResult struct {
	Identity int64
	// WentOffline the removed handle was the identity's last one
	WentOffline bool
	// Known handle was registered
	Known bool
}

// PresenceRegistry who is online, identity -> set of connection handles
type PresenceRegistry interface {
	Join(identity int64, handle string) JoinResult
	Leave(handle string) LeaveResult
	Snapshot() []int64
	IsOnline(identity int64) bool
}

type presenceRegistry struct {
	mu       sync.RWMutex
	handles  map[int64]map[string]struct{}
	identity map[string]int64
}

// NewPresenceRegistry create an empty registry
func NewPresenceRegistry() PresenceRegistry {
	return &presenceRegistry{
		handles:  make(map[int64]map[string]struct{}),
		identity: make(map[string]int64),
	}
}

func (p *presenceRegistry) Join(identity int64, handle string) JoinResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 同一 handle 重複 join 到不同 identity 時先移除舊的
	if prev, ok := p.identity[handle]; ok && prev != identity {
		p.removeLocked(handle)
	}

	others := make([]int64, 0, len(p.handles))
	for id := range p.handles {
		if id != identity {
			others = append(others, id)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })

	set, ok := p.handles[identity]
	if !ok {
		set = make(map[string]struct{})
		p.handles[identity] = set
	}
	set[handle] = struct{}{}
	p.identity[handle] = identity

	return JoinResult{CameOnline: !ok, Others: others}
}

func (p *presenceRegistry) Leave(handle string) LeaveResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(handle)
}

func (p *presenceRegistry) removeLocked(handle string) LeaveResult {
	identity, ok := p.identity[handle]
	if !ok {
		return LeaveResult{}
	}
	delete(p.identity, handle)

	set := p.handles[identity]
	delete(set, handle)
	if len(set) > 0 {
		return LeaveResult{Identity: identity, Known: true}
	}
	delete(p.handles, identity)
	return LeaveResult{Identity: identity, WentOffline: true, Known: true}
}

func (p *presenceRegistry) Snapshot() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int64, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *presenceRegistry) IsOnline(identity int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles[identity]) > 0
}
