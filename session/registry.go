// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"hash/fnv"
	"sync"
)

// defaultShardCount spreads registry contention across enough locks
// that unrelated sessions rarely serialize.
const defaultShardCount = 16

// Registry is the shared index from identifiers to live actors. It is
// sharded twice: by SessionID for direct lookup, and by PrincipalID
// for multi-device fan-out. Each shard carries its own RWMutex, so
// operations on unrelated keys proceed in parallel; operations on one
// key are linearizable through that key's shard lock.
//
// The registry holds non-owning references. Actors register on spawn,
// bind their principal at activation, and deregister on their exit
// path; the registry never reaches into an actor's lifecycle.
type Registry struct {
	shards     []registryShard
	principals []principalShard
	mask       uint32
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Actor
}

type principalShard struct {
	mu      sync.RWMutex
	members map[PrincipalID]map[SessionID]*Actor
}

// NewRegistry builds a registry with at least shardCount shards,
// rounded up to a power of two for mask indexing. Non-positive counts
// get the default.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	n := nextPowerOfTwo(uint32(shardCount))
	r := &Registry{
		shards:     make([]registryShard, n),
		principals: make([]principalShard, n),
		mask:       n - 1,
	}
	for i := range r.shards {
		r.shards[i].sessions = make(map[SessionID]*Actor)
	}
	for i := range r.principals {
		r.principals[i].members = make(map[PrincipalID]map[SessionID]*Actor)
	}
	return r
}

func (r *Registry) shard(id SessionID) *registryShard {
	return &r.shards[fnv32(string(id))&r.mask]
}

func (r *Registry) principalShard(p PrincipalID) *principalShard {
	return &r.principals[fnv32(string(p))&r.mask]
}

// Register adds a live actor under id. Fails with ErrDuplicateSession
// if the id is already present; the id generation scheme makes that an
// invariant violation, and the caller terminates the session.
func (r *Registry) Register(id SessionID, actor *Actor) error {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.sessions[id]; exists {
		return ErrDuplicateSession
	}
	sh.sessions[id] = actor
	return nil
}

// Deregister removes id from both indexes. No-op when absent, so the
// actor's exit path can call it unconditionally.
func (r *Registry) Deregister(id SessionID) {
	sh := r.shard(id)
	sh.mu.Lock()
	actor, exists := sh.sessions[id]
	if exists {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if !exists {
		return
	}

	principal := actor.Principal()
	if principal == "" {
		return
	}
	ps := r.principalShard(principal)
	ps.mu.Lock()
	if set := ps.members[principal]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(ps.members, principal)
		}
	}
	ps.mu.Unlock()
}

// Lookup returns the live actor for id.
func (r *Registry) Lookup(id SessionID) (*Actor, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	actor, ok := sh.sessions[id]
	return actor, ok
}

// SessionsFor returns every live session bound to principal. The
// slice is a copy; callers may hold it across registry mutations.
func (r *Registry) SessionsFor(principal PrincipalID) []*Actor {
	ps := r.principalShard(principal)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	set := ps.members[principal]
	if len(set) == 0 {
		return nil
	}
	actors := make([]*Actor, 0, len(set))
	for _, actor := range set {
		actors = append(actors, actor)
	}
	return actors
}

// BindPrincipal attaches principal to a registered session, exactly
// once, at the Authenticating→Active transition. A second bind fails
// with ErrAlreadyBound; binding an unregistered id fails with
// ErrUnknownSession.
//
// Bind and deregister for one session are issued only by its owning
// actor, which is what keeps the two indexes consistent without a
// cross-shard lock.
func (r *Registry) BindPrincipal(id SessionID, principal PrincipalID) error {
	sh := r.shard(id)
	sh.mu.RLock()
	actor, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}
	if !actor.bindPrincipal(principal) {
		return ErrAlreadyBound
	}

	ps := r.principalShard(principal)
	ps.mu.Lock()
	set := ps.members[principal]
	if set == nil {
		set = make(map[SessionID]*Actor)
		ps.members[principal] = set
	}
	set[id] = actor
	ps.mu.Unlock()
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every registered actor. fn must not mutate the
// registry for its own shard; it runs under the shard read lock.
func (r *Registry) Range(fn func(*Actor)) {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, actor := range sh.sessions {
			fn(actor)
		}
		sh.mu.RUnlock()
	}
}

// Snapshot returns a point-in-time view of every session, for the
// operational surface.
func (r *Registry) Snapshot() []SessionInfo {
	var infos []SessionInfo
	r.Range(func(a *Actor) {
		infos = append(infos, a.Info())
	})
	return infos
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
