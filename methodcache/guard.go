package methodcache

import (
	"sort"
	"sync"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
)

// guards hands out one RWMutex per member. Reads hold the shared side while
// they may populate the store; writes hold the exclusive side while they
// invalidate and apply, so no computation started before a write can land
// in the store after it.
type guards struct {
	locks *xsync.MapOf[string, *sync.RWMutex]
}

func newGuards() *guards {
	return &guards{locks: xsync.NewMapOf[string, *sync.RWMutex]()}
}

func (g *guards) get(member cache.MemberDescriptor) *sync.RWMutex {
	lock, _ := g.locks.LoadOrCompute(member.Prefix(), func() *sync.RWMutex {
		return &sync.RWMutex{}
	})
	return lock
}

// lockShared locks member for reading and returns the matching unlock.
func (g *guards) lockShared(member cache.MemberDescriptor) func() {
	lock := g.get(member)
	lock.RLock()
	return lock.RUnlock
}

// lockExclusive locks every member for writing, in prefix order so two
// writes touching overlapping members cannot deadlock.
func (g *guards) lockExclusive(members []cache.MemberDescriptor) func() {
	prefixes := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		prefix := m.Prefix()
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	locks := make([]*sync.RWMutex, 0, len(prefixes))
	for _, prefix := range prefixes {
		lock, _ := g.locks.LoadOrCompute(prefix, func() *sync.RWMutex {
			return &sync.RWMutex{}
		})
		lock.Lock()
		locks = append(locks, lock)
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
