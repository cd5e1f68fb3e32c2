package methodcache

import (
	"fmt"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
)

// Classification is the policy decision for a member.
type Classification int

const (
	// NotCacheable members always run the real implementation.
	NotCacheable Classification = iota
	// Cacheable members are served from the store when possible.
	Cacheable
	// WriteOnly members bypass the store and only invalidate.
	WriteOnly
)

// String implements fmt.Stringer.
func (c Classification) String() string {
	switch c {
	case Cacheable:
		return "cacheable"
	case WriteOnly:
		return "write_only"
	default:
		return "not_cacheable"
	}
}

// Classifier decides how the engine handles a member.
type Classifier interface {
	Classify(member cache.MemberDescriptor) Classification
	// Invalidations lists the members whose entries a write to member
	// makes stale, in addition to member's own entries.
	Invalidations(member cache.MemberDescriptor) []cache.MemberDescriptor
}

type rule struct {
	member      cache.MemberDescriptor
	invalidates []cache.MemberDescriptor
}

// RuleOption customizes a member registration.
type RuleOption func(*rule)

// Invalidates declares the read members a write to the registered member
// makes stale. Only setters and read/write properties accept targets.
func Invalidates(targets ...cache.MemberDescriptor) RuleOption {
	return func(r *rule) {
		r.invalidates = append(r.invalidates, targets...)
	}
}

// Policy is the explicit registration table standing in for caching
// attributes. It is safe for concurrent use; registration normally happens
// once at startup.
type Policy struct {
	members  *xsync.MapOf[string, rule]
	types    *xsync.MapOf[string, struct{}]
	excluded *xsync.MapOf[string, struct{}]
}

// NewPolicy returns an empty policy: every member is NotCacheable.
func NewPolicy() *Policy {
	return &Policy{
		members:  xsync.NewMapOf[string, rule](),
		types:    xsync.NewMapOf[string, struct{}](),
		excluded: xsync.NewMapOf[string, struct{}](),
	}
}

// Register marks member for caching.
func (p *Policy) Register(member cache.MemberDescriptor, opts ...RuleOption) error {
	if err := member.Validate(); err != nil {
		return err
	}

	r := rule{member: member}
	for _, opt := range opts {
		opt(&r)
	}

	if len(r.invalidates) > 0 {
		switch member.Kind {
		case cache.KindSetter, cache.KindReadWriteProperty:
		default:
			return fmt.Errorf("%w: %s is not a write path and cannot invalidate other members", cache.ErrInvalidMember, member)
		}
	}

	for _, target := range r.invalidates {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("invalidation target of %s: %w", member, err)
		}
		if target.Kind == cache.KindSetter {
			return fmt.Errorf("%w: invalidation target %s has no cached read path", cache.ErrInvalidMember, target)
		}
	}

	p.members.Store(member.Prefix(), r)
	return nil
}

// RegisterType marks every member of typeName for caching, like a
// type-level attribute. Exclude opts single members out.
func (p *Policy) RegisterType(typeName string) error {
	probe := cache.Method(typeName, "_")
	if err := probe.Validate(); err != nil {
		return err
	}
	p.types.Store(typeName, struct{}{})
	return nil
}

// Exclude opts member out of caching, overriding type-level registration.
func (p *Policy) Exclude(member cache.MemberDescriptor) error {
	if err := member.Validate(); err != nil {
		return err
	}
	p.excluded.Store(member.Prefix(), struct{}{})
	return nil
}

// Classify implements Classifier. Unknown or malformed members are
// NotCacheable, never an error.
func (p *Policy) Classify(member cache.MemberDescriptor) Classification {
	if member.Validate() != nil {
		return NotCacheable
	}

	prefix := member.Prefix()
	if _, excluded := p.excluded.Load(prefix); excluded {
		return NotCacheable
	}

	if _, registered := p.members.Load(prefix); !registered {
		if _, typeLevel := p.types.Load(member.TypeName); !typeLevel {
			return NotCacheable
		}
	}

	if member.Kind == cache.KindSetter {
		return WriteOnly
	}
	return Cacheable
}

// Invalidations implements Classifier.
func (p *Policy) Invalidations(member cache.MemberDescriptor) []cache.MemberDescriptor {
	r, ok := p.members.Load(member.Prefix())
	if !ok || len(r.invalidates) == 0 {
		return nil
	}
	return append([]cache.MemberDescriptor(nil), r.invalidates...)
}

// Members returns the individually registered members.
func (p *Policy) Members() []cache.MemberDescriptor {
	var members []cache.MemberDescriptor
	p.members.Range(func(_ string, r rule) bool {
		members = append(members, r.member)
		return true
	})
	return members
}
