package di

import (
	"context"
	"fmt"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/goliatone/go-method-cache/methodcache"
	"github.com/rs/zerolog"
)

// Container wires the process-wide store with the key builder, the policy
// and the engine built on top of them. Every accessor returns the same
// instance for the lifetime of the container.
type Container struct {
	store  cache.Store
	keys   cache.KeyBuilder
	policy *methodcache.Policy
	engine *methodcache.Engine
	config cache.Config
}

type containerOptions struct {
	logger      zerolog.Logger
	policy      *methodcache.Policy
	keyOptions  []cache.KeyBuilderOption
	copyOnRead  bool
	storeOption cache.Store
}

// Option customizes container construction.
type Option func(*containerOptions)

// WithLogger sets the logger handed to the engine.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithPolicy uses p instead of an empty policy.
func WithPolicy(p *methodcache.Policy) Option {
	return func(o *containerOptions) {
		o.policy = p
	}
}

// WithKeyBuilderOptions configures the default key builder.
func WithKeyBuilderOptions(opts ...cache.KeyBuilderOption) Option {
	return func(o *containerOptions) {
		o.keyOptions = append(o.keyOptions, opts...)
	}
}

// WithCopyOnRead toggles deep copies of cached values. Enabled by default.
func WithCopyOnRead(enabled bool) Option {
	return func(o *containerOptions) {
		o.copyOnRead = enabled
	}
}

// WithStore uses an existing store instead of building one from the config,
// so several containers can share a single store.
func WithStore(store cache.Store) Option {
	return func(o *containerOptions) {
		o.storeOption = store
	}
}

// NewContainer creates a new DI container with the provided store configuration.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	options := containerOptions{
		logger:     zerolog.Nop(),
		copyOnRead: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	store := options.storeOption
	if store == nil {
		var err error
		store, err = cache.NewStore(config)
		if err != nil {
			return nil, err
		}
	}

	policy := options.policy
	if policy == nil {
		policy = methodcache.NewPolicy()
	}

	keys := cache.NewDefaultKeyBuilder(options.keyOptions...)

	engine := methodcache.New(store, keys, policy,
		methodcache.WithLogger(options.logger),
		methodcache.WithCopyOnRead(options.copyOnRead),
	)

	return &Container{
		store:  store,
		keys:   keys,
		policy: policy,
		engine: engine,
		config: config,
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// NewContainerFromEnv creates a container configured from METHODCACHE_*
// environment variables. Options passed explicitly win over the environment.
func NewContainerFromEnv(ctx context.Context, opts ...Option) (*Container, error) {
	env, err := LoadEnvConfig(ctx)
	if err != nil {
		return nil, err
	}
	return newContainerFromEnvConfig(env, opts...)
}

func newContainerFromEnvConfig(env EnvConfig, opts ...Option) (*Container, error) {
	var envOpts []Option

	if env.PolicyFile != "" {
		policy, err := methodcache.LoadPolicyFile(env.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		envOpts = append(envOpts, WithPolicy(policy))
	}

	var keyOpts []cache.KeyBuilderOption
	if env.Namespace != "" {
		keyOpts = append(keyOpts, cache.WithNamespace(env.Namespace))
	}
	if env.HashKeys {
		keyOpts = append(keyOpts, cache.WithHashedArguments())
	}
	envOpts = append(envOpts, WithKeyBuilderOptions(keyOpts...), WithCopyOnRead(env.CopyOnRead))

	return NewContainer(env.StoreConfig(), append(envOpts, opts...)...)
}

// Store returns the singleton store instance.
func (c *Container) Store() cache.Store {
	return c.store
}

// KeyBuilder returns the singleton key builder instance.
func (c *Container) KeyBuilder() cache.KeyBuilder {
	return c.keys
}

// Policy returns the policy the engine classifies members with. Members
// registered on it after construction are picked up immediately.
func (c *Container) Policy() *methodcache.Policy {
	return c.policy
}

// Engine returns the singleton engine.
func (c *Container) Engine() *methodcache.Engine {
	return c.engine
}

// Remover returns the invalidation capability to inject into business code.
func (c *Container) Remover() methodcache.Remover {
	return c.engine
}

// Config returns a copy of the store configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}
