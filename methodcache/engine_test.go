package methodcache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/goliatone/go-method-cache/pkg/testsupport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, backend string) cache.Store {
	t.Helper()

	cfg := cache.DefaultConfig()
	cfg.Backend = backend
	cfg.Capacity = 1000
	cfg.NumShards = 4
	cfg.TTL = time.Minute

	store, err := cache.NewStore(cfg)
	require.NoError(t, err)
	return store
}

func newTestEngine(t *testing.T, policy Classifier, opts ...Option) (*Engine, cache.Store) {
	t.Helper()

	store := newTestStore(t, cache.BackendSturdyc)
	return New(store, cache.NewDefaultKeyBuilder(), policy, opts...), store
}

func policyWith(t *testing.T, members ...cache.MemberDescriptor) *Policy {
	t.Helper()

	p := NewPolicy()
	for _, m := range members {
		require.NoError(t, p.Register(m))
	}
	return p
}

func stored(t *testing.T, store cache.Store, key string) bool {
	t.Helper()

	_, ok, err := store.Peek(context.Background(), key)
	require.NoError(t, err)
	return ok
}

var (
	userByID   = cache.Method("UserRepository", "GetByID")
	userCount  = cache.Method("UserRepository", "Count")
	userName   = cache.Getter("User", "Name")
	userTheme  = cache.Property("User", "Theme")
	userAvatar = cache.Setter("User", "Avatar")
)

func TestEngine_ReadThrough(t *testing.T) {
	for _, backend := range []string{cache.BackendSturdyc, cache.BackendOtter} {
		t.Run(backend, func(t *testing.T) {
			store := newTestStore(t, backend)
			e := New(store, cache.NewDefaultKeyBuilder(), policyWith(t, userByID))
			ctx := context.Background()
			stub := testsupport.NewRealStub("alice")

			for i := 0; i < 3; i++ {
				got, err := e.Invoke(ctx, userByID, []any{1}, stub.Fn)
				require.NoError(t, err)
				assert.Equal(t, "alice", got)
			}
			assert.Equal(t, 1, stub.Calls())
			assert.True(t, stored(t, store, "UserRepository::GetByID::method::int:1"))

			other := testsupport.NewRealStub("bob")
			got, err := e.Invoke(ctx, userByID, []any{2}, other.Fn)
			require.NoError(t, err)
			assert.Equal(t, "bob", got)
			assert.Equal(t, 1, other.Calls(), "different arguments are different entries")
		})
	}
}

func TestEngine_NotCacheableCallsThrough(t *testing.T) {
	e, store := newTestEngine(t, NewPolicy())
	stub := testsupport.NewRealStub(1)

	for i := 0; i < 3; i++ {
		got, err := e.Invoke(context.Background(), userCount, nil, stub.Fn)
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	}

	assert.Equal(t, 3, stub.Calls())
	assert.False(t, stored(t, store, "UserRepository::Count::method"))
}

func TestEngine_ErrorsAreNotCached(t *testing.T) {
	e, store := newTestEngine(t, policyWith(t, userCount))
	ctx := context.Background()
	boom := errors.New("db down")

	stub := testsupport.NewRealStub(nil)
	stub.SetError(boom)

	_, err := e.Invoke(ctx, userCount, nil, stub.Fn)
	require.ErrorIs(t, err, boom)
	assert.False(t, stored(t, store, "UserRepository::Count::method"))

	stub.SetError(nil)
	stub.SetValue(10)

	got, err := e.Invoke(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 10, got)
	assert.Equal(t, 2, stub.Calls())
}

func TestEngine_UnsupportedArgument(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userByID))
	stub := testsupport.NewRealStub("x")

	_, err := e.Invoke(context.Background(), userByID, []any{func() {}}, stub.Fn)
	require.ErrorIs(t, err, cache.ErrUnsupportedKeyArgument)

	var argErr *cache.UnsupportedKeyArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, 0, argErr.Index)
	assert.Equal(t, 0, stub.Calls())
}

func TestEngine_ConcurrentMissesRunOnce(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userByID))
	stub := testsupport.NewRealStub([]string{"admin", "editor"})
	release := stub.Block()

	const workers = 64

	var wg sync.WaitGroup
	results := make([]any, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Invoke(context.Background(), userByID, []any{7}, stub.Fn)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, stub.Calls())
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"admin", "editor"}, results[i])
	}
}

func TestEngine_ReadWritePropertyWriteInvalidates(t *testing.T) {
	e, store := newTestEngine(t, policyWith(t, userTheme))
	ctx := context.Background()

	var theme atomic.Value
	theme.Store("light")
	var reads atomic.Int32

	read := func(ctx context.Context) (any, error) {
		reads.Add(1)
		return theme.Load(), nil
	}
	write := func(value string) RealFn {
		return func(ctx context.Context) (any, error) {
			theme.Store(value)
			return nil, nil
		}
	}

	got, err := e.Invoke(ctx, userTheme, nil, read)
	require.NoError(t, err)
	assert.Equal(t, "light", got)

	_, err = e.Invoke(ctx, userTheme, []any{"dark"}, write("dark"))
	require.NoError(t, err)
	assert.False(t, stored(t, store, "User::Theme::read_write_property"))

	got, err = e.Invoke(ctx, userTheme, nil, read)
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
	assert.Equal(t, int32(2), reads.Load())

	got, err = e.Invoke(ctx, userTheme, nil, read)
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
	assert.Equal(t, int32(2), reads.Load())
}

func TestEngine_ReadWritePropertyTooManyArguments(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userTheme))
	stub := testsupport.NewRealStub(nil)

	_, err := e.Invoke(context.Background(), userTheme, []any{"a", "b"}, stub.Fn)
	require.ErrorIs(t, err, cache.ErrInvalidInvocation)
	assert.Equal(t, 0, stub.Calls())
}

func TestEngine_WriteNeverReturnsStaleRead(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userTheme))
	ctx := context.Background()

	var value atomic.Int64
	value.Store(1)

	started := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once

	read := func(ctx context.Context) (any, error) {
		v := value.Load()
		once.Do(func() { close(started) })
		<-gate
		return v, nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = e.Invoke(ctx, userTheme, nil, read)
	}()

	<-started
	go func() {
		defer wg.Done()
		_, _ = e.Invoke(ctx, userTheme, []any{int64(2)}, func(ctx context.Context) (any, error) {
			value.Store(2)
			return nil, nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	got, err := e.Invoke(ctx, userTheme, nil, read)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got, "a read computed before the write must not survive it")
}

func TestEngine_CancelledReadCannotOutliveWrite(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userTheme))

	var value atomic.Int64
	value.Store(1)

	started := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once

	read := func(ctx context.Context) (any, error) {
		v := value.Load()
		once.Do(func() { close(started) })
		<-gate
		return v, nil
	}

	readCtx, cancel := context.WithCancel(context.Background())
	readErr := make(chan error, 1)
	go func() {
		_, err := e.Invoke(readCtx, userTheme, nil, read)
		readErr <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-readErr, context.Canceled)

	written := make(chan struct{})
	go func() {
		defer close(written)
		_, err := e.Invoke(context.Background(), userTheme, []any{int64(2)}, func(ctx context.Context) (any, error) {
			value.Store(2)
			return nil, nil
		})
		assert.NoError(t, err)
	}()

	select {
	case <-written:
		t.Fatal("write completed while an earlier read was still computing")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	<-written

	got, err := e.Invoke(context.Background(), userTheme, nil, read)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestEngine_WriteOnlyBypassesStore(t *testing.T) {
	e, store := newTestEngine(t, policyWith(t, userAvatar))
	ctx := context.Background()
	stub := testsupport.NewRealStub("ok")

	for i := 0; i < 3; i++ {
		got, err := e.Invoke(ctx, userAvatar, []any{"a.png"}, stub.Fn)
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	}

	assert.Equal(t, 3, stub.Calls())
	assert.False(t, stored(t, store, "User::Avatar::setter"))
	assert.False(t, stored(t, store, `User::Avatar::setter::string:"a.png"`))
}

func TestEngine_WriteOnlyInvalidatesTargets(t *testing.T) {
	avatarURL := cache.Getter("User", "AvatarURL")

	p := NewPolicy()
	require.NoError(t, p.Register(avatarURL))
	require.NoError(t, p.Register(userName))
	require.NoError(t, p.Register(userAvatar, Invalidates(avatarURL)))

	e, store := newTestEngine(t, p)
	ctx := context.Background()

	url := testsupport.NewRealStub("/a.png")
	name := testsupport.NewRealStub("alice")

	_, err := e.Invoke(ctx, avatarURL, nil, url.Fn)
	require.NoError(t, err)
	_, err = e.Invoke(ctx, userName, nil, name.Fn)
	require.NoError(t, err)

	url.SetValue("/b.png")
	_, err = e.Invoke(ctx, userAvatar, []any{"b.png"}, testsupport.NewRealStub(nil).Fn)
	require.NoError(t, err)

	assert.False(t, stored(t, store, "User::AvatarURL::getter"))
	assert.True(t, stored(t, store, "User::Name::getter"), "unrelated members keep their entries")

	got, err := e.Invoke(ctx, avatarURL, nil, url.Fn)
	require.NoError(t, err)
	assert.Equal(t, "/b.png", got)
	assert.Equal(t, 2, url.Calls())
}

func TestEngine_Remove(t *testing.T) {
	e, store := newTestEngine(t, policyWith(t, userByID))
	ctx := context.Background()

	for _, id := range []int{1, 2} {
		_, err := e.Invoke(ctx, userByID, []any{id}, testsupport.NewRealStub(id).Fn)
		require.NoError(t, err)
	}

	require.NoError(t, e.Remove(ctx, userByID, 1))
	assert.False(t, stored(t, store, "UserRepository::GetByID::method::int:1"))
	assert.True(t, stored(t, store, "UserRepository::GetByID::method::int:2"))

	require.NoError(t, e.Remove(ctx, userByID, 1), "removing an absent entry is a no-op")
	require.NoError(t, e.Remove(ctx, userCount), "removing a never cached member is a no-op")

	err := e.Remove(ctx, userByID, make(chan int))
	assert.ErrorIs(t, err, cache.ErrUnsupportedKeyArgument)

	stub := testsupport.NewRealStub("fresh")
	got, err := e.Invoke(ctx, userByID, []any{1}, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
	assert.Equal(t, 1, stub.Calls())
}

func TestEngine_RemoveAll(t *testing.T) {
	e, store := newTestEngine(t, policyWith(t, userByID, userCount))
	ctx := context.Background()

	for _, id := range []int{1, 2, 3} {
		_, err := e.Invoke(ctx, userByID, []any{id}, testsupport.NewRealStub(id).Fn)
		require.NoError(t, err)
	}
	_, err := e.Invoke(ctx, userCount, nil, testsupport.NewRealStub(3).Fn)
	require.NoError(t, err)

	require.NoError(t, e.RemoveAll(ctx, userByID))

	for _, key := range []string{
		"UserRepository::GetByID::method::int:1",
		"UserRepository::GetByID::method::int:2",
		"UserRepository::GetByID::method::int:3",
	} {
		assert.False(t, stored(t, store, key), key)
	}
	assert.True(t, stored(t, store, "UserRepository::Count::method"))

	require.NoError(t, e.RemoveAll(ctx, userByID))
	assert.ErrorIs(t, e.RemoveAll(ctx, cache.Method("", "x")), cache.ErrInvalidMember)
}

func TestEngine_Refresh(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userCount))
	ctx := context.Background()
	stub := testsupport.NewRealStub(1)

	got, err := e.Invoke(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	stub.SetValue(2)
	got, err = e.Invoke(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "still served from the store")

	got, err = e.Refresh(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	stub.SetValue(3)
	got, err = e.Invoke(WithRefresh(ctx), userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	stub.SetError(errors.New("boom"))
	_, err = e.Refresh(ctx, userCount, nil, stub.Fn)
	require.Error(t, err)

	stub.SetError(nil)
	got, err = e.Invoke(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 3, got, "a failed refresh keeps the previous entry")
	assert.Equal(t, 4, stub.Calls())
}

func TestEngine_RefreshRejectsWritePaths(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userAvatar, userTheme))
	ctx := context.Background()

	_, err := e.Refresh(ctx, userAvatar, []any{"a.png"}, testsupport.NewRealStub(nil).Fn)
	assert.ErrorIs(t, err, cache.ErrInvalidInvocation)

	_, err = e.Refresh(ctx, userTheme, []any{"dark"}, testsupport.NewRealStub(nil).Fn)
	assert.ErrorIs(t, err, cache.ErrInvalidInvocation)

	stub := testsupport.NewRealStub(5)
	got, err := e.Refresh(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	assert.Equal(t, 5, got, "not cacheable members just run")
}

func TestEngine_CopyOnRead(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		e, _ := newTestEngine(t, policyWith(t, userByID), WithCopyOnRead(true))
		ctx := context.Background()

		first, err := Invoke(ctx, e, userByID, []any{1}, func(ctx context.Context) ([]string, error) {
			return []string{"admin"}, nil
		})
		require.NoError(t, err)
		first[0] = "mutated"

		second, err := Invoke(ctx, e, userByID, []any{1}, func(ctx context.Context) ([]string, error) {
			return nil, errors.New("should be cached")
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, second)
	})

	t.Run("disabled shares the stored value", func(t *testing.T) {
		e, _ := newTestEngine(t, policyWith(t, userByID))
		ctx := context.Background()

		first, err := Invoke(ctx, e, userByID, []any{1}, func(ctx context.Context) ([]string, error) {
			return []string{"admin"}, nil
		})
		require.NoError(t, err)
		first[0] = "mutated"

		second, err := Invoke(ctx, e, userByID, []any{1}, func(ctx context.Context) ([]string, error) {
			return nil, errors.New("should be cached")
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"mutated"}, second)
	})
}

func TestInvoke_Typed(t *testing.T) {
	e, _ := newTestEngine(t, policyWith(t, userName))
	ctx := context.Background()

	name, err := Invoke(ctx, e, userName, nil, func(ctx context.Context) (string, error) {
		return "alice", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	ptr, err := Invoke(ctx, e, cache.Getter("User", "Manager"), nil, func(ctx context.Context) (*string, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, ptr)

	_, err = Invoke(ctx, e, userName, nil, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, cache.ErrInvalidResultType)
}

func TestEngine_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	e, _ := newTestEngine(t, policyWith(t, userCount), WithLogger(logger))
	ctx := context.Background()
	stub := testsupport.NewRealStub(1)

	_, err := e.Invoke(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	_, err = e.Invoke(ctx, userCount, nil, stub.Fn)
	require.NoError(t, err)
	require.NoError(t, e.RemoveAll(ctx, userCount))

	out := buf.String()
	assert.Contains(t, out, `"message":"cache miss"`)
	assert.Contains(t, out, `"message":"cache hit"`)
	assert.Contains(t, out, `"message":"cache entries invalidated"`)
	assert.Contains(t, out, `"key":"UserRepository::Count::method"`)
}

func TestEngine_SharedStoreSeparateNamespaces(t *testing.T) {
	store := newTestStore(t, cache.BackendOtter)
	policy := policyWith(t, userCount)

	tenantA := New(store, cache.NewDefaultKeyBuilder(cache.WithNamespace("a")), policy)
	tenantB := New(store, cache.NewDefaultKeyBuilder(cache.WithNamespace("b")), policy)
	ctx := context.Background()

	a, err := tenantA.Invoke(ctx, userCount, nil, testsupport.NewRealStub(1).Fn)
	require.NoError(t, err)
	b, err := tenantB.Invoke(ctx, userCount, nil, testsupport.NewRealStub(2).Fn)
	require.NoError(t, err)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	require.NoError(t, tenantA.RemoveAll(ctx, userCount))
	assert.False(t, stored(t, store, "a::UserRepository::Count::method"))
	assert.True(t, stored(t, store, "b::UserRepository::Count::method"))
}
