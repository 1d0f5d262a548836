package gitfetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloner struct {
	calls int
	err   error
	res   Result
}

func (c *countingCloner) Clone(_ context.Context, _ Key, _ string) (Result, error) {
	c.calls++
	if c.err != nil {
		return Result{}, c.err
	}
	return c.res, nil
}

func TestCache_MemoizesSuccess(t *testing.T) {
	t.Parallel()

	cloner := &countingCloner{res: Result{ContentRoot: "/tmp/x"}}
	cache := NewCache(cloner, t.TempDir())

	key := Key{URL: "https://github.com/a/b", Ref: "default"}
	r1, err := cache.Resolve(context.Background(), key)
	require.NoError(t, err)
	r2, err := cache.Resolve(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, cloner.calls, "second resolve must hit the memoized value, not the transport")
}

func TestCache_NegativeResultIsNotRetried(t *testing.T) {
	t.Parallel()

	cloner := &countingCloner{err: errors.New("network unreachable")}
	cache := NewCache(cloner, t.TempDir())

	key := Key{URL: "https://github.com/a/b", Ref: "default"}
	_, err1 := cache.Resolve(context.Background(), key)
	_, err2 := cache.Resolve(context.Background(), key)

	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, 1, cloner.calls, "a cached failure must not re-attempt the transport")
}

func TestCache_DifferentKeysFetchIndependently(t *testing.T) {
	t.Parallel()

	cloner := &countingCloner{res: Result{ContentRoot: "/tmp/x"}}
	cache := NewCache(cloner, t.TempDir())

	_, _ = cache.Resolve(context.Background(), Key{URL: "https://github.com/a/b", Ref: "v1"})
	_, _ = cache.Resolve(context.Background(), Key{URL: "https://github.com/a/b", Ref: "v2"})

	assert.Equal(t, 2, cloner.calls)
}
