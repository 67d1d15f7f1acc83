package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	ID string `json:"id"`
	N  int    `json:"n"`
}

func TestSetGetJSON(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "t")
	ctx := context.Background()

	mock.ExpectSet("t:k", []byte(`{"id":"a","n":1}`), time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "k", rec{ID: "a", N: 1}, time.Minute))

	mock.ExpectGet("t:k").SetVal(`{"id":"a","n":1}`)
	var got rec
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, rec{ID: "a", N: 1}, got)

	mock.ExpectGet("t:missing").RedisNil()
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBytesMissIsNotError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "")
	mock.ExpectGet("k").RedisNil()
	b, ok, err := c.GetBytes(context.Background(), "k")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestTryLockAndUnlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "t")
	ctx := context.Background()

	mock.Regexp().ExpectSetNX("t:lock:k", `.+`, 5*time.Second).SetVal(true)
	token, ok, err := c.TryLock(ctx, "lock:k", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	mock.ExpectEvalSha(unlockScript.Hash(), []string{"t:lock:k"}, token).SetVal(int64(1))
	assert.NoError(t, c.Unlock(ctx, "lock:k", token))

	mock.ExpectEvalSha(unlockScript.Hash(), []string{"t:lock:k"}, "stale").SetVal(int64(0))
	assert.ErrorIs(t, c.Unlock(ctx, "lock:k", "stale"), ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLockHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "t")
	mock.Regexp().ExpectSetNX("t:k", `.+`, time.Second).SetVal(false)
	_, ok, err := c.TryLock(context.Background(), "k", time.Second)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMGetTypedSkipsUndecodable(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "t")
	mock.ExpectMGet("t:a", "t:b", "t:c").SetVal([]interface{}{`{"id":"a"}`, "not-json", nil})

	got, err := MGetTyped[rec](context.Background(), c, "a", "b", "c")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "a", got["a"].ID)
}

func TestRedisOptions(t *testing.T) {
	cfg := defaultRedisConfig()
	for _, opt := range []RedisOption{
		WithRedisAddr("cache", 6380),
		WithRedisAuth("pw", 2),
		WithRedisPool(8, time.Second),
	} {
		opt(cfg)
	}
	o := cfg.options()
	assert.Equal(t, "cache:6380", o.Addr)
	assert.Equal(t, "pw", o.Password)
	assert.Equal(t, 2, o.DB)
	assert.Equal(t, 4, o.MinIdleConns)
}

func TestSetVersioned(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "t")
	ctx := context.Background()
	doc := rec{ID: "a", N: 1}
	body := []byte(`{"id":"a","n":1}`)

	mock.ExpectEvalSha(versionedSetScript.Hash(), []string{"t:doc"}, body, int64(3)).SetVal(int64(1))
	require.NoError(t, c.SetVersioned(ctx, "doc", doc, 3))

	mock.ExpectEvalSha(versionedSetScript.Hash(), []string{"t:doc"}, body, int64(3)).SetVal(int64(0))
	assert.ErrorIs(t, c.SetVersioned(ctx, "doc", doc, 3), ErrStale)
	assert.NoError(t, mock.ExpectationsWereMet())
}
