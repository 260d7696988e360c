package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type view struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "split:1", view{ID: "1", Status: "pending"}, 30*time.Second))

	var got view
	hit, err := c.Get(ctx, "split:1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "pending", got.Status)

	now = now.Add(30 * time.Second)
	hit, err = c.Get(ctx, "split:1", &got)
	require.NoError(t, err)
	assert.False(t, hit, "entry must expire at its TTL")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_DeleteAndZeroTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "a", view{ID: "a"}, time.Minute))
	require.NoError(t, c.Set(ctx, "b", view{ID: "b"}, time.Minute))
	require.NoError(t, c.Set(ctx, "c", view{ID: "c"}, 0))
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Delete(ctx, "a", "missing"))
	var got view
	hit, _ := c.Get(ctx, "a", &got)
	assert.False(t, hit)
	hit, _ = c.Get(ctx, "b", &got)
	assert.True(t, hit)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCache(rdb, "payments:view:")

	value := view{ID: "1", Status: "completed"}
	data, err := json.Marshal(value)
	require.NoError(t, err)

	mock.ExpectSet("payments:view:1", data, 30*time.Second).SetVal("OK")
	mock.ExpectGet("payments:view:1").SetVal(string(data))
	mock.ExpectGet("payments:view:2").RedisNil()
	mock.ExpectGet("payments:view:3").SetErr(errors.New("timeout"))
	mock.ExpectDel("payments:view:1", "payments:view:2").SetVal(1)

	require.NoError(t, c.Set(ctx, "1", value, 30*time.Second))

	var got view
	hit, err := c.Get(ctx, "1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, value, got)

	hit, err = c.Get(ctx, "2", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = c.Get(ctx, "3", &got)
	assert.Error(t, err)

	require.NoError(t, c.Delete(ctx, "1", "2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
