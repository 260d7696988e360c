package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitService_CheckLimit(t *testing.T) {
	tests := []struct {
		name      string
		count     int64
		ttl       time.Duration
		wantOK    bool
		wantRetry time.Duration
	}{
		{name: "first hit", count: 1, wantOK: true},
		{name: "at limit", count: 3, wantOK: true},
		{name: "over limit", count: 4, ttl: 42 * time.Second, wantOK: false, wantRetry: 42 * time.Second},
		{name: "over limit without ttl", count: 9, ttl: -1, wantOK: false, wantRetry: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb, mock := redismock.NewClientMock()
			key := "rate_limit:charge:user-1"

			mock.ExpectTxPipeline()
			mock.ExpectIncr(key).SetVal(tt.count)
			mock.ExpectExpireNX(key, time.Minute).SetVal(true)
			mock.ExpectTxPipelineExec()
			if !tt.wantOK {
				mock.ExpectTTL(key).SetVal(tt.ttl)
			}

			ok, retry, err := NewRateLimitService(rdb).CheckLimit(context.Background(), "charge:user-1", 3, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRetry, retry)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRateLimitService_RedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := "rate_limit:charge:user-1"

	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetErr(errors.New("redis down"))

	ok, _, err := NewRateLimitService(rdb).CheckLimit(context.Background(), "charge:user-1", 3, time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
