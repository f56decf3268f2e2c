package health

import (
	"context"
	"errors"
	"testing"

	"tokenshare-backend/internal/application/ledger"
	"tokenshare-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping() error { return f.err }

func TestCollectHealth_WithNilRedis(t *testing.T) {
	result := CollectHealth(context.Background(), nil, nil, nil)
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["ledger"].Status)
	assert.Equal(t, 0, result.Traffic.TotalRequests)
}

func TestCollectHealth_WithMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	result := CollectHealth(ctx, rdb, fakeDB{}, ledger.NewMemory())
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, "connected", result.Dependencies["database"].Status)
	assert.Equal(t, "reachable", result.Dependencies["ledger"].Status)
	assert.Equal(t, "100", result.Traffic.SuccessRate)

	require.NoError(t, rdb.Set(ctx, middleware.KeyReqTotal, "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyReqErrors, "2", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyResTime, "150.5", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyResCount, "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyLastReq, `{"path":"/projects"}`, 0).Err())

	result = CollectHealth(ctx, rdb, fakeDB{}, nil)
	assert.Equal(t, 10, result.Traffic.TotalRequests)
	assert.Equal(t, 8, result.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result.Traffic.SuccessRate)
	assert.Equal(t, "15.05", result.Traffic.AvgResponseTime)
	assert.Equal(t, map[string]interface{}{"path": "/projects"}, result.Traffic.LastRequest)
}

func TestCollectHealth_LedgerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := ledger.NewMemory()
	l.Fail = func(string) error { return errors.New("gateway down") }
	result := CollectHealth(context.Background(), rdb, fakeDB{}, l)
	assert.Equal(t, "degraded", result.Status)
	assert.Equal(t, "unreachable", result.Dependencies["ledger"].Status)
	assert.Equal(t, "gateway down", result.Dependencies["ledger"].Error)

	result = CollectHealth(context.Background(), rdb, fakeDB{err: errors.New("no db")}, l)
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "error", result.Dependencies["database"].Status)
}
