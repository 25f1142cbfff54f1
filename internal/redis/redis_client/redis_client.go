package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// NewRedisClient connects to the live-state mirror and fails fast when the
// server is unreachable.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	maxPool := min(runtime.NumCPU()*8, 512)

	rc := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		PoolSize:    maxPool,
		DialTimeout: pingTimeout,
	})

	ctx, cancelFunc := context.WithTimeout(context.Background(), pingTimeout)
	defer cancelFunc()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("redis_connect", zap.String("addr", rc.Options().Addr), zap.Error(err))
		return nil, err
	}
	return rc, nil
}
