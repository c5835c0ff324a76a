package workqueue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"winivox/internal/services"
)

// Redis pushes identifiers onto a list with RPUSH and pops them with BLPOP.
type Redis struct {
	client *redis.Client
	name   string
}

// NewRedis connects lazily to the server described by url.
func NewRedis(url, name string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workqueue", "init", "parse redis url", err)
	}
	return &Redis{client: redis.NewClient(opts), name: name}, nil
}

func (q *Redis) Enqueue(ctx context.Context, id string) error {
	id, err := validID(id)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.name, id).Err(); err != nil {
		return services.Wrap(services.ErrTransient, "workqueue", "enqueue", "rpush", err)
	}
	return nil
}

// Dequeue blocks server-side. Redis counts the timeout in whole seconds, so
// sub-second values wait one second.
func (q *Redis) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if timeout < time.Second {
		timeout = time.Second
	}
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if errors.Is(err, redis.ErrClosed) {
			return "", false, ErrClosed
		}
		return "", false, services.Wrap(services.ErrTransient, "workqueue", "dequeue", "blpop", err)
	}
	if len(result) < 2 {
		return "", false, nil
	}
	return result[1], true, nil
}

func (q *Redis) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "workqueue", "len", "llen", err)
	}
	return int(n), nil
}

func (q *Redis) Close() error {
	return q.client.Close()
}
