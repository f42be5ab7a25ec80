package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher appends events to a redis stream so operators and downstream
// consumers can tail the executor's activity.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

type RedisOptions struct {
	Addr     string
	DB       int
	Username string
	Password string
	Stream   string
}

func NewPublisher(opts RedisOptions) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Username: opts.Username,
		Password: opts.Password,
	})
	stream := opts.Stream
	if stream == "" {
		stream = "flash:events"
	}
	return &Publisher{rdb: rdb, stream: stream}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	values := make(map[string]any, len(ev.Fields)+2)
	values["kind"] = ev.Kind
	values["ts_ms"] = ev.At.UnixMilli()
	for k, v := range ev.Fields {
		values[k] = v
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
