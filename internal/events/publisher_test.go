package events

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readStream(t *testing.T, addr, stream string) []redis.XMessage {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	msgs, err := rdb.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestPublisher_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)

	pub := NewPublisher(RedisOptions{Addr: mr.Addr(), Stream: "test:events"})
	defer pub.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := TradeCompleted(at,
		common.HexToAddress("0xB0"), common.HexToAddress("0xC0"),
		big.NewInt(1000), big.NewInt(17), 21, true)
	require.NoError(t, pub.Publish(context.Background(), ev))

	msgs := readStream(t, mr.Addr(), "test:events")
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "trade_completed", values["kind"])
	assert.Equal(t, "1000", values["amount"])
	assert.Equal(t, "17", values["profit"])
	assert.Equal(t, "1", values["success"]) // bools travel as 1/0
	assert.Equal(t, "21", values["cost_units"])
}

func TestPublisher_DefaultStreamName(t *testing.T) {
	mr := miniredis.RunT(t)

	pub := NewPublisher(RedisOptions{Addr: mr.Addr()})
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), PauseToggled(time.Now(), true)))

	assert.Len(t, readStream(t, mr.Addr(), "flash:events"), 1)
}

type failingSink struct{ err error }

func (s failingSink) Publish(context.Context, Event) error { return s.err }

type countingSink struct{ n int }

func (s *countingSink) Publish(context.Context, Event) error {
	s.n++
	return nil
}

func TestMultiSink_FansOutAndKeepsFirstError(t *testing.T) {
	boom := errors.New("boom")
	counter := &countingSink{}
	sink := MultiSink{
		NewLogSink(zap.NewNop()),
		failingSink{err: boom},
		counter,
		failingSink{err: errors.New("second failure")},
	}

	err := sink.Publish(context.Background(), AssetBlacklisted(time.Now(), common.HexToAddress("0x01")))
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, counter.n, "sinks after a failure still run")
}
