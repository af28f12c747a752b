package relay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/redis/go-redis/v9"
)

// Delivery is a message published for fan-out beyond this relay instance.
type Delivery struct {
	Origin  string         `json:"origin"`
	Handle  address.Handle `json:"handle"`
	From    string         `json:"from"`
	Payload []byte         `json:"payload"`
}

// Broker carries deliveries between relay instances. Subscribe blocks until
// ctx is done, calling deliver for deliveries published by other instances.
type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	Subscribe(ctx context.Context, deliver func(Delivery)) error
}

// LocalBroker is the single-instance broker: there is nobody else to reach.
type LocalBroker struct{}

func (LocalBroker) Publish(context.Context, Delivery) error { return nil }

func (LocalBroker) Subscribe(ctx context.Context, _ func(Delivery)) error {
	<-ctx.Done()
	return nil
}

const channelPrefix = "mukon:conv:"

// Channel is the Redis channel carrying deliveries for handle.
func Channel(handle address.Handle) string {
	return channelPrefix + handle.String()
}

// RedisBroker fans deliveries out over Redis pub/sub, one channel per handle.
type RedisBroker struct {
	rdb    *redis.Client
	origin string
}

func NewRedisBroker(rdb *redis.Client, origin string) *RedisBroker {
	return &RedisBroker{rdb: rdb, origin: origin}
}

func (b *RedisBroker) Publish(ctx context.Context, d Delivery) error {
	d.Origin = b.origin
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(d.Handle), data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, deliver func(Delivery)) error {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			d, ok := b.decode(msg)
			if ok {
				deliver(d)
			}
		}
	}
}

// decode drops malformed messages, echoes of our own publications and
// messages whose channel disagrees with their handle.
func (b *RedisBroker) decode(msg *redis.Message) (Delivery, bool) {
	var d Delivery
	if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
		return Delivery{}, false
	}
	if d.Origin == b.origin {
		return Delivery{}, false
	}
	if !strings.HasPrefix(msg.Channel, channelPrefix) || msg.Channel != Channel(d.Handle) {
		return Delivery{}, false
	}
	return d, true
}
