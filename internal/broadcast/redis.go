package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker is a Broker that crosses process boundaries through
// Redis pub/sub. Publishing goes to a Redis channel named after the
// group; every process holding local subscribers for that group relays
// received events into its in-process hub. Local delivery also rides
// the Redis round-trip, so an event is handed to each subscriber
// exactly through one path.
type RedisBroker struct {
	rdb   *redis.Client
	local *Hub
	log   *zap.SugaredLogger

	mu   sync.Mutex
	subs map[string]*groupSub
}

// groupSub is one Redis subscription shared by all local members of a
// group. It closes when the hub holds no more subscribers for the
// group; the hub's count is the single source of truth because failed
// senders are evicted from the hub without going through Unsubscribe.
type groupSub struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewRedisBroker returns a broker relaying through the given Redis
// client into a fresh in-process hub.
func NewRedisBroker(rdb *redis.Client, log *zap.SugaredLogger) *RedisBroker {
	return &RedisBroker{
		rdb:   rdb,
		local: NewHub(),
		log:   log,
		subs:  make(map[string]*groupSub),
	}
}

// Subscribe adds the sender to the group. The first local subscriber
// of a group opens the Redis channel subscription; later ones share it.
func (b *RedisBroker) Subscribe(ctx context.Context, group string, s Sender) (int64, error) {
	id, err := b.local.Subscribe(ctx, group, s)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[group]; ok {
		return id, nil
	}

	pubsub := b.rdb.Subscribe(context.Background(), group)
	// Wait for the subscription to be confirmed so a publish issued
	// right after Subscribe returns cannot slip past us.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		b.local.Unsubscribe(group, id)
		return 0, fmt.Errorf("subscribe %s: %w", group, err)
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	b.subs[group] = &groupSub{pubsub: pubsub, cancel: cancel}
	go b.relay(relayCtx, group, pubsub)

	return id, nil
}

// relay pumps events received on the Redis channel into the local hub
// until the subscription closes.
func (b *RedisBroker) relay(ctx context.Context, group string, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warnw("dropping undecodable broadcast event", "group", group, "err", err)
				continue
			}
			if err := b.local.Publish(ctx, group, ev); err != nil {
				b.log.Debugw("partial local delivery", "group", group, "err", err)
			}
		}
	}
}

// Unsubscribe removes the subscription; the Redis channel closes when
// the group's last local subscriber leaves. Idempotent. The hub is
// recounted even when this id was already evicted (a failed send drops
// a sender from the hub directly), so the channel cannot outlive its
// last subscriber.
func (b *RedisBroker) Unsubscribe(group string, id int64) {
	b.local.Unsubscribe(group, id)

	b.mu.Lock()
	defer b.mu.Unlock()

	gs, ok := b.subs[group]
	if !ok || b.local.Subscribers(group) > 0 {
		return
	}
	delete(b.subs, group)
	gs.cancel()
	if err := gs.pubsub.Close(); err != nil {
		b.log.Warnw("closing group subscription", "group", group, "err", err)
	}
}

// Publish serializes the event and sends it through Redis. Subscribers
// in this process receive it the same way remote ones do.
func (b *RedisBroker) Publish(ctx context.Context, group string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, group, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", group, err)
	}
	return nil
}
