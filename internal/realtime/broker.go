package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/theposch/mainstream-sub002/internal/cache"
	"github.com/theposch/mainstream-sub002/internal/metrics"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	channelPrefix = "likes:"

	// subscriptionBuffer is how far a subscriber may fall behind before it is
	// cut off and has to resubscribe.
	subscriptionBuffer = 64
)

// Broker fans change events out to local subscriptions. With Redis, events
// travel through pub/sub so every server instance sees every publish;
// without it, Publish delivers in-process.
type Broker struct {
	redis   *cache.RedisCache
	logger  *zap.Logger
	metrics *metrics.Collector

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker(redis *cache.RedisCache, logger *zap.Logger, m *metrics.Collector) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		redis:   redis,
		logger:  logger,
		metrics: m,
		subs:    make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription receives events for one scope until it is closed, either by
// its owner or by the broker when the owner stops draining it. A closed
// Events channel means events may have been missed.
type Subscription struct {
	broker *Broker
	scope  string
	ch     chan ChangeEvent
	once   sync.Once
}

func (s *Subscription) Scope() string { return s.scope }

func (s *Subscription) Events() <-chan ChangeEvent { return s.ch }

func (s *Subscription) Close() {
	s.broker.remove(s)
}

func (b *Broker) Subscribe(scope Scope) *Subscription {
	sub := &Subscription{broker: b, scope: scope.Key(), ch: make(chan ChangeEvent, subscriptionBuffer)}

	b.mu.Lock()
	set, ok := b.subs[sub.scope]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[sub.scope] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	b.metrics.SubscriberAdded()
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	sub.once.Do(func() {
		b.mu.Lock()
		if set, ok := b.subs[sub.scope]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sub.scope)
			}
		}
		close(sub.ch)
		b.mu.Unlock()
		b.metrics.SubscriberRemoved()
	})
}

// Publish announces ev to every subscriber of scope on every instance.
func (b *Broker) Publish(ctx context.Context, scope Scope, ev ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	b.metrics.EventPublished()

	if b.redis == nil {
		b.dispatch(scope.Key(), ev)
		return nil
	}
	data, err := msgpack.Marshal(ev)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, channelPrefix+scope.Key(), data)
}

// Run relays Redis pub/sub messages to local subscribers until ctx is done.
// Without Redis it only waits.
func (b *Broker) Run(ctx context.Context) error {
	if b.redis == nil {
		<-ctx.Done()
		return nil
	}

	ps := b.redis.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()
	b.logger.Info("realtime broker listening", zap.String("pattern", channelPrefix+"*"))

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			scope := strings.TrimPrefix(msg.Channel, channelPrefix)
			var ev ChangeEvent
			if err := msgpack.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Validate() != nil {
				b.logger.Warn("dropping malformed change event", zap.String("channel", msg.Channel))
				b.metrics.EventDropped()
				continue
			}
			b.dispatch(scope, ev)
		}
	}
}

func (b *Broker) dispatch(scope string, ev ChangeEvent) {
	var lagging []*Subscription

	b.mu.RLock()
	for sub := range b.subs[scope] {
		select {
		case sub.ch <- ev:
		default:
			lagging = append(lagging, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range lagging {
		b.logger.Warn("closing lagging subscription", zap.String("scope", scope))
		b.metrics.EventDropped()
		b.remove(sub)
	}
}

// SubscriberCount reports local subscriptions for scope.
func (b *Broker) SubscriberCount(scope Scope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[scope.Key()])
}
