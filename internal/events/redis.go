package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events as JSON on Redis pub/sub channels named
// after the topic.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher connects to the Redis server at url.
func NewRedisPublisher(ctx context.Context, url string) (*RedisPublisher, error) {
	rdb, err := connectRedis(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RedisPublisher{rdb: rdb}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.rdb.Publish(ctx, topic, data).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// RedisSubscriber receives events from Redis pub/sub.
type RedisSubscriber struct {
	rdb *redis.Client
}

// NewRedisSubscriber connects to the Redis server at url.
func NewRedisSubscriber(ctx context.Context, url string) (*RedisSubscriber, error) {
	rdb, err := connectRedis(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RedisSubscriber{rdb: rdb}, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// Subscribe pattern-subscribes to topic. NATS wildcards are translated to
// Redis glob patterns, so "board.message.>" becomes "board.message.*".
func (s *RedisSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ctx := context.Background()
	ps := s.rdb.PSubscribe(ctx, redisPattern(topic))
	// Wait for the subscription to be confirmed before returning.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	p := newPipe()
	msgs := ps.Channel()
	go func() {
		for msg := range msgs {
			p.send(Message{Topic: msg.Channel, Data: []byte(msg.Payload)})
		}
	}()

	cancel := func() {
		_ = ps.Close()
		p.close()
	}
	return p.ch, cancel, nil
}

func (s *RedisSubscriber) Close() error {
	return s.rdb.Close()
}

// redisPattern converts NATS subject wildcards to a Redis glob.
func redisPattern(topic string) string {
	parts := strings.Split(topic, ".")
	for i, p := range parts {
		if p == ">" || p == "*" {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}
