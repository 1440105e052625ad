// Package redis implements store.Store on Redis. Each message is a hash;
// sorted sets index it by status and by the times the scheduler queries.
// Inserts and transitions run as Lua scripts so that the guard check and
// all index updates apply atomically.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "shoutboard:"

// Store implements store.Store backed by Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Open connects to the Redis server at url (redis://host:port/db).
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, DefaultPrefix), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *Store) msgKey(id string) string { return s.key("msg", id) }
func (s *Store) statusKey(st model.Status) string { return s.key("created", string(st)) }
func (s *Store) allKey() string { return s.key("created", "all") }
func (s *Store) dueKey() string { return s.key("due") }
func (s *Store) activeKey() string { return s.key("active") }
func (s *Store) expiredSetKey() string { return s.key("expired") }
func (s *Store) eventsKey(messageID string) string { return s.key("events", messageID) }
func (s *Store) eventSeqKey() string { return s.key("event-seq") }

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'body', ARGV[2], 'status', 'queued',
  'created_at', ARGV[3], 'display_count', '0')
if ARGV[5] == '1' then
  redis.call('HSET', KEYS[1], 'author', ARGV[4])
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// KEYS: msg, created:<from>, created:<to>, due, active, expired
// ARGV: id, from, to, at, expiresAt
var transitionScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[2] then
  return 0
end
if ARGV[2] == 'displaying' then
  local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
  if exp == nil or exp > tonumber(ARGV[4]) then
    return 0
  end
end
local created = redis.call('HGET', KEYS[1], 'created_at')
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], created, ARGV[1])
if ARGV[3] == 'displaying' then
  redis.call('HSET', KEYS[1], 'status', ARGV[3], 'displayed_at', ARGV[4], 'expires_at', ARGV[5])
  redis.call('HINCRBY', KEYS[1], 'display_count', 1)
  redis.call('ZADD', KEYS[4], ARGV[5], ARGV[1])
  redis.call('ZADD', KEYS[5], ARGV[4], ARGV[1])
  redis.call('SREM', KEYS[6], ARGV[1])
else
  redis.call('HSET', KEYS[1], 'status', ARGV[3])
  redis.call('ZREM', KEYS[4], ARGV[1])
  redis.call('ZREM', KEYS[5], ARGV[1])
  redis.call('SADD', KEYS[6], ARGV[1])
end
return redis.call('HGETALL', KEYS[1])
`)

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	inserted, err := s.insert(ctx, m)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("create %s: %w", m.ID, store.ErrExists)
	}
	return nil
}

func (s *Store) SeedMessage(ctx context.Context, m *model.Message) (bool, error) {
	return s.insert(ctx, m)
}

func (s *Store) insert(ctx context.Context, m *model.Message) (bool, error) {
	if err := store.Prepare(m, time.Now()); err != nil {
		return false, err
	}
	author, hasAuthor := "", "0"
	if m.Author != nil {
		author, hasAuthor = *m.Author, "1"
	}
	n, err := insertScript.Run(ctx, s.rdb,
		[]string{s.msgKey(m.ID), s.allKey(), s.statusKey(model.StatusQueued)},
		m.ID, m.Body, m.CreatedAt.UnixMilli(), author, hasAuthor,
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	fields, err := s.rdb.HGetAll(ctx, s.msgKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decodeMessage(fields)
}

func (s *Store) Transition(ctx context.Context, t model.Transition) (*model.Message, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	res, err := transitionScript.Run(ctx, s.rdb,
		[]string{
			s.msgKey(t.ID), s.statusKey(t.From), s.statusKey(t.To),
			s.dueKey(), s.activeKey(), s.expiredSetKey(),
		},
		t.ID, string(t.From), string(t.To), t.At.UnixMilli(), t.ExpiresAt().UnixMilli(),
	).Result()
	if err != nil {
		return nil, err
	}
	pairs, ok := res.([]any)
	if !ok {
		return nil, store.ErrTransitionConflict
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}
	return decodeMessage(fields)
}

func (s *Store) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	key := s.allKey()
	if status != "" {
		key = s.statusKey(status)
	}
	n, err := s.rdb.ZCard(ctx, key).Result()
	return int(n), err
}

func (s *Store) FindOldest(ctx context.Context, status model.Status, limit int) ([]*model.Message, error) {
	key := s.allKey()
	if status != "" {
		key = s.statusKey(status)
	}
	ids, err := s.rdb.ZRange(ctx, key, 0, stop(limit)).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Message, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *Store) ListActive(ctx context.Context, limit int) ([]*model.Message, error) {
	ids, err := s.rdb.ZRange(ctx, s.activeKey(), 0, stop(limit)).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *Store) SampleByStatus(ctx context.Context, status model.Status, n int) ([]*model.Message, error) {
	var (
		ids []string
		err error
	)
	if status == model.StatusExpired {
		ids, err = s.rdb.SRandMemberN(ctx, s.expiredSetKey(), int64(n)).Result()
	} else {
		ids, err = s.rdb.ZRange(ctx, s.statusKey(status), 0, -1).Result()
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		if n > 0 && len(ids) > n {
			ids = ids[:n]
		}
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

// load fetches the hashes for ids in order, skipping any that vanished.
func (s *Store) load(ctx context.Context, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.msgKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]*model.Message, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		m, err := decodeMessage(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) RecordEvent(ctx context.Context, e *model.Event) error {
	id, err := s.rdb.Incr(ctx, s.eventSeqKey()).Result()
	if err != nil {
		return err
	}
	e.ID = id
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return s.rdb.RPush(ctx, s.eventsKey(e.MessageID), data).Err()
}

func (s *Store) ListEvents(ctx context.Context, messageID string) ([]*model.Event, error) {
	raw, err := s.rdb.LRange(ctx, s.eventsKey(messageID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Event, 0, len(raw))
	for _, r := range raw {
		var e model.Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

// stop converts a limit to a ZRANGE stop index; zero means everything.
func stop(limit int) int64 {
	if limit <= 0 {
		return -1
	}
	return int64(limit - 1)
}

func decodeMessage(f map[string]string) (*model.Message, error) {
	m := &model.Message{
		ID:     f["id"],
		Body:   f["body"],
		Status: model.Status(f["status"]),
	}
	if a, ok := f["author"]; ok {
		m.Author = &a
	}
	created, err := millis(f["created_at"])
	if err != nil || created == nil {
		return nil, fmt.Errorf("message %s: bad created_at %q", m.ID, f["created_at"])
	}
	m.CreatedAt = *created
	if m.DisplayedAt, err = millis(f["displayed_at"]); err != nil {
		return nil, fmt.Errorf("message %s displayed_at: %w", m.ID, err)
	}
	if m.ExpiresAt, err = millis(f["expires_at"]); err != nil {
		return nil, fmt.Errorf("message %s expires_at: %w", m.ID, err)
	}
	if c := f["display_count"]; c != "" {
		if m.DisplayCount, err = strconv.Atoi(c); err != nil {
			return nil, fmt.Errorf("message %s display_count: %w", m.ID, err)
		}
	}
	return m, nil
}

func millis(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(n).UTC()
	return &t, nil
}
