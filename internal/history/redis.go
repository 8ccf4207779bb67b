package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ageapps/chatfeed/internal/chat"
)

// RedisOptions tunes a RedisStore.
type RedisOptions struct {
	PageSize int
	// TTL expires a room's history after the last append. Zero keeps it.
	TTL time.Duration
}

// RedisStore keeps each room's history in a sorted set scored by the record
// time in Unix milliseconds.
type RedisStore struct {
	client   *redis.Client
	pageSize int
	ttl      time.Duration
}

// NewRedisStore connects to redisURL and pings the server.
func NewRedisStore(ctx context.Context, redisURL string, opts RedisOptions) (*RedisStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &RedisStore{client: client, pageSize: pageSize, ttl: opts.TTL}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// roomKey returns the key for a room's history sorted set.
func roomKey(room string) string {
	return fmt.Sprintf("chatfeed:room:%s:history", room)
}

// maxScore is the exclusive upper bound for records older than before.
func maxScore(before time.Time) string {
	if before.IsZero() {
		return "+inf"
	}
	return "(" + strconv.FormatInt(before.UnixMilli(), 10)
}

// Append stores records, assigning ids to records without one.
func (s *RedisStore) Append(ctx context.Context, msgs ...chat.Message) ([]chat.Message, error) {
	prepared := make([]chat.Message, 0, len(msgs))
	pipe := s.client.TxPipeline()
	touched := make(map[string]struct{})
	for _, msg := range msgs {
		out, err := prepare(msg)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		pipe.ZAdd(ctx, roomKey(out.Room), redis.Z{
			Score:  float64(out.Time.UnixMilli()),
			Member: string(data),
		})
		touched[out.Room] = struct{}{}
		prepared = append(prepared, out)
	}
	if s.ttl > 0 {
		for room := range touched {
			pipe.Expire(ctx, roomKey(room), s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store history: %w", err)
	}
	return prepared, nil
}

// RoomHistory implements Service.
func (s *RedisStore) RoomHistory(ctx context.Context, room string) (chat.RoomHistory, error) {
	msgs, err := s.page(ctx, Query{Room: room, Limit: s.pageSize})
	if err != nil {
		return nil, err
	}
	return roomHistory(room, msgs), nil
}

// MoreHistory implements Service.
func (s *RedisStore) MoreHistory(ctx context.Context, q Query) ([]chat.HistoryPage, error) {
	if q.Limit <= 0 {
		q.Limit = s.pageSize
	}
	msgs, err := s.page(ctx, q)
	if err != nil {
		return nil, err
	}
	return pagesOf(q.Room, msgs), nil
}

func (s *RedisStore) page(ctx context.Context, q Query) ([]chat.Message, error) {
	// Newest first, then reversed into ascending order.
	results, err := s.client.ZRevRangeByScore(ctx, roomKey(q.Room), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore(q.Before),
		Count: int64(q.limit()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return decodeMembers(results), nil
}

// decodeMembers turns newest-first sorted set members into ascending records.
// Members that fail to decode are skipped.
func decodeMembers(members []string) []chat.Message {
	msgs := make([]chat.Message, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var msg chat.Message
		if err := json.Unmarshal([]byte(members[i]), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
