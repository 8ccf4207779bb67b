package history

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ageapps/chatfeed/internal/chat"
)

const defaultCacheCapacity = 128

type timedEntry[T any] struct {
	value   T
	expires time.Time
}

// lru is a capacity-bounded cache whose entries also expire after a TTL.
type lru[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List
	entries  map[string]*list.Element
}

type lruItem[T any] struct {
	key   string
	entry timedEntry[T]
}

func newLRU[T any](capacity int, ttl time.Duration) *lru[T] {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &lru[T]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *lru[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	item := elem.Value.(*lruItem[T])
	if !c.now().Before(item.entry.expires) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return item.entry.value, true
}

func (c *lru[T]) put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := timedEntry[T]{value: value, expires: c.now().Add(c.ttl)}
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruItem[T]).entry = entry
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&lruItem[T]{key: key, entry: entry})
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		if last == nil {
			break
		}
		c.order.Remove(last)
		delete(c.entries, last.Value.(*lruItem[T]).key)
	}
}

func (c *lru[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Cached memoizes a Service for a short TTL. Room switches back and forth
// then reuse the same pages instead of hitting the backend again.
type Cached struct {
	next  Service
	rooms *lru[chat.RoomHistory]
	pages *lru[[]chat.HistoryPage]
}

// NewCached wraps next. A non-positive ttl disables caching.
func NewCached(next Service, ttl time.Duration, capacity int) Service {
	if ttl <= 0 {
		return next
	}
	return &Cached{
		next:  next,
		rooms: newLRU[chat.RoomHistory](capacity, ttl),
		pages: newLRU[[]chat.HistoryPage](capacity, ttl),
	}
}

// RoomHistory implements Service.
func (c *Cached) RoomHistory(ctx context.Context, room string) (chat.RoomHistory, error) {
	if cached, ok := c.rooms.get(room); ok {
		return cloneRoomHistory(cached), nil
	}
	value, err := c.next.RoomHistory(ctx, room)
	if err != nil {
		return nil, err
	}
	c.rooms.put(room, cloneRoomHistory(value))
	return value, nil
}

// MoreHistory implements Service.
func (c *Cached) MoreHistory(ctx context.Context, q Query) ([]chat.HistoryPage, error) {
	key := queryKey(q)
	if cached, ok := c.pages.get(key); ok {
		return chat.ClonePages(cached), nil
	}
	pages, err := c.next.MoreHistory(ctx, q)
	if err != nil {
		return nil, err
	}
	c.pages.put(key, chat.ClonePages(pages))
	return pages, nil
}

func queryKey(q Query) string {
	before := int64(0)
	if !q.Before.IsZero() {
		before = q.Before.UnixNano()
	}
	return fmt.Sprintf("%s|%d|%d", q.Room, before, q.Limit)
}

func cloneRoomHistory(h chat.RoomHistory) chat.RoomHistory {
	if h == nil {
		return nil
	}
	out := make(chat.RoomHistory, len(h))
	for room, entry := range h {
		out[room] = chat.RoomHistoryEntry{History: chat.ClonePages(entry.History)}
	}
	return out
}
