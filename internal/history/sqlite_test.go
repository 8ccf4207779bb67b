package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ageapps/chatfeed/internal/chat"
)

var base = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func record(room, id string, offset time.Duration) chat.Message {
	return chat.Message{
		ID:   id,
		Room: room,
		From: "u1",
		Time: base.Add(offset),
		Kind: chat.KindChat,
		Text: "msg " + id,
	}
}

func openTestStore(t *testing.T, pageSize int) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStorePaging(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 2)

	_, err := store.Append(ctx,
		record("general", "a", 0),
		record("general", "b", time.Minute),
		record("general", "c", 2*time.Minute),
		record("other", "x", 3*time.Minute),
	)
	require.NoError(t, err)

	first, err := store.RoomHistory(ctx, "general")
	require.NoError(t, err)
	pages := first.Pages("general")
	require.Len(t, pages, 1)
	require.Equal(t, []string{"b", "c"}, pageIDs(pages))

	more, err := store.MoreHistory(ctx, Query{Room: "general", Before: pages[0].Data[0].Time})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, pageIDs(more))

	done, err := store.MoreHistory(ctx, Query{Room: "general", Before: base})
	require.NoError(t, err)
	require.Empty(t, done)
}

func TestSQLiteStoreRoundTripsFields(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 10)

	msg := record("general", "", 0)
	msg.Kind = chat.KindActivity
	msg.Mentions = []chat.Mention{{Name: "bob"}}
	stored, err := store.Append(ctx, msg)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotEmpty(t, stored[0].ID)

	history, err := store.RoomHistory(ctx, "general")
	require.NoError(t, err)
	got := history.Pages("general")[0].Data[0]
	require.Equal(t, stored[0].ID, got.ID)
	require.Equal(t, chat.KindActivity, got.Kind)
	require.Equal(t, []chat.Mention{{Name: "bob"}}, got.Mentions)
	require.True(t, base.Equal(got.Time))
}

func TestSQLiteStoreDuplicateIDsIgnored(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 10)

	_, err := store.Append(ctx, record("general", "a", 0))
	require.NoError(t, err)
	dup := record("general", "a", time.Hour)
	dup.Text = "changed"
	_, err = store.Append(ctx, dup)
	require.NoError(t, err)

	history, err := store.RoomHistory(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, pageIDs(history.Pages("general")))
	require.Equal(t, "msg a", history.Pages("general")[0].Data[0].Text)
}

func TestSQLiteStoreRejectsRecordWithoutRoom(t *testing.T) {
	store := openTestStore(t, 10)
	_, err := store.Append(context.Background(), record("", "a", 0))
	require.ErrorIs(t, err, chat.ErrInvalidRoom)
}

func TestSQLiteStoreEmptyRoom(t *testing.T) {
	store := openTestStore(t, 10)
	history, err := store.RoomHistory(context.Background(), "nobody")
	require.NoError(t, err)
	require.Zero(t, CountRecords(history.Pages("nobody")))
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries on busy", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, 3, time.Millisecond, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("stops on other errors", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, 3, time.Millisecond, func() error {
			attempts++
			return errors.New("boom")
		})
		require.Error(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, 2, time.Millisecond, func() error {
			attempts++
			return errors.New("SQLITE_BUSY")
		})
		require.Error(t, err)
		require.Equal(t, 2, attempts)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := withRetry(cancelled, 3, time.Millisecond, func() error { return nil })
		require.ErrorIs(t, err, context.Canceled)
	})
}

func pageIDs(pages []chat.HistoryPage) []string {
	var ids []string
	for _, page := range pages {
		for _, msg := range page.Data {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}
