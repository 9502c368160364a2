package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"batchchat/mocks"
	"batchchat/models"
)

func TestCachedStore_Append(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockMessageStore(ctrl)
	cache := mocks.NewMockHistoryCache(ctrl)
	cs := NewCachedStore(store, cache, time.Minute)
	msg := models.ChatMessage{BatchID: "batch-42", AuthorID: "u1", Body: "hello"}

	t.Run("should bump the batch version after a successful append", func(t *testing.T) {
		req := require.New(t)
		saved := msg
		saved.ID = "m1"

		gomock.InOrder(
			store.EXPECT().Append(gomock.Any(), msg).Return(saved, nil),
			cache.EXPECT().BumpVersion(gomock.Any(), "batch-42").Return(nil),
		)

		got, err := cs.Append(context.Background(), msg)

		req.NoError(err)
		req.Equal("m1", got.ID)
	})

	t.Run("should not touch the cache when the store fails", func(t *testing.T) {
		req := require.New(t)

		store.EXPECT().Append(gomock.Any(), msg).Return(models.ChatMessage{}, models.ErrStoreUnavailable)
		cache.EXPECT().BumpVersion(gomock.Any(), gomock.Any()).Times(0)

		_, err := cs.Append(context.Background(), msg)

		req.ErrorIs(err, models.ErrStoreUnavailable)
	})

	t.Run("should bump the version even when the caller's deadline has passed", func(t *testing.T) {
		req := require.New(t)
		saved := msg
		saved.ID = "m2"

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		<-ctx.Done()

		store.EXPECT().Append(gomock.Any(), msg).Return(saved, nil)
		cache.EXPECT().
			BumpVersion(gomock.Any(), "batch-42").
			DoAndReturn(func(bumpCtx context.Context, _ string) error {
				req.NoError(bumpCtx.Err(), "the bump must not inherit the expired deadline")
				_, hasDeadline := bumpCtx.Deadline()
				req.True(hasDeadline)
				return nil
			})

		got, err := cs.Append(ctx, msg)

		req.NoError(err)
		req.Equal("m2", got.ID)
	})
}

func TestCachedStore_BumpFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockMessageStore(ctrl)
	cache := mocks.NewMockHistoryCache(ctrl)
	cs := NewCachedStore(store, cache, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return now }

	saved := models.ChatMessage{ID: "m1", BatchID: "batch-42", Body: "hello"}
	fresh := models.HistoryPage{Messages: []models.ChatMessage{saved}}
	q := models.HistoryQuery{Limit: 10}

	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(saved, nil)
	cache.EXPECT().BumpVersion(gomock.Any(), "batch-42").Return(errors.New("redis down"))

	got, err := cs.Append(context.Background(), models.ChatMessage{BatchID: "batch-42", Body: "hello"})
	req.NoError(err, "a failed bump never fails an append")
	req.Equal("m1", got.ID)

	// 舊版本的分頁仍在快取中，查詢必須直接讀 store
	cache.EXPECT().Version(gomock.Any(), gomock.Any()).Times(0)
	cache.EXPECT().GetPage(gomock.Any(), gomock.Any()).Times(0)
	store.EXPECT().ListByBatch(gomock.Any(), "batch-42", q).Return(fresh, nil)

	page, err := cs.ListByBatch(context.Background(), "batch-42", q)
	req.NoError(err)
	req.Equal(fresh, page)

	// 超過 TTL 後舊分頁都已過期，恢復使用快取
	now = now.Add(time.Minute + time.Second)
	cache.EXPECT().Version(gomock.Any(), "batch-42").Return(int64(7), nil)
	cache.EXPECT().PageKey("batch-42", int64(7), q).Return("k7")
	cache.EXPECT().GetPage(gomock.Any(), "k7").Return(&fresh, nil)

	page, err = cs.ListByBatch(context.Background(), "batch-42", q)
	req.NoError(err)
	req.Equal(fresh, page)
}

func TestCachedStore_ListByBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockMessageStore(ctrl)
	cache := mocks.NewMockHistoryCache(ctrl)
	cs := NewCachedStore(store, cache, time.Minute)
	q := models.HistoryQuery{Limit: 10}
	page := models.HistoryPage{Messages: []models.ChatMessage{{ID: "m1", BatchID: "batch-42", Body: "hi"}}}

	t.Run("should serve a cached page without reading the store", func(t *testing.T) {
		req := require.New(t)

		cache.EXPECT().Version(gomock.Any(), "batch-42").Return(int64(3), nil)
		cache.EXPECT().PageKey("batch-42", int64(3), q).Return("k3")
		cache.EXPECT().GetPage(gomock.Any(), "k3").Return(&page, nil)
		store.EXPECT().ListByBatch(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		got, err := cs.ListByBatch(context.Background(), "batch-42", q)

		req.NoError(err)
		req.Equal(page, got)
	})

	t.Run("should fill the cache on a miss", func(t *testing.T) {
		req := require.New(t)

		cache.EXPECT().Version(gomock.Any(), "batch-42").Return(int64(4), nil)
		cache.EXPECT().PageKey("batch-42", int64(4), q).Return("k4")
		cache.EXPECT().GetPage(gomock.Any(), "k4").Return(nil, ErrCacheMiss)
		store.EXPECT().ListByBatch(gomock.Any(), "batch-42", q).Return(page, nil)
		cache.EXPECT().SetPage(gomock.Any(), "k4", page, time.Minute).Return(nil)

		got, err := cs.ListByBatch(context.Background(), "batch-42", q)

		req.NoError(err)
		req.Equal(page, got)
	})

	t.Run("should bypass the cache when the version cannot be read", func(t *testing.T) {
		req := require.New(t)

		cache.EXPECT().Version(gomock.Any(), "batch-42").Return(int64(0), errors.New("redis down"))
		store.EXPECT().ListByBatch(gomock.Any(), "batch-42", q).Return(page, nil)

		got, err := cs.ListByBatch(context.Background(), "batch-42", q)

		req.NoError(err)
		req.Equal(page, got)
	})

	t.Run("should propagate store errors and not cache them", func(t *testing.T) {
		req := require.New(t)

		cache.EXPECT().Version(gomock.Any(), "batch-42").Return(int64(5), nil)
		cache.EXPECT().PageKey("batch-42", int64(5), q).Return("k5")
		cache.EXPECT().GetPage(gomock.Any(), "k5").Return(nil, ErrCacheMiss)
		store.EXPECT().ListByBatch(gomock.Any(), "batch-42", q).Return(models.HistoryPage{}, models.ErrStoreUnavailable)
		cache.EXPECT().SetPage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := cs.ListByBatch(context.Background(), "batch-42", q)

		req.ErrorIs(err, models.ErrStoreUnavailable)
	})

	t.Run("should not fail the shared fetch when the first caller gives up", func(t *testing.T) {
		req := require.New(t)
		started := make(chan struct{})
		release := make(chan struct{})
		flightDone := make(chan struct{})

		cache.EXPECT().Version(gomock.Any(), "batch-42").Return(int64(6), nil)
		cache.EXPECT().PageKey("batch-42", int64(6), q).Return("k6")
		cache.EXPECT().GetPage(gomock.Any(), "k6").Return(nil, ErrCacheMiss)
		store.EXPECT().
			ListByBatch(gomock.Any(), "batch-42", q).
			DoAndReturn(func(ctx context.Context, _ string, _ models.HistoryQuery) (models.HistoryPage, error) {
				close(started)
				<-release
				return page, ctx.Err()
			})
		cache.EXPECT().
			SetPage(gomock.Any(), "k6", page, time.Minute).
			DoAndReturn(func(context.Context, string, models.HistoryPage, time.Duration) error {
				close(flightDone)
				return nil
			})

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, err := cs.ListByBatch(ctx, "batch-42", q)
			errCh <- err
		}()

		<-started
		cancel()
		req.ErrorIs(<-errCh, context.Canceled)

		close(release)
		select {
		case <-flightDone:
		case <-time.After(2 * time.Second):
			req.Fail("shared fetch did not complete")
		}
	})
}
