package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"restaurant-pos/internal/order/adapter/db"
	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/docstore"
	"restaurant-pos/internal/xpkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, models.OrderType, time.Time) (int, error) {
	return 0, fmt.Errorf("%w after 5 attempts: %w", docstore.ErrRetriesExhausted, docstore.ErrConflict)
}

func (failingCounter) Get(context.Context, string) (models.DailyCounter, error) {
	return models.DailyCounter{}, nil
}

type recordingCounter struct {
	dateKeys []string
}

func (r *recordingCounter) Increment(_ context.Context, dateKey string, _ models.OrderType, _ time.Time) (int, error) {
	r.dateKeys = append(r.dateKeys, dateKey)
	return len(r.dateKeys), nil
}

func (r *recordingCounter) Get(context.Context, string) (models.DailyCounter, error) {
	return models.DailyCounter{}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFormatOrderNo(t *testing.T) {
	assert.Equal(t, "20250314-007-DL", FormatOrderNo("20250314", 7, models.OrderTypeDelivery))
	assert.Equal(t, "20250314-001-TK", FormatOrderNo("20250314", 1, models.OrderTypeTakeaway))
	assert.Equal(t, "20250314-1000-DI", FormatOrderNo("20250314", 1000, models.OrderTypeDineIn))
	assert.Equal(t, "20250314-002-DI", FormatOrderNo("20250314", 2, "buffet"))
}

func TestSequenceCounter_ConcurrentCallsAreDistinct(t *testing.T) {
	store := docstore.NewMemory(docstore.Options{MaxAttempts: 500})
	repo := db.NewCounterRepo(store)
	sc := NewSequenceCounter(repo, time.UTC, logger.Nop())
	day := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	sc.now = fixedClock(day)

	const n = 40
	types := []models.OrderType{models.OrderTypeDineIn, models.OrderTypeTakeaway, models.OrderTypeDelivery}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			no, err := sc.Next(context.Background(), types[i%len(types)])
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[no[:12]] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, seen, n, "every call must get its own sequence number")
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("20250314-%03d", i)], "missing sequence %d", i)
	}

	counter, err := repo.Get(context.Background(), "20250314")
	require.NoError(t, err)
	assert.Equal(t, n, counter.Total)
	assert.Equal(t, n, counter.DineIn+counter.Takeaway+counter.Delivery)
	assert.Equal(t, 14, counter.DineIn)
}

func TestSequenceCounter_DatesAreIndependent(t *testing.T) {
	store := docstore.NewMemory(docstore.Options{})
	sc := NewSequenceCounter(db.NewCounterRepo(store), time.UTC, logger.Nop())
	ctx := context.Background()

	sc.now = fixedClock(time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC))
	no, err := sc.Next(ctx, models.OrderTypeDineIn)
	require.NoError(t, err)
	assert.Equal(t, "20250314-001-DI", no)
	no, err = sc.Next(ctx, models.OrderTypeDelivery)
	require.NoError(t, err)
	assert.Equal(t, "20250314-002-DL", no)

	sc.now = fixedClock(time.Date(2025, 3, 15, 0, 1, 0, 0, time.UTC))
	no, err = sc.Next(ctx, models.OrderTypeTakeaway)
	require.NoError(t, err)
	assert.Equal(t, "20250315-001-TK", no)
}

func TestSequenceCounter_BusinessTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	rec := &recordingCounter{}
	sc := NewSequenceCounter(rec, loc, logger.Nop())
	// 19:00 UTC is 00:30 the next day in Kolkata
	sc.now = fixedClock(time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC))

	no, err := sc.Next(context.Background(), models.OrderTypeDineIn)
	require.NoError(t, err)
	assert.Equal(t, "20250315-001-DI", no)
}

func TestSequenceCounter_ClockReadOnce(t *testing.T) {
	rec := &recordingCounter{}
	sc := NewSequenceCounter(rec, time.UTC, logger.Nop())

	calls := 0
	start := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)
	sc.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * time.Minute)
	}

	no, err := sc.Next(context.Background(), models.OrderTypeTakeaway)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"20250314"}, rec.dateKeys)
	assert.Equal(t, "20250314-001-TK", no)
}

func TestSequenceCounter_Unavailable(t *testing.T) {
	sc := NewSequenceCounter(failingCounter{}, time.UTC, logger.Nop())

	no, err := sc.Next(context.Background(), models.OrderTypeDelivery)
	assert.Empty(t, no)
	require.ErrorIs(t, err, core.ErrSequenceUnavailable)
	assert.ErrorIs(t, err, docstore.ErrRetriesExhausted)
}
