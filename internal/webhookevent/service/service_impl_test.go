package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"github.com/smallbiznis/reachway/internal/webhookevent/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ProcessedEvent{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestMarkProcessed_Dedupes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inserted, err := svc.MarkProcessed(ctx, "messaging", "msg_wamid.123", "message", []byte(`{"from":"5511999998888"}`))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = svc.MarkProcessed(ctx, "messaging", "msg_wamid.123", "message", nil)
	require.NoError(t, err)
	assert.False(t, inserted, "second delivery of the same event must lose the insert")

	processed, err := svc.IsProcessed(ctx, "messaging", "msg_wamid.123")
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = svc.IsProcessed(ctx, "messaging", "msg_wamid.999")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestMarkProcessed_ConcurrentDeliveries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	const deliveries = 8
	results := make([]bool, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inserted, err := svc.MarkProcessed(ctx, "telephony", "call-ended-42", "call.ended", nil)
			assert.NoError(t, err)
			results[i] = inserted
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, inserted := range results {
		if inserted {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one delivery must win the conditional insert")
}

func TestMarkProcessed_NormalizesProvider(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inserted, err := svc.MarkProcessed(ctx, " Messaging ", "status_m1_sent", "status", nil)
	require.NoError(t, err)
	assert.True(t, inserted)

	processed, err := svc.IsProcessed(ctx, "messaging", "status_m1_sent")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestMarkProcessed_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkProcessed(ctx, "", "e1", "t", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)

	_, err = svc.MarkProcessed(ctx, "messaging", "  ", "t", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)
}

func TestSubEventKeys(t *testing.T) {
	assert.Equal(t, "status_wamid.1_delivered", domain.StatusEventID(" wamid.1 ", "delivered"))
	assert.Equal(t, "msg_wamid.2", domain.MessageEventID("wamid.2"))
}
