//go:build integration

package database

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("walletwatch_test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	log := logger.NewNop()
	require.NoError(t, MigrateDatabase(dsn, log))
	db, err := ConnectToDatabase(ctx, dsn, PoolConfig{MaxOpenConns: 10}, log)
	require.NoError(t, err)

	require.NoError(t, db.Exec("TRUNCATE alerts, watch_entries, notification_preferences RESTART IDENTITY CASCADE").Error)
	return db
}

func newAlert(owner, tx string) *models.Alert {
	return &models.Alert{
		OwnerID:        owner,
		Chain:          types.Ethereum,
		WalletAddress:  "0xaaa",
		TxHash:         tx,
		Classification: models.ClassTransfer,
		Direction:      models.DirectionReceived,
		Amount:         decimal.NewFromInt(5),
		BlockTime:      time.Now().UTC(),
	}
}

func TestCreateAlertIfAbsentIsIdempotent(t *testing.T) {
	db := setupDB(t)
	store := NewAlertStore(db)
	ctx := context.Background()

	created, err := store.CreateAlertIfAbsent(ctx, newAlert("u1", "0xabc"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateAlertIfAbsent(ctx, newAlert("u1", "0xabc"))
	require.NoError(t, err)
	assert.False(t, created)

	// another owner watching the same wallet gets its own alert
	created, err = store.CreateAlertIfAbsent(ctx, newAlert("u2", "0xabc"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreateAlertIfAbsentConcurrent(t *testing.T) {
	db := setupDB(t)
	store := NewAlertStore(db)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.CreateAlertIfAbsent(ctx, newAlert("u1", "0xrace"))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	var n int64
	require.NoError(t, db.Model(&models.Alert{}).Where("tx_hash = ?", "0xrace").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestAlertLifecycle(t *testing.T) {
	db := setupDB(t)
	store := NewAlertStore(db)
	ctx := context.Background()

	var ids []string
	for i, tx := range []string{"0x1", "0x2", "0x3"} {
		a := newAlert("u1", tx)
		a.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		_, err := store.CreateAlertIfAbsent(ctx, a)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	_, err := store.CreateAlertIfAbsent(ctx, newAlert("u2", "0x9"))
	require.NoError(t, err)

	page, err := store.ListByOwner(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 3, page.UnreadCount)
	require.Len(t, page.Alerts, 2)
	assert.Equal(t, "0x3", page.Alerts[0].TxHash, "newest first")

	// u2 cannot mark u1's alerts
	n, err := store.MarkRead(ctx, "u2", ids)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = store.MarkRead(ctx, "u1", []string{ids[0], ids[1], "not-a-uuid"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err := store.DeleteRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	page, err = store.ListByOwner(ctx, "u1", 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Alerts, 1)
	assert.Equal(t, "0x3", page.Alerts[0].TxHash)

	existing, err := store.ExistingTxHashes(ctx, "u1", types.Ethereum, "0xaaa", []string{"0x1", "0x3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"0x3": {}}, existing)
}

func TestWatchStore(t *testing.T) {
	db := setupDB(t)
	store := NewWatchStore(db)
	ctx := context.Background()

	e := &models.WatchEntry{OwnerID: "u1", Chain: types.Ethereum, Address: "0xaaa"}
	require.NoError(t, store.Create(ctx, e))
	assert.False(t, e.LastCheckedAt.IsZero())

	err := store.Create(ctx, &models.WatchEntry{OwnerID: "u1", Chain: types.Ethereum, Address: "0xaaa"})
	assert.ErrorIs(t, err, ErrDuplicateWatch)

	// a token filter makes it a different registration
	require.NoError(t, store.Create(ctx, &models.WatchEntry{OwnerID: "u1", Chain: types.Ethereum, Address: "0xaaa", TokenFilter: "0xusdc"}))

	later := e.LastCheckedAt.Add(time.Hour)
	moved, err := store.AdvanceCheckpoint(ctx, e.ID, later)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.AdvanceCheckpoint(ctx, e.ID, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, moved, "checkpoint never regresses")

	got, err := store.Get(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastCheckedAt, time.Millisecond)

	updated, err := store.UpdateLabel(ctx, "u1", e.ID, "cold wallet")
	require.NoError(t, err)
	assert.Equal(t, "cold wallet", updated.Label)

	_, err = store.UpdateLabel(ctx, "u2", e.ID, "stolen")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "u2", e.ID), ErrNotFound)
	require.NoError(t, store.Delete(ctx, "u1", e.ID))

	n, err := store.DeleteByOwners(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPreferenceStore(t *testing.T) {
	db := setupDB(t)
	store := NewPreferenceStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	pref, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, pref.WhaleAlerts, "defaults when nothing is stored")

	pref.WhaleAlerts = false
	pref.TelegramChatID = 777
	pref.MinWhaleUSD = decimal.NewFromInt(250000)
	require.NoError(t, store.Upsert(ctx, &pref))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.WhaleAlerts, "false flags survive the upsert")
	assert.True(t, got.MinWhaleUSD.Equal(decimal.NewFromInt(250000)))
	assert.Zero(t, got.TelegramChatID, "the chat is only set by redeeming a link code")

	issued, err := store.LinkCode(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, issued.TelegramLinkCode, 6)
	again, err := store.LinkCode(ctx, "u1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, issued.TelegramLinkCode, again.TelegramLinkCode, "a valid code is reused")

	linked, err := store.LinkTelegramChat(ctx, strings.ToLower(issued.TelegramLinkCode), 777, now)
	require.NoError(t, err)
	assert.Equal(t, "u1", linked.OwnerID)
	_, err = store.LinkTelegramChat(ctx, issued.TelegramLinkCode, 777, now)
	assert.ErrorIs(t, err, ErrInvalidLinkCode, "codes are single use")

	got, err = store.SetFlag(ctx, 777, models.ClassWhale, true)
	require.NoError(t, err)
	assert.True(t, got.WhaleAlerts)

	_, err = store.SetFlag(ctx, 123, models.ClassWhale, true)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UnlinkTelegram(ctx, "u1"))
	_, err = store.GetByTelegramChat(ctx, 777)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkTelegramChatExpiryAndOwnership(t *testing.T) {
	db := setupDB(t)
	store := NewPreferenceStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	u1, err := store.LinkCode(ctx, "u1", now)
	require.NoError(t, err)
	_, err = store.LinkTelegramChat(ctx, u1.TelegramLinkCode, 42, now.Add(LinkCodeTTL+time.Second))
	assert.ErrorIs(t, err, ErrInvalidLinkCode, "expired")

	u1, err = store.LinkCode(ctx, "u1", now.Add(LinkCodeTTL+time.Second))
	require.NoError(t, err)
	_, err = store.LinkTelegramChat(ctx, u1.TelegramLinkCode, 42, now.Add(LinkCodeTTL+2*time.Second))
	require.NoError(t, err)

	// the chat holder redeems a second account's code: the chat moves, it is never shared
	u2, err := store.LinkCode(ctx, "u2", now)
	require.NoError(t, err)
	_, err = store.LinkTelegramChat(ctx, u2.TelegramLinkCode, 42, now)
	require.NoError(t, err)

	owner, err := store.GetByTelegramChat(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "u2", owner.OwnerID)
	first, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, first.TelegramChatID)

	_, err = store.SetFlag(ctx, 42, models.ClassTransfer, false)
	require.NoError(t, err)
	first, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.TransferAlerts, "flags of the previous owner are not touched")

	err = db.Exec("UPDATE notification_preferences SET telegram_chat_id = 42 WHERE owner_id = 'u1'").Error
	assert.Error(t, err, "a chat can be linked to one owner only")
}
